package engine

import (
	"github.com/okkaok/solaris/internal/board"
)

// Search score constants (§3 Data Model).
const (
	Mate    = 100000
	Inf     = 9999999
	Invalid = 20000
	MaxPly  = 128

	// MateThreshold is the boundary of the mate-score band: any score with
	// |score| > MateThreshold encodes a forced mate in Mate-|score| plies.
	MateThreshold = Mate - 1000
)

// TTFlag indicates the type of bound stored in the transposition table.
type TTFlag uint8

const (
	TTExact      TTFlag = iota // Exact score
	TTLowerBound               // Failed high (beta cutoff)
	TTUpperBound               // Failed low
)

// TTEntry is one slot of a cluster.
type TTEntry struct {
	Key      uint32     // Upper 32 bits of Zobrist hash for verification
	BestMove board.Move // Best move found, or NoMove
	Score    int32      // Score (bounded by flag)
	Depth    int8       // Search depth this entry was stored at
	Flag     TTFlag     // Type of bound
	Age      uint8      // Generation the entry belongs to
	used     bool
}

const clusterSize = 4

// ttCluster is a fixed-size bucket of entries sharing an index (§4.2).
type ttCluster struct {
	entries [clusterSize]TTEntry
}

// TranspositionTable is a clustered hash table for storing search results.
type TranspositionTable struct {
	clusters []ttCluster
	count    uint64 // number of clusters, always a power of 2
	mask     uint64
	age      uint8

	hits   uint64
	probes uint64
}

// NewTranspositionTable creates a transposition table sized to sizeMB
// megabytes, rounded down to the nearest power-of-two cluster count.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	tt := &TranspositionTable{}
	tt.SetSize(sizeMB)
	return tt
}

// SetSize resizes the table to the requested power-of-two cluster count
// whose byte footprint does not exceed mb megabytes. Existing entries are
// not preserved (§4.2 set_size).
func (tt *TranspositionTable) SetSize(mb int) {
	clusterBytes := uint64(clusterSize) * 16 // approximate in-memory entry size
	numClusters := (uint64(mb) * 1024 * 1024) / clusterBytes
	if numClusters == 0 {
		numClusters = 1
	}
	numClusters = roundDownToPowerOf2(numClusters)

	tt.clusters = make([]ttCluster, numClusters)
	tt.count = numClusters
	tt.mask = numClusters - 1
	tt.age = 0
	tt.hits = 0
	tt.probes = 0
}

// roundDownToPowerOf2 rounds n down to the nearest power of 2.
func roundDownToPowerOf2(n uint64) uint64 {
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return (n + 1) >> 1
}

func (tt *TranspositionTable) clusterFor(hash uint64) *ttCluster {
	return &tt.clusters[hash&tt.mask]
}

// Probe looks up a position in the transposition table. found implies the
// stored key-fragment matches the requested hash.
func (tt *TranspositionTable) Probe(hash uint64) (TTEntry, bool) {
	tt.probes++

	cluster := tt.clusterFor(hash)
	key := uint32(hash >> 32)
	for i := range cluster.entries {
		e := &cluster.entries[i]
		if e.used && e.Key == key {
			tt.hits++
			return *e, true
		}
	}
	return TTEntry{}, false
}

// Store saves a position's search result, replacing the lowest-quality
// entry in its cluster when no matching slot already exists (§4.2).
func (tt *TranspositionTable) Store(hash uint64, depth int, score int, flag TTFlag, bestMove board.Move) {
	cluster := tt.clusterFor(hash)
	key := uint32(hash >> 32)

	var victim *TTEntry
	worstQuality := 1 << 30
	for i := range cluster.entries {
		e := &cluster.entries[i]
		if e.used && e.Key == key {
			// Overwrite in place unless the existing entry is from the
			// current generation and deeper than the new depth.
			if e.Age != tt.age || depth >= int(e.Depth) {
				victim = e
			} else {
				return
			}
			break
		}
		quality := tt.quality(e)
		if quality < worstQuality {
			worstQuality = quality
			victim = e
		}
	}

	victim.Key = key
	victim.BestMove = bestMove
	victim.Score = int32(score)
	victim.Depth = int8(depth)
	victim.Flag = flag
	victim.Age = tt.age
	victim.used = true
}

// quality = depth - 4*generation_distance; an unused slot is always worst.
func (tt *TranspositionTable) quality(e *TTEntry) int {
	if !e.used {
		return -(1 << 30)
	}
	genDistance := int(tt.age) - int(e.Age)
	if genDistance < 0 {
		genDistance += 256
	}
	return int(e.Depth) - genDistance*4
}

// NewSearch increments the generation counter used to age entries.
func (tt *TranspositionTable) NewSearch() {
	tt.age++
}

// Clear zeros the table.
func (tt *TranspositionTable) Clear() {
	for i := range tt.clusters {
		tt.clusters[i] = ttCluster{}
	}
	tt.age = 0
	tt.hits = 0
	tt.probes = 0
}

// HashFull reports occupancy in per-mille, sampling the first 1000 clusters.
func (tt *TranspositionTable) HashFull() int {
	sampleSize := uint64(1000)
	if sampleSize > tt.count {
		sampleSize = tt.count
	}

	used := 0
	total := 0
	for i := uint64(0); i < sampleSize; i++ {
		for _, e := range tt.clusters[i].entries {
			total++
			if e.used && e.Age == tt.age {
				used++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return (used * 1000) / total
}

// HitRate returns the cache hit rate as a percentage.
func (tt *TranspositionTable) HitRate() float64 {
	if tt.probes == 0 {
		return 0
	}
	return float64(tt.hits) / float64(tt.probes) * 100
}

// Clusters returns the number of clusters in the table.
func (tt *TranspositionTable) Clusters() uint64 {
	return tt.count
}

// AdjustScoreFromTT converts a mate score stored relative to the TT node
// back to a score relative to the root (ply-adjusted).
func AdjustScoreFromTT(score int, ply int) int {
	if score > MateThreshold {
		return score - ply
	}
	if score < -MateThreshold {
		return score + ply
	}
	return score
}

// AdjustScoreToTT converts a root-relative mate score into one relative to
// the node being stored, so it is meaningful when probed at a different ply.
func AdjustScoreToTT(score int, ply int) int {
	if score > MateThreshold {
		return score + ply
	}
	if score < -MateThreshold {
		return score - ply
	}
	return score
}

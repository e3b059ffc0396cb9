package engine

import (
	"math"

	"github.com/okkaok/solaris/internal/board"
)

// Move ordering score bands (§4.3). Higher score searches first.
const (
	ttMoveScore  = 100000000
	pvHintScore  = 1000000
	killerScore1 = 10000
	killerScore2 = 8000
)

// MoveOrderer scores and sorts moves for the search. It is otherwise
// stateless; the killer and history tables are owned by it but supplied
// fresh data by the search engine on every cutoff.
type MoveOrderer struct {
	// killers[ply] holds the two most recent quiet cutoff moves at that ply.
	// Slot 0 is the most recent; insertion shifts slot 0 into slot 1.
	killers [MaxPly][2]board.Move

	// history[side][from][to], incremented by depth^2 on quiet cutoffs.
	history [2][64][64]int
}

// NewMoveOrderer creates a new move orderer.
func NewMoveOrderer() *MoveOrderer {
	return &MoveOrderer{}
}

// Clear resets killers and zeroes the history table for a new game.
func (mo *MoveOrderer) Clear() {
	for i := range mo.killers {
		mo.killers[i][0] = board.NoMove
		mo.killers[i][1] = board.NoMove
	}
	mo.history = [2][64][64]int{}
}

func (mo *MoveOrderer) ageHistory() {
	for side := range mo.history {
		for from := range mo.history[side] {
			for to := range mo.history[side][from] {
				mo.history[side][from][to] /= 2
			}
		}
	}
}

// ScoreMoves assigns an ordering score to every move in moves (§4.3),
// writing into the caller-owned scores buffer (len(scores) >= moves.Len())
// so the hot path never allocates a fresh slice per node. phase is the
// evaluator's [0,1] game phase at pos.
func (mo *MoveOrderer) ScoreMoves(pos *board.Position, moves *board.MoveList, ply int, ttMove, pvHint board.Move, phase float64, scores []int) {
	side := int(pos.SideToMove)

	for i := 0; i < moves.Len(); i++ {
		scores[i] = mo.scoreMove(pos, moves.Get(i), ply, ttMove, pvHint, phase, side)
	}
}

func (mo *MoveOrderer) scoreMove(pos *board.Position, m board.Move, ply int, ttMove, pvHint board.Move, phase float64, side int) int {
	if m == ttMove {
		return ttMoveScore
	}
	if m == pvHint {
		return pvHintScore
	}
	if m == mo.killers[ply][0] {
		return killerScore1
	}
	if m == mo.killers[ply][1] {
		return killerScore2
	}

	from, to := m.From(), m.To()
	phaseFactor2 := math.Pow(phase+1, 4)

	score := 0.0

	if m.IsCapture(pos) {
		attacker := pos.PieceAt(from).Type()
		var victim board.PieceType
		if m.IsEnPassant() {
			victim = board.Pawn
		} else {
			victim = pos.PieceAt(to).Type()
		}
		mvvLva := 10*float64(pieceValues[victim]) - 5*float64(pieceValues[attacker])
		score += mvvLva * phaseFactor2
	} else {
		score += float64(mo.history[side][from][to])
	}

	if phase > 0.6 && pos.GivesCheck(m) {
		score += float64(PawnValue) * (5*phase + 1)
	}

	movingPiece := pos.PieceAt(from)
	if movingPiece.Type() == board.Pawn {
		score += float64(PawnValue) * math.Pow(phase+1, 4)
		if m.IsPromotion() {
			score += 5 * float64(pieceValues[m.Promotion()])
		}
	}

	if movingPiece.Type() == board.King && phase > 0.5 {
		score += math.Pow(20, 3*phase)
	}

	if movingPiece.Type() != board.Pawn {
		enemyPawns := pos.Pieces[pos.SideToMove.Other()][board.Pawn]
		if board.PawnAttacks(to, pos.SideToMove) & enemyPawns != 0 {
			score -= 5*float64(pieceValues[movingPiece.Type()]) + 5*float64(PawnValue)
		}
	}

	return int(score)
}

// SortMoves sorts moves by their scores, descending. A selection sort is
// adequate: move lists rarely exceed a few dozen entries.
func SortMoves(moves *board.MoveList, scores []int) {
	n := moves.Len()
	for i := 0; i < n-1; i++ {
		best := i
		for j := i + 1; j < n; j++ {
			if scores[j] > scores[best] {
				best = j
			}
		}
		if best != i {
			moves.Swap(i, best)
			scores[i], scores[best] = scores[best], scores[i]
		}
	}
}

// PickMove selects the best remaining move starting at index and swaps it
// into place, allowing lazy incremental sorting during the move loop.
func PickMove(moves *board.MoveList, scores []int, index int) {
	best := index
	for j := index + 1; j < moves.Len(); j++ {
		if scores[j] > scores[best] {
			best = j
		}
	}
	if best != index {
		moves.Swap(index, best)
		scores[index], scores[best] = scores[best], scores[index]
	}
}

// UpdateKillers records m as the newest killer at ply, shifting the
// previous slot-0 killer into slot 1 (§3 Killer Table invariant).
func (mo *MoveOrderer) UpdateKillers(m board.Move, ply int) {
	if ply >= MaxPly || mo.killers[ply][0] == m {
		return
	}
	mo.killers[ply][1] = mo.killers[ply][0]
	mo.killers[ply][0] = m
}

// UpdateHistory adds depth^2 to the history score for (side, from, to) on a
// quiet beta cutoff, halving the whole table if it would overflow.
func (mo *MoveOrderer) UpdateHistory(side board.Color, m board.Move, depth int) {
	from, to := m.From(), m.To()
	bonus := depth * depth
	mo.history[side][from][to] += bonus
	if mo.history[side][from][to] > 400000 {
		mo.ageHistory()
	}
}

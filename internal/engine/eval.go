package engine

import "github.com/okkaok/solaris/internal/board"

// Piece values in centipawns (§4.1.1).
const (
	PawnValue   = 100
	KnightValue = 325
	BishopValue = 350
	RookValue   = 500
	QueenValue  = 900
)

var pieceValues = [7]int{PawnValue, KnightValue, BishopValue, RookValue, QueenValue, 0, 0}

// Phase weights and the fully-loaded phase total (§4.1 Phase).
const (
	knightPhaseWeight = 1
	bishopPhaseWeight = 1
	rookPhaseWeight   = 2
	queenPhaseWeight  = 4
)

const totalPhase = 4*knightPhaseWeight + 4*bishopPhaseWeight + 4*rookPhaseWeight + 2*queenPhaseWeight

// Piece-square tables, White's perspective, written as the board is drawn:
// the first row is rank 8 (index 0 is a8). White therefore looks up the
// mirrored square and Black the square itself.
// Midgame tables reward development and king safety; endgame tables favor
// centralization (rooks/queens stay flat, pawns and king diverge sharply).
var pawnPSTMg = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	50, 50, 50, 50, 50, 50, 50, 50,
	10, 10, 20, 30, 30, 20, 10, 10,
	5, 5, 10, 25, 25, 10, 5, 5,
	0, 0, 0, 20, 20, 0, 0, 0,
	5, -5, -10, 0, 0, -10, -5, 5,
	5, 10, 10, -20, -20, 10, 10, 5,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var pawnPSTEg = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	80, 80, 80, 80, 80, 80, 80, 80,
	50, 50, 50, 50, 50, 50, 50, 50,
	20, 20, 20, 25, 25, 20, 20, 20,
	10, 10, 10, 15, 15, 10, 10, 10,
	5, 5, 5, 5, 5, 5, 5, 5,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var knightPSTMg = [64]int{
	-50, -40, -30, -30, -30, -30, -40, -50,
	-40, -20, 0, 0, 0, 0, -20, -40,
	-30, 0, 10, 15, 15, 10, 0, -30,
	-30, 5, 15, 20, 20, 15, 5, -30,
	-30, 0, 15, 20, 20, 15, 0, -30,
	-30, 5, 10, 15, 15, 10, 5, -30,
	-40, -20, 0, 5, 5, 0, -20, -40,
	-50, -40, -30, -30, -30, -30, -40, -50,
}

var knightPSTEg = [64]int{
	-40, -30, -20, -20, -20, -20, -30, -40,
	-30, -10, 0, 0, 0, 0, -10, -30,
	-20, 0, 10, 10, 10, 10, 0, -20,
	-20, 5, 10, 15, 15, 10, 5, -20,
	-20, 0, 10, 15, 15, 10, 0, -20,
	-20, 5, 5, 10, 10, 5, 5, -20,
	-30, -10, 0, 5, 5, 0, -10, -30,
	-40, -30, -20, -20, -20, -20, -30, -40,
}

var bishopPSTMg = [64]int{
	-20, -10, -10, -10, -10, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 10, 10, 5, 0, -10,
	-10, 5, 5, 10, 10, 5, 5, -10,
	-10, 0, 10, 10, 10, 10, 0, -10,
	-10, 10, 10, 10, 10, 10, 10, -10,
	-10, 5, 0, 0, 0, 0, 5, -10,
	-20, -10, -10, -10, -10, -10, -10, -20,
}

var bishopPSTEg = [64]int{
	-15, -10, -10, -10, -10, -10, -10, -15,
	-10, 5, 0, 0, 0, 0, 5, -10,
	-10, 0, 10, 10, 10, 10, 0, -10,
	-10, 0, 10, 15, 15, 10, 0, -10,
	-10, 0, 10, 15, 15, 10, 0, -10,
	-10, 0, 10, 10, 10, 10, 0, -10,
	-10, 5, 0, 0, 0, 0, 5, -10,
	-15, -10, -10, -10, -10, -10, -10, -15,
}

var rookPSTMg = [64]int{
	0, 0, 0, 0, 0, 0, 0, 0,
	5, 10, 10, 10, 10, 10, 10, 5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	0, 0, 0, 5, 5, 0, 0, 0,
}

var rookPSTEg = [64]int{
	5, 5, 5, 5, 5, 5, 5, 5,
	10, 10, 10, 10, 10, 10, 10, 10,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
}

var queenPSTMg = [64]int{
	-20, -10, -10, -5, -5, -10, -10, -20,
	-10, 0, 0, 0, 0, 0, 0, -10,
	-10, 0, 5, 5, 5, 5, 0, -10,
	-5, 0, 5, 5, 5, 5, 0, -5,
	0, 0, 5, 5, 5, 5, 0, -5,
	-10, 5, 5, 5, 5, 5, 0, -10,
	-10, 0, 5, 0, 0, 0, 0, -10,
	-20, -10, -10, -5, -5, -10, -10, -20,
}

var queenPSTEg = [64]int{
	-10, -5, -5, -5, -5, -5, -5, -10,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-5, 0, 5, 5, 5, 5, 0, -5,
	-5, 0, 5, 10, 10, 5, 0, -5,
	-5, 0, 5, 10, 10, 5, 0, -5,
	-5, 0, 5, 5, 5, 5, 0, -5,
	-5, 0, 0, 0, 0, 0, 0, -5,
	-10, -5, -5, -5, -5, -5, -5, -10,
}

var kingPSTMg = [64]int{
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-30, -40, -40, -50, -50, -40, -40, -30,
	-20, -30, -30, -40, -40, -30, -30, -20,
	-10, -20, -20, -20, -20, -20, -20, -10,
	20, 20, 0, 0, 0, 0, 20, 20,
	20, 30, 10, 0, 0, 10, 30, 20,
}

var kingPSTEg = [64]int{
	-50, -40, -30, -20, -20, -30, -40, -50,
	-30, -20, -10, 0, 0, -10, -20, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 30, 40, 40, 30, -10, -30,
	-30, -10, 20, 30, 30, 20, -10, -30,
	-30, -30, 0, 0, 0, 0, -30, -30,
	-50, -30, -30, -30, -30, -30, -30, -50,
}

var pstMg = [6]*[64]int{&pawnPSTMg, &knightPSTMg, &bishopPSTMg, &rookPSTMg, &queenPSTMg, &kingPSTMg}
var pstEg = [6]*[64]int{&pawnPSTEg, &knightPSTEg, &bishopPSTEg, &rookPSTEg, &queenPSTEg, &kingPSTEg}

// Passed-pawn bonus by rank from the pawn's own perspective (rank 2..7).
var passedPawnBonus = [8]int{0, 10, 20, 40, 70, 120, 200, 0}

const connectedPawnBonus = 12

// Pawn structure penalties/bonuses (§4.1.4).
const (
	doubledPawnPenalty  = -12
	isolatedPawnPenalty = -15
	backwardPawnPenalty = -10
)

// centerDistance[sq] is the Chebyshev distance from sq to the nearest of
// the four center squares (d4/e4/d5/e5), used by the mop-up term.
var centerDistance [64]int

// manhattanDistance[a][b] is the Manhattan distance between two squares,
// used by the mop-up term to push/pull kings.
var manhattanDistance [64][64]int

func init() {
	for sq := board.A1; sq <= board.H8; sq++ {
		f, r := sq.File(), sq.Rank()
		df := min4(abs4(f-3), abs4(f-4))
		dr := min4(abs4(r-3), abs4(r-4))
		if df > dr {
			centerDistance[sq] = df
		} else {
			centerDistance[sq] = dr
		}
	}
	for a := board.A1; a <= board.H8; a++ {
		for b := board.A1; b <= board.H8; b++ {
			manhattanDistance[a][b] = abs4(a.File()-b.File()) + abs4(a.Rank()-b.Rank())
		}
	}
}

func abs4(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func min4(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Phase returns the game phase in [0,1]: 0 is the opening (full material),
// 1 is a late endgame (little non-pawn material left).
func Phase(pos *board.Position) float64 {
	phase := totalPhase
	phase -= pos.Pieces[board.White][board.Knight].PopCount() * knightPhaseWeight
	phase -= pos.Pieces[board.Black][board.Knight].PopCount() * knightPhaseWeight
	phase -= pos.Pieces[board.White][board.Bishop].PopCount() * bishopPhaseWeight
	phase -= pos.Pieces[board.Black][board.Bishop].PopCount() * bishopPhaseWeight
	phase -= pos.Pieces[board.White][board.Rook].PopCount() * rookPhaseWeight
	phase -= pos.Pieces[board.Black][board.Rook].PopCount() * rookPhaseWeight
	phase -= pos.Pieces[board.White][board.Queen].PopCount() * queenPhaseWeight
	phase -= pos.Pieces[board.Black][board.Queen].PopCount() * queenPhaseWeight
	if phase < 0 {
		phase = 0
	}
	normalized := float64(phase*256+totalPhase/2) / float64(totalPhase*256)
	if normalized > 1 {
		normalized = 1
	}
	return normalized
}

// Evaluate returns the static score of pos from the side-to-move's
// perspective. It is a pure function of the position: no caller state is
// read or mutated.
func Evaluate(pos *board.Position) int {
	phase := Phase(pos)

	material, mg, eg := evaluateMaterialAndPST(pos)
	mobility := evaluateMobility(pos)
	pawns := evaluatePawnStructure(pos)

	tapered := int(float64(mg)*(1-phase) + float64(eg)*phase)
	score := material + tapered + mobility + pawns
	score += evaluateMopUp(pos, phase, score)

	if pos.SideToMove == board.Black {
		score = -score
	}
	return score
}

func evaluateMaterialAndPST(pos *board.Position) (material, mg, eg int) {
	for pt := board.Pawn; pt <= board.King; pt++ {
		wbb := pos.Pieces[board.White][pt]
		for wbb != 0 {
			sq := wbb.PopLSB()
			if pt != board.King {
				material += pieceValues[pt]
			}
			mg += pstMg[pt][sq.Mirror()]
			eg += pstEg[pt][sq.Mirror()]
		}
		bbb := pos.Pieces[board.Black][pt]
		for bbb != 0 {
			sq := bbb.PopLSB()
			if pt != board.King {
				material -= pieceValues[pt]
			}
			mg -= pstMg[pt][sq]
			eg -= pstEg[pt][sq]
		}
	}
	return
}

// evaluateMobility scores popcount of the union of attack bitboards of
// knight/bishop/rook/queen for each side (doubly-attacked squares count
// once, per §9's determinism note).
func evaluateMobility(pos *board.Position) int {
	occ := pos.AllOccupied
	white := unionAttacks(pos, board.White, occ)
	black := unionAttacks(pos, board.Black, occ)
	return white.PopCount() - black.PopCount()
}

func unionAttacks(pos *board.Position, us board.Color, occ board.Bitboard) board.Bitboard {
	var attacks board.Bitboard
	knights := pos.Pieces[us][board.Knight]
	for knights != 0 {
		attacks |= board.KnightAttacks(knights.PopLSB())
	}
	bishops := pos.Pieces[us][board.Bishop]
	for bishops != 0 {
		attacks |= board.BishopAttacks(bishops.PopLSB(), occ)
	}
	rooks := pos.Pieces[us][board.Rook]
	for rooks != 0 {
		attacks |= board.RookAttacks(rooks.PopLSB(), occ)
	}
	queens := pos.Pieces[us][board.Queen]
	for queens != 0 {
		attacks |= board.QueenAttacks(queens.PopLSB(), occ)
	}
	return attacks
}

// evaluatePawnStructure scores doubled/isolated/backward penalties and
// connected/passed bonuses, White minus Black.
func evaluatePawnStructure(pos *board.Position) int {
	return pawnStructureScore(pos, board.White) - pawnStructureScore(pos, board.Black)
}

func pawnStructureScore(pos *board.Position, us board.Color) int {
	them := us.Other()
	ourPawns := pos.Pieces[us][board.Pawn]
	theirPawns := pos.Pieces[them][board.Pawn]

	var fileCount [8]int
	sq := ourPawns
	for sq != 0 {
		fileCount[sq.PopLSB().File()]++
	}

	score := 0
	pawns := ourPawns
	for pawns != 0 {
		p := pawns.PopLSB()
		file := p.File()

		if fileCount[file] > 1 {
			score += doubledPawnPenalty
		}

		hasNeighborFile := (file > 0 && fileCount[file-1] > 0) || (file < 7 && fileCount[file+1] > 0)
		if !hasNeighborFile {
			score += isolatedPawnPenalty
		} else if isBackward(pos, p, us, theirPawns) {
			score += backwardPawnPenalty
		}

		if isConnected(ourPawns, p, us) {
			score += connectedPawnBonus
		}

		if isPassedPawn(p, us, theirPawns) {
			rank := p.RelativeRank(us)
			bonus := passedPawnBonus[rank]
			if isConnected(ourPawns, p, us) {
				bonus += connectedPawnBonus
			}
			score += bonus
		}
	}
	return score
}

// isBackward: no friendly pawn on an adjacent file behind this pawn, and
// an enemy pawn already controls the square in front of it.
func isBackward(pos *board.Position, p board.Square, us board.Color, theirPawns board.Bitboard) bool {
	file, rank := p.File(), p.Rank()
	for _, nf := range []int{file - 1, file + 1} {
		if nf < 0 || nf > 7 {
			continue
		}
		friendly := pos.Pieces[us][board.Pawn]
		for friendly != 0 {
			fsq := friendly.PopLSB()
			if fsq.File() != nf {
				continue
			}
			if us == board.White && fsq.Rank() <= rank {
				return false
			}
			if us == board.Black && fsq.Rank() >= rank {
				return false
			}
		}
	}
	var stopSq board.Square
	if us == board.White {
		stopSq = board.NewSquare(file, rank+1)
	} else {
		stopSq = board.NewSquare(file, rank-1)
	}
	return board.PawnAttacks(stopSq, us) & theirPawns != 0
}

func isConnected(ourPawns board.Bitboard, p board.Square, us board.Color) bool {
	return board.PawnAttacks(p, us.Other()) & ourPawns != 0
}

func isPassedPawn(p board.Square, us board.Color, theirPawns board.Bitboard) bool {
	file, rank := p.File(), p.Rank()
	for f := file - 1; f <= file+1; f++ {
		if f < 0 || f > 7 {
			continue
		}
		enemy := theirPawns
		for enemy != 0 {
			esq := enemy.PopLSB()
			if esq.File() != f {
				continue
			}
			if us == board.White && esq.Rank() > rank {
				return false
			}
			if us == board.Black && esq.Rank() < rank {
				return false
			}
		}
	}
	return true
}

// evaluateMopUp pushes the losing king to the edge and pulls the winning
// king toward it, scaled by phase; only active in lopsided late-game
// positions (§4.1.5). score is the White-perspective score so far.
func evaluateMopUp(pos *board.Position, phase float64, score int) int {
	if abs4(score) <= 200 || phase <= 0.5 {
		return 0
	}

	winner, loser := board.White, board.Black
	if score < 0 {
		winner, loser = board.Black, board.White
	}

	winnerKing := pos.KingSquare[winner]
	loserKing := pos.KingSquare[loser]

	mopUp := 10*centerDistance[loserKing] + 4*(14-manhattanDistance[winnerKing][loserKing])
	mopUp = int(float64(mopUp) * phase)

	if winner == board.Black {
		mopUp = -mopUp
	}
	return mopUp
}

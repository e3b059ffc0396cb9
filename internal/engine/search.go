package engine

import (
	"math"

	"go.uber.org/atomic"

	"github.com/okkaok/solaris/internal/board"
)

// PVTable stores the principal variation collected during a search.
type PVTable struct {
	length [MaxPly]int
	moves  [MaxPly][MaxPly]board.Move
}

// Line returns the PV rooted at ply 0 as a slice.
func (pv *PVTable) Line() []board.Move {
	out := make([]board.Move, pv.length[0])
	copy(out, pv.moves[0][:pv.length[0]])
	return out
}

// IterationReport carries one completed iteration's summary to the driver
// (§6 `info` line). Elapsed time and hashfull are not fields here: the
// caller, which owns the clock and the TT, passes them to the Reporter
// alongside the report.
type IterationReport struct {
	Depth    int
	SelDepth int
	Score    int
	IsMate   bool
	MateIn   int
	Nodes    uint64
	PV       []board.Move
}

// Searcher performs iterative-deepening principal-variation search with
// alpha-beta pruning over a single position (§4.5). It is single-threaded;
// cancellation is cooperative via the shared atomic flag.
type Searcher struct {
	pos     *board.Position
	tt      *TranspositionTable
	orderer *MoveOrderer

	nodes       atomic.Uint64
	currentDepth atomic.Int32
	selDepth    int
	cancel      *atomic.Bool

	pv     PVTable
	pvHint []board.Move // previous iteration's PV, used as an ordering hint

	undoStack [MaxPly]board.UndoInfo

	moveLists    [MaxPly]board.MoveList
	captureLists [MaxPly]board.MoveList
	scoreBuf     [MaxPly][256]int
}

// NewSearcher creates a new searcher sharing the given transposition table
// and cancellation flag with the owning engine.
func NewSearcher(tt *TranspositionTable, cancel *atomic.Bool) *Searcher {
	return &Searcher{
		tt:      tt,
		orderer: NewMoveOrderer(),
		cancel:  cancel,
	}
}

// Orderer exposes the move orderer so the engine can clear it between games.
func (s *Searcher) Orderer() *MoveOrderer { return s.orderer }

// Nodes returns the number of nodes searched so far. Safe to call from the
// watcher goroutine while a search is in flight.
func (s *Searcher) Nodes() uint64 { return s.nodes.Load() }

// CurrentDepth returns the iterative-deepening depth currently in progress.
// Safe to call from the watcher goroutine while a search is in flight.
func (s *Searcher) CurrentDepth() int { return int(s.currentDepth.Load()) }

// ASP is the aspiration-window ladder used by iterative deepening (§4.5.1).
var ASP = [...]int{50, 97, 307, 965, 3036, 9546, Inf}

// IterativeDeepen runs iterative deepening from depth 1 until cancelled or
// maxDepth is reached, invoking report after every completed iteration.
// It returns the best move, ponder move (may be NoMove), and whether any
// iteration completed at all.
func (s *Searcher) IterativeDeepen(pos *board.Position, maxDepth int, canSearchDeeper func(depth int, nodes uint64) bool, report func(IterationReport)) (bestMove, ponderMove board.Move, completed bool) {
	s.pos = pos
	s.nodes.Store(0)
	s.selDepth = 0
	s.pvHint = nil

	bestScore := 0
	if maxDepth <= 0 || maxDepth > MaxPly {
		maxDepth = MaxPly
	}

	for depth := 1; depth <= maxDepth; depth++ {
		if s.cancel.Load() {
			break
		}
		if depth > 1 && !canSearchDeeper(depth, s.nodes.Load()) {
			break
		}
		s.currentDepth.Store(int32(depth))

		alpha, beta := -Inf, Inf
		if depth > 1 {
			alpha = bestScore - ASP[0]
			beta = bestScore + ASP[0]
		}

		score := s.pvSearch(depth, 0, alpha, beta)
		failCount := 0
		for (score <= alpha || score >= beta) && score != Invalid {
			if score <= alpha {
				alpha -= ASP[failCount]
			}
			if score >= beta {
				beta += ASP[failCount]
			}
			if failCount < len(ASP)-1 {
				failCount++
			}
			score = s.pvSearch(depth, 0, alpha, beta)
		}

		if s.cancel.Load() || score == Invalid {
			break
		}

		bestScore = score
		line := s.pv.Line()
		if len(line) > 0 {
			bestMove = line[0]
		}
		if len(line) > 1 {
			ponderMove = line[1]
		} else {
			ponderMove = board.NoMove
		}
		s.pvHint = line
		completed = true

		if report != nil {
			report(s.buildReport(depth, bestScore, line))
		}

		if isMateScore(bestScore) {
			pliesToMate := Mate - absInt(bestScore)
			if pliesToMate < depth {
				break
			}
		}
	}

	return bestMove, ponderMove, completed
}

func (s *Searcher) buildReport(depth, score int, pv []board.Move) IterationReport {
	r := IterationReport{Depth: depth, SelDepth: s.selDepth, Score: score, Nodes: s.nodes.Load(), PV: pv}
	if isMateScore(score) {
		r.IsMate = true
		plies := Mate - absInt(score)
		mateIn := (plies + 1) / 2
		if score < 0 {
			mateIn = -mateIn
		}
		r.MateIn = mateIn
	}
	return r
}

func isMateScore(score int) bool {
	return absInt(score) > MateThreshold
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func (s *Searcher) pvHintAt(ply int) board.Move {
	if ply < len(s.pvHint) {
		return s.pvHint[ply]
	}
	return board.NoMove
}

// pvSearch implements §4.5.2: full-window principal-variation search that
// collects the PV line for its subtree.
func (s *Searcher) pvSearch(depth, ply, alpha, beta int) int {
	if s.cancel.Load() {
		return Invalid
	}

	s.nodes.Inc()
	s.pv.length[ply] = ply
	if ply > s.selDepth {
		s.selDepth = ply
	}

	if s.pos.IsThreefoldRepetition() || s.pos.IsInsufficientMaterial() || s.pos.HalfMoveClock >= 100 {
		return 0
	}

	alpha = maxInt(alpha, -Mate+ply)
	beta = minInt(beta, Mate-ply)
	if alpha >= beta {
		return alpha
	}

	if depth <= 0 {
		return s.quiescence(ply, alpha, beta)
	}

	var ttMove board.Move
	if ply > 0 {
		if entry, found := s.tt.Probe(s.pos.Hash); found {
			ttMove = entry.BestMove
			if int(entry.Depth) >= depth {
				score := AdjustScoreFromTT(int(entry.Score), ply)
				switch entry.Flag {
				case TTExact:
					return score
				case TTLowerBound:
					if score > alpha {
						alpha = score
					}
				case TTUpperBound:
					if score < beta {
						beta = score
					}
				}
				if alpha >= beta {
					return score
				}
			}
		}
	}

	inCheck := s.pos.InCheck()
	phase := Phase(s.pos)

	if !inCheck && phase < 0.8 && depth > 3 && ply > 0 && s.pos.HasNonPawnMaterial() {
		R := 3
		if depth > 6 {
			R = 4
		}
		nullUndo := s.pos.MakeNullMove()
		score := -s.zw(depth-R-1, ply+1, -beta, -(beta - 1))
		s.pos.UnmakeNullMove(nullUndo)
		if score == Invalid {
			return Invalid
		}
		if score >= beta {
			return score
		}
	}

	moves := s.pos.GenerateLegalMovesInto(&s.moveLists[ply])
	if moves.Len() == 0 {
		if inCheck {
			return -(Mate - ply)
		}
		return 0
	}

	pvHint := s.pvHintAt(ply)
	scores := s.scoreBuf[ply][:moves.Len()]
	s.orderer.ScoreMoves(s.pos, moves, ply, ttMove, pvHint, phase, scores)

	bestScore := -Inf
	bestMove := board.NoMove
	flag := TTUpperBound
	side := s.pos.SideToMove

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		s.undoStack[ply] = s.pos.MakeMove(move)
		if !s.undoStack[ply].Valid {
			s.pos.UnmakeMove(move, s.undoStack[ply])
			continue
		}
		childInCheck := s.pos.InCheck()

		var score int
		if i == 0 {
			childDepth := depth - 1
			if childInCheck {
				childDepth++
			}
			score = -s.pvSearch(childDepth, ply+1, -beta, -alpha)
		} else {
			childDepth := depth - 1
			isQuiet := move.IsQuiet(s.pos)
			isKiller := move == s.orderer.killers[ply][0] || move == s.orderer.killers[ply][1]
			if depth > 3 && isQuiet && !isKiller && !inCheck {
				reduction := int(math.Sqrt(float64(i)))
				childDepth = depth - 1 - reduction
				if childDepth < 0 {
					childDepth = 0
				}
			}
			score = -s.zw(childDepth, ply+1, -alpha-1, -alpha)
			if score != Invalid && score > alpha && score < beta {
				fullDepth := depth - 1
				if childInCheck {
					fullDepth++
				}
				score = -s.pvSearch(fullDepth, ply+1, -beta, -alpha)
			}
		}

		s.pos.UnmakeMove(move, s.undoStack[ply])

		if s.cancel.Load() || score == Invalid {
			return Invalid
		}

		if score >= beta {
			s.tt.Store(s.pos.Hash, depth, AdjustScoreToTT(score, ply), TTLowerBound, move)
			if move.IsQuiet(s.pos) {
				s.orderer.UpdateKillers(move, ply)
				s.orderer.UpdateHistory(side, move, depth)
			}
			return score
		}

		if score > bestScore {
			bestScore = score
			bestMove = move

			if score > alpha {
				alpha = score
				flag = TTExact

				s.pv.moves[ply][ply] = move
				for j := ply + 1; j < s.pv.length[ply+1]; j++ {
					s.pv.moves[ply][j] = s.pv.moves[ply+1][j]
				}
				s.pv.length[ply] = s.pv.length[ply+1]
			}
		}
	}

	s.tt.Store(s.pos.Hash, depth, AdjustScoreToTT(bestScore, ply), flag, bestMove)
	return bestScore
}

// zw implements §4.5.3: a zero-window search used by pv_search's non-PV
// moves. No PV is collected, no check extension is applied.
func (s *Searcher) zw(depth, ply, alpha, beta int) int {
	if s.cancel.Load() {
		return Invalid
	}

	s.nodes.Inc()
	if ply > s.selDepth {
		s.selDepth = ply
	}

	if s.pos.IsThreefoldRepetition() || s.pos.IsInsufficientMaterial() || s.pos.HalfMoveClock >= 100 {
		return 0
	}

	alpha = maxInt(alpha, -Mate+ply)
	beta = minInt(beta, Mate-ply)
	if alpha >= beta {
		return alpha
	}

	if depth <= 0 {
		return s.quiescence(ply, alpha, beta)
	}

	var ttMove board.Move
	if entry, found := s.tt.Probe(s.pos.Hash); found {
		ttMove = entry.BestMove
		if int(entry.Depth) >= depth {
			score := AdjustScoreFromTT(int(entry.Score), ply)
			switch entry.Flag {
			case TTExact:
				return score
			case TTLowerBound:
				if score >= beta {
					return score
				}
			case TTUpperBound:
				if score <= alpha {
					return score
				}
			}
		}
	}

	inCheck := s.pos.InCheck()
	phase := Phase(s.pos)

	if !inCheck && phase < 0.8 && depth > 3 && s.pos.HasNonPawnMaterial() {
		R := 3
		if depth > 6 {
			R = 4
		}
		nullUndo := s.pos.MakeNullMove()
		score := -s.zw(depth-R-1, ply+1, -beta, -(beta - 1))
		s.pos.UnmakeNullMove(nullUndo)
		if score == Invalid {
			return Invalid
		}
		if score >= beta {
			return score
		}
	}

	if ply >= MaxPly {
		return Evaluate(s.pos)
	}
	moves := s.pos.GenerateLegalMovesInto(&s.moveLists[ply])
	if moves.Len() == 0 {
		if inCheck {
			return -(Mate - ply)
		}
		return 0
	}

	scores := s.scoreBuf[ply][:moves.Len()]
	s.orderer.ScoreMoves(s.pos, moves, ply, ttMove, board.NoMove, phase, scores)
	side := s.pos.SideToMove

	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		undo := s.pos.MakeMove(move)
		if !undo.Valid {
			s.pos.UnmakeMove(move, undo)
			continue
		}

		childDepth := depth - 1
		isQuiet := move.IsQuiet(s.pos)
		isKiller := move == s.orderer.killers[ply][0] || move == s.orderer.killers[ply][1]
		if depth > 3 && isQuiet && !isKiller && !inCheck {
			reduction := int(math.Sqrt(float64(i)))
			childDepth = depth - 1 - reduction
			if childDepth < 0 {
				childDepth = 0
			}
		}

		score := -s.zw(childDepth, ply+1, -beta, -alpha)
		s.pos.UnmakeMove(move, undo)

		if s.cancel.Load() || score == Invalid {
			return Invalid
		}

		if score >= beta {
			s.tt.Store(s.pos.Hash, depth, AdjustScoreToTT(score, ply), TTLowerBound, move)
			if move.IsQuiet(s.pos) {
				s.orderer.UpdateKillers(move, ply)
				s.orderer.UpdateHistory(side, move, depth)
			}
			return score
		}
	}

	return alpha
}

// quiescence implements §4.5.4: capture/promotion-only search used once
// the main search bottoms out at depth <= 0. quiescenceDepth is the
// sentinel depth (§3 TT Entry: "depth ... may be 0 for quiescence") TT
// entries are probed and stored at from this function.
const deltaMarginBase = 200
const quiescenceDepth = 0

func (s *Searcher) quiescence(ply, alpha, beta int) int {
	if s.cancel.Load() {
		return Invalid
	}
	s.nodes.Inc()
	if ply > s.selDepth {
		s.selDepth = ply
	}

	if s.pos.IsInsufficientMaterial() {
		return 0
	}

	if ply >= MaxPly {
		return Evaluate(s.pos)
	}

	origAlpha := alpha

	var ttMove board.Move
	if entry, found := s.tt.Probe(s.pos.Hash); found {
		ttMove = entry.BestMove
		if int(entry.Depth) >= quiescenceDepth {
			score := AdjustScoreFromTT(int(entry.Score), ply)
			switch entry.Flag {
			case TTExact:
				return score
			case TTLowerBound:
				if score >= beta {
					return score
				}
			case TTUpperBound:
				if score <= alpha {
					return score
				}
			}
		}
	}

	standPat := Evaluate(s.pos)
	if standPat >= beta {
		s.tt.Store(s.pos.Hash, quiescenceDepth, AdjustScoreToTT(standPat, ply), TTLowerBound, ttMove)
		return standPat
	}
	if standPat > alpha {
		alpha = standPat
	}

	deltaMargin := deltaMarginBase + QueenValue

	moves := s.pos.GenerateCapturesInto(&s.captureLists[ply])
	inCheck := s.pos.InCheck()
	if moves.Len() == 0 {
		if inCheck {
			return -(Mate - ply)
		}
		return alpha
	}

	scores := s.scoreBuf[ply][:moves.Len()]
	s.orderer.ScoreMoves(s.pos, moves, ply, ttMove, board.NoMove, Phase(s.pos), scores)

	bestMove := board.NoMove
	for i := 0; i < moves.Len(); i++ {
		PickMove(moves, scores, i)
		move := moves.Get(i)

		if !inCheck {
			captureValue := 0
			if move.IsEnPassant() {
				captureValue = PawnValue
			} else if captured := s.pos.PieceAt(move.To()); captured != board.NoPiece {
				captureValue = pieceValues[captured.Type()]
			}
			if move.IsPromotion() {
				captureValue += pieceValues[move.Promotion()] - PawnValue
			}
			if standPat+deltaMargin+captureValue <= alpha {
				continue
			}
		}

		undo := s.pos.MakeMove(move)
		if !undo.Valid {
			s.pos.UnmakeMove(move, undo)
			continue
		}

		score := -s.quiescence(ply+1, -beta, -alpha)
		s.pos.UnmakeMove(move, undo)

		if s.cancel.Load() || score == Invalid {
			return Invalid
		}

		if score >= beta {
			s.tt.Store(s.pos.Hash, quiescenceDepth, AdjustScoreToTT(score, ply), TTLowerBound, move)
			return score
		}
		if score > alpha {
			alpha = score
			bestMove = move
		}
	}

	flag := TTUpperBound
	if alpha > origAlpha {
		flag = TTExact
	}
	s.tt.Store(s.pos.Hash, quiescenceDepth, AdjustScoreToTT(alpha, ply), flag, bestMove)
	return alpha
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

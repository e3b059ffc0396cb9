package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/okkaok/solaris/internal/board"
)

// recordingReporter captures every IterationInfo call and the final
// SearchComplete call, so tests can assert on monotonicity and convergence
// properties without parsing UCI text.
type recordingReporter struct {
	iterations []IterationReport
	best       board.Move
	ponder     board.Move
	done       bool
}

func (r *recordingReporter) IterationInfo(report IterationReport, elapsed time.Duration, nps uint64, hashFull int) {
	r.iterations = append(r.iterations, report)
}

func (r *recordingReporter) SearchComplete(best, ponder board.Move) {
	r.best = best
	r.ponder = ponder
	r.done = true
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(16, zerolog.Nop())
}

func TestSearchStartposDepth1(t *testing.T) {
	eng := newTestEngine(t)
	rep := &recordingReporter{}
	eng.Go(UCILimits{Depth: 1}, rep)

	require.True(t, rep.done)
	require.NotEqual(t, board.NoMove, rep.best)
	require.Len(t, rep.iterations, 1)
	assert.Equal(t, 1, rep.iterations[0].Depth)
	assert.InDelta(t, 0, rep.iterations[0].Score, 100)

	pos := board.NewPosition()
	legal := pos.GenerateLegalMoves()
	found := false
	for i := 0; i < legal.Len(); i++ {
		if legal.Get(i) == rep.best {
			found = true
			break
		}
	}
	assert.True(t, found, "bestmove %s is not among the 20 legal opening moves", rep.best)
}

func TestSearchMateInOne(t *testing.T) {
	pos, err := board.ParseFEN("6k1/5ppp/8/8/8/8/5PPP/R5K1 w - - 0 1")
	require.NoError(t, err)

	eng := newTestEngine(t)
	eng.SetPosition(pos)
	rep := &recordingReporter{}
	eng.Go(UCILimits{Depth: 4}, rep)

	require.True(t, rep.done)
	assert.Equal(t, "a1a8", rep.best.String())

	last := rep.iterations[len(rep.iterations)-1]
	assert.True(t, last.IsMate)
	assert.Equal(t, 1, last.MateIn)
}

func TestSearchThreefoldRepetitionDraw(t *testing.T) {
	pos, err := board.ParseFEN("8/8/1Q6/1p6/5k2/8/2P3P1/7K b - - 5 101")
	require.NoError(t, err)

	moves := []string{"f4g5", "h1h2", "g5f5", "h2h1", "f5g5", "h1h2", "g5f5", "h2h1", "f5g5"}
	for _, ms := range moves {
		m, err := board.ParseMove(ms, pos)
		require.NoError(t, err)
		pos.MakeMove(m)
	}
	require.True(t, pos.IsThreefoldRepetition())

	eng := newTestEngine(t)
	eng.SetPosition(pos)
	rep := &recordingReporter{}
	eng.Go(UCILimits{Depth: 1}, rep)

	require.True(t, rep.done)
	require.Len(t, rep.iterations, 1)
	assert.Equal(t, 0, rep.iterations[0].Score)
}

func TestSearchDepthZeroIsQuiescence(t *testing.T) {
	s := NewSearcher(NewTranspositionTable(1), atomic.NewBool(false))
	pos := board.NewPosition()
	s.pos = pos
	got := s.pvSearch(0, 0, -Inf, Inf)
	want := s.quiescence(0, -Inf, Inf)
	assert.Equal(t, want, got)
}

func TestInsufficientMaterialEvaluatesToZero(t *testing.T) {
	pos, err := board.ParseFEN("8/8/4k3/8/8/4K3/8/8 w - - 0 1")
	require.NoError(t, err)
	assert.True(t, pos.IsInsufficientMaterial())
	assert.Equal(t, 0, Evaluate(pos))
}

func TestTimeSliceCutoff(t *testing.T) {
	eng := newTestEngine(t)
	rep := &recordingReporter{}

	start := time.Now()
	eng.Go(UCILimits{MoveTime: 200 * time.Millisecond}, rep)
	elapsed := time.Since(start)

	require.True(t, rep.done)
	assert.NotEqual(t, board.NoMove, rep.best)
	assert.GreaterOrEqual(t, elapsed, 180*time.Millisecond)
	assert.LessOrEqual(t, elapsed, 700*time.Millisecond)
	assert.GreaterOrEqual(t, len(rep.iterations), 1)
}

func TestGoInfiniteStoppedImmediately(t *testing.T) {
	eng := newTestEngine(t)
	rep := &recordingReporter{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Go(UCILimits{Infinite: true}, rep)
	}()

	time.Sleep(20 * time.Millisecond)
	eng.Stop()
	<-done

	require.True(t, rep.done)
	assert.NotEqual(t, board.NoMove, rep.best)
}

func TestCancellationReturnsLastCompletedIteration(t *testing.T) {
	eng := newTestEngine(t)
	rep := &recordingReporter{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Go(UCILimits{Depth: MaxPly}, rep)
	}()

	time.Sleep(150 * time.Millisecond)
	eng.Stop()
	<-done

	require.True(t, rep.done)
	require.NotEmpty(t, rep.iterations)
	last := rep.iterations[len(rep.iterations)-1]
	assert.Equal(t, last.PV[0], rep.best)
}

func TestTranspositionTableStoreProbeRoundTrip(t *testing.T) {
	tt := NewTranspositionTable(1)
	key := uint64(0x1234_5678_9abc_def0)
	move := board.NewMove(board.E2, board.E4)

	tt.Store(key, 6, 123, TTExact, move)
	entry, found := tt.Probe(key)
	require.True(t, found)
	assert.Equal(t, move, entry.BestMove)
	assert.GreaterOrEqual(t, int(entry.Depth), 6)
}

func TestTranspositionTableClearThenProbeMisses(t *testing.T) {
	tt := NewTranspositionTable(1)
	key := uint64(0xdead_beef_cafe_f00d)
	tt.Store(key, 4, 10, TTExact, board.NewMove(board.D2, board.D4))
	tt.Clear()

	_, found := tt.Probe(key)
	assert.False(t, found)
}

func TestMakeUnmakeRoundTrip(t *testing.T) {
	pos := board.NewPosition()
	moves := pos.GenerateLegalMoves()
	require.Greater(t, moves.Len(), 0)

	before := *pos
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		undo := pos.MakeMove(m)
		pos.UnmakeMove(m, undo)

		assert.Equal(t, before.Hash, pos.Hash, "move %s broke hash round-trip", m)
		assert.Equal(t, before.CastlingRights, pos.CastlingRights, "move %s broke castling rights round-trip", m)
		assert.Equal(t, before.EnPassant, pos.EnPassant, "move %s broke en-passant round-trip", m)
		assert.Equal(t, before.HalfMoveClock, pos.HalfMoveClock, "move %s broke halfmove clock round-trip", m)
	}
}

func TestPerftStartpos(t *testing.T) {
	if testing.Short() {
		t.Skip("perft depth 5 is slow")
	}
	eng := newTestEngine(t)
	pos := board.NewPosition()
	assert.Equal(t, uint64(4_865_609), eng.Perft(pos, 5))
}

func TestPerftStartposShallow(t *testing.T) {
	eng := newTestEngine(t)
	pos := board.NewPosition()
	assert.Equal(t, uint64(20), eng.Perft(pos, 1))
	assert.Equal(t, uint64(400), eng.Perft(pos, 2))
	assert.Equal(t, uint64(8_902), eng.Perft(pos, 3))
}

func TestSetHashSizeRejectsOutOfRange(t *testing.T) {
	eng := newTestEngine(t)
	assert.Error(t, eng.SetHashSize(0))
	assert.Error(t, eng.SetHashSize(4096))
	assert.NoError(t, eng.SetHashSize(32))
}

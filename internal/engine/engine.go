package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/okkaok/solaris/internal/board"
)

// Sentinel errors for the error kinds named in §7. Internal invariant
// violations (e.g. a TT move that is no longer legal) are never surfaced
// as Go errors: the search silently treats the move as "not found" and
// continues with ordinary ordering.
var (
	ErrInvalidUCI        = errors.New("invalid uci input")
	ErrIllegalMove       = errors.New("illegal move")
	ErrResourceExhausted = errors.New("resource exhausted")
)

const defaultHashMB = 128

// Engine owns the single-threaded search core: transposition table, move
// orderer, time controller, and the searcher that ties them together. Only
// one search may be in flight at a time (§5).
type Engine struct {
	mu sync.Mutex

	tt       *TranspositionTable
	searcher *Searcher
	tc       *TimeController
	cancel   *atomic.Bool

	pos *board.Position

	searching  bool
	stopSearch context.CancelFunc

	logger zerolog.Logger
}

// NewEngine creates an engine with a transposition table sized ttSizeMB
// megabytes. logger defaults to zerolog.Nop() when the zero value is passed.
func NewEngine(ttSizeMB int, logger zerolog.Logger) *Engine {
	if ttSizeMB <= 0 {
		ttSizeMB = defaultHashMB
	}
	cancel := atomic.NewBool(false)
	tt := NewTranspositionTable(ttSizeMB)

	e := &Engine{
		tt:       tt,
		searcher: NewSearcher(tt, cancel),
		tc:       NewTimeController(cancel),
		cancel:   cancel,
		pos:      board.NewPosition(),
		logger:   logger,
	}
	e.logger.Debug().Int("hash_mb", ttSizeMB).Msg("engine created")
	return e
}

// SetPosition replaces the position the next `go` command will search from.
func (e *Engine) SetPosition(pos *board.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos = pos
}

// NewGame clears the transposition table and move-ordering heuristics
// (§6 `ucinewgame`). Must not be called while a search is in flight; the
// driver is responsible for cancelling first (§5).
func (e *Engine) NewGame() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tt.Clear()
	e.searcher.Orderer().Clear()
	e.logger.Info().Msg("new game: tt and heuristics cleared")
}

// SetHashSize resizes the transposition table. Returns ErrResourceExhausted
// (wrapped with context) if mb is unreasonably large, leaving the previous
// size untouched (§7 ResourceExhaustion).
func (e *Engine) SetHashSize(mb int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	const maxHashMB = 2048
	if mb < 1 || mb > maxHashMB {
		return pkgerrors.Wrapf(ErrResourceExhausted, "hash size %dMB out of range [1,%d]", mb, maxHashMB)
	}
	e.tt.SetSize(mb)
	e.logger.Info().Int("hash_mb", mb).Msg("hash resized")
	return nil
}

// Searching reports whether a search is currently in flight.
func (e *Engine) Searching() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.searching
}

// Go starts a search under limits and blocks until it completes or is
// cancelled, reporting progress to reporter. The caller should invoke it
// from its own goroutine if it needs to keep processing UCI input (`stop`,
// `ponderhit`) concurrently.
func (e *Engine) Go(limits UCILimits, reporter Reporter) {
	e.mu.Lock()
	if e.searching {
		e.mu.Unlock()
		return
	}
	e.searching = true
	pos := e.pos
	e.mu.Unlock()

	e.cancel.Store(false)
	e.tt.NewSearch()

	phase := Phase(pos)
	e.tc.Init(limits, int(pos.SideToMove), phase)

	ctx, cancelFn := context.WithCancel(context.Background())
	e.mu.Lock()
	e.stopSearch = cancelFn
	e.mu.Unlock()

	watch := e.tc.Watch(ctx, 100*time.Millisecond, e.searcher.CurrentDepth, e.searcher.Nodes)

	var best, ponder board.Move
	searchDone := make(chan struct{})
	go func() {
		defer close(searchDone)
		start := time.Now()
		b, p, _ := e.searcher.IterativeDeepen(pos, limits.Depth, e.tc.CanSearchDeeper, func(r IterationReport) {
			elapsed := time.Since(start)
			nps := uint64(0)
			if elapsed > 0 {
				nps = uint64(float64(r.Nodes) / elapsed.Seconds())
			}
			reporter.IterationInfo(r, elapsed, nps, e.tt.HashFull())
		})
		best, ponder = b, p
	}()

	<-searchDone
	cancelFn()
	_ = watch.Wait()

	e.mu.Lock()
	e.searching = false
	e.stopSearch = nil
	e.mu.Unlock()

	reporter.SearchComplete(best, ponder)
}

// Stop cancels any in-flight search. Idempotent.
func (e *Engine) Stop() {
	e.cancel.Store(true)
	e.mu.Lock()
	stop := e.stopSearch
	e.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// PonderHit rebases the time controller's clock to now (§4.4).
func (e *Engine) PonderHit() {
	e.tc.PonderHit(e.searcher.CurrentDepth(), e.searcher.Nodes())
}

// Evaluate returns the static evaluation of the current position, useful
// for the UCI `d` debug command.
func (e *Engine) Evaluate() int {
	e.mu.Lock()
	pos := e.pos
	e.mu.Unlock()
	return Evaluate(pos)
}

// Position returns the position currently loaded into the engine.
func (e *Engine) Position() *board.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

// TT exposes the transposition table, mainly for `hashfull` reporting and
// tests.
func (e *Engine) TT() *TranspositionTable {
	return e.tt
}

// Perft counts leaf nodes at depth below pos, for the UCI `perft` debug
// command. Every recursive step pairs MakeMove with UnmakeMove, so pos is
// left exactly as it was found.
func (e *Engine) Perft(pos *board.Position, depth int) uint64 {
	return perft(pos, depth)
}

func perft(p *board.Position, depth int) uint64 {
	if depth == 0 {
		return 1
	}
	moves := p.GenerateLegalMoves()
	if depth == 1 {
		return uint64(moves.Len())
	}
	var nodes uint64
	for i := 0; i < moves.Len(); i++ {
		m := moves.Get(i)
		undo := p.MakeMove(m)
		nodes += perft(p, depth-1)
		p.UnmakeMove(m, undo)
	}
	return nodes
}

package engine

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// UCILimits contains UCI time control parameters (§6 `go` options).
type UCILimits struct {
	Time      [2]time.Duration // wtime, btime (remaining time for each color)
	Inc       [2]time.Duration // winc, binc (increment per move)
	MovesToGo int              // moves until next time control (0 = sudden death)
	MoveTime  time.Duration    // fixed time per move (overrides other time controls)
	Depth     int              // maximum search depth (0 = unbounded)
	Nodes     uint64           // maximum nodes to search (0 = unbounded)
	Infinite  bool             // search until `stop`
	Ponder    bool             // pondering on the opponent's expected reply
}

// Time controller constants (§4.4).
const (
	timeMargin              = 20 * time.Millisecond
	minMoveTime              = 200 * time.Millisecond
	branchingFactorEstimate = 3.0
	suddenDeathCap          = 500 * time.Second
)

// TimeController tracks a single in-flight search's time budget and owns
// its cancellation token.
type TimeController struct {
	startTime     time.Time
	intervalStart time.Time
	lastInterval  time.Duration

	limits UCILimits
	us     int // 0 = White, 1 = Black; matches board.Color
	phase  float64

	allocated time.Duration
	pondering bool

	cancelled *atomic.Bool
}

// NewTimeController creates an idle time controller. cancel is the engine's
// shared cancellation flag, also read by the Searcher on its hot path.
func NewTimeController(cancel *atomic.Bool) *TimeController {
	return &TimeController{cancelled: cancel}
}

// Init starts the controller for a new search. phase is the evaluator's
// game-phase reading of the root position, used by the sudden-death budget
// formula.
func (tc *TimeController) Init(limits UCILimits, us int, phase float64) {
	tc.startTime = time.Now()
	tc.intervalStart = tc.startTime
	tc.lastInterval = 0
	tc.limits = limits
	tc.us = us
	tc.phase = phase
	tc.pondering = limits.Ponder
	tc.cancelled.Store(false)
	tc.allocated = tc.computeAllocated()
}

// computeAllocated implements the §4.4 `allocated` formula in milliseconds.
func (tc *TimeController) computeAllocated() time.Duration {
	if tc.limits.Infinite {
		return suddenDeathCap
	}
	if tc.limits.MoveTime > 0 {
		return tc.limits.MoveTime - timeMargin
	}

	own := tc.limits.Time[tc.us]
	opp := tc.limits.Time[tc.us^1]
	lead := clampDuration(time.Duration(float64(own-opp)*0.2), 0, 4000*time.Millisecond)

	if tc.limits.MovesToGo > 0 {
		per := own/time.Duration(tc.limits.MovesToGo) - timeMargin + lead
		return per
	}

	// Sudden death.
	phaseFactor := tc.phase
	if phaseFactor < 0.6 {
		phaseFactor = 0.6
	}
	t := clampDuration(time.Duration(float64(own)*phaseFactor), minMoveTime, suddenDeathCap)
	tMs := float64(t.Milliseconds())
	quad := -1e-7*tMs*tMs + 0.07*tMs + 100
	result := time.Duration(quad) * time.Millisecond
	if result < minMoveTime {
		result = minMoveTime
	}
	return result + lead
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// Elapsed returns the time elapsed since the search started.
func (tc *TimeController) Elapsed() time.Duration {
	return time.Since(tc.startTime)
}

// Allocated returns the per-move time budget computed at Init.
func (tc *TimeController) Allocated() time.Duration {
	return tc.allocated
}

// StartIteration marks the beginning of a new iterative-deepening depth, so
// EndIteration can record how long it took.
func (tc *TimeController) StartIteration() {
	tc.intervalStart = time.Now()
}

// EndIteration records the just-finished iteration's wall-clock duration,
// feeding the branching-factor estimate used by CanSearchDeeper.
func (tc *TimeController) EndIteration() {
	tc.lastInterval = time.Since(tc.intervalStart)
}

// CanSearchDeeper implements §4.4's iteration admission rule.
func (tc *TimeController) CanSearchDeeper(depth int, nodes uint64) bool {
	if tc.pondering {
		return true
	}
	if tc.limits.Infinite {
		if tc.limits.Depth > 0 && depth > tc.limits.Depth {
			return false
		}
		if tc.limits.Nodes > 0 && nodes > tc.limits.Nodes {
			return false
		}
		return true
	}

	elapsed := tc.Elapsed()
	if elapsed > tc.allocated {
		return false
	}
	estimate := elapsed + time.Duration(float64(tc.lastInterval)*branchingFactorEstimate)
	if estimate > tc.allocated+tc.limits.Inc[tc.us] {
		return false
	}
	remaining := tc.limits.Time[tc.us] - elapsed
	if tc.limits.Time[tc.us] > 0 && estimate > remaining {
		return false
	}
	if tc.limits.Depth > 0 && depth > tc.limits.Depth {
		return false
	}
	if tc.limits.Nodes > 0 && nodes > tc.limits.Nodes {
		return false
	}
	return true
}

// PonderHit rebases the clock to now and clears the pondering flag. If the
// controller can no longer afford even the current depth, it cancels the
// in-flight search immediately.
func (tc *TimeController) PonderHit(currentDepth int, nodes uint64) {
	tc.startTime = time.Now()
	tc.intervalStart = tc.startTime
	tc.pondering = false
	tc.allocated = tc.computeAllocated()
	if !tc.CanSearchDeeper(currentDepth, nodes) {
		tc.Cancel()
	}
}

// Cancel fires the cancellation token. Idempotent and permanent for the
// current search (§5).
func (tc *TimeController) Cancel() {
	tc.cancelled.Store(true)
}

// Cancelled reports whether the token has fired. Safe to call from any
// goroutine; a relaxed atomic load is sufficient per §5.
func (tc *TimeController) Cancelled() bool {
	return tc.cancelled.Load()
}

// Watch spawns a watcher that polls CanSearchDeeper every pollInterval
// (clamped here to at most 200ms) and fires the cancellation token as soon
// as the current iteration budget is exhausted. The returned group's Wait
// blocks until ctx is cancelled or the watcher itself cancels the search.
func (tc *TimeController) Watch(ctx context.Context, pollInterval time.Duration, currentDepth func() int, currentNodes func() uint64) *errgroup.Group {
	if pollInterval > 200*time.Millisecond {
		pollInterval = 200 * time.Millisecond
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if !tc.CanSearchDeeper(currentDepth(), currentNodes()) {
					tc.Cancel()
					return nil
				}
			}
		}
	})
	return g
}

package engine

import (
	"time"

	"github.com/okkaok/solaris/internal/board"
)

// Reporter receives search progress from the engine. The UCI driver
// implements it to emit `info` and `bestmove` lines; tests can supply a
// recording stub instead.
type Reporter interface {
	// IterationInfo is called once per completed iterative-deepening
	// iteration (§4.5.1 "report info to UCI").
	IterationInfo(report IterationReport, elapsed time.Duration, nps uint64, hashFull int)

	// SearchComplete is called exactly once, when the engine has settled
	// on a final best move (and optional ponder move) for a `go` command.
	SearchComplete(best, ponder board.Move)
}

// NopReporter discards all reports. Useful for tests and for Evaluate-only
// callers that never start a search.
type NopReporter struct{}

func (NopReporter) IterationInfo(IterationReport, time.Duration, uint64, int) {}
func (NopReporter) SearchComplete(board.Move, board.Move)                    {}

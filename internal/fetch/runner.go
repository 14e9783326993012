package fetch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ezetheking/tube-snatch/internal/tube"
)

// ErrAttemptTimeout marks an extraction attempt abandoned at its deadline.
var ErrAttemptTimeout = errors.New("extraction attempt timed out")

// Runner executes one extraction attempt under a hard wall-clock deadline so
// a hung upstream call cannot stall the orchestrator. The underlying call is
// never forcibly terminated: on timeout it is abandoned and its eventual
// result is discarded.
type Runner struct {
	extractor tube.Extractor
	logger    *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(extractor tube.Extractor, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{extractor: extractor, logger: logger}
}

type attemptResult struct {
	batch tube.EntryBatch
	err   error
}

// Run invokes the extractor for one (locator, strategy) pair, waiting at most
// the strategy's timeout. The worker goroutine writes into a buffered channel
// so a late result never blocks it.
func (r *Runner) Run(ctx context.Context, locator string, strat tube.StrategyConfig) (tube.EntryBatch, error) {
	resCh := make(chan attemptResult, 1)
	go func() {
		batch, err := r.extractor.Extract(ctx, locator, strat.Profile, strat.MaxEntries)
		resCh <- attemptResult{batch: batch, err: err}
	}()

	timer := time.NewTimer(strat.Timeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		return res.batch, res.err
	case <-timer.C:
		r.logger.Warn("extraction attempt abandoned at deadline",
			zap.String("locator", locator),
			zap.String("strategy", strat.Name),
			zap.Duration("timeout", strat.Timeout),
		)
		return tube.EntryBatch{}, ErrAttemptTimeout
	case <-ctx.Done():
		return tube.EntryBatch{}, ctx.Err()
	}
}

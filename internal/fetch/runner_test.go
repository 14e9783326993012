package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ezetheking/tube-snatch/internal/tube"
)

type stubExtractor struct {
	batch tube.EntryBatch
	err   error
	delay time.Duration
	block chan struct{}
}

func (e *stubExtractor) Extract(ctx context.Context, _ string, _ tube.ClientProfile, _ int) (tube.EntryBatch, error) {
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return tube.EntryBatch{}, ctx.Err()
		}
	}
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	return e.batch, e.err
}

func TestRunner_ReturnsExtractorResult(t *testing.T) {
	t.Parallel()

	want := tube.EntryBatch{ChannelTitle: "chan", Entries: rawEntries("a", "b")}
	r := NewRunner(&stubExtractor{batch: want}, zap.NewNop())

	got, err := r.Run(context.Background(), "loc", tube.StrategyConfig{Name: "fast", Timeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRunner_PropagatesExtractorError(t *testing.T) {
	t.Parallel()

	boom := errors.New("listing failed")
	r := NewRunner(&stubExtractor{err: boom}, zap.NewNop())

	_, err := r.Run(context.Background(), "loc", tube.StrategyConfig{Name: "fast", Timeout: time.Second})
	require.ErrorIs(t, err, boom)
}

func TestRunner_AbandonsHungAttemptAtDeadline(t *testing.T) {
	t.Parallel()

	// The extractor never returns until the test ends; the runner must come
	// back with ErrAttemptTimeout near the configured deadline.
	block := make(chan struct{})
	defer close(block)
	r := NewRunner(&stubExtractor{block: block}, zap.NewNop())

	start := time.Now()
	_, err := r.Run(context.Background(), "loc", tube.StrategyConfig{Name: "slow", Timeout: 50 * time.Millisecond})
	require.ErrorIs(t, err, ErrAttemptTimeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestRunner_ContextCancelStopsWait(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	defer close(block)
	r := NewRunner(&stubExtractor{block: block}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, "loc", tube.StrategyConfig{Name: "slow", Timeout: time.Minute})
	require.ErrorIs(t, err, context.Canceled)
}

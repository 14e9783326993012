// Package fetch implements the channel-content discovery pipeline: an
// ordered catalog of upstream request shapes, a deadline-bounded runner for
// single attempts, and an orchestrator that accumulates deduplicated entries
// across strategies and locator variants.
package fetch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ezetheking/tube-snatch/internal/telemetry"
	"github.com/ezetheking/tube-snatch/internal/tube"
)

// ErrNoEntries is returned when the whole catalog is exhausted with zero
// accumulated entries.
var ErrNoEntries = errors.New("no entries discoverable")

// Placeholders substituted for missing upstream fields.
const (
	unknownTitle       = "Unknown Title"
	unknownDuration    = "Unknown"
	unknownChannelName = "Unknown Channel"
	unknownChannelID   = "unknown"
)

// AttemptRunner executes one bounded extraction attempt.
type AttemptRunner interface {
	Run(ctx context.Context, locator string, strat tube.StrategyConfig) (tube.EntryBatch, error)
}

// Config tunes orchestrator behavior.
type Config struct {
	// Catalog is the ordered strategy list; defaults to DefaultCatalog.
	Catalog []tube.StrategyConfig
	// EarlyStopThreshold is the accumulated-entry count at which the fetch
	// returns immediately; defaults to DefaultEarlyStopThreshold.
	EarlyStopThreshold int
}

// Orchestrator drives the strategy catalog across locator variants and
// aggregates a deduplicated result. Attempts run strictly sequentially;
// concurrency is used only inside the runner to bound a single call.
type Orchestrator struct {
	runner    AttemptRunner
	catalog   []tube.StrategyConfig
	threshold int
	logger    *zap.Logger
}

// New constructs an Orchestrator.
func New(runner AttemptRunner, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog := cfg.Catalog
	if len(catalog) == 0 {
		catalog = DefaultCatalog()
	}
	threshold := cfg.EarlyStopThreshold
	if threshold <= 0 {
		threshold = DefaultEarlyStopThreshold
	}
	return &Orchestrator{
		runner:    runner,
		catalog:   catalog,
		threshold: threshold,
		logger:    logger,
	}
}

// strategyState tracks variant iteration for one strategy. A strategy moves
// to satisfied as soon as an attempt contributes at least one new entry; an
// attempt that contributes nothing falls through to the next variant.
type strategyState int

const (
	tryingVariants strategyState = iota
	satisfied
	exhausted
)

// FetchChannel resolves the roster for one channel locator and category.
// It returns a populated result or ErrNoEntries; per-attempt failures are
// recovered locally and never surface individually.
func (o *Orchestrator) FetchChannel(ctx context.Context, rawLocator string, category tube.Category) (tube.FetchResult, error) {
	locator := NormalizeLocator(rawLocator)
	variants := LocatorVariants(locator, category)
	acc := newAccumulator()

	o.logger.Info("channel fetch started",
		zap.String("locator", locator),
		zap.String("category", string(category)),
	)

	for _, strat := range o.catalog {
		state := tryingVariants
		for _, variant := range variants {
			if state != tryingVariants {
				break
			}
			batch, err := o.runner.Run(ctx, variant, strat)
			if err != nil {
				outcome := "error"
				if errors.Is(err, ErrAttemptTimeout) {
					outcome = "timeout"
				}
				telemetry.ObserveFetchAttempt(strat.Name, outcome)
				o.logger.Warn("extraction attempt failed",
					zap.String("strategy", strat.Name),
					zap.String("variant", variant),
					zap.Error(err),
				)
				continue
			}
			telemetry.ObserveFetchAttempt(strat.Name, "ok")

			added := acc.merge(batch)
			if added > 0 {
				state = satisfied
				telemetry.AddEntriesDiscovered(added)
				o.logger.Info("attempt contributed entries",
					zap.String("strategy", strat.Name),
					zap.String("variant", variant),
					zap.Int("new_entries", added),
					zap.Int("total", acc.len()),
				)
			}
			if acc.len() >= o.threshold {
				o.logger.Info("early-stop threshold reached",
					zap.Int("threshold", o.threshold),
					zap.Int("total", acc.len()),
				)
				telemetry.ObserveChannelFetch("success")
				return acc.result(), nil
			}
		}
		if state == tryingVariants {
			state = exhausted
		}
		if state == exhausted {
			o.logger.Debug("strategy exhausted all variants without contributing",
				zap.String("strategy", strat.Name),
			)
		}
	}

	if acc.len() == 0 {
		telemetry.ObserveChannelFetch("empty")
		o.logger.Error("all strategies exhausted with no entries",
			zap.String("locator", locator),
		)
		return tube.FetchResult{}, ErrNoEntries
	}
	telemetry.ObserveChannelFetch("success")
	o.logger.Info("channel fetch finished",
		zap.String("channel", acc.channelName),
		zap.Int("total", acc.len()),
	)
	return acc.result(), nil
}

// accumulator collects entries across attempts, first-seen-wins by video id,
// preserving discovery order.
type accumulator struct {
	seen        map[string]struct{}
	entries     []tube.Entry
	channelName string
	channelID   string
}

func newAccumulator() *accumulator {
	return &accumulator{
		seen:        make(map[string]struct{}),
		channelName: unknownChannelName,
		channelID:   unknownChannelID,
	}
}

// merge folds a batch into the accumulator and returns the number of new
// entries it contributed. Channel identity is taken from the first batch
// that resolves it; later batches do not overwrite it.
func (a *accumulator) merge(batch tube.EntryBatch) int {
	if a.channelName == unknownChannelName && batch.ChannelTitle != "" {
		a.channelName = batch.ChannelTitle
	}
	if a.channelID == unknownChannelID && batch.ChannelID != "" {
		a.channelID = batch.ChannelID
	}
	added := 0
	for _, raw := range batch.Entries {
		if raw.ID == "" {
			continue
		}
		if _, dup := a.seen[raw.ID]; dup {
			continue
		}
		a.seen[raw.ID] = struct{}{}
		a.entries = append(a.entries, a.entryFromRaw(raw))
		added++
	}
	return added
}

func (a *accumulator) entryFromRaw(raw tube.RawEntry) tube.Entry {
	title := raw.Title
	if title == "" {
		title = unknownTitle
	}
	duration := raw.Duration
	if duration == "" {
		duration = unknownDuration
	}
	return tube.Entry{
		VideoID:      raw.ID,
		Title:        title,
		ThumbnailURL: tube.ThumbnailURL(raw.ID),
		Duration:     duration,
		Resolutions:  []string{"highest"},
		ChannelID:    a.channelID,
		ChannelName:  a.channelName,
	}
}

func (a *accumulator) len() int {
	return len(a.entries)
}

func (a *accumulator) result() tube.FetchResult {
	entries := make([]tube.Entry, len(a.entries))
	copy(entries, a.entries)
	// Entries merged before the channel identity resolved carry placeholders;
	// backfill them so one fetch reports a consistent channel.
	for i := range entries {
		entries[i].ChannelID = a.channelID
		entries[i].ChannelName = a.channelName
	}
	return tube.FetchResult{
		ChannelName: a.channelName,
		ChannelID:   a.channelID,
		Entries:     entries,
	}
}

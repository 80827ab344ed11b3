// Package aggregate runs every configured source concurrently, merges their
// events in priority order and removes cross-source duplicates.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	appLog "eventcal/internal/log"
	"eventcal/internal/metrics"
	"eventcal/internal/model"
	"eventcal/internal/normalize"
	"eventcal/internal/source"
)

// Aggregator fans out to sources. The slice order is the merge priority:
// on a duplicate key the event of the earlier source wins.
type Aggregator struct {
	sources []source.Source
}

// New creates an Aggregator over sources in priority order.
func New(sources ...source.Source) *Aggregator {
	return &Aggregator{sources: sources}
}

// Pass is the outcome of one aggregation run.
type Pass struct {
	RunID   string
	Events  []model.Event
	Results []source.Result
}

// Run queries all sources concurrently and merges what they return. A
// failing or panicking source only loses its own events; Run itself fails
// only when ctx is done before the merge.
func (a *Aggregator) Run(ctx context.Context) (Pass, error) {
	runID := uuid.NewString()
	start := time.Now()

	results := make([]source.Result, len(a.sources))
	var g errgroup.Group
	for i, src := range a.sources {
		g.Go(func() error {
			results[i] = fetch(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Pass{RunID: runID, Results: results}, fmt.Errorf("aggregate %s: %w", runID, err)
	}

	for _, r := range results {
		logResult(runID, r)
	}

	var combined []model.Event
	for _, r := range results {
		combined = append(combined, r.Events...)
	}
	dated := normalize.DropUndated(combined)
	merged := normalize.Dedupe(dated)
	normalize.Renumber(merged)

	elapsed := time.Since(start)
	metrics.RecordAggregate(len(merged), len(dated)-len(merged), elapsed)
	appLog.Info("aggregation finished",
		"run_id", runID,
		"sources", len(results),
		"collected", len(combined),
		"merged", len(merged),
		"elapsed", elapsed.Round(time.Millisecond).String(),
	)

	return Pass{RunID: runID, Events: merged, Results: results}, nil
}

// fetch runs one source and turns a panic into a failed Result.
func fetch(ctx context.Context, src source.Source) (res source.Result) {
	res.Source = src.Name()
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Events = nil
			res.Err = fmt.Errorf("source %s panicked: %v", res.Source, p)
			appLog.Error("source panic", res.Err, "stack", string(debug.Stack()))
		}
		res.Duration = time.Since(start)
	}()
	res.Events, res.Err = src.Fetch(ctx)
	return res
}

func logResult(runID string, r source.Result) {
	outcome := r.Outcome()
	if errors.Is(r.Err, source.ErrDisabled) {
		outcome = "disabled"
	}
	metrics.RecordSourceFetch(r.Source, outcome, len(r.Events), r.Duration)

	kv := []any{
		"run_id", runID,
		"source", r.Source,
		"outcome", outcome,
		"events", len(r.Events),
		"elapsed", r.Duration.Round(time.Millisecond).String(),
	}
	switch outcome {
	case "ok":
		appLog.Info("source fetched", kv...)
	case "disabled":
		appLog.Debug("source skipped", kv...)
	default:
		appLog.Warn("source fetch failed", append(kv, "error", r.Err.Error())...)
	}
}

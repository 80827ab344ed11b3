// Package export writes the merged event list as a static JSON document
// and reads it back for static serving.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/robfig/cron/v3"

	"eventcal/internal/aggregate"
	"eventcal/internal/config"
	appLog "eventcal/internal/log"
	"eventcal/internal/metrics"
	"eventcal/internal/model"
)

// ErrNoPaths is returned when no output path is configured.
var ErrNoPaths = errors.New("export: no output paths configured")

// Write renders {events, lastUpdated} once and writes it atomically to
// every path. All paths are attempted; the joined error lists the failures.
func Write(paths []string, events []model.Event, now time.Time) error {
	if len(paths) == 0 {
		return ErrNoPaths
	}
	if events == nil {
		events = []model.Event{}
	}
	data, err := json.MarshalIndent(model.StaticPayload{
		Events:      events,
		LastUpdated: now.UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data = append(data, '\n')

	var errs []error
	for _, p := range paths {
		if err := config.WriteFileAtomic(p, data, 0o644); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", p, err))
			continue
		}
		appLog.Info("static events written", "path", p, "events", len(events))
	}
	return errors.Join(errs...)
}

// Read loads a document produced by Write.
func Read(path string) (model.StaticPayload, error) {
	var p model.StaticPayload
	data, err := os.ReadFile(path)
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode %s: %w", path, err)
	}
	if p.Events == nil {
		p.Events = []model.Event{}
	}
	return p, nil
}

// Runner performs aggregation passes and writes their result.
type Runner struct {
	agg   *aggregate.Aggregator
	paths []string
	now   func() time.Time
}

// NewRunner creates a Runner. now may be nil (time.Now).
func NewRunner(agg *aggregate.Aggregator, paths []string, now func() time.Time) *Runner {
	if now == nil {
		now = time.Now
	}
	return &Runner{agg: agg, paths: paths, now: now}
}

// RunOnce aggregates and writes one snapshot.
func (r *Runner) RunOnce(ctx context.Context) error {
	pass, err := r.agg.Run(ctx)
	if err == nil {
		err = Write(r.paths, pass.Events, r.now())
	}
	metrics.RecordExport(err)
	if err != nil {
		return err
	}
	appLog.Info("export finished", "run_id", pass.RunID, "events", len(pass.Events), "paths", len(r.paths))
	return nil
}

// Schedule runs RunOnce on the cron spec until ctx is done. Overlapping
// runs are skipped rather than queued.
func (r *Runner) Schedule(ctx context.Context, spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	id, err := c.AddFunc(spec, func() {
		if err := r.RunOnce(ctx); err != nil {
			appLog.Error("scheduled export failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	c.Start()
	appLog.Info("export scheduled", "schedule", spec, "next", c.Entry(id).Next.Format(time.RFC3339))

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}

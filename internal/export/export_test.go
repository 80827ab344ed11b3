package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eventcal/internal/aggregate"
	"eventcal/internal/model"
)

func TestWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		filepath.Join(dir, "data", "events.json"),
		filepath.Join(dir, "public", "data", "events.json"),
	}
	now := time.Date(2025, time.September, 1, 8, 30, 0, 0, time.UTC)
	events := []model.Event{
		{ID: 1, Title: "Jazz Night", Date: "2025-09-10", Time: "7:30 PM", Location: "The Attic", Category: "music", URL: "https://posh.vip/e/jazz"},
		{ID: 2, Title: "Arena Rock", Date: "2025-09-12", Location: "Amalie Arena", Category: "concert"},
	}

	if err := Write(paths, events, now); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for _, p := range paths {
		got, err := Read(p)
		if err != nil {
			t.Fatalf("Read %s: %v", p, err)
		}
		if !got.LastUpdated.Equal(now) || len(got.Events) != 2 {
			t.Fatalf("payload = %+v", got)
		}
		if got.Events[0] != events[0] || got.Events[1] != events[1] {
			t.Errorf("events changed on round trip: %+v", got.Events)
		}
	}

	raw, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	text := string(raw)
	if !strings.Contains(text, `"lastUpdated": "2025-09-01T08:30:00Z"`) {
		t.Errorf("lastUpdated not RFC3339: %s", text)
	}
	if strings.Count(text, `"url"`) != 1 {
		t.Errorf("absent url should be omitted: %s", text)
	}
}

func TestWriteEmptyListIsArray(t *testing.T) {
	p := filepath.Join(t.TempDir(), "events.json")
	if err := Write([]string{p}, nil, time.Now()); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(p)
	if !strings.Contains(string(raw), `"events": []`) {
		t.Errorf("expected empty array, got %s", raw)
	}
}

func TestWriteReportsEveryFailedPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	good := filepath.Join(dir, "ok", "events.json")
	bad := filepath.Join(blocker, "events.json")

	err := Write([]string{bad, good}, nil, time.Now())
	if err == nil || !strings.Contains(err.Error(), bad) {
		t.Fatalf("expected failure naming %s, got %v", bad, err)
	}
	if _, statErr := os.Stat(good); statErr != nil {
		t.Errorf("good path should still be written: %v", statErr)
	}
}

func TestWriteWithoutPaths(t *testing.T) {
	if err := Write(nil, nil, time.Now()); !errors.Is(err, ErrNoPaths) {
		t.Fatalf("expected ErrNoPaths, got %v", err)
	}
}

func TestReadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	if _, err := Read(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
	corrupt := filepath.Join(dir, "corrupt.json")
	_ = os.WriteFile(corrupt, []byte("{not json"), 0o644)
	if _, err := Read(corrupt); err == nil {
		t.Error("expected decode error")
	}
}

type staticSource []model.Event

func (s staticSource) Name() string { return "static" }
func (s staticSource) Fetch(context.Context) ([]model.Event, error) {
	return s, nil
}

func TestRunnerRunOnce(t *testing.T) {
	p := filepath.Join(t.TempDir(), "events.json")
	src := staticSource{
		{Title: "Jazz Night", Date: "2025-09-10"},
		{Title: "jazz night", Date: "2025-09-10"},
	}
	now := func() time.Time { return time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC) }

	if err := NewRunner(aggregate.New(src), []string{p}, now).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got, err := Read(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Events) != 1 || got.Events[0].ID != 1 {
		t.Fatalf("payload = %+v", got)
	}
}

func TestScheduleRejectsBadSpec(t *testing.T) {
	r := NewRunner(aggregate.New(), []string{filepath.Join(t.TempDir(), "e.json")}, nil)
	if err := r.Schedule(context.Background(), "every tuesday"); err == nil {
		t.Fatal("expected invalid schedule error")
	}
}

func TestScheduleStopsWithContext(t *testing.T) {
	r := NewRunner(aggregate.New(), []string{filepath.Join(t.TempDir(), "e.json")}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Schedule(ctx, "@every 1h") }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Schedule did not return after cancel")
	}
}

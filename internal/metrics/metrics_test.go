package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSourceFetch(t *testing.T) {
	before := testutil.ToFloat64(SourceFetchTotal.WithLabelValues("marketplace", "partial"))
	RecordSourceFetch("marketplace", "partial", 7, 250*time.Millisecond)

	if got := testutil.ToFloat64(SourceFetchTotal.WithLabelValues("marketplace", "partial")); got != before+1 {
		t.Errorf("fetch counter = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(SourceEvents.WithLabelValues("marketplace")); got != 7 {
		t.Errorf("events gauge = %v", got)
	}
}

func TestRecordCache(t *testing.T) {
	hits, misses := testutil.ToFloat64(CacheHits), testutil.ToFloat64(CacheMisses)
	RecordCache(true)
	RecordCache(false)
	RecordCache(true)
	if got := testutil.ToFloat64(CacheHits); got != hits+2 {
		t.Errorf("hits = %v, want %v", got, hits+2)
	}
	if got := testutil.ToFloat64(CacheMisses); got != misses+1 {
		t.Errorf("misses = %v, want %v", got, misses+1)
	}
}

func TestRecordAggregateAndExport(t *testing.T) {
	dups := testutil.ToFloat64(AggregateDuplicates)
	RecordAggregate(12, 3, time.Second)
	if testutil.ToFloat64(AggregateEvents) != 12 || testutil.ToFloat64(AggregateDuplicates) != dups+3 {
		t.Error("aggregate metrics not recorded")
	}

	failed := testutil.ToFloat64(ExportRuns.WithLabelValues("error"))
	RecordExport(errors.New("disk full"))
	if testutil.ToFloat64(ExportRuns.WithLabelValues("error")) != failed+1 {
		t.Error("export failure not counted")
	}
}

func TestActiveRequestsBalance(t *testing.T) {
	start := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	TrackActiveRequest(false)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != start {
		t.Errorf("active requests = %v, want %v", got, start)
	}
}

func TestMetricGathering(t *testing.T) {
	RecordAPIRequest("GET", "/api/events", "200", 5*time.Millisecond)
	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, p := range problems {
		t.Errorf("lint %s: %s", p.Metric, p.Text)
	}
}

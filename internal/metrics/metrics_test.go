package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := urlsProcessedTotal
	Init()
	if urlsProcessedTotal != first || first == nil {
		t.Fatal("Init() should initialize collectors exactly once")
	}
}

func TestObserversUpdateCollectors(t *testing.T) {
	Init()

	before := testutil.ToFloat64(urlsProcessedTotal.WithLabelValues(OutcomeDated))
	ObserveURL(OutcomeDated)
	if got := testutil.ToFloat64(urlsProcessedTotal.WithLabelValues(OutcomeDated)); got != before+1 {
		t.Errorf("expected dated outcome to increase by 1, got %f -> %f", before, got)
	}

	hitsBefore := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("local", "hit"))
	missBefore := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("redis", "miss"))
	ObserveCacheLookup("local", true)
	ObserveCacheLookup("redis", false)
	if got := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("local", "hit")); got != hitsBefore+1 {
		t.Errorf("expected local hit to be counted, got %f", got)
	}
	if got := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("redis", "miss")); got != missBefore+1 {
		t.Errorf("expected redis miss to be counted, got %f", got)
	}

	inflight := testutil.ToFloat64(inflightFetches)
	IncInflight()
	if got := testutil.ToFloat64(inflightFetches); got != inflight+1 {
		t.Errorf("expected inflight gauge to increase, got %f", got)
	}
	DecInflight()

	ObserveHostPacingDelay(50 * time.Millisecond)
	ObserveHostPacingDelay(70 * time.Millisecond)
	if n := testutil.CollectAndCount(hostPacingDelaySeconds); n != 1 {
		t.Errorf("expected a single unlabeled pacing series, got %d", n)
	}
}

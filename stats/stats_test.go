package stats

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/relloyd/retail-loader/logger"
)

var log = logger.NewLogger("stats-test", "error", true)

func TestBatchStatsKeepsStepOrder(t *testing.T) {
	m := NewBatchStats(log)
	for _, name := range []string{"read", "validate", "facts"} {
		sw := m.Step(name)
		sw.AddRows(10)
		sw.Stop()
	}
	m.AddStepWatcher("dimensions") // never started
	s := m.GetStats()
	if len(s) != 4 {
		t.Fatalf("expected: 4 steps; got: %v", len(s))
	}
	if s[0].StepName != "read" || s[2].StepName != "facts" || s[0].TotalRows != 10 || s[0].StatusText != "complete" {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s[3].StatusText != "skipped" {
		t.Fatalf("expected: skipped; got: %v", s[3].StatusText)
	}
	if m.AddStepWatcher("read") != m.AddStepWatcher("read") {
		t.Fatal("expected the same watcher for the same step name")
	}
	if !strings.Contains(s[0].String(), "totalRows=10") {
		t.Fatalf("unexpected stats text: %v", s[0])
	}
}

func TestMetricsObserveBatch(t *testing.T) {
	m := NewMetrics()
	m.ObserveBatch(BatchOutcome{Status: "COMMITTED", Processed: 200, Inserted: 190, Rejected: 10, CheckpointOffset: 200})
	m.ObserveBatch(BatchOutcome{Status: "FAILED", Processed: 200, CheckpointOffset: -1})
	if got := testutil.ToFloat64(m.batchesTotal.WithLabelValues("COMMITTED")); got != 1 {
		t.Fatalf("expected: 1 committed batch; got: %v", got)
	}
	if got := testutil.ToFloat64(m.rowsTotal.WithLabelValues("processed")); got != 400 {
		t.Fatalf("expected: 400 processed rows; got: %v", got)
	}
	if got := testutil.ToFloat64(m.checkpointOffset); got != 200 {
		t.Fatalf("expected: offset 200; got: %v", got)
	}
	var nilMetrics *Metrics
	nilMetrics.ObserveBatch(BatchOutcome{Status: "FAILED"}) // must not panic
	if err := nilMetrics.Push("http://localhost:9091"); err != nil {
		t.Fatal(err)
	}
}

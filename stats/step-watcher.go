package stats

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/relloyd/retail-loader/logger"
)

// StepWatcher times one stage of a batch and counts the rows it handled.
// A stage can be started and stopped once per batch run.
type StepWatcher struct {
	log       logger.Logger
	stepName  string
	startTime time.Time
	endTime   time.Time
	totalRows int64
	isRunning int32
}

type Stats struct {
	StepName         string `json:"stepName"`
	StatusText       string `json:"statusText"`
	StatusEmoji      string `json:"statusEmoji"`
	ElapsedTimeMs    int64  `json:"elapsedTimeMs"`
	TotalRows        int64  `json:"totalRows"`
	RowsPerSecondAvg int64  `json:"rowsPerSecondAvg"`
}

func NewStepWatcher(log logger.Logger, stepName string) *StepWatcher {
	return &StepWatcher{log: log, stepName: stepName}
}

func (n *StepWatcher) Start() {
	n.startTime = time.Now()
	n.endTime = time.Time{}
	atomic.StoreInt64(&n.totalRows, 0)
	atomic.StoreInt32(&n.isRunning, 1)
}

// AddRows adds to the row count of the step.
func (n *StepWatcher) AddRows(rows int) {
	atomic.AddInt64(&n.totalRows, int64(rows))
}

// Stop ends the step and returns its elapsed time.
func (n *StepWatcher) Stop() time.Duration {
	if atomic.SwapInt32(&n.isRunning, 0) == 0 { // if we were never started or already stopped...
		return n.elapsed()
	}
	n.endTime = time.Now()
	n.log.Debug("STATS: ", n.stepName, " took ", n.elapsed(), " for ", atomic.LoadInt64(&n.totalRows), " rows")
	return n.elapsed()
}

func (n *StepWatcher) elapsed() time.Duration {
	if n.startTime.IsZero() {
		return 0
	}
	if n.endTime.IsZero() {
		return time.Since(n.startTime)
	}
	return n.endTime.Sub(n.startTime)
}

// RenderStats gets a struct filled with stats at the point of time it is called.
func (n *StepWatcher) RenderStats() Stats {
	var statusText, statusEmoji string
	switch {
	case atomic.LoadInt32(&n.isRunning) == 1:
		statusText = "running"
		statusEmoji = "\U0000231B" // hour glass
	case n.startTime.IsZero():
		statusText = "skipped"
		statusEmoji = "\U000023ED" // skip
	default:
		statusText = "complete"
		statusEmoji = "\U00002705" // green tick
	}
	elapsed := n.elapsed()
	rows := atomic.LoadInt64(&n.totalRows)
	return Stats{
		StepName:         n.stepName,
		StatusText:       statusText,
		StatusEmoji:      statusEmoji,
		ElapsedTimeMs:    elapsed.Milliseconds(),
		TotalRows:        rows,
		RowsPerSecondAvg: rowsPerSecond(rows, elapsed),
	}
}

// String will format the stats for general logging.
func (s Stats) String() string {
	return fmt.Sprintf(
		"Stats for %v %v %v "+
			"elapsedTimeMs=%v "+
			"totalRows=%v "+
			"rowsPerSecondAvg=%v",
		s.StepName, s.StatusText, s.StatusEmoji,
		s.ElapsedTimeMs,
		s.TotalRows,
		s.RowsPerSecondAvg,
	)
}

func rowsPerSecond(rows int64, d time.Duration) int64 {
	if d < time.Millisecond { // if we will divide by ~0...
		d = time.Millisecond
	}
	return int64(float64(rows) / d.Seconds())
}

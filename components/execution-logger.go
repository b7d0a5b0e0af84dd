package components

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/warehouse"
	"github.com/rs/xid"
)

// maxErrorMessageLen bounds the error summary kept in the log table.
const maxErrorMessageLen = 1000

type ExecutionLoggerConfig struct {
	Log          logger.Logger       `errorTxt:"logger" mandatory:"yes"`
	PipelineName string              `errorTxt:"pipeline name" mandatory:"yes"`
	Warehouse    warehouse.Warehouse `errorTxt:"warehouse" mandatory:"yes"`
}

// ExecutionLogger appends batch history. STARTED and FAILED entries commit on their own;
// COMPLETED is written inside the batch transaction so it lands with the checkpoint.
type ExecutionLogger struct {
	ExecutionLoggerConfig
}

// RunCounts are the row counts reported for a run.
type RunCounts struct {
	Processed      int64
	Inserted       int64
	AlreadyPresent int64
	Rejected       int64
}

func NewExecutionLogger(cfg ExecutionLoggerConfig) (*ExecutionLogger, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	return &ExecutionLogger{cfg}, nil
}

// NewRunID returns a sortable unique id for one controller run.
func NewRunID() string {
	return xid.New().String()
}

func (l *ExecutionLogger) entry(b BatchContext, sequence int64, status model.BatchStatus) model.ExecutionLogEntry {
	return model.ExecutionLogEntry{
		LogID:         xid.New().String(),
		RunID:         b.RunID,
		PipelineName:  l.PipelineName,
		BatchNumber:   b.Range.Number,
		BatchSequence: sequence,
		StartRow:      b.Range.Start,
		EndRow:        b.Range.End,
		Status:        status,
		StartedAt:     b.LoadedAt,
	}
}

func finish(e *model.ExecutionLogEntry, c RunCounts, endedAt time.Time) {
	e.EndedAt = endedAt
	e.RowsProcessed = c.Processed
	e.RowsInserted = c.Inserted
	e.RowsAlreadyPresent = c.AlreadyPresent
	e.RowsRejected = c.Rejected
	e.DurationMs = endedAt.Sub(e.StartedAt).Milliseconds()
}

// Started records that a run has begun. It must succeed before the batch mutates anything.
func (l *ExecutionLogger) Started(ctx context.Context, b BatchContext, sequence int64) (model.ExecutionLogEntry, error) {
	e := l.entry(b, sequence, model.BatchStatusStarted)
	if err := l.Warehouse.AppendLog(ctx, e); err != nil {
		return e, errors.Wrap(err, "error writing STARTED log entry")
	}
	l.Log.Info(e.String())
	return e, nil
}

// Completed writes the COMPLETED entry through tx.
func (l *ExecutionLogger) Completed(ctx context.Context, tx warehouse.Tx, b BatchContext, sequence int64, c RunCounts, advanced bool, endedAt time.Time) (model.ExecutionLogEntry, error) {
	e := l.entry(b, sequence, model.BatchStatusCompleted)
	finish(&e, c, endedAt)
	e.CheckpointAdvanced = advanced
	if err := tx.AppendLog(ctx, e); err != nil {
		return e, errors.Wrap(err, "error writing COMPLETED log entry")
	}
	return e, nil
}

// Failed records cause for the run. ctx should not be the batch context, which may already be done.
func (l *ExecutionLogger) Failed(ctx context.Context, b BatchContext, sequence int64, c RunCounts, cause error, endedAt time.Time) (model.ExecutionLogEntry, error) {
	e := l.entry(b, sequence, model.BatchStatusFailed)
	finish(&e, c, endedAt)
	if cause != nil {
		e.ErrorMessage = truncate(cause.Error(), maxErrorMessageLen)
	}
	if err := l.Warehouse.AppendLog(ctx, e); err != nil {
		l.Log.Error("unable to record failed batch: ", err, "; original error: ", cause)
		return e, errors.Wrap(err, "error writing FAILED log entry")
	}
	l.Log.Warn(e.String())
	return e, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

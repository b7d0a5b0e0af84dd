// Package pipeline runs one batch at a time from the source file into the warehouse.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/relloyd/retail-loader/components"
	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/source"
	"github.com/relloyd/retail-loader/stats"
	"github.com/relloyd/retail-loader/warehouse"
)

// failureLogTimeout bounds the FAILED log write, which runs on a fresh context.
const failureLogTimeout = 30 * time.Second

// Config is fixed for the life of a Controller.
type Config struct {
	Log          logger.Logger       `errorTxt:"logger" mandatory:"yes"`
	PipelineName string              `errorTxt:"pipeline name" mandatory:"yes"`
	BatchSize    int64               `errorTxt:"batch size" mandatory:"yes"`
	Source       source.Reader       `errorTxt:"source" mandatory:"yes"`
	Warehouse    warehouse.Warehouse `errorTxt:"warehouse" mandatory:"yes"`
	Rules        *components.QualityRules
	LockTTL      time.Duration // defaults to constants.DefaultLockTTLSeconds
	Timeout      time.Duration // bounds one batch; zero means no limit
	Owner        string        // lock owner; defaults to host:pid
	Metrics      *stats.Metrics
	Clock        func() time.Time // defaults to time.Now
}

// Result describes one call to Advance or ProcessBatch.
type Result struct {
	Range              model.BatchRange        `json:"range"`
	State              State                   `json:"state"`
	NoRowsRemaining    bool                    `json:"noRowsRemaining"`
	CheckpointAdvanced bool                    `json:"checkpointAdvanced"`
	Counts             components.RunCounts    `json:"counts"`
	Entry              model.ExecutionLogEntry `json:"entry"`
	Stats              []stats.Stats           `json:"stats"`
}

// Status is a read-only view of progress. It never takes the pipeline lock.
type Status struct {
	State      State                     `json:"state"`
	LastResult State                     `json:"lastResult,omitempty"`
	Checkpoint model.BatchCheckpoint     `json:"checkpoint"`
	RecentRuns []model.ExecutionLogEntry `json:"recentRuns"`
	Summary    model.Summary             `json:"summary"`
}

// Controller drives IDLE -> RUNNING -> COMMITTED|FAILED -> IDLE for one batch per call.
type Controller struct {
	cfg        Config
	mu         sync.Mutex // one batch per process
	state      *stateMachine
	cursor     *BatchCursor
	validator  *components.RecordValidator
	staging    *components.StagingWriter
	facts      *components.FactLoader
	dimensions *components.DimensionAggregator
	execLog    *components.ExecutionLogger
}

func NewController(cfg Config) (*Controller, error) {
	if cfg.BatchSize <= 0 {
		return nil, NewConfigError(nil, "batch size must be a positive integer; got %v", cfg.BatchSize)
	}
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, NewConfigError(err, "incomplete pipeline config")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = constants.DefaultLockTTLSeconds * time.Second
	}
	if cfg.Owner == "" {
		host, _ := os.Hostname()
		cfg.Owner = fmt.Sprintf("%v:%v", host, os.Getpid())
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	c := &Controller{cfg: cfg, state: newStateMachine()}
	var err error
	if c.cursor, err = NewBatchCursor(cfg.Warehouse, cfg.Source, cfg.BatchSize); err != nil {
		return nil, err
	}
	if c.validator, err = components.NewRecordValidator(components.RecordValidatorConfig{Log: cfg.Log, Rules: cfg.Rules}); err != nil {
		return nil, NewConfigError(err, "record validator")
	}
	if c.staging, err = components.NewStagingWriter(components.StagingWriterConfig{Log: cfg.Log}); err != nil {
		return nil, NewConfigError(err, "staging writer")
	}
	if c.facts, err = components.NewFactLoader(components.FactLoaderConfig{Log: cfg.Log}); err != nil {
		return nil, NewConfigError(err, "fact loader")
	}
	if c.dimensions, err = components.NewDimensionAggregator(components.DimensionAggregatorConfig{Log: cfg.Log}); err != nil {
		return nil, NewConfigError(err, "dimension aggregator")
	}
	c.execLog, err = components.NewExecutionLogger(components.ExecutionLoggerConfig{
		Log:          cfg.Log,
		PipelineName: cfg.PipelineName,
		Warehouse:    cfg.Warehouse,
	})
	if err != nil {
		return nil, NewConfigError(err, "execution logger")
	}
	return c, nil
}

// Advance processes the batch after the checkpoint.
func (c *Controller) Advance(ctx context.Context) (Result, error) {
	return c.run(ctx, func(ctx context.Context) (model.BatchCheckpoint, model.BatchRange, error) {
		return c.cursor.Next(ctx)
	})
}

// ProcessBatch processes logical batch n. Re-running a committed batch changes nothing and
// the checkpoint only moves when batch n is the one directly after it.
func (c *Controller) ProcessBatch(ctx context.Context, n int64) (Result, error) {
	if n < 1 {
		return Result{}, NewConfigError(nil, "batch number must be 1 or more; got %v", n)
	}
	return c.run(ctx, func(ctx context.Context) (model.BatchCheckpoint, model.BatchRange, error) {
		return c.cursor.ForBatch(ctx, n)
	})
}

// Status reads the checkpoint, the last numLogEntries log entries and the summary counts.
func (c *Controller) Status(ctx context.Context, numLogEntries int) (Status, error) {
	if numLogEntries <= 0 {
		numLogEntries = constants.DefaultStatusLogDepth
	}
	snap, err := c.cfg.Warehouse.Snapshot(ctx, numLogEntries)
	if err != nil {
		return Status{}, err
	}
	current, last := c.state.get()
	return Status{
		State:      current,
		LastResult: last,
		Checkpoint: snap.Checkpoint,
		RecentRuns: snap.RecentRuns,
		Summary:    snap.Summary,
	}, nil
}

// State returns the current controller state.
func (c *Controller) State() State {
	current, _ := c.state.get()
	return current
}

type rangeFunc func(ctx context.Context) (model.BatchCheckpoint, model.BatchRange, error)

func (c *Controller) run(ctx context.Context, pick rangeFunc) (res Result, err error) {
	if !c.mu.TryLock() {
		return Result{State: StateIdle}, &BatchError{Stage: StageLock, Cause: warehouse.ErrLockHeld}
	}
	defer c.mu.Unlock()
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	st := stats.NewBatchStats(c.cfg.Log)
	// Lock.
	sw := st.Step(string(StageLock))
	if err := c.cfg.Warehouse.AcquireLock(ctx, c.cfg.Owner, c.cfg.LockTTL); err != nil {
		return Result{State: StateIdle}, &BatchError{Stage: StageLock, Cause: err}
	}
	sw.Stop()
	defer func() {
		rctx, cancel := context.WithTimeout(context.Background(), failureLogTimeout)
		defer cancel()
		if err := c.cfg.Warehouse.ReleaseLock(rctx, c.cfg.Owner); err != nil {
			c.cfg.Log.Warn("unable to release pipeline lock: ", err)
		}
	}()
	// Range.
	sw = st.Step(string(StageCursor))
	cp, rng, err := pick(ctx)
	sw.Stop()
	if err != nil {
		if IsConfigError(err) {
			return Result{State: StateIdle}, err
		}
		berr := &BatchError{Stage: StageCursor, Cause: err}
		return c.cursorFailed(cp, berr), berr
	}
	if rng.Empty() {
		c.cfg.Log.Info("no rows remaining after row ", cp.LastRowOffset)
		return Result{State: StateIdle, Range: rng, NoRowsRemaining: true}, nil
	}
	if err := c.state.transition(StateRunning); err != nil {
		return Result{State: StateIdle}, &BatchError{Stage: StageCursor, Range: rng, Cause: err}
	}
	b := components.BatchContext{RunID: components.NewRunID(), Range: rng, LoadedAt: c.cfg.Clock().UTC()}
	return c.runBatch(ctx, st, cp, b)
}

// cursorFailed records a run that stopped before its range was known.
// The FAILED entry carries no rows and the checkpoint is left alone.
func (c *Controller) cursorFailed(cp model.BatchCheckpoint, berr *BatchError) Result {
	b := components.BatchContext{RunID: components.NewRunID(), LoadedAt: c.cfg.Clock().UTC()}
	fctx, cancel := context.WithTimeout(context.Background(), failureLogTimeout)
	defer cancel()
	res := Result{State: StateFailed}
	res.Entry, _ = c.execLog.Failed(fctx, b, cp.BatchSequence+1, components.RunCounts{}, berr, b.LoadedAt)
	if err := c.state.transition(StateRunning); err == nil {
		_ = c.state.transition(StateFailed)
		_ = c.state.transition(StateIdle)
	}
	return res
}

// runBatch owns the RUNNING state. Every exit, including a panic, ends in COMMITTED or FAILED.
func (c *Controller) runBatch(ctx context.Context, st *stats.BatchStatsManager, cp model.BatchCheckpoint, b components.BatchContext) (res Result, err error) {
	log := c.cfg.Log
	sequence := cp.BatchSequence + 1
	res = Result{Range: b.Range}
	stage := StageStartLog
	var tx warehouse.Tx
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic at ", stage, ": ", r)
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			if tx != nil {
				if rbErr := tx.Rollback(); rbErr != nil && rbErr != warehouse.ErrTxDone {
					log.Warn("rollback failed: ", rbErr)
				}
			}
			berr, ok := err.(*BatchError)
			if !ok {
				berr = &BatchError{Stage: stage, Range: b.Range, Cause: err}
			}
			err = berr
			fctx, cancel := context.WithTimeout(context.Background(), failureLogTimeout)
			defer cancel()
			res.Entry, _ = c.execLog.Failed(fctx, b, sequence, res.Counts, berr, c.cfg.Clock().UTC())
			_ = c.state.transition(StateFailed)
			res.State = StateFailed
			res.CheckpointAdvanced = false
		} else {
			_ = c.state.transition(StateCommitted)
			res.State = StateCommitted
		}
		_ = c.state.transition(StateIdle)
		res.Stats = st.GetStats()
		st.LogStats()
		c.observe(res, st)
	}()
	fail := func(cause error) error {
		return &BatchError{Stage: stage, Range: b.Range, Cause: cause}
	}
	step := func(s Stage) *stats.StepWatcher {
		stage = s
		return st.Step(string(s))
	}
	// STARTED.
	sw := step(StageStartLog)
	if _, err := c.execLog.Started(ctx, b, sequence); err != nil {
		return res, fail(err)
	}
	sw.Stop()
	// Read.
	sw = step(StageRead)
	rows, err := c.cfg.Source.ReadRange(ctx, b.Range.Start, b.Range.End)
	if err != nil {
		return res, fail(err)
	}
	if int64(len(rows)) != b.Range.Len() {
		return res, fail(fmt.Errorf("expected %v rows from %v; got %v", b.Range.Len(), c.cfg.Source.Name(), len(rows)))
	}
	sw.AddRows(len(rows))
	sw.Stop()
	res.Counts.Processed = int64(len(rows))
	// Validate.
	sw = step(StageValidate)
	accepted, rejected := c.validator.ValidateBatch(rows, b)
	sw.AddRows(len(rows))
	sw.Stop()
	res.Counts.Rejected = int64(len(rejected))
	// Quarantine commits on its own so rejected rows are kept even if the batch fails later.
	sw = step(StageQuarantine)
	if len(rejected) > 0 {
		n, err := c.cfg.Warehouse.Quarantine(ctx, rejected)
		if err != nil {
			return res, fail(err)
		}
		sw.AddRows(n)
		log.Info("quarantined ", len(rejected), " rows (", n, " new)")
	}
	sw.Stop()
	// Batch transaction.
	stage = StageStaging
	if tx, err = c.cfg.Warehouse.Begin(ctx); err != nil {
		return res, fail(err)
	}
	sw = step(StageStaging)
	staged, err := c.staging.Write(ctx, tx, accepted)
	if err != nil {
		return res, fail(err)
	}
	sw.AddRows(staged.Written)
	sw.Stop()
	sw = step(StageFacts)
	loaded, err := c.facts.Load(ctx, tx, accepted, b.Range.Number, b.LoadedAt)
	if err != nil {
		return res, fail(err)
	}
	sw.AddRows(len(loaded.Inserted))
	sw.Stop()
	res.Counts.Inserted = int64(len(loaded.Inserted))
	res.Counts.AlreadyPresent = int64(loaded.AlreadyPresent)
	sw = step(StageDimensions)
	if _, err := c.dimensions.Apply(ctx, tx, loaded.Inserted, b.LoadedAt); err != nil {
		return res, fail(err)
	}
	sw.AddRows(len(loaded.Inserted))
	sw.Stop()
	sw = step(StageCheckpoint)
	advanced, err := c.cursor.Commit(ctx, tx, cp, b.Range, c.cfg.Clock().UTC())
	if err != nil {
		return res, fail(err)
	}
	sw.Stop()
	if !advanced {
		log.Info(b.Range, " does not follow checkpoint offset ", cp.LastRowOffset, "; checkpoint left unchanged")
	}
	sw = step(StageCompleteLog)
	entry, err := c.execLog.Completed(ctx, tx, b, sequence, res.Counts, advanced, c.cfg.Clock().UTC())
	if err != nil {
		return res, fail(err)
	}
	sw.Stop()
	sw = step(StageCommit)
	if err := tx.Commit(); err != nil {
		return res, fail(err)
	}
	sw.Stop()
	res.Entry = entry
	res.CheckpointAdvanced = advanced
	log.Info(entry.String())
	return res, nil
}

func (c *Controller) observe(res Result, st stats.StatsFetcher) {
	if c.cfg.Metrics == nil {
		return
	}
	offset := int64(-1)
	if res.CheckpointAdvanced {
		offset = res.Range.End
	}
	c.cfg.Metrics.ObserveBatch(stats.BatchOutcome{
		Status:           string(res.State),
		Duration:         res.Entry.EndedAt.Sub(res.Entry.StartedAt),
		Processed:        res.Counts.Processed,
		Inserted:         res.Counts.Inserted,
		AlreadyPresent:   res.Counts.AlreadyPresent,
		Rejected:         res.Counts.Rejected,
		CheckpointOffset: offset,
	})
	c.cfg.Metrics.ObserveStages(st)
}

package actions

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/relloyd/retail-loader/components"
	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/pipeline"
	"github.com/relloyd/retail-loader/source"
	"github.com/relloyd/retail-loader/stats"
	"github.com/relloyd/retail-loader/warehouse"
)

// Exit codes for the load command.
const (
	ExitCodeOK          = 0
	ExitCodeBatchFailed = 1
	ExitCodeConfigError = 2
)

type LoadConfig struct {
	Connections      ConnectionLoader `errorTxt:"connections" mandatory:"yes"`
	WarehouseName    string           `errorTxt:"warehouse connection name" mandatory:"yes"`
	SourceLocation   string           `errorTxt:"source CSV file or S3 URL" mandatory:"yes"`
	S3Region         string
	PipelineName     string
	BatchSize        int
	BatchNumber      int // zero means the batch after the checkpoint
	TimeoutSeconds   int
	LockTTLSeconds   int
	RulesFile        string
	PushGateway      string
	LogLevel         string
	StackDumpOnPanic bool
	Out              io.Writer
}

// LoadSummary is printed after a load and returned by the Lambda handler.
type LoadSummary struct {
	State              pipeline.State `json:"state"`
	BatchNumber        int64          `json:"batchNumber"`
	StartRow           int64          `json:"startRow"`
	EndRow             int64          `json:"endRow"`
	NoRowsRemaining    bool           `json:"noRowsRemaining"`
	CheckpointAdvanced bool           `json:"checkpointAdvanced"`
	RowsProcessed      int64          `json:"rowsProcessed"`
	RowsInserted       int64          `json:"rowsInserted"`
	RowsAlreadyPresent int64          `json:"rowsAlreadyPresent"`
	RowsRejected       int64          `json:"rowsRejected"`
	Error              string         `json:"error,omitempty"`
}

func (s LoadSummary) String() string {
	if s.NoRowsRemaining {
		return "No rows remaining"
	}
	msg := fmt.Sprintf("Batch %v rows %v-%v %v: processed=%v inserted=%v alreadyPresent=%v rejected=%v",
		s.BatchNumber, s.StartRow, s.EndRow, s.State, s.RowsProcessed, s.RowsInserted, s.RowsAlreadyPresent, s.RowsRejected)
	if s.State == pipeline.StateCommitted {
		if s.CheckpointAdvanced {
			msg += fmt.Sprintf(" (checkpoint advanced to row %v)", s.EndRow)
		} else {
			msg += " (checkpoint unchanged)"
		}
	}
	return msg
}

// ExitCode maps the error returned by RunLoad to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeOK
	case pipeline.IsConfigError(err):
		return ExitCodeConfigError
	}
	return ExitCodeBatchFailed
}

// RunLoad processes one batch: the next one, or cfg.BatchNumber when it is set.
func RunLoad(ctx context.Context, cfg *LoadConfig) (LoadSummary, error) {
	log := newLogger(cfg.LogLevel, cfg.StackDumpOnPanic)
	ctx, cancel := interruptibleContext(ctx, log)
	defer cancel()
	metrics := stats.NewMetrics()
	ctl, w, err := openPipeline(ctx, log, cfg, metrics)
	if err != nil {
		return LoadSummary{Error: err.Error()}, err
	}
	defer func() {
		if err := w.Close(); err != nil {
			log.Warn("error closing warehouse: ", err)
		}
	}()
	var res pipeline.Result
	if cfg.BatchNumber > 0 {
		res, err = ctl.ProcessBatch(ctx, int64(cfg.BatchNumber))
	} else {
		res, err = ctl.Advance(ctx)
	}
	if cfg.PushGateway != "" {
		if perr := metrics.Push(cfg.PushGateway); perr != nil {
			log.Warn("unable to push metrics to ", cfg.PushGateway, ": ", perr)
		}
	}
	s := summarise(res, err)
	_, _ = fmt.Fprintln(outputOrStdout(cfg.Out), s)
	return s, err
}

// NewLambdaHandler returns a handler that advances the pipeline by one batch per invocation.
func NewLambdaHandler(cfg *LoadConfig) func(ctx context.Context) (LoadSummary, error) {
	return func(ctx context.Context) (LoadSummary, error) {
		c := *cfg
		c.BatchNumber = 0
		return RunLoad(ctx, &c)
	}
}

func summarise(res pipeline.Result, err error) LoadSummary {
	s := LoadSummary{
		State:              res.State,
		BatchNumber:        res.Range.Number,
		StartRow:           res.Range.Start,
		EndRow:             res.Range.End,
		NoRowsRemaining:    res.NoRowsRemaining,
		CheckpointAdvanced: res.CheckpointAdvanced,
		RowsProcessed:      res.Counts.Processed,
		RowsInserted:       res.Counts.Inserted,
		RowsAlreadyPresent: res.Counts.AlreadyPresent,
		RowsRejected:       res.Counts.Rejected,
	}
	if err != nil {
		s.Error = err.Error()
		if s.State == "" || s.State == pipeline.StateIdle {
			s.State = pipeline.StateFailed
		}
	}
	return s
}

// openPipeline builds the controller for cfg. Anything wrong with the supplied settings is a ConfigError;
// failing to reach the warehouse is a BatchError.
func openPipeline(ctx context.Context, log logger.Logger, cfg *LoadConfig, metrics *stats.Metrics) (*pipeline.Controller, warehouse.Warehouse, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, nil, pipeline.NewConfigError(err, "incomplete load config")
	}
	if cfg.BatchNumber < 0 {
		return nil, nil, pipeline.NewConfigError(nil, "batch number must be 1 or more; got %v", cfg.BatchNumber)
	}
	if cfg.BatchSize <= 0 {
		return nil, nil, pipeline.NewConfigError(nil, "batch size must be a positive integer; got %v", cfg.BatchSize)
	}
	if cfg.PipelineName == "" {
		cfg.PipelineName = constants.DefaultPipelineName
	}
	var rules *components.QualityRules
	if cfg.RulesFile != "" {
		var err error
		if rules, err = components.LoadQualityRules(cfg.RulesFile); err != nil {
			return nil, nil, pipeline.NewConfigError(err, "invalid quality rules")
		}
		log.Info("Loaded ", rules.Len(), " quality rules from ", cfg.RulesFile)
	}
	src, err := source.NewCSVSource(source.CSVSourceConfig{Log: log, Location: cfg.SourceLocation, Region: cfg.S3Region})
	if err != nil {
		return nil, nil, pipeline.NewConfigError(err, "invalid source %q", cfg.SourceLocation)
	}
	w, err := openWarehouseByName(ctx, log, cfg.Connections, cfg.WarehouseName, cfg.PipelineName)
	if err != nil {
		return nil, nil, err
	}
	ctl, err := pipeline.NewController(pipeline.Config{
		Log:          log,
		PipelineName: cfg.PipelineName,
		BatchSize:    int64(cfg.BatchSize),
		Source:       src,
		Warehouse:    w,
		Rules:        rules,
		LockTTL:      time.Duration(cfg.LockTTLSeconds) * time.Second,
		Timeout:      time.Duration(cfg.TimeoutSeconds) * time.Second,
		Metrics:      metrics,
	})
	if err != nil {
		_ = w.Close()
		return nil, nil, err
	}
	return ctl, w, nil
}

// openWarehouseByName loads and validates the named connection before opening it.
func openWarehouseByName(ctx context.Context, log logger.Logger, connections ConnectionLoader, name string, pipelineName string) (warehouse.Warehouse, error) {
	c, err := connections.LoadConnection(name)
	if err != nil {
		return nil, pipeline.NewConfigError(err, "unable to load warehouse connection %q", name)
	}
	if !IsSupportedConnectionType(c.Type) {
		return nil, pipeline.NewConfigError(nil, "unsupported warehouse connection type %q, please use one of: %v", c.Type, GetSupportedConnectionTypes())
	}
	if v := connectionValidator(c); v != nil {
		if err := v.Parse(); err != nil {
			return nil, pipeline.NewConfigError(err, "invalid warehouse connection %q", name)
		}
	}
	w, err := OpenWarehouse(log, c, pipelineName)
	if err != nil {
		return nil, &pipeline.BatchError{Stage: pipeline.StageConnect, Cause: err}
	}
	if err := w.Ping(ctx); err != nil {
		_ = w.Close()
		return nil, &pipeline.BatchError{Stage: pipeline.StageConnect, Cause: err}
	}
	return w, nil
}

package actions

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/pipeline"
	"github.com/relloyd/retail-loader/source"
	"github.com/relloyd/retail-loader/warehouse"
)

type StatusConfig struct {
	Connections      ConnectionLoader `errorTxt:"connections" mandatory:"yes"`
	WarehouseName    string           `errorTxt:"warehouse connection name" mandatory:"yes"`
	PipelineName     string
	SourceLocation   string // optional; adds the rows remaining
	S3Region         string
	BatchSize        int
	NumLogEntries    int
	Output           string // text or json
	LogLevel         string
	StackDumpOnPanic bool
	Out              io.Writer
}

// StatusReport is pipeline.Status plus what is left to load when the source is known.
type StatusReport struct {
	pipeline.Status
	Source           string `json:"source,omitempty"`
	SourceRows       int64  `json:"sourceRows,omitempty"`
	RowsRemaining    int64  `json:"rowsRemaining,omitempty"`
	BatchesRemaining int64  `json:"batchesRemaining,omitempty"`
}

// warehouseStatus reports status from the warehouse alone for processes that do not run batches.
type warehouseStatus struct {
	w warehouse.Reader
}

func (s warehouseStatus) Status(ctx context.Context, numLogEntries int) (pipeline.Status, error) {
	if numLogEntries <= 0 {
		numLogEntries = constants.DefaultStatusLogDepth
	}
	snap, err := s.w.Snapshot(ctx, numLogEntries)
	if err != nil {
		return pipeline.Status{}, err
	}
	return pipeline.Status{
		State:      pipeline.StateIdle,
		Checkpoint: snap.Checkpoint,
		RecentRuns: snap.RecentRuns,
		Summary:    snap.Summary,
	}, nil
}

// RunStatus prints the checkpoint, recent runs and summary counts. It never takes the pipeline lock.
func RunStatus(ctx context.Context, cfg *StatusConfig) (StatusReport, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return StatusReport{}, pipeline.NewConfigError(err, "incomplete status config")
	}
	if cfg.PipelineName == "" {
		cfg.PipelineName = constants.DefaultPipelineName
	}
	log := newLogger(cfg.LogLevel, cfg.StackDumpOnPanic)
	w, err := openWarehouseByName(ctx, log, cfg.Connections, cfg.WarehouseName, cfg.PipelineName)
	if err != nil {
		return StatusReport{}, err
	}
	defer w.Close()
	st, err := warehouseStatus{w: w}.Status(ctx, cfg.NumLogEntries)
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{Status: st}
	if cfg.SourceLocation != "" { // if we can work out what is left to load...
		src, err := source.NewCSVSource(source.CSVSourceConfig{Log: log, Location: cfg.SourceLocation, Region: cfg.S3Region})
		if err != nil {
			return StatusReport{}, pipeline.NewConfigError(err, "invalid source %q", cfg.SourceLocation)
		}
		if report.SourceRows, err = src.Count(ctx); err != nil {
			return StatusReport{}, err
		}
		report.Source = src.Name()
		report.RowsRemaining = remaining(report.SourceRows, st.Checkpoint.LastRowOffset)
		if cfg.BatchSize > 0 {
			report.BatchesRemaining = (report.RowsRemaining + int64(cfg.BatchSize) - 1) / int64(cfg.BatchSize)
		}
	}
	out := outputOrStdout(cfg.Out)
	if strings.ToLower(cfg.Output) == "json" {
		return report, writeJSON(out, report)
	}
	writeStatusText(out, cfg.PipelineName, report)
	return report, nil
}

func remaining(total, offset int64) int64 {
	if offset >= total {
		return 0
	}
	return total - offset
}

func writeStatusText(w io.Writer, pipelineName string, r StatusReport) {
	cp := r.Checkpoint
	s := r.Summary
	_, _ = fmt.Fprintf(w, "Pipeline:          %v\n", pipelineName)
	_, _ = fmt.Fprintf(w, "State:             %v\n", r.State)
	_, _ = fmt.Fprintf(w, "Last row offset:   %v\n", cp.LastRowOffset)
	_, _ = fmt.Fprintf(w, "Batch sequence:    %v\n", cp.BatchSequence)
	if !cp.UpdatedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "Updated at:        %v\n", cp.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if r.Source != "" {
		_, _ = fmt.Fprintf(w, "Source:            %v (%v rows, %v remaining", r.Source, r.SourceRows, r.RowsRemaining)
		if r.BatchesRemaining > 0 {
			_, _ = fmt.Fprintf(w, " in %v batches", r.BatchesRemaining)
		}
		_, _ = fmt.Fprintln(w, ")")
	}
	_, _ = fmt.Fprintf(w, "Transactions:      %v (%v returns, %v guest)\n", s.TotalTransactions, s.TotalReturns, s.GuestTransactions)
	_, _ = fmt.Fprintf(w, "Revenue:           %v\n", s.TotalRevenue.StringFixed(2))
	_, _ = fmt.Fprintf(w, "Products:          %v\n", s.TotalProducts)
	_, _ = fmt.Fprintf(w, "Customers:         %v\n", s.TotalCustomers)
	_, _ = fmt.Fprintf(w, "Countries:         %v\n", s.TotalCountries)
	_, _ = fmt.Fprintf(w, "Staged rows:       %v\n", s.StagedRows)
	_, _ = fmt.Fprintf(w, "Quarantined rows:  %v\n", s.QuarantinedRows)
	if len(r.RecentRuns) == 0 {
		_, _ = fmt.Fprintln(w, "Recent runs:       none")
		return
	}
	_, _ = fmt.Fprintln(w, "Recent runs:")
	for _, e := range r.RecentRuns {
		_, _ = fmt.Fprintf(w, "  %v %v\n", e.StartedAt.Format("2006-01-02 15:04:05"), e)
	}
}

package actions

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/helper"
)

type QuarantineConfig struct {
	Connections      ConnectionLoader `errorTxt:"connections" mandatory:"yes"`
	WarehouseName    string           `errorTxt:"warehouse connection name" mandatory:"yes"`
	PipelineName     string
	Limit            int
	PrintHeader      bool
	LogLevel         string
	StackDumpOnPanic bool
	Out              io.Writer
}

var quarantineHeader = []string{"file", "row", "reason", "detail", "payload", "batch", "run_id", "quarantined_at"}

// RunQuarantine prints quarantined rows as CSV.
func RunQuarantine(ctx context.Context, cfg *QuarantineConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return err
	}
	if cfg.PipelineName == "" {
		cfg.PipelineName = constants.DefaultPipelineName
	}
	log := newLogger(cfg.LogLevel, cfg.StackDumpOnPanic)
	w, err := openWarehouseByName(ctx, log, cfg.Connections, cfg.WarehouseName, cfg.PipelineName)
	if err != nil {
		return err
	}
	defer w.Close()
	rows, err := w.Quarantined(ctx, cfg.Limit)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(outputOrStdout(cfg.Out))
	if cfg.PrintHeader {
		if err = cw.Write(quarantineHeader); err != nil {
			return fmt.Errorf("error writing CSV header: %w", err)
		}
	}
	for _, q := range rows {
		err = cw.Write([]string{
			q.FileName,
			strconv.FormatInt(q.RowIndex, 10),
			string(q.Reason),
			q.Detail,
			q.RawPayload,
			strconv.FormatInt(q.BatchNumber, 10),
			q.RunID,
			valuesToStrings([]interface{}{q.QuarantinedAt})[0],
		})
		if err != nil {
			return fmt.Errorf("error writing quarantined row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

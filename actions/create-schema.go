package actions

import (
	"context"
	"fmt"
	"io"

	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/rdbms"
	"github.com/relloyd/retail-loader/warehouse"
)

type CreateSchemaConfig struct {
	Connections      ConnectionLoader `errorTxt:"connections" mandatory:"yes"`
	WarehouseName    string           `errorTxt:"warehouse connection name" mandatory:"yes"`
	PipelineName     string
	ExecuteDDL       bool
	LogLevel         string
	StackDumpOnPanic bool
	Out              io.Writer
}

// RunCreateSchema prints the warehouse DDL for the connection's dialect, or executes it.
func RunCreateSchema(cfg *CreateSchemaConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return err
	}
	if cfg.PipelineName == "" {
		cfg.PipelineName = constants.DefaultPipelineName
	}
	log := newLogger(cfg.LogLevel, cfg.StackDumpOnPanic)
	out := outputOrStdout(cfg.Out)
	c, err := cfg.Connections.LoadConnection(cfg.WarehouseName)
	if err != nil {
		return err
	}
	if !rdbms.IsSupportedConnection(c.Type) {
		return fmt.Errorf("connection %q is of type %v which needs no DDL", cfg.WarehouseName, c.Type)
	}
	if !cfg.ExecuteDDL { // if we should print the DDL only...
		stmts, err := warehouse.GenerateDDL(c.Type, cfg.PipelineName)
		if err != nil {
			return err
		}
		for _, s := range stmts {
			_, _ = fmt.Fprintf(out, "%v;\n\n", s)
		}
		return nil
	}
	db, err := rdbms.OpenDbConnection(log, c)
	if err != nil {
		return err
	}
	defer db.Close()
	printLog := getPrintLogFunc(log, out, true)
	printLog("Executing DDL...")
	if err = warehouse.ExecuteDDL(context.Background(), log, db, cfg.PipelineName); err != nil {
		return err
	}
	printLog("DDL succeeded without error.")
	return nil
}

package actions

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/rdbms"
)

type QueryConfig struct {
	Connections      ConnectionLoader `errorTxt:"connections" mandatory:"yes"`
	ConnectionName   string           `errorTxt:"connection name" mandatory:"yes"`
	Query            string           `errorTxt:"SQL query" mandatory:"yes"`
	PrintHeader      bool
	DryRun           bool
	LogLevel         string
	StackDumpOnPanic bool
	Out              io.Writer
}

type sqlHandler struct {
	printHeader bool
	w           *csv.Writer
}

func (s *sqlHandler) HandleHeader(i []interface{}) error {
	if s.printHeader {
		if err := s.w.Write(valuesToStrings(i)); err != nil {
			return fmt.Errorf("error outputting SQL header: %v", err)
		}
		s.w.Flush()
	}
	return nil
}

func (s *sqlHandler) HandleRow(i []interface{}) error {
	if err := s.w.Write(valuesToStrings(i)); err != nil {
		return fmt.Errorf("error outputting SQL row: %v", err)
	}
	s.w.Flush()
	return nil
}

// RunQuery runs ad hoc SQL against a SQL warehouse connection and prints the results as CSV.
func RunQuery(cfg *QueryConfig) error {
	out := outputOrStdout(cfg.Out)
	if cfg.DryRun {
		_, _ = fmt.Fprintln(out, cfg.Query)
		return nil
	}
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel, cfg.StackDumpOnPanic)
	conn, err := cfg.Connections.LoadConnection(cfg.ConnectionName)
	if err != nil {
		return err
	}
	if !rdbms.IsSupportedConnection(conn.Type) {
		return fmt.Errorf("connection %q is of type %v and cannot run SQL", cfg.ConnectionName, conn.Type)
	}
	db, err := rdbms.OpenDbConnection(log, conn)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx, cancel := interruptibleContext(context.Background(), log)
	defer cancel()
	h := sqlHandler{printHeader: cfg.PrintHeader, w: csv.NewWriter(out)}
	chanSql := make(chan error, 1)
	go func() {
		chanSql <- rdbms.SqlQuery(ctx, log, db, cfg.Query, &h)
	}()
	select {
	case err = <-chanSql:
		return err
	case <-ctx.Done(): // interrupted...
		select {
		case <-time.After(5 * time.Second):
			_, _ = fmt.Fprintln(out, "Timeout waiting for SQL to end - aborted")
		case <-chanSql:
		}
		return nil
	}
}

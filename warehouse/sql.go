package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/rdbms/shared"
)

type SQLConfig struct {
	Log          logger.Logger    `errorTxt:"logger" mandatory:"yes"`
	Conn         shared.Connector `errorTxt:"database connection" mandatory:"yes"`
	PipelineName string           `errorTxt:"pipeline name" mandatory:"yes"`
}

// SQL is a Warehouse stored in Snowflake or Postgres.
// Insert-if-absent is done by probing for existing keys and inserting the rest, since Snowflake does not
// enforce primary keys. The pipeline lock makes the probe safe.
type SQL struct {
	SQLConfig
}

func NewSQLWarehouse(cfg SQLConfig) (*SQL, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	return &SQL{SQLConfig: cfg}, nil
}

// rebind converts ? placeholders to the connection's bind style.
func (w *SQL) rebind(query string) string {
	dml := w.Conn.GetDmlGenerator()
	if dml.Bind(1) == "?" {
		return query
	}
	b := strings.Builder{}
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(dml.Bind(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (w *SQL) sysdate() string {
	return shared.ConnectionDetails{Type: w.Conn.GetType()}.MustGetSysDateSql()
}

// readOnlyTxOptions returns options for a consistent read, or nil where the driver only supports defaults.
func (w *SQL) readOnlyTxOptions() *sql.TxOptions {
	if w.Conn.GetType() == constants.ConnectionTypePostgres {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return nil
}

func (w *SQL) generatorConfig(t table) *shared.SqlStatementGeneratorConfig {
	return &shared.SqlStatementGeneratorConfig{
		Log:             w.Log,
		OutputSchema:    t.name.GetSchema(),
		OutputTable:     t.name.GetTable(),
		TargetKeyCols:   shared.NewColumnMap(t.keyNames()...),
		TargetOtherCols: shared.NewColumnMap(t.otherNames()...),
	}
}

// insertRows writes rows with multi-row INSERT statements.
func (w *SQL) insertRows(ctx context.Context, ex shared.Execer, t table, rows [][]interface{}) error {
	return execBatches(ctx, ex, w.Conn.GetDmlGenerator().NewInsertGenerator(w.generatorConfig(t)), rows)
}

// upsertRows writes rows with multi-row MERGE or INSERT ... ON CONFLICT statements.
func (w *SQL) upsertRows(ctx context.Context, ex shared.Execer, t table, rows [][]interface{}) error {
	return execBatches(ctx, ex, w.Conn.GetDmlGenerator().NewUpsertGenerator(w.generatorConfig(t)), rows)
}

func execBatches(ctx context.Context, ex shared.Execer, gen shared.SqlStmtTxtBatcher, rows [][]interface{}) error {
	for start := 0; start < len(rows); start += constants.SqlTxtBatchNumRowsDefault {
		end := start + constants.SqlTxtBatchNumRowsDefault
		if end > len(rows) {
			end = len(rows)
		}
		gen.InitBatch(end - start)
		for _, r := range rows[start:end] {
			if _, err := gen.AddValuesToBatch(r); err != nil {
				return err
			}
		}
		if _, err := ex.ExecContext(ctx, gen.GetStatement(), gen.GetValues()...); err != nil {
			return err
		}
	}
	return nil
}

// inList returns "(?,?,...)" with n binds.
func inList(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?,", n), ",") + ")"
}

// chunks splits keys into slices no longer than the IN list limit.
func chunks(keys []string) [][]string {
	retval := make([][]string, 0, len(keys)/constants.SqlInListMaxLen+1)
	for start := 0; start < len(keys); start += constants.SqlInListMaxLen {
		end := start + constants.SqlInListMaxLen
		if end > len(keys) {
			end = len(keys)
		}
		retval = append(retval, keys[start:end])
	}
	return retval
}

func toArgs(prefix []interface{}, keys []string) []interface{} {
	args := make([]interface{}, 0, len(prefix)+len(keys))
	args = append(args, prefix...)
	for _, k := range keys {
		args = append(args, k)
	}
	return args
}

// existingRowIndexes returns the row indexes already present in t for each file, restricted to the
// range covered by keys.
func (w *SQL) existingRowIndexes(ctx context.Context, q shared.Queryer, t table, keys []model.StagingKey) (map[model.StagingKey]bool, error) {
	type span struct{ min, max int64 }
	spans := make(map[string]*span)
	for _, k := range keys {
		s, ok := spans[k.FileName]
		if !ok {
			spans[k.FileName] = &span{k.RowIndex, k.RowIndex}
			continue
		}
		if k.RowIndex < s.min {
			s.min = k.RowIndex
		}
		if k.RowIndex > s.max {
			s.max = k.RowIndex
		}
	}
	retval := make(map[model.StagingKey]bool)
	stmt := w.rebind(fmt.Sprintf("select ROW_NUMBER_IN_FILE from %v where FILE_NAME = ? and ROW_NUMBER_IN_FILE between ? and ?", t.name))
	for file, s := range spans {
		rows, err := q.QueryContext(ctx, stmt, file, s.min, s.max)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading existing rows from %v", t.name)
		}
		for rows.Next() {
			var idx int64
			if err = rows.Scan(&idx); err != nil {
				_ = rows.Close()
				return nil, err
			}
			retval[model.StagingKey{FileName: file, RowIndex: idx}] = true
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return retval, nil
}

func (w *SQL) AppendLog(ctx context.Context, e model.ExecutionLogEntry) error {
	return errors.Wrap(w.insertRows(ctx, w.Conn, tableExecutionLog, [][]interface{}{executionLogValues(e)}),
		"error writing execution log")
}

// Quarantine stores rows not already quarantined in their own transaction and returns how many were new.
func (w *SQL) Quarantine(ctx context.Context, rows []model.QuarantinedRow) (n int, err error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := w.Conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "error starting quarantine transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	keys := make([]model.StagingKey, len(rows))
	for i := range rows {
		keys[i] = rows[i].Key()
	}
	existing, err := w.existingRowIndexes(ctx, tx, tableQuarantine, keys)
	if err != nil {
		return 0, err
	}
	values := make([][]interface{}, 0, len(rows))
	seen := make(map[model.StagingKey]bool)
	for _, r := range rows {
		if existing[r.Key()] || seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		values = append(values, quarantineValues(r))
	}
	if err = w.insertRows(ctx, tx, tableQuarantine, values); err != nil {
		return 0, errors.Wrap(err, "error writing quarantined rows")
	}
	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "error committing quarantined rows")
	}
	return len(values), nil
}

// ensureCheckpointRow seeds the checkpoint at offset 0 if the pipeline has never run.
func (w *SQL) ensureCheckpointRow(ctx context.Context) error {
	stmt := fmt.Sprintf("insert into %v (PIPELINE_NAME, LAST_ROW_OFFSET, BATCH_SEQUENCE, VERSION, UPDATED_AT) "+
		"select ?, 0, 0, 0, %v where not exists (select 1 from %v where PIPELINE_NAME = ?)",
		tableCheckpoint.name, w.sysdate(), tableCheckpoint.name)
	_, err := w.Conn.ExecContext(ctx, w.rebind(stmt), w.PipelineName, w.PipelineName)
	return errors.Wrap(err, "error seeding checkpoint")
}

// AcquireLock takes the lease held in the checkpoint row. An expired lease is taken over.
func (w *SQL) AcquireLock(ctx context.Context, owner string, ttl time.Duration) error {
	if err := w.ensureCheckpointRow(ctx); err != nil {
		return err
	}
	now := time.Now().UTC()
	stmt := fmt.Sprintf("update %v set LOCK_OWNER = ?, LOCK_EXPIRES_AT = ? where PIPELINE_NAME = ? "+
		"and (LOCK_OWNER is null or LOCK_OWNER = ? or LOCK_EXPIRES_AT < ?)", tableCheckpoint.name)
	res, err := w.Conn.ExecContext(ctx, w.rebind(stmt), owner, now.Add(ttl), w.PipelineName, owner, now)
	if err != nil {
		return errors.Wrap(err, "error acquiring pipeline lock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "error acquiring pipeline lock")
	}
	if n == 0 {
		var holder sql.NullString
		var expires sql.NullTime
		q := w.rebind(fmt.Sprintf("select LOCK_OWNER, LOCK_EXPIRES_AT from %v where PIPELINE_NAME = ?", tableCheckpoint.name))
		rows, qerr := w.Conn.QueryContext(ctx, q, w.PipelineName)
		if qerr == nil {
			if rows.Next() {
				_ = rows.Scan(&holder, &expires)
			}
			_ = rows.Close()
		}
		return errors.Wrapf(ErrLockHeld, "owner %v until %v", holder.String, utc(expires).Format(time.RFC3339))
	}
	return nil
}

func (w *SQL) ReleaseLock(ctx context.Context, owner string) error {
	stmt := fmt.Sprintf("update %v set LOCK_OWNER = null, LOCK_EXPIRES_AT = null where PIPELINE_NAME = ? and LOCK_OWNER = ?",
		tableCheckpoint.name)
	_, err := w.Conn.ExecContext(ctx, w.rebind(stmt), w.PipelineName, owner)
	return errors.Wrap(err, "error releasing pipeline lock")
}

func (w *SQL) Ping(ctx context.Context) error {
	return w.Conn.PingContext(ctx)
}

func (w *SQL) Close() error {
	w.Conn.Close()
	return nil
}

func (w *SQL) Begin(ctx context.Context) (Tx, error) {
	tx, err := w.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "error starting batch transaction")
	}
	return &sqlTx{w: w, tx: tx}, nil
}

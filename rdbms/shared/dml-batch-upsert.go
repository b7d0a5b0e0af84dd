package shared

import (
	"fmt"
	"strings"

	"github.com/relloyd/retail-loader/constants"
)

// SqlUpsertTxtBatch implements SqlStmtTxtBatcher and generates insert-or-update statements keyed by
// TargetKeyCols: MERGE for Snowflake and INSERT ... ON CONFLICT for Postgres.
// Values must be supplied as key columns followed by other columns.
type SqlUpsertTxtBatch struct {
	SqlStatementGeneratorConfig
	sqlCoreCfg
	KeyCols   []string
	OtherCols []string
	AllCols   []string
	dml       *DmlGeneratorTxtBatch
}

// NewUpsertGenerator creates a new generator that implements interface SqlStmtTxtBatcher.
func (d *DmlGeneratorTxtBatch) NewUpsertGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtTxtBatcher {
	if err := FixSqlStatementGeneratorConfig(cfg); err != nil {
		cfg.Log.Panic(err)
	}
	o := &SqlUpsertTxtBatch{SqlStatementGeneratorConfig: *cfg, dml: d}
	o.KeyCols = orderedMapValues(o.TargetKeyCols)
	o.OtherCols = orderedMapValues(o.TargetOtherCols)
	o.AllCols = append(append([]string{}, o.KeyCols...), o.OtherCols...)
	return o
}

func (o *SqlUpsertTxtBatch) InitBatch(batchSize int) {
	o.initBatch(batchSize, len(o.AllCols))
}

func (o *SqlUpsertTxtBatch) AddValuesToBatch(values []interface{}) (batchIsFull bool, err error) {
	return o.addValues(len(o.AllCols), values)
}

func (o *SqlUpsertTxtBatch) GetValues() []interface{} {
	return o.sqlValues
}

func (o *SqlUpsertTxtBatch) GetStatement() string {
	if o.previousNumRowsInBatch == o.rowsInBatch && o.sqlStmt != "" { // if we can use cached SQL...
		return o.sqlStmt
	}
	table := o.OutputSchema + o.SchemaSeparator + o.OutputTable
	values := bindRows(o.dml, o.rowsInBatch, len(o.AllCols))
	if o.dml.Dialect == constants.ConnectionTypePostgres {
		sets := make([]string, len(o.OtherCols))
		for i, c := range o.OtherCols {
			sets[i] = fmt.Sprintf("%v = excluded.%v", c, c)
		}
		o.sqlStmt = fmt.Sprintf("insert into %v (%v) values %v on conflict (%v) do update set %v",
			table, strings.Join(o.AllCols, ","), values, strings.Join(o.KeyCols, ","), strings.Join(sets, ","))
	} else {
		// Snowflake names VALUES columns column1..columnN.
		srcCols := make([]string, len(o.AllCols))
		for i, c := range o.AllCols {
			srcCols[i] = fmt.Sprintf("column%d as %v", i+1, c)
		}
		keysEqual := make([]string, len(o.KeyCols))
		for i, c := range o.KeyCols {
			keysEqual[i] = fmt.Sprintf("T.%v = S.%v", c, c)
		}
		sets := make([]string, len(o.OtherCols))
		for i, c := range o.OtherCols {
			sets[i] = fmt.Sprintf("T.%v = S.%v", c, c)
		}
		o.sqlStmt = fmt.Sprintf("merge into %v T using (select %v from values %v) S on (%v) "+
			"when matched then update set %v when not matched then insert (%v) values (S.%v)",
			table, strings.Join(srcCols, ","), values, strings.Join(keysEqual, " and "),
			strings.Join(sets, ","), strings.Join(o.AllCols, ","), strings.Join(o.AllCols, ",S."))
	}
	o.previousNumRowsInBatch = o.rowsInBatch
	o.Log.Trace("SQL batch UPSERT generated statement: ", o.sqlStmt)
	return o.sqlStmt
}

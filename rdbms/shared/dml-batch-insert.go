package shared

import (
	"strings"
)

// SqlInsertTxtBatch implements SqlStmtTxtBatcher and
// is able to generate multi-row INSERT statements with batches of rows supplied.
type SqlInsertTxtBatch struct {
	SqlStatementGeneratorConfig // mandatory to be populated.
	sqlCoreCfg
	ColList []string // list of columns extracted from SqlStatementGeneratorConfig.
	dml     *DmlGeneratorTxtBatch
}

// NewInsertGenerator creates a new generator that implements interface SqlStmtTxtBatcher.
// Configure defaults in SqlStatementGeneratorConfig.
func (d *DmlGeneratorTxtBatch) NewInsertGenerator(cfg *SqlStatementGeneratorConfig) SqlStmtTxtBatcher {
	if err := FixSqlStatementGeneratorConfig(cfg); err != nil {
		cfg.Log.Panic(err)
	}
	o := &SqlInsertTxtBatch{SqlStatementGeneratorConfig: *cfg, dml: d}
	o.ColList = append(orderedMapValues(o.TargetKeyCols), orderedMapValues(o.TargetOtherCols)...)
	o.sqlStmtTemplate = `insert into <SCHEMA><SEPARATOR><TABLE> (<TGT-COLS>) values <VALUES>`
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<SCHEMA>", o.OutputSchema, 1)
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<SEPARATOR>", o.SchemaSeparator, 1)
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<TABLE>", o.OutputTable, 1)
	o.sqlStmtTemplate = strings.Replace(o.sqlStmtTemplate, "<TGT-COLS>", strings.Join(o.ColList, ","), 1)
	o.Log.Trace("setup INSERT generator with SQL (VALUES pending): ", o.sqlStmtTemplate)
	return o
}

func (o *SqlInsertTxtBatch) InitBatch(batchSize int) {
	o.initBatch(batchSize, len(o.ColList))
}

func (o *SqlInsertTxtBatch) AddValuesToBatch(values []interface{}) (batchIsFull bool, err error) {
	return o.addValues(len(o.ColList), values)
}

func (o *SqlInsertTxtBatch) GetValues() []interface{} {
	return o.sqlValues
}

// GetStatement renders the INSERT for the rows added so far.
// The SQL is cached while the number of rows stays the same.
func (o *SqlInsertTxtBatch) GetStatement() string {
	if o.previousNumRowsInBatch != o.rowsInBatch || o.sqlStmt == "" { // if we have a new row count and need to generate SQL...
		o.sqlStmt = strings.Replace(o.sqlStmtTemplate, "<VALUES>", bindRows(o.dml, o.rowsInBatch, len(o.ColList)), 1)
		o.previousNumRowsInBatch = o.rowsInBatch
	}
	o.Log.Trace("SQL batch INSERT generated statement: ", o.sqlStmt)
	return o.sqlStmt
}

package shared

import (
	"errors"
	"fmt"
	"strings"

	om "github.com/cevaris/ordered_map"
	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/logger"
)

// DmlGeneratorTxtBatch generates multi-row DML as plain SQL text with bind variables for the given dialect.
type DmlGeneratorTxtBatch struct {
	Dialect string // constants.ConnectionTypeSnowflake or constants.ConnectionTypePostgres
}

type SqlStatementGeneratorConfig struct {
	Log             logger.Logger
	OutputSchema    string
	SchemaSeparator string
	OutputTable     string
	TargetKeyCols   *om.OrderedMap // ordered map of: key = record field name; value = target table column name
	TargetOtherCols *om.OrderedMap // ordered map of: key = record field name; value = target table column name
}

type sqlCoreCfg struct {
	sqlStmt                string
	sqlStmtTemplate        string
	sqlValues              []interface{} // slice to hold data values for all rows in batch
	batchSize              int
	rowsInBatch            int
	previousNumRowsInBatch int
}

// Bind returns "$n" for Postgres and "?" for everything else.
func (d *DmlGeneratorTxtBatch) Bind(n int) string {
	if d.Dialect == constants.ConnectionTypePostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// FixSqlStatementGeneratorConfig sets the schema separator and checks we have somewhere to write to.
func FixSqlStatementGeneratorConfig(cfg *SqlStatementGeneratorConfig) error {
	if cfg.OutputTable == "" {
		return errors.New("missing output table name")
	}
	if cfg.TargetKeyCols == nil {
		cfg.TargetKeyCols = om.NewOrderedMap()
	}
	if cfg.TargetOtherCols == nil {
		cfg.TargetOtherCols = om.NewOrderedMap()
	}
	if cfg.OutputSchema == "" {
		cfg.SchemaSeparator = ""
	} else {
		cfg.SchemaSeparator = "."
	}
	return nil
}

// NewColumnMap builds the ordered map used for TargetKeyCols and TargetOtherCols from a list of column names.
func NewColumnMap(cols ...string) *om.OrderedMap {
	m := om.NewOrderedMap()
	for _, c := range cols {
		m.Set(c, c)
	}
	return m
}

// orderedMapValues returns the target column names held as values in m, in insertion order.
func orderedMapValues(m *om.OrderedMap) []string {
	retval := make([]string, 0, m.Len())
	iter := m.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		retval = append(retval, fmt.Sprintf("%v", kv.Value))
	}
	return retval
}

// bindRows renders numRows groups of numCols binds: "( b1,b2 ),( b3,b4 )".
func bindRows(d *DmlGeneratorTxtBatch, numRows int, numCols int) string {
	allRows := strings.Builder{}
	valIdx := 1
	for rowIdx := 0; rowIdx < numRows; rowIdx++ { // for each row...
		row := make([]string, numCols)
		for idy := 0; idy < numCols; idy++ { // for each field in the current row...
			row[idy] = d.Bind(valIdx)
			valIdx++
		}
		if rowIdx > 0 {
			allRows.WriteString(",")
		}
		allRows.WriteString(fmt.Sprintf("( %v )", strings.Join(row, ",")))
	}
	return allRows.String()
}

// addValues is shared by the generators to append a row of values to the batch.
func (o *sqlCoreCfg) addValues(numCols int, values []interface{}) (batchIsFull bool, err error) {
	if o.rowsInBatch >= o.batchSize {
		return true, errors.New("no more rows allowed in batch")
	}
	if len(values) != numCols {
		return false, fmt.Errorf("the number of values supplied (%v) does not match the number of table columns (%v)", len(values), numCols)
	}
	o.sqlValues = append(o.sqlValues, values...)
	o.rowsInBatch++
	return o.rowsInBatch >= o.batchSize, nil
}

func (o *sqlCoreCfg) initBatch(batchSize int, numCols int) {
	o.batchSize = batchSize
	o.rowsInBatch = 0
	o.sqlValues = make([]interface{}, 0, batchSize*numCols) // many values per row in a batch.
}

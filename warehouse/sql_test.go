package warehouse

import (
	"strings"
	"testing"

	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/rdbms/shared"
	"github.com/sirupsen/logrus"
)

// dialectOnlyConnector supports the calls that build SQL text; anything else panics via the nil embedded interface.
type dialectOnlyConnector struct {
	shared.Connector
	dbType string
}

func (c dialectOnlyConnector) GetType() string {
	return c.dbType
}

func (c dialectOnlyConnector) GetDmlGenerator() shared.DmlGenerator {
	return &shared.DmlGeneratorTxtBatch{Dialect: c.dbType}
}

func newDialectWarehouse(t *testing.T, dbType string) *SQL {
	w, err := NewSQLWarehouse(SQLConfig{Log: logrus.New(), Conn: dialectOnlyConnector{dbType: dbType}, PipelineName: "TEST"})
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func TestSQLRebind(t *testing.T) {
	q := "update T set A = ? where B = ? and C in (?,?)"
	if got := newDialectWarehouse(t, constants.ConnectionTypeSnowflake).rebind(q); got != q {
		t.Fatalf("expected: %v; got: %v", q, got)
	}
	expected := "update T set A = $1 where B = $2 and C in ($3,$4)"
	if got := newDialectWarehouse(t, constants.ConnectionTypePostgres).rebind(q); got != expected {
		t.Fatalf("expected: %v; got: %v", expected, got)
	}
}

func TestSQLReadOnlyTxOptions(t *testing.T) {
	if newDialectWarehouse(t, constants.ConnectionTypeSnowflake).readOnlyTxOptions() != nil {
		t.Fatal("expected default transaction options for Snowflake")
	}
	opts := newDialectWarehouse(t, constants.ConnectionTypePostgres).readOnlyTxOptions()
	if opts == nil || !opts.ReadOnly {
		t.Fatalf("expected a read-only transaction for Postgres; got: %+v", opts)
	}
}

func TestNewSQLWarehouseValidatesConfig(t *testing.T) {
	if _, err := NewSQLWarehouse(SQLConfig{Log: logrus.New()}); err == nil || !strings.Contains(err.Error(), "database connection") {
		t.Fatalf("expected a missing connection error; got: %v", err)
	}
}

func TestInListAndChunks(t *testing.T) {
	if got := inList(3); got != "(?,?,?)" {
		t.Fatalf("expected: (?,?,?); got: %v", got)
	}
	keys := make([]string, constants.SqlInListMaxLen+1)
	c := chunks(keys)
	if len(c) != 2 || len(c[0]) != constants.SqlInListMaxLen || len(c[1]) != 1 {
		t.Fatalf("unexpected chunks: %v x %v", len(c), len(c[0]))
	}
	if len(chunks(nil)) != 0 {
		t.Fatal("expected no chunks for no keys")
	}
}

func TestTableColumnOrderMatchesValues(t *testing.T) {
	cases := []struct {
		name   string
		tbl    table
		values int
	}{
		{"staging", tableStaging, len(stagedRecordValues(stagedRecordForTest()))},
		{"transactions", tableTransactions, len(transactionValues(testTransaction("x")))},
		{"execution log", tableExecutionLog, len(executionLogValues(executionLogForTest()))},
		{"quarantine", tableQuarantine, len(quarantineValues(quarantineForTest()))},
		{"products", tableProducts, len(productValues(productForTest()))},
		{"customers", tableCustomers, len(customerValues(customerForTest()))},
		{"countries", tableCountries, len(countryValues(countryForTest()))},
	}
	for _, c := range cases {
		if got := len(c.tbl.allNames()); got != c.values {
			t.Fatalf("%v: expected %v columns to match values; got: %v", c.name, c.values, got)
		}
	}
}

func TestGenerateDDL(t *testing.T) {
	for _, dialect := range []string{constants.ConnectionTypeSnowflake, constants.ConnectionTypePostgres} {
		stmts, err := GenerateDDL(dialect, "ONLINE_RETAIL")
		if err != nil {
			t.Fatal(err)
		}
		all := strings.Join(stmts, ";\n")
		for _, want := range []string{
			"create schema if not exists METADATA",
			"create table if not exists RAW_DATA.ONLINE_RETAIL_STAGING",
			"primary key (FILE_NAME, ROW_NUMBER_IN_FILE)",
			"create table if not exists METADATA.BATCH_CHECKPOINT",
			"create or replace view ANALYTICS.DAILY_SALES",
			"where PIPELINE_NAME = 'ONLINE_RETAIL'",
		} {
			if !strings.Contains(all, want) {
				t.Fatalf("%v: expected DDL to contain %q", dialect, want)
			}
		}
	}
	stmts, _ := GenerateDDL(constants.ConnectionTypeSnowflake, "X")
	if !strings.Contains(strings.Join(stmts, "\n"), "TIMESTAMP_NTZ") {
		t.Fatal("expected Snowflake column types")
	}
	if _, err := GenerateDDL("oracle", "X"); err == nil {
		t.Fatal("expected an error for an unsupported dialect")
	}
}

func stagedRecordForTest() model.StagedRecord {
	return model.StagedRecord{FileName: "f.csv", RowIndex: 1, InvoiceNo: "1", StockCode: "A", Quantity: 1}
}

func executionLogForTest() model.ExecutionLogEntry {
	return model.ExecutionLogEntry{LogID: "l", RunID: "r", Status: model.BatchStatusStarted}
}

func quarantineForTest() model.QuarantinedRow {
	return model.QuarantinedRow{FileName: "f.csv", RowIndex: 2, Reason: model.QuarantineReasonMalformedRow}
}

func productForTest() model.Product {
	return model.Product{StockCode: "A", SalesCount: 1}
}

func customerForTest() model.Customer {
	days := int64(3)
	return model.Customer{CustomerID: "17850", DaysSinceLastPurchase: &days}
}

func countryForTest() model.Country {
	return model.Country{Country: "France"}
}

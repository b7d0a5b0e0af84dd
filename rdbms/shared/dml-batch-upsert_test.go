package shared

import (
	"testing"

	"github.com/relloyd/retail-loader/constants"
	"github.com/sirupsen/logrus"
)

func newTestUpsertGenerator(dialect string) SqlStmtTxtBatcher {
	dml := &DmlGeneratorTxtBatch{Dialect: dialect}
	return dml.NewUpsertGenerator(&SqlStatementGeneratorConfig{
		Log:             logrus.New(),
		OutputSchema:    "PROCESSED_DATA",
		OutputTable:     "PRODUCTS",
		TargetKeyCols:   NewColumnMap("STOCK_CODE"),
		TargetOtherCols: NewColumnMap("DESCRIPTION", "TOTAL_REVENUE")})
}

func TestPostgresSqlUpsert(t *testing.T) {
	o := newTestUpsertGenerator(constants.ConnectionTypePostgres)
	o.InitBatch(2)
	_, _ = o.AddValuesToBatch([]interface{}{"A1", "Mug", 10})
	_, _ = o.AddValuesToBatch([]interface{}{"B2", "Pen", 5})
	expected := "insert into PROCESSED_DATA.PRODUCTS (STOCK_CODE,DESCRIPTION,TOTAL_REVENUE) values ( $1,$2,$3 ),( $4,$5,$6 ) " +
		"on conflict (STOCK_CODE) do update set DESCRIPTION = excluded.DESCRIPTION,TOTAL_REVENUE = excluded.TOTAL_REVENUE"
	if got := o.GetStatement(); got != expected {
		t.Fatalf("expected: '%v'; got: '%v'", expected, got)
	}
}

func TestSnowflakeSqlUpsert(t *testing.T) {
	o := newTestUpsertGenerator(constants.ConnectionTypeSnowflake)
	o.InitBatch(1)
	if _, err := o.AddValuesToBatch([]interface{}{"A1", "Mug", 10}); err != nil {
		t.Fatal(err)
	}
	expected := "merge into PROCESSED_DATA.PRODUCTS T using (select column1 as STOCK_CODE,column2 as DESCRIPTION,column3 as TOTAL_REVENUE " +
		"from values ( ?,?,? )) S on (T.STOCK_CODE = S.STOCK_CODE) " +
		"when matched then update set T.DESCRIPTION = S.DESCRIPTION,T.TOTAL_REVENUE = S.TOTAL_REVENUE " +
		"when not matched then insert (STOCK_CODE,DESCRIPTION,TOTAL_REVENUE) values (S.STOCK_CODE,S.DESCRIPTION,S.TOTAL_REVENUE)"
	if got := o.GetStatement(); got != expected {
		t.Fatalf("expected: '%v'; got: '%v'", expected, got)
	}
	if _, err := o.AddValuesToBatch([]interface{}{"B2"}); err == nil {
		t.Fatal("expected an error adding to a full batch")
	}
}

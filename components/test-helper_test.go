package components

import (
	"fmt"
	"testing"
	"time"

	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/warehouse"
)

var testLog = logger.NewLogger("components-test", "error", true)

var testNow = time.Date(2011, 12, 10, 12, 0, 0, 0, time.UTC)

func newTestWarehouse(t *testing.T) *warehouse.Memory {
	w, err := warehouse.NewMemoryWarehouse(warehouse.MemoryConfig{Log: testLog, PipelineName: "TEST"})
	if err != nil {
		t.Fatalf("unexpected error creating warehouse: %v", err)
	}
	return w
}

func testBatch(n, start, end int64) BatchContext {
	return BatchContext{RunID: fmt.Sprintf("run-%v", n), Range: model.BatchRange{Start: start, End: end, Number: n}, LoadedAt: testNow}
}

func testRow(idx int64, invoice, stock, qty, price, customer, country string) model.SourceRow {
	return model.SourceRow{
		FileName:    "online_retail.csv",
		RowIndex:    idx,
		InvoiceNo:   invoice,
		StockCode:   stock,
		Description: "ITEM " + stock,
		Quantity:    qty,
		InvoiceDate: "2010-12-01 08:26:00",
		UnitPrice:   price,
		CustomerID:  customer,
		Country:     country,
		Raw:         invoice + "," + stock,
	}
}

func newTestValidator(t *testing.T, rules *QualityRules) *RecordValidator {
	v, err := NewRecordValidator(RecordValidatorConfig{Log: testLog, Rules: rules})
	if err != nil {
		t.Fatal(err)
	}
	return v
}

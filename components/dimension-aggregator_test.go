package components

import (
	"context"
	"testing"
	"time"

	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/warehouse"
	"github.com/shopspring/decimal"
)

// loadRows runs validation, fact load and dimension update for rows in one transaction.
func loadRows(t *testing.T, w warehouse.Warehouse, rows []model.SourceRow, b BatchContext) FactLoadResult {
	ctx := context.Background()
	v := newTestValidator(t, nil)
	f, _ := NewFactLoader(FactLoaderConfig{Log: testLog})
	a, err := NewDimensionAggregator(DimensionAggregatorConfig{Log: testLog})
	if err != nil {
		t.Fatal(err)
	}
	accepted, _ := v.ValidateBatch(rows, b)
	tx, err := w.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	res, err := f.Load(ctx, tx, accepted, b.Range.Number, b.LoadedAt)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Apply(ctx, tx, res.Inserted, b.LoadedAt); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return res
}

func TestDimensionAggregatorSaleAndGuestReturn(t *testing.T) {
	ctx := context.Background()
	w := newTestWarehouse(t)
	rows := []model.SourceRow{
		testRow(1, "INV1", "SKU1", "3", "2.50", "100", "UK"),
		testRow(2, "INV2", "SKU1", "-1", "2.50", "", "UK"),
	}
	loadRows(t, w, rows, testBatch(1, 1, 2))
	p, err := w.Product(ctx, "SKU1")
	if err != nil {
		t.Fatal(err)
	}
	if p.TotalQuantitySold != 2 || p.UniqueCustomers != 1 || p.TransactionCount != 2 || p.ReturnCount != 1 {
		t.Fatalf("unexpected product: %+v", p)
	}
	if !p.TotalRevenue.Equal(decimal.RequireFromString("5")) || !p.AverageUnitPrice.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("unexpected product money: revenue %v average %v", p.TotalRevenue, p.AverageUnitPrice)
	}
	countries, err := w.Countries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(countries) != 1 || countries[0].TotalOrders != 2 || countries[0].TotalCustomers != 1 || countries[0].TotalTransactions != 2 {
		t.Fatalf("unexpected countries: %+v", countries)
	}
	c, err := w.Customer(ctx, "100")
	if err != nil {
		t.Fatal(err)
	}
	if c.TotalOrders != 1 || c.TotalItemsPurchased != 3 || c.Segment != model.CustomerSegmentLow {
		t.Fatalf("unexpected customer: %+v", c)
	}
	if c.DaysSinceLastPurchase == nil || *c.DaysSinceLastPurchase != 374 {
		t.Fatalf("expected: 374 days since last purchase; got: %v", c.DaysSinceLastPurchase)
	}
}

func TestDimensionAggregatorReplayIsNoop(t *testing.T) {
	ctx := context.Background()
	w := newTestWarehouse(t)
	rows := []model.SourceRow{
		testRow(1, "INV1", "SKU1", "3", "2.50", "100", "UK"),
		testRow(2, "INV1", "SKU2", "1", "10", "100", "UK"),
	}
	loadRows(t, w, rows, testBatch(1, 1, 2))
	before, _ := w.Customer(ctx, "100")
	res := loadRows(t, w, rows, testBatch(1, 1, 2))
	if len(res.Inserted) != 0 {
		t.Fatalf("expected no new facts on replay; got: %v", len(res.Inserted))
	}
	after, _ := w.Customer(ctx, "100")
	if after.TotalOrders != before.TotalOrders || !after.TotalAmountSpent.Equal(before.TotalAmountSpent) {
		t.Fatalf("expected replay to leave customer unchanged; before %+v after %+v", before, after)
	}
	if after.TotalOrders != 1 || !after.AverageOrderValue.Equal(decimal.RequireFromString("17.5")) {
		t.Fatalf("unexpected customer orders: %+v", after)
	}
}

func TestDimensionAggregatorAcrossBatches(t *testing.T) {
	ctx := context.Background()
	w := newTestWarehouse(t)
	loadRows(t, w, []model.SourceRow{testRow(1, "INV1", "SKU1", "1", "3", "100", "UK")}, testBatch(1, 1, 1))
	row := testRow(2, "INV2", "SKU1", "2", "1", "200", "UK")
	row.InvoiceDate = "2011-01-05 10:00:00"
	row.Description = ""
	loadRows(t, w, []model.SourceRow{row}, testBatch(2, 2, 2))
	p, _ := w.Product(ctx, "SKU1")
	if !p.MinUnitPrice.Equal(decimal.NewFromInt(1)) || !p.MaxUnitPrice.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("unexpected price range: %v-%v", p.MinUnitPrice, p.MaxUnitPrice)
	}
	if !p.AverageUnitPrice.Equal(decimal.NewFromInt(2)) || p.UniqueCustomers != 2 || p.Description != "ITEM SKU1" {
		t.Fatalf("unexpected product: %+v", p)
	}
	if !p.FirstSaleDate.Equal(time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)) || !p.LastSaleDate.Equal(time.Date(2011, 1, 5, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected sale dates: %v %v", p.FirstSaleDate, p.LastSaleDate)
	}
}

func TestCustomerSegmentFor(t *testing.T) {
	cases := map[string]model.CustomerSegment{
		"0":        model.CustomerSegmentNew,
		"-5":       model.CustomerSegmentNew,
		"0.01":     model.CustomerSegmentLow,
		"999.99":   model.CustomerSegmentLow,
		"1000":     model.CustomerSegmentMedium,
		"5000":     model.CustomerSegmentHigh,
		"9999.99":  model.CustomerSegmentHigh,
		"10000":    model.CustomerSegmentVip,
		"25000.50": model.CustomerSegmentVip,
	}
	for in, want := range cases {
		if got := CustomerSegmentFor(decimal.RequireFromString(in)); got != want {
			t.Fatalf("%v: expected: %v; got: %v", in, want, got)
		}
	}
}

func TestDimensionMembersAreDistinct(t *testing.T) {
	txns := []model.Transaction{
		{InvoiceNo: "1", StockCode: "A", CustomerID: "c1", Country: "UK", TransactionType: model.TransactionTypeSale},
		{InvoiceNo: "1", StockCode: "A", CustomerID: "c1", Country: "UK", TransactionType: model.TransactionTypeSale},
		{InvoiceNo: "C2", StockCode: "A", CustomerID: "c1", Country: "UK", TransactionType: model.TransactionTypeReturn},
	}
	m := dimensionMembers(txns)
	if len(m[model.MemberSetProductCustomers]) != 1 || len(m[model.MemberSetCustomerInvoices]) != 1 {
		t.Fatalf("expected returns to be left out of sale memberships: %+v", m)
	}
	if len(m[model.MemberSetCountryInvoices]) != 2 || len(m[model.MemberSetCountryCustomers]) != 1 {
		t.Fatalf("unexpected country memberships: %+v", m)
	}
}

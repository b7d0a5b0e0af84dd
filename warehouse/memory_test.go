package warehouse

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/relloyd/retail-loader/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func newTestMemory(t *testing.T, path string) *Memory {
	m, err := NewMemoryWarehouse(MemoryConfig{Log: logrus.New(), PipelineName: "TEST", Path: path})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func testTransaction(id string) model.Transaction {
	return model.Transaction{
		TransactionID:   id,
		InvoiceNo:       "536365",
		StockCode:       "85123A",
		Quantity:        6,
		UnitPrice:       decimal.RequireFromString("2.55"),
		TotalAmount:     decimal.RequireFromString("15.30"),
		InvoiceDate:     time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC),
		InvoiceYear:     2010,
		InvoiceMonth:    12,
		Country:         "United Kingdom",
		TransactionType: model.TransactionTypeSale,
	}
}

func TestMemoryTxIsInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, "")
	tx, err := m.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	inserted, err := tx.InsertTransactions(ctx, []model.Transaction{testTransaction("a"), testTransaction("a"), testTransaction("b")})
	if err != nil {
		t.Fatal(err)
	}
	if len(inserted) != 2 {
		t.Fatalf("expected: 2 inserted; got: %v", len(inserted))
	}
	s, _ := m.Summary(ctx)
	if s.TotalTransactions != 0 {
		t.Fatalf("expected: 0 visible transactions before commit; got: %v", s.TotalTransactions)
	}
	if err = tx.CommitCheckpoint(ctx, 0, model.BatchCheckpoint{PipelineName: "TEST", LastRowOffset: 2, BatchSequence: 1, Version: 1}); err != nil {
		t.Fatal(err)
	}
	if err = tx.Commit(); err != nil {
		t.Fatal(err)
	}
	s, _ = m.Summary(ctx)
	if s.TotalTransactions != 2 || !s.TotalRevenue.Equal(decimal.RequireFromString("30.60")) {
		t.Fatalf("expected: 2 transactions worth 30.60; got: %v worth %v", s.TotalTransactions, s.TotalRevenue)
	}
	cp, _ := m.Checkpoint(ctx)
	if cp.LastRowOffset != 2 || cp.Version != 1 {
		t.Fatalf("expected checkpoint offset 2 version 1; got: %+v", cp)
	}
	// A second tx sees the committed facts as already present.
	tx, _ = m.Begin(ctx)
	inserted, _ = tx.InsertTransactions(ctx, []model.Transaction{testTransaction("a")})
	if len(inserted) != 0 {
		t.Fatalf("expected: 0 inserted on replay; got: %v", len(inserted))
	}
	_ = tx.Rollback()
	if err = tx.Commit(); !errors.Is(err, ErrTxDone) {
		t.Fatalf("expected: ErrTxDone; got: %v", err)
	}
}

func TestMemoryRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, "")
	tx, _ := m.Begin(ctx)
	_, _ = tx.Stage(ctx, []model.StagedRecord{{FileName: "f.csv", RowIndex: 1}})
	_ = tx.PutProducts(ctx, []model.Product{{StockCode: "X"}})
	_ = tx.AppendLog(ctx, model.ExecutionLogEntry{Status: model.BatchStatusCompleted})
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Snapshot(ctx, 10)
	if s.Summary.StagedRows != 0 || s.Summary.TotalProducts != 0 || len(s.RecentRuns) != 0 {
		t.Fatalf("expected nothing after rollback; got: %+v", s)
	}
	if _, err := m.Product(ctx, "X"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected: ErrNotFound; got: %v", err)
	}
}

func TestMemoryCheckpointConflict(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, "")
	tx1, _ := m.Begin(ctx)
	tx2, _ := m.Begin(ctx)
	if err := tx1.CommitCheckpoint(ctx, 0, model.BatchCheckpoint{LastRowOffset: 5, Version: 1}); err != nil {
		t.Fatal(err)
	}
	if err := tx2.CommitCheckpoint(ctx, 0, model.BatchCheckpoint{LastRowOffset: 9, Version: 1}); err != nil {
		t.Fatal(err)
	}
	if err := tx1.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := tx2.Commit(); !errors.Is(err, ErrCheckpointConflict) {
		t.Fatalf("expected: ErrCheckpointConflict; got: %v", err)
	}
	cp, _ := m.Checkpoint(ctx)
	if cp.LastRowOffset != 5 {
		t.Fatalf("expected: offset 5; got: %v", cp.LastRowOffset)
	}
	tx3, _ := m.Begin(ctx)
	if err := tx3.CommitCheckpoint(ctx, 0, model.BatchCheckpoint{Version: 1}); !errors.Is(err, ErrCheckpointConflict) {
		t.Fatalf("expected: ErrCheckpointConflict for a stale version; got: %v", err)
	}
}

func TestMemoryAddMembersReturnsOnlyNew(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, "")
	tx, _ := m.Begin(ctx)
	added, _ := tx.AddMembers(ctx, model.MemberSetProductCustomers, []model.Member{{Key: "A", Member: "1"}, {Key: "A", Member: "1"}, {Key: "A", Member: "2"}})
	if len(added) != 2 {
		t.Fatalf("expected: 2 new members; got: %v", len(added))
	}
	_ = tx.Commit()
	tx, _ = m.Begin(ctx)
	added, _ = tx.AddMembers(ctx, model.MemberSetProductCustomers, []model.Member{{Key: "A", Member: "2"}, {Key: "B", Member: "2"}})
	if len(added) != 1 || added[0].Key != "B" {
		t.Fatalf("expected: only B/2 to be new; got: %v", added)
	}
	// Sets are independent.
	added, _ = tx.AddMembers(ctx, model.MemberSetCountryCustomers, []model.Member{{Key: "A", Member: "1"}})
	if len(added) != 1 {
		t.Fatalf("expected: 1 new member in a different set; got: %v", len(added))
	}
}

func TestMemoryQuarantineIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, "")
	rows := []model.QuarantinedRow{
		{FileName: "f.csv", RowIndex: 3, Reason: model.QuarantineReasonInvalidNumber},
		{FileName: "f.csv", RowIndex: 4, Reason: model.QuarantineReasonMissingField},
	}
	n, err := m.Quarantine(ctx, rows)
	if err != nil || n != 2 {
		t.Fatalf("expected: 2; got: %v (%v)", n, err)
	}
	n, err = m.Quarantine(ctx, rows)
	if err != nil || n != 0 {
		t.Fatalf("expected: 0 on replay; got: %v (%v)", n, err)
	}
	q, _ := m.Quarantined(ctx, 1)
	if len(q) != 1 || q[0].RowIndex != 3 {
		t.Fatalf("expected row 3 first; got: %v", q)
	}
}

func TestMemoryLockLease(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, "")
	if err := m.AcquireLock(ctx, "run1", time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := m.AcquireLock(ctx, "run2", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected: ErrLockHeld; got: %v", err)
	}
	_ = m.ReleaseLock(ctx, "run1")
	if err := m.AcquireLock(ctx, "run2", -time.Second); err != nil { // already expired
		t.Fatal(err)
	}
	if err := m.AcquireLock(ctx, "run3", time.Minute); err != nil {
		t.Fatalf("expected an expired lease to be taken over; got: %v", err)
	}
}

func TestLocalWarehousePersistsAndLocks(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "warehouse.json")
	m := newTestMemory(t, path)
	if err := m.AcquireLock(ctx, "run1", time.Minute); err != nil {
		t.Fatal(err)
	}
	other := newTestMemory(t, path)
	if err := other.AcquireLock(ctx, "run2", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected: ErrLockHeld from a second process; got: %v", err)
	}
	tx, _ := m.Begin(ctx)
	_, _ = tx.InsertTransactions(ctx, []model.Transaction{testTransaction("a")})
	_ = tx.PutProducts(ctx, []model.Product{{StockCode: "85123A", UnitPriceSum: decimal.RequireFromString("2.55"), SalesCount: 1}})
	_ = tx.CommitCheckpoint(ctx, 0, model.BatchCheckpoint{PipelineName: "TEST", LastRowOffset: 1, BatchSequence: 1, Version: 1})
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := m.AppendLog(ctx, model.ExecutionLogEntry{LogID: "x", Status: model.BatchStatusStarted}); err != nil {
		t.Fatal(err)
	}
	_ = m.ReleaseLock(ctx, "run1")
	// Reload from disk via the lock.
	if err := other.AcquireLock(ctx, "run2", time.Minute); err != nil {
		t.Fatal(err)
	}
	cp, _ := other.Checkpoint(ctx)
	if cp.LastRowOffset != 1 || cp.Version != 1 {
		t.Fatalf("expected the committed checkpoint to be reloaded; got: %+v", cp)
	}
	p, err := other.Product(ctx, "85123A")
	if err != nil || !p.UnitPriceSum.Equal(decimal.RequireFromString("2.55")) {
		t.Fatalf("expected the product to survive a reload; got: %+v (%v)", p, err)
	}
	s, _ := other.Snapshot(ctx, 5)
	if len(s.RecentRuns) != 1 || s.Summary.TotalTransactions != 1 {
		t.Fatalf("unexpected snapshot after reload: %+v", s)
	}
}

func TestMemoryInjectedFailure(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, "")
	boom := errors.New("boom")
	m.FailAt("PutProducts", boom)
	tx, _ := m.Begin(ctx)
	if err := tx.PutProducts(ctx, nil); !errors.Is(err, boom) {
		t.Fatalf("expected: boom; got: %v", err)
	}
	m.FailAt("PutProducts", nil)
	if err := tx.PutProducts(ctx, nil); err != nil {
		t.Fatalf("expected: nil after clearing; got: %v", err)
	}
}

func TestMemorySalesMetricsAndOrdering(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t, "")
	tx, _ := m.Begin(ctx)
	ret := testTransaction("r")
	ret.InvoiceNo, ret.Quantity, ret.TransactionType = "C536379", -1, model.TransactionTypeReturn
	ret.TotalAmount = decimal.RequireFromString("-2.55")
	jan := testTransaction("j")
	jan.InvoiceYear, jan.InvoiceMonth = 2011, 1
	_, _ = tx.InsertTransactions(ctx, []model.Transaction{testTransaction("a"), ret, jan})
	_ = tx.PutProducts(ctx, []model.Product{
		{StockCode: "A", TotalRevenue: decimal.NewFromInt(5), TotalQuantitySold: 10},
		{StockCode: "B", TotalRevenue: decimal.NewFromInt(9), TotalQuantitySold: 1},
	})
	_ = tx.Commit()
	metrics, _ := m.SalesMetrics(ctx)
	if len(metrics) != 2 || metrics[0].Year != 2010 || metrics[1].Year != 2011 {
		t.Fatalf("expected two months oldest first; got: %+v", metrics)
	}
	dec := metrics[0]
	if dec.Transactions != 2 || dec.Returns != 1 || dec.Orders != 2 || !dec.Revenue.Equal(decimal.RequireFromString("12.75")) {
		t.Fatalf("unexpected December metrics: %+v", dec)
	}
	byRevenue, _ := m.Products(ctx, model.ProductQuery{})
	byQuantity, _ := m.Products(ctx, model.ProductQuery{OrderBy: model.ProductOrderQuantity, Limit: 1})
	if byRevenue[0].StockCode != "B" || len(byQuantity) != 1 || byQuantity[0].StockCode != "A" {
		t.Fatalf("unexpected product ordering: %v / %v", byRevenue, byQuantity)
	}
}

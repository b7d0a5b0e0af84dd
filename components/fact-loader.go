package components

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/warehouse"
)

type FactLoaderConfig struct {
	Log logger.Logger `errorTxt:"logger" mandatory:"yes"`
}

type FactLoader struct {
	FactLoaderConfig
}

type FactLoadResult struct {
	Inserted       []model.Transaction // facts that were not present before, in row order
	AlreadyPresent int
}

func NewFactLoader(cfg FactLoaderConfig) (*FactLoader, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	return &FactLoader{cfg}, nil
}

// TransactionID is the deterministic fact key.
func TransactionID(invoiceNo, stockCode string, rowIndex int64) string {
	return fmt.Sprintf("%v_%v_%v", invoiceNo, stockCode, rowIndex)
}

// NewTransaction derives the fact row for an accepted record.
func NewTransaction(rec model.StagedRecord, batchNumber int64, loadedAt time.Time) model.Transaction {
	typ := model.TransactionTypeSale
	if rec.IsReturn {
		typ = model.TransactionTypeReturn
	}
	d := rec.InvoiceDate.UTC()
	return model.Transaction{
		TransactionID:    TransactionID(rec.InvoiceNo, rec.StockCode, rec.RowIndex),
		InvoiceNo:        rec.InvoiceNo,
		StockCode:        rec.StockCode,
		CustomerID:       rec.CustomerID,
		Description:      rec.Description,
		Quantity:         rec.Quantity,
		UnitPrice:        rec.UnitPrice,
		TotalAmount:      rec.TotalAmount,
		InvoiceDate:      d,
		InvoiceYear:      d.Year(),
		InvoiceMonth:     int(d.Month()),
		InvoiceDayOfWeek: int(d.Weekday()),
		Country:          rec.Country,
		TransactionType:  typ,
		IsGuestPurchase:  rec.HasMissingCustomer,
		SourceFile:       rec.FileName,
		RowIndex:         rec.RowIndex,
		BatchNumber:      batchNumber,
		LoadedAt:         loadedAt,
	}
}

// Load inserts facts for recs inside tx and reports which ones are new.
// Only the new facts may drive dimension deltas.
func (f *FactLoader) Load(ctx context.Context, tx warehouse.Tx, recs []model.StagedRecord, batchNumber int64, loadedAt time.Time) (FactLoadResult, error) {
	if len(recs) == 0 {
		return FactLoadResult{Inserted: make([]model.Transaction, 0)}, nil
	}
	txns := make([]model.Transaction, 0, len(recs))
	for _, r := range recs {
		txns = append(txns, NewTransaction(r, batchNumber, loadedAt))
	}
	inserted, err := tx.InsertTransactions(ctx, txns)
	if err != nil {
		return FactLoadResult{}, errors.Wrap(err, "error inserting transactions")
	}
	res := FactLoadResult{Inserted: inserted, AlreadyPresent: len(txns) - len(inserted)}
	f.Log.Debug("inserted ", len(res.Inserted), " transactions; ", res.AlreadyPresent, " already present")
	return res, nil
}

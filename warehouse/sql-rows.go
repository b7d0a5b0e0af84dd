package warehouse

import (
	"database/sql"
	"time"

	"github.com/relloyd/retail-loader/model"
	"github.com/shopspring/decimal"
)

// Conversions between model types and table rows. Values are in table key-then-other column order.

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullDecimal(d decimal.Decimal, valid bool) interface{} {
	if !valid {
		return nil
	}
	return d
}

func utc(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}

func stagedRecordValues(r model.StagedRecord) []interface{} {
	return []interface{}{
		r.FileName, r.RowIndex, r.InvoiceNo, r.StockCode, nullString(r.Description), r.Quantity,
		r.InvoiceDate.UTC(), r.UnitPrice, nullString(r.CustomerID), r.Country, r.HasMissingCustomer, r.IsReturn,
		r.TotalAmount, r.LoadTimestamp.UTC(), r.DataSource,
	}
}

func transactionValues(t model.Transaction) []interface{} {
	return []interface{}{
		t.TransactionID, t.InvoiceNo, t.StockCode, nullString(t.CustomerID), nullString(t.Description), t.Quantity,
		t.UnitPrice, t.TotalAmount, t.InvoiceDate.UTC(), t.InvoiceYear, t.InvoiceMonth, t.InvoiceDayOfWeek,
		t.Country, string(t.TransactionType), t.IsGuestPurchase, t.SourceFile, t.RowIndex, t.BatchNumber,
		t.LoadedAt.UTC(),
	}
}

func productValues(p model.Product) []interface{} {
	hasSales := p.SalesCount > 0
	return []interface{}{
		p.StockCode, nullString(p.Description), p.TotalQuantitySold, p.TotalRevenue, p.TransactionCount,
		p.ReturnCount, p.SalesCount, p.UnitPriceSum, nullDecimal(p.AverageUnitPrice, hasSales),
		nullDecimal(p.MinUnitPrice, hasSales), nullDecimal(p.MaxUnitPrice, hasSales), nullTime(p.FirstSaleDate),
		nullTime(p.LastSaleDate), p.UniqueCustomers, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	}
}

func scanProduct(s rowScanner) (model.Product, error) {
	var p model.Product
	var desc sql.NullString
	var avg, min, max decimal.NullDecimal
	var first, last sql.NullTime
	err := s.Scan(&p.StockCode, &desc, &p.TotalQuantitySold, &p.TotalRevenue, &p.TransactionCount,
		&p.ReturnCount, &p.SalesCount, &p.UnitPriceSum, &avg, &min, &max, &first, &last, &p.UniqueCustomers,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Description = desc.String
	p.AverageUnitPrice, p.MinUnitPrice, p.MaxUnitPrice = avg.Decimal, min.Decimal, max.Decimal
	p.FirstSaleDate, p.LastSaleDate = utc(first), utc(last)
	p.CreatedAt, p.UpdatedAt = p.CreatedAt.UTC(), p.UpdatedAt.UTC()
	return p, nil
}

func customerValues(c model.Customer) []interface{} {
	var days interface{}
	if c.DaysSinceLastPurchase != nil {
		days = *c.DaysSinceLastPurchase
	}
	return []interface{}{
		c.CustomerID, c.Country, nullTime(c.FirstPurchaseDate), nullTime(c.LastPurchaseDate), c.TotalOrders,
		c.TotalItemsPurchased, c.TotalAmountSpent, c.TotalReturns, c.TotalReturnedAmount, c.AverageOrderValue,
		string(c.Segment), days, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	}
}

func scanCustomer(s rowScanner) (model.Customer, error) {
	var c model.Customer
	var first, last sql.NullTime
	var segment string
	var days sql.NullInt64
	err := s.Scan(&c.CustomerID, &c.Country, &first, &last, &c.TotalOrders, &c.TotalItemsPurchased,
		&c.TotalAmountSpent, &c.TotalReturns, &c.TotalReturnedAmount, &c.AverageOrderValue, &segment, &days,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.FirstPurchaseDate, c.LastPurchaseDate = utc(first), utc(last)
	c.Segment = model.CustomerSegment(segment)
	if days.Valid {
		d := days.Int64
		c.DaysSinceLastPurchase = &d
	}
	c.CreatedAt, c.UpdatedAt = c.CreatedAt.UTC(), c.UpdatedAt.UTC()
	return c, nil
}

func countryValues(c model.Country) []interface{} {
	return []interface{}{
		c.Country, c.TotalCustomers, c.TotalOrders, c.TotalTransactions, c.TotalRevenue,
		nullTime(c.FirstOrderDate), nullTime(c.LastOrderDate), c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	}
}

func scanCountry(s rowScanner) (model.Country, error) {
	var c model.Country
	var first, last sql.NullTime
	err := s.Scan(&c.Country, &c.TotalCustomers, &c.TotalOrders, &c.TotalTransactions, &c.TotalRevenue,
		&first, &last, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return c, err
	}
	c.FirstOrderDate, c.LastOrderDate = utc(first), utc(last)
	c.CreatedAt, c.UpdatedAt = c.CreatedAt.UTC(), c.UpdatedAt.UTC()
	return c, nil
}

func executionLogValues(e model.ExecutionLogEntry) []interface{} {
	return []interface{}{
		e.LogID, e.RunID, e.PipelineName, e.BatchNumber, e.BatchSequence, e.StartRow, e.EndRow, string(e.Status),
		e.StartedAt.UTC(), nullTime(e.EndedAt), e.RowsProcessed, e.RowsInserted, e.RowsAlreadyPresent,
		e.RowsRejected, e.DurationMs, nullString(e.ErrorMessage), e.CheckpointAdvanced,
	}
}

func scanExecutionLog(s rowScanner) (model.ExecutionLogEntry, error) {
	var e model.ExecutionLogEntry
	var status string
	var ended sql.NullTime
	var msg sql.NullString
	err := s.Scan(&e.LogID, &e.RunID, &e.PipelineName, &e.BatchNumber, &e.BatchSequence, &e.StartRow, &e.EndRow,
		&status, &e.StartedAt, &ended, &e.RowsProcessed, &e.RowsInserted, &e.RowsAlreadyPresent, &e.RowsRejected,
		&e.DurationMs, &msg, &e.CheckpointAdvanced)
	if err != nil {
		return e, err
	}
	e.Status = model.BatchStatus(status)
	e.StartedAt, e.EndedAt = e.StartedAt.UTC(), utc(ended)
	e.ErrorMessage = msg.String
	return e, nil
}

func quarantineValues(q model.QuarantinedRow) []interface{} {
	return []interface{}{
		q.FileName, q.RowIndex, string(q.Reason), nullString(q.Detail), nullString(q.RawPayload), q.BatchNumber,
		q.RunID, q.QuarantinedAt.UTC(),
	}
}

func scanQuarantine(s rowScanner) (model.QuarantinedRow, error) {
	var q model.QuarantinedRow
	var reason string
	var detail, raw sql.NullString
	err := s.Scan(&q.FileName, &q.RowIndex, &reason, &detail, &raw, &q.BatchNumber, &q.RunID, &q.QuarantinedAt)
	if err != nil {
		return q, err
	}
	q.Reason = model.QuarantineReason(reason)
	q.Detail, q.RawPayload = detail.String, raw.String
	q.QuarantinedAt = q.QuarantinedAt.UTC()
	return q, nil
}

package warehouse

import (
	"context"
	"sort"

	"github.com/relloyd/retail-loader/model"
	"github.com/shopspring/decimal"
)

const defaultListLimit = 10

func (m *Memory) Checkpoint(ctx context.Context) (model.BatchCheckpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Checkpoint, nil
}

// Snapshot reads under one read lock so a commit is seen entirely or not at all.
func (m *Memory) Snapshot(ctx context.Context, numLogEntries int) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{Checkpoint: m.data.Checkpoint, Summary: m.summary()}
	s.RecentRuns = make([]model.ExecutionLogEntry, 0, numLogEntries)
	for i := len(m.data.Log) - 1; i >= 0 && len(s.RecentRuns) < numLogEntries; i-- {
		s.RecentRuns = append(s.RecentRuns, m.data.Log[i])
	}
	return s, nil
}

func (m *Memory) Summary(ctx context.Context) (model.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summary(), nil
}

// summary requires the read lock.
func (m *Memory) summary() model.Summary {
	s := model.Summary{
		TotalProducts:   int64(len(m.data.Products)),
		TotalCustomers:  int64(len(m.data.Customers)),
		TotalCountries:  int64(len(m.data.Countries)),
		StagedRows:      int64(len(m.data.Staging)),
		QuarantinedRows: int64(len(m.data.Quarantine)),
		TotalRevenue:    decimal.Zero,
	}
	for _, t := range m.data.Transactions {
		s.TotalTransactions++
		if t.IsReturn() {
			s.TotalReturns++
		}
		if t.IsGuestPurchase {
			s.GuestTransactions++
		}
		s.TotalRevenue = s.TotalRevenue.Add(t.TotalAmount)
		if s.FirstInvoiceDate.IsZero() || t.InvoiceDate.Before(s.FirstInvoiceDate) {
			s.FirstInvoiceDate = t.InvoiceDate
		}
		if t.InvoiceDate.After(s.LastInvoiceDate) {
			s.LastInvoiceDate = t.InvoiceDate
		}
	}
	return s
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

func (m *Memory) Products(ctx context.Context, q model.ProductQuery) ([]model.Product, error) {
	m.mu.RLock()
	retval := make([]model.Product, 0, len(m.data.Products))
	for _, p := range m.data.Products {
		retval = append(retval, p)
	}
	m.mu.RUnlock()
	sort.Slice(retval, func(i, j int) bool {
		a, b := retval[i], retval[j]
		switch q.OrderBy {
		case model.ProductOrderQuantity:
			if a.TotalQuantitySold != b.TotalQuantitySold {
				return a.TotalQuantitySold > b.TotalQuantitySold
			}
		case model.ProductOrderCustomers:
			if a.UniqueCustomers != b.UniqueCustomers {
				return a.UniqueCustomers > b.UniqueCustomers
			}
		default:
			if !a.TotalRevenue.Equal(b.TotalRevenue) {
				return a.TotalRevenue.GreaterThan(b.TotalRevenue)
			}
		}
		return a.StockCode < b.StockCode
	})
	if l := limitOrDefault(q.Limit); len(retval) > l {
		retval = retval[:l]
	}
	return retval, nil
}

func (m *Memory) Product(ctx context.Context, stockCode string) (model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.data.Products[stockCode]
	if !ok {
		return model.Product{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) Customers(ctx context.Context, q model.CustomerQuery) ([]model.Customer, error) {
	m.mu.RLock()
	retval := make([]model.Customer, 0)
	for _, c := range m.data.Customers {
		if q.Segment == "" || c.Segment == q.Segment {
			retval = append(retval, c)
		}
	}
	m.mu.RUnlock()
	sort.Slice(retval, func(i, j int) bool {
		if !retval[i].TotalAmountSpent.Equal(retval[j].TotalAmountSpent) {
			return retval[i].TotalAmountSpent.GreaterThan(retval[j].TotalAmountSpent)
		}
		return retval[i].CustomerID < retval[j].CustomerID
	})
	if l := limitOrDefault(q.Limit); len(retval) > l {
		retval = retval[:l]
	}
	return retval, nil
}

func (m *Memory) Customer(ctx context.Context, customerID string) (model.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.data.Customers[customerID]
	if !ok {
		return model.Customer{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) Countries(ctx context.Context) ([]model.Country, error) {
	m.mu.RLock()
	retval := make([]model.Country, 0, len(m.data.Countries))
	for _, c := range m.data.Countries {
		retval = append(retval, c)
	}
	m.mu.RUnlock()
	sort.Slice(retval, func(i, j int) bool {
		if !retval[i].TotalRevenue.Equal(retval[j].TotalRevenue) {
			return retval[i].TotalRevenue.GreaterThan(retval[j].TotalRevenue)
		}
		return retval[i].Country < retval[j].Country
	})
	return retval, nil
}

// SalesMetrics groups facts by invoice year and month, oldest first.
func (m *Memory) SalesMetrics(ctx context.Context) ([]model.MonthlySales, error) {
	type month struct{ y, m int }
	byMonth := make(map[month]*model.MonthlySales)
	invoices := make(map[month]map[string]bool)
	m.mu.RLock()
	for _, t := range m.data.Transactions {
		k := month{t.InvoiceYear, t.InvoiceMonth}
		s, ok := byMonth[k]
		if !ok {
			s = &model.MonthlySales{Year: k.y, Month: k.m, Revenue: decimal.Zero}
			byMonth[k] = s
			invoices[k] = make(map[string]bool)
		}
		s.Revenue = s.Revenue.Add(t.TotalAmount)
		s.Transactions++
		if t.IsReturn() {
			s.Returns++
		}
		invoices[k][t.InvoiceNo] = true
	}
	m.mu.RUnlock()
	retval := make([]model.MonthlySales, 0, len(byMonth))
	for k, s := range byMonth {
		s.Orders = int64(len(invoices[k]))
		retval = append(retval, *s)
	}
	sort.Slice(retval, func(i, j int) bool {
		if retval[i].Year != retval[j].Year {
			return retval[i].Year < retval[j].Year
		}
		return retval[i].Month < retval[j].Month
	})
	return retval, nil
}

// Quarantined returns rows ordered by file and row index.
func (m *Memory) Quarantined(ctx context.Context, limit int) ([]model.QuarantinedRow, error) {
	m.mu.RLock()
	retval := make([]model.QuarantinedRow, 0, len(m.data.Quarantine))
	for _, q := range m.data.Quarantine {
		retval = append(retval, q)
	}
	m.mu.RUnlock()
	sort.Slice(retval, func(i, j int) bool {
		if retval[i].FileName != retval[j].FileName {
			return retval[i].FileName < retval[j].FileName
		}
		return retval[i].RowIndex < retval[j].RowIndex
	})
	if limit > 0 && len(retval) > limit {
		retval = retval[:limit]
	}
	return retval, nil
}

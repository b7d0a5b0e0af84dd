package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/rdbms/shared"
	"github.com/shopspring/decimal"
)

func (w *SQL) checkpoint(ctx context.Context, q shared.Queryer) (model.BatchCheckpoint, error) {
	cp := model.BatchCheckpoint{PipelineName: w.PipelineName}
	stmt := w.rebind(fmt.Sprintf("select LAST_ROW_OFFSET, BATCH_SEQUENCE, VERSION, UPDATED_AT from %v where PIPELINE_NAME = ?",
		tableCheckpoint.name))
	rows, err := q.QueryContext(ctx, stmt, w.PipelineName)
	if err != nil {
		return cp, errors.Wrap(err, "error reading checkpoint")
	}
	defer rows.Close()
	if rows.Next() {
		var updated sql.NullTime
		if err = rows.Scan(&cp.LastRowOffset, &cp.BatchSequence, &cp.Version, &updated); err != nil {
			return cp, errors.Wrap(err, "error scanning checkpoint")
		}
		cp.UpdatedAt = utc(updated)
	}
	return cp, rows.Err()
}

func (w *SQL) Checkpoint(ctx context.Context) (model.BatchCheckpoint, error) {
	return w.checkpoint(ctx, w.Conn)
}

// Snapshot reads the checkpoint, recent log entries and summary in one read-only transaction.
func (w *SQL) Snapshot(ctx context.Context, numLogEntries int) (s Snapshot, err error) {
	tx, err := w.Conn.BeginTx(ctx, w.readOnlyTxOptions())
	if err != nil {
		return s, errors.Wrap(err, "error starting read transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if s.Checkpoint, err = w.checkpoint(ctx, tx); err != nil {
		return s, err
	}
	if s.RecentRuns, err = w.recentRuns(ctx, tx, numLogEntries); err != nil {
		return s, err
	}
	s.Summary, err = w.summary(ctx, tx)
	return s, err
}

func (w *SQL) recentRuns(ctx context.Context, q shared.Queryer, n int) ([]model.ExecutionLogEntry, error) {
	stmt := w.rebind(fmt.Sprintf("select %v from %v where PIPELINE_NAME = ? order by LOG_ID desc limit %d",
		strings.Join(tableExecutionLog.allNames(), ","), tableExecutionLog.name, n))
	rows, err := q.QueryContext(ctx, stmt, w.PipelineName)
	if err != nil {
		return nil, errors.Wrap(err, "error reading execution log")
	}
	defer rows.Close()
	retval := make([]model.ExecutionLogEntry, 0, n)
	for rows.Next() {
		e, err := scanExecutionLog(rows)
		if err != nil {
			return nil, errors.Wrap(err, "error scanning execution log")
		}
		retval = append(retval, e)
	}
	return retval, rows.Err()
}

func (w *SQL) Summary(ctx context.Context) (model.Summary, error) {
	return w.summary(ctx, w.Conn)
}

func (w *SQL) summary(ctx context.Context, q shared.Queryer) (model.Summary, error) {
	s := model.Summary{TotalRevenue: decimal.Zero}
	var revenue decimal.NullDecimal
	var first, last sql.NullTime
	stmt := fmt.Sprintf("select count(*), "+
		"coalesce(sum(case when TRANSACTION_TYPE = 'RETURN' then 1 else 0 end), 0), "+
		"coalesce(sum(case when IS_GUEST_PURCHASE then 1 else 0 end), 0), "+
		"sum(TOTAL_AMOUNT), min(INVOICE_DATE), max(INVOICE_DATE) from %v", tableTransactions.name)
	if err := queryRow(ctx, q, stmt, nil, &s.TotalTransactions, &s.TotalReturns, &s.GuestTransactions, &revenue, &first, &last); err != nil {
		return s, errors.Wrap(err, "error reading transaction summary")
	}
	if revenue.Valid {
		s.TotalRevenue = revenue.Decimal
	}
	s.FirstInvoiceDate, s.LastInvoiceDate = utc(first), utc(last)
	counts := []struct {
		t   table
		dst *int64
	}{
		{tableProducts, &s.TotalProducts},
		{tableCustomers, &s.TotalCustomers},
		{tableCountries, &s.TotalCountries},
		{tableStaging, &s.StagedRows},
		{tableQuarantine, &s.QuarantinedRows},
	}
	for _, c := range counts {
		if err := queryRow(ctx, q, fmt.Sprintf("select count(*) from %v", c.t.name), nil, c.dst); err != nil {
			return s, errors.Wrapf(err, "error counting %v", c.t.name)
		}
	}
	return s, nil
}

// queryRow scans the first row of stmt into dest.
func queryRow(ctx context.Context, q shared.Queryer, stmt string, args []interface{}, dest ...interface{}) error {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return err
		}
		return ErrNotFound
	}
	return rows.Scan(dest...)
}

func (w *SQL) Products(ctx context.Context, q model.ProductQuery) ([]model.Product, error) {
	order := "TOTAL_REVENUE desc"
	switch q.OrderBy {
	case model.ProductOrderQuantity:
		order = "TOTAL_QUANTITY_SOLD desc"
	case model.ProductOrderCustomers:
		order = "UNIQUE_CUSTOMERS desc"
	}
	stmt := fmt.Sprintf("select %v from %v order by %v, STOCK_CODE limit %d",
		strings.Join(tableProducts.allNames(), ","), tableProducts.name, order, limitOrDefault(q.Limit))
	retval := make([]model.Product, 0)
	err := w.selectAll(ctx, stmt, nil, func(s rowScanner) error {
		p, err := scanProduct(s)
		if err == nil {
			retval = append(retval, p)
		}
		return err
	})
	return retval, err
}

func (w *SQL) Product(ctx context.Context, stockCode string) (model.Product, error) {
	var p model.Product
	found := false
	stmt := w.rebind(fmt.Sprintf("select %v from %v where STOCK_CODE = ?", strings.Join(tableProducts.allNames(), ","), tableProducts.name))
	err := w.selectAll(ctx, stmt, []interface{}{stockCode}, func(s rowScanner) (err error) {
		p, err = scanProduct(s)
		found = err == nil
		return err
	})
	if err == nil && !found {
		err = ErrNotFound
	}
	return p, err
}

func (w *SQL) Customers(ctx context.Context, q model.CustomerQuery) ([]model.Customer, error) {
	where := ""
	args := make([]interface{}, 0)
	if q.Segment != "" {
		where = "where CUSTOMER_SEGMENT = ? "
		args = append(args, string(q.Segment))
	}
	stmt := w.rebind(fmt.Sprintf("select %v from %v %vorder by TOTAL_AMOUNT_SPENT desc, CUSTOMER_ID limit %d",
		strings.Join(tableCustomers.allNames(), ","), tableCustomers.name, where, limitOrDefault(q.Limit)))
	retval := make([]model.Customer, 0)
	err := w.selectAll(ctx, stmt, args, func(s rowScanner) error {
		c, err := scanCustomer(s)
		if err == nil {
			retval = append(retval, c)
		}
		return err
	})
	return retval, err
}

func (w *SQL) Customer(ctx context.Context, customerID string) (model.Customer, error) {
	var c model.Customer
	found := false
	stmt := w.rebind(fmt.Sprintf("select %v from %v where CUSTOMER_ID = ?", strings.Join(tableCustomers.allNames(), ","), tableCustomers.name))
	err := w.selectAll(ctx, stmt, []interface{}{customerID}, func(s rowScanner) (err error) {
		c, err = scanCustomer(s)
		found = err == nil
		return err
	})
	if err == nil && !found {
		err = ErrNotFound
	}
	return c, err
}

func (w *SQL) Countries(ctx context.Context) ([]model.Country, error) {
	stmt := fmt.Sprintf("select %v from %v order by TOTAL_REVENUE desc, COUNTRY",
		strings.Join(tableCountries.allNames(), ","), tableCountries.name)
	retval := make([]model.Country, 0)
	err := w.selectAll(ctx, stmt, nil, func(s rowScanner) error {
		c, err := scanCountry(s)
		if err == nil {
			retval = append(retval, c)
		}
		return err
	})
	return retval, err
}

func (w *SQL) SalesMetrics(ctx context.Context) ([]model.MonthlySales, error) {
	stmt := fmt.Sprintf("select INVOICE_YEAR, INVOICE_MONTH, sum(TOTAL_AMOUNT), count(*), count(distinct INVOICE_NO), "+
		"sum(case when TRANSACTION_TYPE = 'RETURN' then 1 else 0 end) from %v "+
		"group by INVOICE_YEAR, INVOICE_MONTH order by INVOICE_YEAR, INVOICE_MONTH", tableTransactions.name)
	retval := make([]model.MonthlySales, 0)
	err := w.selectAll(ctx, stmt, nil, func(s rowScanner) error {
		var m model.MonthlySales
		err := s.Scan(&m.Year, &m.Month, &m.Revenue, &m.Transactions, &m.Orders, &m.Returns)
		if err == nil {
			retval = append(retval, m)
		}
		return err
	})
	return retval, err
}

func (w *SQL) Quarantined(ctx context.Context, limit int) ([]model.QuarantinedRow, error) {
	stmt := fmt.Sprintf("select %v from %v order by FILE_NAME, ROW_NUMBER_IN_FILE",
		strings.Join(tableQuarantine.allNames(), ","), tableQuarantine.name)
	if limit > 0 {
		stmt += fmt.Sprintf(" limit %d", limit)
	}
	retval := make([]model.QuarantinedRow, 0)
	err := w.selectAll(ctx, stmt, nil, func(s rowScanner) error {
		q, err := scanQuarantine(s)
		if err == nil {
			retval = append(retval, q)
		}
		return err
	})
	return retval, err
}

// selectAll runs stmt outside a transaction and hands each row to fn.
func (w *SQL) selectAll(ctx context.Context, stmt string, args []interface{}, fn func(s rowScanner) error) error {
	rows, err := w.Conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrapf(err, "error running query %q", stmt)
	}
	defer rows.Close()
	for rows.Next() {
		if err = fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

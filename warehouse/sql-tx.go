package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/rdbms/shared"
)

type sqlTx struct {
	w    *SQL
	tx   shared.Transacter
	done bool
}

func (t *sqlTx) Stage(ctx context.Context, recs []model.StagedRecord) (int, error) {
	keys := make([]model.StagingKey, len(recs))
	for i := range recs {
		keys[i] = recs[i].Key()
	}
	existing, err := t.w.existingRowIndexes(ctx, t.tx, tableStaging, keys)
	if err != nil {
		return 0, err
	}
	values := make([][]interface{}, 0, len(recs))
	for _, r := range recs {
		if existing[r.Key()] {
			continue
		}
		existing[r.Key()] = true
		values = append(values, stagedRecordValues(r))
	}
	if err = t.w.insertRows(ctx, t.tx, tableStaging, values); err != nil {
		return 0, errors.Wrap(err, "error staging records")
	}
	return len(values), nil
}

// existingKeys returns which of keys are already present in column keyCol of table t.
func (t *sqlTx) existingKeys(ctx context.Context, tbl table, keyCol string, keys []string) (map[string]bool, error) {
	retval := make(map[string]bool)
	for _, chunk := range chunks(keys) {
		stmt := t.w.rebind(fmt.Sprintf("select %v from %v where %v in %v", keyCol, tbl.name, keyCol, inList(len(chunk))))
		rows, err := t.tx.QueryContext(ctx, stmt, toArgs(nil, chunk)...)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading keys from %v", tbl.name)
		}
		for rows.Next() {
			var k string
			if err = rows.Scan(&k); err != nil {
				_ = rows.Close()
				return nil, err
			}
			retval[k] = true
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return retval, nil
}

func (t *sqlTx) InsertTransactions(ctx context.Context, txns []model.Transaction) ([]model.Transaction, error) {
	ids := make([]string, len(txns))
	for i := range txns {
		ids[i] = txns[i].TransactionID
	}
	existing, err := t.existingKeys(ctx, tableTransactions, "TRANSACTION_ID", ids)
	if err != nil {
		return nil, err
	}
	inserted := make([]model.Transaction, 0, len(txns))
	values := make([][]interface{}, 0, len(txns))
	for _, x := range txns {
		if existing[x.TransactionID] {
			continue
		}
		existing[x.TransactionID] = true
		inserted = append(inserted, x)
		values = append(values, transactionValues(x))
	}
	if err = t.w.insertRows(ctx, t.tx, tableTransactions, values); err != nil {
		return nil, errors.Wrap(err, "error inserting transactions")
	}
	return inserted, nil
}

// selectByKey runs "select <all cols> from tbl where <key> in (...)" in chunks and hands each row to fn.
func (t *sqlTx) selectByKey(ctx context.Context, tbl table, keys []string, fn func(s rowScanner) error) error {
	for _, chunk := range chunks(keys) {
		stmt := t.w.rebind(fmt.Sprintf("select %v from %v where %v in %v",
			strings.Join(tbl.allNames(), ","), tbl.name, tbl.keys[0].name, inList(len(chunk))))
		rows, err := t.tx.QueryContext(ctx, stmt, toArgs(nil, chunk)...)
		if err != nil {
			return errors.Wrapf(err, "error reading %v", tbl.name)
		}
		for rows.Next() {
			if err = fn(rows); err != nil {
				_ = rows.Close()
				return errors.Wrapf(err, "error scanning %v", tbl.name)
			}
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) Products(ctx context.Context, stockCodes []string) (map[string]model.Product, error) {
	retval := make(map[string]model.Product)
	err := t.selectByKey(ctx, tableProducts, stockCodes, func(s rowScanner) error {
		p, err := scanProduct(s)
		if err == nil {
			retval[p.StockCode] = p
		}
		return err
	})
	return retval, err
}

func (t *sqlTx) Customers(ctx context.Context, customerIDs []string) (map[string]model.Customer, error) {
	retval := make(map[string]model.Customer)
	err := t.selectByKey(ctx, tableCustomers, customerIDs, func(s rowScanner) error {
		c, err := scanCustomer(s)
		if err == nil {
			retval[c.CustomerID] = c
		}
		return err
	})
	return retval, err
}

func (t *sqlTx) Countries(ctx context.Context, countries []string) (map[string]model.Country, error) {
	retval := make(map[string]model.Country)
	err := t.selectByKey(ctx, tableCountries, countries, func(s rowScanner) error {
		c, err := scanCountry(s)
		if err == nil {
			retval[c.Country] = c
		}
		return err
	})
	return retval, err
}

func (t *sqlTx) PutProducts(ctx context.Context, p []model.Product) error {
	values := make([][]interface{}, len(p))
	for i := range p {
		values[i] = productValues(p[i])
	}
	return errors.Wrap(t.w.upsertRows(ctx, t.tx, tableProducts, values), "error writing products")
}

func (t *sqlTx) PutCustomers(ctx context.Context, c []model.Customer) error {
	values := make([][]interface{}, len(c))
	for i := range c {
		values[i] = customerValues(c[i])
	}
	return errors.Wrap(t.w.upsertRows(ctx, t.tx, tableCustomers, values), "error writing customers")
}

func (t *sqlTx) PutCountries(ctx context.Context, c []model.Country) error {
	values := make([][]interface{}, len(c))
	for i := range c {
		values[i] = countryValues(c[i])
	}
	return errors.Wrap(t.w.upsertRows(ctx, t.tx, tableCountries, values), "error writing countries")
}

func (t *sqlTx) AddMembers(ctx context.Context, set model.MemberSet, members []model.Member) ([]model.Member, error) {
	dimKeys := make([]string, 0)
	seenKey := make(map[string]bool)
	for _, m := range members {
		if !seenKey[m.Key] {
			seenKey[m.Key] = true
			dimKeys = append(dimKeys, m.Key)
		}
	}
	existing := make(map[string]bool)
	for _, chunk := range chunks(dimKeys) {
		stmt := t.w.rebind(fmt.Sprintf("select DIMENSION_KEY, MEMBER_KEY from %v where MEMBER_SET = ? and DIMENSION_KEY in %v",
			tableMembers.name, inList(len(chunk))))
		rows, err := t.tx.QueryContext(ctx, stmt, toArgs([]interface{}{string(set)}, chunk)...)
		if err != nil {
			return nil, errors.Wrapf(err, "error reading members of %v", set)
		}
		for rows.Next() {
			var m model.Member
			if err = rows.Scan(&m.Key, &m.Member); err != nil {
				_ = rows.Close()
				return nil, err
			}
			existing[memberKey(m)] = true
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	added := make([]model.Member, 0)
	values := make([][]interface{}, 0)
	for _, m := range members {
		k := memberKey(m)
		if existing[k] {
			continue
		}
		existing[k] = true
		added = append(added, m)
		values = append(values, []interface{}{string(set), m.Key, m.Member})
	}
	if err := t.w.insertRows(ctx, t.tx, tableMembers, values); err != nil {
		return nil, errors.Wrapf(err, "error writing members of %v", set)
	}
	return added, nil
}

func (t *sqlTx) AppendLog(ctx context.Context, e model.ExecutionLogEntry) error {
	return errors.Wrap(t.w.insertRows(ctx, t.tx, tableExecutionLog, [][]interface{}{executionLogValues(e)}),
		"error writing execution log")
}

func (t *sqlTx) CommitCheckpoint(ctx context.Context, expectedVersion int64, cp model.BatchCheckpoint) error {
	stmt := fmt.Sprintf("update %v set LAST_ROW_OFFSET = ?, BATCH_SEQUENCE = ?, VERSION = ?, UPDATED_AT = ? "+
		"where PIPELINE_NAME = ? and VERSION = ?", tableCheckpoint.name)
	res, err := t.tx.ExecContext(ctx, t.w.rebind(stmt),
		cp.LastRowOffset, cp.BatchSequence, cp.Version, cp.UpdatedAt.UTC(), t.w.PipelineName, expectedVersion)
	if err != nil {
		return errors.Wrap(err, "error updating checkpoint")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "error updating checkpoint")
	}
	if n != 1 {
		return errors.Wrapf(ErrCheckpointConflict, "expected version %v", expectedVersion)
	}
	return nil
}

func (t *sqlTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return t.tx.Commit()
}

func (t *sqlTx) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return t.tx.Rollback()
}

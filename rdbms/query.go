package rdbms

import (
	"context"
	"fmt"

	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/rdbms/shared"
)

// SqlQuery runs sqltext and streams the header then each row to i.
// Values are scanned generically so the caller can render any result set.
func SqlQuery(ctx context.Context, log logger.Logger, db shared.Queryer, sqltext string, i shared.SqlResultHandler, args ...interface{}) error {
	rows, err := db.QueryContext(ctx, sqltext, args...)
	if err != nil {
		return fmt.Errorf("error during database query using SQL: '%v': %w", sqltext, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	log.Debug("fetching column types...")
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return fmt.Errorf("error fetching column types: %w", err)
	}
	lenColTypes := len(colTypes)
	scanPtrs := make([]interface{}, lenColTypes)
	scanVals := make([]interface{}, lenColTypes)
	for idx := 0; idx < lenColTypes; idx++ { // for each column...
		scanPtrs[idx] = &scanVals[idx]
	}
	// Build and send the header.
	header := make([]interface{}, lenColTypes)
	for idx := range colTypes {
		header[idx] = colTypes[idx].Name()
	}
	if err = i.HandleHeader(header); err != nil {
		return err
	}
	// Send the rows via callback interface.
	for rows.Next() {
		if err = ctx.Err(); err != nil { // quit if asked to...
			return err
		}
		if err = rows.Scan(scanPtrs...); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
		row := make([]interface{}, lenColTypes)
		for idx := range scanVals { // for each value...
			if b, ok := scanVals[idx].([]byte); ok { // if the driver gave us raw bytes...
				row[idx] = string(b)
			} else {
				row[idx] = scanVals[idx]
			}
		}
		if err = i.HandleRow(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/rdbms/shared"
)

var columnTypes = map[string]map[colKind]string{
	constants.ConnectionTypeSnowflake: {
		kindText:  "VARCHAR",
		kindInt:   "NUMBER(38,0)",
		kindMoney: "NUMBER(18,2)",
		kindRate:  "NUMBER(18,4)",
		kindTime:  "TIMESTAMP_NTZ",
		kindBool:  "BOOLEAN",
	},
	constants.ConnectionTypePostgres: {
		kindText:  "TEXT",
		kindInt:   "BIGINT",
		kindMoney: "NUMERIC(18,2)",
		kindRate:  "NUMERIC(18,4)",
		kindTime:  "TIMESTAMPTZ",
		kindBool:  "BOOLEAN",
	},
}

// GenerateDDL returns the statements that provision every namespace, table and view for dialect,
// followed by the seed row for the pipeline's checkpoint. Statements are safe to re-run.
func GenerateDDL(dialect string, pipelineName string) ([]string, error) {
	types, ok := columnTypes[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported database type %q for DDL generation", dialect)
	}
	stmts := make([]string, 0)
	for _, ns := range []string{
		constants.WarehouseNamespaceStaging,
		constants.WarehouseNamespaceProcessed,
		constants.WarehouseNamespaceAnalytics,
		constants.WarehouseNamespaceMetadata,
	} {
		stmts = append(stmts, fmt.Sprintf("create schema if not exists %v", ns))
	}
	for _, t := range allTables {
		defs := make([]string, 0, len(t.keys)+len(t.cols)+1)
		for _, c := range append(append([]column{}, t.keys...), t.cols...) {
			d := fmt.Sprintf("%v %v", c.name, types[c.kind])
			if !c.nullable {
				d += " not null"
			}
			defs = append(defs, d)
		}
		defs = append(defs, fmt.Sprintf("primary key (%v)", strings.Join(t.keyNames(), ", ")))
		stmts = append(stmts, fmt.Sprintf("create table if not exists %v (\n  %v\n)", t.name, strings.Join(defs, ",\n  ")))
	}
	stmts = append(stmts, fmt.Sprintf("create or replace view %v as\n"+
		"select cast(INVOICE_DATE as date) as SALES_DATE,\n"+
		"  count(distinct INVOICE_NO) as ORDERS,\n"+
		"  count(*) as TRANSACTIONS,\n"+
		"  sum(case when TRANSACTION_TYPE = 'RETURN' then 1 else 0 end) as RETURNS,\n"+
		"  count(distinct CUSTOMER_ID) as CUSTOMERS,\n"+
		"  sum(TOTAL_AMOUNT) as REVENUE\n"+
		"from %v\n"+
		"group by cast(INVOICE_DATE as date)", viewDailySales, tableTransactions.name))
	sysdate := shared.ConnectionDetails{Type: dialect}.MustGetSysDateSql()
	stmts = append(stmts, fmt.Sprintf("insert into %v (PIPELINE_NAME, LAST_ROW_OFFSET, BATCH_SEQUENCE, VERSION, UPDATED_AT)\n"+
		"select '%v', 0, 0, 0, %v where not exists (select 1 from %v where PIPELINE_NAME = '%v')",
		tableCheckpoint.name, escapeLiteral(pipelineName), sysdate, tableCheckpoint.name, escapeLiteral(pipelineName)))
	return stmts, nil
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// ExecuteDDL runs the statements from GenerateDDL one at a time, stopping at the first failure.
func ExecuteDDL(ctx context.Context, log logger.Logger, conn shared.Connector, pipelineName string) error {
	stmts, err := GenerateDDL(conn.GetType(), pipelineName)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		log.Debug("executing DDL: ", s)
		if _, err = conn.ExecContext(ctx, s); err != nil {
			return errors.Wrapf(err, "error executing DDL %q", s)
		}
	}
	log.Info("Created ", len(stmts), " warehouse objects")
	return nil
}

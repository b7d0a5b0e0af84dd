package warehouse

import (
	"github.com/relloyd/retail-loader/constants"
	"github.com/relloyd/retail-loader/rdbms"
)

type colKind int

const (
	kindText colKind = iota
	kindInt
	kindMoney // exact to 2 dp
	kindRate  // exact to 4 dp, used for averages
	kindTime
	kindBool
)

type column struct {
	name     string
	kind     colKind
	nullable bool
}

// table describes a warehouse table: key columns come first in every generated statement.
type table struct {
	name rdbms.SchemaTable
	keys []column
	cols []column
}

func (t table) keyNames() []string {
	return columnNames(t.keys)
}

func (t table) otherNames() []string {
	return columnNames(t.cols)
}

func (t table) allNames() []string {
	return append(t.keyNames(), t.otherNames()...)
}

func columnNames(c []column) []string {
	retval := make([]string, len(c))
	for i := range c {
		retval[i] = c[i].name
	}
	return retval
}

func col(name string, kind colKind) column {
	return column{name: name, kind: kind}
}

func nullCol(name string, kind colKind) column {
	return column{name: name, kind: kind, nullable: true}
}

var (
	tableStaging = table{
		name: rdbms.NewSchemaTable(constants.WarehouseNamespaceStaging, "ONLINE_RETAIL_STAGING"),
		keys: []column{col("FILE_NAME", kindText), col("ROW_NUMBER_IN_FILE", kindInt)},
		cols: []column{
			col("INVOICE_NO", kindText),
			col("STOCK_CODE", kindText),
			nullCol("DESCRIPTION", kindText),
			col("QUANTITY", kindInt),
			col("INVOICE_DATE", kindTime),
			col("UNIT_PRICE", kindMoney),
			nullCol("CUSTOMER_ID", kindText),
			col("COUNTRY", kindText),
			col("HAS_MISSING_CUSTOMER", kindBool),
			col("IS_RETURN", kindBool),
			col("TOTAL_AMOUNT", kindMoney),
			col("LOAD_TIMESTAMP", kindTime),
			col("DATA_SOURCE", kindText),
		},
	}
	tableTransactions = table{
		name: rdbms.NewSchemaTable(constants.WarehouseNamespaceProcessed, "TRANSACTIONS"),
		keys: []column{col("TRANSACTION_ID", kindText)},
		cols: []column{
			col("INVOICE_NO", kindText),
			col("STOCK_CODE", kindText),
			nullCol("CUSTOMER_ID", kindText),
			nullCol("DESCRIPTION", kindText),
			col("QUANTITY", kindInt),
			col("UNIT_PRICE", kindMoney),
			col("TOTAL_AMOUNT", kindMoney),
			col("INVOICE_DATE", kindTime),
			col("INVOICE_YEAR", kindInt),
			col("INVOICE_MONTH", kindInt),
			col("INVOICE_DAY_OF_WEEK", kindInt),
			col("COUNTRY", kindText),
			col("TRANSACTION_TYPE", kindText),
			col("IS_GUEST_PURCHASE", kindBool),
			col("SOURCE_FILE", kindText),
			col("ROW_NUMBER_IN_FILE", kindInt),
			col("BATCH_NUMBER", kindInt),
			col("LOADED_AT", kindTime),
		},
	}
	tableProducts = table{
		name: rdbms.NewSchemaTable(constants.WarehouseNamespaceProcessed, "PRODUCTS"),
		keys: []column{col("STOCK_CODE", kindText)},
		cols: []column{
			nullCol("DESCRIPTION", kindText),
			col("TOTAL_QUANTITY_SOLD", kindInt),
			col("TOTAL_REVENUE", kindMoney),
			col("TRANSACTION_COUNT", kindInt),
			col("RETURN_COUNT", kindInt),
			col("SALES_COUNT", kindInt),
			col("UNIT_PRICE_SUM", kindMoney),
			nullCol("AVERAGE_UNIT_PRICE", kindRate),
			nullCol("MIN_UNIT_PRICE", kindMoney),
			nullCol("MAX_UNIT_PRICE", kindMoney),
			nullCol("FIRST_SALE_DATE", kindTime),
			nullCol("LAST_SALE_DATE", kindTime),
			col("UNIQUE_CUSTOMERS", kindInt),
			col("CREATED_AT", kindTime),
			col("UPDATED_AT", kindTime),
		},
	}
	tableCustomers = table{
		name: rdbms.NewSchemaTable(constants.WarehouseNamespaceProcessed, "CUSTOMERS"),
		keys: []column{col("CUSTOMER_ID", kindText)},
		cols: []column{
			col("COUNTRY", kindText),
			nullCol("FIRST_PURCHASE_DATE", kindTime),
			nullCol("LAST_PURCHASE_DATE", kindTime),
			col("TOTAL_ORDERS", kindInt),
			col("TOTAL_ITEMS_PURCHASED", kindInt),
			col("TOTAL_AMOUNT_SPENT", kindMoney),
			col("TOTAL_RETURNS", kindInt),
			col("TOTAL_RETURNED_AMOUNT", kindMoney),
			col("AVERAGE_ORDER_VALUE", kindRate),
			col("CUSTOMER_SEGMENT", kindText),
			nullCol("DAYS_SINCE_LAST_PURCHASE", kindInt),
			col("CREATED_AT", kindTime),
			col("UPDATED_AT", kindTime),
		},
	}
	tableCountries = table{
		name: rdbms.NewSchemaTable(constants.WarehouseNamespaceProcessed, "COUNTRIES"),
		keys: []column{col("COUNTRY", kindText)},
		cols: []column{
			col("TOTAL_CUSTOMERS", kindInt),
			col("TOTAL_ORDERS", kindInt),
			col("TOTAL_TRANSACTIONS", kindInt),
			col("TOTAL_REVENUE", kindMoney),
			nullCol("FIRST_ORDER_DATE", kindTime),
			nullCol("LAST_ORDER_DATE", kindTime),
			col("CREATED_AT", kindTime),
			col("UPDATED_AT", kindTime),
		},
	}
	tableMembers = table{
		name: rdbms.NewSchemaTable(constants.WarehouseNamespaceProcessed, "DIMENSION_MEMBERS"),
		keys: []column{col("MEMBER_SET", kindText), col("DIMENSION_KEY", kindText), col("MEMBER_KEY", kindText)},
	}
	tableCheckpoint = table{
		name: rdbms.NewSchemaTable(constants.WarehouseNamespaceMetadata, "BATCH_CHECKPOINT"),
		keys: []column{col("PIPELINE_NAME", kindText)},
		cols: []column{
			col("LAST_ROW_OFFSET", kindInt),
			col("BATCH_SEQUENCE", kindInt),
			col("VERSION", kindInt),
			col("UPDATED_AT", kindTime),
			nullCol("LOCK_OWNER", kindText),
			nullCol("LOCK_EXPIRES_AT", kindTime),
		},
	}
	tableExecutionLog = table{
		name: rdbms.NewSchemaTable(constants.WarehouseNamespaceMetadata, "PIPELINE_EXECUTION_LOG"),
		keys: []column{col("LOG_ID", kindText)},
		cols: []column{
			col("RUN_ID", kindText),
			col("PIPELINE_NAME", kindText),
			col("BATCH_NUMBER", kindInt),
			col("BATCH_SEQUENCE", kindInt),
			col("START_ROW", kindInt),
			col("END_ROW", kindInt),
			col("STATUS", kindText),
			col("STARTED_AT", kindTime),
			nullCol("ENDED_AT", kindTime),
			col("ROWS_PROCESSED", kindInt),
			col("ROWS_INSERTED", kindInt),
			col("ROWS_ALREADY_PRESENT", kindInt),
			col("ROWS_REJECTED", kindInt),
			col("DURATION_MS", kindInt),
			nullCol("ERROR_MESSAGE", kindText),
			col("CHECKPOINT_ADVANCED", kindBool),
		},
	}
	tableQuarantine = table{
		name: rdbms.NewSchemaTable(constants.WarehouseNamespaceMetadata, "QUARANTINED_ROWS"),
		keys: []column{col("FILE_NAME", kindText), col("ROW_NUMBER_IN_FILE", kindInt)},
		cols: []column{
			col("REASON", kindText),
			nullCol("DETAIL", kindText),
			nullCol("RAW_PAYLOAD", kindText),
			col("BATCH_NUMBER", kindInt),
			col("RUN_ID", kindText),
			col("QUARANTINED_AT", kindTime),
		},
	}
	viewDailySales = rdbms.NewSchemaTable(constants.WarehouseNamespaceAnalytics, "DAILY_SALES")
)

// allTables is in creation order.
var allTables = []table{
	tableStaging,
	tableTransactions,
	tableProducts,
	tableCustomers,
	tableCountries,
	tableMembers,
	tableCheckpoint,
	tableExecutionLog,
	tableQuarantine,
}

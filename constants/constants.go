package constants

// Pipeline

const (
	AppName                        = "retail-loader"
	ServiceName                    = "rl"
	DefaultPipelineName            = "ONLINE_RETAIL"
	DefaultBatchSize               = 200
	DefaultStatusLogDepth          = 10
	DefaultLockTTLSeconds          = 900
	DataSourceTagPrefix            = "CSV_BATCH_"
	ReturnInvoicePrefix            = "C"
	SqlTxtBatchNumRowsDefault      = 250                 // rows combined into one multi-row INSERT
	SqlInListMaxLen                = 500                 // max bind values in one IN (...) predicate
	TimeFormatYearSeconds          = "20060102T150405"   // used for human readable file names
	TimeFormatYearSecondsRegex     = "[0-9]{4}[0-9]{2}[0-9]{2}T[0-9]{6}"
	TimeFormatYearSecondsTZ        = "20060102T150405-0700"
	EmojiBang                      = "\U0001F4A5"
	EnvVarPrefix                   = "RL" // prefixed for environment variables in twelveFactorMode
	CustomerSegmentThresholdVip    = 10000
	CustomerSegmentThresholdHigh   = 5000
	CustomerSegmentThresholdMedium = 1000
)

// Connections

const (
	ConnectionTypeSnowflake   = "snowflake"
	ConnectionTypePostgres    = "postgres"
	ConnectionTypeLocal       = "local" // file-backed in-memory warehouse
	ConnectionTypeMock        = "mock"  // in-memory warehouse that is lost on exit
	SnowflakeDefaultWarehouse = "COMPUTE_WH"
	SnowflakeDefaultDatabase  = "RETAIL_DATALAKE"
	SnowflakeDefaultSchema    = "RAW_DATA"
	SnowflakeDefaultRole      = "ACCOUNTADMIN"
)

// Warehouse namespaces

const (
	WarehouseNamespaceStaging   = "RAW_DATA"
	WarehouseNamespaceProcessed = "PROCESSED_DATA"
	WarehouseNamespaceAnalytics = "ANALYTICS"
	WarehouseNamespaceMetadata  = "METADATA"
)

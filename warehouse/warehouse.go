// Package warehouse persists the layered retail warehouse: staging, facts, dimensions and pipeline metadata.
// Implementations exist for SQL databases (Snowflake, Postgres) and for an in-memory store that can be
// backed by a local JSON snapshot.
package warehouse

import (
	"context"
	"time"

	"github.com/relloyd/retail-loader/model"
)

// Snapshot is a consistent read of pipeline progress.
// The checkpoint and the log entries are read at the same point in time.
type Snapshot struct {
	Checkpoint model.BatchCheckpoint     `json:"checkpoint"`
	RecentRuns []model.ExecutionLogEntry `json:"recentRuns"` // newest first
	Summary    model.Summary             `json:"summary"`
}

// Reader is the read-only surface used by status and the query API.
// Reads never take the pipeline lock.
type Reader interface {
	Checkpoint(ctx context.Context) (model.BatchCheckpoint, error)
	Snapshot(ctx context.Context, numLogEntries int) (Snapshot, error)
	Summary(ctx context.Context) (model.Summary, error)
	Products(ctx context.Context, q model.ProductQuery) ([]model.Product, error)
	Product(ctx context.Context, stockCode string) (model.Product, error)
	Customers(ctx context.Context, q model.CustomerQuery) ([]model.Customer, error)
	Customer(ctx context.Context, customerID string) (model.Customer, error)
	Countries(ctx context.Context) ([]model.Country, error)
	SalesMetrics(ctx context.Context) ([]model.MonthlySales, error)
	Quarantined(ctx context.Context, limit int) ([]model.QuarantinedRow, error)
	Ping(ctx context.Context) error
}

// Warehouse adds the writes used by the pipeline controller.
// AppendLog and Quarantine commit immediately; everything else goes through a Tx.
type Warehouse interface {
	Reader
	Begin(ctx context.Context) (Tx, error)
	AppendLog(ctx context.Context, e model.ExecutionLogEntry) error
	Quarantine(ctx context.Context, rows []model.QuarantinedRow) (int, error)
	AcquireLock(ctx context.Context, owner string, ttl time.Duration) error
	ReleaseLock(ctx context.Context, owner string) error
	Close() error
}

// Tx is one batch transaction. Nothing written through it is visible to readers until Commit.
type Tx interface {
	// Stage inserts records that are not already staged and returns how many were new.
	Stage(ctx context.Context, recs []model.StagedRecord) (int, error)
	// InsertTransactions inserts facts by TransactionID if absent and returns the ones that were new.
	InsertTransactions(ctx context.Context, txns []model.Transaction) ([]model.Transaction, error)
	Products(ctx context.Context, stockCodes []string) (map[string]model.Product, error)
	Customers(ctx context.Context, customerIDs []string) (map[string]model.Customer, error)
	Countries(ctx context.Context, countries []string) (map[string]model.Country, error)
	PutProducts(ctx context.Context, p []model.Product) error
	PutCustomers(ctx context.Context, c []model.Customer) error
	PutCountries(ctx context.Context, c []model.Country) error
	// AddMembers records set membership and returns only the members that were not present before.
	AddMembers(ctx context.Context, set model.MemberSet, members []model.Member) ([]model.Member, error)
	AppendLog(ctx context.Context, e model.ExecutionLogEntry) error
	// CommitCheckpoint replaces the checkpoint if its version is still expectedVersion.
	// It returns ErrCheckpointConflict otherwise.
	CommitCheckpoint(ctx context.Context, expectedVersion int64, cp model.BatchCheckpoint) error
	Commit() error
	Rollback() error
}

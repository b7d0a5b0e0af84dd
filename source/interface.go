//go:generate mockgen -package mocks -destination mocks/reader.go -source=interface.go

// Package source reads retail rows from a delimited file held locally or in S3.
package source

import (
	"context"

	"github.com/relloyd/retail-loader/model"
)

// Reader gives positional access to the data rows of one source file.
// Row indexes are 1-based and exclude the header.
type Reader interface {
	// Name is the file name recorded against staged and quarantined rows.
	Name() string
	// Count returns the number of data rows.
	Count(ctx context.Context) (int64, error)
	// ReadRange returns rows start..end inclusive, fewer if the file ends first.
	ReadRange(ctx context.Context, start, end int64) ([]model.SourceRow, error)
	// Each calls fn for every data row in order, stopping at the first error.
	Each(ctx context.Context, fn func(model.SourceRow) error) error
}

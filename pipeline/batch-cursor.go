package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/source"
	"github.com/relloyd/retail-loader/warehouse"
)

// CheckpointReader is the part of the warehouse the cursor reads.
type CheckpointReader interface {
	Checkpoint(ctx context.Context) (model.BatchCheckpoint, error)
}

// BatchCursor turns the checkpoint into the next slice of source rows.
// The checkpoint is the only record of progress and the cursor only moves it inside a batch transaction.
type BatchCursor struct {
	checkpoints CheckpointReader
	source      source.Reader
	batchSize   int64
}

func NewBatchCursor(checkpoints CheckpointReader, src source.Reader, batchSize int64) (*BatchCursor, error) {
	if batchSize <= 0 {
		return nil, NewConfigError(nil, "batch size must be a positive integer; got %v", batchSize)
	}
	return &BatchCursor{checkpoints: checkpoints, source: src, batchSize: batchSize}, nil
}

// Next returns the checkpoint it read and the range that follows it.
// The range is empty when no rows remain.
func (c *BatchCursor) Next(ctx context.Context) (model.BatchCheckpoint, model.BatchRange, error) {
	cp, total, err := c.read(ctx)
	if err != nil {
		return cp, model.BatchRange{}, err
	}
	start := cp.LastRowOffset + 1
	return cp, c.rangeFrom(start, total), nil
}

// ForBatch returns logical batch n, rows (n-1)*size+1 to n*size, regardless of the checkpoint.
func (c *BatchCursor) ForBatch(ctx context.Context, n int64) (model.BatchCheckpoint, model.BatchRange, error) {
	if n < 1 {
		return model.BatchCheckpoint{}, model.BatchRange{}, NewConfigError(nil, "batch number must be 1 or more; got %v", n)
	}
	cp, total, err := c.read(ctx)
	if err != nil {
		return cp, model.BatchRange{}, err
	}
	return cp, c.rangeFrom((n-1)*c.batchSize+1, total), nil
}

func (c *BatchCursor) read(ctx context.Context) (model.BatchCheckpoint, int64, error) {
	cp, err := c.checkpoints.Checkpoint(ctx)
	if err != nil {
		return cp, 0, errors.Wrap(err, "error reading checkpoint")
	}
	total, err := c.source.Count(ctx)
	if err != nil {
		return cp, 0, errors.Wrap(err, "error counting source rows")
	}
	if cp.LastRowOffset > total {
		return cp, 0, fmt.Errorf("checkpoint offset %v is past the end of %v (%v rows)", cp.LastRowOffset, c.source.Name(), total)
	}
	return cp, total, nil
}

func (c *BatchCursor) rangeFrom(start, total int64) model.BatchRange {
	number := (start-1)/c.batchSize + 1
	if start > total {
		return model.BatchRange{Start: start, End: start - 1, Number: number, Last: true}
	}
	end := start + c.batchSize - 1
	if end >= total {
		end = total
	}
	return model.BatchRange{Start: start, End: end, Number: number, Last: end == total}
}

// Commit moves the checkpoint past r inside tx if r is the range that directly follows cp.
// Any other range leaves the checkpoint alone so offsets are never skipped.
func (c *BatchCursor) Commit(ctx context.Context, tx warehouse.Tx, cp model.BatchCheckpoint, r model.BatchRange, now time.Time) (bool, error) {
	if r.Empty() || r.Start != cp.LastRowOffset+1 {
		return false, nil
	}
	next := model.BatchCheckpoint{
		PipelineName:  cp.PipelineName,
		LastRowOffset: r.End,
		BatchSequence: cp.BatchSequence + 1,
		Version:       cp.Version + 1,
		UpdatedAt:     now,
	}
	if err := tx.CommitCheckpoint(ctx, cp.Version, next); err != nil {
		return false, err
	}
	return true, nil
}

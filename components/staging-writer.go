package components

import (
	"context"

	"github.com/pkg/errors"
	"github.com/relloyd/retail-loader/helper"
	"github.com/relloyd/retail-loader/logger"
	"github.com/relloyd/retail-loader/model"
	"github.com/relloyd/retail-loader/warehouse"
)

type StagingWriterConfig struct {
	Log logger.Logger `errorTxt:"logger" mandatory:"yes"`
}

type StagingWriter struct {
	StagingWriterConfig
}

type StagingResult struct {
	Written       int
	AlreadyStaged int
}

func NewStagingWriter(cfg StagingWriterConfig) (*StagingWriter, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	return &StagingWriter{cfg}, nil
}

// Write stages recs inside tx. Rows already staged under the same (file, row index) are left alone,
// so re-running a failed range does not duplicate staging.
func (w *StagingWriter) Write(ctx context.Context, tx warehouse.Tx, recs []model.StagedRecord) (StagingResult, error) {
	if len(recs) == 0 {
		return StagingResult{}, nil
	}
	n, err := tx.Stage(ctx, recs)
	if err != nil {
		return StagingResult{}, errors.Wrap(err, "error writing staging rows")
	}
	res := StagingResult{Written: n, AlreadyStaged: len(recs) - n}
	w.Log.Debug("staged ", res.Written, " rows; ", res.AlreadyStaged, " were already staged")
	return res, nil
}

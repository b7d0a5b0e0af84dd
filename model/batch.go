package model

import (
	"fmt"
	"time"
)

// BatchCheckpoint is the single progress row. Version increases on every successful compare-and-swap.
type BatchCheckpoint struct {
	PipelineName  string    `json:"pipelineName"`
	LastRowOffset int64     `json:"lastRowOffset"`
	BatchSequence int64     `json:"batchSequence"`
	Version       int64     `json:"version"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type BatchStatus string

const (
	BatchStatusStarted   BatchStatus = "STARTED"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
)

// ExecutionLogEntry is one immutable line of batch history.
// A run writes STARTED and then exactly one of COMPLETED or FAILED.
type ExecutionLogEntry struct {
	LogID              string      `json:"logId"`
	RunID              string      `json:"runId"`
	PipelineName       string      `json:"pipelineName"`
	BatchNumber        int64       `json:"batchNumber"`
	BatchSequence      int64       `json:"batchSequence"`
	StartRow           int64       `json:"startRow"`
	EndRow             int64       `json:"endRow"`
	Status             BatchStatus `json:"status"`
	StartedAt          time.Time   `json:"startedAt"`
	EndedAt            time.Time   `json:"endedAt"`
	RowsProcessed      int64       `json:"rowsProcessed"`
	RowsInserted       int64       `json:"rowsInserted"`
	RowsAlreadyPresent int64       `json:"rowsAlreadyPresent"`
	RowsRejected       int64       `json:"rowsRejected"`
	DurationMs         int64       `json:"durationMs"`
	ErrorMessage       string      `json:"errorMessage,omitempty"`
	CheckpointAdvanced bool        `json:"checkpointAdvanced"`
}

func (e ExecutionLogEntry) String() string {
	s := fmt.Sprintf("batch %v rows %v-%v %v processed=%v inserted=%v alreadyPresent=%v rejected=%v durationMs=%v",
		e.BatchNumber, e.StartRow, e.EndRow, e.Status, e.RowsProcessed, e.RowsInserted, e.RowsAlreadyPresent, e.RowsRejected, e.DurationMs)
	if e.ErrorMessage != "" {
		s += " error=" + e.ErrorMessage
	}
	return s
}

type QuarantineReason string

const (
	QuarantineReasonMissingField  QuarantineReason = "MISSING_FIELD"
	QuarantineReasonInvalidNumber QuarantineReason = "INVALID_NUMBER"
	QuarantineReasonNegativePrice QuarantineReason = "NEGATIVE_PRICE"
	QuarantineReasonInvalidDate   QuarantineReason = "INVALID_DATE"
	QuarantineReasonZeroQuantity  QuarantineReason = "ZERO_QUANTITY"
	QuarantineReasonMalformedRow  QuarantineReason = "MALFORMED_ROW"
)

// QuarantinedRow is a source row that failed validation, idempotent on (FileName, RowIndex).
type QuarantinedRow struct {
	FileName      string           `json:"fileName"`
	RowIndex      int64            `json:"rowIndex"`
	Reason        QuarantineReason `json:"reason"`
	Detail        string           `json:"detail"`
	RawPayload    string           `json:"rawPayload"`
	BatchNumber   int64            `json:"batchNumber"`
	RunID         string           `json:"runId"`
	QuarantinedAt time.Time        `json:"quarantinedAt"`
}

func (q QuarantinedRow) Key() StagingKey {
	return StagingKey{FileName: q.FileName, RowIndex: q.RowIndex}
}

// BatchRange is a contiguous, inclusive slice of source rows.
// An empty range (End < Start) means no rows remain.
type BatchRange struct {
	Start  int64 `json:"start"`
	End    int64 `json:"end"`
	Number int64 `json:"number"`
	Last   bool  `json:"last"`
}

func (b BatchRange) Empty() bool {
	return b.End < b.Start
}

func (b BatchRange) Len() int64 {
	if b.Empty() {
		return 0
	}
	return b.End - b.Start + 1
}

func (b BatchRange) String() string {
	if b.Empty() {
		return "no rows remaining"
	}
	return fmt.Sprintf("batch %v rows %v-%v", b.Number, b.Start, b.End)
}

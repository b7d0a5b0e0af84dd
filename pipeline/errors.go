package pipeline

import (
	"errors"
	"fmt"

	"github.com/relloyd/retail-loader/model"
)

// Stage names the step of a batch run. They are also the stats step names.
type Stage string

const (
	StageConnect     Stage = "connect"
	StageLock        Stage = "lock"
	StageCursor      Stage = "cursor"
	StageStartLog    Stage = "start-log"
	StageRead        Stage = "read"
	StageValidate    Stage = "validate"
	StageQuarantine  Stage = "quarantine"
	StageStaging     Stage = "staging"
	StageFacts       Stage = "facts"
	StageDimensions  Stage = "dimensions"
	StageCheckpoint  Stage = "checkpoint"
	StageCompleteLog Stage = "complete-log"
	StageCommit      Stage = "commit"
)

// BatchError aborts a batch. Nothing of the batch transaction is kept and the same range can be retried.
type BatchError struct {
	Stage Stage
	Range model.BatchRange
	Cause error
}

func (e *BatchError) Error() string {
	if e.Range.Empty() {
		return fmt.Sprintf("batch failed at %v: %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("%v failed at %v: %v", e.Range, e.Stage, e.Cause)
}

func (e *BatchError) Unwrap() error {
	return e.Cause
}

// ConfigError is raised before any batch starts.
type ConfigError struct {
	Msg   string
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Cause == nil {
		return "configuration error: " + e.Msg
	}
	return fmt.Sprintf("configuration error: %v: %v", e.Msg, e.Cause)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

func NewConfigError(cause error, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...), Cause: cause}
}

func IsConfigError(err error) bool {
	var c *ConfigError
	return errors.As(err, &c)
}

func IsBatchError(err error) bool {
	var b *BatchError
	return errors.As(err, &b)
}

package warehouse

import (
	"errors"
)

var (
	ErrCheckpointConflict = errors.New("checkpoint was changed by another writer")
	ErrLockHeld           = errors.New("pipeline lock is held by another process")
	ErrNotFound           = errors.New("not found")
	ErrTxDone             = errors.New("transaction has already been committed or rolled back")
)

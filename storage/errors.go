package storage

import (
	"errors"
	"fmt"
)

// ErrStorage matches every error returned by a Store for a persistence-layer fault.
var ErrStorage = errors.New("storage failure")

// StorageError records the store operation that failed and the driver error behind it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorage as a match so callers need not know the concrete type.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// wrapErr returns nil for a nil err, otherwise a *StorageError for op.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	logs.Error("storage operation failed", "op", op, "error", err)
	return &StorageError{Op: op, Err: err}
}

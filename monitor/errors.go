package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperkishore/home-internet/ingest"
	"github.com/hyperkishore/home-internet/storage"
)

// Error codes returned across the service boundary.
const (
	CodeMissingDeviceID = ingest.CodeMissingDeviceID
	CodeInvalidPayload  = ingest.CodeInvalidPayload
	CodeStorageError    = "storage_error"
	CodeTimeout         = "timeout"
)

// Error is the only error type returned by Service methods.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsValidation reports whether the error was caused by the client's input.
func (e *Error) IsValidation() bool {
	return e.Code == CodeMissingDeviceID || e.Code == CodeInvalidPayload
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// classify turns any failure from the layers below into an *Error.
func classify(op string, err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}

	var verr *ingest.ValidationError
	if errors.As(err, &verr) {
		return &Error{Code: verr.Code, Message: verr.Message, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Code: CodeTimeout, Message: op + " did not complete in time", Err: err}
	}
	if errors.Is(err, storage.ErrStorage) {
		return &Error{Code: CodeStorageError, Message: op + " failed", Err: err}
	}
	return &Error{Code: CodeStorageError, Message: op + " failed unexpectedly", Err: err}
}

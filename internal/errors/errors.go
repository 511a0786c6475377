package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Salawat error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrOverflow           ErrorCode = "OVERFLOW"            // 422
	ErrCancelled          ErrorCode = "CANCELLED"           // 499
	ErrCorruptState       ErrorCode = "CORRUPT_STATE"       // 500
	ErrInternal           ErrorCode = "INTERNAL"            // 500
	ErrPersistenceFailure ErrorCode = "PERSISTENCE_FAILURE" // 503
	ErrBusy               ErrorCode = "BUSY"                // 503
)

// SalawatError represents a structured error with code, status, and details.
type SalawatError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Cause is the underlying error, if any. It may name file paths or
	// addresses, so Message never includes it; only Error() does.
	Cause error
}

// Error implements the error interface.
func (e *SalawatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *SalawatError) Unwrap() error {
	return e.Cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *SalawatError {
	return &SalawatError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewOverflow creates a 422 error when applying delta to total would leave the int64 range.
func NewOverflow(total, delta int64) *SalawatError {
	return &SalawatError{
		Code:    ErrOverflow,
		Status:  422,
		Message: fmt.Sprintf("adding %d to %d overflows the counter", delta, total),
		Details: map[string]any{"total": total, "delta": delta},
	}
}

// NewCancelled creates a 499 error when the caller gave up while waiting.
func NewCancelled(operation string, cause error) *SalawatError {
	return &SalawatError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
		Cause:   cause,
	}
}

// NewCorruptState creates a 500 error for a durable record that cannot be decoded.
// The location (file path, table, key) goes into Details, not the message.
func NewCorruptState(location string, cause error) *SalawatError {
	return &SalawatError{
		Code:    ErrCorruptState,
		Status:  500,
		Message: "counter state is corrupt",
		Details: map[string]any{"location": location},
		Cause:   cause,
	}
}

// NewPersistenceFailure creates a 503 error when the durable record could not be read or written.
func NewPersistenceFailure(operation string, cause error) *SalawatError {
	return &SalawatError{
		Code:    ErrPersistenceFailure,
		Status:  503,
		Message: fmt.Sprintf("%s failed", operation),
		Details: map[string]any{"operation": operation},
		Cause:   cause,
	}
}

// NewBusy creates a 503 error when the store's writer slot was not acquired in time.
func NewBusy(waited string) *SalawatError {
	return &SalawatError{
		Code:    ErrBusy,
		Status:  503,
		Message: fmt.Sprintf("counter store busy (waited %s)", waited),
		Details: map[string]any{"waited": waited},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *SalawatError {
	return &SalawatError{
		Code:    ErrInternal,
		Status:  500,
		Message: "internal error",
		Cause:   err,
	}
}

// Is checks if err (or anything it wraps) is a SalawatError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *SalawatError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// CodeOf returns the code of the first SalawatError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var sErr *SalawatError
	if stderrors.As(err, &sErr) {
		return sErr.Code
	}
	return ErrInternal
}

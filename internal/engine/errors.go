package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/subsku/internal/ledger"
	"github.com/roach88/subsku/internal/platform"
	"github.com/roach88/subsku/internal/pool"
	"github.com/roach88/subsku/internal/store"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a SKU, order or line item is absent.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInsufficientAvailable indicates fewer Available sub-units than
	// a removal needs.
	ErrCodeInsufficientAvailable ErrorCode = "INSUFFICIENT_AVAILABLE"

	// ErrCodeInvalidInput indicates a malformed line item (missing SKU,
	// non-positive quantity). Line items with this code are skipped.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrCodeExternalCallFailure indicates a platform API error or timeout.
	ErrCodeExternalCallFailure ErrorCode = "EXTERNAL_CALL_FAILURE"

	// ErrCodePersistenceFailure indicates a pool store error.
	ErrCodePersistenceFailure ErrorCode = "PERSISTENCE_FAILURE"
)

// Error is the structured error returned by engine operations.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	SKU        string
	OrderID    string
	LineItemID string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.SKU != "" {
		msg += fmt.Sprintf(" (sku=%s)", e.SKU)
	}
	if e.OrderID != "" {
		msg += fmt.Sprintf(" (order=%s)", e.OrderID)
	}
	if e.LineItemID != "" {
		msg += fmt.Sprintf(" (line_item=%s)", e.LineItemID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound returns true if err is a NOT_FOUND engine error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsInsufficientAvailable returns true if err is an INSUFFICIENT_AVAILABLE
// engine error.
func IsInsufficientAvailable(err error) bool { return CodeOf(err) == ErrCodeInsufficientAvailable }

// IsInvalidInput returns true if err is an INVALID_INPUT engine error.
func IsInvalidInput(err error) bool { return CodeOf(err) == ErrCodeInvalidInput }

// IsExternalCallFailure returns true if err is an EXTERNAL_CALL_FAILURE
// engine error.
func IsExternalCallFailure(err error) bool { return CodeOf(err) == ErrCodeExternalCallFailure }

// IsPersistenceFailure returns true if err is a PERSISTENCE_FAILURE engine
// error.
func IsPersistenceFailure(err error) bool { return CodeOf(err) == ErrCodePersistenceFailure }

// IsPermanent reports whether retrying the same event cannot help. Only the
// first engine error in err's chain is inspected; for a batch use
// BatchResult.Permanent.
func IsPermanent(err error) bool {
	switch CodeOf(err) {
	case ErrCodeInvalidInput, ErrCodeNotFound:
		return true
	}
	return false
}

func newError(code ErrorCode, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func (e *Error) withSKU(sku string) *Error {
	e.SKU = sku
	return e
}

func (e *Error) withOrder(orderID, lineItemID string) *Error {
	e.OrderID = orderID
	e.LineItemID = lineItemID
	return e
}

// classify maps leaf-package errors onto the engine taxonomy. An error that
// is already an *Error is returned unchanged.
func classify(msg string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, store.ErrPoolNotFound),
		errors.Is(err, platform.ErrOrderNotFound),
		errors.Is(err, platform.ErrSKUNotFound),
		errors.Is(err, platform.ErrInventoryItemNotFound),
		errors.Is(err, ledger.ErrNoAssignment):
		return newError(ErrCodeNotFound, msg, err)
	case errors.Is(err, pool.ErrInsufficientAvailable):
		return newError(ErrCodeInsufficientAvailable, msg, err)
	case errors.Is(err, pool.ErrInvalidQuantity):
		return newError(ErrCodeInvalidInput, msg, err)
	}
	return nil
}

// persistenceError classifies err, defaulting to PERSISTENCE_FAILURE.
func persistenceError(msg string, err error) *Error {
	if e := classify(msg, err); e != nil {
		return e
	}
	return newError(ErrCodePersistenceFailure, msg, err)
}

// externalError classifies err, defaulting to EXTERNAL_CALL_FAILURE.
func externalError(msg string, err error) *Error {
	if e := classify(msg, err); e != nil {
		return e
	}
	return newError(ErrCodeExternalCallFailure, msg, err)
}

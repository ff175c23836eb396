package market

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the transaction coordinator.
var (
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrInsufficientBalance  = errors.New("insufficient points balance")
	ErrInsufficientQuantity = errors.New("insufficient card quantity")
	ErrConcurrencyConflict  = errors.New("store transaction conflict")
	ErrRemoteService        = errors.New("remote ledger call failed")
	ErrNotOwner             = errors.New("caller does not own the entity")
	ErrListingNotOpen       = errors.New("listing is not open")
	ErrOfferNotPayable      = errors.New("offer is not payable")
	ErrPaymentDueElapsed    = errors.New("payment due date elapsed")
	ErrDuplicateRecord      = errors.New("duplicate record")
	ErrInvalidCoordinator   = errors.New("invalid coordinator config")
)

// Stable code segments carried by OperationError.
const (
	codeValidation   = "validation"
	codeNotFound     = "not_found"
	codeBalance      = "insufficient_balance"
	codeQuantity     = "insufficient_quantity"
	codeConflict     = "conflict"
	codeRemote       = "remote_failed"
	codeOwnership    = "not_owner"
	codeListingState = "listing_not_open"
	codeOfferState   = "offer_not_payable"
	codePaymentDue   = "payment_due_elapsed"
	codeDuplicate    = "duplicate"
	codeInternal     = "internal"
)

// codeFor maps a domain error to its stable code segment.
func codeFor(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return codeValidation
	case errors.Is(err, ErrNotFound):
		return codeNotFound
	case errors.Is(err, ErrInsufficientBalance):
		return codeBalance
	case errors.Is(err, ErrInsufficientQuantity):
		return codeQuantity
	case errors.Is(err, ErrConcurrencyConflict):
		return codeConflict
	case errors.Is(err, ErrRemoteService):
		return codeRemote
	case errors.Is(err, ErrNotOwner):
		return codeOwnership
	case errors.Is(err, ErrListingNotOpen):
		return codeListingState
	case errors.Is(err, ErrOfferNotPayable):
		return codeOfferState
	case errors.Is(err, ErrPaymentDueElapsed):
		return codePaymentDue
	case errors.Is(err, ErrDuplicateRecord):
		return codeDuplicate
	default:
		return codeInternal
	}
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

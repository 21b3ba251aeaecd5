package wallet

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the wallet service.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidState         = errors.New("invalid state")
	ErrGatewayFailed        = errors.New("gateway failed")
	ErrConcurrencyConflict  = errors.New("concurrency conflict")
	ErrAccountInactive      = errors.New("account inactive")
	ErrUnknownAccount       = errors.New("unknown account")
	ErrUnknownLot           = errors.New("unknown lot")
	ErrUnknownTransaction   = errors.New("unknown transaction")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidOrderRef      = errors.New("invalid order ref")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidCurrency      = errors.New("invalid currency")
	ErrInvalidAccountStatus = errors.New("invalid account status")
	ErrInvalidLotSource     = errors.New("invalid lot source")
	ErrInvalidLotStatus     = errors.New("invalid lot status")
	ErrInvalidFreezeStatus  = errors.New("invalid freeze status")
	ErrInvalidDirection     = errors.New("invalid direction")
	ErrInvalidTxnType       = errors.New("invalid transaction type")
	ErrInvalidTxnStatus     = errors.New("invalid transaction status")
	ErrInvalidRefKind       = errors.New("invalid reference kind")
	ErrInvalidServiceConfig = errors.New("invalid service config")
	ErrInvalidBalance       = errors.New("invalid balance")
)

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

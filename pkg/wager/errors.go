package wager

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the settlement engine.
var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrWalletExists           = errors.New("wallet already exists")
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrBetNotFound            = errors.New("bet not found")
	ErrBetSettled             = errors.New("bet already settled")
	ErrUnknownProvider        = errors.New("unknown outcome provider")
	ErrProviderExists         = errors.New("outcome provider already registered")
	ErrInvalidUserID          = errors.New("invalid user id")
	ErrInvalidBetID           = errors.New("invalid bet id")
	ErrInvalidGame            = errors.New("invalid game")
	ErrInvalidStake           = errors.New("invalid stake")
	ErrInvalidPayout          = errors.New("invalid payout")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidBetStatus       = errors.New("invalid bet status")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidDetailsJSON     = errors.New("invalid details json")
	ErrInvalidGameParams      = errors.New("invalid game parameters")
	ErrInvalidCursor          = errors.New("invalid cursor")
	ErrInvalidSeed            = errors.New("invalid seed")
	ErrInvalidServiceConfig   = errors.New("invalid service config")
	ErrInvalidBalance         = errors.New("invalid balance")
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

/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify errors with errors.Is / errors.As; the API layer maps
  the classification helpers to HTTP status codes.

ERROR CATEGORIES:
  1. Validation errors - bad input shape, rejected before any transaction
  2. Business-rule failures - insufficient balance, unreachable amount;
     the transaction never mutates state
  3. Persistence errors - storage failure mid-operation, always rolled back
  4. Timeout - lock wait exceeded, rolled back

SEE ALSO:
  - engine.go: produces these errors
  - api/handlers.go: maps them to HTTP responses
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when an operation amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrNotesTooShort is returned when a manual movement's notes are shorter
	// than MinNotesLength after trimming.
	ErrNotesTooShort = errors.New("notes too short")

	// ErrInvalidKind is returned when a movement kind is unknown, or when an
	// adjustment is missing its direction.
	ErrInvalidKind = errors.New("invalid movement kind")

	// ErrSameRegister is returned when a transfer names the same register as
	// both origin and destination.
	ErrSameRegister = errors.New("origin and destination must differ")

	// ErrRegisterNotFound is returned when a referenced register doesn't exist.
	ErrRegisterNotFound = errors.New("register not found")

	// ErrRegisterInactive is returned when an operation targets a deactivated
	// register.
	ErrRegisterInactive = errors.New("register is inactive")

	// ErrInsufficientBalance is returned when a transfer exceeds the origin's
	// derived balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrExactAmountUnreachable is returned when no oldest-first prefix of the
	// origin's completed orders sums exactly to the requested amount. Orders
	// are never split across registers.
	ErrExactAmountUnreachable = errors.New("exact amount unreachable")

	// ErrOperationTimedOut is returned when the per-register lock could not be
	// acquired before the caller's deadline. Nothing was mutated.
	ErrOperationTimedOut = errors.New("operation timed out")

	// ErrPersistence is returned when the storage layer fails mid-operation.
	// The enclosing transaction has been rolled back.
	ErrPersistence = errors.New("persistence failure")
)

// MinNotesLength is the minimum trimmed length of the notes on a manual
// movement. Short notes are rejected so the ledger stays explainable.
const MinNotesLength = 5

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	Register  string
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on %s: available %s, requested %s",
		e.Register, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// UnreachableAmountError provides details about a failed exact-amount
// selection.
type UnreachableAmountError struct {
	Register  string
	Requested decimal.Decimal
	Scanned   int // completed orders examined before giving up
}

func (e *UnreachableAmountError) Error() string {
	return fmt.Sprintf("cannot transfer %s from %s: no whole-order prefix matches the amount and orders cannot be split (%d orders scanned)",
		e.Requested, e.Register, e.Scanned)
}

func (e *UnreachableAmountError) Unwrap() error {
	return ErrExactAmountUnreachable
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidationError returns true if the error is due to invalid input shape,
// rejected before any transaction opened.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrNotesTooShort) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrSameRegister)
}

// IsBusinessRuleError returns true for business-rule failures where the
// transaction never mutated state.
func IsBusinessRuleError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrExactAmountUnreachable) ||
		errors.Is(err, ErrRegisterInactive)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRegisterNotFound)
}

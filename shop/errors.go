/*
errors.go - Error taxonomy for settlement and refunds

PURPOSE:
  All error types in one place. Callers match with errors.Is / errors.As;
  the HTTP layer translates them into status codes and field messages.

ERROR CATEGORIES:
  1. Client errors   - validation, insufficient funds/stock, expired window,
                       not own purchase
  2. Access errors   - unauthenticated, forbidden
  3. Lookup errors   - not found, conflict
  Anything else is a store failure and is never retried automatically.

SEE ALSO:
  - api/handlers.go: statusFor maps these to HTTP status codes
*/
package shop

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when a required field is missing or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientFunds is returned when the wallet cannot cover quantity*price.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientStock is returned when fewer goods are in stock than requested.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrRefundWindowExpired is returned when a refund is requested too late.
	ErrRefundWindowExpired = errors.New("refund window expired")

	// ErrNotOwnPurchase is returned when a customer asks to refund someone else's purchase.
	ErrNotOwnPurchase = errors.New("not own purchase")

	// ErrForbidden is returned when the access policy denies an operation.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthenticated is returned when an operation needs a known caller.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on unique key violations (e.g. duplicate email).
	ErrConflict = errors.New("conflict")
)

// Messages shown to callers.
const (
	MsgFieldRequired      = "This field is required."
	MsgQuantityMin        = "Ensure this value is greater than or equal to 1."
	MsgInsufficientFunds  = "You don't have enough money for this purchase"
	MsgInsufficientStock  = "We don't have enough goods in stock"
	MsgRefundExpired      = "Allowed refund time has been expired"
	MsgNotOwnPurchase     = "You can create refunds only for your own purchases"
	MsgRefundCreated      = "Your refund request has been sent. Wait for approving."
	MsgRefundAlreadyExist = "The refund for current purchase already exists. Wait for approving."
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError collects per-field messages.
type ValidationError struct {
	Fields map[string][]string
}

// Add records a message for a field.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

// OrNil returns the error if any field failed, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(e.Fields[name], " ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InsufficientFundsError describes a wallet shortfall.
type InsufficientFundsError struct {
	CustomerID UserID
	Wallet     int64
	Cost       int64 // zero when quantity*price overflowed
}

func (e *InsufficientFundsError) Error() string {
	if e.Cost == 0 {
		return fmt.Sprintf("insufficient funds: customer %d, wallet %d, cost exceeds any balance", e.CustomerID, e.Wallet)
	}
	return fmt.Sprintf("insufficient funds: customer %d, wallet %d, cost %d", e.CustomerID, e.Wallet, e.Cost)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// InsufficientStockError describes a stock shortfall.
type InsufficientStockError struct {
	GoodID    GoodID
	InStock   int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: good %d, in stock %d, requested %d", e.GoodID, e.InStock, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// RefundWindowExpiredError describes a late refund request.
type RefundWindowExpiredError struct {
	PurchaseID PurchaseID
	Age        time.Duration
	Window     time.Duration
}

func (e *RefundWindowExpiredError) Error() string {
	return fmt.Sprintf("refund window expired: purchase %d is %s old, window is %s",
		e.PurchaseID, e.Age.Round(time.Second), e.Window)
}

func (e *RefundWindowExpiredError) Unwrap() error {
	return ErrRefundWindowExpired
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the caller can fix the error by changing input
// or waiting for a precondition to change.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrRefundWindowExpired) ||
		errors.Is(err, ErrNotOwnPurchase)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ClientMessage returns the caller-facing message for a client error.
func ClientMessage(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return MsgInsufficientFunds
	case errors.Is(err, ErrInsufficientStock):
		return MsgInsufficientStock
	case errors.Is(err, ErrRefundWindowExpired):
		return MsgRefundExpired
	case errors.Is(err, ErrNotOwnPurchase):
		return MsgNotOwnPurchase
	default:
		return err.Error()
	}
}

// NotFoundError wraps ErrNotFound with the kind and id of the missing entity.
func NotFoundError(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
}

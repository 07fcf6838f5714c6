/*
Package shop provides the purchase and refund settlement core.

PURPOSE:
  Customers buy goods against a stored wallet balance and may ask for a
  refund within a short window. Administrators approve or decline those
  refunds. Everything else in the repository (HTTP, tokens, SQLite) is
  plumbing around the operations defined here.

KEY CONCEPTS IN THIS FILE (types.go):
  - User:     wallet holder, optionally an administrator
  - Good:     catalog item with a price and a stock count
  - Purchase: immutable record of a settled sale, price captured at sale time
  - Refund:   pending request to reverse a purchase (at most one per purchase)

INVARIANTS:
  1. user.Wallet >= 0, always (checked before writing, never clamped)
  2. good.InStock >= 0, always
  3. purchase.Price is captured once and never recomputed from good.Price
  4. At most one Refund exists per Purchase

SEE ALSO:
  - settlement.go: Purchase settlement
  - refund.go:     Refund request and approval
  - policy.go:     Who may do what
  - store.go:      Persistence interfaces
*/
package shop

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID int64

type GoodID int64

type PurchaseID int64

type RefundID int64

// DefaultWallet is the balance every newly registered customer starts with.
const DefaultWallet int64 = 1000

// =============================================================================
// ENTITIES
// =============================================================================

// User is a shop account. Wallet is mutated only by settlement and approval.
type User struct {
	ID        UserID    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Wallet    int64     `json:"wallet"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Good is a catalog item.
type Good struct {
	ID          GoodID `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	InStock     int64  `json:"in_stock"`
}

// Purchase is a settled sale. Never updated; deleted only when a refund
// for it is approved.
type Purchase struct {
	ID         PurchaseID `json:"id"`
	CustomerID UserID     `json:"customer"`
	GoodID     GoodID     `json:"good"`
	Quantity   int64      `json:"quantity"`
	Price      int64      `json:"price"` // unit price at the moment of purchase
	CreatedAt  time.Time  `json:"created_at"`
}

// Total is what the customer paid for the purchase.
func (p Purchase) Total() int64 {
	return p.Quantity * p.Price
}

// Refund marks a purchase as pending approval.
// CustomerID is derived from the purchase and filled in by the store.
type Refund struct {
	ID         RefundID   `json:"id"`
	PurchaseID PurchaseID `json:"purchase"`
	CustomerID UserID     `json:"customer"`
	CreatedAt  time.Time  `json:"created_at"`
}

// =============================================================================
// PURCHASE STATE
// =============================================================================

// PurchaseState is the refund state of a purchase.
// Refunded and declined are never stored: an approved purchase is deleted,
// a declined one simply has no refund row any more.
type PurchaseState string

const (
	StatePurchased       PurchaseState = "purchased"
	StateRefundRequested PurchaseState = "refund_requested"
	StateRefunded        PurchaseState = "refunded"
	StateDeclined        PurchaseState = "declined"
)

// StateOf reports the observable state of a purchase given its refund, if any.
// A nil purchase means it was refunded.
func StateOf(p *Purchase, r *Refund) PurchaseState {
	switch {
	case p == nil:
		return StateRefunded
	case r != nil:
		return StateRefundRequested
	default:
		return StatePurchased
	}
}

// =============================================================================
// REQUESTS & FILTERS
// =============================================================================

// PurchaseRequest is the input to settlement. A zero CustomerID means the caller.
type PurchaseRequest struct {
	CustomerID UserID
	GoodID     GoodID
	Quantity   int64

	// QuantityMissing is set when the caller sent no quantity at all.
	QuantityMissing bool
}

// GoodFilter narrows catalog listings.
type GoodFilter struct {
	InStockOnly bool
}

// OwnerFilter scopes listings to one customer. A nil CustomerID means everyone.
type OwnerFilter struct {
	CustomerID *UserID
}

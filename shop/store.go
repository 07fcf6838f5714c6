/*
store.go - Persistence interfaces for users, goods, purchases and refunds

PURPOSE:
  Defines the boundary between settlement logic and the database.
  Implementations: store/sqlite (production) and shop/store (memory, tests).

GUARDED ADJUSTMENTS:
  AdjustWallet and AdjustStock never let a value go below zero. They return
  ErrInsufficientFunds / ErrInsufficientStock instead of writing. Settlement
  checks its preconditions first; the guard is what keeps the invariant when
  another writer got in between.

ATOMIC UNITS:
  TxStore.WithTx runs fn against a transactional view of the store. If fn
  returns an error nothing it wrote is visible, ever. Settlement, approval
  and decline each run inside exactly one WithTx.

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite implementation
  - shop/store/memory.go:   In-memory implementation
*/
package shop

import (
	"context"
	"time"
)

// =============================================================================
// STORE
// =============================================================================

// Store handles persistence of shop records.
type Store interface {
	UserStore
	GoodStore
	PurchaseStore
	RefundStore
	MaintenanceStore
}

// UserStore persists accounts and wallets.
type UserStore interface {
	// CreateUser inserts u and sets u.ID and u.CreatedAt. Duplicate email -> ErrConflict.
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id UserID) (*User, error)
	ListUsers(ctx context.Context, filter OwnerFilter) ([]User, error)

	// AdjustWallet adds delta to the wallet. A result below zero is rejected
	// with ErrInsufficientFunds and nothing is written.
	AdjustWallet(ctx context.Context, id UserID, delta int64) error
}

// GoodStore persists the catalog and stock counts.
type GoodStore interface {
	CreateGood(ctx context.Context, g *Good) error
	GetGood(ctx context.Context, id GoodID) (*Good, error)
	ListGoods(ctx context.Context, filter GoodFilter) ([]Good, error)
	UpdateGood(ctx context.Context, g Good) error
	DeleteGood(ctx context.Context, id GoodID) error

	// AdjustStock adds delta to the stock count. A result below zero is
	// rejected with ErrInsufficientStock and nothing is written.
	AdjustStock(ctx context.Context, id GoodID, delta int64) error

	// RestockIfEmpty sets the stock to quantity only if it is currently zero.
	RestockIfEmpty(ctx context.Context, id GoodID, quantity int64) (bool, error)
}

// PurchaseStore persists settled purchases. There is no update method.
type PurchaseStore interface {
	// CreatePurchase inserts p and sets p.ID. p.CreatedAt must be set by the caller.
	CreatePurchase(ctx context.Context, p *Purchase) error
	GetPurchase(ctx context.Context, id PurchaseID) (*Purchase, error)
	ListPurchases(ctx context.Context, filter OwnerFilter) ([]Purchase, error)
	HasPurchases(ctx context.Context, customerID UserID) (bool, error)
	DeletePurchase(ctx context.Context, id PurchaseID) error
}

// RefundStore persists pending refunds.
type RefundStore interface {
	// GetOrCreateRefund returns the refund for purchaseID, creating it with
	// createdAt if none exists. created reports which happened.
	GetOrCreateRefund(ctx context.Context, purchaseID PurchaseID, createdAt time.Time) (refund *Refund, created bool, err error)
	GetRefund(ctx context.Context, id RefundID) (*Refund, error)
	GetRefundByPurchase(ctx context.Context, purchaseID PurchaseID) (*Refund, error)
	ListRefunds(ctx context.Context, filter OwnerFilter) ([]Refund, error)
	DeleteRefund(ctx context.Context, id RefundID) error
}

// MaintenanceStore records bulk job runs.
type MaintenanceStore interface {
	SaveMaintenanceRun(ctx context.Context, run MaintenanceRun) error
	ListMaintenanceRuns(ctx context.Context, job MaintenanceJob) ([]MaintenanceRun, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

/*
Package sqlite provides a SQLite-backed implementation of shop.TxStore.

PURPOSE:
  Durable, transactional storage for users, goods, purchases, refunds and
  maintenance runs. In production, the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  shop.Store:   all record stores
  shop.TxStore: WithTx on top of database/sql transactions

KEY TABLES:
  users:            accounts and wallets (CHECK wallet >= 0)
  goods:            catalog and stock (CHECK in_stock >= 0)
  purchases:        settled sales, price captured at sale time
  refunds:          pending refunds (UNIQUE purchase_id)
  maintenance_runs: bulk job audit

GUARDED UPDATES:
  Wallet and stock changes are single statements of the form
    UPDATE users SET wallet = wallet + ? WHERE id = ? AND wallet + ? >= 0
  Zero rows affected means either the row is missing or the guard failed;
  the store looks again to tell which. The CHECK constraints back this up.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety inside one process, one pooled
  connection, and BEGIN IMMEDIATE transactions (_txlock=immediate) with a
  busy timeout so that a second process (shopctl) waits for the write lock
  instead of failing.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/shop.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := shop.NewService(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - shop/store.go: Interface definitions
  - shop/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/warp/shop-engine/shop"
)

// timeLayout is fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements shop.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ shop.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL,
		wallet INTEGER NOT NULL DEFAULT 1000 CHECK (wallet >= 0),
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goods (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price INTEGER NOT NULL CHECK (price > 0),
		in_stock INTEGER NOT NULL DEFAULT 0 CHECK (in_stock >= 0)
	);

	CREATE INDEX IF NOT EXISTS idx_goods_in_stock
		ON goods(in_stock);

	-- Purchases are never updated
	CREATE TABLE IF NOT EXISTS purchases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		good_id INTEGER NOT NULL REFERENCES goods(id) ON DELETE RESTRICT,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		price INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_customer_date
		ON purchases(customer_id, created_at DESC);

	-- At most one refund per purchase
	CREATE TABLE IF NOT EXISTS refunds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		purchase_id INTEGER NOT NULL UNIQUE REFERENCES purchases(id) ON DELETE CASCADE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS maintenance_runs (
		id TEXT PRIMARY KEY,
		job TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		processed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_maintenance_runs_job
		ON maintenance_runs(job, started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONAL STORE (shop.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
// The store handed to fn must not be used after fn returns.
func (s *Store) WithTx(ctx context.Context, fn func(store shop.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// reader and writer give the locked, non-transactional view.
func (s *Store) reader() (*queries, func()) {
	s.mu.RLock()
	return &queries{q: s.db}, s.mu.RUnlock
}

func (s *Store) writer() (*queries, func()) {
	s.mu.Lock()
	return &queries{q: s.db}, s.mu.Unlock
}

// =============================================================================
// USER STORE
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, u *shop.User) error {
	q, done := s.writer()
	defer done()
	return q.CreateUser(ctx, u)
}

func (s *Store) GetUser(ctx context.Context, id shop.UserID) (*shop.User, error) {
	q, done := s.reader()
	defer done()
	return q.GetUser(ctx, id)
}

func (s *Store) ListUsers(ctx context.Context, filter shop.OwnerFilter) ([]shop.User, error) {
	q, done := s.reader()
	defer done()
	return q.ListUsers(ctx, filter)
}

func (s *Store) AdjustWallet(ctx context.Context, id shop.UserID, delta int64) error {
	q, done := s.writer()
	defer done()
	return q.AdjustWallet(ctx, id, delta)
}

// =============================================================================
// GOOD STORE
// =============================================================================

func (s *Store) CreateGood(ctx context.Context, g *shop.Good) error {
	q, done := s.writer()
	defer done()
	return q.CreateGood(ctx, g)
}

func (s *Store) GetGood(ctx context.Context, id shop.GoodID) (*shop.Good, error) {
	q, done := s.reader()
	defer done()
	return q.GetGood(ctx, id)
}

func (s *Store) ListGoods(ctx context.Context, filter shop.GoodFilter) ([]shop.Good, error) {
	q, done := s.reader()
	defer done()
	return q.ListGoods(ctx, filter)
}

func (s *Store) UpdateGood(ctx context.Context, g shop.Good) error {
	q, done := s.writer()
	defer done()
	return q.UpdateGood(ctx, g)
}

func (s *Store) DeleteGood(ctx context.Context, id shop.GoodID) error {
	q, done := s.writer()
	defer done()
	return q.DeleteGood(ctx, id)
}

func (s *Store) AdjustStock(ctx context.Context, id shop.GoodID, delta int64) error {
	q, done := s.writer()
	defer done()
	return q.AdjustStock(ctx, id, delta)
}

func (s *Store) RestockIfEmpty(ctx context.Context, id shop.GoodID, quantity int64) (bool, error) {
	q, done := s.writer()
	defer done()
	return q.RestockIfEmpty(ctx, id, quantity)
}

// =============================================================================
// PURCHASE STORE
// =============================================================================

func (s *Store) CreatePurchase(ctx context.Context, p *shop.Purchase) error {
	q, done := s.writer()
	defer done()
	return q.CreatePurchase(ctx, p)
}

func (s *Store) GetPurchase(ctx context.Context, id shop.PurchaseID) (*shop.Purchase, error) {
	q, done := s.reader()
	defer done()
	return q.GetPurchase(ctx, id)
}

func (s *Store) ListPurchases(ctx context.Context, filter shop.OwnerFilter) ([]shop.Purchase, error) {
	q, done := s.reader()
	defer done()
	return q.ListPurchases(ctx, filter)
}

func (s *Store) HasPurchases(ctx context.Context, customerID shop.UserID) (bool, error) {
	q, done := s.reader()
	defer done()
	return q.HasPurchases(ctx, customerID)
}

func (s *Store) DeletePurchase(ctx context.Context, id shop.PurchaseID) error {
	q, done := s.writer()
	defer done()
	return q.DeletePurchase(ctx, id)
}

// =============================================================================
// REFUND STORE
// =============================================================================

func (s *Store) GetOrCreateRefund(ctx context.Context, purchaseID shop.PurchaseID, createdAt time.Time) (*shop.Refund, bool, error) {
	q, done := s.writer()
	defer done()
	return q.GetOrCreateRefund(ctx, purchaseID, createdAt)
}

func (s *Store) GetRefund(ctx context.Context, id shop.RefundID) (*shop.Refund, error) {
	q, done := s.reader()
	defer done()
	return q.GetRefund(ctx, id)
}

func (s *Store) GetRefundByPurchase(ctx context.Context, purchaseID shop.PurchaseID) (*shop.Refund, error) {
	q, done := s.reader()
	defer done()
	return q.GetRefundByPurchase(ctx, purchaseID)
}

func (s *Store) ListRefunds(ctx context.Context, filter shop.OwnerFilter) ([]shop.Refund, error) {
	q, done := s.reader()
	defer done()
	return q.ListRefunds(ctx, filter)
}

func (s *Store) DeleteRefund(ctx context.Context, id shop.RefundID) error {
	q, done := s.writer()
	defer done()
	return q.DeleteRefund(ctx, id)
}

// =============================================================================
// MAINTENANCE STORE
// =============================================================================

func (s *Store) SaveMaintenanceRun(ctx context.Context, run shop.MaintenanceRun) error {
	q, done := s.writer()
	defer done()
	return q.SaveMaintenanceRun(ctx, run)
}

func (s *Store) ListMaintenanceRuns(ctx context.Context, job shop.MaintenanceJob) ([]shop.MaintenanceRun, error) {
	q, done := s.reader()
	defer done()
	return q.ListMaintenanceRuns(ctx, job)
}

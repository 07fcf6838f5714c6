package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/warp/shop-engine/shop"
)

// queries runs every statement against a querier without locking. The
// Store wraps it with its mutex; WithTx hands it out bound to a *sql.Tx.
type queries struct {
	q querier
}

var _ shop.Store = (*queries)(nil)

// =============================================================================
// USERS
// =============================================================================

func (q *queries) CreateUser(ctx context.Context, u *shop.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO users (email, username, wallet, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.Email, u.Username, u.Wallet, u.IsAdmin, formatTime(u.CreatedAt),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintUnique) {
			return fmt.Errorf("email %q: %w", u.Email, shop.ErrConflict)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = shop.UserID(id)
	return nil
}

const userColumns = `id, email, username, wallet, is_admin, created_at`

func (q *queries) GetUser(ctx context.Context, id shop.UserID) (*shop.User, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shop.NotFoundError("user", int64(id))
	}
	return u, err
}

func (q *queries) ListUsers(ctx context.Context, filter shop.OwnerFilter) ([]shop.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if filter.CustomerID != nil {
		query += ` WHERE id = ?`
		args = append(args, *filter.CustomerID)
	}
	query += ` ORDER BY id ASC`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []shop.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (q *queries) AdjustWallet(ctx context.Context, id shop.UserID, delta int64) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE users SET wallet = wallet + ? WHERE id = ? AND wallet + ? >= 0`,
		delta, id, delta,
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintCheck) {
			return shop.ErrInsufficientFunds
		}
		return fmt.Errorf("failed to adjust wallet: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := q.GetUser(ctx, id); err != nil {
		return err
	}
	return shop.ErrInsufficientFunds
}

// =============================================================================
// GOODS
// =============================================================================

const goodColumns = `id, title, description, price, in_stock`

func (q *queries) CreateGood(ctx context.Context, g *shop.Good) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO goods (title, description, price, in_stock)
		VALUES (?, ?, ?, ?)`,
		g.Title, g.Description, g.Price, g.InStock,
	)
	if err != nil {
		return fmt.Errorf("failed to create good: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	g.ID = shop.GoodID(id)
	return nil
}

func (q *queries) GetGood(ctx context.Context, id shop.GoodID) (*shop.Good, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+goodColumns+` FROM goods WHERE id = ?`, id)
	var g shop.Good
	err := row.Scan(&g.ID, &g.Title, &g.Description, &g.Price, &g.InStock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shop.NotFoundError("good", int64(id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan good: %w", err)
	}
	return &g, nil
}

func (q *queries) ListGoods(ctx context.Context, filter shop.GoodFilter) ([]shop.Good, error) {
	query := `SELECT ` + goodColumns + ` FROM goods`
	if filter.InStockOnly {
		query += ` WHERE in_stock > 0`
	}
	query += ` ORDER BY in_stock ASC, id ASC`

	rows, err := q.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query goods: %w", err)
	}
	defer rows.Close()

	var goods []shop.Good
	for rows.Next() {
		var g shop.Good
		if err := rows.Scan(&g.ID, &g.Title, &g.Description, &g.Price, &g.InStock); err != nil {
			return nil, fmt.Errorf("failed to scan good: %w", err)
		}
		goods = append(goods, g)
	}
	return goods, rows.Err()
}

func (q *queries) UpdateGood(ctx context.Context, g shop.Good) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE goods SET title = ?, description = ?, price = ?, in_stock = ?
		WHERE id = ?`,
		g.Title, g.Description, g.Price, g.InStock, g.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update good: %w", err)
	}
	return expectOne(res, "good", int64(g.ID))
}

func (q *queries) DeleteGood(ctx context.Context, id shop.GoodID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM goods WHERE id = ?`, id)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return fmt.Errorf("good %d has purchases: %w", id, shop.ErrConflict)
		}
		return fmt.Errorf("failed to delete good: %w", err)
	}
	return expectOne(res, "good", int64(id))
}

func (q *queries) AdjustStock(ctx context.Context, id shop.GoodID, delta int64) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE goods SET in_stock = in_stock + ? WHERE id = ? AND in_stock + ? >= 0`,
		delta, id, delta,
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintCheck) {
			return shop.ErrInsufficientStock
		}
		return fmt.Errorf("failed to adjust stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := q.GetGood(ctx, id); err != nil {
		return err
	}
	return shop.ErrInsufficientStock
}

func (q *queries) RestockIfEmpty(ctx context.Context, id shop.GoodID, quantity int64) (bool, error) {
	res, err := q.q.ExecContext(ctx,
		`UPDATE goods SET in_stock = ? WHERE id = ? AND in_stock = 0`,
		quantity, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to restock good: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	if _, err := q.GetGood(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// =============================================================================
// PURCHASES
// =============================================================================

const purchaseColumns = `id, customer_id, good_id, quantity, price, created_at`

func (q *queries) CreatePurchase(ctx context.Context, p *shop.Purchase) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO purchases (customer_id, good_id, quantity, price, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.CustomerID, p.GoodID, p.Quantity, p.Price, formatTime(p.CreatedAt),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return fmt.Errorf("customer %d or good %d: %w", p.CustomerID, p.GoodID, shop.ErrNotFound)
		}
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = shop.PurchaseID(id)
	return nil
}

func (q *queries) GetPurchase(ctx context.Context, id shop.PurchaseID) (*shop.Purchase, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id)
	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shop.NotFoundError("purchase", int64(id))
	}
	return p, err
}

func (q *queries) ListPurchases(ctx context.Context, filter shop.OwnerFilter) ([]shop.Purchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM purchases`
	var args []any
	if filter.CustomerID != nil {
		query += ` WHERE customer_id = ?`
		args = append(args, *filter.CustomerID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	var purchases []shop.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, *p)
	}
	return purchases, rows.Err()
}

func (q *queries) HasPurchases(ctx context.Context, customerID shop.UserID) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM purchases WHERE customer_id = ?)`, customerID,
	).Scan(&exists)
	return exists, err
}

func (q *queries) DeletePurchase(ctx context.Context, id shop.PurchaseID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM purchases WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete purchase: %w", err)
	}
	return expectOne(res, "purchase", int64(id))
}

// =============================================================================
// REFUNDS
// =============================================================================

const refundSelect = `
	SELECT r.id, r.purchase_id, p.customer_id, r.created_at
	FROM refunds r JOIN purchases p ON p.id = r.purchase_id`

func (q *queries) GetOrCreateRefund(ctx context.Context, purchaseID shop.PurchaseID, createdAt time.Time) (*shop.Refund, bool, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO refunds (purchase_id, created_at) VALUES (?, ?)
		ON CONFLICT(purchase_id) DO NOTHING`,
		purchaseID, formatTime(createdAt),
	)
	if err != nil {
		if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
			return nil, false, shop.NotFoundError("purchase", int64(purchaseID))
		}
		return nil, false, fmt.Errorf("failed to create refund: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	refund, err := q.GetRefundByPurchase(ctx, purchaseID)
	if err != nil {
		return nil, false, err
	}
	return refund, n == 1, nil
}

func (q *queries) GetRefund(ctx context.Context, id shop.RefundID) (*shop.Refund, error) {
	row := q.q.QueryRowContext(ctx, refundSelect+` WHERE r.id = ?`, id)
	r, err := scanRefund(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shop.NotFoundError("refund", int64(id))
	}
	return r, err
}

func (q *queries) GetRefundByPurchase(ctx context.Context, purchaseID shop.PurchaseID) (*shop.Refund, error) {
	row := q.q.QueryRowContext(ctx, refundSelect+` WHERE r.purchase_id = ?`, purchaseID)
	r, err := scanRefund(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shop.NotFoundError("refund for purchase", int64(purchaseID))
	}
	return r, err
}

func (q *queries) ListRefunds(ctx context.Context, filter shop.OwnerFilter) ([]shop.Refund, error) {
	query := refundSelect
	var args []any
	if filter.CustomerID != nil {
		query += ` WHERE p.customer_id = ?`
		args = append(args, *filter.CustomerID)
	}
	query += ` ORDER BY r.created_at DESC, r.id DESC`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query refunds: %w", err)
	}
	defer rows.Close()

	var refunds []shop.Refund
	for rows.Next() {
		r, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, *r)
	}
	return refunds, rows.Err()
}

func (q *queries) DeleteRefund(ctx context.Context, id shop.RefundID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM refunds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete refund: %w", err)
	}
	return expectOne(res, "refund", int64(id))
}

// =============================================================================
// MAINTENANCE RUNS
// =============================================================================

func (q *queries) SaveMaintenanceRun(ctx context.Context, r shop.MaintenanceRun) error {
	var completedAt *string
	if r.CompletedAt != nil {
		s := formatTime(*r.CompletedAt)
		completedAt = &s
	}

	_, err := q.q.ExecContext(ctx, `
		INSERT INTO maintenance_runs (id, job, status, processed, skipped, failed, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			processed = excluded.processed,
			skipped = excluded.skipped,
			failed = excluded.failed,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		r.ID, string(r.Job), r.Status, r.Processed, r.Skipped, r.Failed, r.Error,
		formatTime(r.StartedAt), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save maintenance run: %w", err)
	}
	return nil
}

func (q *queries) ListMaintenanceRuns(ctx context.Context, job shop.MaintenanceJob) ([]shop.MaintenanceRun, error) {
	query := `
		SELECT id, job, status, processed, skipped, failed, error, started_at, completed_at
		FROM maintenance_runs`
	var args []any
	if job != "" {
		query += ` WHERE job = ?`
		args = append(args, string(job))
	}
	query += ` ORDER BY started_at DESC`

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query maintenance runs: %w", err)
	}
	defer rows.Close()

	var runs []shop.MaintenanceRun
	for rows.Next() {
		var (
			r           shop.MaintenanceRun
			job         string
			startedAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &job, &r.Status, &r.Processed, &r.Skipped, &r.Failed,
			&r.Error, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan maintenance run: %w", err)
		}
		r.Job = shop.MaintenanceJob(job)
		r.StartedAt = parseTime(startedAt)
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*shop.User, error) {
	var (
		u         shop.User
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Wallet, &u.IsAdmin, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func scanPurchase(row scanner) (*shop.Purchase, error) {
	var (
		p         shop.Purchase
		createdAt string
	)
	if err := row.Scan(&p.ID, &p.CustomerID, &p.GoodID, &p.Quantity, &p.Price, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan purchase: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func scanRefund(row scanner) (*shop.Refund, error) {
	var (
		r         shop.Refund
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.PurchaseID, &r.CustomerID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan refund: %w", err)
	}
	r.CreatedAt = parseTime(createdAt)
	return &r, nil
}

func expectOne(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shop.NotFoundError(kind, id)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t.UTC()
}

// isConstraint reports whether err is a SQLite constraint violation of the
// given extended kind.
func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrConstraint && sqliteErr.ExtendedCode == code
}

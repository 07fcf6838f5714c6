// Package store provides in-memory shop.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/shop-engine/shop"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	t  *tables
}

var _ shop.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{t: newTables()}
}

func (m *Memory) CreateUser(ctx context.Context, u *shop.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.CreateUser(ctx, u)
}

func (m *Memory) GetUser(ctx context.Context, id shop.UserID) (*shop.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetUser(ctx, id)
}

func (m *Memory) ListUsers(ctx context.Context, filter shop.OwnerFilter) ([]shop.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListUsers(ctx, filter)
}

func (m *Memory) AdjustWallet(ctx context.Context, id shop.UserID, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.AdjustWallet(ctx, id, delta)
}

func (m *Memory) CreateGood(ctx context.Context, g *shop.Good) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.CreateGood(ctx, g)
}

func (m *Memory) GetGood(ctx context.Context, id shop.GoodID) (*shop.Good, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetGood(ctx, id)
}

func (m *Memory) ListGoods(ctx context.Context, filter shop.GoodFilter) ([]shop.Good, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListGoods(ctx, filter)
}

func (m *Memory) UpdateGood(ctx context.Context, g shop.Good) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.UpdateGood(ctx, g)
}

func (m *Memory) DeleteGood(ctx context.Context, id shop.GoodID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.DeleteGood(ctx, id)
}

func (m *Memory) AdjustStock(ctx context.Context, id shop.GoodID, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.AdjustStock(ctx, id, delta)
}

func (m *Memory) RestockIfEmpty(ctx context.Context, id shop.GoodID, quantity int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.RestockIfEmpty(ctx, id, quantity)
}

func (m *Memory) CreatePurchase(ctx context.Context, p *shop.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.CreatePurchase(ctx, p)
}

func (m *Memory) GetPurchase(ctx context.Context, id shop.PurchaseID) (*shop.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetPurchase(ctx, id)
}

func (m *Memory) ListPurchases(ctx context.Context, filter shop.OwnerFilter) ([]shop.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListPurchases(ctx, filter)
}

func (m *Memory) HasPurchases(ctx context.Context, customerID shop.UserID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.HasPurchases(ctx, customerID)
}

func (m *Memory) DeletePurchase(ctx context.Context, id shop.PurchaseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.DeletePurchase(ctx, id)
}

func (m *Memory) GetOrCreateRefund(ctx context.Context, purchaseID shop.PurchaseID, createdAt time.Time) (*shop.Refund, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.GetOrCreateRefund(ctx, purchaseID, createdAt)
}

func (m *Memory) GetRefund(ctx context.Context, id shop.RefundID) (*shop.Refund, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetRefund(ctx, id)
}

func (m *Memory) GetRefundByPurchase(ctx context.Context, purchaseID shop.PurchaseID) (*shop.Refund, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.GetRefundByPurchase(ctx, purchaseID)
}

func (m *Memory) ListRefunds(ctx context.Context, filter shop.OwnerFilter) ([]shop.Refund, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListRefunds(ctx, filter)
}

func (m *Memory) DeleteRefund(ctx context.Context, id shop.RefundID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.DeleteRefund(ctx, id)
}

func (m *Memory) SaveMaintenanceRun(ctx context.Context, run shop.MaintenanceRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t.SaveMaintenanceRun(ctx, run)
}

func (m *Memory) ListMaintenanceRuns(ctx context.Context, job shop.MaintenanceJob) ([]shop.MaintenanceRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t.ListMaintenanceRuns(ctx, job)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

var _ shop.TxStore = (*TxMemory)(nil)

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are fully serialized.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(shop.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.t.clone()

	if err := fn(tm.t); err != nil {
		tm.t = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		tm.t = snapshot
		return err
	}
	return nil
}

// =============================================================================
// TABLES - unlocked state shared by Memory and the transactional view
// =============================================================================

type tables struct {
	users     map[shop.UserID]shop.User
	goods     map[shop.GoodID]shop.Good
	purchases map[shop.PurchaseID]shop.Purchase
	refunds   map[shop.RefundID]shop.Refund
	runs      map[string]shop.MaintenanceRun

	nextUser     shop.UserID
	nextGood     shop.GoodID
	nextPurchase shop.PurchaseID
	nextRefund   shop.RefundID
}

func newTables() *tables {
	return &tables{
		users:     make(map[shop.UserID]shop.User),
		goods:     make(map[shop.GoodID]shop.Good),
		purchases: make(map[shop.PurchaseID]shop.Purchase),
		refunds:   make(map[shop.RefundID]shop.Refund),
		runs:      make(map[string]shop.MaintenanceRun),
	}
}

func (t *tables) clone() *tables {
	c := *t
	c.users = copyMap(t.users)
	c.goods = copyMap(t.goods)
	c.purchases = copyMap(t.purchases)
	c.refunds = copyMap(t.refunds)
	c.runs = copyMap(t.runs)
	return &c
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Users

func (t *tables) CreateUser(_ context.Context, u *shop.User) error {
	for _, existing := range t.users {
		if existing.Email == u.Email {
			return shop.ErrConflict
		}
	}
	t.nextUser++
	u.ID = t.nextUser
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	t.users[u.ID] = *u
	return nil
}

func (t *tables) GetUser(_ context.Context, id shop.UserID) (*shop.User, error) {
	u, ok := t.users[id]
	if !ok {
		return nil, shop.NotFoundError("user", int64(id))
	}
	return &u, nil
}

func (t *tables) ListUsers(_ context.Context, filter shop.OwnerFilter) ([]shop.User, error) {
	var result []shop.User
	for _, u := range t.users {
		if filter.CustomerID != nil && u.ID != *filter.CustomerID {
			continue
		}
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (t *tables) AdjustWallet(_ context.Context, id shop.UserID, delta int64) error {
	u, ok := t.users[id]
	if !ok {
		return shop.NotFoundError("user", int64(id))
	}
	if u.Wallet+delta < 0 {
		return shop.ErrInsufficientFunds
	}
	u.Wallet += delta
	t.users[id] = u
	return nil
}

// Goods

func (t *tables) CreateGood(_ context.Context, g *shop.Good) error {
	t.nextGood++
	g.ID = t.nextGood
	t.goods[g.ID] = *g
	return nil
}

func (t *tables) GetGood(_ context.Context, id shop.GoodID) (*shop.Good, error) {
	g, ok := t.goods[id]
	if !ok {
		return nil, shop.NotFoundError("good", int64(id))
	}
	return &g, nil
}

func (t *tables) ListGoods(_ context.Context, filter shop.GoodFilter) ([]shop.Good, error) {
	var result []shop.Good
	for _, g := range t.goods {
		if filter.InStockOnly && g.InStock <= 0 {
			continue
		}
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].InStock != result[j].InStock {
			return result[i].InStock < result[j].InStock
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (t *tables) UpdateGood(_ context.Context, g shop.Good) error {
	if _, ok := t.goods[g.ID]; !ok {
		return shop.NotFoundError("good", int64(g.ID))
	}
	t.goods[g.ID] = g
	return nil
}

func (t *tables) DeleteGood(_ context.Context, id shop.GoodID) error {
	if _, ok := t.goods[id]; !ok {
		return shop.NotFoundError("good", int64(id))
	}
	for _, p := range t.purchases {
		if p.GoodID == id {
			return shop.ErrConflict
		}
	}
	delete(t.goods, id)
	return nil
}

func (t *tables) AdjustStock(_ context.Context, id shop.GoodID, delta int64) error {
	g, ok := t.goods[id]
	if !ok {
		return shop.NotFoundError("good", int64(id))
	}
	if g.InStock+delta < 0 {
		return shop.ErrInsufficientStock
	}
	g.InStock += delta
	t.goods[id] = g
	return nil
}

func (t *tables) RestockIfEmpty(_ context.Context, id shop.GoodID, quantity int64) (bool, error) {
	g, ok := t.goods[id]
	if !ok {
		return false, shop.NotFoundError("good", int64(id))
	}
	if g.InStock != 0 {
		return false, nil
	}
	g.InStock = quantity
	t.goods[id] = g
	return true, nil
}

// Purchases

func (t *tables) CreatePurchase(_ context.Context, p *shop.Purchase) error {
	if _, ok := t.users[p.CustomerID]; !ok {
		return shop.NotFoundError("user", int64(p.CustomerID))
	}
	if _, ok := t.goods[p.GoodID]; !ok {
		return shop.NotFoundError("good", int64(p.GoodID))
	}
	t.nextPurchase++
	p.ID = t.nextPurchase
	t.purchases[p.ID] = *p
	return nil
}

func (t *tables) GetPurchase(_ context.Context, id shop.PurchaseID) (*shop.Purchase, error) {
	p, ok := t.purchases[id]
	if !ok {
		return nil, shop.NotFoundError("purchase", int64(id))
	}
	return &p, nil
}

func (t *tables) ListPurchases(_ context.Context, filter shop.OwnerFilter) ([]shop.Purchase, error) {
	var result []shop.Purchase
	for _, p := range t.purchases {
		if filter.CustomerID != nil && p.CustomerID != *filter.CustomerID {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (t *tables) HasPurchases(_ context.Context, customerID shop.UserID) (bool, error) {
	for _, p := range t.purchases {
		if p.CustomerID == customerID {
			return true, nil
		}
	}
	return false, nil
}

func (t *tables) DeletePurchase(_ context.Context, id shop.PurchaseID) error {
	if _, ok := t.purchases[id]; !ok {
		return shop.NotFoundError("purchase", int64(id))
	}
	delete(t.purchases, id)
	for rid, r := range t.refunds {
		if r.PurchaseID == id {
			delete(t.refunds, rid)
		}
	}
	return nil
}

// Refunds

func (t *tables) GetOrCreateRefund(_ context.Context, purchaseID shop.PurchaseID, createdAt time.Time) (*shop.Refund, bool, error) {
	p, ok := t.purchases[purchaseID]
	if !ok {
		return nil, false, shop.NotFoundError("purchase", int64(purchaseID))
	}
	for _, r := range t.refunds {
		if r.PurchaseID == purchaseID {
			return &r, false, nil
		}
	}
	t.nextRefund++
	r := shop.Refund{ID: t.nextRefund, PurchaseID: purchaseID, CustomerID: p.CustomerID, CreatedAt: createdAt}
	t.refunds[r.ID] = r
	return &r, true, nil
}

func (t *tables) GetRefund(_ context.Context, id shop.RefundID) (*shop.Refund, error) {
	r, ok := t.refunds[id]
	if !ok {
		return nil, shop.NotFoundError("refund", int64(id))
	}
	return &r, nil
}

func (t *tables) GetRefundByPurchase(_ context.Context, purchaseID shop.PurchaseID) (*shop.Refund, error) {
	for _, r := range t.refunds {
		if r.PurchaseID == purchaseID {
			return &r, nil
		}
	}
	return nil, shop.NotFoundError("refund for purchase", int64(purchaseID))
}

func (t *tables) ListRefunds(_ context.Context, filter shop.OwnerFilter) ([]shop.Refund, error) {
	var result []shop.Refund
	for _, r := range t.refunds {
		if filter.CustomerID != nil && r.CustomerID != *filter.CustomerID {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (t *tables) DeleteRefund(_ context.Context, id shop.RefundID) error {
	if _, ok := t.refunds[id]; !ok {
		return shop.NotFoundError("refund", int64(id))
	}
	delete(t.refunds, id)
	return nil
}

// Maintenance runs

func (t *tables) SaveMaintenanceRun(_ context.Context, run shop.MaintenanceRun) error {
	t.runs[run.ID] = run
	return nil
}

func (t *tables) ListMaintenanceRuns(_ context.Context, job shop.MaintenanceJob) ([]shop.MaintenanceRun, error) {
	var result []shop.MaintenanceRun
	for _, r := range t.runs {
		if job != "" && r.Job != job {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.After(result[j].StartedAt) })
	return result, nil
}

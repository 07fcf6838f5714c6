package shop_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/shop-engine/shop"
	"github.com/warp/shop-engine/shop/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	svc    *shop.Service
	store  *store.TxMemory
	events *recorder

	mu  sync.Mutex
	now time.Time

	users int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewTxMemory(),
		events: &recorder{},
		now:    time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC),
	}
	f.svc = shop.NewService(f.store,
		shop.WithNotifier(f.events),
		shop.WithClock(shop.ClockFunc(f.clock)),
	)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) customer(t *testing.T, wallet int64) shop.Subject {
	t.Helper()
	f.users++
	u := shop.User{Email: fmt.Sprintf("customer%d@example.com", f.users), Wallet: wallet}
	require.NoError(t, f.store.CreateUser(context.Background(), &u))
	return shop.SubjectOf(u)
}

func (f *fixture) admin(t *testing.T) shop.Subject {
	t.Helper()
	f.users++
	u := shop.User{Email: fmt.Sprintf("admin%d@example.com", f.users), IsAdmin: true}
	require.NoError(t, f.store.CreateUser(context.Background(), &u))
	return shop.SubjectOf(u)
}

func (f *fixture) good(t *testing.T, price, inStock int64) shop.GoodID {
	t.Helper()
	g := shop.Good{Title: fmt.Sprintf("good-%d", price), Price: price, InStock: inStock}
	require.NoError(t, f.store.CreateGood(context.Background(), &g))
	return g.ID
}

func (f *fixture) wallet(t *testing.T, s shop.Subject) int64 {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), s.UserID)
	require.NoError(t, err)
	return u.Wallet
}

func (f *fixture) stock(t *testing.T, id shop.GoodID) int64 {
	t.Helper()
	g, err := f.store.GetGood(context.Background(), id)
	require.NoError(t, err)
	return g.InStock
}

func (f *fixture) buy(t *testing.T, s shop.Subject, good shop.GoodID, quantity int64) *shop.Purchase {
	t.Helper()
	p, err := f.svc.CreatePurchase(context.Background(), s, shop.PurchaseRequest{GoodID: good, Quantity: quantity})
	require.NoError(t, err)
	return p
}

// recorder is a Notifier that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []shop.Event
}

func (r *recorder) Notify(_ context.Context, evt shop.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for _, e := range r.events {
		names = append(names, e.EventName())
	}
	return names
}

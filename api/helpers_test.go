package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
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

type testServer struct {
	store  *store.TxMemory
	svc    *shop.Service
	tokens *TokenIssuer
	visits *VisitCounter
	router http.Handler

	mu    sync.Mutex
	now   time.Time
	users int
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		store: store.NewTxMemory(),
		now:   time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC),
	}
	ts.svc = shop.NewService(ts.store,
		shop.WithClock(shop.ClockFunc(ts.clock)),
		shop.WithLogger(quietLogger()),
	)
	ts.tokens = NewTokenIssuer("test-secret", 24*time.Hour, ts.clock)
	ts.visits = NewVisitCounter(10)

	h := NewHandler(ts.svc, ts.tokens, quietLogger())
	ts.router = NewRouter(h, RouterOptions{Visits: ts.visits})
	return ts
}

func (ts *testServer) clock() time.Time {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.now
}

func (ts *testServer) advance(d time.Duration) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.now = ts.now.Add(d)
}

func (ts *testServer) user(t *testing.T, wallet int64, admin bool) (shop.User, string) {
	t.Helper()
	ts.users++
	u := shop.User{Email: fmt.Sprintf("user%d@example.com", ts.users), Wallet: wallet, IsAdmin: admin}
	require.NoError(t, ts.store.CreateUser(context.Background(), &u))
	token, err := ts.tokens.Issue(u.ID)
	require.NoError(t, err)
	return u, token
}

func (ts *testServer) good(t *testing.T, price, inStock int64) shop.Good {
	t.Helper()
	g := shop.Good{Title: fmt.Sprintf("good-%d-%d", price, inStock), Price: price, InStock: inStock}
	require.NoError(t, ts.store.CreateGood(context.Background(), &g))
	return g
}

func (ts *testServer) wallet(t *testing.T, id shop.UserID) int64 {
	t.Helper()
	u, err := ts.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u.Wallet
}

func (ts *testServer) stock(t *testing.T, id shop.GoodID) int64 {
	t.Helper()
	g, err := ts.store.GetGood(context.Background(), id)
	require.NoError(t, err)
	return g.InStock
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func quantity(n int64) *int64 { return &n }

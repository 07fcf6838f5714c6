package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shop-engine/shop"
)

func runJSON[T any](t *testing.T, args ...string) T {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out))
	var v T
	require.NoError(t, json.Unmarshal(out.Bytes(), &v), out.String())
	return v
}

func TestRun_SeedAndMaintain(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "cli-secret")
	db := filepath.Join(t.TempDir(), "shop.db")

	user := runJSON[shop.User](t, "-db", db, "create-user", "-email", "ops@example.com", "-admin")
	assert.True(t, user.IsAdmin)
	assert.Equal(t, shop.DefaultWallet, user.Wallet)

	good := runJSON[shop.Good](t, "-db", db, "create-good", "-title", "Lamp", "-price", "10", "-stock", "3")
	assert.Equal(t, int64(3), good.InStock)

	result := runJSON[shop.BulkResult](t, "-db", db, "decline-refunds")
	assert.Equal(t, 0, result.Processed)
	assert.NotEmpty(t, result.RunID)

	runs := runJSON[[]shop.MaintenanceRun](t, "-db", db, "runs", "-job", string(shop.JobDeclineRefunds))
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].ID)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-db", db, "token", "-user", "1"}, &out))
	assert.Len(t, strings.Split(strings.TrimSpace(out.String()), "."), 3, "a JWT has three segments")
}

func TestRun_Errors(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")
	db := filepath.Join(t.TempDir(), "shop.db")

	assert.ErrorIs(t, run(context.Background(), []string{"-db", db}, &bytes.Buffer{}), errUsage)
	assert.ErrorIs(t, run(context.Background(), []string{"-db", db, "explode"}, &bytes.Buffer{}), errUsage)
	assert.ErrorContains(t, run(context.Background(), []string{"-db", db, "token", "-user", "1"}, &bytes.Buffer{}), "TOKEN_SECRET")

	err := run(context.Background(), []string{"-db", db, "create-good", "-title", "Free"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, shop.ErrValidation)
}

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(mapLookup(nil), nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "shop.db", cfg.DBPath)
	assert.Equal(t, 3*time.Minute, cfg.RefundWindow)
	assert.Equal(t, ClockTime{Hour: 18}, cfg.DeclineRefundsAt)
	assert.Equal(t, int64(12), cfg.RestockQuantity)
	assert.True(t, cfg.SchedulerEnabled)
	assert.Equal(t, time.UTC, cfg.SchedulerLocation)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestParse_EnvironmentAndFlags(t *testing.T) {
	env := map[string]string{
		"HTTP_PORT":            "9000",
		"DB_PATH":              "/tmp/env.db",
		"REFUND_WINDOW":        "10m",
		"TOKEN_TTL":            "1h",
		"DECLINE_REFUNDS_AT":   "06:30",
		"SCHEDULER_ENABLED":    "false",
		"RESTOCK_QUANTITY":     "20",
		"CORS_ALLOWED_ORIGINS": "https://a.example, https://b.example",
		"LOG_LEVEL":            "debug",
	}

	cfg, err := Parse(mapLookup(env), []string{"-port", "9100"})
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.HTTPPort, "flag beats environment")
	assert.Equal(t, "/tmp/env.db", cfg.DBPath)
	assert.Equal(t, 10*time.Minute, cfg.RefundWindow)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, "06:30", cfg.DeclineRefundsAt.String())
	assert.False(t, cfg.SchedulerEnabled)
	assert.Equal(t, int64(20), cfg.RestockQuantity)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestParse_CollectsErrors(t *testing.T) {
	env := map[string]string{
		"HTTP_PORT":          "eighty",
		"REFUND_WINDOW":      "soon",
		"DECLINE_REFUNDS_AT": "25:99",
	}

	_, err := Parse(mapLookup(env), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_PORT")
	assert.Contains(t, err.Error(), "REFUND_WINDOW")
	assert.Contains(t, err.Error(), "DECLINE_REFUNDS_AT")
}

func TestParse_RejectsNonPositiveWindow(t *testing.T) {
	_, err := Parse(mapLookup(map[string]string{"REFUND_WINDOW": "0s"}), nil)
	assert.ErrorContains(t, err, "REFUND_WINDOW")
}

func TestLoad_DotEnvUnderProcessEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DB_PATH=from-file.db\nRESTOCK_QUANTITY=30\n"), 0o600))
	t.Setenv("RESTOCK_QUANTITY", "40")

	cfg, err := Load(envFile, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.DBPath)
	assert.Equal(t, int64(40), cfg.RestockQuantity)
}

func TestLoad_MissingDotEnv(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"), nil)
	assert.NoError(t, err)
}

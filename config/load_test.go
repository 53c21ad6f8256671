package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeTempConfig(t, `
env: prod
symbol: ETHUSDT
tape:
  capacity: 80
reconcile:
  intervalMs: 5000
  bookPriceTolerance: 0.25
redis:
  enabled: true
  addr: 10.0.0.1:6379
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, 80, cfg.Tape.Capacity)
	assert.Equal(t, 1200, cfg.Tape.PulseTTLMs, "unset fields keep defaults")
	assert.Equal(t, 0.25, cfg.Reconcile.BookPriceTolerance)
	assert.Equal(t, 1.0, cfg.Reconcile.TradePriceTolerance)
	assert.Equal(t, int64(5000), cfg.Reconcile.Interval().Milliseconds())
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "wss://stream.binance.com:9443", cfg.Feed.WSEndpoint)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeTempConfig(t, "env: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeTempConfig(t, "tape:\n  capacity: 0\n"))
	assert.EqualError(t, err, "tape.capacity must be > 0")
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "env: dev\nsymbol: BTCUSDT\n")
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("MIRROR_REDIS_PASSWORD=from-dotenv\nMIRROR_SYMBOL=dotenv-should-lose\n"), 0o644))

	t.Setenv("MIRROR_SYMBOL", "solusdt")
	t.Setenv("MIRROR_RECONCILE_INTERVAL_MS", "3000")
	t.Setenv("MIRROR_REDIS_ENABLED", "true")
	t.Cleanup(func() { os.Unsetenv("MIRROR_REDIS_PASSWORD") })

	cfg, err := LoadWithEnvOverrides(path, envFile, filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDT", cfg.Symbol)
	assert.Equal(t, 3000, cfg.Reconcile.IntervalMs)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "from-dotenv", cfg.Redis.Password)
}

func TestLoadWithEnvOverridesBadValue(t *testing.T) {
	path := writeTempConfig(t, "env: dev\n")
	t.Setenv("MIRROR_RECONCILE_INTERVAL_MS", "soon")
	_, err := LoadWithEnvOverrides(path, filepath.Join(t.TempDir(), "none.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"empty env", func(c *AppConfig) { c.Env = "" }},
		{"empty symbol", func(c *AppConfig) { c.Symbol = "" }},
		{"zero depth", func(c *AppConfig) { c.Book.Depth = 0 }},
		{"negative tolerance", func(c *AppConfig) { c.Reconcile.BookPriceTolerance = -1 }},
		{"bad backoff", func(c *AppConfig) {
			c.Feed.MaxReconnectDelayMs = 10
			c.Feed.ReconnectDelayMs = 100
		}},
		{"redis without addr", func(c *AppConfig) {
			c.Redis.Enabled = true
			c.Redis.Addr = ""
		}},
		{"bad log level", func(c *AppConfig) { c.Log.Level = "chatty" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

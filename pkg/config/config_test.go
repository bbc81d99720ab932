package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
price_interval: 3s
account_interval: 7s
trailing_enabled: true
price_feed: stream
`), 0o600))

	t.Setenv("ENGINE_ACCOUNT_INTERVAL", "9s")
	t.Setenv("ENGINE_JOURNAL_PATH", "/tmp/journal.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.PriceInterval)
	assert.Equal(t, 9*time.Second, cfg.AccountInterval)
	assert.True(t, cfg.TrailingEnabled)
	assert.Equal(t, PriceFeedStream, cfg.PriceFeed)
	assert.Equal(t, "/tmp/journal.db", cfg.JournalPath)
	assert.Equal(t, int64(5000), cfg.RecvWindow)
	assert.Equal(t, 5*time.Minute, cfg.TimeResyncInterval)
}

func TestEngineValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Engine)
		wantErr bool
	}{
		{"defaults", func(*Engine) {}, false},
		{"zero price interval", func(e *Engine) { e.PriceInterval = 0 }, true},
		{"recv window too large", func(e *Engine) { e.RecvWindow = 70000 }, true},
		{"unknown feed", func(e *Engine) { e.PriceFeed = "fix" }, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestAccountCredentialValidate(t *testing.T) {
	t.Parallel()

	ok := AccountCredential{Name: "main", APIKey: "k", SecretKey: "s", RiskDivisionFactor: 10}
	assert.NoError(t, ok.Validate())

	noKeys := AccountCredential{Name: "paper", RiskDivisionFactor: 10}
	assert.True(t, errors.Is(noKeys.Validate(), ErrNoCredentials))
	assert.False(t, noKeys.HasKeys())

	badFactor := AccountCredential{Name: "main", APIKey: "k", SecretKey: "s"}
	err := badFactor.Validate()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoCredentials))
}

func TestTradingDefaultsValidate(t *testing.T) {
	t.Parallel()
	d := TradingDefaults{Symbol: "BTCUSDT", Side: "SELL", Leverage: 20, MarginType: "isolated", OrderType: "LIMIT", StopLossRatio: 5}
	assert.NoError(t, d.Validate())

	d.Leverage = 0
	assert.Error(t, d.Validate())
	d.Leverage = 20
	d.StopLossRatio = 0
	assert.Error(t, d.Validate())
}

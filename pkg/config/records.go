package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoCredentials marks an account without key or secret. The engine runs
// such accounts on the mock data source.
var ErrNoCredentials = errors.New("config: api key/secret not set")

// AccountCredential is one exchange account handed in by the host.
type AccountCredential struct {
	Name               string `yaml:"name"`
	APIKey             string `yaml:"api_key"`
	SecretKey          string `yaml:"secret_key"`
	RiskDivisionFactor int    `yaml:"risk_division_factor"`
	IsTestnet          bool   `yaml:"is_testnet"`
}

// HasKeys reports whether both key and secret are present.
func (a AccountCredential) HasKeys() bool {
	return strings.TrimSpace(a.APIKey) != "" && strings.TrimSpace(a.SecretKey) != ""
}

// Validate reports a non-positive risk factor, then missing keys.
func (a AccountCredential) Validate() error {
	if a.RiskDivisionFactor <= 0 {
		return errors.Errorf("config: account %q risk division factor must be > 0, got %d", a.Name, a.RiskDivisionFactor)
	}
	if !a.HasKeys() {
		return errors.Wrapf(ErrNoCredentials, "account %q", a.Name)
	}
	return nil
}

// AccountFromEnv builds a credential from BINANCE_USDT_* variables.
func AccountFromEnv(name string) AccountCredential {
	return AccountCredential{
		Name:               name,
		APIKey:             os.Getenv("BINANCE_USDT_KEY"),
		SecretKey:          os.Getenv("BINANCE_USDT_SECRET"),
		RiskDivisionFactor: getEnvInt("RISK_DIVISION_FACTOR", 10),
		IsTestnet:          getEnvBool("BINANCE_TESTNET", false),
	}
}

// TradingDefaults pre-fills the order ticket.
type TradingDefaults struct {
	Symbol        string  `yaml:"symbol"`
	Side          string  `yaml:"side"`
	Leverage      int     `yaml:"leverage"`
	MarginType    string  `yaml:"margin_type"`
	OrderType     string  `yaml:"order_type"`
	StopLossRatio float64 `yaml:"stop_loss_ratio"` // percent
}

// DefaultTrading returns the ticket defaults.
func DefaultTrading() TradingDefaults {
	return TradingDefaults{
		Symbol:        getEnv("DEFAULT_SYMBOL", "BTCUSDT"),
		Side:          "BUY",
		Leverage:      getEnvInt("DEFAULT_LEVERAGE", 10),
		MarginType:    "CROSSED",
		OrderType:     "MARKET",
		StopLossRatio: getEnvFloat("DEFAULT_STOP_LOSS_RATIO", 2),
	}
}

// Validate checks ranges of the ticket defaults.
func (t TradingDefaults) Validate() error {
	if t.Symbol == "" {
		return errors.New("config: default symbol is empty")
	}
	switch strings.ToUpper(t.Side) {
	case "BUY", "SELL":
	default:
		return errors.Errorf("config: side %q must be BUY or SELL", t.Side)
	}
	if t.Leverage < 1 || t.Leverage > 125 {
		return errors.Errorf("config: leverage %d out of range (1..125)", t.Leverage)
	}
	switch strings.ToUpper(t.MarginType) {
	case "ISOLATED", "CROSSED":
	default:
		return errors.Errorf("config: margin type %q must be ISOLATED or CROSSED", t.MarginType)
	}
	if t.StopLossRatio <= 0 || t.StopLossRatio >= 100 {
		return errors.Errorf("config: stop loss ratio %.2f out of range (0..100)", t.StopLossRatio)
	}
	return nil
}

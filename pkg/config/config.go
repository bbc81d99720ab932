package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Price feed sources.
const (
	PriceFeedREST   = "rest"
	PriceFeedStream = "stream"
)

// Engine holds the runtime settings of the trading engine.
type Engine struct {
	PriceInterval      time.Duration `yaml:"price_interval"`
	AccountInterval    time.Duration `yaml:"account_interval"`
	TimeResyncInterval time.Duration `yaml:"time_resync_interval"`
	RecvWindow         int64         `yaml:"recv_window"` // ms
	BatchDelay         time.Duration `yaml:"batch_delay"`
	HTTPTimeout        time.Duration `yaml:"http_timeout"`
	TrailingEnabled    bool          `yaml:"trailing_enabled"`
	PriceFeed          string        `yaml:"price_feed"`
	MockMode           bool          `yaml:"mock_mode"`
	JournalPath        string        `yaml:"journal_path"` // empty disables the journal
	LogLevel           string        `yaml:"log_level"`
}

// Default returns the engine defaults.
func Default() Engine {
	return Engine{
		PriceInterval:      2 * time.Second,
		AccountInterval:    5 * time.Second,
		TimeResyncInterval: 5 * time.Minute,
		RecvWindow:         5000,
		BatchDelay:         250 * time.Millisecond,
		HTTPTimeout:        10 * time.Second,
		PriceFeed:          PriceFeedREST,
		LogLevel:           "info",
	}
}

// Load reads defaults, then the optional YAML file at path, then environment
// variables (optionally via .env). Later sources win.
func Load(path string) (Engine, error) {
	// Ignore error so the engine still starts when .env is missing.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}

	cfg.PriceInterval = getEnvDuration("ENGINE_PRICE_INTERVAL", cfg.PriceInterval)
	cfg.AccountInterval = getEnvDuration("ENGINE_ACCOUNT_INTERVAL", cfg.AccountInterval)
	cfg.TimeResyncInterval = getEnvDuration("ENGINE_TIME_RESYNC_INTERVAL", cfg.TimeResyncInterval)
	cfg.RecvWindow = int64(getEnvInt("ENGINE_RECV_WINDOW", int(cfg.RecvWindow)))
	cfg.BatchDelay = getEnvDuration("ENGINE_BATCH_DELAY", cfg.BatchDelay)
	cfg.HTTPTimeout = getEnvDuration("ENGINE_HTTP_TIMEOUT", cfg.HTTPTimeout)
	cfg.TrailingEnabled = getEnvBool("ENGINE_TRAILING_ENABLED", cfg.TrailingEnabled)
	cfg.PriceFeed = strings.ToLower(getEnv("ENGINE_PRICE_FEED", cfg.PriceFeed))
	cfg.MockMode = getEnvBool("ENGINE_MOCK_MODE", cfg.MockMode)
	cfg.JournalPath = getEnv("ENGINE_JOURNAL_PATH", cfg.JournalPath)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg, cfg.Validate()
}

// Validate rejects settings the engine cannot run with.
func (e Engine) Validate() error {
	if e.PriceInterval <= 0 || e.AccountInterval <= 0 {
		return errors.New("config: refresh intervals must be positive")
	}
	if e.RecvWindow <= 0 || e.RecvWindow > 60000 {
		return errors.Errorf("config: recv window %d out of range (1..60000)", e.RecvWindow)
	}
	if e.BatchDelay < 0 {
		return errors.New("config: batch delay must not be negative")
	}
	switch e.PriceFeed {
	case PriceFeedREST, PriceFeedStream:
	default:
		return errors.Errorf("config: unknown price feed %q", e.PriceFeed)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

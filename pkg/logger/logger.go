package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the leveled logging sink. "debug" selects a console encoder for
// local work; every other level logs JSON. Each entry carries service.
func New(level, service string) (*zap.Logger, error) {
	var cfg zap.Config
	if strings.EqualFold(level, "debug") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if service == "" {
		service = "futures-terminal"
	}
	return log.With(zap.String("service", service)), nil
}

// Must is New for process start-up where a broken logger is fatal.
func Must(level, service string) *zap.Logger {
	log, err := New(level, service)
	if err != nil {
		panic(err)
	}
	return log
}

package gateway

import (
	"go.uber.org/zap"

	"futures-terminal/pkg/config"
	"futures-terminal/pkg/exchanges/binance/futures_usdt"
)

// New picks the data source for an account: the mock account when mock mode
// is on or the credential has no keys, the Binance client otherwise. The
// Binance source falls back to a mock for public data.
func New(cred config.AccountCredential, eng config.Engine, log *zap.Logger) DataSource {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("account", cred.Name))
	mock := NewMockSource(MockConfig{}, log)
	if eng.MockMode || !cred.HasKeys() {
		log.Info("using mock data source", zap.Bool("mock_mode", eng.MockMode), zap.Bool("has_keys", cred.HasKeys()))
		return mock
	}
	client := futures_usdt.NewClient(futures_usdt.Config{
		APIKey:         cred.APIKey,
		APISecret:      cred.SecretKey,
		Testnet:        cred.IsTestnet,
		RecvWindow:     eng.RecvWindow,
		HTTPTimeout:    eng.HTTPTimeout,
		ResyncInterval: eng.TimeResyncInterval,
	}, log)
	return NewBinance(cred.Name, client, mock, log)
}

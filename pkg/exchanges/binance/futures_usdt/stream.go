package futures_usdt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	mainnetStreamURL = "wss://fstream.binance.com"
	testnetStreamURL = "wss://stream.binancefuture.com"
)

// MarkPrice is one mark price update.
type MarkPrice struct {
	Symbol string
	Price  float64
	Time   int64
}

// MarkPriceStream subscribes to <symbol>@markPrice@1s combined streams.
type MarkPriceStream struct {
	StreamURL string
	dialer    *websocket.Dialer
	log       *zap.Logger
}

// NewMarkPriceStream builds a stream client; testnet toggles the host.
func NewMarkPriceStream(testnet bool, log *zap.Logger) *MarkPriceStream {
	if log == nil {
		log = zap.NewNop()
	}
	host := mainnetStreamURL
	if testnet {
		host = testnetStreamURL
	}
	return &MarkPriceStream{
		StreamURL: host,
		dialer:    websocket.DefaultDialer,
		log:       log.Named("mark_stream"),
	}
}

func (s *MarkPriceStream) url(symbols []string) string {
	streams := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		// stream names must be lowercase
		streams = append(streams, strings.ToLower(sym)+"@markPrice@1s")
	}
	return fmt.Sprintf("%s/stream?streams=%s", s.StreamURL, strings.Join(streams, "/"))
}

// Run delivers updates to fn until ctx ends, redialling with backoff on
// connection loss. It returns ctx.Err().
func (s *MarkPriceStream) Run(ctx context.Context, symbols []string, fn func(MarkPrice)) error {
	if len(symbols) == 0 {
		return errors.New("mark price stream: no symbols")
	}
	backoff := time.Second
	for {
		err := s.session(ctx, symbols, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("stream disconnected", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *MarkPriceStream) session(ctx context.Context, symbols []string, fn func(MarkPrice)) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url(symbols), nil)
	if err != nil {
		return errors.Wrap(err, "dial mark price stream")
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "read mark price stream")
		}
		mp, err := parseMarkPrice(msg)
		if err != nil {
			s.log.Debug("skip stream message", zap.Error(err))
			continue
		}
		fn(mp)
	}
}

func parseMarkPrice(msg []byte) (MarkPrice, error) {
	var raw struct {
		Stream string `json:"stream"`
		Data   struct {
			Event  string `json:"e"`
			Time   int64  `json:"E"`
			Symbol string `json:"s"`
			Price  string `json:"p"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(msg, &raw); err != nil {
		return MarkPrice{}, err
	}
	if raw.Data.Event != "markPriceUpdate" || raw.Data.Symbol == "" {
		return MarkPrice{}, errors.Errorf("unexpected event %q", raw.Data.Event)
	}
	return MarkPrice{Symbol: raw.Data.Symbol, Price: parseFloat(raw.Data.Price), Time: raw.Data.Time}, nil
}

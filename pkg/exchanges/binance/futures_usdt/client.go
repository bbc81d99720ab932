package futures_usdt

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"futures-terminal/pkg/exchanges/common"
)

const (
	mainnetURL = "https://fapi.binance.com"
	testnetURL = "https://testnet.binancefuture.com"

	// futures weight budget per minute
	weightLimit = 2400
)

// ErrCredentialsRequired is returned by signed calls when key or secret is empty.
var ErrCredentialsRequired = errors.New("binance usdt futures: API key/secret required")

// Config holds Binance USDT-M futures credentials.
type Config struct {
	APIKey     string
	APISecret  string
	Testnet    bool
	RecvWindow int64 // ms

	// BaseURL overrides the host picked from Testnet.
	BaseURL        string
	HTTPTimeout    time.Duration
	ResyncInterval time.Duration
	RequestsPerSec float64
}

// Client handles Binance USDT-M futures.
type Client struct {
	cfg         Config
	baseURL     string
	httpClient  *http.Client
	timeSync    *common.TimeSync
	rateLimiter *common.RateLimiter
	log         *zap.Logger
}

// NewClient creates a new USDT-M futures client.
func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	base := mainnetURL
	if cfg.Testnet {
		base = testnetURL
	}
	if cfg.BaseURL != "" {
		base = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5000
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	c := &Client{
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		log:        log.Named("futures_usdt"),
	}
	c.timeSync = common.NewTimeSync(c.ServerTime, cfg.ResyncInterval, c.log)
	c.rateLimiter = common.NewRateLimiter(weightLimit, time.Minute, cfg.RequestsPerSec, c.log)
	return c
}

// HasCredentials reports whether signed endpoints can be called.
func (c *Client) HasCredentials() bool {
	return c.cfg.APIKey != "" && c.cfg.APISecret != ""
}

// Testnet reports whether the client targets the testnet host.
func (c *Client) Testnet() bool { return c.cfg.Testnet }

// StartTimeSync runs the background resync loop until ctx ends.
func (c *Client) StartTimeSync(ctx context.Context) {
	c.timeSync.Start(ctx)
}

// ClockOffset is the current server minus local offset in ms.
func (c *Client) ClockOffset() int64 { return c.timeSync.Offset() }

func (c *Client) now(ctx context.Context) int64 {
	c.timeSync.EnsureFresh(ctx)
	return c.timeSync.Now()
}

// doSigned adds timestamp and recvWindow, signs the ordered query string and
// sends the request. GET/DELETE carry the query in the URL, POST/PUT in the body.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if !c.HasCredentials() {
		return nil, ErrCredentialsRequired
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(c.now(ctx), 10))
	params.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow, 10))

	payload := params.Encode()
	payload += "&signature=" + sign(payload, c.cfg.APISecret)

	var (
		req *http.Request
		err error
	)
	endpoint := c.baseURL + path
	switch method {
	case http.MethodGet, http.MethodDelete:
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+payload, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(payload))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "build %s %s", method, path)
	}
	req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	return c.do(req, path)
}

func (c *Client) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build GET %s", path)
	}
	return c.do(req, path)
}

func (c *Client) do(req *http.Request, path string) ([]byte, error) {
	if err := c.rateLimiter.Wait(req.Context()); err != nil {
		return nil, errors.Wrap(err, "rate limiter")
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("endpoint", path), zap.Error(err))
		return nil, errors.Wrapf(err, "%s %s", req.Method, path)
	}
	defer res.Body.Close()

	c.rateLimiter.UpdateFromHeader(res.Header.Get("X-MBX-USED-WEIGHT-1M"))

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	if res.StatusCode >= 300 {
		apiErr := newAPIError(res.StatusCode, path, body)
		if !IsNoChange(apiErr) {
			c.log.Warn("exchange rejected request",
				zap.String("endpoint", path),
				zap.Int("status", res.StatusCode),
				zap.String("body", string(body)))
		}
		return nil, apiErr
	}
	return body, nil
}

func decode(body []byte, out interface{}, what string) error {
	if err := sonic.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "decode %s", what)
	}
	return nil
}

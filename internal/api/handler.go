// Package api exposes the engine's derived state over HTTP for the host
// application. Every route is read-only.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"futures-terminal/internal/engine"
	"futures-terminal/internal/events"
	"futures-terminal/internal/metrics"
)

// Option configures the handler.
type Option func(*server)

// WithBus enables the /ws event stream.
func WithBus(bus *events.Bus) Option { return func(s *server) { s.bus = bus } }

// WithLogger sets the request logger.
func WithLogger(log *zap.Logger) Option { return func(s *server) { s.log = log } }

// WithMetrics enables GET /metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(s *server) { s.metrics = m } }

// WithRateLimit caps requests per client IP.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *server) { s.limits = newIPLimits(perSecond, burst) }
}

type server struct {
	reader  engine.Reader
	bus     *events.Bus
	metrics *metrics.Metrics
	log     *zap.Logger
	limits  *ipLimits
}

// NewHandler builds the status API around reader.
func NewHandler(reader engine.Reader, opts ...Option) http.Handler {
	s := &server{reader: reader, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.Named("api")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(s.log))
	if s.limits != nil {
		r.Use(rateLimit(s.limits, s.log))
	}
	r.Use(cors())

	r.GET("/healthz", s.health)
	r.GET("/account", s.account)
	r.GET("/positions", s.positions)
	r.GET("/orders", s.orders)
	r.GET("/conditional", s.conditional)
	r.GET("/reduce-only", s.reduceOnly)
	r.GET("/risk", s.risk)
	if s.bus != nil {
		r.GET("/ws", s.stream)
	}
	if s.metrics != nil {
		r.GET("/metrics", func(c *gin.Context) { c.JSON(http.StatusOK, s.metrics.Snapshot()) })
	}
	return r
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

func (s *server) health(c *gin.Context) {
	st := s.reader.Status()
	code := http.StatusOK
	if !st.Running {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, st)
}

// view loads the engine view or writes the error response.
func (s *server) view(c *gin.Context) (engine.View, bool) {
	v, err := s.reader.View(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", err.Error())
		return engine.View{}, false
	}
	if v.Account == "" {
		respondError(c, http.StatusConflict, "NO_ACCOUNT", engine.ErrNoAccount.Error())
		return engine.View{}, false
	}
	return v, true
}

func (s *server) account(c *gin.Context) {
	v, ok := s.view(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":       v.Account,
		"mock":          v.Mock,
		"active_symbol": v.ActiveSymbol,
		"balance":       v.Balance,
		"sequence":      v.Sequence,
		"last_applied":  v.LastApplied,
	})
}

func (s *server) positions(c *gin.Context) {
	if v, ok := s.view(c); ok {
		c.JSON(http.StatusOK, v.Positions)
	}
}

func (s *server) orders(c *gin.Context) {
	v, ok := s.view(c)
	if !ok {
		return
	}
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusOK, v.Orders)
		return
	}
	out := v.Orders[:0:0]
	for _, o := range v.Orders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) conditional(c *gin.Context) {
	if v, ok := s.view(c); ok {
		c.JSON(http.StatusOK, v.Conditional)
	}
}

func (s *server) reduceOnly(c *gin.Context) {
	if v, ok := s.view(c); ok {
		c.JSON(http.StatusOK, v.ReduceOnly)
	}
}

func (s *server) risk(c *gin.Context) {
	if s.reader.Status().Account == "" {
		respondError(c, http.StatusConflict, "NO_ACCOUNT", engine.ErrNoAccount.Error())
		return
	}
	snap, err := s.reader.Risk(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE", err.Error())
		return
	}
	c.JSON(http.StatusOK, snap)
}

package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/chiyuki0325/Memoh/internal/app/agent"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
	"github.com/chiyuki0325/Memoh/internal/domain/agent/stream"
	"github.com/chiyuki0325/Memoh/internal/infra/observability"
	"github.com/chiyuki0325/Memoh/internal/infra/session"
	"github.com/chiyuki0325/Memoh/internal/shared/logging"
)

const defaultShutdownTimeout = 10 * time.Second

// Runner is the part of the agent the HTTP surface drives.
type Runner interface {
	Ask(ctx context.Context, input ports.AgentInput) (*agent.Result, error)
	Stream(ctx context.Context, input ports.AgentInput) *stream.Mapper
}

// Config controls the listener and browser access.
type Config struct {
	Addr string
	// AllowedOrigins lists CORS origins. Empty allows any origin.
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	Debug           bool
}

// Server exposes the agent over HTTP, SSE and WebSocket.
type Server struct {
	runner  Runner
	history *session.HistoryStore
	obs     *observability.Observability
	logger  logging.Logger

	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	cfg        Config
	cancel     context.CancelFunc
}

// NewServer wires the routes. history may be nil, in which case
// conversation ids are ignored.
func NewServer(runner Runner, history *session.HistoryStore, obs *observability.Observability, cfg Config, logger logging.Logger) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	s := &Server{
		runner:  runner,
		history: history,
		obs:     obs,
		logger:  logging.OrNop(logger),
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}
	base, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.engine = s.newRouter()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: cfg.ReadTimeout,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening on %s", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Open
// streams see their request context canceled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) metrics() *observability.MetricsCollector {
	if s.obs == nil {
		return nil
	}
	return s.obs.Metrics
}

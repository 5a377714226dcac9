// Package server wires the settlement engine, its ingress paths, and the
// HTTP API together.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/p2pcash/escrowd/internal/config"
	"github.com/p2pcash/escrowd/internal/custody"
	"github.com/p2pcash/escrowd/internal/deposit"
	"github.com/p2pcash/escrowd/internal/escrow"
	"github.com/p2pcash/escrowd/internal/health"
	"github.com/p2pcash/escrowd/internal/idgen"
	"github.com/p2pcash/escrowd/internal/logging"
	"github.com/p2pcash/escrowd/internal/metrics"
	"github.com/p2pcash/escrowd/internal/notify"
	"github.com/p2pcash/escrowd/internal/ratelimit"
	"github.com/p2pcash/escrowd/internal/realtime"
	"github.com/p2pcash/escrowd/internal/security"
	"github.com/p2pcash/escrowd/internal/trade"
	"github.com/p2pcash/escrowd/internal/validation"
)

const maxRequestSize = 1 << 20 // 1MB

// Server wraps the HTTP server and the settlement engine's moving parts.
type Server struct {
	cfg *config.Config

	tradeStore  trade.Store
	escrowStore escrow.Store
	notifyStore notify.Store
	custody     custody.Adapter

	engine      *escrow.Engine
	supervisor  *escrow.Supervisor
	poller      *deposit.Poller
	realtimeHub *realtime.Hub
	rateLimiter *ratelimit.Limiter
	healthReg   *health.Registry

	db           *sql.DB // nil when using in-memory stores
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithCustody sets a custom custody adapter (for testing).
func WithCustody(adapter custody.Adapter) Option {
	return func(s *Server) {
		s.custody = adapter
	}
}

// New creates a new server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Storage: Postgres when DATABASE_URL is set, otherwise in-memory.
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		s.tradeStore = trade.NewPostgresStore(db)
		s.escrowStore = escrow.NewPostgresStore(db)
		s.notifyStore = notify.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.tradeStore = trade.NewMemoryStore()
		s.escrowStore = escrow.NewMemoryStore()
		s.notifyStore = notify.NewMemoryStore()
		s.logger.Warn("using in-memory storage, state is lost on restart")
	}

	if s.custody == nil {
		s.custody = custody.NewHTTPClient(cfg.CustodyURL, cfg.CustodyAPIKey, cfg.CustodyTimeout)
	}

	s.realtimeHub = realtime.NewHub(s.logger)
	notifier := notify.NewService(s.notifyStore, s.realtimeHub, s.logger)

	s.engine = escrow.NewEngine(s.escrowStore, s.tradeStore, s.custody, notifier, s.logger, escrow.EngineConfig{
		EscrowWindow:          cfg.EscrowWindow,
		ConfirmationThreshold: cfg.ConfirmationThreshold,
		ReleaseTolerance:      cfg.ReleaseTolerance,
		ReleaseMaxAttempts:    cfg.ReleaseMaxAttempts,
		ReleaseRetryBase:      cfg.ReleaseRetryBase,
	})
	s.supervisor = escrow.NewSupervisor(s.engine, s.escrowStore, cfg.SweepInterval, s.logger)
	s.poller = deposit.NewPoller(s.escrowStore, s.custody, s.engine, cfg.PollInterval, cfg.PollGrace, s.logger)

	s.healthReg = health.NewRegistry()
	if s.db != nil {
		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			if err := s.db.PingContext(ctx); err != nil {
				return health.Fail(err.Error())
			}
			return health.Ok()
		})
	}
	s.healthReg.Register("supervisor", func(ctx context.Context) health.Status {
		if !s.supervisor.Running() {
			return health.Fail("not running")
		}
		return health.Ok()
	})
	s.healthReg.Register("deposit_poller", func(ctx context.Context) health.Status {
		if !s.poller.Running() {
			return health.Fail("not running")
		}
		return health.Ok()
	})

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(maxRequestSize))

	limit := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		limit.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(limit)
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(8)
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := s.router.Group("/v1")

	trade.NewHandler(s.tradeStore, s.engine).RegisterRoutes(v1)
	escrowHandler := escrow.NewHandler(s.engine, s.escrowStore)
	escrowHandler.RegisterRoutes(v1)
	notify.NewHandler(s.notifyStore).RegisterRoutes(v1)

	// Custody webhook ingress: outside the admin group, authenticated by its
	// HMAC signature alone.
	deposit.NewHandler(s.engine, s.cfg.WebhookSecret).RegisterRoutes(v1)

	admin := v1.Group("")
	admin.Use(security.AdminAuthMiddleware(s.cfg.AdminSecret))
	escrowHandler.RegisterAdminRoutes(admin)
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthReg.CheckAll(ctx)
	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and all background loops, then blocks until a
// shutdown signal or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)
	go s.supervisor.Start(runCtx)
	go s.poller.Start(runCtx)

	// Settle any release that was in flight when the previous process died.
	if err := s.engine.Reconcile(runCtx); err != nil {
		s.logger.Error("startup reconciliation failed", "error", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server and background loops.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	s.supervisor.Stop()
	s.poller.Stop()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return shutdownErr
}

// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/audit"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/circuitbreaker"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/config"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/geo"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/health"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/ledger"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/logging"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/metrics"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/oracle"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/patterns"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/profile"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/ratelimit"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/realtime"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/risk"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/security"
	"github.com/sahoo-tech/FRAUD-DETECTION-AI-DRIVEN/internal/validation"
)

// Version is reported by the health endpoint. Set by cmd/server.
var Version = "dev"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	engine      *risk.Engine
	ledger      *ledger.Ledger
	oracle      risk.Oracle
	guard       *oracle.Guard // nil when the oracle is disabled
	clock       risk.Clock
	geo         *geo.Resolver
	audit       *audit.PostgresStore
	realtimeHub *realtime.Hub
	health      *health.Registry
	rateLimiter *ratelimit.Limiter
	db          *sql.DB // nil if audit is disabled
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run
	drainDelay   time.Duration

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithOracle replaces the configured oracle transport (for testing).
// The oracle is still wrapped in the circuit-breaking guard.
func WithOracle(o risk.Oracle) Option {
	return func(s *Server) {
		s.oracle = o
	}
}

// WithClock overrides the engine clock (for testing).
func WithClock(c risk.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		clock:      risk.SystemClock,
		health:     health.NewRegistry(),
		drainDelay: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.oracle == nil {
		s.oracle = buildOracle(cfg)
	}
	scorer := s.oracle
	if _, disabled := s.oracle.(oracle.Unavailable); disabled {
		s.logger.Warn("intelligence oracle disabled, all verdicts use rule-based fallback")
	} else {
		s.guard = oracle.NewGuard(s.oracle, cfg.OracleBreakerThreshold, cfg.OracleBreakerCooldown)
		s.guard.OnStateChange(func(from, to circuitbreaker.State) {
			s.logger.Warn("oracle circuit state changed", "from", from.String(), "to", to.String())
		})
		scorer = s.guard
		s.logger.Info("intelligence oracle enabled", "mode", cfg.OracleMode)
	}

	s.ledger = ledger.New(cfg.LedgerCapacity)
	s.engine = risk.NewEngine(
		profile.NewMemoryStore().WithClock(s.clock),
		patterns.NewMemoryCache().WithClock(s.clock),
		s.ledger,
		scorer,
	).WithClock(s.clock).WithOracleTimeout(cfg.OracleTimeout)
	s.logger.Info("transaction ledger ready", "capacity", s.ledger.Capacity())

	if cfg.GeoIPCityDB != "" || cfg.GeoIPASNDB != "" {
		resolver, err := geo.Open(cfg.GeoIPCityDB, cfg.GeoIPASNDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open geoip databases: %w", err)
		}
		s.geo = resolver
		s.engine.WithNetworkEnricher(resolver)
		s.logger.Info("geoip enrichment enabled")
	}

	if cfg.DatabaseURL != "" {
		if err := s.openAudit(); err != nil {
			s.closeResources()
			return nil, err
		}
		s.engine.WithAuditSink(s.audit)
	}

	s.realtimeHub = realtime.NewHub(s.logger, realtime.WithAllowedOrigins(cfg.CORSOrigins))
	s.engine.WithEvents(s.realtimeHub)

	s.registerHealthChecks()

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// buildOracle selects the oracle transport for cfg.OracleMode.
func buildOracle(cfg *config.Config) risk.Oracle {
	switch cfg.OracleMode {
	case config.OracleModeHTTP:
		return oracle.NewHTTPOracle(cfg.OracleURL, cfg.OracleAPIKey, cfg.OracleTimeout)
	case config.OracleModeChat:
		return oracle.NewChatOracle(cfg.OracleURL, cfg.OracleAPIKey, cfg.OracleModel, cfg.OracleTimeout)
	default:
		return oracle.Unavailable{}
	}
}

func (s *Server) openAudit() error {
	db, err := sql.Open("postgres", s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open audit database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := audit.NewPostgresStore(db)
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to audit database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to migrate audit database: %w", err)
	}

	if err := metrics.RegisterAuditDB(db); err != nil {
		s.logger.Warn("failed to export audit pool metrics", "error", err)
	}

	s.db = db
	s.audit = store
	s.logger.Info("audit sink enabled", "database", maskDSN(s.cfg.DatabaseURL))
	return nil
}

func (s *Server) registerHealthChecks() {
	s.health.Register("oracle", func(context.Context) health.Status {
		if s.guard == nil {
			return health.Status{Healthy: true, Detail: "disabled"}
		}
		state := s.guard.State()
		return health.Status{Healthy: state != circuitbreaker.StateOpen, Detail: state.String()}
	})

	s.health.Register("ledger", func(context.Context) health.Status {
		return health.Status{
			Healthy: true,
			Detail:  fmt.Sprintf("%d/%d records", s.ledger.Len(), s.ledger.Capacity()),
		}
	})

	if s.audit != nil {
		s.health.Register("audit", health.Ping(s.audit.Ping))
	}
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
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

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(security.CORSMiddleware(origins))

	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	s.rateLimiter = ratelimit.New(ratelimit.ForRPM(s.cfg.RateLimitRPM))

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

// loggingMiddleware writes one access record per request: errors at
// error level, client mistakes at warn, the rest at debug.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelDebug
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("route", c.FullPath()),
			slog.Int("status", status),
			slog.Int64("latency_ms", time.Since(start).Milliseconds()),
		}
		if level >= slog.LevelWarn {
			attrs = append(attrs, slog.String("client_ip", c.ClientIP()))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}
		logging.L(c.Request.Context()).LogAttrs(c.Request.Context(), level, "request completed", attrs...)
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints are not rate limited
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	api := s.router.Group("/api")
	api.Use(s.rateLimiter.Middleware())
	risk.NewHandler(s.engine).RegisterRoutes(api)
	api.GET("/feed/stats", s.feedStatsHandler)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, checks := s.health.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
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

func (s *Server) feedStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.realtimeHub.Stats())
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run serves HTTP and the live feed until ctx is done, then shuts down
// gracefully. The caller owns signal handling.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.OracleTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"oracle_mode", s.cfg.OracleMode,
			"ledger_capacity", s.cfg.LedgerCapacity,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	select {
	case err := <-errChan:
		cancel()
		s.closeResources()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown requested", "cause", context.Cause(ctx))
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.closeResources()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) closeResources() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.rateLimiter = nil
	}

	if s.geo != nil {
		if err := s.geo.Close(); err != nil {
			s.logger.Error("geoip close error", "error", err)
		}
		s.geo = nil
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
		s.db = nil
	}
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Engine returns the risk engine.
func (s *Server) Engine() *risk.Engine {
	return s.engine
}

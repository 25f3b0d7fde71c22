// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
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

	"github.com/hub28/connect/internal/billing"
	"github.com/hub28/connect/internal/config"
	"github.com/hub28/connect/internal/delivery"
	"github.com/hub28/connect/internal/health"
	"github.com/hub28/connect/internal/logging"
	"github.com/hub28/connect/internal/metrics"
	"github.com/hub28/connect/internal/notification"
	"github.com/hub28/connect/internal/query"
	"github.com/hub28/connect/internal/ratelimit"
	"github.com/hub28/connect/internal/realtime"
	"github.com/hub28/connect/internal/retry"
	"github.com/hub28/connect/internal/security"
	"github.com/hub28/connect/internal/stats"
	"github.com/hub28/connect/internal/template"
	"github.com/hub28/connect/internal/tenant"
	"github.com/hub28/connect/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	tenants      *tenant.Service
	trialTimer   *tenant.Timer
	notifs       *notification.Service
	templates    *template.Service
	scheduler    *delivery.Scheduler
	statsService *stats.Service
	queryService *query.Service
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

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

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		checks: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		tenantStore   tenant.Store
		notifStore    notification.Store
		templateStore template.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// The database may still be coming up when we start (compose,
		// rolling deploys), so give it a few tries before failing.
		err = retry.Do(context.Background(), 5, time.Second, func() error {
			return db.Ping()
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		tenantStore = tenant.NewPostgresStore(db)
		notifStore = notification.NewPostgresStore(db)
		templateStore = template.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		s.checks.Register("database", func(ctx context.Context) health.Status {
			st := health.Status{Name: "database", Healthy: true}
			if err := db.PingContext(ctx); err != nil {
				st.Healthy = false
				st.Detail = err.Error()
			}
			return st
		})
	} else {
		tenantStore = tenant.NewMemoryStore()
		notifStore = notification.NewMemoryStore()
		templateStore = template.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")

		s.checks.Register("store", func(context.Context) health.Status {
			return health.Status{Name: "store", Healthy: true}
		})
	}

	// Tenant registry with trial lifecycle
	s.tenants = tenant.NewService(tenantStore, logging.Component(s.logger, "tenant"))
	s.tenants.SetTrialPeriod(cfg.TrialPeriod)
	s.trialTimer = tenant.NewTimer(s.tenants, cfg.TrialSweepInterval, logging.Component(s.logger, "trial_sweep"))

	// Billing (optional, checkout links for upgrades)
	if cfg.StripeAPIKey != "" {
		s.tenants.SetBilling(billing.NewStripeProvider(
			cfg.StripeAPIKey,
			cfg.StripeProPriceID,
			cfg.StripeEnterprisePrice,
			cfg.PublicBaseURL,
			logging.Component(s.logger, "billing"),
		))
		s.logger.Info("stripe billing enabled")
	}

	// Notification store and state machine
	gate := &tenantGate{tenants: s.tenants}
	s.notifs = notification.NewService(notifStore, gate, cfg.MaxAttempts, logging.Component(s.logger, "notification"))

	// Message templates
	s.templates = template.NewService(templateStore, logging.Component(s.logger, "template"))

	// Delivery scheduler (disabled without a gateway to send through)
	if cfg.GatewayURL != "" {
		sender := delivery.NewHTTPSender(cfg.GatewayURL, cfg.GatewaySecret, cfg.SendTimeout)
		s.scheduler = delivery.NewScheduler(s.notifs, gate, s.templates, sender, delivery.Config{
			Interval:    cfg.SchedulerInterval,
			Workers:     cfg.SchedulerWorkers,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			SendTimeout: cfg.SendTimeout,
		}, logging.Component(s.logger, "delivery"))
		s.logger.Info("delivery scheduler enabled", "gateway", cfg.GatewayURL)
	} else {
		s.logger.Warn("GATEWAY_URL not set, delivery disabled (notifications stay pending)")
	}

	// Read side
	s.statsService = stats.NewService(tenantStore, s.notifs)
	s.queryService = query.NewService(s.tenants, s.notifs)

	// Realtime event streaming
	s.realtimeHub = realtime.NewHub(logging.Component(s.logger, "realtime"))
	s.tenants.SetEvents(s.realtimeHub)
	s.notifs.SetEvents(s.realtimeHub)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
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

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
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

		// Log level based on status code
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

// authMiddleware resolves the caller. Admins authenticate with the
// X-Admin-Secret header, tenants with their X-API-Key.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret := c.GetHeader("X-Admin-Secret"); secret != "" && s.isAdminSecret(secret) {
			c.Set("admin", true)
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "Include your API key in the X-API-Key header",
			})
			return
		}

		t, err := s.tenants.Authenticate(c.Request.Context(), apiKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "API key is not recognized",
			})
			return
		}

		c.Set("tenant", t)
		c.Next()
	}
}

// requireAdmin guards admin-only routes.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.isAdminSecret(c.GetHeader("X-Admin-Secret")) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin access required",
			})
			return
		}
		c.Set("admin", true)
		c.Next()
	}
}

// requireTenantAccess ensures an authenticated tenant only touches its
// own resources on /tenants/:id routes. Admins bypass the check.
func (s *Server) requireTenantAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool("admin") {
			c.Next()
			return
		}
		id := c.Param("id")
		if id == "" {
			c.Next()
			return
		}
		t, ok := c.MustGet("tenant").(*tenant.Tenant)
		if !ok || t.ID != id {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "API key does not grant access to this tenant",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) isAdminSecret(secret string) bool {
	if secret == "" {
		return false
	}
	// Development runs without an admin secret; accept any value there
	// so local tooling works. Production requires a configured secret.
	if s.cfg.AdminSecret == "" {
		return s.cfg.IsDevelopment()
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.AdminSecret)) == 1
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	tenantHandler := tenant.NewHandler(s.tenants)
	notifHandler := notification.NewHandler(s.notifs)
	templateHandler := template.NewHandler(s.templates)
	queryHandler := query.NewHandler(s.queryService)
	statsHandler := stats.NewHandler(s.statsService)

	// Tenant-scoped routes: API key must match the :id being touched
	scoped := v1.Group("", s.authMiddleware(), s.requireTenantAccess())
	{
		tenantHandler.RegisterRoutes(scoped)
		templateHandler.RegisterRoutes(scoped)
		queryHandler.RegisterRoutes(scoped)
	}

	// Notification routes: the ERP webhook is tenant-scoped by :id; the
	// detail and retry endpoints carry a notification id instead, so
	// ownership is resolved against the record itself.
	notifRoutes := v1.Group("", s.authMiddleware(), s.notificationAccess())
	{
		notifHandler.RegisterRoutes(notifRoutes)
	}

	// Admin routes: onboarding, lifecycle overrides, platform metrics
	admin := v1.Group("/admin", s.requireAdmin())
	{
		tenantHandler.RegisterAdminRoutes(admin)
		queryHandler.RegisterAdminRoutes(admin)
		statsHandler.RegisterRoutes(admin)
	}
}

// notificationAccess scopes notification routes. ERP webhook calls are
// checked against the :id tenant; detail/retry calls are checked by
// loading the notification and comparing owners.
func (s *Server) notificationAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool("admin") {
			c.Next()
			return
		}
		t, ok := c.MustGet("tenant").(*tenant.Tenant)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Authentication required",
			})
			return
		}

		id := c.Param("id")
		full := c.FullPath()
		if len(full) >= len("/v1/tenants/") && full[:len("/v1/tenants/")] == "/v1/tenants/" {
			if t.ID != id {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":   "forbidden",
					"message": "API key does not grant access to this tenant",
				})
				return
			}
			c.Next()
			return
		}

		n, err := s.notifs.Get(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, notification.ErrNotificationNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
					"error":   "not_found",
					"message": "Notification not found",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to load notification",
			})
			return
		}
		if n.TenantID != t.ID {
			// Hide other tenants' notification ids
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "Notification not found",
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
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

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Connect",
		"description": "WhatsApp notification delivery for ERP events",
		"version":     "0.1.0",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
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
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start trial expiry sweep
	go s.trialTimer.Start(runCtx)

	// Start delivery scheduler
	if s.scheduler != nil {
		go s.scheduler.Start(runCtx)
	}

	// Periodic DB pool stats for Prometheus
	if s.db != nil {
		go metrics.CollectDBStats(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
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

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, timers, scheduler)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	if s.scheduler != nil {
		s.scheduler.Stop()
		s.logger.Info("delivery scheduler stopped")
	}

	s.trialTimer.Stop()
	s.logger.Info("trial sweep stopped")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// -----------------------------------------------------------------------------
// Adapters
// -----------------------------------------------------------------------------

// tenantGate adapts tenant.Service for the notification service and the
// delivery scheduler. Both only need to know whether a tenant may send.
type tenantGate struct {
	tenants *tenant.Service
}

var (
	_ notification.TenantChecker = (*tenantGate)(nil)
	_ delivery.TenantGate        = (*tenantGate)(nil)
)

func (g *tenantGate) CheckTenant(ctx context.Context, tenantID string) error {
	t, err := g.tenants.Get(ctx, tenantID)
	if errors.Is(err, tenant.ErrTenantNotFound) {
		return notification.ErrUnknownTenant
	}
	if err != nil {
		return err
	}
	if t.Status != tenant.StatusActive {
		return notification.ErrUnknownTenant
	}
	return nil
}

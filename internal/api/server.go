package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"asset-pool-ledger/internal/cache"
	"asset-pool-ledger/internal/ledger"
	"asset-pool-ledger/internal/logging"
	"asset-pool-ledger/internal/payout"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// UserHeader carries the caller identity set by the auth gateway
const UserHeader = "X-User-ID"

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ProductionMode bool
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// Server exposes the ledger over HTTP
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	ledger     *ledger.Ledger
	queries    cache.PoolQueries
	payouts    *payout.Service
	health     map[string]HealthCheck
	logger     zerolog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithQueries serves pool read models from q instead of the ledger
func WithQueries(q cache.PoolQueries) Option {
	return func(s *Server) { s.queries = q }
}

// WithHealthCheck adds a named dependency to /health
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.health[name] = check }
}

// NewServer creates a new API server
func NewServer(config ServerConfig, l *ledger.Ledger, payouts *payout.Service, logger zerolog.Logger, opts ...Option) *Server {
	// Set Gin mode
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(logging.GinMiddleware(logger))
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) == 0 || (len(config.AllowedOrigins) == 1 && config.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = config.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", UserHeader, logging.TraceHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", logging.TraceHeader}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:  router,
		config:  config,
		ledger:  l,
		queries: l,
		payouts: payouts,
		health:  make(map[string]HealthCheck),
		logger:  logger.With().Str("component", "APIServer").Logger(),
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		// Pool endpoints
		api.POST("/pools", s.handleOpenPool)
		api.GET("/pools", s.handleListPools)
		api.GET("/pools/:id", s.handleGetPool)
		api.GET("/pools/:id/stats", s.handleGetPoolStats)
		api.GET("/pools/:id/distributions", s.handleGetDistributions)
		api.POST("/pools/:id/process", s.handleProcessPool)
		api.POST("/pools/:id/sales", s.handleRecordSale)
		api.POST("/withdrawals/:id/resolve", s.handleResolveWithdrawal)

		// Caller-scoped endpoints
		user := api.Group("", requireUser())
		user.POST("/pools/:id/contributions", s.handleContribute)
		user.POST("/pools/:id/purchases", s.handlePurchase)
		user.GET("/pools/:id/access", s.handleGetAccess)

		user.GET("/wallet", s.handleGetWallet)
		user.POST("/wallet/deposits", s.handleDeposit)
		user.GET("/wallet/transactions", s.handleGetTransactions)
		user.GET("/wallet/contributions", s.handleGetUserContributions)
		user.GET("/wallet/profit-shares", s.handleGetProfitShares)
		user.GET("/wallet/withdrawals", s.handleGetWithdrawals)
		user.POST("/wallet/withdrawals", s.handleWithdraw)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   true,
			"message": "API endpoint not found",
			"path":    c.Request.URL.Path,
			"method":  c.Request.Method,
		})
	})
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	deps := gin.H{}
	for name, check := range s.health {
		if err := check(ctx); err != nil {
			deps[name] = "unhealthy"
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "healthy"
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": deps,
		"time":         time.Now().UTC().Format(time.RFC3339),
	})
}

// requireUser rejects requests that carry no caller identity
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(UserHeader) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   true,
				"message": "missing " + UserHeader + " header",
			})
			return
		}
		c.Next()
	}
}

// getUserID returns the caller identity
func getUserID(c *gin.Context) string {
	return c.GetHeader(UserHeader)
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// rejectedResponse returns a business rejection with its outcome
func rejectedResponse(c *gin.Context, outcome interface{}) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"success": false,
		"data":    outcome,
	})
}

// handleError maps ledger errors onto HTTP status codes
func (s *Server) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrAssetNotFound),
		errors.Is(err, ledger.ErrWalletNotFound),
		errors.Is(err, payout.ErrWithdrawalNotFound):
		errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrConflict), errors.Is(err, payout.ErrAlreadyResolved):
		errorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInvalidInput):
		errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		errorResponse(c, http.StatusGatewayTimeout, "request timed out")
	default:
		logging.FromContext(c.Request.Context()).Error().Err(err).Msg("Request failed")
		errorResponse(c, http.StatusInternalServerError, "internal error")
	}
}

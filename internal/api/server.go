// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/wallet-aggregator/internal/logging"
	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/service"
	"github.com/wallet-aggregator/internal/types"
)

// Service interfaces for dependency injection and testing

// WalletServiceInterface defines the interface for wallet operations
type WalletServiceInterface interface {
	Create(ctx context.Context, in service.CreateWalletInput) (*models.Wallet, error)
	List(ctx context.Context) ([]*models.Wallet, error)
	Update(ctx context.Context, id string, upd models.WalletUpdate) (*models.Wallet, error)
	Delete(ctx context.Context, id string) error
}

// PortfolioServiceInterface defines the interface for the read views
type PortfolioServiceInterface interface {
	Tokens(ctx context.Context, q service.PortfolioQuery) (*service.TokensView, error)
	Protocols(ctx context.Context, q service.PortfolioQuery) ([]types.ProtocolGroup, error)
}

// SnapshotServiceInterface defines the interface for net-worth snapshots
type SnapshotServiceInterface interface {
	Write(ctx context.Context, in service.WriteSnapshotInput) (*service.WriteResult, error)
	History(ctx context.Context, from, to time.Time) ([]models.Snapshot, error)
}

// SettingsServiceInterface defines the interface for user settings
type SettingsServiceInterface interface {
	SmallBalanceThreshold(ctx context.Context) (decimal.Decimal, error)
	SetSmallBalanceThreshold(ctx context.Context, v decimal.Decimal) error
}

// AggregationServiceInterface defines the interface for refetch triggers
type AggregationServiceInterface interface {
	RunAll(ctx context.Context) (*service.RunSummary, error)
	RunSource(ctx context.Context, source types.ChainFamily) (*service.RunSummary, error)
}

// ExchangeServiceInterface defines the interface for exchange history
type ExchangeServiceInterface interface {
	List(ctx context.Context, limit int) ([]models.ExchangeTransaction, error)
}

// HealthChecker is a dependency reported by /health
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Services bundles the services the API delegates to
type Services struct {
	Wallets     WalletServiceInterface
	Portfolio   PortfolioServiceInterface
	Snapshots   SnapshotServiceInterface
	Settings    SettingsServiceInterface
	Aggregation AggregationServiceInterface
	Exchange    ExchangeServiceInterface
	// Health maps dependency names to checkers; nil entries are skipped.
	Health map[string]HealthChecker
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	svc        Services
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerMinute int // per client IP
	Burst             int
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, svc Services) *Server {
	s := &Server{
		router: mux.NewRouter(),
		svc:    svc,
		config: config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerMinute, s.config.Burst)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter)) // Rate limiting after CORS
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Refetch routes are registered before /wallets/{id}
	s.router.HandleFunc("/wallets/refetch", s.handleRefetchAll).Methods("POST")
	s.router.HandleFunc("/wallets/refetch/{source}", s.handleRefetchSource).Methods("POST")

	s.router.HandleFunc("/wallets", s.handleListWallets).Methods("GET")
	s.router.HandleFunc("/wallets", s.handleCreateWallet).Methods("POST")
	s.router.HandleFunc("/wallets/{id}", s.handleUpdateWallet).Methods("PUT")
	s.router.HandleFunc("/wallets/{id}", s.handleDeleteWallet).Methods("DELETE")

	s.router.HandleFunc("/tokens", s.handleTokens).Methods("GET")
	s.router.HandleFunc("/protocols-table", s.handleProtocols).Methods("GET")

	s.router.HandleFunc("/net-worth", s.handleNetWorthHistory).Methods("GET")
	s.router.HandleFunc("/net-worth", s.handleWriteNetWorth).Methods("POST")

	s.router.HandleFunc("/settings/hidesmallbalances", s.handleGetThreshold).Methods("GET")
	s.router.HandleFunc("/settings/hidesmallbalances", s.handleSetThreshold).Methods("POST")

	s.router.HandleFunc("/exchange-transactions", s.handleExchangeTransactions).Methods("GET")
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	deps := make(map[string]string, len(s.svc.Health))
	for name, checker := range s.svc.Health {
		if checker == nil {
			continue
		}
		if err := checker.Ping(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	respondJSON(w, code, map[string]interface{}{
		"status":       status,
		"service":      "wallet-aggregator",
		"dependencies": deps,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/account-sync/internal/logging"
	"github.com/account-sync/internal/models"
	"github.com/account-sync/internal/scheduler"
	"github.com/account-sync/internal/types"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// SchedulerInterface defines the queue operations exposed over HTTP.
type SchedulerInterface interface {
	Enqueue(ctx context.Context, userID string, kind types.TriggerKind, metadata map[string]string) (requestID string, deduplicated bool, err error)
	Cancel(ctx context.Context, requestID string) bool
	Status() *scheduler.QueueStatus
}

// AttemptLogInterface defines the attempt record reads for status and stats.
type AttemptLogInterface interface {
	GetLatestByUser(ctx context.Context, userID string) (*models.SyncAttempt, error)
	HasInProgress(ctx context.Context, userID string) (bool, error)
	Stats(ctx context.Context, userID string, window time.Duration) (*models.SyncStats, error)
}

// ConnectionStoreInterface defines the aggregator link reads.
type ConnectionStoreInterface interface {
	GetByUser(ctx context.Context, userID string) (*models.Connection, error)
}

// FeatureGateInterface defines the subscription capability check.
type FeatureGateInterface interface {
	HasCapability(ctx context.Context, userID, capability string) (bool, error)
}

// CooldownInterface defines the rate gate reads for status queries.
type CooldownInterface interface {
	NextEligible(ctx context.Context, userID string, kind types.TriggerKind) (time.Time, error)
}

// HealthChecker pings a backing dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	scheduler   SchedulerInterface
	attempts    AttemptLogInterface
	connections ConnectionStoreInterface
	features    FeatureGateInterface
	cooldowns   CooldownInterface
	deps        map[string]HealthChecker
	config      *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	sched SchedulerInterface,
	attempts AttemptLogInterface,
	connections ConnectionStoreInterface,
	features FeatureGateInterface,
	cooldowns CooldownInterface,
	deps map[string]HealthChecker,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		scheduler:   sched,
		attempts:    attempts,
		connections: connections,
		features:    features,
		cooldowns:   cooldowns,
		deps:        deps,
		config:      config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rps := s.config.RequestsPerSec
	if rps <= 0 {
		rps = 20
	}
	rateLimiter := NewRateLimiter(rps)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

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
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Sync queue endpoints
	api.HandleFunc("/sync", s.handleEnqueueSync).Methods("POST")
	api.HandleFunc("/sync/queue", s.handleQueueStatus).Methods("GET")
	api.HandleFunc("/sync/stats", s.handleSyncStats).Methods("GET")
	api.HandleFunc("/sync/status/{userId}", s.handleSyncStatus).Methods("GET")
	api.HandleFunc("/sync/{requestId}", s.handleCancelSync).Methods("DELETE")

	// Aggregator webhook ingress (exempt from rate limiting)
	s.router.HandleFunc("/webhooks/aggregator", s.handleAggregatorWebhook).Methods("POST")
}

// handleHealth handles health check requests. Each backing dependency is
// pinged; any failure degrades the status without taking the endpoint down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	checks := make(map[string]string, len(s.deps))
	for name, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
		} else {
			checks[name] = "ok"
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, map[string]interface{}{
		"status":  status,
		"service": "account-sync",
		"checks":  checks,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.GetGlobalLogger().WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

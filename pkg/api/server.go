// Package api exposes the worker's operational HTTP surface.
//
// The endpoints are read-only and unauthenticated: they serve liveness
// probes and operator inspection, not external clients. The surface is
// optional — a worker without WORKER_HTTP_ADDR never starts it.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sentinelstream/newsflow/pkg/database"
	"github.com/sentinelstream/newsflow/pkg/queue"
	"github.com/sentinelstream/newsflow/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// HealthCheck reports the state of a single component in the health response.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Database *database.HealthStatus `json:"database"`
	Checks   map[string]HealthCheck `json:"checks"`
}

// Server hosts the operational endpoints for a worker process.
type Server struct {
	db         *database.Client
	pool       *queue.WorkerPool
	httpServer *http.Server
}

// NewServer creates the ops server. pool may be nil when the process runs
// a single pass without a resident worker pool.
func NewServer(db *database.Client, pool *queue.WorkerPool) *Server {
	return &Server{
		db:   db,
		pool: pool,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.healthHandler)
	router.GET("/api/v1/queue/health", s.queueHealthHandler)

	return router
}

// Start begins serving on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health.
// Only the worker's own components (database, worker pool) are checked.
// Upstream APIs and LLM providers are excluded so that an unhealthy
// external service cannot make an orchestrator restart the worker.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	dbHealth, err := s.db.Health(ctx)
	if err != nil {
		status = healthStatusUnhealthy
		checks["database"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.pool != nil {
		poolHealth := s.pool.Health()
		if poolHealth != nil && !poolHealth.IsHealthy {
			if status == healthStatusHealthy {
				status = healthStatusDegraded
			}
			msg := healthStatusUnhealthy
			if poolHealth.DBError != "" {
				msg = poolHealth.DBError
			}
			checks["worker_pool"] = HealthCheck{Status: healthStatusDegraded, Message: msg}
		} else {
			checks["worker_pool"] = HealthCheck{Status: healthStatusHealthy}
		}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, &HealthResponse{
		Status:   status,
		Version:  version.GitCommit,
		Database: dbHealth,
		Checks:   checks,
	})
}

// queueHealthHandler handles GET /api/v1/queue/health.
// Returns the full pool snapshot: queue depth by status, per-worker
// activity, and lease sweep counters.
func (s *Server) queueHealthHandler(c *gin.Context) {
	if s.pool == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "worker pool not running"})
		return
	}

	health := s.pool.Health()
	httpStatus := http.StatusOK
	if !health.IsHealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, health)
}

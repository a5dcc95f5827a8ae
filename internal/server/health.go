package server

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusFailing      = "failing"
)

// readinessCheckTimeout bounds every registered readiness check.
const readinessCheckTimeout = 2 * time.Second

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// HealthChecker provides health check endpoints for Kubernetes probes.
type HealthChecker struct {
	// ready indicates whether the server is ready to receive traffic
	ready atomic.Bool
	// serverContext reports shutdown; nil in tests
	serverContext *ServerContext
	startTime     time.Time

	mu     sync.RWMutex
	checks map[string]ReadinessCheck
}

// NewHealthChecker creates a new HealthChecker. It starts out not ready;
// call SetReady once the listeners are up.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	return &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
		checks:        make(map[string]ReadinessCheck),
	}
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// AddReadinessCheck registers a named dependency check run by /readyz.
func (h *HealthChecker) AddReadinessCheck(name string, check ReadinessCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *HealthChecker) isServerShuttingDown() bool {
	return h.serverContext != nil && h.serverContext.IsShutdown()
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	ActiveUsers int    `json:"activeUsers"`
}

// Liveness handles /healthz. It only says the process is running.
func (h *HealthChecker) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: healthStatusOK})
}

// Readiness handles /readyz.
func (h *HealthChecker) Readiness(c echo.Context) error {
	checks := make(map[string]string)
	allOk := true

	if !h.ready.Load() {
		checks["ready"] = healthStatusNotReady
		allOk = false
	} else {
		checks["ready"] = healthStatusOK
	}

	if h.isServerShuttingDown() {
		checks["shutdown"] = healthStatusShuttingDown
		allOk = false
	} else {
		checks["shutdown"] = healthStatusOK
	}

	h.mu.RLock()
	registered := make(map[string]ReadinessCheck, len(h.checks))
	names := make([]string, 0, len(h.checks))
	for name, check := range h.checks {
		registered[name] = check
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		check := registered[name]
		ctx, cancel := context.WithTimeout(c.Request().Context(), readinessCheckTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			checks[name] = healthStatusFailing
			allOk = false
			continue
		}
		checks[name] = healthStatusOK
	}

	response := HealthResponse{Checks: checks}
	if !allOk {
		response.Status = healthStatusNotReady
		return c.JSON(http.StatusServiceUnavailable, response)
	}
	response.Status = healthStatusOK
	return c.JSON(http.StatusOK, response)
}

// Detailed handles /healthz/detailed.
func (h *HealthChecker) Detailed(c echo.Context) error {
	response := DetailedHealthResponse{
		Status: healthStatusOK,
		Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
	}
	if h.serverContext != nil {
		response.ActiveUsers = h.serverContext.Sessions().Len()
	}

	switch {
	case !h.ready.Load():
		response.Status = healthStatusNotReady
		return c.JSON(http.StatusServiceUnavailable, response)
	case h.isServerShuttingDown():
		response.Status = healthStatusShuttingDown
		return c.JSON(http.StatusServiceUnavailable, response)
	}
	return c.JSON(http.StatusOK, response)
}

// RegisterHealthEndpoints registers the health check endpoints on e.
func (h *HealthChecker) RegisterHealthEndpoints(e *echo.Echo) {
	e.GET("/healthz", h.Liveness)
	e.GET("/readyz", h.Readiness)
	e.GET("/healthz/detailed", h.Detailed)
}

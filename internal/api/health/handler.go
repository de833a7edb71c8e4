package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"finvisor/pkg/logger"
)

// Check pings one dependency
type Check func(ctx context.Context) error

type namedCheck struct {
	name string
	fn   Check
	// required checks decide readiness; optional ones only degrade health
	required bool
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	checks      []namedCheck
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a new health check handler
func New(log *logger.Logger, serviceName, version string) *Handler {
	return &Handler{
		log:         log,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// Require registers a dependency the service cannot serve without
func (h *Handler) Require(name string, fn Check) *Handler {
	h.checks = append(h.checks, namedCheck{name: name, fn: fn, required: true})
	return h
}

// Optional registers a dependency with an in-process fallback
func (h *Handler) Optional(name string, fn Check) *Handler {
	h.checks = append(h.checks, namedCheck{name: name, fn: fn})
	return h
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                     `json:"status"` // "healthy", "degraded", "unhealthy"
	Service   string                     `json:"service"`
	Version   string                     `json:"version"`
	Uptime    string                     `json:"uptime"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HandleLiveness returns 200 OK if service is running
// Used by Kubernetes liveness probe
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness fails when any required dependency is down
// Used by Kubernetes readiness probe
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := h.run(ctx)
	status := h.status(checks)

	code := http.StatusOK
	for _, c := range h.checks {
		if c.required && checks[c.name].Status != "healthy" {
			status.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	if code != http.StatusOK {
		h.log.Warnw("Readiness check failed", "checks", checks)
	}
	writeJSON(w, code, status)
}

// HandleHealth returns detailed health status (includes all checks)
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks := h.run(ctx)
	status := h.status(checks)

	healthy := 0
	for _, c := range checks {
		if c.Status == "healthy" {
			healthy++
		}
	}

	code := http.StatusOK
	switch {
	case len(checks) > 0 && healthy == 0:
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case healthy < len(checks):
		// Still return 200 for degraded
		status.Status = "degraded"
	}
	writeJSON(w, code, status)
}

// run pings every dependency in parallel
func (h *Handler) run(ctx context.Context) map[string]ComponentHealth {
	var (
		mu  sync.Mutex
		out = make(map[string]ComponentHealth, len(h.checks))
		g   errgroup.Group
	)

	for _, c := range h.checks {
		g.Go(func() error {
			res := h.ping(ctx, c)
			mu.Lock()
			out[c.name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (h *Handler) ping(ctx context.Context, c namedCheck) ComponentHealth {
	start := time.Now()
	err := c.fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		h.log.Errorw("Health check failed", "component", c.name, "error", err, "elapsed", elapsed)
		return ComponentHealth{
			Status:       "unhealthy",
			ResponseTime: elapsed.String(),
			Error:        err.Error(),
		}
	}

	return ComponentHealth{
		Status:       "healthy",
		ResponseTime: elapsed.String(),
	}
}

func (h *Handler) status(checks map[string]ComponentHealth) HealthStatus {
	return HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    checks,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

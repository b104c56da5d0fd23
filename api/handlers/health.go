package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// readyCheckTimeout bounds the total time HandleReady spends probing
// dependencies.
const readyCheckTimeout = 5 * time.Second

// HealthCheck probes one dependency for readiness.
type HealthCheck interface {
	// Name identifies the dependency in the readiness report.
	Name() string
	// Check returns nil when the dependency is usable.
	Check(ctx context.Context) error
}

// PingCheck adapts a ping function into a HealthCheck.
type PingCheck struct {
	name string
	ping func(context.Context) error
}

// NewPingCheck builds a HealthCheck from a named ping function.
func NewPingCheck(name string, ping func(context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping}
}

func (p *PingCheck) Name() string { return p.name }

func (p *PingCheck) Check(ctx context.Context) error {
	if p.ping == nil {
		return nil
	}
	return p.ping(ctx)
}

// CheckResult reports the outcome of one dependency probe.
type CheckResult struct {
	Status  string `json:"status" example:"pass"`
	Message string `json:"message,omitempty"`
}

// ServiceHealthResponse is the liveness and readiness payload. Health
// endpoints write it directly, without the Response envelope, so probes
// stay trivially parseable.
type ServiceHealthResponse struct {
	Status    string                 `json:"status" example:"healthy"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// HealthHandler serves liveness, readiness, and version endpoints.
type HealthHandler struct {
	logger *zap.Logger

	mu     sync.RWMutex
	checks []HealthCheck
}

// NewHealthHandler creates a health handler with no registered checks.
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger: logger.With(zap.String("component", "health_handler")),
	}
}

// RegisterCheck adds a readiness check. Liveness endpoints never run
// checks; only HandleReady does.
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	if check == nil {
		return
	}
	h.mu.Lock()
	h.checks = append(h.checks, check)
	h.mu.Unlock()
}

// HandleHealth reports process liveness.
//
// @Summary Health check
// @Description Returns healthy while the process is running
// @Tags health
// @Produce json
// @Success 200 {object} ServiceHealthResponse
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, &ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
	})
}

// HandleHealthz is the Kubernetes-style liveness alias.
//
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} ServiceHealthResponse
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.HandleHealth(w, r)
}

// HandleReady runs all registered checks and reports readiness. Any
// failing check turns the response into a 503 with per-check detail.
//
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} ServiceHealthResponse
// @Failure 503 {object} ServiceHealthResponse
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	results := make(map[string]CheckResult, len(checks))
	healthy := true
	for _, check := range checks {
		if err := check.Check(ctx); err != nil {
			healthy = false
			results[check.Name()] = CheckResult{Status: "fail", Message: err.Error()}
			h.logger.Warn("readiness check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
			)
			continue
		}
		results[check.Name()] = CheckResult{Status: "pass"}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}

	resp := &ServiceHealthResponse{
		Status:    state,
		Timestamp: time.Now().UTC(),
	}
	if len(results) > 0 {
		resp.Checks = results
	}
	WriteJSON(w, status, resp)
}

// HandleVersion returns a handler reporting build metadata.
//
// @Summary Build version
// @Tags health
// @Produce json
// @Success 200 {object} Response
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

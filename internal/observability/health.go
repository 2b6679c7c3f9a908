package observability

import (
	"context"
	"log/slog"
	"time"
)

// readyTimeout bounds the whole readiness sweep, not each check.
const readyTimeout = 3 * time.Second

// HealthChecker answers liveness and readiness probes. Liveness is
// unconditional; readiness runs every registered dependency check and
// degrades if any of them fail.
type HealthChecker struct {
	names  []string
	checks map[string]func(ctx context.Context) error
	logger *slog.Logger
}

// HealthStatus is the JSON body served on health and readiness endpoints.
type HealthStatus struct {
	Status string                 `json:"status"` // "ok" or "degraded"
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult reports one dependency check.
type CheckResult struct {
	Status  string `json:"status"`            // "ok" or "fail"
	Message string `json:"message,omitempty"` // Error message on failure.
}

// NewHealthChecker creates a HealthChecker with no checks registered.
func NewHealthChecker(logger *slog.Logger) *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]func(ctx context.Context) error),
		logger: logger,
	}
}

// AddCheck registers a named dependency check. Checks run in registration
// order; registering the same name twice replaces the earlier check.
func (h *HealthChecker) AddCheck(name string, check func(ctx context.Context) error) {
	if _, exists := h.checks[name]; !exists {
		h.names = append(h.names, name)
	}
	h.checks[name] = check
}

// CheckHealth is the liveness answer: "ok" whenever the process can respond.
func (h *HealthChecker) CheckHealth() HealthStatus {
	return HealthStatus{Status: "ok"}
}

// CheckReady runs every registered check under a shared timeout and
// aggregates the results. A checker with no checks is always ready.
func (h *HealthChecker) CheckReady(ctx context.Context) HealthStatus {
	if len(h.checks) == 0 {
		return HealthStatus{Status: "ok"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	status := HealthStatus{
		Status: "ok",
		Checks: make(map[string]CheckResult, len(h.checks)),
	}
	for _, name := range h.names {
		err := h.checks[name](checkCtx)
		if err == nil {
			status.Checks[name] = CheckResult{Status: "ok"}
			continue
		}
		status.Status = "degraded"
		status.Checks[name] = CheckResult{Status: "fail", Message: err.Error()}
		if h.logger != nil {
			h.logger.Warn("readiness check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
		}
	}
	return status
}

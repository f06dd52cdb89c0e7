package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	domain "github.com/trademate/api/internal/domain"
	"github.com/trademate/api/internal/services"
)

const defaultReadinessTimeout = 5 * time.Second

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system  services.SystemService
	build   services.BuildInfo
	clock   func() time.Time
	timeout time.Duration
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs probe handlers. Without a system service readiness mirrors liveness.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		clock:   time.Now,
		timeout: defaultReadinessTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock()
	}
	return h
}

// WithHealthSystemService sets the service consulted by /readyz.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = svc
	}
}

// WithHealthBuildInfo sets the build metadata reported by /healthz.
func WithHealthBuildInfo(info services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthClock overrides the clock.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithHealthTimeout bounds the readiness probe.
func WithHealthTimeout(timeout time.Duration) HealthOption {
	return func(h *HealthHandlers) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// Healthz reports process liveness and build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	writeProbe(w, http.StatusOK, map[string]any{
		"status":      domain.HealthStatusOK,
		"version":     h.build.Version,
		"commitSha":   h.build.CommitSHA,
		"environment": h.build.Environment,
		"uptime":      now.Sub(h.build.StartedAt).Round(time.Second).String(),
		"timestamp":   now.Format(time.RFC3339),
	})
}

// Readyz runs the dependency checks and answers 503 when any fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		h.Healthz(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		writeProbe(w, http.StatusServiceUnavailable, map[string]any{
			"status":    domain.HealthStatusError,
			"details":   []string{err.Error()},
			"timestamp": h.clock().UTC().Format(time.RFC3339),
		})
		return
	}

	details := make([]string, 0)
	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		checks[name] = map[string]any{
			"status":    check.Status,
			"error":     check.Error,
			"latencyMs": check.Latency.Milliseconds(),
		}
		if check.Status != domain.HealthStatusOK {
			detail := name
			if check.Error != "" {
				detail += ": " + check.Error
			}
			details = append(details, detail)
		}
	}
	sort.Strings(details)

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeProbe(w, status, map[string]any{
		"status":      report.Status,
		"version":     report.Version,
		"commitSha":   report.CommitSHA,
		"environment": report.Environment,
		"uptime":      report.Uptime.Round(time.Second).String(),
		"checks":      checks,
		"details":     details,
		"timestamp":   report.GeneratedAt.UTC().Format(time.RFC3339),
	})
}

func writeProbe(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Package handler provides HTTP handlers for the ClearSkies API.
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clearskies/clearskies/internal/api/models"
	"github.com/clearskies/clearskies/internal/api/response"
	"github.com/clearskies/clearskies/internal/featureflags"
	"github.com/clearskies/clearskies/internal/provider/resilience"
)

// readinessTimeout bounds all subsystem pings together.
const readinessTimeout = 3 * time.Second

// Pinger is a subsystem the service depends on, such as a database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// OpsConfig configures an OpsHandler. Every field except the version is optional.
type OpsConfig struct {
	Version    string
	BuildTime  string
	Subsystems map[string]Pinger
	Registry   *resilience.Registry
	Flags      *featureflags.Service
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version    string
	buildTime  string
	subsystems map[string]Pinger
	registry   *resilience.Registry
	flags      *featureflags.Service
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:    cfg.Version,
		buildTime:  cfg.BuildTime,
		subsystems: cfg.Subsystems,
		registry:   cfg.Registry,
		flags:      cfg.Flags,
	}
}

// HealthCheck handles GET /ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /ops/ready. Any failing subsystem makes it 503.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.pingAll(r.Context())

	status := http.StatusOK
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	for _, s := range subsystems {
		if s.Status != models.HealthStatusOK {
			health.Status = models.HealthStatusFail
			status = http.StatusServiceUnavailable
		}
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: h.pingAll(r.Context()),
		Providers:  h.providers(),
	}

	for _, s := range status.Subsystems {
		if s.Status != models.HealthStatusOK {
			status.Status = models.HealthStatusFail
		}
	}
	if status.Status == models.HealthStatusOK {
		for _, p := range status.Providers {
			if p.Status != models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
		}
	}

	if h.flags != nil {
		status.ActiveDegradationFlags = h.flags.Disabled(r.Context())
	}

	response.OK(w, r, status)
}

// pingAll pings every subsystem concurrently under one shared deadline.
func (h *OpsHandler) pingAll(ctx context.Context) []models.SubsystemStatus {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.subsystems))
	for name := range h.subsystems {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.SubsystemStatus, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			start := time.Now()
			err := h.subsystems[name].Ping(ctx)
			s := models.SubsystemStatus{
				Name:      name,
				Status:    models.HealthStatusOK,
				LatencyMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				detail := err.Error()
				s.Status = models.HealthStatusFail
				s.Detail = &detail
			}
			out[i] = s
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (h *OpsHandler) providers() []models.ProviderStatus {
	if h.registry == nil {
		return []models.ProviderStatus{}
	}

	all := h.registry.GetAllHealth()
	out := make([]models.ProviderStatus, 0, len(all))
	for _, ph := range all {
		p := models.ProviderStatus{
			Provider:            ph.Name,
			Status:              providerStatus(ph),
			CircuitState:        ph.CircuitState.String(),
			ConsecutiveFailures: ph.ConsecutiveFailures,
			Requests:            ph.Counts.Requests,
			Failures:            ph.Counts.TotalFailures,
		}
		if ph.LastSuccessAt != nil {
			ts := models.Timestamp(*ph.LastSuccessAt)
			p.LastSuccessAt = &ts
		}
		if ph.LastFailureAt != nil {
			ts := models.Timestamp(*ph.LastFailureAt)
			p.LastFailureAt = &ts
		}
		if ph.LastError != "" {
			msg := ph.LastError
			p.Message = &msg
		}
		out = append(out, p)
	}
	return out
}

func providerStatus(ph *resilience.ProviderHealth) models.HealthStatus {
	switch {
	case ph.IsUnhealthy():
		return models.HealthStatusFail
	case ph.IsDegraded():
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

package server

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// Health represents the complete health check response
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Commit     string                     `json:"commit,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs int64           `json:"latency_ms"`
}

// Latency above these marks reports the component as degraded.
const (
	dbSlow   = time.Second
	blobSlow = 2 * time.Second
)

// handleHealth checks the metadata store and the blob store. Degraded
// still answers 200; any component down answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := Health{
		Timestamp: time.Now().UTC(),
		Version:   s.cfg.Version,
		Commit:    s.cfg.Commit,
		Components: map[string]ComponentHealth{
			"database": checkComponent(ctx, "database", dbSlow, s.deps.Registry.Ping),
			"storage":  checkComponent(ctx, "storage", blobSlow, s.deps.Blobs.Ping),
		},
	}
	health.Status = overallHealth(health.Components)

	status := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// handleLive is a liveness probe: the process is running.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func checkComponent(ctx context.Context, name string, slow time.Duration, ping func(context.Context) error) ComponentHealth {
	start := time.Now()
	err := ping(ctx)
	latency := time.Since(start)

	switch {
	case err != nil:
		return ComponentHealth{
			Status:    ComponentStatusDown,
			Message:   name + " unavailable",
			LatencyMs: latency.Milliseconds(),
		}
	case latency > slow:
		return ComponentHealth{
			Status:    ComponentStatusDegraded,
			Message:   name + " latency high",
			LatencyMs: latency.Milliseconds(),
		}
	}
	return ComponentHealth{Status: ComponentStatusUp, LatencyMs: latency.Milliseconds()}
}

// overallHealth calculates overall health from component statuses
func overallHealth(components map[string]ComponentHealth) HealthStatus {
	var down, degraded int
	for _, c := range components {
		switch c.Status {
		case ComponentStatusDown:
			down++
		case ComponentStatusDegraded:
			degraded++
		}
	}
	if down > 0 {
		return HealthStatusUnhealthy
	}
	if degraded > 0 {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

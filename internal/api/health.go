package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const probeTimeout = 1 * time.Second

// dependencyProbe pings one backing service. Non-critical probes degrade
// readiness instead of failing it: with Redis down, approvals and
// notifications suffer but booking, cancelling and completing still work.
type dependencyProbe struct {
	name     string
	critical bool
	ping     func(ctx context.Context) error
}

type HealthHandler struct {
	probes  []dependencyProbe
	env     string
	version string
}

func NewHealthHandler(pgPool *pgxpool.Pool, rdb *redis.Client, env, version string) *HealthHandler {
	return &HealthHandler{
		env:     env,
		version: version,
		probes: []dependencyProbe{
			{
				name:     "appointment-store",
				critical: true,
				ping:     pgPool.Ping,
			},
			{
				name: "approval-lock-redis",
				ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			},
		},
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	deps := make(map[string]string, len(h.probes))
	status := "ok"

	for _, probe := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := probe.ping(ctx)
		cancel()

		if err == nil {
			deps[probe.name] = "ok"
			continue
		}
		deps[probe.name] = "down"
		if probe.critical {
			status = "error"
		} else if status == "ok" {
			status = "degraded"
		}
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}

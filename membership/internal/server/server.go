// Package server provides the HTTP surface of the membership service:
// liveness, readiness and Prometheus metrics.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cohortlabs/cohort-stack/common/httputil"
	"github.com/cohortlabs/cohort-stack/common/logging"
	"github.com/cohortlabs/cohort-stack/common/messaging"
	"github.com/cohortlabs/cohort-stack/common/middleware"
)

const serviceName = "membership"

// readyTimeout bounds each readiness probe.
const readyTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints.
type Handler struct {
	db     Pinger
	broker messaging.Client
	logger *logging.Logger
}

// NewHandler creates a Handler. broker may be nil when the service runs
// without a message broker.
func NewHandler(db Pinger, broker messaging.Client, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{db: db, broker: broker, logger: logger}
}

// NewRouter constructs a ServeMux with the health and metrics routes.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.HandleFunc("GET /readyz", h.ReadyCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: serviceName,
	})
}

// ReadyCheck handles GET /readyz. It fails while the database or the broker
// is unreachable.
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if err := h.db.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "database not ready", logging.Error(err))
		checks["database"] = err.Error()
		ready = false
	} else {
		checks["database"] = "ok"
	}

	if h.broker != nil {
		status := messaging.CheckClientHealth(ctx, h.broker)
		if !status.Connected {
			h.logger.WarnContext(ctx, "message broker not ready", "reason", status.Error)
			checks["broker"] = status.Error
			ready = false
		} else {
			checks["broker"] = "ok"
		}
	}

	if !ready {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "unavailable",
			Service: serviceName,
			Checks:  checks,
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "ready",
		Service: serviceName,
		Checks:  checks,
	})
}

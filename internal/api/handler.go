package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/shelflife/internal/reminder"
)

const (
	jobExecutedText = "reminder job executed"
	aliveText       = "expiry reminder is alive"
)

// Sweeper runs one reminder sweep.
type Sweeper interface {
	RunSweep(ctx context.Context) (*reminder.Report, error)
}

// HealthChecker reports whether the product store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler serves the sweep trigger and liveness endpoints.
type Handler struct {
	logger       *zap.Logger
	sweeper      Sweeper
	health       HealthChecker
	sweepTimeout time.Duration
}

// NewHandler creates a handler. health may be nil, in which case /health
// always reports OK. A zero sweepTimeout leaves sweeps unbounded.
func NewHandler(logger *zap.Logger, sweeper Sweeper, health HealthChecker, sweepTimeout time.Duration) *Handler {
	return &Handler{
		logger:       logger,
		sweeper:      sweeper,
		health:       health,
		sweepTimeout: sweepTimeout,
	}
}

// RunJob handles GET /run-job. The sweep is detached from the request so a
// caller hanging up does not abort it half way through.
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	if h.sweepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.sweepTimeout)
		defer cancel()
	}

	report, err := h.sweeper.RunSweep(ctx)
	if err != nil {
		if errors.Is(err, reminder.ErrSweepInProgress) {
			h.writeError(w, http.StatusConflict, "sweep_in_progress", "Reminder job already running", "")
			return
		}
		h.logger.Error("reminder job failed",
			zap.Error(err),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
		h.writeError(w, http.StatusInternalServerError, "store_error", "Reminder job failed", "")
		return
	}

	if r.URL.Query().Get("format") == "json" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(report.Summary())
		return
	}

	writeText(w, http.StatusOK, jobExecutedText)
}

// Root handles GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, aliveText)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.health.Health(ctx); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			h.writeError(w, http.StatusServiceUnavailable, "unhealthy", "Product store unreachable", "")
			return
		}
	}
	writeText(w, http.StatusOK, "OK")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// Package http exposes the pipeline's caller surface as a JSON API. The
// dashboard and CLI are consumers of these endpoints; they hold no state
// of their own.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hibiken/asynq"

	"github.com/paperledger/paperledger/internal/archive"
	"github.com/paperledger/paperledger/internal/pipeline"
	"github.com/paperledger/paperledger/internal/platform/httpx"
	"github.com/paperledger/paperledger/jobs"
)

// Enqueuer submits reconciliation runs to the background queue.
type Enqueuer interface {
	EnqueueReconcileRun(ctx context.Context, payload jobs.ReconcileRunPayload) (*asynq.TaskInfo, error)
}

// Handler wires the pipeline control endpoints.
type Handler struct {
	logger   *slog.Logger
	engine   *pipeline.Engine
	poller   *pipeline.Poller
	trail    archive.Store
	enqueuer Enqueuer
}

// NewHandler constructs a Handler. Trail and enqueuer may be nil; the
// corresponding endpoints then answer 404 and 503.
func NewHandler(logger *slog.Logger, engine *pipeline.Engine, poller *pipeline.Poller, trail archive.Store, enqueuer Enqueuer) *Handler {
	return &Handler{
		logger:   logger,
		engine:   engine,
		poller:   poller,
		trail:    trail,
		enqueuer: enqueuer,
	}
}

// processOnce runs one synchronous cycle and returns its outcomes.
func (h *Handler) processOnce(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.ProcessOnce(r.Context())
	if err != nil {
		h.logger.Error("process once", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Cycle Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// processAsync enqueues a cycle on the background queue.
func (h *Handler) processAsync(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "background queue is not configured")
		return
	}
	info, err := h.enqueuer.EnqueueReconcileRun(r.Context(), jobs.ReconcileRunPayload{RequestedBy: "api"})
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			httpx.Accepted(w, map[string]string{"status": "already queued"})
			return
		}
		h.logger.Error("enqueue reconcile run", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.Accepted(w, map[string]string{"status": "queued", "task_id": info.ID})
}

func (h *Handler) pollerStart(w http.ResponseWriter, r *http.Request) {
	// The poller must outlive this request, so it runs off the server's
	// base context rather than the request context.
	if err := h.poller.Start(context.WithoutCancel(r.Context())); err != nil {
		if errors.Is(err, pipeline.ErrPollerRunning) {
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"running": true})
}

func (h *Handler) pollerStop(w http.ResponseWriter, r *http.Request) {
	if err := h.poller.Stop(); err != nil {
		if errors.Is(err, pipeline.ErrPollerStopped) {
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"running": false})
}

func (h *Handler) pollerStatus(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]bool{"running": h.poller.Running()})
}

// stats re-derives counters from the remote tag state on every call.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.logger.Error("load stats", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Stats Unavailable", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) documents(w http.ResponseWriter, r *http.Request) {
	if h.trail == nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	entries, err := h.trail.ListEntries(r.Context(), limitParam(r))
	if err != nil {
		h.logger.Error("list trail entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if entries == nil {
		entries = []archive.Entry{}
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	if h.trail == nil {
		httpx.RespondError(w, httpx.ErrNotFound)
		return
	}
	lines, err := h.trail.ListLogs(r.Context(), limitParam(r))
	if err != nil {
		h.logger.Error("list trail logs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if lines == nil {
		lines = []archive.LogLine{}
	}
	httpx.JSON(w, http.StatusOK, lines)
}

func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 50
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}

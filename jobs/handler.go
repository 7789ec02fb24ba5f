package jobs

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/tindahan-erp/tindahan/internal/platform/httpx"
)

// Handler exposes queue health and on-demand job triggers over HTTP.
type Handler struct {
	inspector *asynq.Inspector
	client    *Client
	logger    *slog.Logger
}

// NewHandler builds the jobs HTTP handler.
func NewHandler(inspector *asynq.Inspector, client *Client, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, client: client, logger: logger}
}

// MountRoutes attaches the job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/run/ledger-integrity", h.runLedgerIntegrity)
	r.Post("/run/low-stock-scan", h.runLowStockScan)
}

type queueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Processed int    `json:"processed"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, queueHealth{Queue: QueueDefault})
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("queue info", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "queue inspection failed")
		return
	}
	httpx.JSON(w, http.StatusOK, queueHealth{
		Queue:     info.Queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Processed: info.Processed,
	})
}

type enqueuedResponse struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}

func (h *Handler) runLedgerIntegrity(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, h.client.EnqueueLedgerIntegrity)
}

func (h *Handler) runLowStockScan(w http.ResponseWriter, r *http.Request) {
	h.enqueue(w, r, h.client.EnqueueLowStockScan)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) (*asynq.TaskInfo, error)) {
	if h.client == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "job client not configured")
		return
	}
	info, err := fn(r.Context())
	if err != nil {
		h.logger.Error("enqueue job", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "enqueue failed")
		return
	}
	httpx.JSON(w, http.StatusAccepted, enqueuedResponse{TaskID: info.ID, Queue: info.Queue})
}

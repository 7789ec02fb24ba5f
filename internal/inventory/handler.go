package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tindahan-erp/tindahan/internal/platform/httpx"
)

// Handler exposes stock reads over JSON. Mutations go through sales and
// purchases; this surface only reports.
type Handler struct {
	logger *slog.Logger
	engine *Engine
}

// NewHandler builds the inventory handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{id}/on-hand", h.onHand)
	r.Get("/products/{id}/lots", h.lots)
	r.Get("/products/{id}/quote", h.quote)
	r.Get("/products/{id}/average-cost", h.averageCost)
	r.Get("/low-stock", h.lowStock)
}

type lotResponse struct {
	ID           int64      `json:"id"`
	ReceiptSeq   int64      `json:"receipt_seq"`
	OriginalQty  int64      `json:"original_qty"`
	RemainingQty int64      `json:"remaining_qty"`
	UnitCost     string     `json:"unit_cost"`
	ReceivedAt   time.Time  `json:"received_at"`
	VoidedAt     *time.Time `json:"voided_at,omitempty"`
}

func productID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) onHand(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be numeric")
		return
	}
	qty, err := h.engine.OnHand(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": id, "on_hand": qty})
}

func (h *Handler) lots(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be numeric")
		return
	}
	lots, err := h.engine.OpenLots(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]lotResponse, 0, len(lots))
	for _, l := range lots {
		out = append(out, lotResponse{
			ID:           l.ID,
			ReceiptSeq:   l.ReceiptSeq,
			OriginalQty:  l.OriginalQty,
			RemainingQty: l.RemainingQty,
			UnitCost:     l.UnitCost.StringFixed(2),
			ReceivedAt:   l.ReceivedAt,
			VoidedAt:     l.VoidedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be numeric")
		return
	}
	qty, err := strconv.ParseInt(r.URL.Query().Get("qty"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Quantity", "qty must be numeric")
		return
	}
	cost, err := h.engine.QuoteCost(r.Context(), id, qty)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": id, "qty": qty, "cost": cost.StringFixed(2)})
}

func (h *Handler) averageCost(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be numeric")
		return
	}
	avg, err := h.engine.WeightedAverageCost(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product_id": id, "average_cost": avg.StringFixed(2)})
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.engine.LowStock(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(levels))
	for _, lvl := range levels {
		out = append(out, map[string]any{
			"product_id": lvl.Product.ID,
			"sku":        lvl.Product.SKU,
			"name":       lvl.Product.Name,
			"on_hand":    lvl.OnHand,
			"threshold":  lvl.Product.ReorderThreshold,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrLotNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("inventory request failed", slog.String("error", err.Error()))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

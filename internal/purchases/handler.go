package purchases

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tindahan-erp/tindahan/internal/inventory"
	"github.com/tindahan-erp/tindahan/internal/ledger"
	"github.com/tindahan-erp/tindahan/internal/platform/cache"
	"github.com/tindahan-erp/tindahan/internal/platform/httpx"
)

// Handler exposes the purchase flows over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	reports  *cache.JSONCache
	validate *validator.Validate
}

// NewHandler builds the purchases handler. reports may be nil; when set, the
// trial balance cache is dropped after every posting flow.
func NewHandler(logger *slog.Logger, service *Service, reports *cache.JSONCache) *Handler {
	return &Handler{logger: logger, service: service, reports: reports, validate: validator.New()}
}

// MountRoutes registers purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createPurchase)
	r.Get("/", h.listPurchases)
	r.Get("/{id}", h.getPurchase)
	r.Post("/{id}/void", h.voidPurchase)
}

type purchaseLineRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Qty       int64  `json:"qty" validate:"required,gt=0"`
	UnitCost  string `json:"unit_cost" validate:"required"`
}

type createPurchaseRequest struct {
	SupplierName  string                `json:"supplier_name" validate:"max=120"`
	PaymentMethod string                `json:"payment_method" validate:"required,oneof=cash on_account"`
	VATable       bool                  `json:"vatable"`
	Lines         []purchaseLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type purchaseLineResponse struct {
	ProductID int64  `json:"product_id"`
	Qty       int64  `json:"qty"`
	UnitCost  string `json:"unit_cost"`
	LineTotal string `json:"line_total"`
	LotID     int64  `json:"lot_id"`
}

type purchaseResponse struct {
	ID             int64                  `json:"id"`
	DocumentNo     string                 `json:"document_no"`
	SupplierName   string                 `json:"supplier_name,omitempty"`
	PaymentMethod  string                 `json:"payment_method"`
	VATable        bool                   `json:"vatable"`
	Subtotal       string                 `json:"subtotal"`
	VAT            string                 `json:"vat"`
	Total          string                 `json:"total"`
	Status         string                 `json:"status"`
	JournalEntryID int64                  `json:"journal_entry_id"`
	CreatedAt      time.Time              `json:"created_at"`
	VoidedAt       *time.Time             `json:"voided_at,omitempty"`
	Lines          []purchaseLineResponse `json:"lines,omitempty"`
}

func toPurchaseResponse(p Purchase) purchaseResponse {
	resp := purchaseResponse{
		ID:             p.ID,
		DocumentNo:     p.DocumentNo,
		SupplierName:   p.SupplierName,
		PaymentMethod:  string(p.PaymentMethod),
		VATable:        p.VATable,
		Subtotal:       p.Subtotal.StringFixed(2),
		VAT:            p.VAT.StringFixed(2),
		Total:          p.Total.StringFixed(2),
		Status:         string(p.Status),
		JournalEntryID: p.JournalEntryID,
		CreatedAt:      p.CreatedAt,
		VoidedAt:       p.VoidedAt,
	}
	for _, l := range p.Lines {
		resp.Lines = append(resp.Lines, purchaseLineResponse{
			ProductID: l.ProductID,
			Qty:       l.Qty,
			UnitCost:  l.UnitCost.StringFixed(2),
			LineTotal: l.LineTotal.StringFixed(2),
			LotID:     l.LotID,
		})
	}
	return resp
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var req createPurchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := RecordPurchaseInput{
		SupplierName:  req.SupplierName,
		PaymentMethod: PaymentMethod(req.PaymentMethod),
		VATable:       req.VATable,
	}
	for _, l := range req.Lines {
		unitCost, err := decimal.NewFromString(l.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
			return
		}
		in.Lines = append(in.Lines, PurchaseLineInput{ProductID: l.ProductID, Qty: l.Qty, UnitCost: unitCost})
	}

	purchase, err := h.service.RecordPurchase(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.dropTrialBalance(r)
	httpx.JSON(w, http.StatusCreated, toPurchaseResponse(purchase))
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	purchases, err := h.service.ListPurchases(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]purchaseResponse, 0, len(purchases))
	for _, p := range purchases {
		out = append(out, toPurchaseResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "purchase id must be numeric")
		return
	}
	purchase, err := h.service.GetPurchase(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPurchaseResponse(purchase))
}

func (h *Handler) voidPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "purchase id must be numeric")
		return
	}
	purchase, err := h.service.VoidPurchase(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.dropTrialBalance(r)
	httpx.JSON(w, http.StatusOK, toPurchaseResponse(purchase))
}

func (h *Handler) dropTrialBalance(r *http.Request) {
	if h.reports == nil {
		return
	}
	if err := h.reports.Invalidate(r.Context(), ledger.TrialBalanceCacheKey); err != nil && h.logger != nil {
		h.logger.Warn("trial balance cache invalidation failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPurchaseNotFound) || errors.Is(err, inventory.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyVoided) || errors.Is(err, ledger.ErrAlreadyReversed):
		httpx.Problem(w, http.StatusConflict, "Already Voided", err.Error())
	case errors.Is(err, inventory.ErrLotPartiallyConsumed):
		httpx.Problem(w, http.StatusConflict, "Lot In Use", err.Error())
	case errors.Is(err, ErrEmptyPurchase) || errors.Is(err, ErrInvalidPayment) ||
		errors.Is(err, ErrInvalidAmount) || errors.Is(err, inventory.ErrInvalidQuantity) ||
		errors.Is(err, inventory.ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("purchases request failed", slog.String("error", err.Error()))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

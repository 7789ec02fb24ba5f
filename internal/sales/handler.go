package sales

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

// Handler exposes the sales flows over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	reports  *cache.JSONCache
	validate *validator.Validate
}

// NewHandler builds the sales handler. reports may be nil; when set, the
// trial balance cache is dropped after every posting flow.
func NewHandler(logger *slog.Logger, service *Service, reports *cache.JSONCache) *Handler {
	return &Handler{logger: logger, service: service, reports: reports, validate: validator.New()}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createSale)
	r.Get("/", h.listSales)
	r.Get("/{id}", h.getSale)
	r.Post("/{id}/void", h.voidSale)
	r.Post("/{id}/settlements", h.settleSale)
}

type saleLineRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Qty       int64  `json:"qty" validate:"required,gt=0"`
	UnitPrice string `json:"unit_price"`
}

type createSaleRequest struct {
	DocumentKind  string            `json:"document_kind" validate:"required,oneof=OR SI"`
	CustomerName  string            `json:"customer_name" validate:"max=120"`
	PaymentMethod string            `json:"payment_method" validate:"required,oneof=cash on_account"`
	DiscountKind  string            `json:"discount_kind" validate:"omitempty,oneof=none percent fixed sc_pwd"`
	DiscountValue string            `json:"discount_value"`
	Lines         []saleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type settleSaleRequest struct {
	Amount string `json:"amount" validate:"required"`
	CWT    string `json:"cwt"`
}

type saleLineResponse struct {
	ProductID int64  `json:"product_id"`
	Qty       int64  `json:"qty"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type saleResponse struct {
	ID             int64              `json:"id"`
	DocumentKind   string             `json:"document_kind"`
	DocumentNo     string             `json:"document_no"`
	CustomerName   string             `json:"customer_name,omitempty"`
	PaymentMethod  string             `json:"payment_method"`
	DiscountKind   string             `json:"discount_kind"`
	Gross          string             `json:"gross"`
	Discount       string             `json:"discount"`
	Net            string             `json:"net"`
	VAT            string             `json:"vat"`
	Total          string             `json:"total"`
	COGS           string             `json:"cogs"`
	SettledAmount  string             `json:"settled_amount"`
	Status         string             `json:"status"`
	JournalEntryID int64              `json:"journal_entry_id"`
	CreatedAt      time.Time          `json:"created_at"`
	VoidedAt       *time.Time         `json:"voided_at,omitempty"`
	Lines          []saleLineResponse `json:"lines,omitempty"`
}

func toSaleResponse(s Sale) saleResponse {
	resp := saleResponse{
		ID:             s.ID,
		DocumentKind:   string(s.DocumentKind),
		DocumentNo:     s.DocumentNo,
		CustomerName:   s.CustomerName,
		PaymentMethod:  string(s.PaymentMethod),
		DiscountKind:   string(s.DiscountKind),
		Gross:          s.Gross.StringFixed(2),
		Discount:       s.Discount.StringFixed(2),
		Net:            s.Net.StringFixed(2),
		VAT:            s.VAT.StringFixed(2),
		Total:          s.Total.StringFixed(2),
		COGS:           s.COGS.StringFixed(2),
		SettledAmount:  s.SettledAmount.StringFixed(2),
		Status:         string(s.Status),
		JournalEntryID: s.JournalEntryID,
		CreatedAt:      s.CreatedAt,
		VoidedAt:       s.VoidedAt,
	}
	for _, l := range s.Lines {
		resp.Lines = append(resp.Lines, saleLineResponse{
			ProductID: l.ProductID,
			Qty:       l.Qty,
			UnitPrice: l.UnitPrice.StringFixed(2),
			LineTotal: l.LineTotal.StringFixed(2),
		})
	}
	return resp
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	discountValue, err := parseAmount(req.DiscountValue)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
		return
	}
	in := RecordSaleInput{
		DocumentKind:  DocumentKind(req.DocumentKind),
		CustomerName:  req.CustomerName,
		PaymentMethod: PaymentMethod(req.PaymentMethod),
		DiscountKind:  DiscountKind(req.DiscountKind),
		DiscountValue: discountValue,
	}
	if in.DiscountKind == "" {
		in.DiscountKind = DiscountNone
	}
	for _, l := range req.Lines {
		price, err := parseAmount(l.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
			return
		}
		in.Lines = append(in.Lines, SaleLineInput{ProductID: l.ProductID, Qty: l.Qty, UnitPrice: price})
	}

	sale, err := h.service.RecordSale(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.dropTrialBalance(r)
	httpx.JSON(w, http.StatusCreated, toSaleResponse(sale))
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sales, err := h.service.ListSales(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]saleResponse, 0, len(sales))
	for _, s := range sales {
		out = append(out, toSaleResponse(s))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "sale id must be numeric")
		return
	}
	sale, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(sale))
}

func (h *Handler) voidSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "sale id must be numeric")
		return
	}
	sale, err := h.service.VoidSale(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.dropTrialBalance(r)
	httpx.JSON(w, http.StatusOK, toSaleResponse(sale))
}

func (h *Handler) settleSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "sale id must be numeric")
		return
	}
	var req settleSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
		return
	}
	cwt, err := parseAmount(req.CWT)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
		return
	}
	settlement, err := h.service.SettleSale(r.Context(), SettleSaleInput{SaleID: id, Amount: amount, CWT: cwt})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.dropTrialBalance(r)
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":               settlement.ID,
		"sale_id":          settlement.SaleID,
		"amount":           settlement.Amount.StringFixed(2),
		"cwt":              settlement.CWT.StringFixed(2),
		"journal_entry_id": settlement.JournalEntryID,
		"created_at":       settlement.CreatedAt,
	})
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
	case errors.Is(err, ErrSaleNotFound) || errors.Is(err, inventory.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrAlreadyVoided) || errors.Is(err, ledger.ErrAlreadyReversed):
		httpx.Problem(w, http.StatusConflict, "Already Voided", err.Error())
	case errors.Is(err, ErrSaleSettled):
		httpx.Problem(w, http.StatusConflict, "Sale Settled", err.Error())
	case errors.Is(err, ErrOverSettlement) || errors.Is(err, ErrNotOnAccount):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Settlement Rejected", err.Error())
	case errors.Is(err, ErrEmptySale) || errors.Is(err, ErrInvalidDiscount) ||
		errors.Is(err, ErrInvalidDocumentKind) || errors.Is(err, ErrInvalidPayment) ||
		errors.Is(err, ErrInvalidAmount) || errors.Is(err, inventory.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("sales request failed", slog.String("error", err.Error()))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

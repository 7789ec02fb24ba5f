package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tindahan-erp/tindahan/internal/platform/cache"
	"github.com/tindahan-erp/tindahan/internal/platform/httpx"
)

// TrialBalanceCacheKey is the report cache key for the trial balance. The
// sales and purchases handlers drop it too, since their flows post entries.
const TrialBalanceCacheKey = "ledger:trial-balance"

// Handler exposes journal reads, manual postings and the trial balance over
// JSON. The trial balance is served through the report cache when one is
// configured.
type Handler struct {
	logger   *slog.Logger
	poster   *Poster
	reports  *cache.JSONCache
	validate *validator.Validate
}

// NewHandler builds the ledger handler. reports may be nil.
func NewHandler(logger *slog.Logger, poster *Poster, reports *cache.JSONCache) *Handler {
	return &Handler{logger: logger, poster: poster, reports: reports, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/entries", h.listEntries)
	r.Get("/entries/{id}", h.getEntry)
	r.Post("/entries", h.postEntry)
	r.Post("/entries/{id}/reverse", h.reverseEntry)
	r.Get("/trial-balance", h.trialBalance)
}

type postingLineRequest struct {
	AccountID int64  `json:"account_id" validate:"required,gt=0"`
	Side      string `json:"side" validate:"required,oneof=DEBIT CREDIT"`
	Amount    string `json:"amount" validate:"required"`
	Memo      string `json:"memo" validate:"max=255"`
}

type postEntryRequest struct {
	SourceModule string               `json:"source_module" validate:"required,max=40"`
	SourceID     string               `json:"source_id" validate:"required,uuid"`
	Memo         string               `json:"memo" validate:"max=255"`
	Lines        []postingLineRequest `json:"lines" validate:"required,min=2,dive"`
}

type reverseEntryRequest struct {
	Memo string `json:"memo" validate:"max=255"`
}

type journalLineResponse struct {
	AccountID int64  `json:"account_id"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
	Memo      string `json:"memo,omitempty"`
}

type journalEntryResponse struct {
	ID           int64                 `json:"id"`
	Number       int64                 `json:"number"`
	Date         time.Time             `json:"date"`
	SourceModule string                `json:"source_module"`
	SourceID     string                `json:"source_id"`
	Memo         string                `json:"memo,omitempty"`
	Status       string                `json:"status"`
	ReversalOf   *int64                `json:"reversal_of,omitempty"`
	Lines        []journalLineResponse `json:"lines,omitempty"`
}

type accountBalanceResponse struct {
	AccountID int64  `json:"account_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
	Net       string `json:"net"`
}

func toEntryResponse(e JournalEntry) journalEntryResponse {
	resp := journalEntryResponse{
		ID:           e.ID,
		Number:       e.Number,
		Date:         e.Date,
		SourceModule: e.SourceModule,
		SourceID:     e.SourceID.String(),
		Memo:         e.Memo,
		Status:       string(e.Status),
		ReversalOf:   e.ReversalOf,
	}
	for _, l := range e.Lines {
		resp.Lines = append(resp.Lines, journalLineResponse{
			AccountID: l.AccountID,
			Debit:     l.Debit.StringFixed(2),
			Credit:    l.Credit.StringFixed(2),
			Memo:      l.Memo,
		})
	}
	return resp
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.poster.List(r.Context(), limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]journalEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be numeric")
		return
	}
	entry, err := h.poster.GetEntry(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	var req postEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sourceID, err := uuid.Parse(req.SourceID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Source", err.Error())
		return
	}
	in := PostingInput{
		SourceModule: req.SourceModule,
		SourceID:     sourceID,
		Memo:         req.Memo,
	}
	for _, l := range req.Lines {
		amount, err := decimal.NewFromString(l.Amount)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
			return
		}
		in.Lines = append(in.Lines, PostingLineInput{
			AccountID: l.AccountID,
			Side:      Side(l.Side),
			Amount:    amount,
			Memo:      l.Memo,
		})
	}

	entry, err := h.poster.Post(r.Context(), in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.dropTrialBalance(r)
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be numeric")
		return
	}
	// Body is optional; an empty memo falls back to the default.
	var req reverseEntryRequest
	_ = httpx.DecodeJSON(r, &req)
	reversal, err := h.poster.Reverse(r.Context(), ReverseInput{EntryID: id, Memo: req.Memo})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.dropTrialBalance(r)
	httpx.JSON(w, http.StatusCreated, toEntryResponse(reversal))
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	var cached []accountBalanceResponse
	if h.reports != nil {
		if err := h.reports.Get(r.Context(), TrialBalanceCacheKey, &cached); err == nil {
			httpx.JSON(w, http.StatusOK, cached)
			return
		}
	}
	balances, err := h.poster.TrialBalance(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]accountBalanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, accountBalanceResponse{
			AccountID: b.AccountID,
			Code:      b.Code,
			Name:      b.Name,
			Type:      string(b.Type),
			Debit:     b.Debit.StringFixed(2),
			Credit:    b.Credit.StringFixed(2),
			Net:       b.Net().StringFixed(2),
		})
	}
	if h.reports != nil {
		if err := h.reports.Set(r.Context(), TrialBalanceCacheKey, out); err != nil && h.logger != nil {
			h.logger.Warn("trial balance cache write failed", slog.String("error", err.Error()))
		}
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) dropTrialBalance(r *http.Request) {
	if h.reports == nil {
		return
	}
	if err := h.reports.Invalidate(r.Context(), TrialBalanceCacheKey); err != nil && h.logger != nil {
		h.logger.Warn("trial balance cache invalidation failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound) || errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyReversed) || errors.Is(err, ErrSourceAlreadyLinked):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrUnbalancedEntry) || errors.Is(err, ErrTooFewLines) || errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Posting Rejected", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("ledger request failed", slog.String("error", err.Error()))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

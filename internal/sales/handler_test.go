package sales

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tindahan-erp/tindahan/internal/ledger"
	"github.com/tindahan-erp/tindahan/internal/platform/cache"
)

func newTestHandler(t *testing.T, store *memoryStore) (*Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	reports := cache.NewJSONCache(client, time.Minute)
	return NewHandler(nil, newTestService(store), reports), mr
}

func TestRecordSaleDropsTrialBalanceCache(t *testing.T) {
	store := newMemoryStore(widget())
	store.addLot(1, 10, "50.00")
	h, mr := newTestHandler(t, store)
	require.NoError(t, mr.Set(ledger.TrialBalanceCacheKey, `[]`))

	r := chi.NewRouter()
	r.Route("/sales", h.MountRoutes)

	body := `{"document_kind":"OR","payment_method":"cash","lines":[{"product_id":1,"qty":1}]}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sales", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.False(t, mr.Exists(ledger.TrialBalanceCacheKey), "stale trial balance left in cache")
}

func TestVoidSaleDropsTrialBalanceCache(t *testing.T) {
	store := newMemoryStore(widget())
	store.addLot(1, 10, "50.00")
	h, mr := newTestHandler(t, store)

	sale, err := newTestService(store).RecordSale(context.Background(), RecordSaleInput{
		DocumentKind:  DocumentOR,
		PaymentMethod: PaymentCash,
		DiscountKind:  DiscountNone,
		Lines:         []SaleLineInput{{ProductID: 1, Qty: 1}},
	})
	require.NoError(t, err)
	require.NoError(t, mr.Set(ledger.TrialBalanceCacheKey, `[]`))

	r := chi.NewRouter()
	r.Route("/sales", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, fmt.Sprintf("/sales/%d/void", sale.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.False(t, mr.Exists(ledger.TrialBalanceCacheKey), "stale trial balance left in cache")
}

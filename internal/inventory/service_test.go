package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	products map[int64]Product
	lots     map[int64]*Lot
	txns     []Transaction
	nextLot  int64
	nextTxn  int64
}

func newMemoryRepo(products ...Product) *memoryRepo {
	r := &memoryRepo{products: make(map[int64]Product), lots: make(map[int64]*Lot)}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := r.clone()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		*r = *snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) clone() *memoryRepo {
	c := &memoryRepo{
		products: make(map[int64]Product, len(r.products)),
		lots:     make(map[int64]*Lot, len(r.lots)),
		txns:     append([]Transaction(nil), r.txns...),
		nextLot:  r.nextLot,
		nextTxn:  r.nextTxn,
	}
	for k, v := range r.products {
		c.products[k] = v
	}
	for k, v := range r.lots {
		lot := *v
		c.lots[k] = &lot
	}
	return c
}

func (r *memoryRepo) GetProduct(ctx context.Context, productID int64) (Product, error) {
	p, ok := r.products[productID]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	for _, p := range r.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return Product{}, ErrProductNotFound
}

func (r *memoryRepo) OpenLots(ctx context.Context, productID int64) ([]Lot, error) {
	return openLots(r, productID), nil
}

func (r *memoryRepo) OnHand(ctx context.Context, productID int64) (int64, error) {
	var qty int64
	for _, lot := range r.lots {
		if lot.ProductID == productID && lot.VoidedAt == nil {
			qty += lot.RemainingQty
		}
	}
	return qty, nil
}

func (r *memoryRepo) LowStock(ctx context.Context) ([]StockLevel, error) {
	var levels []StockLevel
	for _, p := range r.products {
		onHand, _ := r.OnHand(ctx, p.ID)
		if onHand <= p.ReorderThreshold {
			levels = append(levels, StockLevel{Product: p, OnHand: onHand})
		}
	}
	return levels, nil
}

func openLots(r *memoryRepo, productID int64) []Lot {
	var lots []Lot
	for _, lot := range r.lots {
		if lot.ProductID == productID && lot.RemainingQty > 0 && lot.VoidedAt == nil {
			lots = append(lots, *lot)
		}
	}
	for i := 0; i < len(lots); i++ {
		for j := i + 1; j < len(lots); j++ {
			if lots[j].ReceiptSeq < lots[i].ReceiptSeq {
				lots[i], lots[j] = lots[j], lots[i]
			}
		}
	}
	return lots
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return tx.repo.GetProduct(ctx, productID)
}

func (tx *memoryTx) GetProductBySKU(ctx context.Context, sku string) (Product, error) {
	return tx.repo.GetProductBySKU(ctx, sku)
}

func (tx *memoryTx) OpenLotsForUpdate(ctx context.Context, productID int64) ([]Lot, error) {
	return openLots(tx.repo, productID), nil
}

func (tx *memoryTx) GetLotForUpdate(ctx context.Context, lotID int64) (Lot, error) {
	lot, ok := tx.repo.lots[lotID]
	if !ok {
		return Lot{}, ErrLotNotFound
	}
	return *lot, nil
}

func (tx *memoryTx) NextReceiptSeq(ctx context.Context, productID int64) (int64, error) {
	var max int64
	for _, lot := range tx.repo.lots {
		if lot.ProductID == productID && lot.ReceiptSeq > max {
			max = lot.ReceiptSeq
		}
	}
	return max + 1, nil
}

func (tx *memoryTx) InsertLot(ctx context.Context, lot Lot) (int64, error) {
	tx.repo.nextLot++
	lot.ID = tx.repo.nextLot
	tx.repo.lots[lot.ID] = &lot
	return lot.ID, nil
}

func (tx *memoryTx) UpdateLotRemaining(ctx context.Context, lotID, remaining int64) error {
	lot, ok := tx.repo.lots[lotID]
	if !ok {
		return ErrLotNotFound
	}
	lot.RemainingQty = remaining
	return nil
}

func (tx *memoryTx) VoidLot(ctx context.Context, lotID int64, at time.Time) error {
	lot, ok := tx.repo.lots[lotID]
	if !ok {
		return ErrLotNotFound
	}
	lot.RemainingQty = 0
	lot.VoidedAt = &at
	return nil
}

func (tx *memoryTx) InsertTransaction(ctx context.Context, txn Transaction) (int64, error) {
	tx.repo.nextTxn++
	txn.ID = tx.repo.nextTxn
	tx.repo.txns = append(tx.repo.txns, txn)
	return txn.ID, nil
}

func (tx *memoryTx) TransactionsBySource(ctx context.Context, module string, sourceID uuid.UUID) ([]Transaction, error) {
	var out []Transaction
	for _, t := range tx.repo.txns {
		if t.SourceModule == module && t.SourceID == sourceID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (tx *memoryTx) DeleteTransactionsBySource(ctx context.Context, module string, sourceID uuid.UUID) error {
	kept := tx.repo.txns[:0]
	for _, t := range tx.repo.txns {
		if t.SourceModule != module || t.SourceID != sourceID {
			kept = append(kept, t)
		}
	}
	tx.repo.txns = kept
	return nil
}

func cost(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func seedTwoLots(t *testing.T, repo *memoryRepo, engine *Engine) (Lot, Lot) {
	t.Helper()
	ctx := context.Background()
	lot1, err := engine.Receive(ctx, ReceiveInput{ProductID: 1, Qty: 10, UnitCost: cost("5.00"), SourceModule: "purchases", SourceID: uuid.New()})
	require.NoError(t, err)
	lot2, err := engine.Receive(ctx, ReceiveInput{ProductID: 1, Qty: 5, UnitCost: cost("6.00"), SourceModule: "purchases", SourceID: uuid.New()})
	require.NoError(t, err)
	return lot1, lot2
}

func TestConsumeOldestFirst(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "WIDGET"})
	engine := NewEngine(repo, nil)
	ctx := context.Background()
	lot1, lot2 := seedTwoLots(t, repo, engine)

	result, err := engine.Consume(ctx, ConsumeInput{ProductID: 1, Qty: 12, SourceModule: "sales", SourceID: uuid.New()})
	require.NoError(t, err)
	require.True(t, result.Total.Equal(cost("62.00")), "got %s", result.Total)
	require.Len(t, result.Lines, 2)
	require.Equal(t, lot1.ID, result.Lines[0].LotID)
	require.Equal(t, int64(10), result.Lines[0].Qty)
	require.Equal(t, lot2.ID, result.Lines[1].LotID)
	require.Equal(t, int64(2), result.Lines[1].Qty)

	require.Equal(t, int64(0), repo.lots[lot1.ID].RemainingQty)
	require.Equal(t, int64(3), repo.lots[lot2.ID].RemainingQty)
}

func TestConsumeInsufficientLeavesLotsUntouched(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "WIDGET"})
	engine := NewEngine(repo, nil)
	ctx := context.Background()
	lot1, lot2 := seedTwoLots(t, repo, engine)

	_, err := engine.Consume(ctx, ConsumeInput{ProductID: 1, Qty: 20, SourceModule: "sales", SourceID: uuid.New()})
	require.ErrorIs(t, err, ErrInsufficientStock)

	require.Equal(t, int64(10), repo.lots[lot1.ID].RemainingQty)
	require.Equal(t, int64(5), repo.lots[lot2.ID].RemainingQty)
	require.Empty(t, repo.txns)
}

func TestConsumePreservesTotalQuantity(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "WIDGET"})
	engine := NewEngine(repo, nil)
	ctx := context.Background()
	seedTwoLots(t, repo, engine)

	before, err := engine.OnHand(ctx, 1)
	require.NoError(t, err)

	_, err = engine.Consume(ctx, ConsumeInput{ProductID: 1, Qty: 7, SourceModule: "sales", SourceID: uuid.New()})
	require.NoError(t, err)

	after, err := engine.OnHand(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, before-7, after)
	for _, lot := range repo.lots {
		require.GreaterOrEqual(t, lot.RemainingQty, int64(0))
	}
}

func TestConsumeTieBrokenByReceiptSeq(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "WIDGET"})
	engine := NewEngine(repo, nil)
	ctx := context.Background()

	// Two receipts at the exact same instant still consume in receipt order.
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	first, err := engine.Receive(ctx, ReceiveInput{ProductID: 1, Qty: 3, UnitCost: cost("2.00"), SourceModule: "purchases", SourceID: uuid.New(), AsOf: at})
	require.NoError(t, err)
	_, err = engine.Receive(ctx, ReceiveInput{ProductID: 1, Qty: 3, UnitCost: cost("9.00"), SourceModule: "purchases", SourceID: uuid.New(), AsOf: at})
	require.NoError(t, err)

	result, err := engine.Consume(ctx, ConsumeInput{ProductID: 1, Qty: 3, SourceModule: "sales", SourceID: uuid.New()})
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	require.Equal(t, first.ID, result.Lines[0].LotID)
	require.True(t, result.Total.Equal(cost("6.00")))
}

func TestReceiveValidation(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "WIDGET"})
	engine := NewEngine(repo, nil)
	ctx := context.Background()

	_, err := engine.Receive(ctx, ReceiveInput{ProductID: 1, Qty: 0, UnitCost: cost("1.00")})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = engine.Receive(ctx, ReceiveInput{ProductID: 1, Qty: 1, UnitCost: cost("-1.00")})
	require.ErrorIs(t, err, ErrInvalidUnitCost)

	_, err = engine.Receive(ctx, ReceiveInput{ProductID: 42, Qty: 1, UnitCost: cost("1.00")})
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestReverseConsumptionRestoresLots(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "WIDGET"})
	engine := NewEngine(repo, nil)
	ctx := context.Background()
	lot1, lot2 := seedTwoLots(t, repo, engine)

	saleID := uuid.New()
	_, err := engine.Consume(ctx, ConsumeInput{ProductID: 1, Qty: 12, SourceModule: "sales", SourceID: saleID})
	require.NoError(t, err)

	restored, err := engine.ReverseConsumption(ctx, "sales", saleID)
	require.NoError(t, err)
	require.Equal(t, int64(12), restored[1])
	require.Equal(t, int64(10), repo.lots[lot1.ID].RemainingQty)
	require.Equal(t, int64(5), repo.lots[lot2.ID].RemainingQty)
	require.Empty(t, repo.txns, "consumption records removed on reversal")

	_, err = engine.ReverseConsumption(ctx, "sales", saleID)
	require.ErrorIs(t, err, ErrNothingToReverse)
}

func TestReverseConsumptionMismatch(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "WIDGET"})
	engine := NewEngine(repo, nil)
	ctx := context.Background()
	lot1, _ := seedTwoLots(t, repo, engine)

	saleID := uuid.New()
	_, err := engine.Consume(ctx, ConsumeInput{ProductID: 1, Qty: 12, SourceModule: "sales", SourceID: saleID})
	require.NoError(t, err)

	// Tamper with the lot so restoring would exceed its original quantity.
	repo.lots[lot1.ID].RemainingQty = 5

	_, err = engine.ReverseConsumption(ctx, "sales", saleID)
	require.ErrorIs(t, err, ErrReversalMismatch)
}

func TestReverseReceipt(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "WIDGET"})
	engine := NewEngine(repo, nil)
	ctx := context.Background()
	lot1, lot2 := seedTwoLots(t, repo, engine)

	// Intact lot voids cleanly.
	require.NoError(t, engine.ReverseReceipt(ctx, lot2.ID))
	require.NotNil(t, repo.lots[lot2.ID].VoidedAt)

	// A lot sales already drew from cannot be unwound.
	_, err := engine.Consume(ctx, ConsumeInput{ProductID: 1, Qty: 4, SourceModule: "sales", SourceID: uuid.New()})
	require.NoError(t, err)
	err = engine.ReverseReceipt(ctx, lot1.ID)
	require.ErrorIs(t, err, ErrLotPartiallyConsumed)
}

func TestQuoteCostDoesNotMutate(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "WIDGET"})
	engine := NewEngine(repo, nil)
	ctx := context.Background()
	lot1, lot2 := seedTwoLots(t, repo, engine)

	quote, err := engine.QuoteCost(ctx, 1, 12)
	require.NoError(t, err)
	require.True(t, quote.Equal(cost("62.00")))
	require.Equal(t, int64(10), repo.lots[lot1.ID].RemainingQty)
	require.Equal(t, int64(5), repo.lots[lot2.ID].RemainingQty)

	_, err = engine.QuoteCost(ctx, 1, 100)
	require.ErrorIs(t, err, ErrInsufficientStock)
}

func TestWeightedAverageCost(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, SKU: "WIDGET"})
	engine := NewEngine(repo, nil)
	ctx := context.Background()
	seedTwoLots(t, repo, engine)

	// (10*5.00 + 5*6.00) / 15 = 5.33 (banker's rounding)
	avg, err := engine.WeightedAverageCost(ctx, 1)
	require.NoError(t, err)
	require.True(t, avg.Equal(cost("5.33")), "got %s", avg)
}

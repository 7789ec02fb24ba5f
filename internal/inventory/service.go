package inventory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine implements FIFO lot costing: oldest receipt first, all-or-nothing
// consumption, compensating restores on void.
type Engine struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine builds an Engine.
func NewEngine(repo Repository, logger *slog.Logger) *Engine {
	return &Engine{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Receive creates a new lot in its own transaction.
func (e *Engine) Receive(ctx context.Context, in ReceiveInput) (Lot, error) {
	var lot Lot
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		lot, err = e.ReceiveIn(ctx, tx, in)
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	return lot, nil
}

// ReceiveIn creates a new lot within an already-open transaction. The receipt
// sequence comes from stored lots (max + 1), not process state.
func (e *Engine) ReceiveIn(ctx context.Context, tx TxRepository, in ReceiveInput) (Lot, error) {
	if in.Qty <= 0 {
		return Lot{}, ErrInvalidQuantity
	}
	if in.UnitCost.IsNegative() {
		return Lot{}, ErrInvalidUnitCost
	}
	if _, err := tx.GetProduct(ctx, in.ProductID); err != nil {
		return Lot{}, err
	}
	seq, err := tx.NextReceiptSeq(ctx, in.ProductID)
	if err != nil {
		return Lot{}, err
	}
	receivedAt := in.AsOf
	if receivedAt.IsZero() {
		receivedAt = e.now().UTC()
	}
	lot := Lot{
		ProductID:    in.ProductID,
		ReceiptSeq:   seq,
		OriginalQty:  in.Qty,
		RemainingQty: in.Qty,
		UnitCost:     in.UnitCost.RoundBank(2),
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		ReceivedAt:   receivedAt,
	}
	lot.ID, err = tx.InsertLot(ctx, lot)
	if err != nil {
		return Lot{}, err
	}
	if e.logger != nil {
		e.logger.Info("lot received",
			slog.Int64("product_id", in.ProductID),
			slog.Int64("lot_id", lot.ID),
			slog.Int64("qty", in.Qty))
	}
	return lot, nil
}

// Consume depletes stock FIFO in its own transaction.
func (e *Engine) Consume(ctx context.Context, in ConsumeInput) (Consumption, error) {
	var result Consumption
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = e.ConsumeIn(ctx, tx, in)
		return err
	})
	if err != nil {
		return Consumption{}, err
	}
	return result, nil
}

// ConsumeIn walks open lots oldest-first, taking min(remaining, needed) from
// each. Sufficiency is checked before any lot is touched; an insufficient
// request mutates nothing.
func (e *Engine) ConsumeIn(ctx context.Context, tx TxRepository, in ConsumeInput) (Consumption, error) {
	if in.Qty <= 0 {
		return Consumption{}, ErrInvalidQuantity
	}
	if _, err := tx.GetProduct(ctx, in.ProductID); err != nil {
		return Consumption{}, err
	}
	lots, err := tx.OpenLotsForUpdate(ctx, in.ProductID)
	if err != nil {
		return Consumption{}, err
	}
	var available int64
	for _, lot := range lots {
		available += lot.RemainingQty
	}
	if available < in.Qty {
		return Consumption{}, ErrInsufficientStock
	}

	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = e.now().UTC()
	}
	result := Consumption{ProductID: in.ProductID, Qty: in.Qty, Total: decimal.Zero}
	needed := in.Qty
	for _, lot := range lots {
		if needed == 0 {
			break
		}
		take := lot.RemainingQty
		if take > needed {
			take = needed
		}
		cost := decimal.NewFromInt(take).Mul(lot.UnitCost).RoundBank(2)
		if err := tx.UpdateLotRemaining(ctx, lot.ID, lot.RemainingQty-take); err != nil {
			return Consumption{}, err
		}
		if _, err := tx.InsertTransaction(ctx, Transaction{
			LotID:        lot.ID,
			ProductID:    in.ProductID,
			QtyUsed:      take,
			UnitCost:     lot.UnitCost,
			TotalCost:    cost,
			SourceModule: in.SourceModule,
			SourceID:     in.SourceID,
			CreatedAt:    asOf,
		}); err != nil {
			return Consumption{}, err
		}
		result.Lines = append(result.Lines, ConsumptionLine{LotID: lot.ID, Qty: take, UnitCost: lot.UnitCost, Cost: cost})
		result.Total = result.Total.Add(cost)
		needed -= take
	}
	result.Total = result.Total.RoundBank(2)
	if e.logger != nil {
		e.logger.Info("stock consumed",
			slog.Int64("product_id", in.ProductID),
			slog.Int64("qty", in.Qty),
			slog.String("cogs", result.Total.StringFixed(2)),
			slog.Int("lots", len(result.Lines)))
	}
	return result, nil
}

// ReverseConsumption restores every lot touched by a prior consume for the
// given source document, in the original order, and removes the consumption
// records. Returns restored quantity per product.
func (e *Engine) ReverseConsumption(ctx context.Context, module string, sourceID uuid.UUID) (map[int64]int64, error) {
	var restored map[int64]int64
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		restored, err = e.ReverseConsumptionIn(ctx, tx, module, sourceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return restored, nil
}

// ReverseConsumptionIn reverses within an already-open transaction. A missing
// lot or a restore that would exceed the lot's original quantity means the
// stored history no longer matches reality; that surfaces as
// ErrReversalMismatch and aborts the whole operation.
func (e *Engine) ReverseConsumptionIn(ctx context.Context, tx TxRepository, module string, sourceID uuid.UUID) (map[int64]int64, error) {
	txns, err := tx.TransactionsBySource(ctx, module, sourceID)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, ErrNothingToReverse
	}
	restored := make(map[int64]int64)
	for _, txn := range txns {
		lot, err := tx.GetLotForUpdate(ctx, txn.LotID)
		if err != nil {
			if errors.Is(err, ErrLotNotFound) {
				return nil, ErrReversalMismatch
			}
			return nil, err
		}
		newRemaining := lot.RemainingQty + txn.QtyUsed
		if newRemaining > lot.OriginalQty {
			return nil, ErrReversalMismatch
		}
		if err := tx.UpdateLotRemaining(ctx, lot.ID, newRemaining); err != nil {
			return nil, err
		}
		restored[lot.ProductID] += txn.QtyUsed
	}
	if err := tx.DeleteTransactionsBySource(ctx, module, sourceID); err != nil {
		return nil, err
	}
	if e.logger != nil {
		e.logger.Info("consumption reversed",
			slog.String("source", module),
			slog.String("source_id", sourceID.String()),
			slog.Int("transactions", len(txns)))
	}
	return restored, nil
}

// ReverseReceipt voids a lot created by Receive. Only permitted while the lot
// is fully intact; once sales have drawn from it the receipt cannot be
// unwound.
func (e *Engine) ReverseReceipt(ctx context.Context, lotID int64) error {
	return e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return e.ReverseReceiptIn(ctx, tx, lotID)
	})
}

// ReverseReceiptIn voids within an already-open transaction.
func (e *Engine) ReverseReceiptIn(ctx context.Context, tx TxRepository, lotID int64) error {
	lot, err := tx.GetLotForUpdate(ctx, lotID)
	if err != nil {
		return err
	}
	if lot.VoidedAt != nil {
		return ErrLotNotFound
	}
	if lot.Consumed() {
		return ErrLotPartiallyConsumed
	}
	return tx.VoidLot(ctx, lotID, e.now().UTC())
}

// QuoteCost previews the COGS a consume would produce without touching any
// lot.
func (e *Engine) QuoteCost(ctx context.Context, productID, qty int64) (decimal.Decimal, error) {
	if qty <= 0 {
		return decimal.Zero, ErrInvalidQuantity
	}
	lots, err := e.repo.OpenLots(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	needed := qty
	for _, lot := range lots {
		if needed == 0 {
			break
		}
		take := lot.RemainingQty
		if take > needed {
			take = needed
		}
		total = total.Add(decimal.NewFromInt(take).Mul(lot.UnitCost).RoundBank(2))
		needed -= take
	}
	if needed > 0 {
		return decimal.Zero, ErrInsufficientStock
	}
	return total.RoundBank(2), nil
}

// WeightedAverageCost reports the average unit cost across open lots, for
// display and valuation reporting.
func (e *Engine) WeightedAverageCost(ctx context.Context, productID int64) (decimal.Decimal, error) {
	lots, err := e.repo.OpenLots(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	var qty int64
	value := decimal.Zero
	for _, lot := range lots {
		qty += lot.RemainingQty
		value = value.Add(decimal.NewFromInt(lot.RemainingQty).Mul(lot.UnitCost))
	}
	if qty == 0 {
		return decimal.Zero, nil
	}
	return value.Div(decimal.NewFromInt(qty)).RoundBank(2), nil
}

// OnHand reports total remaining quantity across open lots.
func (e *Engine) OnHand(ctx context.Context, productID int64) (int64, error) {
	return e.repo.OnHand(ctx, productID)
}

// OpenLots lists a product's open lots in consumption order.
func (e *Engine) OpenLots(ctx context.Context, productID int64) ([]Lot, error) {
	return e.repo.OpenLots(ctx, productID)
}

// LowStock lists active products at or below their reorder threshold.
func (e *Engine) LowStock(ctx context.Context) ([]StockLevel, error) {
	return e.repo.LowStock(ctx)
}

package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a sellable item. On-hand quantity is derived from lot
// remainders, never stored as its own counter.
type Product struct {
	ID               int64
	SKU              string
	Name             string
	SalePrice        decimal.Decimal
	CostPrice        decimal.Decimal
	ReorderThreshold int64
	Active           bool
	CreatedAt        time.Time
}

// Lot is a batch of stock received at one time with its own cost basis.
// ReceiptSeq is a per-product monotonic counter assigned at receipt; FIFO
// ordering follows it, not the timestamp, so same-day receipts stay
// deterministic.
type Lot struct {
	ID           int64
	ProductID    int64
	ReceiptSeq   int64
	OriginalQty  int64
	RemainingQty int64
	UnitCost     decimal.Decimal
	SourceModule string
	SourceID     uuid.UUID
	ReceivedAt   time.Time
	VoidedAt     *time.Time
}

// Consumed reports whether any units have left the lot.
func (l Lot) Consumed() bool {
	return l.RemainingQty < l.OriginalQty
}

// Transaction records consumption taken from one lot, for the audit trail.
type Transaction struct {
	ID           int64
	LotID        int64
	ProductID    int64
	QtyUsed      int64
	UnitCost     decimal.Decimal
	TotalCost    decimal.Decimal
	SourceModule string
	SourceID     uuid.UUID
	CreatedAt    time.Time
}

// ConsumeInput describes a FIFO consumption request. AsOf is recorded on the
// resulting transactions; ordering is driven by ReceiptSeq alone.
type ConsumeInput struct {
	ProductID    int64
	Qty          int64
	SourceModule string
	SourceID     uuid.UUID
	AsOf         time.Time
}

// ReceiveInput describes a stock receipt creating one new lot.
type ReceiveInput struct {
	ProductID    int64
	Qty          int64
	UnitCost     decimal.Decimal
	SourceModule string
	SourceID     uuid.UUID
	AsOf         time.Time
}

// Consumption is the result of a FIFO consume: the rounded total COGS and
// the per-lot breakdown in consumption order.
type Consumption struct {
	ProductID int64
	Qty       int64
	Total     decimal.Decimal
	Lines     []ConsumptionLine
}

// ConsumptionLine is one (lot, quantity) pair of a consumption.
type ConsumptionLine struct {
	LotID    int64
	Qty      int64
	UnitCost decimal.Decimal
	Cost     decimal.Decimal
}

var (
	// ErrInsufficientStock indicates requested quantity exceeds what the
	// open lots hold; nothing is consumed in that case.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
	// ErrProductNotFound indicates a missing product.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrLotNotFound indicates a missing lot.
	ErrLotNotFound = errors.New("inventory: lot not found")
	// ErrReversalMismatch indicates restoring consumption would overfill a
	// lot or the lot is gone. Signals data corruption, not a user error.
	ErrReversalMismatch = errors.New("inventory: consumption reversal mismatch")
	// ErrLotPartiallyConsumed indicates a receipt void on a lot that sales
	// already drew from.
	ErrLotPartiallyConsumed = errors.New("inventory: lot partially consumed")
	// ErrNothingToReverse indicates no consumption records for the source.
	ErrNothingToReverse = errors.New("inventory: no consumption to reverse")
)

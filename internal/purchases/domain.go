package purchases

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod is how the purchase is funded.
type PaymentMethod string

const (
	// PaymentCash pays the supplier immediately.
	PaymentCash PaymentMethod = "cash"
	// PaymentOnAccount books the purchase to accounts payable.
	PaymentOnAccount PaymentMethod = "on_account"
)

// Valid reports whether the method is known.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentOnAccount
}

// PurchaseStatus is the lifecycle state of a recorded purchase.
type PurchaseStatus string

const (
	// StatusCompleted is a recorded, effective purchase.
	StatusCompleted PurchaseStatus = "COMPLETED"
	// StatusVoided is a purchase undone by compensating records.
	StatusVoided PurchaseStatus = "VOID"
)

// Purchase is one stock receipt from a supplier with its journal link. Each
// line created one inventory lot; voiding requires every lot to still be
// intact.
type Purchase struct {
	ID             int64
	DocumentNo     string
	SupplierName   string
	PaymentMethod  PaymentMethod
	VATable        bool
	Subtotal       decimal.Decimal
	VAT            decimal.Decimal
	Total          decimal.Decimal
	Status         PurchaseStatus
	JournalEntryID int64
	SourceID       uuid.UUID
	CreatedAt      time.Time
	VoidedAt       *time.Time
	Lines          []PurchaseLine
}

// PurchaseLine is one product position; LotID is the inventory lot the
// receipt created.
type PurchaseLine struct {
	ID         int64
	PurchaseID int64
	ProductID  int64
	Qty        int64
	UnitCost   decimal.Decimal
	LineTotal  decimal.Decimal
	LotID      int64
}

// RecordPurchaseInput groups everything needed to receive stock.
type RecordPurchaseInput struct {
	SupplierName  string
	PaymentMethod PaymentMethod
	VATable       bool
	Date          time.Time
	Lines         []PurchaseLineInput
}

// PurchaseLineInput is one requested receipt position. UnitCost is
// VAT-exclusive.
type PurchaseLineInput struct {
	ProductID int64
	Qty       int64
	UnitCost  decimal.Decimal
}

// Validate checks shape before any pricing work.
func (in RecordPurchaseInput) Validate() error {
	if !in.PaymentMethod.Valid() {
		return ErrInvalidPayment
	}
	if len(in.Lines) == 0 {
		return ErrEmptyPurchase
	}
	for _, l := range in.Lines {
		if l.Qty <= 0 {
			return ErrEmptyPurchase
		}
		if l.UnitCost.IsNegative() {
			return ErrInvalidAmount
		}
	}
	return nil
}

var (
	// ErrPurchaseNotFound indicates an unknown purchase id.
	ErrPurchaseNotFound = errors.New("purchases: purchase not found")
	// ErrAlreadyVoided indicates a second void of the same purchase.
	ErrAlreadyVoided = errors.New("purchases: purchase already voided")
	// ErrEmptyPurchase indicates a purchase with no usable lines.
	ErrEmptyPurchase = errors.New("purchases: purchase has no lines")
	// ErrInvalidPayment indicates an unknown payment method.
	ErrInvalidPayment = errors.New("purchases: invalid payment method")
	// ErrInvalidAmount indicates a negative unit cost.
	ErrInvalidAmount = errors.New("purchases: amount must not be negative")
)

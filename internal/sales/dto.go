package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleLineInput is one requested position. UnitPrice overrides the product's
// list price when positive; zero means use the catalog price.
type SaleLineInput struct {
	ProductID int64
	Qty       int64
	UnitPrice decimal.Decimal
}

// RecordSaleInput groups everything needed to ring up a sale.
type RecordSaleInput struct {
	DocumentKind  DocumentKind
	CustomerName  string
	PaymentMethod PaymentMethod
	DiscountKind  DiscountKind
	DiscountValue decimal.Decimal
	Date          time.Time
	Lines         []SaleLineInput
}

// Validate checks the closed enumerations and line shape before any pricing
// work happens.
func (in RecordSaleInput) Validate() error {
	if !in.DocumentKind.Valid() {
		return ErrInvalidDocumentKind
	}
	if !in.PaymentMethod.Valid() {
		return ErrInvalidPayment
	}
	if in.DiscountKind == "" {
		return ErrInvalidDiscount
	}
	if !in.DiscountKind.Valid() {
		return ErrInvalidDiscount
	}
	if len(in.Lines) == 0 {
		return ErrEmptySale
	}
	for _, l := range in.Lines {
		if l.Qty <= 0 {
			return ErrEmptySale
		}
		if l.UnitPrice.IsNegative() {
			return ErrInvalidAmount
		}
	}
	return nil
}

// SettleSaleInput is a payment received against an on-account sale.
type SettleSaleInput struct {
	SaleID int64
	Amount decimal.Decimal
	CWT    decimal.Decimal
}

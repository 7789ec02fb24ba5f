package sales

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentKind selects the receipt series a sale is numbered under.
type DocumentKind string

const (
	// DocumentOR is an official receipt, the cash-sale document.
	DocumentOR DocumentKind = "OR"
	// DocumentSI is a sales invoice, the on-account document.
	DocumentSI DocumentKind = "SI"
)

// Valid reports whether the kind is a known document series.
func (k DocumentKind) Valid() bool {
	return k == DocumentOR || k == DocumentSI
}

// DiscountKind selects how a sale-level discount is computed.
type DiscountKind string

const (
	// DiscountNone applies no discount.
	DiscountNone DiscountKind = "none"
	// DiscountPercent takes a percentage off the VAT-exclusive base.
	DiscountPercent DiscountKind = "percent"
	// DiscountFixed takes a flat amount off the VAT-exclusive base.
	DiscountFixed DiscountKind = "fixed"
	// DiscountSCPWD is the statutory senior citizen / PWD discount:
	// 20 percent off and the sale becomes VAT-exempt.
	DiscountSCPWD DiscountKind = "sc_pwd"
)

// Valid reports whether the kind is in the closed discount rule set.
func (k DiscountKind) Valid() bool {
	switch k {
	case DiscountNone, DiscountPercent, DiscountFixed, DiscountSCPWD:
		return true
	}
	return false
}

// PaymentMethod is how the buyer settles at the counter.
type PaymentMethod string

const (
	// PaymentCash settles immediately against the cash account.
	PaymentCash PaymentMethod = "cash"
	// PaymentOnAccount books the sale to accounts receivable.
	PaymentOnAccount PaymentMethod = "on_account"
)

// Valid reports whether the method is known.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentOnAccount
}

// SaleStatus is the lifecycle state of a recorded sale.
type SaleStatus string

const (
	// StatusCompleted is a recorded, effective sale.
	StatusCompleted SaleStatus = "COMPLETED"
	// StatusVoided is a sale undone by compensating records.
	StatusVoided SaleStatus = "VOID"
)

// Sale is one recorded point-of-sale transaction with its journal link.
// Voiding never mutates the amounts; a voided sale keeps its figures and
// gains a reversal entry plus restored stock.
type Sale struct {
	ID             int64
	DocumentKind   DocumentKind
	DocumentNo     string
	CustomerName   string
	PaymentMethod  PaymentMethod
	DiscountKind   DiscountKind
	DiscountValue  decimal.Decimal
	Gross          decimal.Decimal
	Discount       decimal.Decimal
	Net            decimal.Decimal
	VAT            decimal.Decimal
	Total          decimal.Decimal
	COGS           decimal.Decimal
	SettledAmount  decimal.Decimal
	Status         SaleStatus
	JournalEntryID int64
	SourceID       uuid.UUID
	CreatedAt      time.Time
	VoidedAt       *time.Time
	Lines          []SaleLine
}

// SaleLine is one product position on a sale. UnitPrice is VAT-exclusive.
type SaleLine struct {
	ID        int64
	SaleID    int64
	ProductID int64
	Qty       int64
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Settlement is a payment received against an on-account sale. CWT is the
// creditable withholding tax the customer retained; it still reduces the
// receivable.
type Settlement struct {
	ID             int64
	SaleID         int64
	Amount         decimal.Decimal
	CWT            decimal.Decimal
	JournalEntryID int64
	CreatedAt      time.Time
}

var (
	// ErrSaleNotFound indicates an unknown sale id.
	ErrSaleNotFound = errors.New("sales: sale not found")
	// ErrAlreadyVoided indicates a second void of the same sale.
	ErrAlreadyVoided = errors.New("sales: sale already voided")
	// ErrSaleSettled indicates a void attempt against a sale with recorded
	// payments. The settlements must be voided first.
	ErrSaleSettled = errors.New("sales: sale has active settlements")
	// ErrEmptySale indicates a sale with no lines.
	ErrEmptySale = errors.New("sales: sale has no lines")
	// ErrInvalidDiscount indicates a discount outside the rule table, a
	// negative value, or a fixed discount exceeding the sale's base.
	ErrInvalidDiscount = errors.New("sales: invalid discount")
	// ErrInvalidDocumentKind indicates an unknown document series.
	ErrInvalidDocumentKind = errors.New("sales: invalid document kind")
	// ErrInvalidPayment indicates an unknown payment method.
	ErrInvalidPayment = errors.New("sales: invalid payment method")
	// ErrNotOnAccount indicates a settlement against a cash sale.
	ErrNotOnAccount = errors.New("sales: sale is not on account")
	// ErrOverSettlement indicates payments would exceed the sale total.
	ErrOverSettlement = errors.New("sales: settlement exceeds outstanding balance")
	// ErrInvalidAmount indicates a non-positive settlement amount.
	ErrInvalidAmount = errors.New("sales: amount must be positive")
)

package sales

import (
	"github.com/shopspring/decimal"
)

// TaxPolicy drives discount and VAT computation. Prices are VAT-exclusive;
// VAT is added on top of the discounted base when DiscountBeforeVAT is true,
// otherwise on the undiscounted base.
type TaxPolicy struct {
	Rate              decimal.Decimal
	DiscountBeforeVAT bool
}

// DefaultTaxPolicy is the Philippine retail default: 12 percent VAT applied
// after the discount.
func DefaultTaxPolicy() TaxPolicy {
	return TaxPolicy{Rate: decimal.RequireFromString("0.12"), DiscountBeforeVAT: true}
}

var scpwdRate = decimal.RequireFromString("0.20")

// Totals is the monetary breakdown of a sale at currency precision.
type Totals struct {
	Gross    decimal.Decimal
	Discount decimal.Decimal
	Net      decimal.Decimal
	VAT      decimal.Decimal
	Total    decimal.Decimal
}

// Compute resolves the discount rule and VAT for a VAT-exclusive gross
// amount. The SC/PWD rule is statutory: 20 percent off and the sale is
// VAT-exempt regardless of ordering.
func (p TaxPolicy) Compute(gross decimal.Decimal, kind DiscountKind, value decimal.Decimal) (Totals, error) {
	if value.IsNegative() {
		return Totals{}, ErrInvalidDiscount
	}
	gross = gross.RoundBank(2)

	var discount decimal.Decimal
	exempt := false
	switch kind {
	case DiscountNone:
		discount = decimal.Zero
	case DiscountPercent:
		if value.GreaterThan(decimal.NewFromInt(100)) {
			return Totals{}, ErrInvalidDiscount
		}
		discount = gross.Mul(value).Div(decimal.NewFromInt(100))
	case DiscountFixed:
		if value.GreaterThan(gross) {
			return Totals{}, ErrInvalidDiscount
		}
		discount = value
	case DiscountSCPWD:
		discount = gross.Mul(scpwdRate)
		exempt = true
	default:
		return Totals{}, ErrInvalidDiscount
	}
	discount = discount.RoundBank(2)
	net := gross.Sub(discount)

	var vat decimal.Decimal
	switch {
	case exempt:
		vat = decimal.Zero
	case p.DiscountBeforeVAT:
		vat = net.Mul(p.Rate).RoundBank(2)
	default:
		vat = gross.Mul(p.Rate).RoundBank(2)
	}

	return Totals{
		Gross:    gross,
		Discount: discount,
		Net:      net,
		VAT:      vat,
		Total:    net.Add(vat),
	}, nil
}

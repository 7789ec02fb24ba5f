package sales

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeNoDiscount(t *testing.T) {
	totals, err := DefaultTaxPolicy().Compute(amt("100.00"), DiscountNone, decimal.Zero)
	require.NoError(t, err)
	require.True(t, totals.Net.Equal(amt("100.00")))
	require.True(t, totals.VAT.Equal(amt("12.00")))
	require.True(t, totals.Total.Equal(amt("112.00")))
}

func TestComputePercentDiscount(t *testing.T) {
	totals, err := DefaultTaxPolicy().Compute(amt("200.00"), DiscountPercent, amt("10"))
	require.NoError(t, err)
	require.True(t, totals.Discount.Equal(amt("20.00")))
	require.True(t, totals.Net.Equal(amt("180.00")))
	require.True(t, totals.VAT.Equal(amt("21.60")))
	require.True(t, totals.Total.Equal(amt("201.60")))
}

func TestComputeFixedDiscount(t *testing.T) {
	totals, err := DefaultTaxPolicy().Compute(amt("150.00"), DiscountFixed, amt("50.00"))
	require.NoError(t, err)
	require.True(t, totals.Net.Equal(amt("100.00")))
	require.True(t, totals.VAT.Equal(amt("12.00")))

	_, err = DefaultTaxPolicy().Compute(amt("150.00"), DiscountFixed, amt("150.01"))
	require.ErrorIs(t, err, ErrInvalidDiscount)
}

func TestComputeSCPWDExempt(t *testing.T) {
	totals, err := DefaultTaxPolicy().Compute(amt("100.00"), DiscountSCPWD, decimal.Zero)
	require.NoError(t, err)
	require.True(t, totals.Discount.Equal(amt("20.00")))
	require.True(t, totals.Net.Equal(amt("80.00")))
	require.True(t, totals.VAT.IsZero(), "SC/PWD sale is VAT-exempt")
	require.True(t, totals.Total.Equal(amt("80.00")))
}

func TestComputeDiscountAfterVAT(t *testing.T) {
	policy := DefaultTaxPolicy()
	policy.DiscountBeforeVAT = false
	totals, err := policy.Compute(amt("100.00"), DiscountPercent, amt("10"))
	require.NoError(t, err)
	// VAT on the undiscounted base.
	require.True(t, totals.VAT.Equal(amt("12.00")))
	require.True(t, totals.Total.Equal(amt("102.00")))
}

func TestComputeRejectsBadDiscounts(t *testing.T) {
	policy := DefaultTaxPolicy()
	_, err := policy.Compute(amt("100.00"), DiscountPercent, amt("-5"))
	require.ErrorIs(t, err, ErrInvalidDiscount)
	_, err = policy.Compute(amt("100.00"), DiscountPercent, amt("101"))
	require.ErrorIs(t, err, ErrInvalidDiscount)
	_, err = policy.Compute(amt("100.00"), DiscountKind("loyalty"), amt("5"))
	require.ErrorIs(t, err, ErrInvalidDiscount)
}

func TestComputeBankersRounding(t *testing.T) {
	// 0.125 discount edge rounds to even: 12.5% of 1.00 is 0.125 -> 0.12.
	totals, err := DefaultTaxPolicy().Compute(amt("1.00"), DiscountPercent, amt("12.5"))
	require.NoError(t, err)
	require.True(t, totals.Discount.Equal(amt("0.12")), "got %s", totals.Discount)
}

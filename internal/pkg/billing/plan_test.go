package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditFox/app/models"
)

func priced(t models.ProductType, price string) *models.Product {
	p := &models.Product{ID: 1, BusinessID: 9, ProductType: t}
	if price != "" {
		p.Price = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	return p
}

func TestBuildChargePlanPerType(t *testing.T) {
	tests := []struct {
		name    string
		product *models.Product
		params  CheckoutParams
		want    ChargePlan
	}{
		{
			name:    "standard uses catalog price",
			product: priced(models.ProductTypeStandard, "19.99"),
			params:  CheckoutParams{PaymentDay: "3"},
			want: ChargePlan{
				ProductType: models.ProductTypeStandard, Amount: 1999,
				PaymentDay: 3, RequiresSchedule: true,
			},
		},
		{
			name:    "balance builder uses customer amount",
			product: priced(models.ProductTypeBalanceBuilder, ""),
			params:  CheckoutParams{PaymentDay: "15", CreditAmount: "35.50"},
			want: ChargePlan{
				ProductType: models.ProductTypeBalanceBuilder, Amount: 3550,
				PaymentDay: 15, RequiresSchedule: true, RequiresLedger: true,
			},
		},
		{
			name:    "legacy credit builder flag",
			product: &models.Product{ID: 2, ProductType: models.ProductTypeStandard, IsCreditBuilder: true},
			params:  CheckoutParams{PaymentDay: "1", CreditAmount: "10"},
			want: ChargePlan{
				ProductType: models.ProductTypeBalanceBuilder, Amount: 1000,
				PaymentDay: 1, RequiresSchedule: true, RequiresLedger: true,
			},
		},
		{
			name:    "pay it off twelve months",
			product: priced(models.ProductTypePayItOff, "1200"),
			params:  CheckoutParams{PaymentDay: "28", TotalPayments: "12"},
			want: ChargePlan{
				ProductType: models.ProductTypePayItOff, Amount: 10000, Total: 120000,
				TotalPayments: 12, PaymentDay: 28, RequiresSchedule: true,
			},
		},
		{
			name:    "pay it off eighteen months rounds up",
			product: priced(models.ProductTypePayItOff, "1200"),
			params:  CheckoutParams{PaymentDay: "5", TotalPayments: "18"},
			want: ChargePlan{
				ProductType: models.ProductTypePayItOff, Amount: 6667, Total: 120000,
				TotalPayments: 18, PaymentDay: 5, RequiresSchedule: true,
			},
		},
		{
			name:    "one time ignores payment day",
			product: priced(models.ProductTypeOneTime, "49.00"),
			params:  CheckoutParams{PaymentDay: "99"},
			want: ChargePlan{
				ProductType: models.ProductTypeOneTime, Amount: 4900, Total: 4900,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := BuildChargePlan(tt.product, tt.params)
			require.NoError(t, err)

			got := *plan
			got.Charge = nil
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.ProductType, plan.Charge.Type())
		})
	}
}

func TestBuildChargePlanRejections(t *testing.T) {
	tests := []struct {
		name    string
		product *models.Product
		params  CheckoutParams
		wantErr error
	}{
		{"missing payment day", priced(models.ProductTypeStandard, "10"), CheckoutParams{}, ErrInvalidCheckoutRequest},
		{"payment day 29", priced(models.ProductTypeStandard, "10"), CheckoutParams{PaymentDay: "29"}, ErrInvalidCheckoutRequest},
		{"payment day zero", priced(models.ProductTypeStandard, "10"), CheckoutParams{PaymentDay: "0"}, ErrInvalidCheckoutRequest},
		{"payment day not numeric", priced(models.ProductTypeStandard, "10"), CheckoutParams{PaymentDay: "first"}, ErrInvalidCheckoutRequest},
		{"standard without price", priced(models.ProductTypeStandard, ""), CheckoutParams{PaymentDay: "1"}, ErrInvalidCheckoutRequest},
		{"credit amount missing", priced(models.ProductTypeBalanceBuilder, ""), CheckoutParams{PaymentDay: "1"}, ErrInvalidCheckoutRequest},
		{"credit amount zero", priced(models.ProductTypeBalanceBuilder, ""), CheckoutParams{PaymentDay: "1", CreditAmount: "0.00"}, ErrInvalidCheckoutRequest},
		{"credit amount negative", priced(models.ProductTypeBalanceBuilder, ""), CheckoutParams{PaymentDay: "1", CreditAmount: "-5"}, ErrInvalidCheckoutRequest},
		{"credit amount beyond int64", priced(models.ProductTypeBalanceBuilder, ""), CheckoutParams{PaymentDay: "1", CreditAmount: "184467440737095516.17"}, ErrInvalidCheckoutRequest},
		{"credit amount far beyond int64", priced(models.ProductTypeBalanceBuilder, ""), CheckoutParams{PaymentDay: "1", CreditAmount: "1e40"}, ErrInvalidCheckoutRequest},
		{"price beyond int64", priced(models.ProductTypeStandard, "92233720368547758.08"), CheckoutParams{PaymentDay: "1"}, ErrInvalidCheckoutRequest},
		{"credit amount not numeric", priced(models.ProductTypeBalanceBuilder, ""), CheckoutParams{PaymentDay: "1", CreditAmount: "ten"}, ErrInvalidCheckoutRequest},
		{"installments missing", priced(models.ProductTypePayItOff, "100"), CheckoutParams{PaymentDay: "1"}, ErrInvalidCheckoutRequest},
		{"installments not offered", priced(models.ProductTypePayItOff, "100"), CheckoutParams{PaymentDay: "1", TotalPayments: "5"}, ErrInvalidInstallmentPlan},
		{"installments not numeric", priced(models.ProductTypePayItOff, "100"), CheckoutParams{PaymentDay: "1", TotalPayments: "x"}, ErrInvalidInstallmentPlan},
		{"unknown product type", priced(models.ProductType("gift_card"), "10"), CheckoutParams{PaymentDay: "1"}, ErrInvalidCheckoutRequest},
		{"nil product", nil, CheckoutParams{}, ErrProductNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := BuildChargePlan(tt.product, tt.params)
			assert.Nil(t, plan)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPayItOffDueNeverOvershootsTotal(t *testing.T) {
	charge := PayItOffCharge{Total: 120000, Months: 18}

	remaining := charge.Total
	var paid int64
	payments := 0
	for remaining > 0 {
		due := charge.Due(remaining)
		require.Positive(t, due)
		paid += due
		remaining -= due
		payments++
	}

	assert.Equal(t, charge.Total, paid)
	assert.Equal(t, 18, payments)
	assert.Equal(t, int64(6661), charge.Total-charge.Amount()*17)
	assert.Zero(t, charge.Due(0))
}

func TestToMinorUnitsRoundsHalfUp(t *testing.T) {
	tests := map[string]int64{
		"35.50":  3550,
		"35.505": 3551,
		"35.504": 3550,
		"0.005":  1,
		"100":    10000,
	}
	for in, want := range tests {
		got, err := ToMinorUnits(decimal.RequireFromString(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	assert.Equal(t, "35.50", FormatMinorUnits(3550))
}

func TestToMinorUnitsRejectsOutOfRange(t *testing.T) {
	got, err := ToMinorUnits(decimal.RequireFromString("92233720368547758.07"))
	require.NoError(t, err)
	assert.Equal(t, int64(9223372036854775807), got)

	for _, in := range []string{"92233720368547758.08", "184467440737095516.17", "-92233720368547758.09"} {
		_, err := ToMinorUnits(decimal.RequireFromString(in))
		assert.Error(t, err, in)
	}
}

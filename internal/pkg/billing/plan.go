package billing

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/ManuelReschke/CreditFox/app/models"
)

const (
	minPaymentDay = 1
	maxPaymentDay = 28
)

// AllowedInstallmentCounts are the month counts a pay_it_off product may be split into.
var AllowedInstallmentCounts = []int{2, 3, 4, 6, 9, 12, 18}

// CheckoutParams are the customer choices captured at checkout, as raw strings
// because they round-trip through processor metadata.
type CheckoutParams struct {
	PaymentDay    string
	CreditAmount  string
	TotalPayments string
}

// Charge is the per-type pricing of a checkout. Exactly four implementations exist.
type Charge interface {
	Type() models.ProductType
	// Amount is what a single scheduled payment (or the one-off charge) collects.
	Amount() int64
	isCharge()
}

type StandardCharge struct {
	Price int64
}

type BalanceBuilderCharge struct {
	Monthly int64
}

type PayItOffCharge struct {
	Total  int64
	Months int
}

type OneTimeCharge struct {
	Price int64
}

func (StandardCharge) Type() models.ProductType       { return models.ProductTypeStandard }
func (BalanceBuilderCharge) Type() models.ProductType { return models.ProductTypeBalanceBuilder }
func (PayItOffCharge) Type() models.ProductType       { return models.ProductTypePayItOff }
func (OneTimeCharge) Type() models.ProductType        { return models.ProductTypeOneTime }

func (c StandardCharge) Amount() int64       { return c.Price }
func (c BalanceBuilderCharge) Amount() int64 { return c.Monthly }
func (c OneTimeCharge) Amount() int64        { return c.Price }

// Amount is the installment, rounded up to the minor unit.
func (c PayItOffCharge) Amount() int64 { return ceilDiv(c.Total, c.Months) }

// Due returns the next installment given what is still owed, capping the
// final one at the remainder. Checkout only records the plan; Due is for the
// installment collector that charges against RemainingAmount.
func (c PayItOffCharge) Due(remaining int64) int64 {
	if remaining <= 0 {
		return 0
	}
	return min(c.Amount(), remaining)
}

func (StandardCharge) isCharge()       {}
func (BalanceBuilderCharge) isCharge() {}
func (PayItOffCharge) isCharge()       {}
func (OneTimeCharge) isCharge()        {}

// ChargePlan is the validated outcome of applying a product's type to checkout params.
type ChargePlan struct {
	Charge           Charge
	ProductType      models.ProductType
	Amount           int64
	Total            int64
	TotalPayments    int
	PaymentDay       int
	RequiresSchedule bool
	RequiresLedger   bool
}

// ResolveCharge builds the typed charge for product from the customer's choices.
func ResolveCharge(product *models.Product, params CheckoutParams) (Charge, error) {
	if product == nil {
		return nil, ErrProductNotFound
	}

	switch t := product.EffectiveType(); t {
	case models.ProductTypeStandard:
		price, err := catalogPrice(product)
		if err != nil {
			return nil, err
		}
		return StandardCharge{Price: price}, nil

	case models.ProductTypeOneTime:
		price, err := catalogPrice(product)
		if err != nil {
			return nil, err
		}
		return OneTimeCharge{Price: price}, nil

	case models.ProductTypeBalanceBuilder:
		if strings.TrimSpace(params.CreditAmount) == "" {
			return nil, fmt.Errorf("%w: credit_amount is required", ErrInvalidCheckoutRequest)
		}
		amount, err := ParseAmount(params.CreditAmount)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCheckoutRequest, err)
		}
		monthly, err := ToMinorUnits(amount)
		if err != nil {
			return nil, fmt.Errorf("%w: credit_amount: %v", ErrInvalidCheckoutRequest, err)
		}
		if monthly <= 0 {
			return nil, fmt.Errorf("%w: credit_amount must be greater than zero", ErrInvalidCheckoutRequest)
		}
		return BalanceBuilderCharge{Monthly: monthly}, nil

	case models.ProductTypePayItOff:
		total, err := catalogPrice(product)
		if err != nil {
			return nil, err
		}
		raw := strings.TrimSpace(params.TotalPayments)
		if raw == "" {
			return nil, fmt.Errorf("%w: total_payments is required", ErrInvalidCheckoutRequest)
		}
		months, err := strconv.Atoi(raw)
		if err != nil || !isAllowedInstallmentCount(months) {
			return nil, fmt.Errorf("%w: %q months is not offered", ErrInvalidInstallmentPlan, raw)
		}
		return PayItOffCharge{Total: total, Months: months}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported product type %q", ErrInvalidCheckoutRequest, t)
	}
}

// BuildChargePlan resolves the charge and validates the payment day for
// recurring types. The payment day is ignored for one_time products.
func BuildChargePlan(product *models.Product, params CheckoutParams) (*ChargePlan, error) {
	charge, err := ResolveCharge(product, params)
	if err != nil {
		return nil, err
	}

	plan := &ChargePlan{
		Charge:      charge,
		ProductType: charge.Type(),
		Amount:      charge.Amount(),
	}

	switch c := charge.(type) {
	case StandardCharge:
		plan.RequiresSchedule = true
	case BalanceBuilderCharge:
		plan.RequiresSchedule = true
		plan.RequiresLedger = true
	case PayItOffCharge:
		plan.RequiresSchedule = true
		plan.Total = c.Total
		plan.TotalPayments = c.Months
	case OneTimeCharge:
		plan.Total = c.Price
	}

	if plan.RequiresSchedule {
		day, err := parsePaymentDay(params.PaymentDay)
		if err != nil {
			return nil, err
		}
		plan.PaymentDay = day
	}
	return plan, nil
}

func catalogPrice(product *models.Product) (int64, error) {
	if !product.Price.Valid {
		return 0, fmt.Errorf("%w: product %d has no price", ErrInvalidCheckoutRequest, product.ID)
	}
	price, err := ToMinorUnits(product.Price.Decimal)
	if err != nil {
		return 0, fmt.Errorf("%w: product %d: %v", ErrInvalidCheckoutRequest, product.ID, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: product %d has a non-positive price", ErrInvalidCheckoutRequest, product.ID)
	}
	return price, nil
}

func parsePaymentDay(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: preferred_payment_day is required", ErrInvalidCheckoutRequest)
	}
	day, err := strconv.Atoi(s)
	if err != nil || day < minPaymentDay || day > maxPaymentDay {
		return 0, fmt.Errorf("%w: preferred_payment_day must be between %d and %d", ErrInvalidCheckoutRequest, minPaymentDay, maxPaymentDay)
	}
	return day, nil
}

func isAllowedInstallmentCount(months int) bool {
	return slices.Contains(AllowedInstallmentCounts, months)
}

package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuelReschke/CreditFox/app/models"
)

// ScheduleInput is everything needed to register a recurring charge.
type ScheduleInput struct {
	UserID            uint
	ProductID         uint
	BusinessID        uint
	SubscriptionID    uint
	Day               int
	Amount            int64
	CustomerReference string
}

// ScheduleRegistry owns scheduled payments: who owes which business how much
// on which day of the month.
type ScheduleRegistry struct {
	repo Repository
}

func NewScheduleRegistry(repo Repository) *ScheduleRegistry {
	return &ScheduleRegistry{repo: repo}
}

// Create registers a schedule for (user, product). When one is already
// active it returns that row together with ErrAlreadyScheduled.
func (r *ScheduleRegistry) Create(ctx context.Context, in ScheduleInput) (*models.ScheduledPayment, error) {
	if in.UserID == 0 || in.ProductID == 0 || in.SubscriptionID == 0 {
		return nil, fmt.Errorf("%w: user, product and subscription are required", ErrInvalidCheckoutRequest)
	}
	if in.Day < minPaymentDay || in.Day > maxPaymentDay {
		return nil, fmt.Errorf("%w: scheduled_for %d is outside %d-%d", ErrInvalidCheckoutRequest, in.Day, minPaymentDay, maxPaymentDay)
	}
	if in.Amount <= 0 {
		return nil, fmt.Errorf("%w: scheduled amount must be positive", ErrInvalidCheckoutRequest)
	}

	existing, err := r.repo.FindActiveScheduledPayment(ctx, in.UserID, in.ProductID)
	switch {
	case err == nil:
		return existing, ErrAlreadyScheduled
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	sp := &models.ScheduledPayment{
		UserID:            in.UserID,
		ProductID:         in.ProductID,
		BusinessID:        in.BusinessID,
		PurchaseID:        in.SubscriptionID,
		ScheduledFor:      in.Day,
		Status:            models.ScheduledPaymentStatusActive,
		Amount:            in.Amount,
		CustomerReference: in.CustomerReference,
		ActiveKey:         models.ActiveKey(in.UserID, in.ProductID),
	}
	created, err := r.repo.CreateScheduledPaymentIfNotExists(ctx, sp)
	if err != nil {
		return nil, err
	}
	if !created {
		return sp, ErrAlreadyScheduled
	}
	return sp, nil
}

package billing

import (
	"context"
	"errors"

	"github.com/ManuelReschke/CreditFox/app/models"
)

// CreditLedger keeps the balance_builder credit of a user at a business.
// Accrual and spending happen outside this engine.
type CreditLedger struct {
	repo Repository
}

func NewCreditLedger(repo Repository) *CreditLedger {
	return &CreditLedger{repo: repo}
}

// Initialize ensures a ledger row exists for (user, business). Repeated calls
// converge on the first row and never reset its figures.
func (l *CreditLedger) Initialize(ctx context.Context, userID, businessID uint) (*models.UserCredit, bool, error) {
	if userID == 0 || businessID == 0 {
		return nil, false, errors.New("user_id and business_id are required")
	}
	created, credit, err := l.repo.InitializeCreditLedger(ctx, userID, businessID)
	if err != nil {
		return nil, false, err
	}
	return credit, created, nil
}

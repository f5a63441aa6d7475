package models

import (
	"fmt"
	"time"
)

const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription is one user's commitment to one product. Rows are never
// deleted; cancellation clears ActiveKey so a new subscription can be created.
type Subscription struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"not null;index:idx_subscriptions_user_product,priority:1" json:"user_id"`
	ProductID         uint      `gorm:"not null;index:idx_subscriptions_user_product,priority:2" json:"product_id"`
	Status            string    `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	CustomerReference string    `gorm:"type:varchar(191);not null;default:''" json:"customer_reference"`
	CheckoutSessionID string    `gorm:"type:varchar(191);not null;default:'';index" json:"checkout_session_id"`
	StartDate         time.Time `gorm:"type:timestamp" json:"start_date"`
	ActiveKey         *string   `gorm:"type:varchar(64);uniqueIndex:ux_subscriptions_active_key" json:"-"`

	// Installment tracking, pay_it_off only.
	TotalPaid       *int64 `json:"total_paid,omitempty"`
	RemainingAmount *int64 `json:"remaining_amount,omitempty"`
	PaymentCount    *int   `json:"payment_count,omitempty"`
	TotalPayments   *int   `json:"total_payments,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ActiveKey is the uniqueness key shared by active subscriptions and active
// scheduled payments of a (user, product) pair.
func ActiveKey(userID, productID uint) *string {
	k := fmt.Sprintf("%d:%d", userID, productID)
	return &k
}

// CheckoutKey is the uniqueness key of a one-off purchase, which may be
// repeated by the same user and is therefore keyed by its checkout session.
func CheckoutKey(checkoutSessionID string) *string {
	k := "checkout:" + checkoutSessionID
	return &k
}

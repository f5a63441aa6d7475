package models

import "time"

const (
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// Payment is a charge known to the payment processor, keyed by the id the
// processor assigned to it.
type Payment struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	ProcessorPaymentID string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_payments_processor_payment" json:"processor_payment_id"`
	UserID             uint      `gorm:"not null;index" json:"user_id"`
	BusinessID         uint      `gorm:"not null;index" json:"business_id"`
	ProductID          uint      `gorm:"not null;index" json:"product_id"`
	SubscriptionID     uint      `gorm:"index" json:"subscription_id"`
	Amount             int64     `gorm:"not null" json:"amount"`
	Status             string    `gorm:"type:varchar(32);not null;default:'succeeded'" json:"status"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

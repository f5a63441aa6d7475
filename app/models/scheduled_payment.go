package models

import "time"

const (
	ScheduledPaymentStatusActive    = "active"
	ScheduledPaymentStatusCancelled = "cancelled"
)

// ScheduledPayment instructs a recurring charge on a fixed day of the month.
// Amount is fixed at creation time in minor currency units.
type ScheduledPayment struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"not null;index:idx_scheduled_payments_user_product,priority:1" json:"user_id"`
	ProductID         uint      `gorm:"not null;index:idx_scheduled_payments_user_product,priority:2" json:"product_id"`
	BusinessID        uint      `gorm:"not null;index" json:"business_id"`
	PurchaseID        uint      `gorm:"not null;index" json:"purchase_id"`
	ScheduledFor      int       `gorm:"not null;index" json:"scheduled_for"`
	Status            string    `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	Amount            int64     `gorm:"not null" json:"amount"`
	CustomerReference string    `gorm:"type:varchar(191);not null;default:''" json:"customer_reference"`
	ActiveKey         *string   `gorm:"type:varchar(64);uniqueIndex:ux_scheduled_payments_active_key" json:"-"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

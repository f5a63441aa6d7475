package models

import "time"

// UserCredit is the balance_builder credit ledger of a user at one business.
type UserCredit struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;uniqueIndex:ux_user_credits_user_business,priority:1" json:"user_id"`
	BusinessID  uint      `gorm:"not null;uniqueIndex:ux_user_credits_user_business,priority:2;index" json:"business_id"`
	Balance     int64     `gorm:"not null;default:0" json:"balance"`
	TotalEarned int64     `gorm:"not null;default:0" json:"total_earned"`
	TotalSpent  int64     `gorm:"not null;default:0" json:"total_spent"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserCredit) TableName() string { return "user_credits" }

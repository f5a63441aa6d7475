package models

import "time"

// User is the account a subscription belongs to. Only the fields needed to
// address notifications are mapped here.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(150)" json:"name"`
	Email     string    `gorm:"type:varchar(200);uniqueIndex" json:"email"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

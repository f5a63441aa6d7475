package models

import "time"

// Business owns products and receives subscriber notifications via its owner.
type Business struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OwnerUserID uint      `gorm:"not null;index" json:"owner_user_id"`
	Owner       User      `gorm:"foreignKey:OwnerUserID" json:"owner,omitempty"`
	Name        string    `gorm:"type:varchar(200);not null" json:"name"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

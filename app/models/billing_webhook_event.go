package models

import "time"

const BillingProviderStripe = "stripe"

// BillingWebhookEvent stores verified processor notifications. The
// (provider, event_type, resource_id) triple is the idempotency key.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_resource,unique,priority:1" json:"provider"`
	EventType       string     `gorm:"type:varchar(100);not null;index:ux_billing_webhook_events_resource,unique,priority:2" json:"event_type"`
	ResourceID      string     `gorm:"type:varchar(191);not null;index:ux_billing_webhook_events_resource,unique,priority:3" json:"resource_id"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index" json:"provider_event_id"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

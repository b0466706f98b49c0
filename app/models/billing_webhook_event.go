package models

import "time"

// BillingWebhookEvent is the idempotency record for provider webhook deliveries.
// The unique (provider, provider_event_id) index is what guarantees a provider
// event is applied at most once, across restarts and instances.
type BillingWebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_provider_event,unique,priority:1;index" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	OrganizationID  string     `gorm:"type:varchar(36);not null;default:'';index" json:"organization_id"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	Applied         bool       `gorm:"default:false" json:"applied"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

package models

import "time"

// WebhookEvent records processed payment-provider event ids so redelivered
// webhooks are rejected deterministically instead of by state comparison.
type WebhookEvent struct {
	BaseModel

	EventID     string     `gorm:"uniqueIndex;not null" json:"event_id"`
	EventType   string     `gorm:"not null" json:"event_type"`
	Processed   bool       `gorm:"default:false" json:"processed"`
	ProcessedAt *time.Time `json:"processed_at"`
}

package model

import "time"

// WebhookEvent 支付回调事件存档，provider+event_id 唯一用于去重
type WebhookEvent struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	Provider        string    `json:"provider" gorm:"uniqueIndex:idx_provider_event,priority:1;not null"`
	ProviderEventID string    `json:"provider_event_id" gorm:"uniqueIndex:idx_provider_event,priority:2;not null"`
	EventName       string    `json:"event_name"`
	LicenseKey      string    `json:"license_key" gorm:"index"`
	CreatedAt       time.Time `json:"created_at"`
}

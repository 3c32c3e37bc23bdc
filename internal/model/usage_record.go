package model

import "time"

// UsageRecord 每个 (identity_key, date) 只有一行，计数器按天累加
// identity_key 形如 license:<id> 或 device:<id>，ip/ua 只保留最近一次
type UsageRecord struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	IdentityKey string    `json:"identity_key" gorm:"uniqueIndex:idx_identity_date,priority:1;not null"`
	Date        string    `json:"date" gorm:"uniqueIndex:idx_identity_date,priority:2;index;not null"`
	LicenseID   string    `json:"license_id" gorm:"index"`
	DeviceID    string    `json:"device_id" gorm:"index"`
	Count       int       `json:"count"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DateKey 以 UTC 日历日作为分桶粒度
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

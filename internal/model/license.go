package model

import "time"

// License 许可证记录，license_key 全局唯一
type License struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	LicenseKey string     `json:"license_key" gorm:"uniqueIndex;not null"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Plan       string     `json:"plan"`
	DailyLimit int        `json:"daily_limit"`
	IsActive   bool       `json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// UnlimitedSentinel daily_limit 达到该值视为不限量
const UnlimitedSentinel = 999999

// IsUnlimited 是否不限量套餐
func (l *License) IsUnlimited() bool {
	return l.DailyLimit >= UnlimitedSentinel
}

// IsExpired 过期判断在校验时进行，不回写 is_active
func (l *License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

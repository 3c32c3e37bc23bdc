package service

import (
	"errors"
	"fmt"
	"time"

	"scraper-quota-system/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateLicense 管理端手工开通许可证
func CreateLicense(db *gorm.DB, email, plan string, limit, durationDays int) (*model.License, error) {
	if email == "" || plan == "" {
		return nil, ErrValidation
	}
	if limit <= 0 {
		limit = 500
	}

	var expiresAt *time.Time
	if durationDays > 0 {
		t := time.Now().AddDate(0, 0, durationDays)
		expiresAt = &t
	}

	// 密钥冲突时重新生成
	for attempt := 0; attempt < 5; attempt++ {
		key := GenerateLicenseKey()
		var existing int64
		if err := db.Model(&model.License{}).Where("license_key = ?", key).Count(&existing).Error; err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if existing > 0 {
			continue
		}

		license := &model.License{
			ID:         uuid.NewString(),
			LicenseKey: key,
			Email:      email,
			Plan:       plan,
			DailyLimit: limit,
			IsActive:   true,
			ExpiresAt:  expiresAt,
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}
		if err := db.Create(license).Error; err != nil {
			// 撞上唯一索引则换密钥重试
			continue
		}
		return license, nil
	}

	return nil, fmt.Errorf("%w: license key collision", ErrStoreUnavailable)
}

// WebhookLicenseInput 支付回调解析后的字段，签名校验由传输层完成
type WebhookLicenseInput struct {
	EventName   string
	EventID     string
	LicenseKey  string
	Email       string
	Name        string
	Status      string
	VariantName string
}

// UpsertFromWebhookEvent 支付侧开通：按 license_key 幂等 upsert
// 同一载荷重复投递不会产生第二行，最终状态一致
func UpsertFromWebhookEvent(db *gorm.DB, in WebhookLicenseInput) (*model.License, error) {
	key := in.LicenseKey
	status := in.Status
	// order_created 模拟事件可能没有密钥，补一个占位测试密钥
	if key == "" {
		if in.EventName != "order_created" {
			return nil, ErrValidation
		}
		key = fmt.Sprintf("TEST-KEY-%d", time.Now().UnixMilli())
		status = "active"
	}

	email := in.Email
	if email == "" {
		email = "test@example.com"
	}

	profile := ResolvePlan(in.VariantName)
	var expiresAt *time.Time
	if profile.DurationDays > 0 {
		t := time.Now().AddDate(0, 0, profile.DurationDays)
		expiresAt = &t
	}

	license := &model.License{
		ID:         uuid.NewString(),
		LicenseKey: key,
		Email:      email,
		Name:       in.Name,
		Plan:       profile.Plan,
		DailyLimit: profile.DailyLimit,
		IsActive:   status == "active",
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "license_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email", "name", "plan", "daily_limit", "is_active", "expires_at", "updated_at",
		}),
	}).Create(license).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// 返回落库后的最终状态（冲突路径下 ID 保持原值）
	var saved model.License
	if err := db.Where("license_key = ?", key).First(&saved).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &saved, nil
}

// RecordWebhookEvent 回调事件存档，重复事件返回 false
func RecordWebhookEvent(db *gorm.DB, provider, eventID, eventName, licenseKey string) (bool, error) {
	if eventID == "" {
		return true, nil
	}
	event := &model.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventName:       eventName,
		LicenseKey:      licenseKey,
		CreatedAt:       time.Now(),
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ProcessWebhookEvent 事件存档与许可证开通在同一事务内完成
// 开通失败时存档一并回滚，支付方重试同一事件仍会被处理
func ProcessWebhookEvent(db *gorm.DB, provider string, in WebhookLicenseInput) (*model.License, bool, error) {
	var license *model.License
	fresh := true

	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		fresh, err = RecordWebhookEvent(tx, provider, in.EventID, in.EventName, in.LicenseKey)
		if err != nil {
			return err
		}
		// 重复投递直接确认，不再开通
		if !fresh {
			return nil
		}
		license, err = UpsertFromWebhookEvent(tx, in)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return license, fresh, nil
}

// ToggleActive 启用/停用许可证，未知ID返回 ErrNotFound
func ToggleActive(db *gorm.DB, licenseID string, desired bool) (*model.License, error) {
	var license model.License
	err := db.Where("id = ?", licenseID).First(&license).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// 单字段写入，后写覆盖即可
	err = db.Model(&license).Updates(map[string]interface{}{
		"is_active":  desired,
		"updated_at": time.Now(),
	}).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	license.IsActive = desired
	return &license, nil
}

// ListLicenses 全部许可证，按创建时间倒序
func ListLicenses(db *gorm.DB) ([]model.License, error) {
	var licenses []model.License
	if err := db.Order("created_at desc").Find(&licenses).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return licenses, nil
}

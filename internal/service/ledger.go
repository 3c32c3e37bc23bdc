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

// IncrementInput 单次计数请求
type IncrementInput struct {
	IdentityKey string
	Date        string
	Delta       int
	Limit       int
	Unlimited   bool
	LicenseID   string
	DeviceID    string
	IPAddress   string
	UserAgent   string
}

// AtomicIncrement 检查并累加当日计数，整体在一个事务内完成
// 先 upsert 零值行，再带守卫条件的 UPDATE（count + delta <= limit），
// 避免"先读后写"两步操作在并发下超卖最后一份配额
func AtomicIncrement(db *gorm.DB, in IncrementInput) (bool, int, error) {
	var allowed bool
	var newCount int

	err := db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		row := model.UsageRecord{
			ID:          uuid.NewString(),
			IdentityKey: in.IdentityKey,
			Date:        in.Date,
			LicenseID:   in.LicenseID,
			DeviceID:    in.DeviceID,
			Count:       0,
			IPAddress:   in.IPAddress,
			UserAgent:   in.UserAgent,
			UpdatedAt:   now,
		}
		// 并发首写时只会有一行落库
		createResult := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity_key"}, {Name: "date"}},
			DoNothing: true,
		}).Create(&row)
		if createResult.Error != nil {
			return createResult.Error
		}
		created := createResult.RowsAffected == 1

		// 守卫条件放在 UPDATE 里，判定与累加是同一条语句
		result := tx.Model(&model.UsageRecord{}).
			Where("identity_key = ? AND date = ?", in.IdentityKey, in.Date).
			Where("? OR count + ? <= ?", in.Unlimited, in.Delta, in.Limit).
			Updates(map[string]interface{}{
				"count":      gorm.Expr("count + ?", in.Delta),
				"ip_address": in.IPAddress,
				"user_agent": in.UserAgent,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		allowed = result.RowsAffected == 1

		// 首个请求即被拒：不留零值行，台账只记录真实用量
		if !allowed && created {
			newCount = 0
			return tx.Where("identity_key = ? AND date = ?", in.IdentityKey, in.Date).
				Delete(&model.UsageRecord{}).Error
		}

		var current model.UsageRecord
		if err := tx.Where("identity_key = ? AND date = ?", in.IdentityKey, in.Date).
			First(&current).Error; err != nil {
			return err
		}
		newCount = current.Count
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return allowed, newCount, nil
}

// GetOrZero 查询当日已用量，没有记录视为 0
func GetOrZero(db *gorm.DB, identityKey, date string) (int, error) {
	var record model.UsageRecord
	err := db.Where("identity_key = ? AND date = ?", identityKey, date).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return record.Count, nil
}

// QueryByDate 指定日期的全部用量记录
func QueryByDate(db *gorm.DB, date string) ([]model.UsageRecord, error) {
	var records []model.UsageRecord
	if err := db.Where("date = ?", date).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return records, nil
}

// QueryRecent 最近的用量记录，按日期倒序
func QueryRecent(db *gorm.DB, limit int) ([]model.UsageRecord, error) {
	var records []model.UsageRecord
	if err := db.Order("date desc").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return records, nil
}

// CountDistinctDevicesForIP 统计某 IP 当日出现的不同设备数，用于滥用观测
func CountDistinctDevicesForIP(db *gorm.DB, ip, date, excludeDeviceID string) (int64, error) {
	var count int64
	err := db.Model(&model.UsageRecord{}).
		Where("ip_address = ? AND date = ? AND device_id <> '' AND device_id <> ?", ip, date, excludeDeviceID).
		Distinct("device_id").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return count, nil
}

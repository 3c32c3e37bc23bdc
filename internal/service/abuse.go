package service

import (
	"fmt"
	"sort"

	"scraper-quota-system/internal/model"

	"gorm.io/gorm"
)

const (
	abuseSampleDevices = 5
	abuseMaxSignals    = 50
)

// GetAbuseSignals 按 (ip, date) 聚合设备数，达到阈值的输出告警
// 同一份台账快照多次运行结果一致：设备数降序，再按 ip、date 升序
func GetAbuseSignals(db *gorm.DB, threshold int, startDate, endDate string) ([]model.AbuseSignal, error) {
	query := db.Model(&model.UsageRecord{}).
		Where("ip_address <> '' AND ip_address <> 'unknown' AND device_id <> ''")
	if startDate != "" {
		query = query.Where("date >= ?", startDate)
	}
	if endDate != "" {
		query = query.Where("date <= ?", endDate)
	}

	var records []model.UsageRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	type groupKey struct {
		ip   string
		date string
	}
	groups := make(map[groupKey]map[string]struct{})
	for _, r := range records {
		key := groupKey{ip: r.IPAddress, date: r.Date}
		if groups[key] == nil {
			groups[key] = make(map[string]struct{})
		}
		groups[key][r.DeviceID] = struct{}{}
	}

	signals := make([]model.AbuseSignal, 0)
	for key, devices := range groups {
		if len(devices) < threshold {
			continue
		}
		ids := make([]string, 0, len(devices))
		for id := range devices {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if len(ids) > abuseSampleDevices {
			ids = ids[:abuseSampleDevices]
		}
		signals = append(signals, model.AbuseSignal{
			IPAddress:   key.ip,
			Date:        key.date,
			DeviceCount: len(devices),
			DeviceIDs:   ids,
		})
	}

	sort.Slice(signals, func(i, j int) bool {
		if signals[i].DeviceCount != signals[j].DeviceCount {
			return signals[i].DeviceCount > signals[j].DeviceCount
		}
		if signals[i].IPAddress != signals[j].IPAddress {
			return signals[i].IPAddress < signals[j].IPAddress
		}
		return signals[i].Date < signals[j].Date
	})

	if len(signals) > abuseMaxSignals {
		signals = signals[:abuseMaxSignals]
	}
	return signals, nil
}

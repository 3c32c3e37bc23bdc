package service

import (
	"fmt"
	"sort"

	"scraper-quota-system/internal/model"

	"gorm.io/gorm"
)

const customerMaxResults = 100

// GetCustomerAggregates 按 device_id 汇总总量与最近活跃日
// ip/ua 取最近日期那一行，总量降序，同量按 device_id 升序
func GetCustomerAggregates(db *gorm.DB) ([]model.CustomerAggregate, error) {
	var records []model.UsageRecord
	if err := db.Where("device_id <> ''").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	byDevice := make(map[string]*model.CustomerAggregate)
	for _, r := range records {
		agg, ok := byDevice[r.DeviceID]
		if !ok {
			agg = &model.CustomerAggregate{
				DeviceID:   r.DeviceID,
				IPAddress:  r.IPAddress,
				UserAgent:  r.UserAgent,
				LastActive: r.Date,
			}
			byDevice[r.DeviceID] = agg
		}
		agg.TotalScrapes += r.Count
		// ISO 日期字符串可直接按字典序比较
		if r.Date >= agg.LastActive {
			agg.LastActive = r.Date
			if r.IPAddress != "" {
				agg.IPAddress = r.IPAddress
			}
			if r.UserAgent != "" {
				agg.UserAgent = r.UserAgent
			}
		}
	}

	customers := make([]model.CustomerAggregate, 0, len(byDevice))
	for _, agg := range byDevice {
		if agg.IPAddress == "" {
			agg.IPAddress = "Unknown"
		}
		if agg.UserAgent == "" {
			agg.UserAgent = "Unknown"
		}
		customers = append(customers, *agg)
	}

	sort.Slice(customers, func(i, j int) bool {
		if customers[i].TotalScrapes != customers[j].TotalScrapes {
			return customers[i].TotalScrapes > customers[j].TotalScrapes
		}
		return customers[i].DeviceID < customers[j].DeviceID
	})

	if len(customers) > customerMaxResults {
		customers = customers[:customerMaxResults]
	}
	return customers, nil
}

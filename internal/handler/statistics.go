package handler

import (
	"time"

	"scraper-quota-system/internal/database"
	"scraper-quota-system/internal/model"
	"scraper-quota-system/internal/service"

	"github.com/gofiber/fiber/v2"
)

// HandleDashboardStats 运营看板：当日统计、许可证列表、近期用量、客户排行、滥用告警
func HandleDashboardStats(c *fiber.Ctx) error {
	db := database.DB
	today := model.DateKey(time.Now())

	stats := model.DashboardStats{Date: today}

	// 许可证总数
	if err := db.Model(&model.License{}).Count(&stats.TotalLicenses).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "获取许可证总数失败",
		})
	}

	// 活跃许可证数
	if err := db.Model(&model.License{}).Where("is_active = ?", true).Count(&stats.ActiveLicenses).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "获取活跃许可证数失败",
		})
	}

	// 当日用量合计与去重身份数
	todayRecords, err := service.QueryByDate(db, today)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "获取当日用量失败",
		})
	}
	for _, r := range todayRecords {
		stats.TotalScrapesToday += r.Count
	}
	stats.UniqueUsersToday = int64(len(todayRecords))

	licenses, err := service.ListLicenses(db)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "获取许可证数据失败",
		})
	}

	recentUsage, err := service.QueryRecent(db, 50)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "获取用量记录失败",
		})
	}

	customers, err := service.GetCustomerAggregates(db)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "获取客户汇总失败",
		})
	}

	// 可选日期范围过滤
	suspicious, err := service.GetAbuseSignals(db, appConfig.AbuseDeviceThreshold, c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "获取滥用告警失败",
		})
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"stats":       stats,
		"licenses":    licenses,
		"recentUsage": recentUsage,
		"customers":   customers,
		"suspicious":  suspicious,
	})
}

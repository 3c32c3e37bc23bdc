package handler

import (
	"time"

	"scraper-quota-system/internal/database"
	"scraper-quota-system/internal/model"
	"scraper-quota-system/internal/service"

	"github.com/gofiber/fiber/v2"
)

// 抓取引擎的选择器配置，由服务端下发，客户端不内置
var scraperConfig = fiber.Map{
	"selectors": fiber.Map{
		"card": []string{
			"[data-test-id^=\"srp-listing-card-\"]",
			"[data-test-id^=\"viewport-property-card-\"]",
			".property-card",
			"article[data-test-id]",
		},
		"title": []string{
			"h2",
			"h2[data-test-id*=\"title\"]",
			"h2 a",
			"[class*=\"title\"]",
		},
		"url": []string{
			"a[href*=\"/properti/\"]",
			"a[href*=\"/perumahan-baru/\"]",
			"a[href^=\"/\"]",
		},
		"price": []string{
			"span.text-primary.font-bold",
			"[data-test-id*=\"price\"]",
			"[class*=\"price\"]",
			"span.font-bold",
		},
		"location": []string{
			"[class*=\"text-gray\"]",
			"[class*=\"location\"]",
			"[class*=\"address\"]",
			".entity-item-text",
		},
		"specs": fiber.Map{
			"bedroom":    "bedroom",
			"bathroom":   "bathroom",
			"area_land":  "LT",
			"area_build": "LB",
		},
		"image": "img",
	},
	"settings": fiber.Map{
		"scrollRounds": 30,
		"scrollPause":  500,
	},
}

type ClientConfigInput struct {
	LicenseKey string `json:"licenseKey"`
	DeviceID   string `json:"deviceId"`
}

// HandleClientConfig 下发抓取配置，按身份附带配额信息
func HandleClientConfig(c *fiber.Ctx) error {
	input := new(ClientConfigInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "无效的输入数据",
		})
	}

	if input.LicenseKey != "" {
		result, err := quota.ValidateLicense(input.LicenseKey)
		if err != nil {
			return quotaError(c, err)
		}
		if !result.Valid {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"error":   result.Reason,
			})
		}
		return c.JSON(fiber.Map{
			"success": true,
			"config":  scraperConfig,
			"user": fiber.Map{
				"type":  "license",
				"plan":  result.Plan,
				"limit": result.Limit,
				"usage": result.UsedToday,
			},
		})
	}

	used := 0
	if input.DeviceID != "" {
		var err error
		used, err = service.GetOrZero(database.DB, "device:"+input.DeviceID, model.DateKey(time.Now()))
		if err != nil {
			return quotaError(c, err)
		}
	}
	return c.JSON(fiber.Map{
		"success": true,
		"config":  scraperConfig,
		"user": fiber.Map{
			"type":  "guest",
			"plan":  "Guest",
			"limit": appConfig.GuestDailyLimit,
			"usage": used,
		},
	})
}

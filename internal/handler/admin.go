package handler

import (
	"errors"

	"scraper-quota-system/internal/database"
	"scraper-quota-system/internal/service"

	"github.com/gofiber/fiber/v2"
)

// HandleGetAllLicenses 管理员获取所有许可证数据
func HandleGetAllLicenses(c *fiber.Ctx) error {
	licenses, err := service.ListLicenses(database.DB)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "获取许可证数据失败",
		})
	}

	return c.JSON(fiber.Map{
		"licenses": licenses,
	})
}

type CreateLicenseInput struct {
	Email        string `json:"email"`
	Plan         string `json:"plan"`
	Limit        int    `json:"limit"`
	DurationDays int    `json:"durationDays"`
}

// HandleCreateLicense 管理员手工开通许可证
func HandleCreateLicense(c *fiber.Ctx) error {
	input := new(CreateLicenseInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "无效的输入数据",
		})
	}

	license, err := service.CreateLicense(database.DB, input.Email, input.Plan, input.Limit, input.DurationDays)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "邮箱和套餐不能为空",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "创建许可证失败",
		})
	}

	// 记录操作日志
	if userID, ok := c.Locals("userID").(uint); ok {
		service.LogOperation(userID, "create", "license", license.ID, input)
	}

	if sheetSync != nil {
		go sheetSync.SyncLicense(license)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"license": license,
	})
}

type ToggleLicenseInput struct {
	ID       string `json:"id"`
	IsActive *bool  `json:"is_active"`
}

// HandleToggleLicense 启用/停用许可证
func HandleToggleLicense(c *fiber.Ctx) error {
	input := new(ToggleLicenseInput)
	if err := c.BodyParser(input); err != nil || input.ID == "" || input.IsActive == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "无效的输入数据",
		})
	}

	license, err := service.ToggleActive(database.DB, input.ID, *input.IsActive)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "许可证不存在",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "更新许可证失败",
		})
	}

	if userID, ok := c.Locals("userID").(uint); ok {
		service.LogOperation(userID, "toggle", "license", license.ID, input)
	}

	if sheetSync != nil {
		go sheetSync.SyncLicense(license)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"license": license,
	})
}

// HandleHealth 健康检查：探测数据库连接
func HandleHealth(c *fiber.Ctx) error {
	sqlDB, err := database.DB.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status": "error",
			"error":  "数据库连接失败",
		})
	}

	return c.JSON(fiber.Map{
		"status":  "ok",
		"message": "API is healthy",
	})
}

package handler

import (
	"errors"
	"strings"
	"time"

	"scraper-quota-system/internal/config"
	"scraper-quota-system/internal/database"
	"scraper-quota-system/internal/model"
	"scraper-quota-system/internal/service"

	"github.com/gofiber/fiber/v2"
)

var (
	quota     *service.QuotaAuthority
	sheetSync *service.SheetSyncService
	appConfig config.Config
)

// Init 注入配额引擎与运行配置，main 启动时调用一次
func Init(q *service.QuotaAuthority, sync *service.SheetSyncService, cfg config.Config) {
	quota = q
	sheetSync = sync
	appConfig = cfg
}

// clientIP 取 X-Forwarded-For 第一跳，其次 X-Real-IP，最后直连地址
func clientIP(c *fiber.Ctx) string {
	if forwarded := c.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if ip := c.IP(); ip != "" {
		return ip
	}
	return "unknown"
}

type UseInput struct {
	LicenseKey string `json:"licenseKey"`
	DeviceID   string `json:"deviceId"`
	Count      int    `json:"count"`
	UserAgent  string `json:"userAgent"`
}

// HandleLicenseUse 消费配额：解析身份、检查限额、累加当日计数
func HandleLicenseUse(c *fiber.Ctx) error {
	input := new(UseInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "无效的输入数据",
		})
	}

	ua := input.UserAgent
	if ua == "" {
		ua = c.Get("User-Agent", "unknown")
	}

	result, err := quota.CheckAndConsume(service.CheckInput{
		LicenseKey: input.LicenseKey,
		DeviceID:   input.DeviceID,
		Count:      input.Count,
		IPAddress:  clientIP(c),
		UserAgent:  ua,
	})
	if err != nil {
		return quotaError(c, err)
	}

	resp := fiber.Map{
		"success":   true,
		"allowed":   result.Allowed,
		"used":      result.Used,
		"remaining": result.Remaining,
		"limit":     result.Limit,
		"plan":      result.Plan,
	}
	if !result.Allowed {
		resp["reason"] = result.Reason
		return c.Status(fiber.StatusTooManyRequests).JSON(resp)
	}
	return c.JSON(resp)
}

type CheckInput struct {
	LicenseKey string `json:"licenseKey"`
	DeviceID   string `json:"deviceId"`
}

// HandleLicenseCheck 客户端轻量探测：只读，不消费配额
func HandleLicenseCheck(c *fiber.Ctx) error {
	input := new(CheckInput)
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
		return c.JSON(fiber.Map{
			"success":    true,
			"valid":      result.Valid,
			"hasLicense": result.Valid,
			"plan":       result.Plan,
			"limit":      result.Limit,
			"usage":      result.UsedToday,
			"remaining":  result.Remaining,
			"expiresAt":  result.ExpiresAt,
		})
	}

	// 无许可证：按访客限额返回当前设备用量
	used := 0
	if input.DeviceID != "" {
		var err error
		used, err = service.GetOrZero(database.DB, "device:"+input.DeviceID, model.DateKey(time.Now()))
		if err != nil {
			return quotaError(c, err)
		}
	}
	remaining := appConfig.GuestDailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"valid":      false,
		"hasLicense": false,
		"plan":       "Guest",
		"limit":      appConfig.GuestDailyLimit,
		"usage":      used,
		"remaining":  remaining,
	})
}

type ValidateInput struct {
	LicenseKey string `json:"licenseKey"`
}

// HandleLicenseValidate 完整校验许可证并返回当日用量
func HandleLicenseValidate(c *fiber.Ctx) error {
	input := new(ValidateInput)
	if err := c.BodyParser(input); err != nil || input.LicenseKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "许可证密钥不能为空",
		})
	}

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
		"license": fiber.Map{
			"plan":       result.Plan,
			"dailyLimit": result.Limit,
			"usedToday":  result.UsedToday,
			"remaining":  result.Remaining,
			"expiresAt":  result.ExpiresAt,
		},
	})
}

// quotaError 把引擎错误映射为HTTP响应，存储故障一律拒绝（fail closed）
func quotaError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrMissingIdentity):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "缺少许可证密钥或设备ID",
		})
	case errors.Is(err, service.ErrInvalidLicense):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "许可证无效或已停用",
		})
	case errors.Is(err, service.ErrLicenseExpired):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "许可证已过期",
		})
	case errors.Is(err, service.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "无效的输入数据",
		})
	case errors.Is(err, service.ErrStoreUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   "存储暂不可用",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "服务器内部错误",
		})
	}
}

package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"scraper-quota-system/internal/database"
	"scraper-quota-system/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type lemonsqueezyPayload struct {
	Meta struct {
		EventName string `json:"event_name"`
	} `json:"meta"`
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			UserEmail   string `json:"user_email"`
			UserName    string `json:"user_name"`
			Key         string `json:"key"`
			Status      string `json:"status"`
			VariantName string `json:"variant_name"`
		} `json:"attributes"`
	} `json:"data"`
}

// verifySignature HMAC-SHA256 十六进制签名比对
func verifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	digest := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(digest), []byte(signature))
}

// HandleLemonsqueezyWebhook 支付回调：验签后按 license_key 幂等开通
func HandleLemonsqueezyWebhook(c *fiber.Ctx) error {
	secret := appConfig.WebhookSecret
	if secret == "" {
		log.Error().Msg("LEMONSQUEEZY_WEBHOOK_SECRET 未配置")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Server config error",
		})
	}

	signature := c.Get("X-Signature")
	if signature == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing signature",
		})
	}

	body := c.Body()
	if !verifySignature(secret, body, signature) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid signature",
		})
	}

	payload := new(lemonsqueezyPayload)
	if err := json.Unmarshal(body, payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid payload",
		})
	}

	eventName := payload.Meta.EventName
	if eventName != "license_key_created" && eventName != "order_created" {
		return c.JSON(fiber.Map{"received": true})
	}

	// 存档与开通同一事务：开通失败时存档回滚，等待支付方重试
	license, fresh, err := service.ProcessWebhookEvent(database.DB, "lemonsqueezy", service.WebhookLicenseInput{
		EventName:   eventName,
		EventID:     payload.Data.ID,
		LicenseKey:  payload.Data.Attributes.Key,
		Email:       payload.Data.Attributes.UserEmail,
		Name:        payload.Data.Attributes.UserName,
		Status:      payload.Data.Attributes.Status,
		VariantName: payload.Data.Attributes.VariantName,
	})
	if err != nil {
		log.Error().Err(err).Str("event", eventName).Msg("许可证开通失败")
		if errors.Is(err, service.ErrStoreUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "Store unavailable",
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Webhook processing failed",
		})
	}
	// 同一事件重复投递直接确认
	if !fresh {
		return c.JSON(fiber.Map{"received": true})
	}

	log.Info().
		Str("license_key", license.LicenseKey).
		Str("email", license.Email).
		Str("plan", license.Plan).
		Msg("支付侧许可证已落库")

	if sheetSync != nil {
		go sheetSync.SyncLicense(license)
	}

	return c.JSON(fiber.Map{"received": true})
}

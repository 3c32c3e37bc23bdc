package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"scraper-quota-system/internal/database"
	"scraper-quota-system/internal/model"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookPayload(eventName, eventID, key, variantName string) []byte {
	payload := fiber.Map{
		"meta": fiber.Map{"event_name": eventName},
		"data": fiber.Map{
			"id": eventID,
			"attributes": fiber.Map{
				"user_email":   "buyer@example.com",
				"user_name":    "Buyer",
				"key":          key,
				"status":       "active",
				"variant_name": variantName,
			},
		},
	}
	raw, _ := json.Marshal(payload)
	return raw
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("POST", "/api/v1/webhook/lemonsqueezy", strings.NewReader(string(body)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Signature", signature)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestHandleWebhookProvisionsLicense(t *testing.T) {
	app := setupTestApp(t)

	body := webhookPayload("license_key_created", "evt-100", "TEAM-AAAA-BBBB-CCCC", "Monthly Subscription")
	resp := postWebhook(t, app, body, signBody("test-secret", body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var license model.License
	require.NoError(t, database.DB.Where("license_key = ?", "TEAM-AAAA-BBBB-CCCC").First(&license).Error)
	assert.Equal(t, "Monthly Pro", license.Plan)
	assert.Equal(t, 25000, license.DailyLimit)
	assert.True(t, license.IsActive)
	require.NotNil(t, license.ExpiresAt)
}

func TestHandleWebhookIdempotent(t *testing.T) {
	app := setupTestApp(t)

	body := webhookPayload("license_key_created", "evt-200", "TEAM-DDDD-EEEE-FFFF", "Lifetime Deal")
	signature := signBody("test-secret", body)

	// 同一事件投递两次
	resp := postWebhook(t, app, body, signature)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp = postWebhook(t, app, body, signature)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var rows int64
	database.DB.Model(&model.License{}).
		Where("license_key = ?", "TEAM-DDDD-EEEE-FFFF").Count(&rows)
	assert.Equal(t, int64(1), rows)

	var license model.License
	require.NoError(t, database.DB.Where("license_key = ?", "TEAM-DDDD-EEEE-FFFF").First(&license).Error)
	assert.Equal(t, "Lifetime", license.Plan)
	assert.Equal(t, 50000, license.DailyLimit)
	assert.Nil(t, license.ExpiresAt)
}

func TestHandleWebhookRetryAfterStoreFailure(t *testing.T) {
	app := setupTestApp(t)

	body := webhookPayload("license_key_created", "evt-500", "TEAM-PPPP-QQQQ-RRRR", "Monthly Subscription")
	signature := signBody("test-secret", body)

	// 让开通失败：临时删掉 licenses 表
	require.NoError(t, database.DB.Migrator().DropTable(&model.License{}))

	resp := postWebhook(t, app, body, signature)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	// 失败的事件不能被标记为已处理
	var events int64
	database.DB.Model(&model.WebhookEvent{}).
		Where("provider_event_id = ?", "evt-500").Count(&events)
	assert.Equal(t, int64(0), events)

	// 支付方重试同一事件：这次必须开通成功
	require.NoError(t, database.DB.AutoMigrate(&model.License{}))

	resp = postWebhook(t, app, body, signature)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var license model.License
	require.NoError(t, database.DB.Where("license_key = ?", "TEAM-PPPP-QQQQ-RRRR").First(&license).Error)
	assert.Equal(t, "Monthly Pro", license.Plan)
	assert.True(t, license.IsActive)
}

func TestHandleWebhookSignature(t *testing.T) {
	app := setupTestApp(t)

	body := webhookPayload("license_key_created", "evt-300", "TEAM-1111-2222-3333", "Daily Pass")

	// 缺签名
	resp := postWebhook(t, app, body, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// 错误签名
	resp = postWebhook(t, app, body, signBody("wrong-secret", body))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// 签名失败时不落库
	var rows int64
	database.DB.Model(&model.License{}).
		Where("license_key = ?", "TEAM-1111-2222-3333").Count(&rows)
	assert.Equal(t, int64(0), rows)
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	app := setupTestApp(t)

	body := webhookPayload("subscription_updated", "evt-400", "TEAM-4444-5555-6666", "Monthly")
	resp := postWebhook(t, app, body, signBody("test-secret", body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var rows int64
	database.DB.Model(&model.License{}).Count(&rows)
	assert.Equal(t, int64(0), rows)
}

package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"scraper-quota-system/internal/config"
	"scraper-quota-system/internal/database"
	"scraper-quota-system/internal/middleware"
	"scraper-quota-system/internal/model"
	"scraper-quota-system/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()
	database.InitTestDB()
	t.Cleanup(database.CleanTestDB)

	cfg := config.Config{
		GuestDailyLimit:      500,
		AbuseDeviceThreshold: 3,
		WebhookSecret:        "test-secret",
	}
	quotaAuthority := service.NewQuotaAuthority(database.DB, cfg, zerolog.Nop())
	Init(quotaAuthority, nil, cfg)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Get("/health", HandleHealth)

	license := api.Group("/license")
	license.Post("/use", HandleLicenseUse)
	license.Post("/check", HandleLicenseCheck)
	license.Post("/validate", HandleLicenseValidate)
	api.Post("/client/config", HandleClientConfig)

	api.Post("/webhook/lemonsqueezy", HandleLemonsqueezyWebhook)

	admin := api.Group("/admin")
	admin.Post("/login", HandleUserLogin)
	adminProtected := admin.Group("/", middleware.Auth(), middleware.AdminOnly())
	adminProtected.Get("/licenses", HandleGetAllLicenses)
	adminProtected.Post("/licenses/create", HandleCreateLicense)
	adminProtected.Post("/licenses/toggle", HandleToggleLicense)
	adminProtected.Get("/stats", HandleDashboardStats)

	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest("POST", path, bytes.NewBuffer(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	payload := make(map[string]interface{})
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &payload))
	}
	return payload
}

func insertLicense(t *testing.T, limit int, active bool, expiresAt *time.Time) *model.License {
	t.Helper()
	license := &model.License{
		ID:         uuid.NewString(),
		LicenseKey: service.GenerateLicenseKey(),
		Email:      "buyer@example.com",
		Plan:       "Pro",
		DailyLimit: limit,
		IsActive:   active,
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	require.NoError(t, database.DB.Create(license).Error)
	return license
}

func TestHandleLicenseUseGuest(t *testing.T) {
	app := setupTestApp(t)

	// 第一次 300：放行
	resp, payload := postJSON(t, app, "/api/v1/license/use", fiber.Map{
		"deviceId": "http-d1",
		"count":    300,
	}, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, payload["allowed"])
	assert.Equal(t, float64(300), payload["used"])
	assert.Equal(t, float64(200), payload["remaining"])
	assert.Equal(t, float64(500), payload["limit"])

	// 第二次 300：超限拒绝，计数不动
	resp, payload = postJSON(t, app, "/api/v1/license/use", fiber.Map{
		"deviceId": "http-d1",
		"count":    300,
	}, nil)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, false, payload["allowed"])
	assert.Equal(t, float64(300), payload["used"])
	assert.Equal(t, float64(0), payload["remaining"])
	assert.Equal(t, "quota_exceeded", payload["reason"])
}

func TestHandleLicenseUseErrors(t *testing.T) {
	app := setupTestApp(t)

	tests := []struct {
		name       string
		body       fiber.Map
		wantStatus int
	}{
		{
			name:       "missing_identity",
			body:       fiber.Map{"count": 1},
			wantStatus: fiber.StatusBadRequest,
		},
		{
			name:       "unknown_license",
			body:       fiber.Map{"licenseKey": "TEAM-0000-0000-0000"},
			wantStatus: fiber.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, payload := postJSON(t, app, "/api/v1/license/use", tt.body, nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, false, payload["success"])
		})
	}
}

func TestHandleLicenseUseExpired(t *testing.T) {
	app := setupTestApp(t)

	past := time.Now().Add(-time.Second)
	expired := insertLicense(t, 1000, true, &past)

	resp, payload := postJSON(t, app, "/api/v1/license/use", fiber.Map{
		"licenseKey": expired.LicenseKey,
	}, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "许可证已过期", payload["error"])
}

func TestHandleLicenseValidate(t *testing.T) {
	app := setupTestApp(t)

	license := insertLicense(t, 1000, true, nil)

	// 缺密钥
	resp, _ := postJSON(t, app, "/api/v1/license/validate", fiber.Map{}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// 有效许可证
	resp, payload := postJSON(t, app, "/api/v1/license/validate", fiber.Map{
		"licenseKey": license.LicenseKey,
	}, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, payload["success"])

	licenseBlock := payload["license"].(map[string]interface{})
	assert.Equal(t, "Pro", licenseBlock["plan"])
	assert.Equal(t, float64(1000), licenseBlock["dailyLimit"])
	assert.Equal(t, float64(0), licenseBlock["usedToday"])
	assert.Equal(t, float64(1000), licenseBlock["remaining"])
}

func TestHandleLicenseCheckGuest(t *testing.T) {
	app := setupTestApp(t)

	// 探测不消费配额
	for i := 0; i < 2; i++ {
		resp, payload := postJSON(t, app, "/api/v1/license/check", fiber.Map{
			"deviceId": "check-d1",
		}, nil)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, false, payload["hasLicense"])
		assert.Equal(t, "Guest", payload["plan"])
		assert.Equal(t, float64(0), payload["usage"])
		assert.Equal(t, float64(500), payload["remaining"])
	}
}

func TestHandleClientConfig(t *testing.T) {
	app := setupTestApp(t)

	license := insertLicense(t, 25000, true, nil)

	// 许可证身份返回套餐信息
	resp, payload := postJSON(t, app, "/api/v1/client/config", fiber.Map{
		"licenseKey": license.LicenseKey,
	}, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, payload["success"])
	assert.NotNil(t, payload["config"])

	user := payload["user"].(map[string]interface{})
	assert.Equal(t, "license", user["type"])
	assert.Equal(t, float64(25000), user["limit"])

	// 访客身份回落到访客限额
	resp, payload = postJSON(t, app, "/api/v1/client/config", fiber.Map{
		"deviceId": "cfg-d1",
	}, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	user = payload["user"].(map[string]interface{})
	assert.Equal(t, "guest", user["type"])
	assert.Equal(t, float64(500), user["limit"])
}

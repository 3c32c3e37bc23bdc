package handler

import (
	"net/http"
	"testing"

	"scraper-quota-system/internal/database"
	"scraper-quota-system/internal/model"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func seedAdmin(t *testing.T) {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
	require.NoError(t, err)
	require.NoError(t, database.DB.Create(&model.User{
		Username: "admin",
		Password: string(hashed),
		Email:    "admin@example.com",
		Role:     "admin",
		Status:   "active",
	}).Error)
}

func adminToken(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, payload := postJSON(t, app, "/api/v1/admin/login", fiber.Map{
		"username": "admin",
		"password": "admin",
	}, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	token, ok := payload["token"].(string)
	require.True(t, ok)
	return token
}

func TestAdminLogin(t *testing.T) {
	app := setupTestApp(t)
	seedAdmin(t)

	tests := []struct {
		name       string
		username   string
		password   string
		wantStatus int
	}{
		{name: "valid_login", username: "admin", password: "admin", wantStatus: fiber.StatusOK},
		{name: "wrong_password", username: "admin", password: "nope", wantStatus: fiber.StatusUnauthorized},
		{name: "unknown_user", username: "ghost", password: "admin", wantStatus: fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := postJSON(t, app, "/api/v1/admin/login", fiber.Map{
				"username": tt.username,
				"password": tt.password,
			}, nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestAdminCreateAndToggleLicense(t *testing.T) {
	app := setupTestApp(t)
	seedAdmin(t)
	token := adminToken(t, app)
	auth := map[string]string{"Authorization": "Bearer " + token}

	// 未认证直接拒绝
	resp, _ := postJSON(t, app, "/api/v1/admin/licenses/create", fiber.Map{
		"email": "a@b.c", "plan": "Pro",
	}, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// 创建许可证
	resp, payload := postJSON(t, app, "/api/v1/admin/licenses/create", fiber.Map{
		"email":        "buyer@example.com",
		"plan":         "Pro",
		"limit":        2000,
		"durationDays": 30,
	}, auth)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	licenseBlock := payload["license"].(map[string]interface{})
	licenseID := licenseBlock["id"].(string)
	assert.Regexp(t, `^TEAM-`, licenseBlock["license_key"])

	// 缺邮箱报参数错误
	resp, _ = postJSON(t, app, "/api/v1/admin/licenses/create", fiber.Map{
		"plan": "Pro",
	}, auth)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// 停用
	resp, payload = postJSON(t, app, "/api/v1/admin/licenses/toggle", fiber.Map{
		"id":        licenseID,
		"is_active": false,
	}, auth)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	licenseBlock = payload["license"].(map[string]interface{})
	assert.Equal(t, false, licenseBlock["is_active"])

	// 未知ID
	resp, _ = postJSON(t, app, "/api/v1/admin/licenses/toggle", fiber.Map{
		"id":        "no-such-id",
		"is_active": true,
	}, auth)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	// 操作日志已记录
	var logCount int64
	database.DB.Model(&model.OperationLog{}).Count(&logCount)
	assert.GreaterOrEqual(t, logCount, int64(2))
}

func TestAdminStats(t *testing.T) {
	app := setupTestApp(t)
	seedAdmin(t)
	token := adminToken(t, app)

	// 造一点用量：一个 IP 三个设备触发滥用告警
	for _, device := range []string{"s1", "s2", "s3"} {
		resp, _ := postJSON(t, app, "/api/v1/license/use", fiber.Map{
			"deviceId": device,
			"count":    10,
		}, map[string]string{"X-Forwarded-For": "7.7.7.7"})
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	req, err := http.NewRequest("GET", "/api/v1/admin/stats", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := decodeBody(t, resp)
	stats := payload["stats"].(map[string]interface{})
	assert.Equal(t, float64(30), stats["total_scrapes_today"])
	assert.Equal(t, float64(3), stats["unique_users_today"])

	suspicious := payload["suspicious"].([]interface{})
	require.Len(t, suspicious, 1)
	signal := suspicious[0].(map[string]interface{})
	assert.Equal(t, "7.7.7.7", signal["ip_address"])
	assert.Equal(t, float64(3), signal["device_count"])

	customers := payload["customers"].([]interface{})
	assert.Len(t, customers, 3)
}

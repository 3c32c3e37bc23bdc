package config

import (
	"os"
	"strconv"
)

// Config 启动时从环境变量读取一次，之后显式传入各组件
// 引擎内部不再直接读环境变量
type Config struct {
	Port         string
	DatabasePath string
	JWTSecret    string

	// 支付回调
	WebhookSecret string

	// 配额相关
	QuotaBypass          bool // 放行模式：跳过配额检查，仅记录用量
	GuestDailyLimit      int  // 无许可证设备的每日限额
	AbuseDeviceThreshold int  // 同一 IP 当日关联设备数达到该值即告警

	// Google Sheets 同步
	SheetSyncEnabled    bool
	SheetCredentialPath string
	SheetSpreadsheetID  string
	SheetName           string
}

func Load() Config {
	return Config{
		Port:          getEnv("PORT", "80"),
		DatabasePath:  getEnv("DATABASE_PATH", "data/quota.db"),
		JWTSecret:     getEnv("JWT_SECRET", "scraper-quota-secret"),
		WebhookSecret: os.Getenv("LEMONSQUEEZY_WEBHOOK_SECRET"),

		QuotaBypass:          getEnvBool("QUOTA_BYPASS", false),
		GuestDailyLimit:      getEnvInt("GUEST_DAILY_LIMIT", 500),
		AbuseDeviceThreshold: getEnvInt("ABUSE_DEVICE_THRESHOLD", 3),

		SheetSyncEnabled:    getEnvBool("SHEET_SYNC_ENABLED", false),
		SheetCredentialPath: os.Getenv("SHEET_CREDENTIAL_PATH"),
		SheetSpreadsheetID:  os.Getenv("SHEET_SPREADSHEET_ID"),
		SheetName:           getEnv("SHEET_NAME", "Licenses"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

package main

import (
	"log"
	"os"

	"scraper-quota-system/internal/config"
	"scraper-quota-system/internal/database"
	"scraper-quota-system/internal/handler"
	"scraper-quota-system/internal/middleware"
	"scraper-quota-system/internal/service"
	"scraper-quota-system/internal/util"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/rs/zerolog"
)

func main() {
	cfg := config.Load()

	// 初始化数据库
	database.InitDB(cfg.DatabasePath)
	util.SetJWTSecret(cfg.JWTSecret)

	engineLog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	quota := service.NewQuotaAuthority(database.DB, cfg, engineLog)

	sheetSync, err := service.NewSheetSyncService(cfg.SheetSyncEnabled, cfg.SheetCredentialPath, cfg.SheetSpreadsheetID, cfg.SheetName)
	if err != nil {
		log.Println("Sheet同步初始化失败:", err)
	}

	handler.Init(quota, sheetSync, cfg)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// 中间件
	app.Use(logger.New())
	app.Use(cors.New())

	// 路由组
	api := app.Group("/api/v1")
	api.Get("/health", handler.HandleHealth)

	// 客户端路由
	license := api.Group("/license")
	license.Post("/use", handler.HandleLicenseUse)
	license.Post("/check", handler.HandleLicenseCheck)
	license.Post("/validate", handler.HandleLicenseValidate)
	api.Post("/client/config", handler.HandleClientConfig)

	// 支付回调
	api.Post("/webhook/lemonsqueezy", handler.HandleLemonsqueezyWebhook)

	// 认证路由
	auth := api.Group("/auth")
	auth.Post("/validate-token", handler.HandleValidateToken)
	auth.Post("/change-password", middleware.Auth(), handler.HandleChangePassword)

	// 管理员路由
	admin := api.Group("/admin")
	admin.Post("/login", handler.HandleUserLogin)

	adminProtected := admin.Group("/", middleware.Auth(), middleware.AdminOnly())
	adminProtected.Get("/licenses", handler.HandleGetAllLicenses)
	adminProtected.Post("/licenses/create", handler.HandleCreateLicense)
	adminProtected.Post("/licenses/toggle", handler.HandleToggleLicense)
	adminProtected.Get("/stats", handler.HandleDashboardStats)
	adminProtected.Get("/logs", handler.HandleGetLogs)

	log.Fatal(app.Listen(":" + cfg.Port))
}

package database

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"scraper-quota-system/internal/model"

	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB(dbPath string) {
	var err error
	// 创建数据目录
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal("创建数据目录失败:", err)
		}
	}

	// 写锁等待而不是立刻报 busy
	DB, err = gorm.Open(sqlite.Open(dbPath+"?_pragma=busy_timeout(10000)"), &gorm.Config{})
	if err != nil {
		log.Fatal("数据库连接失败:", err)
	}

	// 自动迁移模型
	err = DB.AutoMigrate(
		&model.User{},
		&model.License{},
		&model.UsageRecord{},
		&model.WebhookEvent{},
		&model.OperationLog{},
		&model.LoginLog{},
	)
	if err != nil {
		log.Fatal("数据库迁移失败:", err)
	}

	// 检查是否已存在管理员账户
	var adminCount int64
	DB.Model(&model.User{}).Where("username = ?", "admin").Count(&adminCount)

	if adminCount == 0 {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal("生成密码哈希失败:", err)
		}

		admin := &model.User{
			Username:  "admin",
			Password:  string(hashedPassword),
			Email:     "admin@example.com",
			Role:      "admin",
			Status:    "active",
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}

		if err := DB.Create(admin).Error; err != nil {
			log.Fatal("创建管理员账户失败:", err)
		}

		log.Println("已创建默认管理员账户")
	}
}

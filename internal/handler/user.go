package handler

import (
	"time"

	"scraper-quota-system/internal/database"
	"scraper-quota-system/internal/model"
	"scraper-quota-system/internal/util"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleUserLogin 管理端登录，返回JWT令牌
func HandleUserLogin(c *fiber.Ctx) error {
	input := new(LoginInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "无效的输入数据",
		})
	}

	var user model.User
	result := database.DB.Where("username = ?", input.Username).First(&user)
	if result.Error != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "用户名或密码错误",
		})
	}

	// 验证密码
	err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password))
	if err != nil {
		// 记录失败的登录
		database.DB.Create(&model.LoginLog{
			UserID:    user.ID,
			IP:        clientIP(c),
			UserAgent: c.Get("User-Agent"),
			Status:    "failed",
			CreatedAt: time.Now(),
		})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "用户名或密码错误",
		})
	}

	// 记录登录日志
	loginLog := &model.LoginLog{
		UserID:    user.ID,
		IP:        clientIP(c),
		UserAgent: c.Get("User-Agent"),
		Status:    "success",
		CreatedAt: time.Now(),
	}
	database.DB.Create(loginLog)

	// 更新用户最后登录时间
	user.LastLogin = time.Now()
	database.DB.Save(&user)

	// 生成JWT令牌
	token, err := util.GenerateToken(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "令牌生成失败",
		})
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
			"role":     user.Role,
		},
	})
}

type TokenInput struct {
	Token string `json:"token"`
}

// HandleValidateToken 校验令牌有效性
func HandleValidateToken(c *fiber.Ctx) error {
	input := new(TokenInput)
	if err := c.BodyParser(input); err != nil || input.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"valid": false,
			"error": "无效的输入数据",
		})
	}

	userID, err := util.ValidateToken(input.Token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"valid": false,
			"error": "无效的认证令牌",
		})
	}

	var user model.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"valid": false,
			"error": "用户不存在",
		})
	}

	return c.JSON(fiber.Map{
		"valid": true,
		"user": fiber.Map{
			"id":       user.ID,
			"username": user.Username,
			"role":     user.Role,
		},
	})
}

type ChangePasswordInput struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// HandleChangePassword 修改当前用户密码
func HandleChangePassword(c *fiber.Ctx) error {
	input := new(ChangePasswordInput)
	if err := c.BodyParser(input); err != nil || input.NewPassword == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "无效的输入数据",
		})
	}

	userID := c.Locals("userID").(uint)

	var user model.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "用户不存在",
		})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.OldPassword)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "原密码错误",
		})
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "密码加密失败",
		})
	}

	user.Password = string(hashedPassword)
	user.UpdatedAt = time.Now()
	database.DB.Save(&user)

	return c.JSON(fiber.Map{
		"message": "密码修改成功",
	})
}

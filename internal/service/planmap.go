package service

import "strings"

// PlanProfile 套餐档位：名称、每日限额、有效天数（0 表示永久）
type PlanProfile struct {
	Plan         string
	DailyLimit   int
	DurationDays int
}

// 外部商品 variant 名称到内部套餐的映射表
// 匹配子串，大小写敏感，与支付方商品命名保持一致
var planTable = []struct {
	keyword string
	profile PlanProfile
}{
	{"Daily", PlanProfile{Plan: "Daily Pass", DailyLimit: 5000, DurationDays: 2}},
	{"Monthly", PlanProfile{Plan: "Monthly Pro", DailyLimit: 25000, DurationDays: 30}},
	{"Lifetime", PlanProfile{Plan: "Lifetime", DailyLimit: 50000, DurationDays: 0}},
}

// DefaultPlanProfile 未命中任何关键词时的兜底套餐
var DefaultPlanProfile = PlanProfile{Plan: "Pro", DailyLimit: 25000, DurationDays: 0}

// ResolvePlan 按商品 variant 名称推断套餐，纯函数便于独立测试
func ResolvePlan(variantName string) PlanProfile {
	for _, entry := range planTable {
		if strings.Contains(variantName, entry.keyword) {
			return entry.profile
		}
	}
	return DefaultPlanProfile
}

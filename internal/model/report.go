package model

// AbuseSignal 派生数据：同一 IP 当日关联的不同设备数
type AbuseSignal struct {
	IPAddress   string   `json:"ip_address"`
	Date        string   `json:"date"`
	DeviceCount int      `json:"device_count"`
	DeviceIDs   []string `json:"device_ids"` // 最多 5 个样本
}

// CustomerAggregate 派生数据：按 device_id 汇总的客户视图
type CustomerAggregate struct {
	DeviceID     string `json:"device_id"`
	IPAddress    string `json:"ip_address"`
	UserAgent    string `json:"user_agent"`
	TotalScrapes int    `json:"total_scrapes"`
	LastActive   string `json:"last_active"`
}

// DashboardStats 运营看板顶部统计
type DashboardStats struct {
	TotalLicenses     int64  `json:"total_licenses"`
	ActiveLicenses    int64  `json:"active_licenses"`
	TotalScrapesToday int    `json:"total_scrapes_today"`
	UniqueUsersToday  int64  `json:"unique_users_today"`
	Date              string `json:"date"`
}

package service

import (
	"errors"
	"fmt"
	"time"

	"scraper-quota-system/internal/config"
	"scraper-quota-system/internal/model"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// QuotaAuthority 配额裁决：解析身份、套用限额、原子累加计数
// 配置在构造时注入，运行期不读环境变量
type QuotaAuthority struct {
	db             *gorm.DB
	guestLimit     int
	abuseThreshold int
	bypass         bool
	logger         zerolog.Logger
}

func NewQuotaAuthority(db *gorm.DB, cfg config.Config, logger zerolog.Logger) *QuotaAuthority {
	return &QuotaAuthority{
		db:             db,
		guestLimit:     cfg.GuestDailyLimit,
		abuseThreshold: cfg.AbuseDeviceThreshold,
		bypass:         cfg.QuotaBypass,
		logger:         logger,
	}
}

type CheckInput struct {
	LicenseKey string
	DeviceID   string
	Count      int
	IPAddress  string
	UserAgent  string
}

type CheckResult struct {
	Allowed   bool
	Used      int
	Remaining int
	Limit     int
	Plan      string
	Reason    string
}

// CheckAndConsume 判定并消费配额
// 身份解析顺序：许可证密钥优先，其次设备ID，两者都缺失则报错
// 超限不是 error，以 Allowed=false 返回；存储故障 fail closed
func (q *QuotaAuthority) CheckAndConsume(in CheckInput) (CheckResult, error) {
	if in.Count <= 0 {
		in.Count = 1
	}
	today := model.DateKey(time.Now())

	// 放行模式：不做配额检查，尽力记录用量后直接放行
	if q.bypass {
		q.recordBestEffort(in, today)
		return CheckResult{
			Allowed:   true,
			Used:      0,
			Remaining: model.UnlimitedSentinel,
			Limit:     model.UnlimitedSentinel,
			Plan:      "Lifetime Pro",
		}, nil
	}

	inc := IncrementInput{
		Date:      today,
		Delta:     in.Count,
		DeviceID:  in.DeviceID,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
	}
	plan := "Guest"

	switch {
	case in.LicenseKey != "":
		var license model.License
		err := q.db.Where("license_key = ?", in.LicenseKey).First(&license).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return CheckResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if err != nil || !license.IsActive {
			return CheckResult{}, ErrInvalidLicense
		}
		if license.IsExpired(time.Now()) {
			return CheckResult{}, ErrLicenseExpired
		}
		inc.IdentityKey = "license:" + license.ID
		inc.LicenseID = license.ID
		inc.Limit = license.DailyLimit
		inc.Unlimited = license.IsUnlimited()
		plan = license.Plan
	case in.DeviceID != "":
		inc.IdentityKey = "device:" + in.DeviceID
		inc.Limit = q.guestLimit
	default:
		return CheckResult{}, ErrMissingIdentity
	}

	allowed, newCount, err := AtomicIncrement(q.db, inc)
	if err != nil {
		return CheckResult{}, err
	}

	// 设备身份的滥用观测只记录告警，不改变判定
	if in.LicenseKey == "" {
		q.observeAbuse(in.DeviceID, in.IPAddress, today)
	}

	if !allowed {
		return CheckResult{
			Allowed:   false,
			Used:      newCount,
			Remaining: 0,
			Limit:     inc.Limit,
			Plan:      plan,
			Reason:    "quota_exceeded",
		}, nil
	}

	remaining := inc.Limit - newCount
	if remaining < 0 {
		remaining = 0
	}
	if inc.Unlimited {
		remaining = model.UnlimitedSentinel
	}

	return CheckResult{
		Allowed:   true,
		Used:      newCount,
		Remaining: remaining,
		Limit:     inc.Limit,
		Plan:      plan,
	}, nil
}

// recordBestEffort 放行模式下的用量留痕，失败只记日志
func (q *QuotaAuthority) recordBestEffort(in CheckInput, date string) {
	if in.DeviceID == "" {
		return
	}
	_, _, err := AtomicIncrement(q.db, IncrementInput{
		IdentityKey: "device:" + in.DeviceID,
		Date:        date,
		Delta:       in.Count,
		DeviceID:    in.DeviceID,
		Unlimited:   true,
		IPAddress:   in.IPAddress,
		UserAgent:   in.UserAgent,
	})
	if err != nil {
		q.logger.Warn().Err(err).Str("device_id", in.DeviceID).Msg("用量留痕失败")
	}
}

// observeAbuse 同一 IP 当日关联设备数达到阈值时输出告警
func (q *QuotaAuthority) observeAbuse(deviceID, ip, date string) {
	if ip == "" || ip == "unknown" || deviceID == "" {
		return
	}
	others, err := CountDistinctDevicesForIP(q.db, ip, date, deviceID)
	if err != nil {
		q.logger.Warn().Err(err).Msg("滥用观测查询失败")
		return
	}
	// 含当前设备在内达到阈值
	if int(others)+1 >= q.abuseThreshold {
		q.logger.Warn().
			Str("ip", ip).
			Str("date", date).
			Int64("device_count", others+1).
			Msg("同一IP多设备使用")
	}
}

type ValidateResult struct {
	Valid     bool
	Plan      string
	Limit     int
	UsedToday int
	Remaining int
	ExpiresAt *time.Time
	Reason    string
}

// ValidateLicense 只读校验，不消费配额
func (q *QuotaAuthority) ValidateLicense(licenseKey string) (ValidateResult, error) {
	if licenseKey == "" {
		return ValidateResult{}, ErrValidation
	}

	var license model.License
	err := q.db.Where("license_key = ?", licenseKey).First(&license).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return ValidateResult{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err != nil || !license.IsActive {
		return ValidateResult{Valid: false, Reason: "invalid_license"}, nil
	}
	if license.IsExpired(time.Now()) {
		return ValidateResult{Valid: false, Reason: "license_expired", ExpiresAt: license.ExpiresAt}, nil
	}

	used, err := GetOrZero(q.db, "license:"+license.ID, model.DateKey(time.Now()))
	if err != nil {
		return ValidateResult{}, err
	}

	remaining := license.DailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	if license.IsUnlimited() {
		remaining = model.UnlimitedSentinel
	}

	return ValidateResult{
		Valid:     true,
		Plan:      license.Plan,
		Limit:     license.DailyLimit,
		UsedToday: used,
		Remaining: remaining,
		ExpiresAt: license.ExpiresAt,
	}, nil
}

package service

import "errors"

// 配额判定中的业务性失败作为哨兵错误返回，由调用方映射为响应
// 超限（QuotaExceeded）不是错误，以 CheckResult.Allowed=false 表达
var (
	ErrInvalidLicense   = errors.New("license not found or inactive")
	ErrLicenseExpired   = errors.New("license expired")
	ErrMissingIdentity  = errors.New("neither license key nor device id supplied")
	ErrValidation       = errors.New("invalid input")
	ErrNotFound         = errors.New("record not found")
	ErrStoreUnavailable = errors.New("store unavailable")
)

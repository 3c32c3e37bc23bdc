package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const licenseKeyPrefix = "TEAM"

// GenerateLicenseKey 生成 TEAM-XXXX-XXXX-XXXX 形式的许可证密钥
func GenerateLicenseKey() string {
	head := make([]byte, 6)
	rand.Read(head)
	tail := make([]byte, 2)
	rand.Read(tail)

	hexHead := strings.ToUpper(hex.EncodeToString(head))
	part1 := hexHead[0:4]
	part2 := hexHead[4:8]
	part3 := strings.ToUpper(hex.EncodeToString(tail))

	return fmt.Sprintf("%s-%s-%s-%s", licenseKeyPrefix, part1, part2, part3)
}

package utils

import (
	"regexp"
	"strings"
)

var mainlandPhone = regexp.MustCompile(`^1[3-9]\d{9}$`)

// ValidatePhone 提醒接收号码，允许带 +86 前缀
func ValidatePhone(phone string) bool {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), "+86")
	return mainlandPhone.MatchString(phone)
}

// MaskPhone 日志中只保留前三后四位
func MaskPhone(phone string) string {
	if len(phone) < 7 {
		return "****"
	}
	return phone[:3] + "****" + phone[len(phone)-4:]
}

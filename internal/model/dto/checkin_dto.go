package dto

import "time"

// ========== CheckIn 相关 DTO ==========

// CheckInStatusData 今日打卡状态
type CheckInStatusData struct {
	Reminder      *ReminderData `json:"reminder,omitempty"`
	LastCheckInAt string        `json:"last_check_in_date,omitempty"`
	Date          string        `json:"date"`
	Timezone      string        `json:"timezone"`
	CheckedIn     bool          `json:"checked_in"`
	CurrentStreak int           `json:"current_streak"`
}

// CompleteCheckInResponse 完成打卡响应
type CompleteCheckInResponse struct {
	CompletedAt time.Time     `json:"completed_at"`
	Reminder    *ReminderData `json:"reminder,omitempty"`
	Date        string        `json:"date"`
	Warnings    []string      `json:"warnings,omitempty"`
	StreakDays  int           `json:"streak_days"`
	WasNew      bool          `json:"was_new"`
}

// CheckInHistoryQuery 打卡历史查询参数
type CheckInHistoryQuery struct {
	StartDate string `query:"start_date"`
	EndDate   string `query:"end_date"`
}

// CheckInHistoryResponse 打卡历史，按日期倒序
type CheckInHistoryResponse struct {
	Dates []string `json:"dates"`
	Total int      `json:"total"`
}

// CheckInStatsResponse 打卡统计
type CheckInStatsResponse struct {
	LastCheckInDate string `json:"last_check_in_date,omitempty"`
	CurrentStreak   int    `json:"current_streak"`
	LongestStreak   int    `json:"longest_streak"`
	TotalDays       int    `json:"total_days"`
}

// ========== Reminder 相关 DTO ==========

// ReminderData 提醒状态
type ReminderData struct {
	FireAt     *time.Time `json:"fire_at,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	BaseDay    string     `json:"base_day,omitempty"`
	TargetDay  string     `json:"target_day,omitempty"`
	Identifier string     `json:"identifier"`
	Status     string     `json:"status"`
	Warnings   []string   `json:"warnings,omitempty"`
	PastDue    bool       `json:"past_due"`
}

// ========== Device 相关 DTO ==========

// DeviceTokenRequest 申请设备令牌，device_id 为空时由服务端生成
type DeviceTokenRequest struct {
	DeviceID string `json:"device_id"`
}

// DeviceTokenResponse 设备令牌
type DeviceTokenResponse struct {
	ExpiresAt   time.Time `json:"expires_at"`
	DeviceID    string    `json:"device_id"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
}

// UpdateTimezoneRequest 设备上报时区变化
type UpdateTimezoneRequest struct {
	Timezone string `json:"timezone"`
}

package model

import "time"

// ReminderStatus 提醒状态枚举
type ReminderStatus string

const (
	ReminderStatusUnscheduled ReminderStatus = "unscheduled" // 尚未对账
	ReminderStatusScheduled   ReminderStatus = "scheduled"   // 已布置
	ReminderStatusFired       ReminderStatus = "fired"       // 已触发
	ReminderStatusCancelled   ReminderStatus = "cancelled"   // 已取消
)

// ReminderState 连续未打卡提醒的状态，只由调度器修改，不持久化
type ReminderState struct {
	FireAt     time.Time      `json:"fire_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Identifier string         `json:"identifier"`
	Status     ReminderStatus `json:"status"`
	BaseDay    DayKey         `json:"base_day"`
	TargetDay  DayKey         `json:"target_day"`
	PastDue    bool           `json:"past_due"` // 走了立即提醒分支
}

// IsScheduled 是否存在一个待触发的提醒
func (s ReminderState) IsScheduled() bool {
	return s.Status == ReminderStatusScheduled
}

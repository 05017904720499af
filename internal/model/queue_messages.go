package model

// ReminderMessage 连续未打卡提醒消息，走延迟交换机投递
type ReminderMessage struct {
	MessageID   string `json:"message_id"` // 每次布置生成一个，用于取消判断和幂等性检查
	Identifier  string `json:"identifier"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	FireAt      string `json:"fire_at"`      // RFC3339，预期触发时间
	ScheduledAt string `json:"scheduled_at"` // RFC3339，布置时间
	PastDue     bool   `json:"past_due"`
	Hop         int    `json:"hop"` // 超过单跳最大延迟时的续投次数
}

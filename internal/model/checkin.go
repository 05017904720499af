package model

// CheckInDay 打卡记录表，每行一个已打卡的日历日
type CheckInDay struct {
	BaseModel
	Day string `gorm:"type:varchar(10);primaryKey" json:"day"` // YYYY-MM-DD
}

// TableName 指定表名
func (CheckInDay) TableName() string {
	return "check_in_days"
}

// Device 绑定账本的设备，单用户场景下只有一行
type Device struct {
	BaseModel
	DeviceID string `gorm:"type:varchar(64);primaryKey" json:"device_id"`
}

// TableName 指定表名
func (Device) TableName() string {
	return "devices"
}

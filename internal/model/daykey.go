package model

import (
	"fmt"
	"time"
)

// DayKeyLayout 日期键的字符串与持久化格式
const DayKeyLayout = "2006-01-02"

// DayKey 本地日历日，取值为公历日期距 1970-01-01 的天数，与时区无关。
// 只能由 NormalizeDay / ParseDayKey / NewDayKey 产生，比较一律按天进行。
type DayKey int64

// NewDayKey 由公历年月日构造，越界的月/日按 time.Date 的规则归一
func NewDayKey(year int, month time.Month, day int) DayKey {
	return DayKey(time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// NormalizeDay 把某一时刻换算到 loc 下的日历日。
// loc 必须是调用时刻生效的时区，同一时刻在不同时区下可能落在不同的日子。
func NormalizeDay(instant time.Time, loc *time.Location) DayKey {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := instant.In(loc).Date()
	return NewDayKey(y, m, d)
}

// ParseDayKey 解析 YYYY-MM-DD
func ParseDayKey(s string) (DayKey, error) {
	t, err := time.Parse(DayKeyLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid day key %q: %w", s, err)
	}
	return NewDayKey(t.Date()), nil
}

// Date 返回该日的公历年月日
func (k DayKey) Date() (int, time.Month, int) {
	return time.Unix(int64(k)*86400, 0).UTC().Date()
}

// AddDays 日历日加减，不是固定时长的加减，跨夏令时和月末都按自然日计算
func (k DayKey) AddDays(n int) DayKey {
	return k + DayKey(n)
}

// Sub 返回 k 与 other 相差的天数
func (k DayKey) Sub(other DayKey) int {
	return int(k - other)
}

func (k DayKey) Before(other DayKey) bool { return k < other }
func (k DayKey) After(other DayKey) bool  { return k > other }

// At 该日在 loc 下的 hour:minute 墙上时间。
// 夏令时跳过的墙上时间由 time.Date 归一，结果仍落在当天。
func (k DayKey) At(loc *time.Location, hour, minute int) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := k.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, loc)
}

func (k DayKey) String() string {
	y, m, d := k.Date()
	return fmt.Sprintf("%04d-%02d-%02d", y, int(m), d)
}

func (k DayKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *DayKey) UnmarshalText(text []byte) error {
	parsed, err := ParseDayKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

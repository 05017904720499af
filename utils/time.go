package utils

import (
	"fmt"
	"time"
)

// ParseClock 解析一天中的时刻，支持 HH:MM 和 HH:MM:SS，秒会被忽略
func ParseClock(clock string) (hour, minute int, err error) {
	var parsed time.Time
	for _, layout := range []string{"15:04", "15:04:05"} {
		parsed, err = time.Parse(layout, clock)
		if err == nil {
			return parsed.Hour(), parsed.Minute(), nil
		}
	}
	return 0, 0, fmt.Errorf("invalid clock %q, expected HH:MM", clock)
}

// ParseTime 解析时间字符串（格式：HH:MM:SS）并应用到指定日期
func ParseTime(timeStr string, date time.Time) (time.Time, error) {
	if timeStr == "" {
		return date, nil
	}

	hour, minute, err := ParseClock(timeStr)
	if err != nil {
		return date, err
	}

	return time.Date(
		date.Year(),
		date.Month(),
		date.Day(),
		hour,
		minute,
		0,
		0,
		date.Location(),
	), nil
}

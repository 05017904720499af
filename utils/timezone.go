package utils

import (
	"os"
	"strings"
	"sync"
	"time"
)

// TimezoneProvider 返回调用时刻生效的时区，实现不得缓存系统时区
type TimezoneProvider interface {
	Location() *time.Location
}

// SystemTimezone 跟随宿主机时区，每次调用都重新读取 TZ
type SystemTimezone struct{}

func (SystemTimezone) Location() *time.Location {
	tz, ok := os.LookupEnv("TZ")
	if !ok {
		return time.Local
	}
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(strings.TrimPrefix(tz, ":"))
	if err != nil {
		return time.Local
	}
	return loc
}

// FixedTimezone 固定时区，测试和配置了 TIMEZONE 时使用
type FixedTimezone struct {
	Loc *time.Location
}

func (f FixedTimezone) Location() *time.Location {
	if f.Loc == nil {
		return time.UTC
	}
	return f.Loc
}

// MutableTimezone 设备上报时区变化后可在运行时切换，未设置时回落到 fallback
type MutableTimezone struct {
	fallback TimezoneProvider
	loc      *time.Location
	mu       sync.RWMutex
}

func NewMutableTimezone(fallback TimezoneProvider) *MutableTimezone {
	if fallback == nil {
		fallback = SystemTimezone{}
	}
	return &MutableTimezone{fallback: fallback}
}

func (m *MutableTimezone) Location() *time.Location {
	m.mu.RLock()
	loc := m.loc
	m.mu.RUnlock()

	if loc != nil {
		return loc
	}
	return m.fallback.Location()
}

// Set 切换时区，名字为空或 Local 时恢复跟随 fallback
func (m *MutableTimezone) Set(name string) (*time.Location, error) {
	loc, err := LoadTimezone(name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.loc = loc
	m.mu.Unlock()

	return m.Location(), nil
}

// LoadTimezone 解析 IANA 时区名，空或 Local 返回 nil 表示跟随系统
func LoadTimezone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return nil, nil
	}
	return time.LoadLocation(name)
}

// NewTimezoneProvider 根据配置构造时区来源
func NewTimezoneProvider(name string) (*MutableTimezone, error) {
	tz := NewMutableTimezone(SystemTimezone{})
	if _, err := tz.Set(name); err != nil {
		return nil, err
	}
	return tz, nil
}

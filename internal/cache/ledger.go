package cache

import (
	"context"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	"DeadOrNot/internal/model"
	"DeadOrNot/storage/redis"
)

const (
	checkinDatesKey = "checkin"
	deviceKey       = "device"
)

// LedgerStore 以 Redis Set 保存打卡日期，LEDGER_DRIVER=redis 使用
type LedgerStore struct {
	key string
}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{key: redis.Key(checkinDatesKey, "dates")}
}

func (s *LedgerStore) Load(ctx context.Context) ([]model.DayKey, error) {
	members, err := redis.Client().SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load check-in dates: %w", err)
	}

	days := make([]model.DayKey, 0, len(members))
	for _, m := range members {
		day, err := model.ParseDayKey(m)
		if err != nil {
			return nil, fmt.Errorf("corrupted check-in date %q: %w", m, err)
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

// Save 在一个事务里整体替换集合，读者不会看到半写状态
func (s *LedgerStore) Save(ctx context.Context, days []model.DayKey) error {
	members := make([]interface{}, 0, len(days))
	for _, d := range days {
		members = append(members, d.String())
	}

	_, err := redis.Client().TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(members) > 0 {
			pipe.SAdd(ctx, s.key, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save check-in dates: %w", err)
	}
	return nil
}

// DeviceStore 通过 SETNX 实现先到先得的设备绑定
type DeviceStore struct {
	key string
}

func NewDeviceStore() *DeviceStore {
	return &DeviceStore{key: redis.Key(deviceKey, "bound")}
}

func (s *DeviceStore) BoundDevice(ctx context.Context) (string, bool, error) {
	id, err := redis.Client().Get(ctx, s.key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get bound device: %w", err)
	}
	return id, true, nil
}

func (s *DeviceStore) BindDevice(ctx context.Context, deviceID string) (string, error) {
	ok, err := redis.Client().SetNX(ctx, s.key, deviceID, 0).Result()
	if err != nil {
		return "", fmt.Errorf("failed to bind device: %w", err)
	}
	if ok {
		return deviceID, nil
	}

	bound, _, err := s.BoundDevice(ctx)
	return bound, err
}

package repository

import (
	"context"
	"sync"

	"DeadOrNot/internal/model"
)

// MemoryLedgerStore 进程内存储，LEDGER_DRIVER=memory 与测试使用
type MemoryLedgerStore struct {
	days  []model.DayKey
	mu    sync.Mutex
	saves int
}

func NewMemoryLedgerStore(days ...model.DayKey) *MemoryLedgerStore {
	return &MemoryLedgerStore{days: append([]model.DayKey(nil), days...)}
}

func (s *MemoryLedgerStore) Load(ctx context.Context) ([]model.DayKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.DayKey(nil), s.days...), nil
}

func (s *MemoryLedgerStore) Save(ctx context.Context, days []model.DayKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days = append([]model.DayKey(nil), days...)
	s.saves++
	return nil
}

// Saves 写入次数
func (s *MemoryLedgerStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// MemoryDeviceStore 进程内设备绑定
type MemoryDeviceStore struct {
	deviceID string
	mu       sync.Mutex
}

func NewMemoryDeviceStore() *MemoryDeviceStore {
	return &MemoryDeviceStore{}
}

func (s *MemoryDeviceStore) BoundDevice(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID, s.deviceID != "", nil
}

func (s *MemoryDeviceStore) BindDevice(ctx context.Context, deviceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deviceID == "" {
		s.deviceID = deviceID
	}
	return s.deviceID, nil
}

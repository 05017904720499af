package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"DeadOrNot/internal/model"
)

// LedgerStore 基于 gorm 的打卡存储，PostgreSQL 与 SQLite 共用
type LedgerStore struct {
	db *gorm.DB
}

func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Load(ctx context.Context) ([]model.DayKey, error) {
	var rows []model.CheckInDay
	if err := s.db.WithContext(ctx).Order("day").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query check_in_days: %w", err)
	}

	days := make([]model.DayKey, 0, len(rows))
	for _, row := range rows {
		day, err := model.ParseDayKey(row.Day)
		if err != nil {
			return nil, fmt.Errorf("corrupted check-in row: %w", err)
		}
		days = append(days, day)
	}
	return days, nil
}

// Save 在一个事务里整集替换
func (s *LedgerStore) Save(ctx context.Context, days []model.DayKey) error {
	rows := make([]model.CheckInDay, 0, len(days))
	for _, day := range days {
		rows = append(rows, model.CheckInDay{Day: day.String()})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.CheckInDay{}).Error; err != nil {
			return fmt.Errorf("failed to clear check_in_days: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("failed to insert check_in_days: %w", err)
		}
		return nil
	})
}

// DeviceStore 基于 gorm 的设备绑定
type DeviceStore struct {
	db *gorm.DB
}

func NewDeviceStore(db *gorm.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

func (s *DeviceStore) BoundDevice(ctx context.Context) (string, bool, error) {
	var device model.Device
	err := s.db.WithContext(ctx).Order("created_at").First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query devices: %w", err)
	}
	return device.DeviceID, true, nil
}

// BindDevice 没有绑定时绑定 deviceID，返回实际绑定的设备
func (s *DeviceStore) BindDevice(ctx context.Context, deviceID string) (string, error) {
	var bound string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var device model.Device
		err := tx.Order("created_at").First(&device).Error
		if err == nil {
			bound = device.DeviceID
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(&model.Device{DeviceID: deviceID}).Error; err != nil {
			return err
		}
		bound = deviceID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to bind device: %w", err)
	}
	return bound, nil
}

package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	pkgerrors "DeadOrNot/pkg/errors"
	"DeadOrNot/pkg/token"
)

// DeviceStore 账本所属设备，先到先得
type DeviceStore interface {
	BoundDevice(ctx context.Context) (string, bool, error)
	BindDevice(ctx context.Context, deviceID string) (string, error)
}

// DeviceToken 签发给设备的访问令牌
type DeviceToken struct {
	ExpiresAt   time.Time
	DeviceID    string
	AccessToken string
}

type DeviceService struct {
	store  DeviceStore
	logger *zap.Logger
}

func NewDeviceService(store DeviceStore, logger *zap.Logger) *DeviceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceService{store: store, logger: logger}
}

// IssueToken 首个申请的设备绑定账本，之后只给该设备签发令牌。deviceID 为空时生成一个。
func (s *DeviceService) IssueToken(ctx context.Context, deviceID string) (DeviceToken, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	if _, err := uuid.Parse(deviceID); err != nil {
		return DeviceToken{}, pkgerrors.InvalidDeviceID
	}
	deviceID = strings.ToLower(deviceID)

	bound, err := s.store.BindDevice(ctx, deviceID)
	if err != nil {
		s.logger.Error("Failed to bind device", zap.String("device_id", deviceID), zap.Error(err))
		return DeviceToken{}, err
	}
	if bound != deviceID {
		s.logger.Warn("Token requested by unbound device",
			zap.String("device_id", deviceID),
			zap.String("bound_device_id", bound),
		)
		return DeviceToken{}, pkgerrors.DeviceNotBound
	}

	accessToken, expiresAt, err := token.GenerateDeviceToken(deviceID)
	if err != nil {
		return DeviceToken{}, err
	}

	return DeviceToken{
		DeviceID:    deviceID,
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
	}, nil
}

// Authorize 令牌里的设备必须是当前绑定的设备
func (s *DeviceService) Authorize(ctx context.Context, deviceID string) error {
	bound, ok, err := s.store.BoundDevice(ctx)
	if err != nil {
		return err
	}
	if !ok || bound != deviceID {
		return pkgerrors.DeviceNotBound
	}
	return nil
}

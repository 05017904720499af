package sms

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"DeadOrNot/pkg/logger"
)

// Client SMS 客户端接口
type Client interface {
	// SendSingle 发送单条短信
	// templateParam: 模板参数（JSON 字符串）
	SendSingle(ctx context.Context, phone, signName, templateCode, templateParam string) error
}

// NewClient 按 provider 创建客户端：aliyun, mock
func NewClient(provider string) (Client, error) {
	var (
		client Client
		err    error
	)

	switch provider {
	case "aliyun":
		client, err = NewAliyunClient()
	case "mock":
		client = NewMockClient()
	default:
		err = fmt.Errorf("unsupported SMS provider: %s", provider)
	}

	if err != nil {
		logger.Logger.Error("Failed to initialize SMS client", zap.Error(err))
		return nil, err
	}

	logger.Logger.Info("SMS client initialized successfully", zap.String("provider", provider))
	return client, nil
}

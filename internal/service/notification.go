package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"DeadOrNot/config"
	"DeadOrNot/internal/cache"
	"DeadOrNot/pkg/metrics"
	"DeadOrNot/pkg/sms"
	"DeadOrNot/utils"
)

// ReminderNotice 到期需要送达用户的提醒
type ReminderNotice struct {
	FireAt     time.Time
	Identifier string
	Title      string
	Body       string
	PastDue    bool
}

// Notifier 提醒的最终送达渠道
type Notifier interface {
	Channel() string
	Notify(ctx context.Context, notice ReminderNotice) error
}

// NotificationService 送达提醒并记录指标
type NotificationService struct {
	notifier Notifier
	logger   *zap.Logger
}

func NewNotificationService(notifier Notifier, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{notifier: notifier, logger: logger}
}

// Deliver 送达一次提醒
func (s *NotificationService) Deliver(ctx context.Context, notice ReminderNotice) error {
	start := time.Now()
	err := s.notifier.Notify(ctx, notice)
	metrics.RecordReminderDelivery(ctx, s.notifier.Channel(), time.Since(start), err)

	if err != nil {
		s.logger.Error("Failed to deliver reminder",
			zap.String("channel", s.notifier.Channel()),
			zap.String("identifier", notice.Identifier),
			zap.Error(err),
		)
		return err
	}

	s.logger.Info("Reminder delivered",
		zap.String("channel", s.notifier.Channel()),
		zap.String("identifier", notice.Identifier),
		zap.Time("fire_at", notice.FireAt),
		zap.Bool("past_due", notice.PastDue),
	)
	return nil
}

// LogNotifier 只写日志，本机模式和开发环境使用
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Channel() string { return "log" }

func (n *LogNotifier) Notify(ctx context.Context, notice ReminderNotice) error {
	n.logger.Warn(notice.Title,
		zap.String("body", notice.Body),
		zap.String("identifier", notice.Identifier),
	)
	return nil
}

// SMSNotifier 通过短信送达，受熔断器保护
type SMSNotifier struct {
	client       sms.Client
	breaker      *cache.CircuitBreaker
	phone        string
	signName     string
	templateCode string
}

func NewSMSNotifier(client sms.Client, phone, signName, templateCode string) *SMSNotifier {
	return &SMSNotifier{
		client:       client,
		breaker:      cache.SMSBreaker,
		phone:        phone,
		signName:     signName,
		templateCode: templateCode,
	}
}

func (n *SMSNotifier) Channel() string { return "sms" }

func (n *SMSNotifier) Notify(ctx context.Context, notice ReminderNotice) error {
	param, err := json.Marshal(map[string]string{
		"title":   notice.Title,
		"content": notice.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to encode sms template param: %w", err)
	}

	return n.breaker.Call(ctx, func() error {
		return n.client.SendSingle(ctx, n.phone, n.signName, n.templateCode, string(param))
	})
}

// NewNotifierFromConfig 按 NOTIFIER 配置选择送达渠道
func NewNotifierFromConfig(cfg config.Config, logger *zap.Logger) (Notifier, error) {
	switch cfg.Notifier {
	case "", "log":
		return NewLogNotifier(logger), nil
	case "sms":
		if !utils.ValidatePhone(cfg.SMSPhone) {
			return nil, fmt.Errorf("invalid SMS_PHONE: %s", utils.MaskPhone(cfg.SMSPhone))
		}
		client, err := sms.NewClient(cfg.SMSProvider)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Info("SMS reminders enabled",
				zap.String("provider", cfg.SMSProvider),
				zap.String("phone", utils.MaskPhone(cfg.SMSPhone)),
			)
		}
		return NewSMSNotifier(client, cfg.SMSPhone, cfg.SMSSignName, cfg.SMSTemplateCode), nil
	default:
		return nil, fmt.Errorf("unsupported NOTIFIER: %s", cfg.Notifier)
	}
}

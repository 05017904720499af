package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"DeadOrNot/internal/cache"
	"DeadOrNot/internal/model"
	pkgerrors "DeadOrNot/pkg/errors"
	"DeadOrNot/pkg/snowflake"
	"DeadOrNot/storage/mq"
)

// Publisher 延迟消息发布
type Publisher interface {
	PublishDelayed(ctx context.Context, delay time.Duration, msg model.ReminderMessage) error
}

type amqpPublisher struct{}

// NewAMQPPublisher 发布到 scheduler.delayed 交换机
func NewAMQPPublisher() Publisher {
	return amqpPublisher{}
}

func (amqpPublisher) PublishDelayed(ctx context.Context, delay time.Duration, msg model.ReminderMessage) error {
	return mq.PublishDelayedMessage(ctx, mq.DelayedExchange, mq.ReminderRoutingKey, delay, msg)
}

// MQSink 通过 RabbitMQ 延迟交换机布置提醒，Redis 中记录当前有效的消息 ID
type MQSink struct {
	publisher Publisher
	breaker   *cache.CircuitBreaker
	logger    *zap.Logger
	now       func() time.Time
	nextID    func() (string, error)
	maxDelay  time.Duration
}

type MQSinkOption func(*MQSink)

func WithMQClock(now func() time.Time) MQSinkOption {
	return func(s *MQSink) { s.now = now }
}

func WithMessageIDGenerator(next func() (string, error)) MQSinkOption {
	return func(s *MQSink) { s.nextID = next }
}

func WithBreaker(b *cache.CircuitBreaker) MQSinkOption {
	return func(s *MQSink) { s.breaker = b }
}

func NewMQSink(publisher Publisher, maxDelay time.Duration, logger *zap.Logger, opts ...MQSinkOption) *MQSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxDelay <= 0 {
		maxDelay = 24 * time.Hour
	}

	s := &MQSink{
		publisher: publisher,
		breaker:   cache.MQPublishBreaker,
		logger:    logger,
		now:       time.Now,
		nextID:    snowflake.NextIDString,
		maxDelay:  maxDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MQSink) Name() string { return "mq" }

func (s *MQSink) Arm(ctx context.Context, identifier string, fireAt time.Time, title, body string) error {
	return s.arm(ctx, identifier, fireAt, title, body, false)
}

func (s *MQSink) ArmAfterDelay(ctx context.Context, identifier string, delay time.Duration, title, body string) error {
	if delay < minDelay {
		delay = minDelay
	}
	return s.arm(ctx, identifier, s.now().Add(delay), title, body, true)
}

// Cancel 删除激活标记，队列中的旧消息会在消费时被丢弃
func (s *MQSink) Cancel(ctx context.Context, identifier string) error {
	return cache.ClearActiveReminder(ctx, identifier)
}

func (s *MQSink) arm(ctx context.Context, identifier string, fireAt time.Time, title, body string, pastDue bool) error {
	id, err := s.nextID()
	if err != nil {
		return fmt.Errorf("failed to generate message ID: %w", err)
	}

	now := s.now()
	msg := model.ReminderMessage{
		MessageID:   "reminder_" + id,
		Identifier:  identifier,
		Title:       title,
		Body:        body,
		FireAt:      fireAt.Format(time.RFC3339),
		ScheduledAt: now.Format(time.RFC3339),
		PastDue:     pastDue,
	}

	// 先写标记再发布，避免消息先于标记到达被误判为已取消
	if err := cache.SetActiveReminder(ctx, identifier, msg.MessageID, fireAt); err != nil {
		return err
	}

	delay := hopDelay(fireAt.Sub(now), s.maxDelay)
	err = s.breaker.Call(ctx, func() error {
		return s.publisher.PublishDelayed(ctx, delay, msg)
	})
	if err != nil {
		if _, rbErr := cache.CompleteActiveReminder(ctx, identifier, msg.MessageID); rbErr != nil {
			s.logger.Warn("Failed to roll back active reminder", zap.String("identifier", identifier), zap.Error(rbErr))
		}
		if errors.Is(err, cache.ErrBreakerOpen) {
			return pkgerrors.Wrap(pkgerrors.SinkUnavailable, err)
		}
		return err
	}

	s.logger.Info("Reminder published",
		zap.String("message_id", msg.MessageID),
		zap.String("identifier", identifier),
		zap.Time("fire_at", fireAt),
		zap.Duration("delay", delay),
		zap.Bool("past_due", pastDue),
	)
	return nil
}

// hopDelay 单跳延迟不超过 maxDelay，剩余部分由消费端续投
func hopDelay(remaining, maxDelay time.Duration) time.Duration {
	if remaining < 0 {
		return 0
	}
	if remaining > maxDelay {
		return maxDelay
	}
	return remaining
}

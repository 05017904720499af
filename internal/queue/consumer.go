package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"DeadOrNot/internal/cache"
	"DeadOrNot/internal/model"
	"DeadOrNot/internal/service"
	pkgerrors "DeadOrNot/pkg/errors"
	"DeadOrNot/storage/mq"
)

// dueTolerance 延迟交换机可能略早投递，差距在此范围内视为到期
const dueTolerance = time.Second

// ReminderConsumer 处理 reminder.missed 队列
type ReminderConsumer struct {
	publisher Publisher
	deliverer Deliverer
	logger    *zap.Logger
	now       func() time.Time
	maxDelay  time.Duration
}

func NewReminderConsumer(publisher Publisher, deliverer Deliverer, maxDelay time.Duration, logger *zap.Logger) *ReminderConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxDelay <= 0 {
		maxDelay = 24 * time.Hour
	}
	return &ReminderConsumer{
		publisher: publisher,
		deliverer: deliverer,
		logger:    logger,
		now:       time.Now,
		maxDelay:  maxDelay,
	}
}

// Handle 返回 SkipMessageError 表示消息作废，直接 ack
func (c *ReminderConsumer) Handle(ctx context.Context, body []byte) error {
	var msg model.ReminderMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return &pkgerrors.SkipMessageError{Reason: "invalid payload"}
	}

	fireAt, err := time.Parse(time.RFC3339, msg.FireAt)
	if err != nil || msg.MessageID == "" || msg.Identifier == "" {
		return &pkgerrors.SkipMessageError{Reason: "invalid reminder message"}
	}

	active, err := cache.GetActiveReminder(ctx, msg.Identifier)
	if err != nil {
		return err
	}
	if active != msg.MessageID {
		c.logger.Info("Reminder cancelled or superseded, skipping",
			zap.String("message_id", msg.MessageID),
			zap.String("active_message_id", active),
		)
		return &pkgerrors.SkipMessageError{Reason: "reminder no longer active"}
	}

	if remaining := fireAt.Sub(c.now()); remaining > dueTolerance {
		msg.Hop++
		delay := hopDelay(remaining, c.maxDelay)
		if err := c.publisher.PublishDelayed(ctx, delay, msg); err != nil {
			return fmt.Errorf("failed to republish reminder hop: %w", err)
		}
		c.logger.Info("Reminder not due yet, republished",
			zap.String("message_id", msg.MessageID),
			zap.Int("hop", msg.Hop),
			zap.Duration("delay", delay),
		)
		return nil
	}

	ok, err := cache.TryMarkMessageProcessing(ctx, msg.MessageID)
	if err != nil {
		return err
	}
	if !ok {
		return &pkgerrors.SkipMessageError{Reason: "message already processed"}
	}

	err = c.deliverer.Deliver(ctx, service.ReminderNotice{
		FireAt:     fireAt,
		Identifier: msg.Identifier,
		Title:      msg.Title,
		Body:       msg.Body,
		PastDue:    msg.PastDue,
	})
	if err != nil {
		if unmarkErr := cache.UnmarkMessageProcessing(ctx, msg.MessageID); unmarkErr != nil {
			c.logger.Warn("Failed to release processing marker", zap.String("message_id", msg.MessageID), zap.Error(unmarkErr))
		}
		return err
	}

	if err := cache.MarkMessageProcessed(ctx, msg.MessageID); err != nil {
		c.logger.Warn("Failed to mark message processed", zap.String("message_id", msg.MessageID), zap.Error(err))
	}
	if _, err := cache.CompleteActiveReminder(ctx, msg.Identifier, msg.MessageID); err != nil {
		c.logger.Warn("Failed to clear active reminder", zap.String("identifier", msg.Identifier), zap.Error(err))
	}
	return nil
}

// StartReminderConsumer 阻塞消费直到 ctx 取消
func StartReminderConsumer(ctx context.Context, consumer *ReminderConsumer) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Handler:       consumer.Handle,
		Queue:         mq.ReminderQueue,
		ConsumerTag:   "reminder-worker",
		PrefetchCount: 10,
	})
}

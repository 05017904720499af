package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"DeadOrNot/config"
	"DeadOrNot/pkg/logger"
)

const (
	// DelayedExchange 依赖 rabbitmq_delayed_message_exchange 插件
	DelayedExchange = "scheduler.delayed"

	ReminderRoutingKey = "scheduler.reminder.missed"
	ReminderQueue      = "reminder.missed"
)

var (
	conn   *amqp.Connection
	connMu sync.RWMutex
)

func Init() error {
	c, err := amqp.Dial(config.Cfg.GetRabbitMQURL())
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	if err := declareTopology(c); err != nil {
		_ = c.Close()
		return err
	}

	connMu.Lock()
	conn = c
	connMu.Unlock()

	logger.Logger.Info("RabbitMQ connected",
		zap.String("addr", config.Cfg.RabbitMQAddr),
		zap.String("exchange", DelayedExchange),
		zap.String("queue", ReminderQueue),
	)
	return nil
}

// declareTopology 声明延迟交换机和提醒队列
func declareTopology(c *amqp.Connection) error {
	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(
		DelayedExchange,
		"x-delayed-message",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		amqp.Table{"x-delayed-type": "direct"},
	); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", DelayedExchange, err)
	}

	if _, err := ch.QueueDeclare(ReminderQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", ReminderQueue, err)
	}

	if err := ch.QueueBind(ReminderQueue, ReminderRoutingKey, DelayedExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", ReminderQueue, err)
	}
	return nil
}

// Connection 服务对 rabbitmq 建立的连接
func Connection() *amqp.Connection {
	connMu.RLock()
	defer connMu.RUnlock()
	return conn
}

func Close(ctx context.Context) error {
	pubMutex.Lock()
	if publisherCh != nil {
		_ = publisherCh.Close()
		publisherCh = nil
	}
	pubMutex.Unlock()

	connMu.Lock()
	defer connMu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	conn = nil
	return err
}

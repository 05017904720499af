package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"DeadOrNot/config"
	"DeadOrNot/internal/queue"
	"DeadOrNot/internal/service"
	"DeadOrNot/pkg/logger"
	"DeadOrNot/pkg/metrics"
	"DeadOrNot/pkg/otel"
	"DeadOrNot/storage"
	"DeadOrNot/storage/mq"
	"DeadOrNot/storage/redis"
)

// worker 只在 NOTIFICATION_SINK=mq 时需要，消费延迟队列并送达提醒
func main() {
	if err := config.Cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if config.Cfg.NotificationSink != "mq" {
		log.Fatalf("worker requires NOTIFICATION_SINK=mq, got %q", config.Cfg.NotificationSink)
	}

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownOTel, err := otel.InitOpenTelemetry(ctx, otel.Config{
		ServiceName:  config.Cfg.ServiceName + "-worker",
		Environment:  config.Cfg.Environment,
		OTLPEndpoint: config.Cfg.OTELEndpoint,
		SampleRatio:  config.Cfg.OTELSampleRatio,
	})
	if err != nil {
		logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(shutdownCtx)
	}()

	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Fatal("Failed to initialize metrics", zap.Error(err))
	}

	// 只需要 Redis 标记和 RabbitMQ，不碰账本存储
	if err := redis.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize Redis", zap.Error(err))
	}
	if err := mq.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize RabbitMQ", zap.Error(err))
	}
	defer storage.Close()

	notifier, err := service.NewNotifierFromConfig(config.Cfg, logger.Named("notifier"))
	if err != nil {
		logger.Logger.Fatal("Failed to create notifier", zap.Error(err))
	}
	notifications := service.NewNotificationService(notifier, logger.Named("notification"))

	consumer := queue.NewReminderConsumer(queue.NewAMQPPublisher(), notifications, config.Cfg.MQMaxDelay, logger.Named("reminder_consumer"))

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
		zap.String("notifier", notifier.Channel()),
	)

	// 通道意外关闭时退避重连
	for {
		err := queue.StartReminderConsumer(ctx, consumer)
		if ctx.Err() != nil {
			break
		}
		logger.Logger.Error("Reminder consumer stopped, retrying", zap.Error(err))

		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
		if ctx.Err() != nil {
			break
		}
		if c := mq.Connection(); c == nil || c.IsClosed() {
			if err := mq.Init(); err != nil {
				logger.Logger.Error("Failed to reconnect RabbitMQ", zap.Error(err))
			}
		}
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}

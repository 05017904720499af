package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"go.uber.org/zap"

	"DeadOrNot/config"
	"DeadOrNot/internal/cache"
	"DeadOrNot/internal/handler"
	"DeadOrNot/internal/middleware"
	"DeadOrNot/internal/queue"
	"DeadOrNot/internal/repository"
	"DeadOrNot/internal/router"
	"DeadOrNot/internal/schedule"
	"DeadOrNot/internal/service"
	"DeadOrNot/pkg/logger"
	"DeadOrNot/pkg/metrics"
	"DeadOrNot/pkg/otel"
	"DeadOrNot/pkg/snowflake"
	"DeadOrNot/pkg/token"
	"DeadOrNot/storage"
	"DeadOrNot/storage/database"
	"DeadOrNot/utils"
)

func main() {
	if err := config.Cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 日志部分
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
		ServiceName:  config.Cfg.ServiceName,
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
		if err := shutdownOTel(shutdownCtx); err != nil {
			logger.Logger.Warn("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}()

	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Fatal("Failed to initialize metrics", zap.Error(err))
	}

	// 初始化存储层，记得关闭外部连接
	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	authEnabled := config.Cfg.AuthEnabled()
	if authEnabled {
		// token 在中间件前初始化，middleware 依赖 token
		if err := token.Init(); err != nil {
			logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
		}
	}

	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	tz, err := utils.NewTimezoneProvider(config.Cfg.Timezone)
	if err != nil {
		logger.Logger.Fatal("Invalid TIMEZONE", zap.Error(err))
	}

	ledgerStore, deviceStore, err := newStores(config.Cfg.LedgerDriver)
	if err != nil {
		logger.Logger.Fatal("Failed to create ledger store", zap.Error(err))
	}

	notifier, err := service.NewNotifierFromConfig(config.Cfg, logger.Named("notifier"))
	if err != nil {
		logger.Logger.Fatal("Failed to create notifier", zap.Error(err))
	}
	notifications := service.NewNotificationService(notifier, logger.Named("notification"))

	opts, err := schedule.OptionsFromConfig(config.Cfg)
	if err != nil {
		logger.Logger.Fatal("Invalid reminder options", zap.Error(err))
	}

	var (
		sink      schedule.NotificationSink
		localSink *queue.LocalSink
	)
	switch config.Cfg.NotificationSink {
	case "mq":
		sink = queue.NewMQSink(queue.NewAMQPPublisher(), config.Cfg.MQMaxDelay, logger.Named("mq_sink"))
	default:
		localSink = queue.NewLocalSink(notifications, nil, logger.Named("local_sink"))
		defer localSink.Stop()
		sink = localSink
	}

	ledger := service.NewCheckInLedger(ledgerStore, tz, logger.Named("ledger"))
	scheduler := schedule.NewReminderScheduler(ledger, sink, tz, opts, logger.Named("reminder"))
	checkIns := service.NewCheckInService(ledger, scheduler, tz,
		service.WithLogger(logger.Named("checkin")),
		service.WithSinkTimeout(config.Cfg.SinkTimeout),
	)
	if localSink != nil {
		localSink.SetFiredHook(checkIns.OnReminderFired)
	}

	checkIns.Start(ctx)

	devices := service.NewDeviceService(deviceStore, logger.Named("device"))

	go runDailyReconcileLoop(ctx, checkIns)

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("port", config.Cfg.ServerPort),
		zap.String("environment", config.Cfg.Environment),
		zap.String("ledger_driver", config.Cfg.LedgerDriver),
		zap.String("notification_sink", config.Cfg.NotificationSink),
		zap.String("timezone", checkIns.Timezone()),
	)

	addr := net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.ServerPort)
	tracer, tracingMiddleware := middleware.NewServerTracerConfig()
	h := server.Default(server.WithHostPorts(addr), tracer)
	h.Use(tracingMiddleware)

	var authorizer middleware.DeviceAuthorizer
	if authEnabled {
		authorizer = devices
	}
	router.Register(h, handler.New(checkIns, devices, authEnabled), authorizer)

	// 优雅关闭：在单独的 goroutine 中监听关闭信号并调用 Shutdown
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}

// newStores 按 LEDGER_DRIVER 选择账本与设备绑定的存储
func newStores(driver string) (service.LedgerStore, service.DeviceStore, error) {
	switch driver {
	case "postgres", "sqlite":
		db := database.DB()
		return repository.NewLedgerStore(db), repository.NewDeviceStore(db), nil
	case "redis":
		return cache.NewLedgerStore(), cache.NewDeviceStore(), nil
	case "memory":
		logger.Logger.Warn("Using in-memory ledger, check-ins will be lost on restart")
		return repository.NewMemoryLedgerStore(), repository.NewMemoryDeviceStore(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported LEDGER_DRIVER: %s", driver)
	}
}

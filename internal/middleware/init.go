package middleware

import (
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"DeadOrNot/config"
	"DeadOrNot/pkg/logger"
)

// Init 初始化中间件，未配置 JWT_SECRET 时跳过鉴权中间件
func Init() error {
	if err := InitMetrics(otel.Meter(config.Cfg.ServiceName + ".http")); err != nil {
		logger.Logger.Error("Failed to initialize HTTP metrics", zap.Error(err))
		return err
	}

	if config.Cfg.AuthEnabled() {
		if err := initAuthMiddleware(); err != nil {
			logger.Logger.Error("Failed to initialize auth middleware", zap.Error(err))
			return err
		}
	}

	logger.Logger.Info("All middlewares initialized successfully",
		zap.Bool("auth_enabled", config.Cfg.AuthEnabled()),
	)
	return nil
}

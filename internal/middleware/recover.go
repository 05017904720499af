package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"DeadOrNot/config"
	"DeadOrNot/pkg/errors"
	"DeadOrNot/pkg/logger"
	"DeadOrNot/pkg/response"
)

var internalError = errors.Definition{
	Code:    "INTERNAL_SERVER_ERROR",
	Message: "服务器内部错误，请稍后重试",
}

// RecoverMiddleware 捕获 panic，记录日志和 span，返回 500
func RecoverMiddleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				handlePanic(ctx, c, err)
			}
		}()

		c.Next(ctx)
	}
}

func handlePanic(ctx context.Context, c *app.RequestContext, err interface{}) {
	stack := debug.Stack()

	fields := []zap.Field{
		zap.String("panic", fmt.Sprintf("%v", err)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
		zap.ByteString("stack", stack),
	}
	if deviceID, ok := GetDeviceID(ctx, c); ok {
		fields = append(fields, zap.String("device_id", deviceID))
	}
	logger.Logger.Error("[PANIC RECOVERED]", fields...)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(fmt.Errorf("panic: %v", err))
		span.SetStatus(codes.Error, "panic recovered")
	}

	// 生产环境不暴露细节
	if config.Cfg.IsProduction() {
		response.Error(ctx, c, internalError)
	} else {
		response.ErrorWithDetails(ctx, c, internalError, map[string]interface{}{
			"panic":     fmt.Sprintf("%v", err),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
	c.Abort()
}

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"DeadOrNot/pkg/logger"
)

// ErrBreakerOpen 熔断中，调用被直接拒绝
var ErrBreakerOpen = errors.New("circuit breaker is open")

// State 熔断器状态
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed   // 关闭状态：正常工作
	StateOpen     = gobreaker.StateOpen     // 开启状态：熔断中
	StateHalfOpen = gobreaker.StateHalfOpen // 半开状态：尝试恢复
)

// halfOpenMaxCalls 半开状态允许的试探次数，连续成功这么多次后关闭
const halfOpenMaxCalls = 3

// CircuitBreaker 外部依赖熔断器
type CircuitBreaker struct {
	cb   *gobreaker.CircuitBreaker
	name string
}

// NewCircuitBreaker 连续失败 maxFailures 次后熔断，resetTimeout 后进入半开
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	threshold := uint32(maxFailures)
	if threshold == 0 {
		threshold = 1
	}

	return &CircuitBreaker{
		name: name,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: halfOpenMaxCalls,
			Timeout:     resetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				fields := []zap.Field{
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				}
				if to == gobreaker.StateOpen {
					logger.Logger.Warn("Circuit breaker opened", append(fields, zap.Duration("reset_timeout", resetTimeout))...)
					return
				}
				logger.Logger.Info("Circuit breaker state changed", fields...)
			},
		}),
	}
}

// Call 执行带熔断保护的操作，返回 operation 自身的错误
func (b *CircuitBreaker) Call(ctx context.Context, operation func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, operation()
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrBreakerOpen, b.name)
	}
	if err != nil {
		logger.Logger.Warn("Protected operation failed",
			zap.String("breaker", b.name),
			zap.Uint32("consecutive_failures", b.cb.Counts().ConsecutiveFailures),
			zap.Error(err),
		)
	}
	return err
}

// GetState 获取当前状态
func (b *CircuitBreaker) GetState() State {
	return b.cb.State()
}

// 全局熔断器实例
var (
	// RabbitMQ 发布熔断器：连续失败5次后熔断，30秒后尝试恢复
	MQPublishBreaker = NewCircuitBreaker("mq_publish", 5, 30*time.Second)

	// 短信投递熔断器：连续失败3次后熔断，60秒后尝试恢复
	SMSBreaker = NewCircuitBreaker("sms_delivery", 3, 60*time.Second)
)

package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook Redis 追踪 Hook，命令耗时同时记为指标
type TracingHook struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
	attrs    []attribute.KeyValue
}

// NewTracingHook 创建追踪 Hook
func NewTracingHook(serviceName string, db int) *TracingHook {
	duration, _ := otel.Meter(serviceName+".redis").Float64Histogram(
		"redis.command.duration",
		metric.WithDescription("Redis command duration"),
		metric.WithUnit("s"),
	)

	return &TracingHook{
		tracer:   otel.Tracer(serviceName + ".redis"),
		duration: duration,
		attrs: []attribute.KeyValue{
			semconv.DBSystemRedis,
			semconv.DBRedisDBIndex(db),
		},
	}
}

// DialHook 实现 redis.Hook 接口
func (th *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

// ProcessHook 实现 redis.Hook 接口
func (th *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, cmd.Name(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		span.SetAttributes(semconv.DBOperation(cmd.Name()))
		if keys := extractKeys(cmd.Args()); len(keys) > 0 {
			span.SetAttributes(attribute.StringSlice("redis.keys", keys))
		}

		start := time.Now()
		err := next(ctx, cmd)
		th.record(ctx, span, cmd.Name(), time.Since(start), err)

		return err
	}
}

// ProcessPipelineHook 实现 redis.Hook 接口
func (th *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		span.SetAttributes(
			attribute.Int("redis.pipeline.count", len(cmds)),
			attribute.String("redis.pipeline.commands", strings.Join(names, ";")),
		)

		start := time.Now()
		err := next(ctx, cmds)
		th.record(ctx, span, "pipeline", time.Since(start), err)

		return err
	}
}

func (th *TracingHook) record(ctx context.Context, span trace.Span, name string, elapsed time.Duration, err error) {
	status := "success"
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, redis.Nil):
		status = "not_found"
		span.SetStatus(codes.Ok, "key not found")
	default:
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}

	if th.duration != nil {
		th.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("redis.command", name),
			attribute.String("redis.status", status),
		))
	}
}

// extractKeys 取命令的第一个参数作为键名，不记录值
func extractKeys(args []interface{}) []string {
	if len(args) < 2 {
		return nil
	}
	key, ok := args[1].(string)
	if !ok {
		return nil
	}
	if len(key) > 100 {
		key = key[:100] + "..."
	}
	return []string{key}
}

package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

type httpMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
}

// 未初始化时中间件只做 span 标注
var serverMetrics *httpMetrics

// toValidUTF8 清洗用户可控字符串，防止非法 UTF-8 触发序列化失败
func toValidUTF8(val string) string {
	return strings.ToValidUTF8(val, "")
}

// InitMetrics 初始化 HTTP 指标
func InitMetrics(meter metric.Meter) error {
	requests, err := meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	duration, err := meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return err
	}

	active, err := meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	serverMetrics = &httpMetrics{requests: requests, duration: duration, active: active}
	return nil
}

// OpenTelemetryMiddleware 在 hertz tracer 创建的 span 上补充业务属性并记录指标
func OpenTelemetryMiddleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		m := serverMetrics
		if m != nil {
			m.active.Add(ctx, 1)
			defer m.active.Add(ctx, -1)
		}

		c.Next(ctx)

		method := toValidUTF8(string(c.Method()))
		route := toValidUTF8(c.FullPath())
		if route == "" {
			route = "unmatched"
		}
		status := c.Response.StatusCode()

		span := trace.SpanFromContext(ctx)
		if span.IsRecording() {
			// 鉴权中间件在本中间件之后执行，此时才能拿到设备 ID
			if deviceID, ok := GetDeviceID(ctx, c); ok {
				span.SetAttributes(attribute.String("enduser.id", toValidUTF8(deviceID)))
			}
			if requestID := c.GetHeader("X-Request-Id"); len(requestID) > 0 {
				span.SetAttributes(attribute.String("http.request_id", toValidUTF8(string(requestID))))
			}
			if status >= 500 {
				span.SetStatus(codes.Error, "HTTP server error")
				if lastErr := c.Errors.Last(); lastErr != nil {
					span.RecordError(lastErr)
				}
			}
		}

		if m == nil {
			return
		}
		labels := metric.WithAttributes(
			semconv.HTTPMethod(method),
			semconv.HTTPRoute(route),
			semconv.HTTPStatusCode(status),
		)
		m.requests.Add(ctx, 1, labels)
		m.duration.Record(ctx, time.Since(start).Seconds(), labels)
	}
}

// NewServerTracerConfig 返回 hertz server 的追踪选项和中间件
func NewServerTracerConfig(opts ...hertztracing.Option) (config.Option, app.HandlerFunc) {
	tracer, cfg := hertztracing.NewServerTracer(opts...)
	return tracer, hertztracing.ServerMiddleware(cfg)
}

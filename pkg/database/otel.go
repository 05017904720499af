package database

import (
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanKey  = "otel:span"
	startKey = "otel:start_time"
)

// OTELPlugin GORM OpenTelemetry 插件
type OTELPlugin struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
	system   string
}

// NewOTELPlugin system 为 postgresql 或 sqlite
func NewOTELPlugin(serviceName, system string) *OTELPlugin {
	duration, _ := otel.Meter(serviceName+".gorm").Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
	)

	return &OTELPlugin{
		tracer:   otel.Tracer(serviceName + ".gorm"),
		duration: duration,
		system:   system,
	}
}

// Name 实现 gorm.Plugin 接口
func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

// Initialize 注册回调
func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	callbacks := db.Callback()

	for _, err := range []error{
		callbacks.Query().Before("gorm:query").Register("otel:before_query", p.before("query")),
		callbacks.Query().After("gorm:query").Register("otel:after_query", p.after("query")),
		callbacks.Create().Before("gorm:create").Register("otel:before_create", p.before("create")),
		callbacks.Create().After("gorm:create").Register("otel:after_create", p.after("create")),
		callbacks.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("delete")),
		callbacks.Delete().After("gorm:delete").Register("otel:after_delete", p.after("delete")),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *OTELPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx, span := p.tracer.Start(db.Statement.Context, "gorm."+operation,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemKey.String(p.system),
				semconv.DBOperation(operation),
				semconv.DBSQLTable(db.Statement.Table),
			),
		)

		db.InstanceSet(startKey, time.Now())
		db.InstanceSet(spanKey, span)
		db.Statement.Context = ctx
	}
}

func (p *OTELPlugin) after(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		spanVal, ok := db.InstanceGet(spanKey)
		if !ok {
			return
		}
		span, ok := spanVal.(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		status := "success"
		if err := db.Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		startVal, ok := db.InstanceGet(startKey)
		start, isTime := startVal.(time.Time)
		if !ok || !isTime || p.duration == nil {
			return
		}
		p.duration.Record(db.Statement.Context, time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("db.operation", operation),
			attribute.String("db.table", db.Statement.Table),
			attribute.String("db.status", status),
		))
	}
}

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics OpenTelemetry 指标集合
type OTelMetrics struct {
	// 打卡相关指标
	CheckInTotal        metric.Int64Counter
	CurrentStreak       metric.Int64Gauge
	PersistenceFailures metric.Int64Counter

	// 提醒相关指标
	ReminderArmTotal      metric.Int64Counter
	ReminderCancelTotal   metric.Int64Counter
	ReminderDeliveryTotal metric.Int64Counter
	ReminderDeliveryDur   metric.Float64Histogram
}

var (
	// 全局指标实例
	metrics *OTelMetrics
	// meter 用于创建指标
	meter = otel.Meter("deadornot")
)

// InitMetrics 初始化 OpenTelemetry 指标
func InitMetrics() error {
	var err error

	m := &OTelMetrics{}

	m.CheckInTotal, err = meter.Int64Counter(
		"checkin_total",
		metric.WithDescription("Total number of check-ins, split by new and duplicate"),
		metric.WithUnit("{checkin}"),
	)
	if err != nil {
		return err
	}

	m.CurrentStreak, err = meter.Int64Gauge(
		"checkin_current_streak_days",
		metric.WithDescription("Current consecutive check-in streak"),
		metric.WithUnit("{day}"),
	)
	if err != nil {
		return err
	}

	m.PersistenceFailures, err = meter.Int64Counter(
		"checkin_persistence_failures_total",
		metric.WithDescription("Total number of failed ledger loads and writes"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	m.ReminderArmTotal, err = meter.Int64Counter(
		"reminder_arm_total",
		metric.WithDescription("Total number of reminder arm attempts"),
		metric.WithUnit("{arm}"),
	)
	if err != nil {
		return err
	}

	m.ReminderCancelTotal, err = meter.Int64Counter(
		"reminder_cancel_total",
		metric.WithDescription("Total number of reminder cancel attempts"),
		metric.WithUnit("{cancel}"),
	)
	if err != nil {
		return err
	}

	m.ReminderDeliveryTotal, err = meter.Int64Counter(
		"reminder_delivery_total",
		metric.WithDescription("Total number of reminder deliveries"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return err
	}

	m.ReminderDeliveryDur, err = meter.Float64Histogram(
		"reminder_delivery_duration_seconds",
		metric.WithDescription("Time spent delivering a reminder in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	metrics = m
	return nil
}

// GetMetrics 获取全局指标实例，未初始化时为 nil
func GetMetrics() *OTelMetrics {
	return metrics
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// RecordCheckIn 记录一次打卡
func RecordCheckIn(ctx context.Context, wasNew bool, streak int) {
	m := GetMetrics()
	if m == nil {
		return
	}

	kind := "duplicate"
	if wasNew {
		kind = "new"
	}
	m.CheckInTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	m.CurrentStreak.Record(ctx, int64(streak))
}

// RecordPersistenceFailure 记录账本读写失败，op 为 load 或 save
func RecordPersistenceFailure(ctx context.Context, op string) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.PersistenceFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordReminderArm 记录布置提醒，mode 为 calendar 或 immediate
func RecordReminderArm(ctx context.Context, sink, mode string, err error) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.ReminderArmTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sink", sink),
		attribute.String("mode", mode),
		attribute.String("status", status(err)),
	))
}

// RecordReminderCancel 记录取消提醒
func RecordReminderCancel(ctx context.Context, sink string, err error) {
	m := GetMetrics()
	if m == nil {
		return
	}
	m.ReminderCancelTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sink", sink),
		attribute.String("status", status(err)),
	))
}

// RecordReminderDelivery 记录提醒投递结果
func RecordReminderDelivery(ctx context.Context, channel string, duration time.Duration, err error) {
	m := GetMetrics()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("status", status(err)),
	)
	m.ReminderDeliveryTotal.Add(ctx, 1, attrs)
	m.ReminderDeliveryDur.Record(ctx, duration.Seconds(), attrs)
}

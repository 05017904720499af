package schedule

// 连续未打卡提醒调度器：以最后一次打卡日为基准，宽限期满当天的固定时刻触发一次提醒

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"DeadOrNot/config"
	"DeadOrNot/internal/model"
	pkgerrors "DeadOrNot/pkg/errors"
	"DeadOrNot/pkg/metrics"
	"DeadOrNot/utils"
)

// NotificationSink 提醒投递通道。同一 identifier 同时只有一个有效布置，
// 调度器保证先 Cancel 再 Arm。
type NotificationSink interface {
	// Arm 在 fireAt 触发一次
	Arm(ctx context.Context, identifier string, fireAt time.Time, title, body string) error
	// ArmAfterDelay 在 delay 之后触发一次，delay 不小于 1s
	ArmAfterDelay(ctx context.Context, identifier string, delay time.Duration, title, body string) error
	// Cancel 幂等，没有布置时也不报错
	Cancel(ctx context.Context, identifier string) error
}

// LastCheckIn 调度器对账本的只读依赖
type LastCheckIn interface {
	LastCheckInDay() (model.DayKey, bool)
}

const (
	minPastDueDelay = time.Second

	defaultBodyFormat = "你已连续 %d 天未打卡，快打开“死了么”打个卡吧！"
)

// DefaultBody 按宽限天数生成默认提醒正文
func DefaultBody(graceDays int) string {
	return fmt.Sprintf(defaultBodyFormat, graceDays)
}

// Options 提醒参数
type Options struct {
	Identifier   string
	Title        string
	Body         string
	GraceDays    int
	Hour         int
	Minute       int
	PastDueDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		Identifier:   "DeadOrNot_Missed3Days",
		Title:        "连续未打卡提醒",
		Body:         DefaultBody(3),
		GraceDays:    3,
		Hour:         9,
		Minute:       0,
		PastDueDelay: 5 * time.Second,
	}
}

// OptionsFromConfig 从配置构造提醒参数
func OptionsFromConfig(cfg config.Config) (Options, error) {
	hour, minute, err := utils.ParseClock(cfg.ReminderAt)
	if err != nil {
		return Options{}, fmt.Errorf("invalid REMINDER_AT: %w", err)
	}
	if cfg.ReminderGraceDays < 0 {
		return Options{}, fmt.Errorf("invalid REMINDER_GRACE_DAYS: %d", cfg.ReminderGraceDays)
	}

	opts := DefaultOptions()
	opts.GraceDays = cfg.ReminderGraceDays
	opts.Body = DefaultBody(cfg.ReminderGraceDays)
	opts.Hour = hour
	opts.Minute = minute
	opts.PastDueDelay = cfg.ReminderPastDueDelay
	if cfg.ReminderIdentifier != "" {
		opts.Identifier = cfg.ReminderIdentifier
	}
	if cfg.ReminderTitle != "" {
		opts.Title = cfg.ReminderTitle
	}
	if cfg.ReminderBody != "" {
		opts.Body = cfg.ReminderBody
	}
	return opts, nil
}

// ReminderScheduler 维护至多一个待触发的提醒。
// 不加锁，调用方（CheckInService）负责串行化。
type ReminderScheduler struct {
	ledger   LastCheckIn
	sink     NotificationSink
	tz       utils.TimezoneProvider
	logger   *zap.Logger
	state    model.ReminderState
	sinkName string
	opts     Options
}

func NewReminderScheduler(
	ledger LastCheckIn,
	sink NotificationSink,
	tz utils.TimezoneProvider,
	opts Options,
	logger *zap.Logger,
) *ReminderScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PastDueDelay < minPastDueDelay {
		opts.PastDueDelay = minPastDueDelay
	}

	sinkName := fmt.Sprintf("%T", sink)
	if named, ok := sink.(interface{ Name() string }); ok {
		sinkName = named.Name()
	}

	return &ReminderScheduler{
		ledger:   ledger,
		sink:     sink,
		tz:       tz,
		logger:   logger,
		opts:     opts,
		sinkName: sinkName,
		state: model.ReminderState{
			Identifier: opts.Identifier,
			Status:     model.ReminderStatusUnscheduled,
		},
	}
}

// Reconcile 先无条件取消，再按账本重新计算并布置。
// 投递通道失败不会中断流程，返回的错误是非致命信号，状态仍记录预期的布置。
func (s *ReminderScheduler) Reconcile(ctx context.Context, now time.Time) (model.ReminderState, error) {
	var errs []error

	id := s.opts.Identifier
	cancelErr := s.sink.Cancel(ctx, id)
	metrics.RecordReminderCancel(ctx, s.sinkName, cancelErr)
	if cancelErr != nil {
		s.logger.Warn("Failed to cancel reminder before re-arming",
			zap.String("identifier", id),
			zap.Error(cancelErr),
		)
		errs = append(errs, pkgerrors.Wrap(pkgerrors.SinkCancelFailed, cancelErr))
	}

	loc := s.tz.Location()
	baseDay, targetDay := s.target(now, loc)
	fireAt := targetDay.At(loc, s.opts.Hour, s.opts.Minute)

	state := model.ReminderState{
		Identifier: id,
		Status:     model.ReminderStatusScheduled,
		BaseDay:    baseDay,
		TargetDay:  targetDay,
		UpdatedAt:  now,
	}

	var (
		armErr error
		mode   string
	)
	if !fireAt.After(now) {
		mode = "immediate"
		state.PastDue = true
		state.FireAt = now.Add(s.opts.PastDueDelay)
		armErr = s.sink.ArmAfterDelay(ctx, id, s.opts.PastDueDelay, s.opts.Title, s.opts.Body)
	} else {
		mode = "calendar"
		state.FireAt = fireAt
		armErr = s.sink.Arm(ctx, id, fireAt, s.opts.Title, s.opts.Body)
	}
	metrics.RecordReminderArm(ctx, s.sinkName, mode, armErr)

	if armErr != nil {
		s.logger.Warn("Failed to arm reminder, next reconcile will retry",
			zap.String("identifier", id),
			zap.String("mode", mode),
			zap.Time("fire_at", state.FireAt),
			zap.Error(armErr),
		)
		errs = append(errs, pkgerrors.Wrap(pkgerrors.SinkArmFailed, armErr))
	} else {
		s.logger.Info("Reminder armed",
			zap.String("identifier", id),
			zap.String("mode", mode),
			zap.String("base_day", baseDay.String()),
			zap.String("target_day", targetDay.String()),
			zap.Time("fire_at", state.FireAt),
		)
	}

	s.state = state
	return state, stderrors.Join(errs...)
}

// ReconcileIfStale 供周期巡检使用：目标日没变且提醒已逾期布置或已触发时不再重新布置，
// 否则每次巡检都会走逾期分支再发一次提醒。返回值 rearmed 表示是否执行了对账。
func (s *ReminderScheduler) ReconcileIfStale(ctx context.Context, now time.Time) (model.ReminderState, bool, error) {
	_, targetDay := s.target(now, s.tz.Location())

	current := s.state
	if current.TargetDay == targetDay {
		switch {
		case current.Status == model.ReminderStatusFired,
			current.Status == model.ReminderStatusScheduled && current.PastDue:
			s.logger.Debug("Reminder already handled for target day",
				zap.String("target_day", targetDay.String()),
				zap.String("status", string(current.Status)),
			)
			return current, false, nil
		}
	}

	state, err := s.Reconcile(ctx, now)
	return state, true, err
}

// target 以最后一次打卡日为基准，从未打卡时以今天为基准
func (s *ReminderScheduler) target(now time.Time, loc *time.Location) (model.DayKey, model.DayKey) {
	baseDay, ok := s.ledger.LastCheckInDay()
	if !ok {
		baseDay = model.NormalizeDay(now, loc)
	}
	return baseDay, baseDay.AddDays(s.opts.GraceDays)
}

// Cancel 取消待触发的提醒，直到下一次对账
func (s *ReminderScheduler) Cancel(ctx context.Context, now time.Time) (model.ReminderState, error) {
	id := s.opts.Identifier
	err := s.sink.Cancel(ctx, id)
	metrics.RecordReminderCancel(ctx, s.sinkName, err)

	s.state = model.ReminderState{
		Identifier: id,
		Status:     model.ReminderStatusCancelled,
		BaseDay:    s.state.BaseDay,
		TargetDay:  s.state.TargetDay,
		UpdatedAt:  now,
	}

	if err != nil {
		s.logger.Warn("Failed to cancel reminder", zap.String("identifier", id), zap.Error(err))
		return s.state, pkgerrors.Wrap(pkgerrors.SinkCancelFailed, err)
	}
	return s.state, nil
}

// pendingSink 能回答某个 identifier 是否还有未结束的布置
type pendingSink interface {
	Pending(identifier string) bool
}

// MarkFired 投递通道回报已触发，只接受当前布置的提醒。
// 旧布置的回调晚于重新布置到达时，通道里仍有新的布置，忽略该回调。
func (s *ReminderScheduler) MarkFired(identifier string, firedAt time.Time) bool {
	if identifier != s.opts.Identifier || s.state.Status != model.ReminderStatusScheduled {
		return false
	}
	if p, ok := s.sink.(pendingSink); ok && p.Pending(identifier) {
		s.logger.Debug("Ignoring fired callback from a superseded arm", zap.String("identifier", identifier))
		return false
	}
	s.state.Status = model.ReminderStatusFired
	s.state.UpdatedAt = firedAt
	return true
}

func (s *ReminderScheduler) State() model.ReminderState {
	return s.state
}

func (s *ReminderScheduler) Options() Options {
	return s.opts
}

package service

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"DeadOrNot/internal/model"
	"DeadOrNot/internal/schedule"
	pkgerrors "DeadOrNot/pkg/errors"
	"DeadOrNot/pkg/metrics"
)

// TimezoneSetter 支持运行时切换的时区来源
type TimezoneSetter interface {
	Location() *time.Location
	Set(name string) (*time.Location, error)
}

// CheckInResult 打卡结果，Warnings 中是不影响打卡本身的持久化/提醒失败
type CheckInResult struct {
	CompletedAt time.Time
	Reminder    model.ReminderState
	Warnings    []string
	Day         model.DayKey
	Streak      int
	WasNew      bool
}

// TodayStatus 今日打卡状态
type TodayStatus struct {
	Reminder    model.ReminderState
	Timezone    string
	Today       model.DayKey
	LastCheckIn model.DayKey
	Streak      int
	CheckedIn   bool
	HasCheckIn  bool
}

// Stats 打卡统计
type Stats struct {
	LastCheckIn   model.DayKey
	CurrentStreak int
	LongestStreak int
	TotalDays     int
	HasCheckIn    bool
}

// CheckInService 账本与提醒调度的唯一互斥边界，
// 对账的 读-取消-计算-重新布置 不会与打卡交错。
type CheckInService struct {
	ledger      *CheckInLedger
	scheduler   *schedule.ReminderScheduler
	tz          TimezoneSetter
	logger      *zap.Logger
	clock       func() time.Time
	sinkTimeout time.Duration
	mu          sync.Mutex
}

type Option func(*CheckInService)

func WithClock(clock func() time.Time) Option {
	return func(s *CheckInService) { s.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *CheckInService) { s.logger = logger }
}

// WithSinkTimeout 单次对账调用投递通道的超时
func WithSinkTimeout(timeout time.Duration) Option {
	return func(s *CheckInService) { s.sinkTimeout = timeout }
}

func NewCheckInService(
	ledger *CheckInLedger,
	scheduler *schedule.ReminderScheduler,
	tz TimezoneSetter,
	opts ...Option,
) *CheckInService {
	s := &CheckInService{
		ledger:      ledger,
		scheduler:   scheduler,
		tz:          tz,
		logger:      zap.NewNop(),
		clock:       time.Now,
		sinkTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 进程启动：加载账本后对账。
// 加载失败只记录日志，账本以内存状态继续工作；对账失败同样只记录日志。
func (s *CheckInService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.Reload(ctx); err != nil {
		s.logger.Warn("Starting with in-memory ledger, persisted days will be merged on next write", zap.Error(err))
	}

	if _, err := s.reconcileLocked(ctx, s.clock()); err != nil {
		s.logger.Warn("Startup reconcile finished with sink errors", zap.Error(err))
	}
}

// CheckIn 记录今天的打卡并重新对账。
// 只要账本已加载就一定成功，持久化和提醒失败只出现在 Warnings 中。
func (s *CheckInService) CheckIn(ctx context.Context) (CheckInResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ledger.Loaded() {
		return CheckInResult{}, pkgerrors.LedgerNotLoaded
	}

	now := s.clock()
	day, wasNew, persistErr := s.ledger.RecordCheckIn(ctx, now)
	reminder, sinkErr := s.reconcileLocked(ctx, now)

	streak := CurrentStreak(s.ledger, day)
	metrics.RecordCheckIn(ctx, wasNew, streak)

	result := CheckInResult{
		CompletedAt: now,
		Day:         day,
		WasNew:      wasNew,
		Streak:      streak,
		Reminder:    reminder,
		Warnings:    warnings(persistErr, sinkErr),
	}

	s.logger.Info("Check-in recorded",
		zap.String("day", day.String()),
		zap.Bool("was_new", wasNew),
		zap.Int("streak", streak),
		zap.Strings("warnings", result.Warnings),
	)
	return result, nil
}

func (s *CheckInService) Today(ctx context.Context) (TodayStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ledger.Loaded() {
		return TodayStatus{}, pkgerrors.LedgerNotLoaded
	}

	loc := s.tz.Location()
	today := model.NormalizeDay(s.clock(), loc)
	last, ok := s.ledger.LastCheckInDay()

	return TodayStatus{
		Today:       today,
		Timezone:    loc.String(),
		CheckedIn:   s.ledger.IsCheckedIn(today),
		Streak:      CurrentStreak(s.ledger, today),
		LastCheckIn: last,
		HasCheckIn:  ok,
		Reminder:    s.scheduler.State(),
	}, nil
}

func (s *CheckInService) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ledger.Loaded() {
		return Stats{}, pkgerrors.LedgerNotLoaded
	}

	today := model.NormalizeDay(s.clock(), s.tz.Location())
	last, ok := s.ledger.LastCheckInDay()

	return Stats{
		CurrentStreak: CurrentStreak(s.ledger, today),
		LongestStreak: LongestStreak(s.ledger.Days()),
		TotalDays:     s.ledger.Total(),
		LastCheckIn:   last,
		HasCheckIn:    ok,
	}, nil
}

// History 返回 [startDate, endDate] 内的打卡日（倒序），两端可为空
func (s *CheckInService) History(ctx context.Context, startDate, endDate string) ([]model.DayKey, error) {
	from, to := model.DayKey(math.MinInt64), model.DayKey(math.MaxInt64)

	if startDate != "" {
		parsed, err := model.ParseDayKey(startDate)
		if err != nil {
			return nil, pkgerrors.InvalidDate
		}
		from = parsed
	}
	if endDate != "" {
		parsed, err := model.ParseDayKey(endDate)
		if err != nil {
			return nil, pkgerrors.InvalidDate
		}
		to = parsed
	}
	if from.After(to) {
		return nil, pkgerrors.InvalidRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ledger.Loaded() {
		return nil, pkgerrors.LedgerNotLoaded
	}
	return s.ledger.Range(from, to), nil
}

// Reconcile 应用恢复/时区变化/每日巡检时重新对账
func (s *CheckInService) Reconcile(ctx context.Context) (model.ReminderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ledger.Loaded() {
		return model.ReminderState{}, pkgerrors.LedgerNotLoaded
	}
	s.recoverLedger(ctx)
	return s.reconcileLocked(ctx, s.clock())
}

// ReconcileIfStale 每日巡检用，提醒已逾期布置或已触发且目标日未变时不重复布置
func (s *CheckInService) ReconcileIfStale(ctx context.Context) (model.ReminderState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ledger.Loaded() {
		return model.ReminderState{}, false, pkgerrors.LedgerNotLoaded
	}
	s.recoverLedger(ctx)

	sinkCtx, cancel := context.WithTimeout(ctx, s.sinkTimeout)
	defer cancel()
	return s.scheduler.ReconcileIfStale(sinkCtx, s.clock())
}

func (s *CheckInService) CancelReminder(ctx context.Context) (model.ReminderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sinkCtx, cancel := context.WithTimeout(ctx, s.sinkTimeout)
	defer cancel()
	return s.scheduler.Cancel(sinkCtx, s.clock())
}

func (s *CheckInService) Reminder() model.ReminderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduler.State()
}

// SetTimezone 设备上报时区变化后立即对账，已有打卡日不做追溯修正
func (s *CheckInService) SetTimezone(ctx context.Context, name string) (model.ReminderState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc, err := s.tz.Set(name)
	if err != nil {
		return model.ReminderState{}, pkgerrors.Wrap(pkgerrors.InvalidTimezone, err)
	}
	s.logger.Info("Timezone changed", zap.String("timezone", loc.String()))

	if !s.ledger.Loaded() {
		return s.scheduler.State(), nil
	}
	return s.reconcileLocked(ctx, s.clock())
}

// OnReminderFired 投递通道触发提醒后的回调
func (s *CheckInService) OnReminderFired(identifier string, firedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler.MarkFired(identifier, firedAt) {
		s.logger.Info("Reminder fired", zap.String("identifier", identifier), zap.Time("fired_at", firedAt))
	}
}

func (s *CheckInService) Timezone() string {
	return s.tz.Location().String()
}

// Location 当前生效的时区
func (s *CheckInService) Location() *time.Location {
	return s.tz.Location()
}

// recoverLedger 启动读取失败时，借对账的机会重试合并持久化集合
func (s *CheckInService) recoverLedger(ctx context.Context) {
	if !s.ledger.NeedsMerge() {
		return
	}
	if err := s.ledger.Recover(ctx); err != nil {
		s.logger.Warn("Check-in ledger still not merged with persisted state", zap.Error(err))
	}
}

func (s *CheckInService) reconcileLocked(ctx context.Context, now time.Time) (model.ReminderState, error) {
	sinkCtx, cancel := context.WithTimeout(ctx, s.sinkTimeout)
	defer cancel()
	return s.scheduler.Reconcile(sinkCtx, now)
}

// warnings 展开 errors.Join 的结果
func warnings(errs ...error) []string {
	var out []string
	for _, err := range errs {
		if err == nil {
			continue
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			out = append(out, warnings(joined.Unwrap()...)...)
			continue
		}
		out = append(out, err.Error())
	}
	return out
}

// Warnings 把对账返回的非致命错误展开成字符串
func Warnings(err error) []string {
	return warnings(err)
}

package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"DeadOrNot/internal/model"
	pkgerrors "DeadOrNot/pkg/errors"
	"DeadOrNot/pkg/metrics"
	"DeadOrNot/utils"
)

// LedgerStore 打卡集合的持久化，整集读写，键空间固定
type LedgerStore interface {
	Load(ctx context.Context) ([]model.DayKey, error)
	Save(ctx context.Context, days []model.DayKey) error
}

// DayLookup 按日查询是否已打卡
type DayLookup interface {
	IsCheckedIn(day model.DayKey) bool
}

// CheckInLedger 已打卡日历日的集合。
// 本身不加锁，由 CheckInService 串行化所有访问。
type CheckInLedger struct {
	store  LedgerStore
	tz     utils.TimezoneProvider
	logger *zap.Logger
	days   map[model.DayKey]struct{}
	loaded bool
	dirty  bool // 上一次落盘失败，下一次写操作会重试
	// 启动时读取失败，持久化集合尚未并入内存，落盘前必须先合并
	needsMerge bool
}

func NewCheckInLedger(store LedgerStore, tz utils.TimezoneProvider, logger *zap.Logger) *CheckInLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckInLedger{
		store:  store,
		tz:     tz,
		logger: logger,
		days:   make(map[model.DayKey]struct{}),
	}
}

// Reload 用持久化快照替换内存状态，进程启动后必须先调用一次。
// 读取失败不致命：账本以内存状态继续可用，下一次落盘前先重新读取并合并。
func (l *CheckInLedger) Reload(ctx context.Context) error {
	days, err := l.store.Load(ctx)
	if err != nil {
		metrics.RecordPersistenceFailure(ctx, "load")
		l.logger.Error("Failed to load check-in ledger, continuing with in-memory state",
			zap.Int("days", len(l.days)),
			zap.Error(err),
		)
		l.loaded = true
		l.needsMerge = true
		return pkgerrors.Wrap(pkgerrors.PersistenceLoadFailed, err)
	}

	set := make(map[model.DayKey]struct{}, len(days))
	for _, day := range days {
		set[day] = struct{}{}
	}

	l.days = set
	l.loaded = true
	l.dirty = false
	l.needsMerge = false

	l.logger.Info("Check-in ledger loaded", zap.Int("days", len(set)))
	return nil
}

// RecordCheckIn 记录 now 所在的本地日。
// 同一天重复打卡返回 wasNew=false；落盘失败时日期仍记在内存中，错误作为非致命信号返回。
func (l *CheckInLedger) RecordCheckIn(ctx context.Context, now time.Time) (model.DayKey, bool, error) {
	day := model.NormalizeDay(now, l.tz.Location())

	if _, ok := l.days[day]; ok {
		if l.dirty {
			return day, false, l.Flush(ctx)
		}
		return day, false, nil
	}

	l.days[day] = struct{}{}
	l.dirty = true

	return day, true, l.Flush(ctx)
}

// Flush 同步写入完整集合。
// 启动读取失败过的账本先合并持久化集合，避免覆盖掉未读到的打卡日。
func (l *CheckInLedger) Flush(ctx context.Context) error {
	if l.needsMerge {
		if err := l.merge(ctx); err != nil {
			l.dirty = true
			return err
		}
	}

	if err := l.store.Save(ctx, l.Days()); err != nil {
		l.dirty = true
		metrics.RecordPersistenceFailure(ctx, "save")
		l.logger.Warn("Failed to persist check-in ledger, keeping in-memory state",
			zap.Int("days", len(l.days)),
			zap.Error(err),
		)
		return pkgerrors.Wrap(pkgerrors.PersistenceWriteFailed, err)
	}

	l.dirty = false
	return nil
}

// Recover 启动读取失败后重试合并，成功时把并集写回
func (l *CheckInLedger) Recover(ctx context.Context) error {
	if !l.needsMerge {
		return nil
	}
	return l.Flush(ctx)
}

func (l *CheckInLedger) merge(ctx context.Context) error {
	days, err := l.store.Load(ctx)
	if err != nil {
		metrics.RecordPersistenceFailure(ctx, "load")
		l.logger.Warn("Failed to reload check-in ledger for merge", zap.Error(err))
		return pkgerrors.Wrap(pkgerrors.PersistenceLoadFailed, err)
	}

	for _, day := range days {
		l.days[day] = struct{}{}
	}
	l.needsMerge = false

	l.logger.Info("Check-in ledger merged with persisted state",
		zap.Int("persisted", len(days)),
		zap.Int("days", len(l.days)),
	)
	return nil
}

func (l *CheckInLedger) IsCheckedIn(day model.DayKey) bool {
	_, ok := l.days[day]
	return ok
}

// LastCheckInDay 日历顺序上最大的一天
func (l *CheckInLedger) LastCheckInDay() (model.DayKey, bool) {
	var (
		last  model.DayKey
		found bool
	)
	for day := range l.days {
		if !found || day.After(last) {
			last = day
			found = true
		}
	}
	return last, found
}

// Days 升序快照
func (l *CheckInLedger) Days() []model.DayKey {
	days := make([]model.DayKey, 0, len(l.days))
	for day := range l.days {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days
}

// Range 返回 [from, to] 内的打卡日，按日期倒序
func (l *CheckInLedger) Range(from, to model.DayKey) []model.DayKey {
	days := make([]model.DayKey, 0)
	for day := range l.days {
		if !day.Before(from) && !day.After(to) {
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i] > days[j] })
	return days
}

func (l *CheckInLedger) Total() int {
	return len(l.days)
}

func (l *CheckInLedger) Loaded() bool {
	return l.loaded
}

// NeedsMerge 持久化集合是否还没并入内存
func (l *CheckInLedger) NeedsMerge() bool {
	return l.needsMerge
}

func (l *CheckInLedger) Dirty() bool {
	return l.dirty
}

// Location 调用时刻生效的时区
func (l *CheckInLedger) Location() *time.Location {
	return l.tz.Location()
}

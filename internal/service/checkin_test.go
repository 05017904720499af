package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeadOrNot/internal/model"
	"DeadOrNot/internal/repository"
	"DeadOrNot/internal/schedule"
	pkgerrors "DeadOrNot/pkg/errors"
	"DeadOrNot/utils"
)

type fakeSink struct {
	armErr  error
	lastArm time.Time
	mu      sync.Mutex
	arms    int
	cancels int
	delayed int
}

func (s *fakeSink) Arm(ctx context.Context, id string, fireAt time.Time, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arms++
	s.lastArm = fireAt
	return s.armErr
}

func (s *fakeSink) ArmAfterDelay(ctx context.Context, id string, delay time.Duration, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayed++
	return s.armErr
}

func (s *fakeSink) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	return nil
}

type testClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	svc   *CheckInService
	store LedgerStore
	sink  *fakeSink
	clock *testClock
	tz    *utils.MutableTimezone
}

func newFixture(t *testing.T, store LedgerStore, start time.Time) *fixture {
	t.Helper()

	if store == nil {
		store = repository.NewMemoryLedgerStore()
	}
	tz := utils.NewMutableTimezone(utc)
	sink := &fakeSink{}
	clock := &testClock{now: start}

	ledger := NewCheckInLedger(store, tz, nil)
	scheduler := schedule.NewReminderScheduler(ledger, sink, tz, schedule.DefaultOptions(), nil)
	svc := NewCheckInService(ledger, scheduler, tz, WithClock(clock.Now))

	return &fixture{svc: svc, store: store, sink: sink, clock: clock, tz: tz}
}

func TestCheckInService_NotStarted(t *testing.T) {
	f := newFixture(t, nil, at(2024, 1, 1, 10, 0))

	_, err := f.svc.CheckIn(context.Background())
	assert.Equal(t, pkgerrors.LedgerNotLoaded, err)
}

func TestCheckInService_StartSurvivesLoadFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{
		saved:   []model.DayKey{model.NewDayKey(2023, 12, 30)},
		loadErr: errors.New("store offline"),
	}
	f := newFixture(t, store, at(2024, 1, 1, 10, 0))
	f.svc.Start(ctx)

	// 读取失败也照常对账
	assert.Equal(t, model.ReminderStatusScheduled, f.svc.Reminder().Status)

	first, err := f.svc.CheckIn(ctx)
	require.NoError(t, err)
	assert.True(t, first.WasNew)
	assert.Len(t, first.Warnings, 1)
	assert.Equal(t, at(2024, 1, 4, 9, 0), first.Reminder.FireAt)
	// 没合并之前不能覆盖持久化集合
	assert.Equal(t, []model.DayKey{model.NewDayKey(2023, 12, 30)}, store.saved)

	store.mu.Lock()
	store.loadErr = nil
	store.mu.Unlock()

	f.clock.Set(at(2024, 1, 2, 10, 0))
	second, err := f.svc.CheckIn(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Warnings)
	assert.Equal(t, []model.DayKey{
		model.NewDayKey(2023, 12, 30),
		model.NewDayKey(2024, 1, 1),
		model.NewDayKey(2024, 1, 2),
	}, store.saved)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalDays)
	assert.Equal(t, 2, stats.CurrentStreak)
}

func TestCheckInService_ReconcileMergesAfterLoadFailure(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{
		saved:   []model.DayKey{model.NewDayKey(2024, 1, 1)},
		loadErr: errors.New("store offline"),
	}
	f := newFixture(t, store, at(2024, 1, 2, 10, 0))
	f.svc.Start(ctx)

	today, err := f.svc.Today(ctx)
	require.NoError(t, err)
	assert.False(t, today.HasCheckIn)

	store.mu.Lock()
	store.loadErr = nil
	store.mu.Unlock()

	state, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", state.BaseDay.String())

	today, err = f.svc.Today(ctx)
	require.NoError(t, err)
	assert.True(t, today.HasCheckIn)
	assert.Equal(t, "2024-01-01", today.LastCheckIn.String())
}

func TestCheckInService_ReconcileIfStaleSkipsOverdueReminder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, repository.NewMemoryLedgerStore(model.NewDayKey(2023, 12, 1)), at(2024, 1, 1, 10, 0))
	f.svc.Start(ctx)
	require.Equal(t, 1, f.sink.delayed)

	state, rearmed, err := f.svc.ReconcileIfStale(ctx)
	require.NoError(t, err)
	assert.False(t, rearmed)
	assert.True(t, state.PastDue)

	f.svc.OnReminderFired(state.Identifier, at(2024, 1, 1, 10, 1))
	f.clock.Set(at(2024, 1, 2, 0, 5))
	_, rearmed, err = f.svc.ReconcileIfStale(ctx)
	require.NoError(t, err)
	assert.False(t, rearmed)
	assert.Equal(t, 1, f.sink.delayed)

	// 打卡后目标日变化，巡检重新布置
	_, err = f.svc.CheckIn(ctx)
	require.NoError(t, err)
	_, err = f.svc.CancelReminder(ctx)
	require.NoError(t, err)
	_, rearmed, err = f.svc.ReconcileIfStale(ctx)
	require.NoError(t, err)
	assert.True(t, rearmed)
	assert.Equal(t, model.ReminderStatusScheduled, f.svc.Reminder().Status)
}

func TestCheckInService_StartReconciles(t *testing.T) {
	f := newFixture(t, nil, at(2024, 1, 1, 10, 0))
	f.svc.Start(context.Background())

	state := f.svc.Reminder()
	assert.Equal(t, model.ReminderStatusScheduled, state.Status)
	assert.Equal(t, at(2024, 1, 4, 9, 0), state.FireAt)
	assert.Equal(t, 1, f.sink.cancels)
	assert.Equal(t, 1, f.sink.arms)
}

func TestCheckInService_ScenarioC(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, at(2024, 1, 1, 8, 0))
	f.svc.Start(ctx)

	first, err := f.svc.CheckIn(ctx)
	require.NoError(t, err)
	assert.True(t, first.WasNew)
	assert.Equal(t, 1, first.Streak)

	f.clock.Set(at(2024, 1, 2, 8, 0))
	second, err := f.svc.CheckIn(ctx)
	require.NoError(t, err)
	assert.True(t, second.WasNew)
	assert.Equal(t, 2, second.Streak)
	assert.Empty(t, second.Warnings)

	assert.Equal(t, "2024-01-02", second.Reminder.BaseDay.String())
	assert.Equal(t, at(2024, 1, 5, 9, 0), second.Reminder.FireAt)
	assert.True(t, second.Reminder.FireAt.After(f.clock.Now()))

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CurrentStreak)
	assert.Equal(t, 2, stats.LongestStreak)
	assert.Equal(t, 2, stats.TotalDays)
	assert.Equal(t, "2024-01-02", stats.LastCheckIn.String())
}

func TestCheckInService_DuplicateCheckIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, at(2024, 1, 1, 8, 0))
	f.svc.Start(ctx)

	_, err := f.svc.CheckIn(ctx)
	require.NoError(t, err)

	f.clock.Set(at(2024, 1, 1, 23, 0))
	again, err := f.svc.CheckIn(ctx)
	require.NoError(t, err)
	assert.False(t, again.WasNew)
	assert.Equal(t, 1, again.Streak)
	assert.Equal(t, 1, f.store.(*repository.MemoryLedgerStore).Saves())
}

func TestCheckInService_FailuresDoNotBlockCheckIn(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{}
	f := newFixture(t, store, at(2024, 1, 1, 8, 0))
	f.svc.Start(ctx)

	store.fail(errors.New("disk full"))
	f.sink.armErr = errors.New("sink down")

	result, err := f.svc.CheckIn(ctx)
	require.NoError(t, err)
	assert.True(t, result.WasNew)
	assert.Equal(t, 1, result.Streak)
	assert.Len(t, result.Warnings, 2)
	assert.Equal(t, model.ReminderStatusScheduled, result.Reminder.Status)

	today, err := f.svc.Today(ctx)
	require.NoError(t, err)
	assert.True(t, today.CheckedIn)
}

func TestCheckInService_History(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryLedgerStore(
		model.NewDayKey(2024, 1, 1),
		model.NewDayKey(2024, 1, 2),
		model.NewDayKey(2024, 2, 1),
	)
	f := newFixture(t, store, at(2024, 2, 1, 12, 0))
	f.svc.Start(ctx)

	all, err := f.svc.History(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "2024-02-01", all[0].String())

	jan, err := f.svc.History(ctx, "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, []model.DayKey{model.NewDayKey(2024, 1, 2), model.NewDayKey(2024, 1, 1)}, jan)

	_, err = f.svc.History(ctx, "2024-13-01", "")
	assert.Equal(t, pkgerrors.InvalidDate, err)

	_, err = f.svc.History(ctx, "2024-02-01", "2024-01-01")
	assert.Equal(t, pkgerrors.InvalidRange, err)
}

func TestCheckInService_SetTimezoneReconciles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, at(2024, 1, 1, 10, 0))
	f.svc.Start(ctx)

	state, err := f.svc.SetTimezone(ctx, "Asia/Shanghai")
	require.NoError(t, err)

	shanghai, _ := time.LoadLocation("Asia/Shanghai")
	assert.Equal(t, time.Date(2024, 1, 4, 9, 0, 0, 0, shanghai).Unix(), state.FireAt.Unix())
	assert.Equal(t, "Asia/Shanghai", f.svc.Timezone())

	_, err = f.svc.SetTimezone(ctx, "Nowhere/City")
	assert.True(t, errors.Is(err, pkgerrors.InvalidTimezone))
}

func TestCheckInService_OnReminderFiredAndCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, repository.NewMemoryLedgerStore(model.NewDayKey(2023, 12, 1)), at(2024, 1, 1, 10, 0))
	f.svc.Start(ctx)

	state := f.svc.Reminder()
	assert.True(t, state.PastDue)
	assert.Equal(t, 1, f.sink.delayed)

	f.svc.OnReminderFired(state.Identifier, at(2024, 1, 1, 10, 0))
	assert.Equal(t, model.ReminderStatusFired, f.svc.Reminder().Status)

	cancelled, err := f.svc.CancelReminder(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ReminderStatusCancelled, cancelled.Status)

	// 下一次对账恢复为已布置
	reconciled, err := f.svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ReminderStatusScheduled, reconciled.Status)
}

func TestCheckInService_ConcurrentCheckIns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, at(2024, 1, 1, 8, 0))
	f.svc.Start(ctx)

	var wg sync.WaitGroup
	newCount := 0
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.svc.CheckIn(ctx)
			if err == nil && result.WasNew {
				mu.Lock()
				newCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, newCount)
	assert.Equal(t, 21, f.sink.cancels, "every reconcile cancels before arming")
}

package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"DeadOrNot/config"
	"DeadOrNot/internal/model"
	pkgerrors "DeadOrNot/pkg/errors"
	"DeadOrNot/utils"
)

type sinkCall struct {
	FireAt time.Time
	Op     string
	ID     string
	Delay  time.Duration
}

// recordingSink 按顺序记录调用
type recordingSink struct {
	armErr    error
	cancelErr error
	calls     []sinkCall
}

func (s *recordingSink) Arm(ctx context.Context, id string, fireAt time.Time, title, body string) error {
	s.calls = append(s.calls, sinkCall{Op: "arm", ID: id, FireAt: fireAt})
	return s.armErr
}

func (s *recordingSink) ArmAfterDelay(ctx context.Context, id string, delay time.Duration, title, body string) error {
	s.calls = append(s.calls, sinkCall{Op: "arm_after_delay", ID: id, Delay: delay})
	return s.armErr
}

func (s *recordingSink) Cancel(ctx context.Context, id string) error {
	s.calls = append(s.calls, sinkCall{Op: "cancel", ID: id})
	return s.cancelErr
}

type fixedLedger struct {
	last  model.DayKey
	empty bool
}

func (l fixedLedger) LastCheckInDay() (model.DayKey, bool) {
	return l.last, !l.empty
}

var utc = utils.FixedTimezone{Loc: time.UTC}

func newScheduler(ledger LastCheckIn, sink NotificationSink) *ReminderScheduler {
	return NewReminderScheduler(ledger, sink, utc, DefaultOptions(), nil)
}

func TestReconcile_ScenarioA_EmptyLedger(t *testing.T) {
	sink := &recordingSink{}
	s := newScheduler(fixedLedger{empty: true}, sink)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	state, err := s.Reconcile(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, model.ReminderStatusScheduled, state.Status)
	assert.Equal(t, "2024-01-01", state.BaseDay.String())
	assert.Equal(t, "2024-01-04", state.TargetDay.String())
	assert.Equal(t, time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC), state.FireAt)
	assert.False(t, state.PastDue)

	require.Len(t, sink.calls, 2)
	assert.Equal(t, "cancel", sink.calls[0].Op)
	assert.Equal(t, "arm", sink.calls[1].Op)
	assert.Equal(t, "DeadOrNot_Missed3Days", sink.calls[1].ID)
	assert.Equal(t, state.FireAt, sink.calls[1].FireAt)
}

func TestReconcile_ScenarioB_PastDue(t *testing.T) {
	sink := &recordingSink{}
	s := newScheduler(fixedLedger{last: model.NewDayKey(2024, 1, 1)}, sink)
	now := time.Date(2024, 1, 6, 12, 0, 0, 0, time.UTC)

	state, err := s.Reconcile(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, model.ReminderStatusScheduled, state.Status)
	assert.True(t, state.PastDue)
	assert.Equal(t, now.Add(5*time.Second), state.FireAt)
	assert.Equal(t, "2024-01-04", state.TargetDay.String())

	require.Len(t, sink.calls, 2)
	assert.Equal(t, "cancel", sink.calls[0].Op)
	assert.Equal(t, "arm_after_delay", sink.calls[1].Op)
	assert.Equal(t, 5*time.Second, sink.calls[1].Delay)
}

func TestReconcile_ExactlyAtFireTimeIsPastDue(t *testing.T) {
	sink := &recordingSink{}
	s := newScheduler(fixedLedger{last: model.NewDayKey(2024, 1, 1)}, sink)

	state, err := s.Reconcile(context.Background(), time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, state.PastDue)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	sink := &recordingSink{}
	s := newScheduler(fixedLedger{last: model.NewDayKey(2024, 1, 2)}, sink)
	now := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)

	first, err := s.Reconcile(context.Background(), now)
	require.NoError(t, err)
	second, err := s.Reconcile(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, sink.calls, 4)
	assert.Equal(t, sink.calls[:2], sink.calls[2:])
	assert.True(t, first.FireAt.After(now))
}

func TestReconcile_CrossesDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	sink := &recordingSink{}
	s := NewReminderScheduler(fixedLedger{last: model.NewDayKey(2024, 3, 8)}, sink, utils.FixedTimezone{Loc: ny}, DefaultOptions(), nil)

	state, err := s.Reconcile(context.Background(), time.Date(2024, 3, 8, 20, 0, 0, 0, ny))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 11, 9, 0, 0, 0, ny), state.FireAt)
	assert.Equal(t, 9, state.FireAt.In(ny).Hour())
}

func TestReconcile_SinkFailuresAreNonFatal(t *testing.T) {
	sink := &recordingSink{
		cancelErr: errors.New("cancel refused"),
		armErr:    errors.New("arm refused"),
	}
	s := newScheduler(fixedLedger{last: model.NewDayKey(2024, 1, 1)}, sink)
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	state, err := s.Reconcile(context.Background(), now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.SinkCancelFailed))
	assert.True(t, errors.Is(err, pkgerrors.SinkArmFailed))

	// 状态仍记录预期的布置，下一次对账自然重试
	assert.Equal(t, model.ReminderStatusScheduled, state.Status)
	assert.Equal(t, time.Date(2024, 1, 4, 9, 0, 0, 0, time.UTC), state.FireAt)
	assert.Equal(t, state, s.State())
}

func TestReconcile_PastDueDelayIsClamped(t *testing.T) {
	opts := DefaultOptions()
	opts.PastDueDelay = 0

	sink := &recordingSink{}
	s := NewReminderScheduler(fixedLedger{last: model.NewDayKey(2023, 1, 1)}, sink, utc, opts, nil)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	state, err := s.Reconcile(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, time.Second, sink.calls[1].Delay)
	assert.Equal(t, now.Add(time.Second), state.FireAt)
}

func TestReconcile_ZeroGraceDays(t *testing.T) {
	opts := DefaultOptions()
	opts.GraceDays = 0
	opts.Hour = 21

	sink := &recordingSink{}
	s := NewReminderScheduler(fixedLedger{empty: true}, sink, utc, opts, nil)

	state, err := s.Reconcile(context.Background(), time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC), state.FireAt)
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Arm(ctx context.Context, id string, fireAt time.Time, title, body string) error {
	return m.Called(ctx, id, fireAt, title, body).Error(0)
}

func (m *mockSink) ArmAfterDelay(ctx context.Context, id string, delay time.Duration, title, body string) error {
	return m.Called(ctx, id, delay, title, body).Error(0)
}

func (m *mockSink) Cancel(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func TestCancelAndMarkFired(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	sink := &mockSink{}
	sink.On("Cancel", ctx, opts.Identifier).Return(nil)
	sink.On("Arm", ctx, opts.Identifier, mock.AnythingOfType("time.Time"), opts.Title, opts.Body).Return(nil).Once()

	s := NewReminderScheduler(fixedLedger{empty: true}, sink, utc, opts, nil)
	assert.Equal(t, model.ReminderStatusUnscheduled, s.State().Status)
	assert.False(t, s.MarkFired(opts.Identifier, time.Now()), "nothing armed yet")

	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	_, err := s.Reconcile(ctx, now)
	require.NoError(t, err)

	assert.False(t, s.MarkFired("someone_else", now))
	assert.True(t, s.MarkFired(opts.Identifier, now.Add(time.Hour)))
	assert.Equal(t, model.ReminderStatusFired, s.State().Status)

	state, err := s.Cancel(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.ReminderStatusCancelled, state.Status)
	assert.True(t, state.FireAt.IsZero())

	sink.AssertExpectations(t)
	sink.AssertNumberOfCalls(t, "Cancel", 2)
}

// pendingRecordingSink 额外报告是否还有未结束的布置
type pendingRecordingSink struct {
	recordingSink
	pending bool
}

func (s *pendingRecordingSink) Pending(id string) bool {
	return s.pending
}

func TestMarkFired_IgnoresSupersededArm(t *testing.T) {
	sink := &pendingRecordingSink{}
	s := newScheduler(fixedLedger{last: model.NewDayKey(2024, 1, 1)}, sink)
	now := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	_, err := s.Reconcile(context.Background(), now)
	require.NoError(t, err)

	// 旧布置的回调到达时通道里已有新的布置
	sink.pending = true
	assert.False(t, s.MarkFired(DefaultOptions().Identifier, now))
	assert.Equal(t, model.ReminderStatusScheduled, s.State().Status)

	sink.pending = false
	assert.True(t, s.MarkFired(DefaultOptions().Identifier, now))
	assert.Equal(t, model.ReminderStatusFired, s.State().Status)
}

func TestReconcileIfStale(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	ledger := &fixedLedger{last: model.NewDayKey(2024, 1, 1)}
	s := newScheduler(ledger, sink)
	overdue := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	state, rearmed, err := s.ReconcileIfStale(ctx, overdue)
	require.NoError(t, err)
	assert.True(t, rearmed, "nothing armed yet")
	assert.True(t, state.PastDue)

	_, rearmed, err = s.ReconcileIfStale(ctx, overdue.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, rearmed)

	require.True(t, s.MarkFired(DefaultOptions().Identifier, overdue.Add(time.Minute)))
	_, rearmed, err = s.ReconcileIfStale(ctx, overdue.Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, rearmed)

	ledger.last = model.NewDayKey(2024, 1, 6)
	state, rearmed, err = s.ReconcileIfStale(ctx, overdue.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, rearmed)
	assert.False(t, state.PastDue)
	assert.Equal(t, "2024-01-09", state.TargetDay.String())

	var delayed int
	for _, c := range sink.calls {
		if c.Op == "arm_after_delay" {
			delayed++
		}
	}
	assert.Equal(t, 1, delayed)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.ReminderAt = "20:30"
	cfg.ReminderGraceDays = 2

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 20, opts.Hour)
	assert.Equal(t, 30, opts.Minute)
	assert.Equal(t, 2, opts.GraceDays)
	assert.Equal(t, "DeadOrNot_Missed3Days", opts.Identifier)
	assert.Equal(t, "你已连续 2 天未打卡，快打开“死了么”打个卡吧！", opts.Body)

	cfg.ReminderBody = "该打卡了"
	opts, err = OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "该打卡了", opts.Body)

	cfg.ReminderAt = "noon"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}

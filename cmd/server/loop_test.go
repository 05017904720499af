package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeadOrNot/internal/model"
	"DeadOrNot/internal/repository"
	"DeadOrNot/internal/schedule"
	"DeadOrNot/internal/service"
	"DeadOrNot/utils"
)

func TestNextRun(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}

	now := time.Date(2024, 3, 9, 23, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 5, 0, 0, loc), nextRun(now, loc))

	early := time.Date(2024, 3, 10, 0, 1, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 5, 0, 0, loc), nextRun(early, loc))

	// 跨过 DST 当天仍落在次日 00:05，而不是 +24h
	after := time.Date(2024, 3, 10, 0, 5, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 5, 0, 0, loc), nextRun(after, loc))
}

func TestDailySchedule_FollowsTimezoneChanges(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Skip("tzdata not available")
	}

	loc := time.UTC
	daily := dailySchedule{location: func() *time.Location { return loc }}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 5, 0, 0, time.UTC), daily.Next(now))

	loc = shanghai
	assert.Equal(t, time.Date(2024, 1, 2, 0, 5, 0, 0, shanghai), daily.Next(now))
}

// countingSink 统计布置次数，每次逾期布置对应一次提醒送达
type countingSink struct {
	mu      sync.Mutex
	arms    int
	delayed int
}

func (s *countingSink) Arm(ctx context.Context, id string, fireAt time.Time, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arms++
	return nil
}

func (s *countingSink) ArmAfterDelay(ctx context.Context, id string, delay time.Duration, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delayed++
	return nil
}

func (s *countingSink) Cancel(ctx context.Context, id string) error {
	return nil
}

func TestReconcileOnce_OverdueReminderIsNotRepeated(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	tz := utils.NewMutableTimezone(utils.FixedTimezone{Loc: time.UTC})
	ledger := service.NewCheckInLedger(repository.NewMemoryLedgerStore(model.NewDayKey(2024, 1, 1)), tz, nil)
	sink := &countingSink{}
	scheduler := schedule.NewReminderScheduler(ledger, sink, tz, schedule.DefaultOptions(), nil)
	checkIns := service.NewCheckInService(ledger, scheduler, tz, service.WithClock(clock))

	checkIns.Start(ctx)
	require.Equal(t, 1, sink.delayed)

	reconcileOnce(ctx, checkIns)
	now = now.Add(time.Minute)
	reconcileOnce(ctx, checkIns)

	assert.Equal(t, 1, sink.delayed)
	assert.Equal(t, 0, sink.arms)
	assert.True(t, checkIns.Reminder().PastDue)
}

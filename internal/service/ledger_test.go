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
	pkgerrors "DeadOrNot/pkg/errors"
	"DeadOrNot/utils"
)

// flakyStore 可切换失败的存储
type flakyStore struct {
	saved   []model.DayKey
	loadErr error
	saveErr error
	mu      sync.Mutex
	saves   int
}

func (s *flakyStore) Load(ctx context.Context) ([]model.DayKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return append([]model.DayKey(nil), s.saved...), nil
}

func (s *flakyStore) Save(ctx context.Context, days []model.DayKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append([]model.DayKey(nil), days...)
	return nil
}

func (s *flakyStore) fail(err error) {
	s.mu.Lock()
	s.saveErr = err
	s.mu.Unlock()
}

var utc = utils.FixedTimezone{Loc: time.UTC}

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func TestLedger_RecordCheckInIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryLedgerStore()
	ledger := NewCheckInLedger(store, utc, nil)
	require.NoError(t, ledger.Reload(ctx))

	day, wasNew, err := ledger.RecordCheckIn(ctx, at(2024, 1, 1, 8, 0))
	require.NoError(t, err)
	assert.True(t, wasNew)
	assert.Equal(t, "2024-01-01", day.String())

	day, wasNew, err = ledger.RecordCheckIn(ctx, at(2024, 1, 1, 22, 0))
	require.NoError(t, err)
	assert.False(t, wasNew)
	assert.Equal(t, "2024-01-01", day.String())

	assert.Equal(t, 1, ledger.Total())
	assert.Equal(t, 1, store.Saves(), "duplicate check-in does not rewrite the set")
	assert.True(t, ledger.IsCheckedIn(model.NewDayKey(2024, 1, 1)))
	assert.False(t, ledger.IsCheckedIn(model.NewDayKey(2024, 1, 2)))
}

func TestLedger_UsesZoneAtCallTime(t *testing.T) {
	ctx := context.Background()
	tz := utils.NewMutableTimezone(utc)
	ledger := NewCheckInLedger(repository.NewMemoryLedgerStore(), tz, nil)
	require.NoError(t, ledger.Reload(ctx))

	instant := at(2024, 1, 1, 20, 0)

	day, _, err := ledger.RecordCheckIn(ctx, instant)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", day.String())

	_, err = tz.Set("Asia/Shanghai")
	require.NoError(t, err)

	day, wasNew, err := ledger.RecordCheckIn(ctx, instant)
	require.NoError(t, err)
	assert.True(t, wasNew)
	assert.Equal(t, "2024-01-02", day.String())
}

func TestLedger_LastCheckInDay(t *testing.T) {
	ctx := context.Background()
	ledger := NewCheckInLedger(repository.NewMemoryLedgerStore(
		model.NewDayKey(2024, 1, 5),
		model.NewDayKey(2023, 12, 31),
		model.NewDayKey(2024, 1, 2),
	), utc, nil)

	_, ok := ledger.LastCheckInDay()
	assert.False(t, ok)

	require.NoError(t, ledger.Reload(ctx))
	last, ok := ledger.LastCheckInDay()
	require.True(t, ok)
	assert.Equal(t, "2024-01-05", last.String())
}

func TestLedger_PersistenceFailureKeepsMemoryAndRetries(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{}
	ledger := NewCheckInLedger(store, utc, nil)
	require.NoError(t, ledger.Reload(ctx))

	store.fail(errors.New("disk full"))

	day, wasNew, err := ledger.RecordCheckIn(ctx, at(2024, 1, 1, 9, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.PersistenceWriteFailed))
	assert.True(t, wasNew)
	assert.True(t, ledger.IsCheckedIn(day))
	assert.True(t, ledger.Dirty())

	store.fail(nil)

	// 同日再次打卡仍是 no-op，但会补写上一次失败的集合
	_, wasNew, err = ledger.RecordCheckIn(ctx, at(2024, 1, 1, 10, 0))
	require.NoError(t, err)
	assert.False(t, wasNew)
	assert.False(t, ledger.Dirty())
	assert.Equal(t, []model.DayKey{day}, store.saved)
}

func TestLedger_ReloadFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{saved: []model.DayKey{model.NewDayKey(2024, 1, 1)}}
	ledger := NewCheckInLedger(store, utc, nil)
	require.NoError(t, ledger.Reload(ctx))

	store.loadErr = errors.New("connection refused")
	err := ledger.Reload(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.PersistenceLoadFailed))
	assert.Equal(t, 1, ledger.Total())
}

func TestLedger_FirstLoadFailureMergesBeforeSave(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{
		saved:   []model.DayKey{model.NewDayKey(2023, 12, 31)},
		loadErr: errors.New("connection refused"),
	}
	ledger := NewCheckInLedger(store, utc, nil)

	err := ledger.Reload(ctx)
	assert.True(t, errors.Is(err, pkgerrors.PersistenceLoadFailed))
	assert.True(t, ledger.Loaded())
	assert.True(t, ledger.NeedsMerge())

	_, wasNew, err := ledger.RecordCheckIn(ctx, at(2024, 1, 1, 8, 0))
	assert.True(t, errors.Is(err, pkgerrors.PersistenceLoadFailed))
	assert.True(t, wasNew)
	assert.True(t, ledger.Dirty())
	assert.Equal(t, 0, store.saves)

	store.mu.Lock()
	store.loadErr = nil
	store.mu.Unlock()

	require.NoError(t, ledger.Recover(ctx))
	assert.False(t, ledger.NeedsMerge())
	assert.False(t, ledger.Dirty())
	assert.Equal(t, []model.DayKey{model.NewDayKey(2023, 12, 31), model.NewDayKey(2024, 1, 1)}, store.saved)
	assert.Equal(t, 2, ledger.Total())

	// 已合并后不再重复读取
	require.NoError(t, ledger.Recover(ctx))
	assert.Equal(t, 1, store.saves)
}

func TestLedger_RoundTripIsOrderIndependent(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryLedgerStore()

	first := NewCheckInLedger(store, utc, nil)
	require.NoError(t, first.Reload(ctx))
	for _, d := range []int{5, 1, 3, 2} {
		_, _, err := first.RecordCheckIn(ctx, at(2024, 1, d, 12, 0))
		require.NoError(t, err)
	}

	second := NewCheckInLedger(store, utc, nil)
	require.NoError(t, second.Reload(ctx))
	assert.Equal(t, first.Days(), second.Days())
}

func TestLedger_RangeIsDescending(t *testing.T) {
	ctx := context.Background()
	ledger := NewCheckInLedger(repository.NewMemoryLedgerStore(
		model.NewDayKey(2024, 1, 1),
		model.NewDayKey(2024, 1, 3),
		model.NewDayKey(2024, 1, 7),
		model.NewDayKey(2024, 2, 1),
	), utc, nil)
	require.NoError(t, ledger.Reload(ctx))

	got := ledger.Range(model.NewDayKey(2024, 1, 1), model.NewDayKey(2024, 1, 31))
	assert.Equal(t, []model.DayKey{
		model.NewDayKey(2024, 1, 7),
		model.NewDayKey(2024, 1, 3),
		model.NewDayKey(2024, 1, 1),
	}, got)
}

package progression

import (
	"context"
	"sync"
	"testing"
	"time"

	"rayven/internal/config"
	"rayven/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProgStore struct {
	mu  sync.Mutex
	rec *store.ProgressionRecord
}

func (f *fakeProgStore) SaveProgression(_ context.Context, rec store.ProgressionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := rec
	f.rec = &cp
	return nil
}

func (f *fakeProgStore) LoadProgression(_ context.Context) (*store.ProgressionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rec == nil {
		return nil, nil
	}
	cp := *f.rec
	return &cp, nil
}

func newTestMachine(t *testing.T, db *fakeProgStore) *Machine {
	t.Helper()
	m := NewMachine(testLadder(), db, 80)
	require.NoError(t, m.Start(context.Background()))
	return m
}

func TestMachineStartInitializesAndPersists(t *testing.T) {
	db := &fakeProgStore{}
	m := newTestMachine(t, db)

	assert.Equal(t, []string{"BTC"}, m.UnlockedInstruments())
	require.NotNil(t, db.rec)
	assert.Equal(t, 1, db.rec.Level)
	assert.InDelta(t, 80, db.rec.Balance, 1e-9)
}

func TestMachineRestoresState(t *testing.T) {
	db := &fakeProgStore{rec: &store.ProgressionRecord{
		Level: 2, Balance: 150, StartingBalance: 80, HighestBalance: 150, DayKey: "2026-01-01",
	}}
	m := newTestMachine(t, db)

	assert.Equal(t, []string{"BTC", "ETH"}, m.UnlockedInstruments())
	assert.InDelta(t, 150, m.Balance(), 1e-9)
}

func TestApplyBalanceUpdatePromotesOnce(t *testing.T) {
	db := &fakeProgStore{}
	m := newTestMachine(t, db)

	ev, err := m.ApplyBalanceUpdate(context.Background(), 200)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, 2, ev.NewLevel)
	assert.Equal(t, 2, db.rec.Level, "promotion must persist")

	ev, err = m.ApplyBalanceUpdate(context.Background(), 200)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, 3, ev.NewLevel)
}

func TestRiskLimitsScaleWithBalance(t *testing.T) {
	db := &fakeProgStore{}
	ladder := LadderFromConfig([]config.LevelConfig{
		{Level: 1, MilestoneUSD: 85, Unlocked: []string{"BTC"}, PerTradeCapPct: 0.30, DailyLossCapPct: 0.10, MaxTradesPerDay: 12},
	})
	m := NewMachine(ladder, db, 100)
	require.NoError(t, m.Start(context.Background()))

	limits := m.RiskLimits()
	assert.InDelta(t, 30, limits.PerTradeCapUSD, 1e-9)
	assert.InDelta(t, 10, limits.DailyLossCapUSD, 1e-9)
	assert.Equal(t, 12, limits.MaxTradesPerDay)
}

func TestAllowNewTradeFrequencyLimit(t *testing.T) {
	db := &fakeProgStore{}
	ladder := LadderFromConfig([]config.LevelConfig{
		{Level: 1, MilestoneUSD: 85, Unlocked: []string{"BTC"}, PerTradeCapPct: 0.30, DailyLossCapPct: 0.10, MaxTradesPerDay: 2},
	})
	m := NewMachine(ladder, db, 100)
	require.NoError(t, m.Start(context.Background()))

	ok, _ := m.AllowNewTrade()
	assert.True(t, ok)
	require.NoError(t, m.RecordTradeForFrequencyLimit(context.Background()))
	require.NoError(t, m.RecordTradeForFrequencyLimit(context.Background()))
	ok, reason := m.AllowNewTrade()
	assert.False(t, ok)
	assert.Contains(t, reason, "daily trade limit")
}

func TestAllowNewTradeDailyLossCap(t *testing.T) {
	db := &fakeProgStore{}
	ladder := LadderFromConfig([]config.LevelConfig{
		{Level: 1, MilestoneUSD: 85, Unlocked: []string{"BTC"}, PerTradeCapPct: 0.30, DailyLossCapPct: 0.10, MaxTradesPerDay: 12},
	})
	m := NewMachine(ladder, db, 100)
	require.NoError(t, m.Start(context.Background()))

	require.NoError(t, m.RecordDailyLoss(context.Background(), 15))
	ok, reason := m.AllowNewTrade()
	assert.False(t, ok)
	assert.Contains(t, reason, "daily loss cap")
}

func TestDailyCountersResetOnNewDay(t *testing.T) {
	db := &fakeProgStore{}
	m := newTestMachine(t, db)

	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.nowFn = func() time.Time { return day }
	require.NoError(t, m.RecordTradeForFrequencyLimit(context.Background()))
	require.NoError(t, m.RecordDailyLoss(context.Background(), 5))
	assert.Equal(t, 1, db.rec.TradesToday)

	m.nowFn = func() time.Time { return day.Add(24 * time.Hour) }
	ok, _ := m.AllowNewTrade()
	assert.True(t, ok)
	require.NoError(t, m.RecordTradeForFrequencyLimit(context.Background()))
	assert.Equal(t, 1, db.rec.TradesToday, "counters restart after UTC day roll")
	assert.Zero(t, db.rec.DailyLossUSD)
}

func TestReportProgressWindow(t *testing.T) {
	db := &fakeProgStore{}
	m := newTestMachine(t, db)

	_, err := m.ApplyBalanceUpdate(context.Background(), 82.5)
	require.NoError(t, err)
	p := m.Report()
	assert.Equal(t, 1, p.Level)
	require.NotNil(t, p.NextMilestone)
	assert.InDelta(t, 85, *p.NextMilestone, 1e-9)
	// 窗口 80→85，余额 82.5 即 50%。
	assert.InDelta(t, 50, p.ProgressPct, 1e-6)
	assert.InDelta(t, 2.5, p.AmountNeeded, 1e-9)
	assert.Equal(t, []string{"ETH"}, p.NextUnlock)
	assert.False(t, p.AtMaxLevel)
}

func TestReportAtMaxLevel(t *testing.T) {
	db := &fakeProgStore{rec: &store.ProgressionRecord{
		Level: 3, Balance: 500, StartingBalance: 80, HighestBalance: 500,
	}}
	m := newTestMachine(t, db)

	p := m.Report()
	assert.True(t, p.AtMaxLevel)
	assert.InDelta(t, 100, p.ProgressPct, 1e-9)
	assert.Nil(t, p.NextMilestone)
}

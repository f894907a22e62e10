package recorder

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rayven/internal/config"
	"rayven/internal/market"
	"rayven/internal/memory"
	"rayven/internal/progression"
	"rayven/internal/store"
	"rayven/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	rec     *Recorder
	mem     *memory.Memory
	prog    *progression.Machine
	account *market.PaperAccount
	db      *store.Store
}

func newFixture(t *testing.T, startingBalance float64) *fixture {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "rayven.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mem := memory.New(db, 3, 20)
	require.NoError(t, mem.Start(context.Background()))

	ladder := progression.LadderFromConfig([]config.LevelConfig{
		{Level: 1, MilestoneUSD: 85, Unlocked: []string{"BTC"}, Achievement: "Bitcoin Apprentice", PerTradeCapPct: 0.3, DailyLossCapPct: 0.1, MaxTradesPerDay: 12},
		{Level: 2, MilestoneUSD: 120, Unlocked: []string{"BTC", "ETH"}, Achievement: "Dual Asset Trader", PerTradeCapPct: 0.3, DailyLossCapPct: 0.1, MaxTradesPerDay: 12},
	})
	prog := progression.NewMachine(ladder, db, startingBalance)
	require.NoError(t, prog.Start(context.Background()))

	account := market.NewPaperAccount(startingBalance)
	rec := New(mem, prog, account, ExitPolicy{TakeProfitPct: 5, StopLossPct: 3, MaxHold: 24 * time.Hour})
	return &fixture{rec: rec, mem: mem, prog: prog, account: account, db: db}
}

func buyDecision(size float64) (types.Decision, types.SignalBundle) {
	d := types.Decision{
		TraceID:    "t-1",
		Instrument: "BTC",
		Action:     types.ActionBuy,
		Direction:  types.DirectionBuy,
		SizeUSD:    size,
		Confidence: 0.7,
		Pattern:    types.PatternSupportBounce,
		CreatedAt:  time.Now().Truncate(time.Second),
	}
	b := types.SignalBundle{
		Instrument: "BTC",
		Price:      50000,
		MoonPhase:  types.MoonFullMoon,
	}
	return d, b
}

func TestOpenWritesLedgerAndPosition(t *testing.T) {
	f := newFixture(t, 80)
	d, b := buyDecision(25)
	require.NoError(t, f.rec.Open(context.Background(), d, b))

	open, err := f.db.OpenTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, types.PatternSupportBounce, open[0].Pattern)

	pos, ok := f.account.Position("BTC")
	require.True(t, ok)
	assert.Equal(t, open[0].ID, pos.TradeID)
}

func TestOpenRejectsHoldDecision(t *testing.T) {
	f := newFixture(t, 80)
	d, b := buyDecision(25)
	d.Action = types.ActionHold
	assert.Error(t, f.rec.Open(context.Background(), d, b))
}

func TestCloseFeedsMemoryAndProgression(t *testing.T) {
	f := newFixture(t, 80)
	ctx := context.Background()
	d, b := buyDecision(50)
	require.NoError(t, f.rec.Open(ctx, d, b))

	// +20%：余额 80 → 90，跨过 85 门槛应升级。
	trade, err := f.rec.Close(ctx, "BTC", 60000, "take profit")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeWin, trade.Outcome)
	assert.InDelta(t, 20, trade.ReturnPct, 1e-9)

	stat := f.mem.LookupPattern(types.PatternSupportBounce, "BTC")
	assert.Equal(t, 1, stat.Trades)
	assert.Equal(t, 1, stat.Wins)

	assert.InDelta(t, 90, f.account.Balance(), 1e-9)
	assert.Equal(t, 2, f.prog.Report().Level, "crossing the milestone promotes")
	assert.Equal(t, []string{"BTC", "ETH"}, f.prog.UnlockedInstruments())
}

func TestCloseLossFeedsDailyLossCap(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	d, b := buyDecision(50)
	require.NoError(t, f.rec.Open(ctx, d, b))

	// -30%：亏 $15，超过 10% 日亏上限。
	trade, err := f.rec.Close(ctx, "BTC", 35000, "stop loss")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeLoss, trade.Outcome)

	ok, reason := f.prog.AllowNewTrade()
	assert.False(t, ok)
	assert.Contains(t, reason, "daily loss cap")
}

func TestCheckExitRules(t *testing.T) {
	f := newFixture(t, 100)
	pos := market.Position{
		Instrument: "BTC",
		Direction:  types.DirectionBuy,
		EntryPrice: 100,
		SizeUSD:    25,
		OpenedAt:   time.Now(),
	}

	assert.Empty(t, f.rec.CheckExit(pos, 101), "inside the band keeps holding")
	assert.Contains(t, f.rec.CheckExit(pos, 106), "take profit")
	assert.Contains(t, f.rec.CheckExit(pos, 96), "stop loss")

	short := pos
	short.Direction = types.DirectionSell
	assert.Contains(t, f.rec.CheckExit(short, 94), "take profit", "shorts profit from drops")
	assert.Contains(t, f.rec.CheckExit(short, 104), "stop loss")

	stale := pos
	stale.OpenedAt = time.Now().Add(-25 * time.Hour)
	assert.Contains(t, f.rec.CheckExit(stale, 100.5), "max hold")
}

func TestSweepExitsClosesTriggeredOnly(t *testing.T) {
	f := newFixture(t, 100)
	ctx := context.Background()
	d, b := buyDecision(25)
	require.NoError(t, f.rec.Open(ctx, d, b))

	// 价格在带内：不平仓。
	f.rec.SweepExits(ctx, func(_ context.Context, _ string) (float64, error) { return 50500, nil })
	_, ok := f.account.Position("BTC")
	assert.True(t, ok)

	// 触发止盈：平仓并记账。
	f.rec.SweepExits(ctx, func(_ context.Context, _ string) (float64, error) { return 53000, nil })
	_, ok = f.account.Position("BTC")
	assert.False(t, ok)
	open, err := f.db.OpenTrades(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

// flakyLedger 可控地让平仓落账失败，其余行为与真实账本一致。
type flakyLedger struct {
	mu        sync.Mutex
	trades    []types.TradeRecord
	nextID    int64
	failClose bool
}

func (f *flakyLedger) AppendTrade(_ context.Context, trade *types.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	trade.ID = f.nextID
	f.trades = append(f.trades, *trade)
	return nil
}

func (f *flakyLedger) CloseTradeTx(_ context.Context, trade types.TradeRecord, _ types.PatternStat, _ types.LunarStat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failClose {
		return fmt.Errorf("ledger unavailable")
	}
	for i := range f.trades {
		if f.trades[i].ID == trade.ID {
			f.trades[i] = trade
		}
	}
	return nil
}

func (f *flakyLedger) ListTrades(_ context.Context) ([]types.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.TradeRecord(nil), f.trades...), nil
}

func (f *flakyLedger) LoadPatternStats(_ context.Context) ([]types.PatternStat, error) {
	return nil, nil
}

func (f *flakyLedger) LoadLunarStats(_ context.Context) ([]types.LunarStat, error) {
	return nil, nil
}

func (f *flakyLedger) ReplaceStats(_ context.Context, _ []types.PatternStat, _ []types.LunarStat) error {
	return nil
}

func TestCloseLedgerFailureKeepsPosition(t *testing.T) {
	ctx := context.Background()
	db, err := store.New(filepath.Join(t.TempDir(), "rayven.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	led := &flakyLedger{failClose: true}
	mem := memory.New(led, 3, 20)
	require.NoError(t, mem.Start(ctx))

	ladder := progression.LadderFromConfig([]config.LevelConfig{
		{Level: 1, MilestoneUSD: 85, Unlocked: []string{"BTC"}, Achievement: "Bitcoin Apprentice", PerTradeCapPct: 0.3, DailyLossCapPct: 0.1, MaxTradesPerDay: 12},
	})
	prog := progression.NewMachine(ladder, db, 100)
	require.NoError(t, prog.Start(ctx))

	account := market.NewPaperAccount(100)
	rec := New(mem, prog, account, ExitPolicy{TakeProfitPct: 5, StopLossPct: 3, MaxHold: 24 * time.Hour})

	d, b := buyDecision(25)
	require.NoError(t, rec.Open(ctx, d, b))
	require.InDelta(t, 75, account.Available(), 1e-9)

	_, err = rec.Close(ctx, "BTC", 60000, "take profit")
	require.Error(t, err)

	// 账本没写成：持仓与余额必须原样保留，留给下个周期重试。
	_, open := account.Position("BTC")
	assert.True(t, open, "position survives a failed ledger write")
	assert.InDelta(t, 75, account.Available(), 1e-9)
	assert.Equal(t, 0, mem.LookupPattern(types.PatternSupportBounce, "BTC").Trades)

	// 账本恢复后同一笔平仓重试成功。
	led.failClose = false
	trade, err := rec.Close(ctx, "BTC", 60000, "take profit")
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeWin, trade.Outcome)
	_, open = account.Position("BTC")
	assert.False(t, open)
	assert.InDelta(t, 105, account.Balance(), 1e-9)
}

package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"rayven/internal/pattern"
	"rayven/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMemory struct {
	stats    map[string]types.PatternStat
	edges    map[types.MoonPhase]float64
	minTrust int
}

func (s *stubMemory) LookupPattern(p types.Pattern, instrument string) types.PatternStat {
	if st, ok := s.stats[fmt.Sprintf("%s/%s", p, instrument)]; ok {
		return st
	}
	return types.PatternStat{Pattern: p, Instrument: instrument}
}

func (s *stubMemory) Blend(prior float64, stat types.PatternStat) float64 {
	if stat.Trades < s.minTrust {
		return prior
	}
	return stat.WinRate()
}

func (s *stubMemory) LunarEdge(phase types.MoonPhase) float64 { return s.edges[phase] }
func (s *stubMemory) MinTrustTrades() int                     { return s.minTrust }

func defaultParams() Params {
	return Params{
		MinConfidence:        0.65,
		ExplorationRate:      0.15,
		ExplorationEnabled:   false,
		LunarModifierMax:     0.10,
		SentimentModifierMax: 0.10,
		TierLowPct:           0.30,
		TierMediumPct:        0.25,
		TierHighPct:          0.15,
	}
}

func newTestEngine(mem *stubMemory, params Params) *Engine {
	if mem.minTrust == 0 {
		mem.minTrust = 3
	}
	e := New(mem, pattern.NewLibrary(), params)
	e.nowFn = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

// supportBounceBundle 对应"RSI 32 + 贴近支撑 + 中性其他信号"的快照。
func supportBounceBundle() types.SignalBundle {
	return types.SignalBundle{
		Instrument:    "BTC",
		Price:         50000,
		RSI:           32,
		RangePosition: 0.22,
		Trend:         types.TrendSideways,
		TrendStrength: types.TrendStrengthWeak,
		VolumeRatio:   1.0,
		Sentiment:     50,
		MoonPhase:     types.MoonFirstQuarter,
		CreatedAt:     time.Now(),
	}
}

func neutralBundle() types.SignalBundle {
	b := supportBounceBundle()
	b.RSI = 50
	b.RangePosition = 0.5
	return b
}

func limits() types.RiskLimits {
	return types.RiskLimits{PerTradeCapUSD: 30, DailyLossCapUSD: 10, MaxTradesPerDay: 12}
}

func TestDecideLockedInstrumentHolds(t *testing.T) {
	e := newTestEngine(&stubMemory{}, defaultParams())
	b := supportBounceBundle()
	b.Instrument = "ETH"

	d, err := e.Decide(context.Background(), b, []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	assert.Equal(t, types.ActionHold, d.Action)
	assert.Contains(t, strings.Join(d.Reasoning, " "), "locked")
	assert.Zero(t, d.SizeUSD)
}

func TestDecideNoCandidatesHolds(t *testing.T) {
	e := newTestEngine(&stubMemory{}, defaultParams())

	d, err := e.Decide(context.Background(), neutralBundle(), []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	assert.Equal(t, types.ActionHold, d.Action)
	assert.Contains(t, strings.Join(d.Reasoning, " "), "no tradeable pattern")
}

func TestSupportBounceScenarioBuys(t *testing.T) {
	e := newTestEngine(&stubMemory{}, defaultParams())

	d, err := e.Decide(context.Background(), supportBounceBundle(), []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	assert.Equal(t, types.ActionBuy, d.Action)
	assert.Equal(t, types.PatternSupportBounce, d.Pattern)
	assert.GreaterOrEqual(t, d.Confidence, 0.65)
	assert.LessOrEqual(t, d.Confidence, 0.70)
	assert.NotEmpty(t, d.TraceID)
	assert.Greater(t, d.SizeUSD, 0.0)
}

func TestNewsBlockSuppressesBuyOnly(t *testing.T) {
	e := newTestEngine(&stubMemory{}, defaultParams())

	buy := supportBounceBundle()
	buy.NewsBlock = true
	d, err := e.Decide(context.Background(), buy, []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	assert.Equal(t, types.ActionHold, d.Action, "red-flag news must block the buy")
	assert.Contains(t, strings.Join(d.Reasoning, " "), "red-flag news")

	sell := supportBounceBundle()
	sell.NewsBlock = true
	sell.RSI = 76
	sell.RangePosition = 0.85
	d, err = e.Decide(context.Background(), sell, []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	assert.Equal(t, types.ActionSell, d.Action, "sell candidates survive a news block")
}

func TestConfidenceFloorHolds(t *testing.T) {
	mem := &stubMemory{stats: map[string]types.PatternStat{
		"support_bounce/BTC": {Pattern: types.PatternSupportBounce, Instrument: "BTC", Trades: 20, Wins: 6},
	}}
	e := newTestEngine(mem, defaultParams())

	d, err := e.Decide(context.Background(), supportBounceBundle(), []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	assert.Equal(t, types.ActionHold, d.Action, "30%% win rate drags the blend below the floor")
	assert.Contains(t, strings.Join(d.Reasoning, " "), "below floor")
	assert.Equal(t, types.PatternSupportBounce, d.Pattern, "hold still reports what was considered")
}

func TestSizeRespectsPerTradeCap(t *testing.T) {
	e := newTestEngine(&stubMemory{}, defaultParams())
	tight := types.RiskLimits{PerTradeCapUSD: 5, DailyLossCapUSD: 10, MaxTradesPerDay: 12}

	d, err := e.Decide(context.Background(), supportBounceBundle(), []string{"BTC"}, tight, 100)
	require.NoError(t, err)
	require.Equal(t, types.ActionBuy, d.Action)
	assert.InDelta(t, 5, d.SizeUSD, 1e-9)
	assert.Contains(t, strings.Join(d.Reasoning, " "), "clamped to per-trade cap")
}

func TestSizeScalesWithTierAndConfidence(t *testing.T) {
	e := newTestEngine(&stubMemory{}, defaultParams())

	d, err := e.Decide(context.Background(), supportBounceBundle(), []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	require.Equal(t, types.ActionBuy, d.Action)
	// medium 档基础 25%，刚过线按半仓算：上限 $25，下限 $12.50。
	assert.GreaterOrEqual(t, d.SizeUSD, 12.5)
	assert.LessOrEqual(t, d.SizeUSD, 25.0)
}

func TestLunarModifierIsBounded(t *testing.T) {
	mem := &stubMemory{edges: map[types.MoonPhase]float64{types.MoonFirstQuarter: 500}}
	e := newTestEngine(mem, defaultParams())

	d, err := e.Decide(context.Background(), supportBounceBundle(), []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	base := 0.65 + 0.10*(0.25-0.22)/0.25 + 0.10*(35-32)/35
	assert.LessOrEqual(t, d.Confidence, base+0.10+1e-9, "lunar modifier is capped at +0.10")
}

func TestSentimentModifierDirectionAware(t *testing.T) {
	greedy := supportBounceBundle()
	greedy.Sentiment = 100
	fearful := supportBounceBundle()
	fearful.Sentiment = 0

	e := newTestEngine(&stubMemory{}, defaultParams())
	dGreedy, err := e.Decide(context.Background(), greedy, []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	dFearful, err := e.Decide(context.Background(), fearful, []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	assert.Greater(t, dGreedy.Confidence, dFearful.Confidence, "greed boosts buys, fear dampens them")
	assert.InDelta(t, 0.20, dGreedy.Confidence-dFearful.Confidence, 1e-9)
}

func TestDegradedSentimentIsNeutral(t *testing.T) {
	degraded := supportBounceBundle()
	degraded.Sentiment = 100
	degraded.Degraded = []string{"sentiment"}
	clean := supportBounceBundle()

	e := newTestEngine(&stubMemory{}, defaultParams())
	dDegraded, err := e.Decide(context.Background(), degraded, []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	dClean, err := e.Decide(context.Background(), clean, []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	assert.InDelta(t, dClean.Confidence, dDegraded.Confidence, 1e-9, "degraded sentiment must not move confidence")
}

func TestExplorationDisabledIsDeterministic(t *testing.T) {
	e := newTestEngine(&stubMemory{}, defaultParams())
	b := supportBounceBundle()
	b.RSI = 25 // support_bounce 与 mean_reversion 同时触发

	first, err := e.Decide(context.Background(), b, []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		d, err := e.Decide(context.Background(), b, []string{"BTC"}, limits(), 100)
		require.NoError(t, err)
		assert.Equal(t, first.Action, d.Action)
		assert.Equal(t, first.Pattern, d.Pattern)
		assert.Equal(t, first.Confidence, d.Confidence)
		assert.Equal(t, first.SizeUSD, d.SizeUSD)
	}
}

func TestExplorationPicksEligibleAlternative(t *testing.T) {
	params := defaultParams()
	params.ExplorationEnabled = true
	e := newTestEngine(&stubMemory{}, params)
	e.WithRand(func() float64 { return 0.0 }, func(n int) int { return 0 })

	// RSI 10 时 support_bounce 与 mean_reversion 都在门槛之上。
	b := supportBounceBundle()
	b.RSI = 10

	deterministic := newTestEngine(&stubMemory{}, defaultParams())
	best, err := deterministic.Decide(context.Background(), b, []string{"BTC"}, limits(), 100)
	require.NoError(t, err)

	d, err := e.Decide(context.Background(), b, []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	assert.NotEqual(t, best.Pattern, d.Pattern, "exploration must pick a non-best eligible candidate")
	assert.GreaterOrEqual(t, d.Confidence, params.MinConfidence)
	assert.Contains(t, strings.Join(d.Reasoning, " "), "exploration")
}

func TestExplorationNoAlternativeIsNoop(t *testing.T) {
	params := defaultParams()
	params.ExplorationEnabled = true
	e := newTestEngine(&stubMemory{}, params)
	e.WithRand(func() float64 { return 0.0 }, func(n int) int { return 0 })

	d, err := e.Decide(context.Background(), supportBounceBundle(), []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	assert.Equal(t, types.PatternSupportBounce, d.Pattern, "single candidate: exploration is a no-op")
	assert.NotContains(t, strings.Join(d.Reasoning, " "), "exploration pick")
}

func TestDecideEmptyInstrumentErrors(t *testing.T) {
	e := newTestEngine(&stubMemory{}, defaultParams())
	_, err := e.Decide(context.Background(), types.SignalBundle{}, []string{"BTC"}, limits(), 100)
	assert.Error(t, err)
}

func TestTieBreakPrefersMoreSamples(t *testing.T) {
	// 两个候选最终置信度相同：mean_reversion 样本更多，应当胜出。
	mem := &stubMemory{stats: map[string]types.PatternStat{
		"support_bounce/BTC": {Pattern: types.PatternSupportBounce, Instrument: "BTC", Trades: 4, Wins: 3},
		"mean_reversion/BTC": {Pattern: types.PatternMeanReversion, Instrument: "BTC", Trades: 12, Wins: 9},
	}}
	e := newTestEngine(mem, defaultParams())
	b := supportBounceBundle()
	b.RSI = 25

	d, err := e.Decide(context.Background(), b, []string{"BTC"}, limits(), 100)
	require.NoError(t, err)
	assert.Equal(t, types.PatternMeanReversion, d.Pattern)
}

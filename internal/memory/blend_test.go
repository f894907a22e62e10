package memory

import (
	"context"
	"testing"

	"rayven/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyOutcome(t *testing.T) {
	assert.Equal(t, types.OutcomeWin, ClassifyOutcome(0.01))
	assert.Equal(t, types.OutcomeLoss, ClassifyOutcome(-0.01))
	assert.Equal(t, types.OutcomeFlat, ClassifyOutcome(0))
	assert.Equal(t, types.OutcomeFlat, ClassifyOutcome(1e-12))
}

func TestBlendBelowTrustUsesPriorExactly(t *testing.T) {
	m := New(&fakeLedger{}, 3, 20)
	stat := types.PatternStat{Trades: 2, Wins: 0}
	assert.Equal(t, 0.65, m.Blend(0.65, stat), "below min trust the win rate must not move the prior")
}

func TestBlendFullTrustUsesWinRate(t *testing.T) {
	m := New(&fakeLedger{}, 3, 20)
	stat := types.PatternStat{Trades: 20, Wins: 16}
	assert.InDelta(t, 0.8, m.Blend(0.5, stat), 1e-9)
}

func TestBlendWeightGrowsWithSamples(t *testing.T) {
	m := New(&fakeLedger{}, 3, 20)
	// 胜率 100%，样本越多越接近 1。
	few := m.Blend(0.5, types.PatternStat{Trades: 4, Wins: 4})
	more := m.Blend(0.5, types.PatternStat{Trades: 10, Wins: 10})
	assert.Greater(t, more, few)
	assert.Greater(t, few, 0.5)
}

func TestBlendMonotonicInWinRate(t *testing.T) {
	m := New(&fakeLedger{}, 3, 20)
	low := m.Blend(0.6, types.PatternStat{Trades: 10, Wins: 3})
	high := m.Blend(0.6, types.PatternStat{Trades: 10, Wins: 8})
	assert.Greater(t, high, low)
}

func TestBlendStaysInUnitInterval(t *testing.T) {
	m := New(&fakeLedger{}, 3, 20)
	for _, stat := range []types.PatternStat{
		{Trades: 0},
		{Trades: 5, Wins: 0},
		{Trades: 50, Wins: 50},
	} {
		v := m.Blend(0.99, stat)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestLunarEdgeNeutralWhenSparse(t *testing.T) {
	ledger := &fakeLedger{}
	m := New(ledger, 3, 20)
	require.NoError(t, m.Start(context.Background()))

	assert.Zero(t, m.LunarEdge(types.MoonFullMoon), "unseen phase is neutral")

	recordSequence(t, m, ledger, []float64{1.0, 2.0})
	assert.Zero(t, m.LunarEdge(types.MoonFullMoon), "below min trust is neutral")
}

func TestLunarEdgeAgainstBaseline(t *testing.T) {
	ledger := &fakeLedger{}
	m := New(ledger, 3, 20)
	require.NoError(t, m.Start(context.Background()))
	ctx := context.Background()

	// 满月三笔 +2%，新月三笔 -2%：满月边际应为正。
	for i := 0; i < 3; i++ {
		trade := closedTrade(0, types.PatternSupportBounce, "BTC", 2.0, types.MoonFullMoon)
		trade.ExitPrice = nil
		require.NoError(t, m.OpenTrade(ctx, &trade))
		require.NoError(t, m.RecordOutcome(ctx, closedTrade(trade.ID, types.PatternSupportBounce, "BTC", 2.0, types.MoonFullMoon)))
	}
	for i := 0; i < 3; i++ {
		trade := closedTrade(0, types.PatternBreakout, "BTC", -2.0, types.MoonNewMoon)
		trade.ExitPrice = nil
		require.NoError(t, m.OpenTrade(ctx, &trade))
		require.NoError(t, m.RecordOutcome(ctx, closedTrade(trade.ID, types.PatternBreakout, "BTC", -2.0, types.MoonNewMoon)))
	}

	full := m.LunarEdge(types.MoonFullMoon)
	newMoon := m.LunarEdge(types.MoonNewMoon)
	assert.InDelta(t, 2.0, full, 1e-9, "full moon avg +2 vs baseline 0")
	assert.InDelta(t, -2.0, newMoon, 1e-9)
}

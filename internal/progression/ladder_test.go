package progression

import (
	"testing"
	"time"

	"rayven/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLadder() Ladder {
	return LadderFromConfig([]config.LevelConfig{
		{Level: 1, MilestoneUSD: 85, Unlocked: []string{"BTC"}, Achievement: "Bitcoin Apprentice"},
		{Level: 2, MilestoneUSD: 120, Unlocked: []string{"BTC", "ETH"}, Achievement: "Dual Asset Trader"},
		{Level: 3, MilestoneUSD: 180, Unlocked: []string{"BTC", "ETH", "SOL"}, Achievement: "Triple Threat"},
	})
}

func TestAdvanceExactlyOneLevelPerEvaluation(t *testing.T) {
	ladder := testLadder()
	state := State{Level: 1, Balance: 80, StartingBalance: 80, HighestBalance: 80}

	// 80 → 200 一步跨过 85 和 120 两道门槛，但只升一级。
	next, ev := Advance(ladder, state, 200, time.Now())
	require.NotNil(t, ev)
	assert.Equal(t, 2, next.Level)
	assert.Equal(t, 2, ev.NewLevel)
	assert.Equal(t, "Dual Asset Trader", ev.Achievement)
	assert.Equal(t, []string{"ETH"}, ev.Unlocked)

	// 下一次评估继续补齐。
	next, ev = Advance(ladder, next, 200, time.Now())
	require.NotNil(t, ev)
	assert.Equal(t, 3, next.Level)
	assert.Equal(t, []string{"SOL"}, ev.Unlocked)
}

func TestAdvanceBelowMilestoneNoChange(t *testing.T) {
	ladder := testLadder()
	state := State{Level: 1, Balance: 80, StartingBalance: 80, HighestBalance: 80}

	next, ev := Advance(ladder, state, 84.99, time.Now())
	assert.Nil(t, ev)
	assert.Equal(t, 1, next.Level)
	assert.InDelta(t, 84.99, next.Balance, 1e-9)
}

func TestAdvanceNeverDemotes(t *testing.T) {
	ladder := testLadder()
	state := State{Level: 2, Balance: 150, StartingBalance: 80, HighestBalance: 150}

	next, ev := Advance(ladder, state, 40, time.Now())
	assert.Nil(t, ev)
	assert.Equal(t, 2, next.Level, "levels are monotonic, drawdown must not demote")
	assert.InDelta(t, 150, next.HighestBalance, 1e-9)
}

func TestAdvanceAtTopLevelStops(t *testing.T) {
	ladder := testLadder()
	state := State{Level: 3, Balance: 500, StartingBalance: 80, HighestBalance: 500}

	next, ev := Advance(ladder, state, 10000, time.Now())
	assert.Nil(t, ev)
	assert.Equal(t, 3, next.Level)
}

func TestAdvanceRecordsHistory(t *testing.T) {
	ladder := testLadder()
	state := State{Level: 1, Balance: 80, StartingBalance: 80, HighestBalance: 80}

	next, _ := Advance(ladder, state, 90, time.Now())
	next, _ = Advance(ladder, next, 130, time.Now())
	require.Len(t, next.History, 2)
	assert.Equal(t, 2, next.History[0].NewLevel)
	assert.Equal(t, 3, next.History[1].NewLevel)
}

func TestLadderAtBounds(t *testing.T) {
	ladder := testLadder()
	_, ok := ladder.At(0)
	assert.False(t, ok)
	_, ok = ladder.At(4)
	assert.False(t, ok)
	lv, ok := ladder.At(1)
	require.True(t, ok)
	assert.Equal(t, 1, lv.Number)
}

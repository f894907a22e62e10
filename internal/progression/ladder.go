package progression

import (
	"time"

	"rayven/internal/config"
	"rayven/internal/types"
)

// Level 天梯中单个等级的不可变定义。
type Level struct {
	Number          int
	MilestoneUSD    float64
	Unlocked        []string
	Achievement     string
	PerTradeCapPct  float64
	DailyLossCapPct float64
	MaxTradesPerDay int
}

// Ladder 等级序列，下标 0 即 Level 1。
type Ladder []Level

// LadderFromConfig 由配置构建天梯（配置已在 config.validate 保证连续递增）。
func LadderFromConfig(levels []config.LevelConfig) Ladder {
	out := make(Ladder, 0, len(levels))
	for _, lv := range levels {
		out = append(out, Level{
			Number:          lv.Level,
			MilestoneUSD:    lv.MilestoneUSD,
			Unlocked:        append([]string(nil), lv.Unlocked...),
			Achievement:     lv.Achievement,
			PerTradeCapPct:  lv.PerTradeCapPct,
			DailyLossCapPct: lv.DailyLossCapPct,
			MaxTradesPerDay: lv.MaxTradesPerDay,
		})
	}
	return out
}

// At 返回给定等级号的定义。
func (l Ladder) At(number int) (Level, bool) {
	if number < 1 || number > len(l) {
		return Level{}, false
	}
	return l[number-1], true
}

// Next 返回下一级；已在顶级时返回 false。
func (l Ladder) Next(number int) (Level, bool) {
	return l.At(number + 1)
}

// State 进阶状态。转移函数是纯函数，状态对象在外部显式传递。
type State struct {
	Level           int
	Balance         float64
	StartingBalance float64
	HighestBalance  float64
	TradesToday     int
	DailyLossUSD    float64
	DayKey          string
	History         []types.LevelUpEvent
}

// Advance 纯转移函数：(state, balance) → (state', 可选升级事件)。
// MilestoneUSD 是从当前等级晋级所需的余额门槛。每次评估最多升一级：
// 余额一笔跨过两道门槛时也只进一级，下一次余额更新再继续判定。不降级。
func Advance(ladder Ladder, s State, balance float64, now time.Time) (State, *types.LevelUpEvent) {
	s.Balance = balance
	if balance > s.HighestBalance {
		s.HighestBalance = balance
	}

	cur, ok := ladder.At(s.Level)
	if !ok {
		return s, nil
	}
	next, ok := ladder.Next(s.Level)
	if !ok || balance < cur.MilestoneUSD {
		return s, nil
	}
	newlyUnlocked := diffUnlocked(next.Unlocked, cur.Unlocked)
	ev := types.LevelUpEvent{
		NewLevel:    next.Number,
		Achievement: next.Achievement,
		Unlocked:    newlyUnlocked,
		Balance:     balance,
		At:          now,
	}
	s.Level = next.Number
	s.History = append(s.History, ev)
	return s, &ev
}

func diffUnlocked(next, cur []string) []string {
	seen := make(map[string]bool, len(cur))
	for _, c := range cur {
		seen[c] = true
	}
	var out []string
	for _, n := range next {
		if !seen[n] {
			out = append(out, n)
		}
	}
	return out
}

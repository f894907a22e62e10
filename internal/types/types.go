package types

import "time"

// Action 交易动作。
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Direction 形态给出的方向倾向。
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Trend 趋势标签。
type Trend string

const (
	TrendUp       Trend = "up"
	TrendDown     Trend = "down"
	TrendSideways Trend = "sideways"
)

// TrendStrength 趋势强度。
type TrendStrength string

const (
	TrendStrengthWeak     TrendStrength = "weak"
	TrendStrengthModerate TrendStrength = "moderate"
	TrendStrengthStrong   TrendStrength = "strong"
)

// Outcome 平仓结果分类。
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeFlat Outcome = "flat"
)

// RiskTier 形态自带的风险档位，决定基础仓位比例。
type RiskTier string

const (
	RiskTierLow    RiskTier = "low"
	RiskTierMedium RiskTier = "medium"
	RiskTierHigh   RiskTier = "high"
)

// SignalBundle 单周期信号快照：技术面、情绪面、月相输入的不可变聚合。
// 每个周期重新构建，产出 Decision 后即丢弃。
type SignalBundle struct {
	Instrument    string
	Price         float64
	RSI           float64
	RangePosition float64 // 0~1，0 表示贴近区间低点
	Trend         Trend
	TrendStrength TrendStrength
	VolumeRatio   float64
	Sentiment     int  // 0~100
	NewsBlock     bool // 红旗新闻：本周期禁止买入
	MoonPhase     MoonPhase
	Illumination  float64 // 0~1

	// Degraded 记录哪些外部信号缺失（对应调整按中性处理）。
	Degraded []string

	CreatedAt time.Time
}

// HasDegraded 判断某一路信号是否缺失。
func (b SignalBundle) HasDegraded(name string) bool {
	for _, d := range b.Degraded {
		if d == name {
			return true
		}
	}
	return false
}

// Candidate 形态库产出的候选信号，仅在单个决策周期内存活。
type Candidate struct {
	Pattern   Pattern
	Direction Direction
	Prior     float64 // 先验置信度 0~1
	Reason    string
	Tier      RiskTier
	Bundle    SignalBundle
}

// Decision 决策引擎每周期的唯一产出。
type Decision struct {
	TraceID    string
	Instrument string
	Action     Action
	Direction  Direction
	SizeUSD    float64
	Confidence float64
	Pattern    Pattern
	Reasoning  []string
	CreatedAt  time.Time
}

// TradeRecord 账本记录：两张统计表均由其推导，写入后不可变。
type TradeRecord struct {
	ID          int64
	Timestamp   time.Time
	Instrument  string
	Pattern     Pattern
	Direction   Direction
	EntryPrice  float64
	ExitPrice   *float64
	ExitTime    *time.Time
	ReturnPct   float64
	Outcome     Outcome
	MoonPhase   MoonPhase
	Confidence  float64
	SizeUSD     float64
}

// Closed 判断该笔交易是否已平仓。
func (t TradeRecord) Closed() bool { return t.ExitPrice != nil }

// PatternStat 按 (形态, 币种) 维护的统计。胜率和均值永远由计数推导，不独立存储。
type PatternStat struct {
	Pattern    Pattern
	Instrument string
	Trades     int
	Wins       int
	SumReturn  float64
	AvgWinPct  float64
	AvgLossPct float64
	BestPct    float64
	WorstPct   float64
}

// WinRate 胜率 0~1。
func (s PatternStat) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

// AvgReturn 平均收益（百分比）。
func (s PatternStat) AvgReturn() float64 {
	if s.Trades == 0 {
		return 0
	}
	return s.SumReturn / float64(s.Trades)
}

// LunarStat 按月相维护的统计。
type LunarStat struct {
	Phase     MoonPhase
	Trades    int
	Wins      int
	SumReturn float64
}

// WinRate 胜率 0~1。
func (s LunarStat) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

// AvgReturn 平均收益（百分比）。
func (s LunarStat) AvgReturn() float64 {
	if s.Trades == 0 {
		return 0
	}
	return s.SumReturn / float64(s.Trades)
}

// RiskLimits 进阶系统下发给决策引擎的风控参数。
type RiskLimits struct {
	PerTradeCapUSD  float64
	DailyLossCapUSD float64
	MaxTradesPerDay int
}

// LevelUpEvent 升级事件。
type LevelUpEvent struct {
	NewLevel    int
	Achievement string
	Unlocked    []string
	Balance     float64
	At          time.Time
}

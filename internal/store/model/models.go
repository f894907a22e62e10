package model

import (
	"gorm.io/datatypes"
)

// TradeRecordModel 账本行：一笔交易从开仓到平仓的完整记录。
// 平仓后整行不再变更，是两张统计表的唯一事实来源。
type TradeRecordModel struct {
	ID         int64    `gorm:"column:id;primaryKey"`
	Timestamp  int64    `gorm:"column:timestamp;index"`
	Instrument string   `gorm:"column:instrument;index"`
	Pattern    string   `gorm:"column:pattern;index"`
	Direction  string   `gorm:"column:direction"`
	EntryPrice float64  `gorm:"column:entry_price"`
	ExitPrice  *float64 `gorm:"column:exit_price"`
	ExitTime   *int64   `gorm:"column:exit_time"`
	ReturnPct  float64  `gorm:"column:return_pct"`
	Outcome    string   `gorm:"column:outcome"`
	MoonPhase  string   `gorm:"column:moon_phase;index"`
	Confidence float64  `gorm:"column:confidence"`
	SizeUSD    float64  `gorm:"column:size_usd"`
}

func (TradeRecordModel) TableName() string { return "trade_records" }

// PatternStatModel 按 (pattern, instrument) 的派生统计缓存。
type PatternStatModel struct {
	ID         int64   `gorm:"column:id;primaryKey"`
	Pattern    string  `gorm:"column:pattern;uniqueIndex:idx_pattern_stat,priority:1"`
	Instrument string  `gorm:"column:instrument;uniqueIndex:idx_pattern_stat,priority:2"`
	Trades     int     `gorm:"column:trades"`
	Wins       int     `gorm:"column:wins"`
	SumReturn  float64 `gorm:"column:sum_return"`
	AvgWinPct  float64 `gorm:"column:avg_win_pct"`
	AvgLossPct float64 `gorm:"column:avg_loss_pct"`
	BestPct    float64 `gorm:"column:best_pct"`
	WorstPct   float64 `gorm:"column:worst_pct"`
	UpdatedAt  int64   `gorm:"column:updated_at"`
}

func (PatternStatModel) TableName() string { return "pattern_stats" }

// LunarStatModel 按月相的派生统计缓存。
type LunarStatModel struct {
	ID        int64   `gorm:"column:id;primaryKey"`
	Phase     string  `gorm:"column:phase;uniqueIndex"`
	Trades    int     `gorm:"column:trades"`
	Wins      int     `gorm:"column:wins"`
	SumReturn float64 `gorm:"column:sum_return"`
	UpdatedAt int64   `gorm:"column:updated_at"`
}

func (LunarStatModel) TableName() string { return "lunar_stats" }

// ProgressionModel 进阶状态单例行（id 固定为 1）。
type ProgressionModel struct {
	ID              int64          `gorm:"column:id;primaryKey"`
	Level           int            `gorm:"column:level"`
	Balance         float64        `gorm:"column:balance"`
	StartingBalance float64        `gorm:"column:starting_balance"`
	HighestBalance  float64        `gorm:"column:highest_balance"`
	Unlocked        datatypes.JSON `gorm:"column:unlocked;type:TEXT"`
	History         datatypes.JSON `gorm:"column:history;type:TEXT"`
	TradesToday     int            `gorm:"column:trades_today"`
	DailyLossUSD    float64        `gorm:"column:daily_loss_usd"`
	DayKey          string         `gorm:"column:day_key"` // YYYY-MM-DD，跨日重置频率/亏损计数
	UpdatedAt       int64          `gorm:"column:updated_at"`
}

func (ProgressionModel) TableName() string { return "progression_state" }

// DecisionLogModel 决策事件日志，供观测接口查询。
type DecisionLogModel struct {
	ID         int64          `gorm:"column:id;primaryKey"`
	TraceID    string         `gorm:"column:trace_id;index"`
	Instrument string         `gorm:"column:instrument;index"`
	Action     string         `gorm:"column:action"`
	Direction  string         `gorm:"column:direction"`
	SizeUSD    float64        `gorm:"column:size_usd"`
	Confidence float64        `gorm:"column:confidence"`
	Pattern    string         `gorm:"column:pattern"`
	Reasoning  datatypes.JSON `gorm:"column:reasoning;type:TEXT"`
	CreatedAt  int64          `gorm:"column:created_at;index"`
}

func (DecisionLogModel) TableName() string { return "decision_logs" }

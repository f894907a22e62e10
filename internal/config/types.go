package config

import "time"

// Config 是 Rayven 的主配置载体。
type Config struct {
	App         AppConfig         `toml:"app"`
	Market      MarketConfig      `toml:"market"`
	Trading     TradingConfig     `toml:"trading"`
	Progression ProgressionConfig `toml:"progression"`
	Pattern     PatternConfig     `toml:"pattern"`
	Intel       IntelConfig       `toml:"intel"`
	Lunar       LunarConfig       `toml:"lunar"`
	Store       StoreConfig       `toml:"store"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// MarketConfig 描述行情来源（现货 REST）。
type MarketConfig struct {
	Name           string `toml:"name"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	CandleInterval string `toml:"candle_interval"`
	CandleLimit    int    `toml:"candle_limit"`
	QuoteCurrency  string `toml:"quote_currency"` // 组合交易对用，如 BTC+USDT
}

// TradingConfig 决策引擎的产品参数。
// 这些阈值是产品参数而非架构不变量，全部可配。
type TradingConfig struct {
	CycleIntervalSeconds int     `toml:"cycle_interval_seconds"`
	MinConfidence        float64 `toml:"min_confidence"`      // 置信度下限，低于则 hold
	ExplorationRate      float64 `toml:"exploration_rate"`    // 探索概率 0~1
	ExplorationEnabled   bool    `toml:"exploration_enabled"` // 关闭后决策完全确定
	MinTrustTrades       int     `toml:"min_trust_trades"`    // 低于该样本数时经验胜率不参与混合
	FullTrustTrades      int     `toml:"full_trust_trades"`   // 达到该样本数后经验胜率权重为 1
	LunarModifierMax     float64 `toml:"lunar_modifier_max"`  // 月相修正的绝对上限
	SentimentModifierMax float64 `toml:"sentiment_modifier_max"`
	TierLowPct           float64 `toml:"tier_low_pct"`    // 低风险档基础仓位比例
	TierMediumPct        float64 `toml:"tier_medium_pct"` // 中风险档
	TierHighPct          float64 `toml:"tier_high_pct"`   // 高风险档
	StartingBalanceUSD   float64 `toml:"starting_balance_usd"`
	TakeProfitPct        float64 `toml:"take_profit_pct"` // 止盈收益率（百分比，正数）
	StopLossPct          float64 `toml:"stop_loss_pct"`   // 止损收益率（百分比，正数）
	MaxHoldHours         int     `toml:"max_hold_hours"`  // 超时强制平仓
}

// CycleInterval 返回决策周期。
func (t TradingConfig) CycleInterval() time.Duration {
	return time.Duration(t.CycleIntervalSeconds) * time.Second
}

// ProgressionConfig 进阶天梯定义。
type ProgressionConfig struct {
	Levels []LevelConfig `toml:"levels"`
}

// LevelConfig 单个等级的静态配置。
type LevelConfig struct {
	Level           int      `toml:"level"`
	MilestoneUSD    float64  `toml:"milestone_usd"`
	Unlocked        []string `toml:"unlocked"`
	Achievement     string   `toml:"achievement"`
	PerTradeCapPct  float64  `toml:"per_trade_cap_pct"`  // 单笔仓位占余额上限
	DailyLossCapPct float64  `toml:"daily_loss_cap_pct"` // 日亏损上限
	MaxTradesPerDay int      `toml:"max_trades_per_day"`
}

// PatternConfig 形态库配置。
type PatternConfig struct {
	TemplatesPath string `toml:"templates_path"` // 先验/风险档模板文件，支持热更
}

// IntelConfig 市场情报来源。
type IntelConfig struct {
	FearGreedURL    string   `toml:"fear_greed_url"`
	NewsURL         string   `toml:"news_url"` // 为空则跳过新闻扫描
	TimeoutSeconds  int      `toml:"timeout_seconds"`
	RedFlagKeywords []string `toml:"red_flag_keywords"`
}

// LunarConfig 月相计算参数。
type LunarConfig struct {
	// ReferenceFullMoon 参考满月时刻（RFC3339），缺省 2025-01-13T22:27:00Z。
	ReferenceFullMoon string `toml:"reference_full_moon"`
}

// StoreConfig 持久化配置。
type StoreConfig struct {
	Path string `toml:"path"` // sqlite 文件路径
}

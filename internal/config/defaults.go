package config

import "strings"

// 默认值常量
const (
	defaultAppEnv            = "dev"
	defaultAppLogLevel       = "info"
	defaultAppHTTPAddr       = ":9992"
	defaultAppLogPath        = "data/logs/rayven-live.log"
	defaultMarketName        = "binance"
	defaultMarketTimeout     = 10
	defaultMarketInterval    = "1h"
	defaultMarketCandles     = 120
	defaultMarketQuote       = "USDT"
	defaultCycleSeconds      = 60
	defaultMinConfidence     = 0.65
	defaultExplorationRate   = 0.15
	defaultMinTrustTrades    = 3
	defaultFullTrustTrades   = 20
	defaultLunarModifierMax  = 0.10
	defaultSentModifierMax   = 0.10
	defaultTierLowPct        = 0.30
	defaultTierMediumPct     = 0.25
	defaultTierHighPct       = 0.15
	defaultStartingBalance   = 100.0
	defaultTakeProfitPct     = 5.0
	defaultStopLossPct       = 3.0
	defaultMaxHoldHours      = 24
	defaultPatternTemplates  = "configs/patterns.yaml"
	defaultFearGreedURL      = "https://api.alternative.me/fng/?limit=1"
	defaultIntelTimeout      = 5
	defaultLunarReference    = "2025-01-13T22:27:00Z"
	defaultStorePath         = "data/db/rayven.db"
	defaultPerTradeCapPct    = 0.30
	defaultDailyLossCapPct   = 0.10
	defaultMaxTradesPerDay   = 12
)

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Progression.applyDefaults(keys)
	c.Pattern.applyDefaults(keys)
	c.Intel.applyDefaults(keys)
	c.Lunar.applyDefaults(keys)
	c.Store.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.name", &m.Name, defaultMarketName),
		stringFieldDefault("market.candle_interval", &m.CandleInterval, defaultMarketInterval),
		stringFieldDefault("market.quote_currency", &m.QuoteCurrency, defaultMarketQuote),
		fieldDefault{
			key:   "market.timeout_seconds",
			need:  func() bool { return m.TimeoutSeconds <= 0 },
			apply: func() { m.TimeoutSeconds = defaultMarketTimeout },
		},
		fieldDefault{
			key:   "market.candle_limit",
			need:  func() bool { return m.CandleLimit <= 0 },
			apply: func() { m.CandleLimit = defaultMarketCandles },
		},
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("trading.exploration_enabled", &t.ExplorationEnabled, true),
		fieldDefault{
			key:   "trading.cycle_interval_seconds",
			need:  func() bool { return t.CycleIntervalSeconds <= 0 },
			apply: func() { t.CycleIntervalSeconds = defaultCycleSeconds },
		},
		fieldDefault{
			key:   "trading.min_confidence",
			need:  func() bool { return t.MinConfidence <= 0 || t.MinConfidence >= 1 },
			apply: func() { t.MinConfidence = defaultMinConfidence },
		},
		fieldDefault{
			key:   "trading.exploration_rate",
			need:  func() bool { return t.ExplorationRate < 0 || t.ExplorationRate >= 1 },
			apply: func() { t.ExplorationRate = defaultExplorationRate },
		},
		fieldDefault{
			key:   "trading.min_trust_trades",
			need:  func() bool { return t.MinTrustTrades <= 0 },
			apply: func() { t.MinTrustTrades = defaultMinTrustTrades },
		},
		fieldDefault{
			key:   "trading.full_trust_trades",
			need:  func() bool { return t.FullTrustTrades <= 0 },
			apply: func() { t.FullTrustTrades = defaultFullTrustTrades },
		},
		fieldDefault{
			key:   "trading.lunar_modifier_max",
			need:  func() bool { return t.LunarModifierMax <= 0 },
			apply: func() { t.LunarModifierMax = defaultLunarModifierMax },
		},
		fieldDefault{
			key:   "trading.sentiment_modifier_max",
			need:  func() bool { return t.SentimentModifierMax <= 0 },
			apply: func() { t.SentimentModifierMax = defaultSentModifierMax },
		},
		fieldDefault{
			key:   "trading.tier_low_pct",
			need:  func() bool { return t.TierLowPct <= 0 || t.TierLowPct > 1 },
			apply: func() { t.TierLowPct = defaultTierLowPct },
		},
		fieldDefault{
			key:   "trading.tier_medium_pct",
			need:  func() bool { return t.TierMediumPct <= 0 || t.TierMediumPct > 1 },
			apply: func() { t.TierMediumPct = defaultTierMediumPct },
		},
		fieldDefault{
			key:   "trading.tier_high_pct",
			need:  func() bool { return t.TierHighPct <= 0 || t.TierHighPct > 1 },
			apply: func() { t.TierHighPct = defaultTierHighPct },
		},
		fieldDefault{
			key:   "trading.starting_balance_usd",
			need:  func() bool { return t.StartingBalanceUSD <= 0 },
			apply: func() { t.StartingBalanceUSD = defaultStartingBalance },
		},
		fieldDefault{
			key:   "trading.take_profit_pct",
			need:  func() bool { return t.TakeProfitPct <= 0 },
			apply: func() { t.TakeProfitPct = defaultTakeProfitPct },
		},
		fieldDefault{
			key:   "trading.stop_loss_pct",
			need:  func() bool { return t.StopLossPct <= 0 },
			apply: func() { t.StopLossPct = defaultStopLossPct },
		},
		fieldDefault{
			key:   "trading.max_hold_hours",
			need:  func() bool { return t.MaxHoldHours <= 0 },
			apply: func() { t.MaxHoldHours = defaultMaxHoldHours },
		},
	)
}

func (p *ProgressionConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	if len(p.Levels) == 0 {
		p.Levels = DefaultLadder()
	}
	for i := range p.Levels {
		lv := &p.Levels[i]
		if lv.PerTradeCapPct <= 0 || lv.PerTradeCapPct > 1 {
			lv.PerTradeCapPct = defaultPerTradeCapPct
		}
		if lv.DailyLossCapPct <= 0 || lv.DailyLossCapPct > 1 {
			lv.DailyLossCapPct = defaultDailyLossCapPct
		}
		if lv.MaxTradesPerDay <= 0 {
			lv.MaxTradesPerDay = defaultMaxTradesPerDay
		}
	}
}

func (p *PatternConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("pattern.templates_path", &p.TemplatesPath, defaultPatternTemplates),
	)
}

func (i *IntelConfig) applyDefaults(keys keySet) {
	if i == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("intel.fear_greed_url", &i.FearGreedURL, defaultFearGreedURL),
		fieldDefault{
			key:   "intel.timeout_seconds",
			need:  func() bool { return i.TimeoutSeconds <= 0 },
			apply: func() { i.TimeoutSeconds = defaultIntelTimeout },
		},
	)
	if len(i.RedFlagKeywords) == 0 {
		i.RedFlagKeywords = []string{"hack", "exploit", "ban", "lawsuit", "insolvency"}
	}
}

func (l *LunarConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("lunar.reference_full_moon", &l.ReferenceFullMoon, defaultLunarReference),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("store.path", &s.Path, defaultStorePath),
	)
}

// DefaultLadder 内置八级天梯，来自最初的资金路线图。
func DefaultLadder() []LevelConfig {
	return []LevelConfig{
		{Level: 1, MilestoneUSD: 85, Unlocked: []string{"BTC"}, Achievement: "Bitcoin Apprentice"},
		{Level: 2, MilestoneUSD: 120, Unlocked: []string{"BTC", "ETH"}, Achievement: "Dual Asset Trader"},
		{Level: 3, MilestoneUSD: 180, Unlocked: []string{"BTC", "ETH", "SOL"}, Achievement: "Triple Threat"},
		{Level: 4, MilestoneUSD: 270, Unlocked: []string{"BTC", "ETH", "SOL", "XRP", "AVAX"}, Achievement: "Multi-Asset Master"},
		{Level: 5, MilestoneUSD: 400, Unlocked: []string{"BTC", "ETH", "SOL", "XRP", "AVAX", "LINK", "DOT", "MATIC"}, Achievement: "Elite Trader"},
		{Level: 6, MilestoneUSD: 600, Unlocked: []string{"BTC", "ETH", "SOL", "XRP", "AVAX", "LINK", "DOT", "MATIC", "ADA", "ATOM", "UNI", "AAVE"}, Achievement: "Portfolio King"},
		{Level: 7, MilestoneUSD: 1000, Unlocked: []string{"BTC", "ETH", "SOL", "XRP", "AVAX", "LINK", "DOT", "MATIC", "ADA", "ATOM", "UNI", "AAVE", "LTC", "BCH", "ALGO", "VET"}, Achievement: "Crypto Baron"},
		{Level: 8, MilestoneUSD: 2000, Unlocked: []string{"BTC", "ETH", "SOL", "XRP", "AVAX", "LINK", "DOT", "MATIC", "ADA", "ATOM", "UNI", "AAVE", "LTC", "BCH", "ALGO", "VET", "FIL", "SAND", "MANA", "GRT"}, Achievement: "Wealth Builder"},
	}
}

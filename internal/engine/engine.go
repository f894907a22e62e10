package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"rayven/internal/logger"
	"rayven/internal/pattern"
	"rayven/internal/types"

	"github.com/google/uuid"
)

// AdaptiveMemory 决策引擎依赖的记忆读取面（由 internal/memory 实现）。
type AdaptiveMemory interface {
	LookupPattern(pattern types.Pattern, instrument string) types.PatternStat
	Blend(prior float64, stat types.PatternStat) float64
	LunarEdge(phase types.MoonPhase) float64
	MinTrustTrades() int
}

// Params 决策引擎的产品参数，全部来自配置。
type Params struct {
	MinConfidence        float64 // 置信度下限，低于即 hold
	ExplorationRate      float64 // 探索概率 0~1
	ExplorationEnabled   bool
	LunarModifierMax     float64 // 月相调整的绝对值上界
	SentimentModifierMax float64 // 情绪调整的绝对值上界
	TierLowPct           float64 // 低风险档基础仓位比例
	TierMediumPct        float64
	TierHighPct          float64
}

// Engine 决策引擎：每周期对一个币种产出且仅产出一个 Decision。
// 无内部状态，全部输入显式传入，同样的输入（含随机源）产出同样的决策。
type Engine struct {
	mem    AdaptiveMemory
	lib    *pattern.Library
	params Params

	randFn  func() float64 // 探索掷骰
	pickFn  func(n int) int
	nowFn   func() time.Time
	traceFn func() string
}

// New 构造引擎。随机源可通过 WithRand 注入，测试用固定序列。
func New(mem AdaptiveMemory, lib *pattern.Library, params Params) *Engine {
	return &Engine{
		mem:     mem,
		lib:     lib,
		params:  params,
		randFn:  rand.Float64,
		pickFn:  rand.Intn,
		nowFn:   time.Now,
		traceFn: func() string { return uuid.NewString() },
	}
}

// WithRand 注入确定性随机源（测试用）。
func (e *Engine) WithRand(randFn func() float64, pickFn func(n int) int) *Engine {
	e.randFn = randFn
	e.pickFn = pickFn
	return e
}

// scored 单个候选经过融合与调整后的评分。
type scored struct {
	cand    types.Candidate
	blended float64
	final   float64
	trades  int
	notes   []string
}

// Decide 单周期决策：检测 → 融合 → 调整 → 定冲突 → 探索 → 门槛 → 定仓位。
// 返回的 Decision 永远有效；hold 是合法产出而非错误。
func (e *Engine) Decide(ctx context.Context, bundle types.SignalBundle, allowed []string, limits types.RiskLimits, balanceUSD float64) (types.Decision, error) {
	if bundle.Instrument == "" {
		return types.Decision{}, fmt.Errorf("decide: empty instrument")
	}
	d := types.Decision{
		TraceID:    e.traceFn(),
		Instrument: bundle.Instrument,
		Action:     types.ActionHold,
		CreatedAt:  e.nowFn(),
	}

	// 未解锁的币种直接 hold，检测器根本不跑。
	if !contains(allowed, bundle.Instrument) {
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("%s locked at current level", bundle.Instrument))
		return d, nil
	}

	cands := e.lib.Detect(bundle)
	if len(cands) == 0 {
		d.Reasoning = append(d.Reasoning, "no tradeable pattern detected")
		return d, nil
	}

	// 红旗新闻硬约束：本周期禁止一切买入，卖出候选不受影响。
	if bundle.NewsBlock {
		kept := cands[:0]
		for _, c := range cands {
			if c.Direction != types.DirectionBuy {
				kept = append(kept, c)
			}
		}
		cands = kept
		d.Reasoning = append(d.Reasoning, "red-flag news: buy candidates suppressed")
		if len(cands) == 0 {
			return d, nil
		}
	}

	pool := make([]scored, 0, len(cands))
	for _, c := range cands {
		pool = append(pool, e.score(c))
	}

	// 冲突消解：最终置信度最高者胜，平手时信样本更多的形态。
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].final != pool[j].final {
			return pool[i].final > pool[j].final
		}
		return pool[i].trades > pool[j].trades
	})
	chosen := pool[0]

	// 探索：以固定概率改选另一个过线候选，让冷门形态有机会积累样本。
	// 没有可替换的过线候选时不触发。
	if e.params.ExplorationEnabled && len(pool) > 1 && e.randFn() < e.params.ExplorationRate {
		var alts []scored
		for _, s := range pool[1:] {
			if s.final >= e.params.MinConfidence {
				alts = append(alts, s)
			}
		}
		if len(alts) > 0 {
			chosen = alts[e.pickFn(len(alts))]
			chosen.notes = append(chosen.notes, fmt.Sprintf("exploration pick (rate %.0f%%)", e.params.ExplorationRate*100))
		}
	}

	d.Pattern = chosen.cand.Pattern
	d.Direction = chosen.cand.Direction
	d.Confidence = chosen.final
	d.Reasoning = append(d.Reasoning, chosen.cand.Reason)
	d.Reasoning = append(d.Reasoning, chosen.notes...)

	if chosen.final < e.params.MinConfidence {
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("confidence %.2f below floor %.2f, holding", chosen.final, e.params.MinConfidence))
		return d, nil
	}

	size, sizeNotes := e.positionSize(chosen.cand.Tier, chosen.final, balanceUSD, limits)
	if size <= 0 {
		d.Reasoning = append(d.Reasoning, "position size rounded to zero, holding")
		return d, nil
	}
	d.Action = types.Action(chosen.cand.Direction)
	d.SizeUSD = size
	d.Reasoning = append(d.Reasoning, sizeNotes...)
	logger.Debugf("engine: %s %s %s conf=%.2f size=%.2f", d.Instrument, d.Action, d.Pattern, d.Confidence, d.SizeUSD)
	return d, nil
}

// score 跑完单候选的置信度管线：经验融合 + 有界调整序列。
func (e *Engine) score(c types.Candidate) scored {
	stat := e.mem.LookupPattern(c.Pattern, c.Bundle.Instrument)
	blended := e.mem.Blend(c.Prior, stat)
	s := scored{cand: c, blended: blended, final: blended, trades: stat.Trades}
	if stat.Trades >= e.mem.MinTrustTrades() {
		s.notes = append(s.notes, fmt.Sprintf("history: %d trades, %.0f%% win rate", stat.Trades, stat.WinRate()*100))
	} else {
		s.notes = append(s.notes, fmt.Sprintf("insufficient history (%d trades), using prior", stat.Trades))
	}
	for _, m := range e.modifiers() {
		delta, note := m.apply(c)
		if delta == 0 {
			continue
		}
		delta = clampAbs(delta, m.max)
		s.final = clamp01(s.final + delta)
		if note != "" {
			s.notes = append(s.notes, note)
		}
	}
	return s
}

// modifier 有界置信度调整：每个调整声明自己的绝对值上界，
// 任何单一信号都不可能把置信度推出可解释范围。
type modifier struct {
	name  string
	max   float64
	apply func(c types.Candidate) (float64, string)
}

func (e *Engine) modifiers() []modifier {
	return []modifier{
		{
			name: "lunar",
			max:  e.params.LunarModifierMax,
			apply: func(c types.Candidate) (float64, string) {
				if c.Bundle.HasDegraded("lunar") {
					return 0, ""
				}
				edge := e.mem.LunarEdge(c.Bundle.MoonPhase)
				if edge == 0 {
					return 0, ""
				}
				delta := clampAbs(edge/100, e.params.LunarModifierMax)
				return delta, fmt.Sprintf("lunar edge during %s: %+.2f%%", c.Bundle.MoonPhase, edge)
			},
		},
		{
			name: "sentiment",
			max:  e.params.SentimentModifierMax,
			apply: func(c types.Candidate) (float64, string) {
				if c.Bundle.HasDegraded("sentiment") {
					return 0, ""
				}
				// 情绪偏离中性的程度按方向折算：贪婪利多、恐惧利空。
				lean := float64(c.Bundle.Sentiment-50) / 50
				if c.Direction == types.DirectionSell {
					lean = -lean
				}
				delta := lean * e.params.SentimentModifierMax
				if delta == 0 {
					return 0, ""
				}
				return delta, fmt.Sprintf("market sentiment %d/100 (%+.2f)", c.Bundle.Sentiment, delta)
			},
		},
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampAbs(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}

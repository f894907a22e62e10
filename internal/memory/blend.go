package memory

import (
	"math"

	"rayven/internal/types"
)

// ClassifyOutcome 由实际收益划分结果；|return| 小于 eps 视为打平。
func ClassifyOutcome(returnPct float64) types.Outcome {
	const eps = 1e-9
	switch {
	case returnPct > eps:
		return types.OutcomeWin
	case returnPct < -eps:
		return types.OutcomeLoss
	default:
		return types.OutcomeFlat
	}
}

// Blend 把先验置信度向经验胜率收缩。
// 样本数低于最小信任阈值时完全信先验；超过后权重随样本线性上升，
// 在 fullTrust 处达到 1。这是整个系统的"强化"机制：小样本不过度
// 反应，被验证的形态随时间占据主导。
func (m *Memory) Blend(prior float64, stat types.PatternStat) float64 {
	if stat.Trades < m.minTrust {
		return clamp01(prior)
	}
	w := math.Min(1, float64(stat.Trades)/float64(m.fullTrust))
	return clamp01(prior*(1-w) + stat.WinRate()*w)
}

// LunarEdge 月相收益边际 = 该月相平均收益 − 全体基线平均收益。
// 样本不足最小信任阈值时按中性（0）处理。
func (m *Memory) LunarEdge(phase types.MoonPhase) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.lunar[phase]
	if !ok || s.Trades < m.minTrust {
		return 0
	}
	var totalTrades int
	var totalReturn float64
	for _, l := range m.lunar {
		totalTrades += l.Trades
		totalReturn += l.SumReturn
	}
	if totalTrades == 0 {
		return 0
	}
	baseline := totalReturn / float64(totalTrades)
	return s.AvgReturn() - baseline
}

// MinTrustTrades 暴露最小信任阈值，供决策引擎在推理文案中引用。
func (m *Memory) MinTrustTrades() int { return m.minTrust }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

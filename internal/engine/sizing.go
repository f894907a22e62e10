package engine

import (
	"fmt"

	"rayven/internal/types"

	"github.com/shopspring/decimal"
)

// positionSize 按风险档基础比例 × 置信度缩放算出美元仓位，
// 再被单笔上限封顶。金额用 decimal 计算，返回前收敛到分。
func (e *Engine) positionSize(tier types.RiskTier, confidence, balanceUSD float64, limits types.RiskLimits) (float64, []string) {
	pct := e.tierPct(tier)
	if pct <= 0 || balanceUSD <= 0 {
		return 0, nil
	}
	// 刚过线的信号只给半仓，置信度拉满才吃满基础比例。
	scale := 0.5
	if e.params.MinConfidence < 1 {
		scale += 0.5 * (confidence - e.params.MinConfidence) / (1 - e.params.MinConfidence)
	}
	size := decimal.NewFromFloat(balanceUSD).
		Mul(decimal.NewFromFloat(pct)).
		Mul(decimal.NewFromFloat(scale)).
		Round(2)

	notes := []string{fmt.Sprintf("%s tier base %.0f%% of $%.2f, confidence-scaled to $%s", tier, pct*100, balanceUSD, size)}
	cap := decimal.NewFromFloat(limits.PerTradeCapUSD).Round(2)
	if limits.PerTradeCapUSD > 0 && size.GreaterThan(cap) {
		size = cap
		notes = append(notes, fmt.Sprintf("clamped to per-trade cap $%s", cap))
	}
	v, _ := size.Float64()
	return v, notes
}

func (e *Engine) tierPct(tier types.RiskTier) float64 {
	switch tier {
	case types.RiskTierLow:
		return e.params.TierLowPct
	case types.RiskTierMedium:
		return e.params.TierMediumPct
	case types.RiskTierHigh:
		return e.params.TierHighPct
	default:
		return 0
	}
}

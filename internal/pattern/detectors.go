package pattern

import (
	"fmt"

	"rayven/internal/types"
)

// 检测阈值。置信度 = 先验 + 按阈值超越程度给的确定性加成，裁剪到 [0,1]。

const (
	supportZone    = 0.25
	resistanceZone = 0.75
	rsiOversold    = 35.0
	rsiOverbought  = 65.0
	rsiExtremeLow  = 30.0
	rsiExtremeHigh = 70.0
	breakoutZone   = 0.90
	breakoutVolume = 1.5
)

func detectSupportBounce(b types.SignalBundle, tpl Template) []types.Candidate {
	if b.RangePosition > supportZone || b.RSI >= rsiOversold {
		return nil
	}
	// 强势下跌中不接飞刀。
	if b.Trend == types.TrendDown && b.TrendStrength == types.TrendStrengthStrong {
		return nil
	}
	conf := tpl.Prior +
		0.10*(supportZone-b.RangePosition)/supportZone +
		0.10*(rsiOversold-b.RSI)/rsiOversold
	return []types.Candidate{{
		Direction: types.DirectionBuy,
		Prior:     conf,
		Reason:    fmt.Sprintf("near support (%.0f%% of range) + RSI oversold (%.0f)", b.RangePosition*100, b.RSI),
	}}
}

func detectResistanceRejection(b types.SignalBundle, tpl Template) []types.Candidate {
	if b.RangePosition < resistanceZone || b.RSI <= rsiOverbought {
		return nil
	}
	if b.Trend == types.TrendUp && b.TrendStrength == types.TrendStrengthStrong {
		return nil
	}
	conf := tpl.Prior +
		0.10*(b.RangePosition-resistanceZone)/(1-resistanceZone) +
		0.10*(b.RSI-rsiOverbought)/(100-rsiOverbought)
	return []types.Candidate{{
		Direction: types.DirectionSell,
		Prior:     conf,
		Reason:    fmt.Sprintf("near resistance (%.0f%% of range) + RSI overbought (%.0f)", b.RangePosition*100, b.RSI),
	}}
}

func detectMeanReversion(b types.SignalBundle, tpl Template) []types.Candidate {
	if b.RSI < rsiExtremeLow {
		conf := tpl.Prior + 0.10*(rsiExtremeLow-b.RSI)/rsiExtremeLow
		return []types.Candidate{{
			Direction: types.DirectionBuy,
			Prior:     conf,
			Reason:    fmt.Sprintf("RSI oversold (%.0f), likely to bounce", b.RSI),
		}}
	}
	if b.RSI > rsiExtremeHigh {
		conf := tpl.Prior + 0.10*(b.RSI-rsiExtremeHigh)/(100-rsiExtremeHigh)
		return []types.Candidate{{
			Direction: types.DirectionSell,
			Prior:     conf,
			Reason:    fmt.Sprintf("RSI overbought (%.0f), likely to pull back", b.RSI),
		}}
	}
	return nil
}

func detectTrendFollow(b types.SignalBundle, tpl Template) []types.Candidate {
	if b.Trend != types.TrendUp || b.TrendStrength == types.TrendStrengthWeak {
		return nil
	}
	// 只在区间中段顺势，追高贴顶交给 breakout。
	if b.RangePosition <= 0.30 || b.RangePosition >= 0.70 {
		return nil
	}
	conf := tpl.Prior
	if b.TrendStrength == types.TrendStrengthStrong {
		conf += 0.05
	}
	return []types.Candidate{{
		Direction: types.DirectionBuy,
		Prior:     conf,
		Reason:    fmt.Sprintf("uptrend in progress (%s), follow momentum", b.TrendStrength),
	}}
}

func detectBreakout(b types.SignalBundle, tpl Template) []types.Candidate {
	if b.RangePosition < breakoutZone || b.VolumeRatio < breakoutVolume || b.Trend != types.TrendUp {
		return nil
	}
	conf := tpl.Prior + 0.10*(b.VolumeRatio-breakoutVolume)/breakoutVolume
	return []types.Candidate{{
		Direction: types.DirectionBuy,
		Prior:     conf,
		Reason:    fmt.Sprintf("range breakout on %.1fx volume", b.VolumeRatio),
	}}
}

// detectRSIDivergence 用趋势与 RSI 的背离做代理：价格结构仍多头而 RSI
// 已超卖视为多头背离，反之为空头背离。
func detectRSIDivergence(b types.SignalBundle, tpl Template) []types.Candidate {
	if b.RSI < rsiExtremeLow && b.Trend == types.TrendUp {
		return []types.Candidate{{
			Direction: types.DirectionBuy,
			Prior:     tpl.Prior + 0.05,
			Reason:    fmt.Sprintf("bullish divergence: RSI %.0f vs intact uptrend", b.RSI),
		}}
	}
	if b.RSI > rsiExtremeHigh && b.Trend == types.TrendDown {
		return []types.Candidate{{
			Direction: types.DirectionSell,
			Prior:     tpl.Prior + 0.05,
			Reason:    fmt.Sprintf("bearish divergence: RSI %.0f vs intact downtrend", b.RSI),
		}}
	}
	return nil
}

package technicals

import (
	"fmt"
	"math"

	"rayven/internal/market"
	"rayven/internal/types"

	"github.com/markcheno/go-talib"
)

const (
	rsiPeriod    = 14
	emaFast      = 9
	emaSlow      = 21
	volumeWindow = 20
	minCandles   = emaSlow + 1
)

// Snapshot 一个币种当前周期的技术面快照。
type Snapshot struct {
	Price         float64
	RSI           float64
	Support       float64
	Resistance    float64
	RangePosition float64 // 0 贴支撑，1 贴阻力
	Trend         types.Trend
	TrendStrength types.TrendStrength
	VolumeRatio   float64 // 最新量 / 近期均量
}

// Compute 从已收盘 K 线算出快照。K 线须按时间升序。
func Compute(candles []market.Candle) (Snapshot, error) {
	if len(candles) < minCandles {
		return Snapshot{}, fmt.Errorf("technicals: need at least %d candles, got %d", minCandles, len(candles))
	}
	closes := market.Closes(candles)
	price := closes[len(closes)-1]

	rsiSeries := talib.Rsi(closes, rsiPeriod)
	rsi := lastNonZero(rsiSeries)

	support, resistance := rangeBounds(candles)
	rangePos := 0.5
	if resistance > support {
		rangePos = clamp01((price - support) / (resistance - support))
	}

	fast := lastNonZero(talib.Ema(closes, emaFast))
	slow := lastNonZero(talib.Ema(closes, emaSlow))
	trend, strength := classifyTrend(fast, slow)

	return Snapshot{
		Price:         price,
		RSI:           rsi,
		Support:       support,
		Resistance:    resistance,
		RangePosition: rangePos,
		Trend:         trend,
		TrendStrength: strength,
		VolumeRatio:   volumeRatio(candles),
	}, nil
}

// rangeBounds 近期区间的高低点（不含最新一根，避免自指）。
func rangeBounds(candles []market.Candle) (support, resistance float64) {
	window := candles
	if len(window) > 1 {
		window = window[:len(window)-1]
	}
	support = math.MaxFloat64
	for _, c := range window {
		if c.Low < support {
			support = c.Low
		}
		if c.High > resistance {
			resistance = c.High
		}
	}
	return support, resistance
}

// classifyTrend 快慢 EMA 的相对偏离定趋势与强度。
func classifyTrend(fast, slow float64) (types.Trend, types.TrendStrength) {
	if fast <= 0 || slow <= 0 {
		return types.TrendSideways, types.TrendStrengthWeak
	}
	gap := (fast - slow) / slow
	abs := math.Abs(gap)
	var strength types.TrendStrength
	switch {
	case abs >= 0.02:
		strength = types.TrendStrengthStrong
	case abs >= 0.005:
		strength = types.TrendStrengthModerate
	default:
		strength = types.TrendStrengthWeak
	}
	switch {
	case gap > 0.002:
		return types.TrendUp, strength
	case gap < -0.002:
		return types.TrendDown, strength
	default:
		return types.TrendSideways, types.TrendStrengthWeak
	}
}

// volumeRatio 最新量相对近 volumeWindow 根均量的倍数。
func volumeRatio(candles []market.Candle) float64 {
	vols := market.Volumes(candles)
	latest := vols[len(vols)-1]
	start := len(vols) - 1 - volumeWindow
	if start < 0 {
		start = 0
	}
	window := vols[start : len(vols)-1]
	if len(window) == 0 {
		return 1
	}
	var sum float64
	for _, v := range window {
		sum += v
	}
	avg := sum / float64(len(window))
	if avg <= 0 {
		return 1
	}
	return latest / avg
}

func lastNonZero(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if series[i] != 0 && !math.IsNaN(series[i]) {
			return series[i]
		}
	}
	return 0
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

package signal

import (
	"context"
	"fmt"
	"time"

	"rayven/internal/config"
	"rayven/internal/intel"
	"rayven/internal/lunar"
	"rayven/internal/market"
	"rayven/internal/technicals"
	"rayven/internal/types"
)

// Builder 每周期为单个币种组装 SignalBundle。
// 技术面是硬依赖，拿不到 K 线直接报错（本周期不决策）；
// 情绪和新闻是软依赖，缺失时打 Degraded 标记按中性处理。
type Builder struct {
	source market.Source
	intel  *intel.Service
	moon   *lunar.Tracker

	interval string
	limit    int
	nowFn    func() time.Time
}

// NewBuilder 构造信号组装器。
func NewBuilder(source market.Source, intelSvc *intel.Service, moon *lunar.Tracker, cfg config.MarketConfig) *Builder {
	interval := cfg.CandleInterval
	if interval == "" {
		interval = "1h"
	}
	limit := cfg.CandleLimit
	if limit <= 0 {
		limit = 100
	}
	return &Builder{
		source:   source,
		intel:    intelSvc,
		moon:     moon,
		interval: interval,
		limit:    limit,
		nowFn:    time.Now,
	}
}

// Build 组装一个币种的信号快照。
func (b *Builder) Build(ctx context.Context, instrument string) (types.SignalBundle, error) {
	candles, err := b.source.GetCandles(ctx, instrument, b.interval, b.limit)
	if err != nil {
		return types.SignalBundle{}, fmt.Errorf("build signal %s: %w", instrument, err)
	}
	snap, err := technicals.Compute(candles)
	if err != nil {
		return types.SignalBundle{}, fmt.Errorf("build signal %s: %w", instrument, err)
	}

	report := b.intel.Snapshot(ctx)
	phase := b.moon.At(b.nowFn())

	return types.SignalBundle{
		Instrument:    instrument,
		Price:         snap.Price,
		RSI:           snap.RSI,
		RangePosition: snap.RangePosition,
		Trend:         snap.Trend,
		TrendStrength: snap.TrendStrength,
		VolumeRatio:   snap.VolumeRatio,
		Sentiment:     report.Sentiment,
		NewsBlock:     report.NewsBlock,
		MoonPhase:     phase.Phase,
		Illumination:  phase.Illumination,
		Degraded:      report.Degraded,
		CreatedAt:     b.nowFn(),
	}, nil
}

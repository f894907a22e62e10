package market

import (
	"context"
	"fmt"
	"strings"

	"rayven/internal/config"
)

// Source 行情来源：现货 REST 只读接口。
type Source interface {
	// GetPrice 返回最新成交价。
	GetPrice(ctx context.Context, instrument string) (float64, error)

	// GetCandles 返回最近 limit 根已收盘 K 线，按时间升序。
	GetCandles(ctx context.Context, instrument, interval string, limit int) ([]Candle, error)

	Close() error
}

// NewSource 按 market.name 选择行情来源，未配置时用 binance。
func NewSource(cfg config.MarketConfig) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", "binance":
		return NewBinanceSource(cfg), nil
	default:
		return nil, fmt.Errorf("unknown market source %q", cfg.Name)
	}
}

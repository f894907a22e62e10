package market

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rayven/internal/config"
	"rayven/internal/pkg/circuit"

	"github.com/adshao/go-binance/v2"
)

const maxCandleLimit = 1000

// BinanceSource 基于 go-binance 现货 SDK 实现 Source。
// 所有请求走熔断器：连续失败后快速失败，避免把外部抖动拖进决策周期。
type BinanceSource struct {
	client  *binance.Client
	quote   string
	breaker *circuit.Breaker
}

// NewBinanceSource 构造只读现货行情源（公共接口无需密钥）。
func NewBinanceSource(cfg config.MarketConfig) *BinanceSource {
	client := binance.NewClient("", "")
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	quote := strings.ToUpper(strings.TrimSpace(cfg.QuoteCurrency))
	if quote == "" {
		quote = "USDT"
	}
	return &BinanceSource{
		client:  client,
		quote:   quote,
		breaker: circuit.NewBreaker("binance", 5, 2*time.Minute),
	}
}

func (s *BinanceSource) GetPrice(ctx context.Context, instrument string) (float64, error) {
	pair := s.pairFor(instrument)
	var price float64
	err := s.breaker.Do(func() error {
		prices, err := s.client.NewListPricesService().Symbol(pair).Do(ctx)
		if err != nil {
			return err
		}
		if len(prices) == 0 {
			return fmt.Errorf("empty price response for %s", pair)
		}
		price, err = strconv.ParseFloat(prices[0].Price, 64)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get price %s: %w", pair, err)
	}
	return price, nil
}

func (s *BinanceSource) GetCandles(ctx context.Context, instrument, interval string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxCandleLimit {
		limit = maxCandleLimit
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	pair := s.pairFor(instrument)
	var out []Candle
	err := s.breaker.Do(func() error {
		kls, err := s.client.NewKlinesService().Symbol(pair).Interval(interval).Limit(limit).Do(ctx)
		if err != nil {
			return err
		}
		out = make([]Candle, 0, len(kls))
		for _, kl := range kls {
			if kl == nil {
				continue
			}
			out = append(out, Candle{
				OpenTime:  kl.OpenTime,
				CloseTime: kl.CloseTime,
				Open:      parseFloat(kl.Open),
				High:      parseFloat(kl.High),
				Low:       parseFloat(kl.Low),
				Close:     parseFloat(kl.Close),
				Volume:    parseFloat(kl.Volume),
				Trades:    kl.TradeNum,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get candles %s %s: %w", pair, interval, err)
	}
	return dropUnclosed(out), nil
}

func (s *BinanceSource) Close() error { return nil }

// pairFor 把币种映射为交易所符号（BTC → BTCUSDT）。
func (s *BinanceSource) pairFor(instrument string) string {
	sym := strings.ToUpper(strings.TrimSpace(instrument))
	sym = strings.ReplaceAll(sym, "/", "")
	if strings.HasSuffix(sym, s.quote) {
		return sym
	}
	return sym + s.quote
}

// dropUnclosed 丢掉尾部尚未收盘的 K 线，指标只吃已收盘数据。
func dropUnclosed(candles []Candle) []Candle {
	if len(candles) == 0 {
		return candles
	}
	nowMs := time.Now().UnixMilli()
	last := candles[len(candles)-1]
	if last.CloseTime > nowMs {
		return candles[:len(candles)-1]
	}
	return candles
}

func parseFloat(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return v
}

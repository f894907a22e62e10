package intel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"rayven/internal/config"
	"rayven/internal/logger"
	"rayven/internal/pkg/circuit"

	"github.com/tidwall/gjson"
)

const (
	defaultFearGreedURL = "https://api.alternative.me/fng/?limit=1"
	errorBackoff        = 2 * time.Minute
	fallbackRefresh     = 12 * time.Hour
	newsRefresh         = 10 * time.Minute
	neutralSentiment    = 50
)

// Report 单周期的市场情报：情绪指数与红旗新闻判定。
// Degraded 标记哪一路信号缺失，缺失的信号在决策里按中性处理。
type Report struct {
	Sentiment       int    // 0~100，恐惧→贪婪
	Classification  string // Extreme Fear / Fear / Neutral / Greed / Extreme Greed
	NewsBlock       bool
	FlaggedHeadline string
	Degraded        []string
}

// Service 拉取并缓存外部情报源。失败时退避重试，
// 缓存可用则继续用旧值，两路都挂才降级。
type Service struct {
	fearGreedURL string
	newsURL      string
	keywords     []string
	client       *http.Client
	breaker      *circuit.Breaker

	mu            sync.RWMutex
	sentiment     int
	classified    string
	sentimentOK   bool
	nextSentiment time.Time
	newsBlock     bool
	flagged       string
	newsOK        bool
	nextNews      time.Time
}

// NewService 按配置构造情报服务。
func NewService(cfg config.IntelConfig) *Service {
	url := strings.TrimSpace(cfg.FearGreedURL)
	if url == "" {
		url = defaultFearGreedURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	keywords := make([]string, 0, len(cfg.RedFlagKeywords))
	for _, k := range cfg.RedFlagKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	return &Service{
		fearGreedURL: url,
		newsURL:      strings.TrimSpace(cfg.NewsURL),
		keywords:     keywords,
		client:       &http.Client{Timeout: timeout},
		breaker:      circuit.NewBreaker("intel", 5, 2*time.Minute),
	}
}

// Snapshot 返回当前情报，必要时先刷新。永不返回错误：
// 拿不到数据就打 Degraded 标记并给中性值。
func (s *Service) Snapshot(ctx context.Context) Report {
	s.refreshSentimentIfStale(ctx)
	s.refreshNewsIfStale(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	r := Report{
		Sentiment:       neutralSentiment,
		Classification:  "Neutral",
		NewsBlock:       s.newsBlock,
		FlaggedHeadline: s.flagged,
	}
	if s.sentimentOK {
		r.Sentiment = s.sentiment
		r.Classification = s.classified
	} else {
		r.Degraded = append(r.Degraded, "sentiment")
	}
	if s.newsURL != "" && !s.newsOK {
		r.Degraded = append(r.Degraded, "news")
	}
	return r
}

func (s *Service) refreshSentimentIfStale(ctx context.Context) {
	s.mu.RLock()
	next := s.nextSentiment
	s.mu.RUnlock()
	if time.Now().Before(next) {
		return
	}
	if err := s.refreshSentiment(ctx); err != nil {
		logger.Warnf("intel: Fear & Greed 刷新失败: %v", err)
	}
}

func (s *Service) refreshSentiment(ctx context.Context) error {
	body, err := s.fetch(ctx, s.fearGreedURL)
	if err != nil {
		s.mu.Lock()
		s.nextSentiment = time.Now().Add(errorBackoff)
		s.mu.Unlock()
		return err
	}
	value := gjson.GetBytes(body, "data.0.value")
	if !value.Exists() {
		s.mu.Lock()
		s.nextSentiment = time.Now().Add(errorBackoff)
		s.mu.Unlock()
		return fmt.Errorf("fear & greed payload missing data.0.value")
	}
	next := time.Now().Add(fallbackRefresh)
	if secs := gjson.GetBytes(body, "data.0.time_until_update").Int(); secs > 0 {
		next = time.Now().Add(time.Duration(secs) * time.Second)
	}
	s.mu.Lock()
	s.sentiment = clampSentiment(int(value.Int()))
	s.classified = gjson.GetBytes(body, "data.0.value_classification").String()
	s.sentimentOK = true
	s.nextSentiment = next
	s.mu.Unlock()
	return nil
}

func (s *Service) refreshNewsIfStale(ctx context.Context) {
	if s.newsURL == "" {
		return
	}
	s.mu.RLock()
	next := s.nextNews
	s.mu.RUnlock()
	if time.Now().Before(next) {
		return
	}
	if err := s.refreshNews(ctx); err != nil {
		logger.Warnf("intel: 新闻扫描失败: %v", err)
	}
}

// refreshNews 扫描头条里的红旗关键词。命中任何一条即本周期禁买。
func (s *Service) refreshNews(ctx context.Context) error {
	body, err := s.fetch(ctx, s.newsURL)
	if err != nil {
		s.mu.Lock()
		s.nextNews = time.Now().Add(errorBackoff)
		s.mu.Unlock()
		return err
	}
	titles := gjson.GetBytes(body, "#.title")
	if !titles.Exists() {
		titles = gjson.GetBytes(body, "data.#.title")
	}
	block := false
	flagged := ""
	titles.ForEach(func(_, title gjson.Result) bool {
		lower := strings.ToLower(title.String())
		for _, kw := range s.keywords {
			if strings.Contains(lower, kw) {
				block = true
				flagged = title.String()
				return false
			}
		}
		return true
	})
	s.mu.Lock()
	s.newsBlock = block
	s.flagged = flagged
	s.newsOK = true
	s.nextNews = time.Now().Add(newsRefresh)
	s.mu.Unlock()
	if block {
		logger.Warnf("intel: 红旗新闻命中，本周期禁止买入: %s", flagged)
	}
	return nil
}

func (s *Service) fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := s.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("unexpected status %s", resp.Status)
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return err
	})
	return body, err
}

func clampSentiment(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

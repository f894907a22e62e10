package app

import (
	"context"
	"fmt"
	"time"

	"rayven/internal/config"
	"rayven/internal/engine"
	"rayven/internal/intel"
	"rayven/internal/lunar"
	"rayven/internal/market"
	"rayven/internal/memory"
	"rayven/internal/pattern"
	"rayven/internal/progression"
	"rayven/internal/recorder"
	"rayven/internal/signal"
	"rayven/internal/store"
	transporthttp "rayven/internal/transport/http"
)

// AppBuilder 按依赖顺序装配应用：存储 → 记忆/进阶 → 信号源 →
// 引擎 → 闭环 → HTTP。各构造步骤可注入替身，测试时不碰真实外部源。
type AppBuilder struct {
	cfg *config.Config

	sourceFn func(config.MarketConfig) (market.Source, error)
	storeFn  func(string) (*store.Store, error)
}

type AppBuilderOption func(*AppBuilder)

// WithMarketSource 替换行情来源（测试/回放用）。
func WithMarketSource(fn func(config.MarketConfig) (market.Source, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.sourceFn = fn }
}

// WithStore 替换存储构造（测试用内存路径）。
func WithStore(fn func(string) (*store.Store, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.storeFn = fn }
}

// NewAppBuilder 构造装配器。
func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:      cfg,
		sourceFn: market.NewSource,
		storeFn:  store.New,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build 完成全部装配与启动前恢复。
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := b.cfg

	db, err := b.storeFn(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("build store: %w", err)
	}

	mem := memory.New(db, cfg.Trading.MinTrustTrades, cfg.Trading.FullTrustTrades)
	if err := mem.Start(ctx); err != nil {
		return nil, fmt.Errorf("build memory: %w", err)
	}

	ladder := progression.LadderFromConfig(cfg.Progression.Levels)
	prog := progression.NewMachine(ladder, db, cfg.Trading.StartingBalanceUSD)
	if err := prog.Start(ctx); err != nil {
		return nil, fmt.Errorf("build progression: %w", err)
	}

	lib := pattern.NewLibrary()
	registry, err := pattern.NewRegistry(cfg.Pattern.TemplatesPath)
	if err != nil {
		return nil, fmt.Errorf("build pattern registry: %w", err)
	}
	lib.ApplyTemplates(registry.Templates())
	registry.OnChange(lib.ApplyTemplates)

	reference, err := time.Parse(time.RFC3339, cfg.Lunar.ReferenceFullMoon)
	if err != nil {
		return nil, fmt.Errorf("build lunar tracker: %w", err)
	}
	moon := lunar.NewTracker(reference)

	source, err := b.sourceFn(cfg.Market)
	if err != nil {
		return nil, fmt.Errorf("build market source: %w", err)
	}
	intelSvc := intel.NewService(cfg.Intel)
	builder := signal.NewBuilder(source, intelSvc, moon, cfg.Market)

	eng := engine.New(mem, lib, engine.Params{
		MinConfidence:        cfg.Trading.MinConfidence,
		ExplorationRate:      cfg.Trading.ExplorationRate,
		ExplorationEnabled:   cfg.Trading.ExplorationEnabled,
		LunarModifierMax:     cfg.Trading.LunarModifierMax,
		SentimentModifierMax: cfg.Trading.SentimentModifierMax,
		TierLowPct:           cfg.Trading.TierLowPct,
		TierMediumPct:        cfg.Trading.TierMediumPct,
		TierHighPct:          cfg.Trading.TierHighPct,
	})

	account := market.NewPaperAccount(cfg.Trading.StartingBalanceUSD)
	if err := restoreAccount(ctx, account, prog, db); err != nil {
		return nil, fmt.Errorf("restore account: %w", err)
	}

	rec := recorder.New(mem, prog, account, recorder.ExitPolicy{
		TakeProfitPct: cfg.Trading.TakeProfitPct,
		StopLossPct:   cfg.Trading.StopLossPct,
		MaxHold:       time.Duration(cfg.Trading.MaxHoldHours) * time.Hour,
	})

	live := &LiveService{
		cfg:     cfg,
		source:  source,
		builder: builder,
		eng:     eng,
		mem:     mem,
		prog:    prog,
		account: account,
		rec:     rec,
		db:      db,
	}

	router := &transporthttp.Router{
		Store:    db,
		Memory:   mem,
		Prog:     prog,
		Moon:     moon,
		Account:  account,
		Recorder: rec,
	}
	httpSrv, err := transporthttp.NewServer(cfg.App.HTTPAddr, router)
	if err != nil {
		return nil, fmt.Errorf("build http server: %w", err)
	}

	return &App{
		cfg:      cfg,
		live:     live,
		httpSrv:  httpSrv,
		db:       db,
		registry: registry,
	}, nil
}

// restoreAccount 重启后对齐账户与账本：进阶余额是总口径，
// 扣掉未平仓占用后作为可用余额，持仓按账本重建。
func restoreAccount(ctx context.Context, account *market.PaperAccount, prog *progression.Machine, db *store.Store) error {
	openTrades, err := db.OpenTrades(ctx)
	if err != nil {
		return err
	}
	if len(openTrades) == 0 && prog.Balance() == account.Balance() {
		return nil
	}
	available := prog.Balance()
	positions := make([]market.Position, 0, len(openTrades))
	for _, t := range openTrades {
		available -= t.SizeUSD
		positions = append(positions, market.Position{
			TradeID:    t.ID,
			Instrument: t.Instrument,
			Pattern:    t.Pattern,
			Direction:  t.Direction,
			EntryPrice: t.EntryPrice,
			SizeUSD:    t.SizeUSD,
			Confidence: t.Confidence,
			MoonPhase:  t.MoonPhase,
			OpenedAt:   t.Timestamp,
		})
	}
	if available < 0 {
		available = 0
	}
	account.Restore(available, positions)
	return nil
}

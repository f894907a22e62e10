package app

import (
	"context"

	"rayven/internal/config"
	"rayven/internal/engine"
	"rayven/internal/logger"
	"rayven/internal/market"
	"rayven/internal/memory"
	"rayven/internal/progression"
	"rayven/internal/recorder"
	"rayven/internal/scheduler"
	"rayven/internal/signal"
	"rayven/internal/store"
	"rayven/internal/types"
)

// LiveService 决策主循环：每周期先扫持仓平仓，再对每个
// 已解锁币种跑一次决策。单 goroutine 串行执行，决策引擎
// 的单写者假设由此保证。
type LiveService struct {
	cfg     *config.Config
	source  market.Source
	builder *signal.Builder
	eng     *engine.Engine
	mem     *memory.Memory
	prog    *progression.Machine
	account *market.PaperAccount
	rec     *recorder.Recorder
	db      *store.Store
}

// Run 阻塞运行决策循环，直到 ctx 取消。
func (s *LiveService) Run(ctx context.Context) error {
	sched := scheduler.New(ctx, s.cfg.Trading.CycleInterval(), 0)
	sched.RunImmediately = true
	sched.Start(func() { s.RunCycle(ctx) })
	return ctx.Err()
}

// Close 释放外部资源。
func (s *LiveService) Close() {
	if s.source != nil {
		_ = s.source.Close()
	}
}

// RunCycle 跑一个完整决策周期。任何一路失败只影响该币种，
// 不中断整个周期。
func (s *LiveService) RunCycle(ctx context.Context) {
	s.rec.SweepExits(ctx, s.source.GetPrice)

	unlocked := s.prog.UnlockedInstruments()
	limits := s.prog.RiskLimits()
	logger.Debugf("cycle: 解锁币种=%v 单笔上限=%.2f", unlocked, limits.PerTradeCapUSD)

	for _, instrument := range unlocked {
		if _, open := s.account.Position(instrument); open {
			logger.Debugf("cycle: %s 已有持仓，跳过", instrument)
			continue
		}
		bundle, err := s.builder.Build(ctx, instrument)
		if err != nil {
			logger.Warnf("cycle: %s 信号构建失败，本周期跳过: %v", instrument, err)
			continue
		}
		d, err := s.eng.Decide(ctx, bundle, unlocked, limits, s.account.Available())
		if err != nil {
			logger.Errorf("cycle: %s 决策失败: %v", instrument, err)
			continue
		}
		if err := s.db.InsertDecision(ctx, d); err != nil {
			logger.Warnf("cycle: 决策日志写入失败: %v", err)
		}
		if d.Action == types.ActionHold {
			continue
		}
		if ok, reason := s.prog.AllowNewTrade(); !ok {
			logger.Infof("cycle: %s %s 被风控拦截: %s", instrument, d.Action, reason)
			continue
		}
		if err := s.rec.Open(ctx, d, bundle); err != nil {
			logger.Errorf("cycle: %s 开仓失败: %v", instrument, err)
		}
	}
}

package recorder

import (
	"context"
	"fmt"
	"time"

	"rayven/internal/logger"
	"rayven/internal/market"
	"rayven/internal/memory"
	"rayven/internal/progression"
	"rayven/internal/types"
)

// ExitPolicy 平仓规则：止盈、止损、最长持仓时间。
type ExitPolicy struct {
	TakeProfitPct float64 // 正数，如 5 表示 +5% 止盈
	StopLossPct   float64 // 正数，如 3 表示 -3% 止损
	MaxHold       time.Duration
}

// Recorder 交易生命周期的闭环：开仓登记账本，平仓把结果
// 喂给记忆与进阶系统。这是账本之外唯一的写入口。
type Recorder struct {
	mem     *memory.Memory
	prog    *progression.Machine
	account *market.PaperAccount
	policy  ExitPolicy
	nowFn   func() time.Time
}

// New 构造 Recorder。
func New(mem *memory.Memory, prog *progression.Machine, account *market.PaperAccount, policy ExitPolicy) *Recorder {
	return &Recorder{
		mem:     mem,
		prog:    prog,
		account: account,
		policy:  policy,
		nowFn:   time.Now,
	}
}

// Open 按决策开仓：先写账本拿到交易 ID，再建纸面持仓，
// 最后计入当日交易频率。
func (r *Recorder) Open(ctx context.Context, d types.Decision, bundle types.SignalBundle) error {
	if d.Action != types.ActionBuy && d.Action != types.ActionSell {
		return fmt.Errorf("open: decision %s is not executable", d.Action)
	}
	trade := types.TradeRecord{
		Timestamp:  d.CreatedAt,
		Instrument: d.Instrument,
		Pattern:    d.Pattern,
		Direction:  d.Direction,
		EntryPrice: bundle.Price,
		MoonPhase:  bundle.MoonPhase,
		Confidence: d.Confidence,
		SizeUSD:    d.SizeUSD,
	}
	if err := r.mem.OpenTrade(ctx, &trade); err != nil {
		return fmt.Errorf("open %s: %w", d.Instrument, err)
	}
	pos := market.Position{
		TradeID:    trade.ID,
		Instrument: d.Instrument,
		Pattern:    d.Pattern,
		Direction:  d.Direction,
		EntryPrice: bundle.Price,
		SizeUSD:    d.SizeUSD,
		Confidence: d.Confidence,
		MoonPhase:  bundle.MoonPhase,
		OpenedAt:   d.CreatedAt,
	}
	if err := r.account.Open(pos); err != nil {
		return fmt.Errorf("open %s: %w", d.Instrument, err)
	}
	if err := r.prog.RecordTradeForFrequencyLimit(ctx); err != nil {
		logger.Warnf("recorder: 记录交易频率失败: %v", err)
	}
	logger.Infof("recorder: 开仓 %s %s %s $%.2f @ %.4f (trade=%d)",
		d.Instrument, d.Direction, d.Pattern, d.SizeUSD, bundle.Price, trade.ID)
	return nil
}

// Close 以给定价格平仓，并把结果写进记忆与进阶系统。
// 顺序是账本优先：先提交 RecordOutcome，成功后才动纸面账户。
// 账本写失败时持仓原样保留，下个周期的平仓扫描会重试。
func (r *Recorder) Close(ctx context.Context, instrument string, exitPrice float64, reason string) (*types.TradeRecord, error) {
	pos, retPct, err := r.account.PreviewClose(instrument, exitPrice)
	if err != nil {
		return nil, err
	}
	now := r.nowFn()
	trade := types.TradeRecord{
		ID:         pos.TradeID,
		Timestamp:  pos.OpenedAt,
		Instrument: pos.Instrument,
		Pattern:    pos.Pattern,
		Direction:  pos.Direction,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  &exitPrice,
		ExitTime:   &now,
		ReturnPct:  retPct,
		Outcome:    memory.ClassifyOutcome(retPct),
		MoonPhase:  pos.MoonPhase,
		Confidence: pos.Confidence,
		SizeUSD:    pos.SizeUSD,
	}
	if err := r.mem.RecordOutcome(ctx, trade); err != nil {
		return nil, fmt.Errorf("close %s: %w", instrument, err)
	}
	if _, _, err := r.account.Close(instrument, exitPrice); err != nil {
		// 单写者模型下预检通过后不应失败；账本已记录，只报不回滚。
		logger.Errorf("recorder: %s 账本已平仓但账户更新失败: %v", instrument, err)
	}
	if trade.Outcome == types.OutcomeLoss {
		lossUSD := pos.SizeUSD * -retPct / 100
		if err := r.prog.RecordDailyLoss(ctx, lossUSD); err != nil {
			logger.Warnf("recorder: 记录日亏损失败: %v", err)
		}
	}
	if _, err := r.prog.ApplyBalanceUpdate(ctx, r.account.Balance()); err != nil {
		logger.Warnf("recorder: 余额更新失败: %v", err)
	}
	logger.Infof("recorder: 平仓 %s %s ret=%+.2f%% (%s) balance=%.2f",
		instrument, trade.Outcome, retPct, reason, r.account.Balance())
	return &trade, nil
}

// CheckExit 判断持仓是否触发平仓规则；返回触发原因，空串表示继续持有。
func (r *Recorder) CheckExit(pos market.Position, price float64) string {
	if price <= 0 || pos.EntryPrice <= 0 {
		return ""
	}
	ret := (price - pos.EntryPrice) / pos.EntryPrice * 100
	if pos.Direction == types.DirectionSell {
		ret = -ret
	}
	switch {
	case r.policy.TakeProfitPct > 0 && ret >= r.policy.TakeProfitPct:
		return fmt.Sprintf("take profit %+.2f%%", ret)
	case r.policy.StopLossPct > 0 && ret <= -r.policy.StopLossPct:
		return fmt.Sprintf("stop loss %+.2f%%", ret)
	case r.policy.MaxHold > 0 && r.nowFn().Sub(pos.OpenedAt) >= r.policy.MaxHold:
		return fmt.Sprintf("max hold exceeded (%s)", r.policy.MaxHold)
	default:
		return ""
	}
}

// SweepExits 扫一遍所有持仓，触发规则的立即平仓。
func (r *Recorder) SweepExits(ctx context.Context, priceFn func(ctx context.Context, instrument string) (float64, error)) {
	for _, pos := range r.account.Positions() {
		price, err := priceFn(ctx, pos.Instrument)
		if err != nil {
			logger.Warnf("recorder: %s 取价失败，跳过平仓检查: %v", pos.Instrument, err)
			continue
		}
		reason := r.CheckExit(pos, price)
		if reason == "" {
			continue
		}
		if _, err := r.Close(ctx, pos.Instrument, price, reason); err != nil {
			logger.Errorf("recorder: %s 平仓失败: %v", pos.Instrument, err)
		}
	}
}

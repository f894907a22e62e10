package memory

import (
	"context"
	"fmt"
	"sync"

	"rayven/internal/logger"
	"rayven/internal/types"
)

// Ledger 是 Memory 依赖的持久化边界（由 internal/store 实现）。
type Ledger interface {
	AppendTrade(ctx context.Context, trade *types.TradeRecord) error
	CloseTradeTx(ctx context.Context, trade types.TradeRecord, pstat types.PatternStat, lstat types.LunarStat) error
	ListTrades(ctx context.Context) ([]types.TradeRecord, error)
	LoadPatternStats(ctx context.Context) ([]types.PatternStat, error)
	LoadLunarStats(ctx context.Context) ([]types.LunarStat, error)
	ReplaceStats(ctx context.Context, pstats []types.PatternStat, lstats []types.LunarStat) error
}

type patternKey struct {
	pattern    types.Pattern
	instrument string
}

// Memory 自适应记忆：账本为唯一事实来源，两张统计表是可重建的缓存。
// 单写者模型：RecordOutcome/RecomputeFromLedger 持写锁，决策读取持读锁。
type Memory struct {
	ledger    Ledger
	minTrust  int
	fullTrust int

	mu       sync.RWMutex
	patterns map[patternKey]types.PatternStat
	lunar    map[types.MoonPhase]types.LunarStat
}

// New 构造 Memory；统计需随后通过 Start 加载。
func New(ledger Ledger, minTrust, fullTrust int) *Memory {
	if minTrust <= 0 {
		minTrust = 3
	}
	if fullTrust < minTrust {
		fullTrust = minTrust
	}
	return &Memory{
		ledger:    ledger,
		minTrust:  minTrust,
		fullTrust: fullTrust,
		patterns:  make(map[patternKey]types.PatternStat),
		lunar:     make(map[types.MoonPhase]types.LunarStat),
	}
}

// Start 加载统计缓存并对账：缓存与账本重放不一致时触发重建。
func (m *Memory) Start(ctx context.Context) error {
	pstats, err := m.ledger.LoadPatternStats(ctx)
	if err != nil {
		return fmt.Errorf("memory start: %w", err)
	}
	lstats, err := m.ledger.LoadLunarStats(ctx)
	if err != nil {
		return fmt.Errorf("memory start: %w", err)
	}
	cachedP := make(map[patternKey]types.PatternStat, len(pstats))
	for _, p := range pstats {
		cachedP[patternKey{p.Pattern, p.Instrument}] = p
	}
	cachedL := make(map[types.MoonPhase]types.LunarStat, len(lstats))
	for _, l := range lstats {
		cachedL[l.Phase] = l
	}

	replayP, replayL, err := m.replay(ctx)
	if err != nil {
		return err
	}
	if !statsEqual(cachedP, cachedL, replayP, replayL) {
		logger.Warnf("memory: 统计缓存与账本重放不一致，执行重建")
		if err := m.persistStats(ctx, replayP, replayL); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.patterns = replayP
	m.lunar = replayL
	m.mu.Unlock()
	logger.Infof("memory: 已加载统计 形态=%d 月相=%d", len(replayP), len(replayL))
	return nil
}

// LookupPattern 返回 (形态, 币种) 统计；未见过时返回零值桩。
func (m *Memory) LookupPattern(pattern types.Pattern, instrument string) types.PatternStat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.patterns[patternKey{pattern, instrument}]; ok {
		return s
	}
	return types.PatternStat{Pattern: pattern, Instrument: instrument}
}

// LookupLunar 返回月相统计；未见过时返回零值桩。
func (m *Memory) LookupLunar(phase types.MoonPhase) types.LunarStat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.lunar[phase]; ok {
		return s
	}
	return types.LunarStat{Phase: phase}
}

// PatternStats 全部形态统计快照（观测接口用）。
func (m *Memory) PatternStats() []types.PatternStat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.PatternStat, 0, len(m.patterns))
	for _, p := range m.patterns {
		out = append(out, p)
	}
	return out
}

// LunarStats 全部月相统计快照。
func (m *Memory) LunarStats() []types.LunarStat {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.LunarStat, 0, len(m.lunar))
	for _, l := range m.lunar {
		out = append(out, l)
	}
	return out
}

// OpenTrade 在账本上登记开仓（统计在平仓时才更新）。
func (m *Memory) OpenTrade(ctx context.Context, trade *types.TradeRecord) error {
	return m.ledger.AppendTrade(ctx, trade)
}

// RecordOutcome 记录平仓结果：账本行、形态统计、月相统计一步到位。
// trade 必须已带 ExitPrice/ReturnPct/Outcome。
func (m *Memory) RecordOutcome(ctx context.Context, trade types.TradeRecord) error {
	if !trade.Closed() {
		return fmt.Errorf("record outcome: trade %d 未平仓", trade.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := patternKey{trade.Pattern, trade.Instrument}
	pstat, ok := m.patterns[key]
	if !ok {
		pstat = types.PatternStat{Pattern: trade.Pattern, Instrument: trade.Instrument}
	}
	pstat = applyTradeToPattern(pstat, trade)

	lstat, ok := m.lunar[trade.MoonPhase]
	if !ok {
		lstat = types.LunarStat{Phase: trade.MoonPhase}
	}
	lstat = applyTradeToLunar(lstat, trade)

	if err := m.ledger.CloseTradeTx(ctx, trade, pstat, lstat); err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	m.patterns[key] = pstat
	m.lunar[trade.MoonPhase] = lstat
	return nil
}

// RecomputeFromLedger 以账本重放结果整体覆盖统计，是"正确统计"的权威定义。
// 幂等：连续调用两次产出完全相同。
func (m *Memory) RecomputeFromLedger(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	replayP, replayL, err := m.replay(ctx)
	if err != nil {
		return err
	}
	if err := m.persistStats(ctx, replayP, replayL); err != nil {
		return err
	}
	m.patterns = replayP
	m.lunar = replayL
	return nil
}

func (m *Memory) replay(ctx context.Context) (map[patternKey]types.PatternStat, map[types.MoonPhase]types.LunarStat, error) {
	trades, err := m.ledger.ListTrades(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("replay ledger: %w", err)
	}
	pstats := make(map[patternKey]types.PatternStat)
	lstats := make(map[types.MoonPhase]types.LunarStat)
	for _, t := range trades {
		if !t.Closed() {
			continue
		}
		key := patternKey{t.Pattern, t.Instrument}
		ps, ok := pstats[key]
		if !ok {
			ps = types.PatternStat{Pattern: t.Pattern, Instrument: t.Instrument}
		}
		pstats[key] = applyTradeToPattern(ps, t)

		ls, ok := lstats[t.MoonPhase]
		if !ok {
			ls = types.LunarStat{Phase: t.MoonPhase}
		}
		lstats[t.MoonPhase] = applyTradeToLunar(ls, t)
	}
	return pstats, lstats, nil
}

func (m *Memory) persistStats(ctx context.Context, pstats map[patternKey]types.PatternStat, lstats map[types.MoonPhase]types.LunarStat) error {
	pl := make([]types.PatternStat, 0, len(pstats))
	for _, p := range pstats {
		pl = append(pl, p)
	}
	ll := make([]types.LunarStat, 0, len(lstats))
	for _, l := range lstats {
		ll = append(ll, l)
	}
	if err := m.ledger.ReplaceStats(ctx, pl, ll); err != nil {
		return fmt.Errorf("persist stats: %w", err)
	}
	return nil
}

// applyTradeToPattern 把一笔平仓交易折进形态统计。
// 增量更新与全量重放共用此函数，两条路径不可能漂移。
func applyTradeToPattern(s types.PatternStat, t types.TradeRecord) types.PatternStat {
	s.Trades++
	s.SumReturn += t.ReturnPct
	if t.Outcome == types.OutcomeWin {
		s.Wins++
		s.AvgWinPct = s.AvgWinPct + (t.ReturnPct-s.AvgWinPct)/float64(s.Wins)
		if t.ReturnPct > s.BestPct {
			s.BestPct = t.ReturnPct
		}
	} else {
		losses := s.Trades - s.Wins
		s.AvgLossPct = s.AvgLossPct + (t.ReturnPct-s.AvgLossPct)/float64(losses)
		if t.ReturnPct < s.WorstPct {
			s.WorstPct = t.ReturnPct
		}
	}
	return s
}

func applyTradeToLunar(s types.LunarStat, t types.TradeRecord) types.LunarStat {
	s.Trades++
	s.SumReturn += t.ReturnPct
	if t.Outcome == types.OutcomeWin {
		s.Wins++
	}
	return s
}

func statsEqual(p1 map[patternKey]types.PatternStat, l1 map[types.MoonPhase]types.LunarStat,
	p2 map[patternKey]types.PatternStat, l2 map[types.MoonPhase]types.LunarStat) bool {
	if len(p1) != len(p2) || len(l1) != len(l2) {
		return false
	}
	for k, a := range p1 {
		b, ok := p2[k]
		if !ok || a.Trades != b.Trades || a.Wins != b.Wins {
			return false
		}
		// 派生字段同样持久化，任何一个漂移都要触发重建。
		if !floatEq(a.SumReturn, b.SumReturn) || !floatEq(a.AvgWinPct, b.AvgWinPct) ||
			!floatEq(a.AvgLossPct, b.AvgLossPct) || !floatEq(a.BestPct, b.BestPct) ||
			!floatEq(a.WorstPct, b.WorstPct) {
			return false
		}
	}
	for k, a := range l1 {
		b, ok := l2[k]
		if !ok || a.Trades != b.Trades || a.Wins != b.Wins || !floatEq(a.SumReturn, b.SumReturn) {
			return false
		}
	}
	return true
}

func floatEq(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

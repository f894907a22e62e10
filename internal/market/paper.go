package market

import (
	"fmt"
	"sync"
	"time"

	"rayven/internal/types"

	"github.com/shopspring/decimal"
)

// Position 纸面持仓。每个币种最多一个。
type Position struct {
	TradeID    int64
	Instrument string
	Pattern    types.Pattern
	Direction  types.Direction
	EntryPrice float64
	SizeUSD    float64
	Quantity   float64
	Confidence float64
	MoonPhase  types.MoonPhase
	OpenedAt   time.Time
}

// PaperAccount 模拟账户：开仓占用余额，平仓按收益率返还。
// 余额是进阶状态机的输入，所有金额运算走 decimal。
type PaperAccount struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	positions map[string]Position
}

// NewPaperAccount 以起始余额构造模拟账户。
func NewPaperAccount(startingUSD float64) *PaperAccount {
	return &PaperAccount{
		balance:   decimal.NewFromFloat(startingUSD),
		positions: make(map[string]Position),
	}
}

// Balance 可用余额 + 占用仓位的名义本金（账户净值的保守口径）。
func (a *PaperAccount) Balance() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := a.balance
	for _, p := range a.positions {
		total = total.Add(decimal.NewFromFloat(p.SizeUSD))
	}
	v, _ := total.Float64()
	return v
}

// Available 未被持仓占用的余额。
func (a *PaperAccount) Available() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, _ := a.balance.Float64()
	return v
}

// Restore 重启后重建账户：余额传未被持仓占用的口径，持仓原样放回。
func (a *PaperAccount) Restore(availableUSD float64, positions []Position) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = decimal.NewFromFloat(availableUSD)
	for _, p := range positions {
		if p.Quantity == 0 && p.EntryPrice > 0 {
			p.Quantity = p.SizeUSD / p.EntryPrice
		}
		a.positions[p.Instrument] = p
	}
}

// Open 开仓：同币种已有持仓或余额不足时拒绝。
func (a *PaperAccount) Open(pos Position) error {
	if pos.SizeUSD <= 0 || pos.EntryPrice <= 0 {
		return fmt.Errorf("open %s: invalid size/price", pos.Instrument)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.positions[pos.Instrument]; ok {
		return fmt.Errorf("open %s: position already exists", pos.Instrument)
	}
	size := decimal.NewFromFloat(pos.SizeUSD)
	if size.GreaterThan(a.balance) {
		return fmt.Errorf("open %s: size $%.2f exceeds available $%s", pos.Instrument, pos.SizeUSD, a.balance.Round(2))
	}
	pos.Quantity, _ = size.Div(decimal.NewFromFloat(pos.EntryPrice)).Float64()
	a.balance = a.balance.Sub(size)
	a.positions[pos.Instrument] = pos
	return nil
}

// PreviewClose 计算按给定价格平仓的结果，但不动余额与持仓。
// 平仓链路先落账本再动账户，依赖此接口拿到与 Close 完全一致的收益率。
func (a *PaperAccount) PreviewClose(instrument string, exitPrice float64) (Position, float64, error) {
	if exitPrice <= 0 {
		return Position{}, 0, fmt.Errorf("close %s: invalid exit price", instrument)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	pos, ok := a.positions[instrument]
	if !ok {
		return Position{}, 0, fmt.Errorf("close %s: no open position", instrument)
	}
	retPct, _ := closeReturn(pos, exitPrice).Mul(decimal.NewFromInt(100)).Float64()
	return pos, retPct, nil
}

// Close 平仓：返还本金加减已实现盈亏，返回收益率（百分比）。
func (a *PaperAccount) Close(instrument string, exitPrice float64) (Position, float64, error) {
	if exitPrice <= 0 {
		return Position{}, 0, fmt.Errorf("close %s: invalid exit price", instrument)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	pos, ok := a.positions[instrument]
	if !ok {
		return Position{}, 0, fmt.Errorf("close %s: no open position", instrument)
	}
	delete(a.positions, instrument)

	ret := closeReturn(pos, exitPrice)
	size := decimal.NewFromFloat(pos.SizeUSD)
	a.balance = a.balance.Add(size.Mul(decimal.NewFromInt(1).Add(ret)))

	retPct, _ := ret.Mul(decimal.NewFromInt(100)).Float64()
	return pos, retPct, nil
}

// closeReturn 平仓收益率（小数），做空取反。
func closeReturn(pos Position, exitPrice float64) decimal.Decimal {
	entry := decimal.NewFromFloat(pos.EntryPrice)
	ret := decimal.NewFromFloat(exitPrice).Sub(entry).Div(entry)
	if pos.Direction == types.DirectionSell {
		ret = ret.Neg()
	}
	return ret
}

// Position 查询某币种持仓。
func (a *PaperAccount) Position(instrument string) (Position, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.positions[instrument]
	return p, ok
}

// Positions 全部持仓快照。
func (a *PaperAccount) Positions() []Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, p)
	}
	return out
}

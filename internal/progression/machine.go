package progression

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rayven/internal/logger"
	"rayven/internal/store"
	"rayven/internal/types"
)

// ProgressionStore 持久化边界。
type ProgressionStore interface {
	SaveProgression(ctx context.Context, rec store.ProgressionRecord) error
	LoadProgression(ctx context.Context) (*store.ProgressionRecord, error)
}

// Machine 进阶状态机：独占持有进阶状态，余额事件驱动升级。
// 等级在正常运行中单调不降；降级被刻意排除，避免解锁集合来回抖动。
type Machine struct {
	ladder Ladder
	db     ProgressionStore
	nowFn  func() time.Time

	mu    sync.Mutex
	state State
}

// NewMachine 构造状态机；状态随后通过 Start 加载或初始化。
func NewMachine(ladder Ladder, db ProgressionStore, startingBalance float64) *Machine {
	return &Machine{
		ladder: ladder,
		db:     db,
		nowFn:  time.Now,
		state: State{
			Level:           1,
			Balance:         startingBalance,
			StartingBalance: startingBalance,
			HighestBalance:  startingBalance,
		},
	}
}

// Start 从存储恢复状态；首次运行时落盘初始状态。
func (m *Machine) Start(ctx context.Context) error {
	rec, err := m.db.LoadProgression(ctx)
	if err != nil {
		return fmt.Errorf("progression start: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec != nil {
		m.state = State{
			Level:           rec.Level,
			Balance:         rec.Balance,
			StartingBalance: rec.StartingBalance,
			HighestBalance:  rec.HighestBalance,
			TradesToday:     rec.TradesToday,
			DailyLossUSD:    rec.DailyLossUSD,
			DayKey:          rec.DayKey,
			History:         rec.History,
		}
		if m.state.Level < 1 {
			m.state.Level = 1
		}
		logger.Infof("progression: 恢复状态 level=%d balance=%.2f", m.state.Level, m.state.Balance)
		return nil
	}
	m.state.DayKey = m.dayKey()
	if err := m.persistLocked(ctx); err != nil {
		return err
	}
	logger.Infof("progression: 初始化 level=1 balance=%.2f", m.state.Balance)
	return nil
}

// UnlockedInstruments 当前等级解锁的币种集合。
func (m *Machine) UnlockedInstruments() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	lv, _ := m.ladder.At(m.state.Level)
	return append([]string(nil), lv.Unlocked...)
}

// RiskLimits 当前等级的风控参数（上限按当前余额折算成美元）。
func (m *Machine) RiskLimits() types.RiskLimits {
	m.mu.Lock()
	defer m.mu.Unlock()
	lv, _ := m.ladder.At(m.state.Level)
	return types.RiskLimits{
		PerTradeCapUSD:  m.state.Balance * lv.PerTradeCapPct,
		DailyLossCapUSD: m.state.Balance * lv.DailyLossCapPct,
		MaxTradesPerDay: lv.MaxTradesPerDay,
	}
}

// Balance 当前余额。
func (m *Machine) Balance() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Balance
}

// ApplyBalanceUpdate 余额变更后评估是否升级；每次最多升一级。
func (m *Machine) ApplyBalanceUpdate(ctx context.Context, balance float64) (*types.LevelUpEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDayLocked()
	next, ev := Advance(m.ladder, m.state, balance, m.nowFn())
	m.state = next
	if err := m.persistLocked(ctx); err != nil {
		return nil, err
	}
	if ev != nil {
		logger.Infof("progression: 升级! level=%d (%s) 解锁=%v balance=%.2f",
			ev.NewLevel, ev.Achievement, ev.Unlocked, ev.Balance)
	}
	return ev, nil
}

// RecordTradeForFrequencyLimit 记一笔当日交易（频率限制用）。
func (m *Machine) RecordTradeForFrequencyLimit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDayLocked()
	m.state.TradesToday++
	return m.persistLocked(ctx)
}

// RecordDailyLoss 累计当日亏损（正数表示亏损额）。
func (m *Machine) RecordDailyLoss(ctx context.Context, lossUSD float64) error {
	if lossUSD <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDayLocked()
	m.state.DailyLossUSD += lossUSD
	return m.persistLocked(ctx)
}

// AllowNewTrade 检查当日频率与亏损额度是否还允许开新仓。
func (m *Machine) AllowNewTrade() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetDayLocked()
	lv, _ := m.ladder.At(m.state.Level)
	if lv.MaxTradesPerDay > 0 && m.state.TradesToday >= lv.MaxTradesPerDay {
		return false, fmt.Sprintf("daily trade limit reached (%d)", lv.MaxTradesPerDay)
	}
	cap := m.state.Balance * lv.DailyLossCapPct
	if cap > 0 && m.state.DailyLossUSD >= cap {
		return false, fmt.Sprintf("daily loss cap reached ($%.2f)", cap)
	}
	return true, ""
}

// Progress 对外展示的进度报告。
type Progress struct {
	Level          int      `json:"level"`
	Achievement    string   `json:"achievement"`
	Balance        float64  `json:"balance"`
	StartBalance   float64  `json:"starting_balance"`
	HighestBalance float64  `json:"highest_balance"`
	ProfitPct      float64  `json:"profit_pct"`
	NextMilestone  *float64 `json:"next_milestone,omitempty"`
	ProgressPct    float64  `json:"progress_to_next_pct"`
	AmountNeeded   float64  `json:"amount_needed"`
	Unlocked       []string `json:"unlocked"`
	NextUnlock     []string `json:"next_unlock,omitempty"`
	AtMaxLevel     bool     `json:"at_max_level"`
	LevelsGained   int      `json:"levels_gained"`
}

// Report 计算进度百分比与下一解锁集合。
func (m *Machine) Report() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, _ := m.ladder.At(m.state.Level)
	p := Progress{
		Level:          m.state.Level,
		Achievement:    cur.Achievement,
		Balance:        m.state.Balance,
		StartBalance:   m.state.StartingBalance,
		HighestBalance: m.state.HighestBalance,
		Unlocked:       append([]string(nil), cur.Unlocked...),
		LevelsGained:   len(m.state.History),
	}
	if m.state.StartingBalance > 0 {
		p.ProfitPct = (m.state.Balance - m.state.StartingBalance) / m.state.StartingBalance * 100
	}
	next, ok := m.ladder.Next(m.state.Level)
	if !ok {
		p.AtMaxLevel = true
		p.ProgressPct = 100
		return p
	}
	// 当前等级的 milestone 即晋级门槛；进度窗口起点是上一道已跨过的门槛。
	p.NextMilestone = &cur.MilestoneUSD
	start := m.state.StartingBalance
	if m.state.Level > 1 {
		prev, _ := m.ladder.At(m.state.Level - 1)
		start = prev.MilestoneUSD
	}
	if cur.MilestoneUSD > start {
		pct := (m.state.Balance - start) / (cur.MilestoneUSD - start) * 100
		p.ProgressPct = clampPct(pct)
	}
	p.AmountNeeded = cur.MilestoneUSD - m.state.Balance
	if p.AmountNeeded < 0 {
		p.AmountNeeded = 0
	}
	p.NextUnlock = diffUnlocked(next.Unlocked, cur.Unlocked)
	return p
}

func (m *Machine) resetDayLocked() {
	today := m.dayKey()
	if m.state.DayKey == today {
		return
	}
	m.state.DayKey = today
	m.state.TradesToday = 0
	m.state.DailyLossUSD = 0
}

func (m *Machine) dayKey() string {
	return m.nowFn().UTC().Format("2006-01-02")
}

func (m *Machine) persistLocked(ctx context.Context) error {
	rec := store.ProgressionRecord{
		Level:           m.state.Level,
		Balance:         m.state.Balance,
		StartingBalance: m.state.StartingBalance,
		HighestBalance:  m.state.HighestBalance,
		Unlocked:        nil,
		History:         m.state.History,
		TradesToday:     m.state.TradesToday,
		DailyLossUSD:    m.state.DailyLossUSD,
		DayKey:          m.state.DayKey,
	}
	if lv, ok := m.ladder.At(m.state.Level); ok {
		rec.Unlocked = append([]string(nil), lv.Unlocked...)
	}
	if err := m.db.SaveProgression(ctx, rec); err != nil {
		return fmt.Errorf("progression persist: %w", err)
	}
	return nil
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

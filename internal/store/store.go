package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rayven/internal/store/model"
	"rayven/internal/types"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// ErrUnavailable 持久层不可用：当前周期按致命处理，跳过决策等待下轮。
var ErrUnavailable = errors.New("store unavailable")

// Store 是唯一的持久化网关：账本、统计缓存、进阶状态与决策日志。
type Store struct {
	db *gorm.DB
}

// New 打开（或创建）sqlite 存储并完成迁移。
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	models := []interface{}{
		&model.TradeRecordModel{},
		&model.PatternStatModel{},
		&model.LunarStatModel{},
		&model.ProgressionModel{},
		&model.DecisionLogModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL：决策循环单写者，HTTP 只读查询允许少量并行。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Close 关闭底层连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --------------------- 账本 -------------------------

// AppendTrade 追加一条开仓记录并回填 ID。
func (s *Store) AppendTrade(ctx context.Context, trade *types.TradeRecord) error {
	if s == nil || s.db == nil {
		return ErrUnavailable
	}
	m := newTradeModel(*trade)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	trade.ID = m.ID
	return nil
}

// CloseTradeTx 在单个事务里写平仓行并同步两张统计缓存。
// 账本与派生计数要么同时生效要么都不生效。
func (s *Store) CloseTradeTx(ctx context.Context, trade types.TradeRecord, pstat types.PatternStat, lstat types.LunarStat) error {
	if s == nil || s.db == nil {
		return ErrUnavailable
	}
	now := time.Now().Unix()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := newTradeModel(trade)
		if err := tx.Model(&model.TradeRecordModel{}).
			Where("id = ?", trade.ID).
			Updates(map[string]interface{}{
				"exit_price": m.ExitPrice,
				"exit_time":  m.ExitTime,
				"return_pct": m.ReturnPct,
				"outcome":    m.Outcome,
			}).Error; err != nil {
			return err
		}
		if err := upsertPatternStat(tx, pstat, now); err != nil {
			return err
		}
		return upsertLunarStat(tx, lstat, now)
	})
}

// ListTrades 返回全部账本记录（按时间升序），重放统计用。
func (s *Store) ListTrades(ctx context.Context) ([]types.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	var rows []model.TradeRecordModel
	if err := s.db.WithContext(ctx).Order("timestamp asc, id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	out := make([]types.TradeRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, tradeFromModel(r))
	}
	return out, nil
}

// OpenTrades 返回尚未平仓的记录。
func (s *Store) OpenTrades(ctx context.Context) ([]types.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	var rows []model.TradeRecordModel
	if err := s.db.WithContext(ctx).Where("exit_price IS NULL").Order("timestamp asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("open trades: %w", err)
	}
	out := make([]types.TradeRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, tradeFromModel(r))
	}
	return out, nil
}

// --------------------- 统计缓存 -------------------------

// LoadPatternStats 加载全部形态统计。
func (s *Store) LoadPatternStats(ctx context.Context) ([]types.PatternStat, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	var rows []model.PatternStatModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load pattern stats: %w", err)
	}
	out := make([]types.PatternStat, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.PatternStat{
			Pattern:    types.Pattern(r.Pattern),
			Instrument: r.Instrument,
			Trades:     r.Trades,
			Wins:       r.Wins,
			SumReturn:  r.SumReturn,
			AvgWinPct:  r.AvgWinPct,
			AvgLossPct: r.AvgLossPct,
			BestPct:    r.BestPct,
			WorstPct:   r.WorstPct,
		})
	}
	return out, nil
}

// LoadLunarStats 加载全部月相统计。
func (s *Store) LoadLunarStats(ctx context.Context) ([]types.LunarStat, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	var rows []model.LunarStatModel
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load lunar stats: %w", err)
	}
	out := make([]types.LunarStat, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.LunarStat{
			Phase:     types.MoonPhase(r.Phase),
			Trades:    r.Trades,
			Wins:      r.Wins,
			SumReturn: r.SumReturn,
		})
	}
	return out, nil
}

// ReplaceStats 整体替换两张统计缓存（重放账本后调用）。
func (s *Store) ReplaceStats(ctx context.Context, pstats []types.PatternStat, lstats []types.LunarStat) error {
	if s == nil || s.db == nil {
		return ErrUnavailable
	}
	now := time.Now().Unix()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.PatternStatModel{}).Error; err != nil {
			return err
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.LunarStatModel{}).Error; err != nil {
			return err
		}
		for _, p := range pstats {
			if err := upsertPatternStat(tx, p, now); err != nil {
				return err
			}
		}
		for _, l := range lstats {
			if err := upsertLunarStat(tx, l, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertPatternStat(tx *gorm.DB, p types.PatternStat, now int64) error {
	row := model.PatternStatModel{
		Pattern:    string(p.Pattern),
		Instrument: p.Instrument,
		Trades:     p.Trades,
		Wins:       p.Wins,
		SumReturn:  p.SumReturn,
		AvgWinPct:  p.AvgWinPct,
		AvgLossPct: p.AvgLossPct,
		BestPct:    p.BestPct,
		WorstPct:   p.WorstPct,
		UpdatedAt:  now,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "pattern"}, {Name: "instrument"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"trades", "wins", "sum_return", "avg_win_pct", "avg_loss_pct", "best_pct", "worst_pct", "updated_at",
		}),
	}).Create(&row).Error
}

func upsertLunarStat(tx *gorm.DB, l types.LunarStat, now int64) error {
	row := model.LunarStatModel{
		Phase:     string(l.Phase),
		Trades:    l.Trades,
		Wins:      l.Wins,
		SumReturn: l.SumReturn,
		UpdatedAt: now,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "phase"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"trades", "wins", "sum_return", "updated_at",
		}),
	}).Create(&row).Error
}

// --------------------- 进阶状态 -------------------------

// ProgressionRecord 进阶状态的持久化形式。
type ProgressionRecord struct {
	Level           int
	Balance         float64
	StartingBalance float64
	HighestBalance  float64
	Unlocked        []string
	History         []types.LevelUpEvent
	TradesToday     int
	DailyLossUSD    float64
	DayKey          string
}

// SaveProgression 覆盖写进阶单例行。
func (s *Store) SaveProgression(ctx context.Context, rec ProgressionRecord) error {
	if s == nil || s.db == nil {
		return ErrUnavailable
	}
	unlocked, err := json.Marshal(rec.Unlocked)
	if err != nil {
		return err
	}
	history, err := json.Marshal(rec.History)
	if err != nil {
		return err
	}
	row := model.ProgressionModel{
		ID:              1,
		Level:           rec.Level,
		Balance:         rec.Balance,
		StartingBalance: rec.StartingBalance,
		HighestBalance:  rec.HighestBalance,
		Unlocked:        datatypes.JSON(unlocked),
		History:         datatypes.JSON(history),
		TradesToday:     rec.TradesToday,
		DailyLossUSD:    rec.DailyLossUSD,
		DayKey:          rec.DayKey,
		UpdatedAt:       time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// LoadProgression 读取进阶单例行；不存在时返回 (nil, nil)。
func (s *Store) LoadProgression(ctx context.Context) (*ProgressionRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	var row model.ProgressionModel
	err := s.db.WithContext(ctx).Where("id = ?", 1).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progression: %w", err)
	}
	rec := ProgressionRecord{
		Level:           row.Level,
		Balance:         row.Balance,
		StartingBalance: row.StartingBalance,
		HighestBalance:  row.HighestBalance,
		TradesToday:     row.TradesToday,
		DailyLossUSD:    row.DailyLossUSD,
		DayKey:          row.DayKey,
	}
	if len(row.Unlocked) > 0 {
		if err := json.Unmarshal(row.Unlocked, &rec.Unlocked); err != nil {
			return nil, fmt.Errorf("decode unlocked set: %w", err)
		}
	}
	if len(row.History) > 0 {
		if err := json.Unmarshal(row.History, &rec.History); err != nil {
			return nil, fmt.Errorf("decode level history: %w", err)
		}
	}
	return &rec, nil
}

// --------------------- 决策日志 -------------------------

// InsertDecision 落库一条决策事件。
func (s *Store) InsertDecision(ctx context.Context, d types.Decision) error {
	if s == nil || s.db == nil {
		return ErrUnavailable
	}
	reasoning, err := json.Marshal(d.Reasoning)
	if err != nil {
		return err
	}
	row := model.DecisionLogModel{
		TraceID:    d.TraceID,
		Instrument: d.Instrument,
		Action:     string(d.Action),
		Direction:  string(d.Direction),
		SizeUSD:    d.SizeUSD,
		Confidence: d.Confidence,
		Pattern:    string(d.Pattern),
		Reasoning:  datatypes.JSON(reasoning),
		CreatedAt:  d.CreatedAt.Unix(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ListDecisions 倒序返回最近 limit 条决策。
func (s *Store) ListDecisions(ctx context.Context, limit int) ([]types.Decision, error) {
	if s == nil || s.db == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 {
		limit = 50
	}
	var rows []model.DecisionLogModel
	if err := s.db.WithContext(ctx).Order("created_at desc, id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	out := make([]types.Decision, 0, len(rows))
	for _, r := range rows {
		d := types.Decision{
			TraceID:    r.TraceID,
			Instrument: r.Instrument,
			Action:     types.Action(r.Action),
			Direction:  types.Direction(r.Direction),
			SizeUSD:    r.SizeUSD,
			Confidence: r.Confidence,
			Pattern:    types.Pattern(r.Pattern),
			CreatedAt:  time.Unix(r.CreatedAt, 0),
		}
		if len(r.Reasoning) > 0 {
			_ = json.Unmarshal(r.Reasoning, &d.Reasoning)
		}
		out = append(out, d)
	}
	return out, nil
}

// --------------------- 转换 -------------------------

func newTradeModel(t types.TradeRecord) model.TradeRecordModel {
	m := model.TradeRecordModel{
		ID:         t.ID,
		Timestamp:  t.Timestamp.Unix(),
		Instrument: t.Instrument,
		Pattern:    string(t.Pattern),
		Direction:  string(t.Direction),
		EntryPrice: t.EntryPrice,
		ReturnPct:  t.ReturnPct,
		Outcome:    string(t.Outcome),
		MoonPhase:  string(t.MoonPhase),
		Confidence: t.Confidence,
		SizeUSD:    t.SizeUSD,
	}
	if t.ExitPrice != nil {
		v := *t.ExitPrice
		m.ExitPrice = &v
	}
	if t.ExitTime != nil {
		ts := t.ExitTime.Unix()
		m.ExitTime = &ts
	}
	return m
}

func tradeFromModel(m model.TradeRecordModel) types.TradeRecord {
	t := types.TradeRecord{
		ID:         m.ID,
		Timestamp:  time.Unix(m.Timestamp, 0),
		Instrument: m.Instrument,
		Pattern:    types.Pattern(m.Pattern),
		Direction:  types.Direction(m.Direction),
		EntryPrice: m.EntryPrice,
		ReturnPct:  m.ReturnPct,
		Outcome:    types.Outcome(m.Outcome),
		MoonPhase:  types.MoonPhase(m.MoonPhase),
		Confidence: m.Confidence,
		SizeUSD:    m.SizeUSD,
	}
	if m.ExitPrice != nil {
		v := *m.ExitPrice
		t.ExitPrice = &v
	}
	if m.ExitTime != nil {
		ts := time.Unix(*m.ExitTime, 0)
		t.ExitTime = &ts
	}
	return t
}

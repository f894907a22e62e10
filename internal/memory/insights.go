package memory

import (
	"fmt"
	"sort"

	"rayven/internal/types"
)

// Insights 学习成果摘要，供观测接口展示。
type Insights struct {
	TotalTrades    int       `json:"total_trades"`
	WinRate        float64   `json:"win_rate"`
	TotalReturnPct float64   `json:"total_return_pct"`
	BestPatterns   []string  `json:"best_patterns"`
	AvoidPatterns  []string  `json:"avoid_patterns"`
	LunarEdges     []string  `json:"lunar_edges"`
	Lessons        []string  `json:"lessons"`
}

// Summarize 汇总当前统计，给出"学到了什么"。
func (m *Memory) Summarize() Insights {
	m.mu.RLock()
	pstats := make([]types.PatternStat, 0, len(m.patterns))
	for _, p := range m.patterns {
		pstats = append(pstats, p)
	}
	lstats := make([]types.LunarStat, 0, len(m.lunar))
	for _, l := range m.lunar {
		lstats = append(lstats, l)
	}
	m.mu.RUnlock()

	sort.Slice(pstats, func(i, j int) bool { return pstats[i].WinRate() > pstats[j].WinRate() })

	var out Insights
	var wins int
	for _, p := range pstats {
		out.TotalTrades += p.Trades
		wins += p.Wins
		out.TotalReturnPct += p.SumReturn
	}
	if out.TotalTrades > 0 {
		out.WinRate = float64(wins) / float64(out.TotalTrades)
	}

	for _, p := range pstats {
		if p.Trades < m.minTrust {
			continue
		}
		label := fmt.Sprintf("%s/%s", p.Pattern, p.Instrument)
		if p.WinRate() >= 0.6 && len(out.BestPatterns) < 3 {
			out.BestPatterns = append(out.BestPatterns, label)
			out.Lessons = append(out.Lessons, fmt.Sprintf("%s works well (%.0f%% win rate)", label, p.WinRate()*100))
		}
		if p.WinRate() < 0.4 && len(out.AvoidPatterns) < 3 {
			out.AvoidPatterns = append(out.AvoidPatterns, label)
			out.Lessons = append(out.Lessons, fmt.Sprintf("avoid %s (%.0f%% win rate)", label, p.WinRate()*100))
		}
	}

	for _, l := range lstats {
		if l.Trades < m.minTrust {
			continue
		}
		edge := m.LunarEdge(l.Phase)
		if edge > 0.5 || edge < -0.5 {
			out.LunarEdges = append(out.LunarEdges, fmt.Sprintf("%s: %+.1f%% edge", l.Phase, edge))
		}
	}
	sort.Strings(out.LunarEdges)

	if len(out.Lessons) == 0 {
		out.Lessons = append(out.Lessons, "keep trading to learn patterns")
	}
	return out
}

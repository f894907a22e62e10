package report

import (
	"fmt"
	"io"
	"math"
	"sort"

	"rayven/internal/types"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderPatternChart 输出形态胜率柱状图（HTML）。
// 只画有样本的形态，按胜率降序。
func RenderPatternChart(w io.Writer, stats []types.PatternStat) error {
	filtered := make([]types.PatternStat, 0, len(stats))
	for _, s := range stats {
		if s.Trades > 0 {
			filtered = append(filtered, s)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].WinRate() > filtered[j].WinRate() })

	labels := make([]string, 0, len(filtered))
	winRates := make([]opts.BarData, 0, len(filtered))
	avgReturns := make([]opts.BarData, 0, len(filtered))
	for _, s := range filtered {
		labels = append(labels, fmt.Sprintf("%s/%s", s.Pattern, s.Instrument))
		winRates = append(winRates, opts.BarData{Value: round2(s.WinRate() * 100)})
		avgReturns = append(avgReturns, opts.BarData{Value: round2(s.AvgReturn())})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Pattern performance",
			Subtitle: "win rate (%) and average return (%) per pattern/instrument",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("win rate %", winRates).
		AddSeries("avg return %", avgReturns)
	return bar.Render(w)
}

// RenderLunarChart 输出月相平均收益柱状图（HTML）。
func RenderLunarChart(w io.Writer, stats []types.LunarStat) error {
	order := types.AllMoonPhases()
	byPhase := make(map[types.MoonPhase]types.LunarStat, len(stats))
	for _, s := range stats {
		byPhase[s.Phase] = s
	}
	labels := make([]string, 0, len(order))
	avgReturns := make([]opts.BarData, 0, len(order))
	trades := make([]opts.BarData, 0, len(order))
	for _, p := range order {
		labels = append(labels, string(p))
		s := byPhase[p]
		avgReturns = append(avgReturns, opts.BarData{Value: round2(s.AvgReturn())})
		trades = append(trades, opts.BarData{Value: s.Trades})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Lunar performance",
			Subtitle: "average return (%) and trade count per moon phase",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).
		AddSeries("avg return %", avgReturns).
		AddSeries("trades", trades)
	return bar.Render(w)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

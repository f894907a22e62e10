package lunar

import (
	"math"
	"time"

	"rayven/internal/types"
)

// 平均朔望月长度（天）。
const CycleDays = 29.53059

// defaultReference 已知满月时刻，作为相位推算基准。
var defaultReference = time.Date(2025, 1, 13, 22, 27, 0, 0, time.UTC)

// Snapshot 某一时刻的月相快照。
type Snapshot struct {
	Phase         types.MoonPhase
	DayInCycle    int     // 0~29
	Illumination  float64 // 0~1
	IsFullMoon    bool
	IsNewMoon     bool
	DaysUntilFull int
	DaysUntilNew  int
}

// Tracker 依据基准满月与朔望月周期计算月相。
type Tracker struct {
	reference time.Time
	nowFn     func() time.Time
}

// NewTracker 构造 Tracker；reference 为零值时使用内置基准。
func NewTracker(reference time.Time) *Tracker {
	if reference.IsZero() {
		reference = defaultReference
	}
	return &Tracker{reference: reference, nowFn: time.Now}
}

// Current 返回当前月相。
func (t *Tracker) Current() Snapshot {
	return t.At(t.nowFn())
}

// At 计算给定时刻的月相。
func (t *Tracker) At(ts time.Time) Snapshot {
	daysSinceRef := ts.Sub(t.reference).Hours() / 24
	dayInCycle := math.Mod(daysSinceRef, CycleDays)
	if dayInCycle < 0 {
		dayInCycle += CycleDays
	}

	// 基准是满月：相位日从新月起算需要偏移半个周期。
	phaseDay := math.Mod(dayInCycle+CycleDays/2, CycleDays)

	// 照度在满月处为 1，新月处为 0，按余弦波近似。
	illum := (1 - math.Cos(2*math.Pi*phaseDay/CycleDays)) / 2
	illum = math.Max(0, math.Min(1, illum))

	half := CycleDays / 2
	var untilFull, untilNew float64
	if phaseDay < half {
		untilFull = half - phaseDay
	} else {
		untilFull = CycleDays - phaseDay + half
	}
	untilNew = CycleDays - phaseDay

	return Snapshot{
		Phase:         phaseForDay(phaseDay),
		DayInCycle:    int(phaseDay),
		Illumination:  illum,
		IsFullMoon:    phaseDay >= 13.5 && phaseDay <= 15.5,
		IsNewMoon:     phaseDay <= 1.5 || phaseDay >= 28.0,
		DaysUntilFull: int(untilFull),
		DaysUntilNew:  int(untilNew),
	}
}

// phaseForDay 将相位日（自新月起）映射到八个月相。
func phaseForDay(day float64) types.MoonPhase {
	switch {
	case day <= 1.84:
		return types.MoonNewMoon
	case day <= 5.53:
		return types.MoonWaxingCrescent
	case day <= 9.23:
		return types.MoonFirstQuarter
	case day <= 12.91:
		return types.MoonWaxingGibbous
	case day <= 16.61:
		return types.MoonFullMoon
	case day <= 20.30:
		return types.MoonWaningGibbous
	case day <= 23.99:
		return types.MoonLastQuarter
	default:
		return types.MoonWaningCrescent
	}
}

// Description 各月相的占星式描述，仅用于展示。
func Description(p types.MoonPhase) string {
	switch p {
	case types.MoonNewMoon:
		return "New beginnings, fresh starts"
	case types.MoonWaxingCrescent:
		return "Growth phase, momentum building"
	case types.MoonFirstQuarter:
		return "Action phase, decisions and challenges"
	case types.MoonWaxingGibbous:
		return "Refinement phase, nearing peak"
	case types.MoonFullMoon:
		return "Peak energy, culmination"
	case types.MoonWaningGibbous:
		return "Reflection phase"
	case types.MoonLastQuarter:
		return "Release phase, letting go"
	case types.MoonWaningCrescent:
		return "Rest phase, contemplation"
	default:
		return "Unknown phase"
	}
}

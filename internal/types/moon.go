package types

// MoonPhase 八个月相标签。
type MoonPhase string

const (
	MoonNewMoon        MoonPhase = "new_moon"
	MoonWaxingCrescent MoonPhase = "waxing_crescent"
	MoonFirstQuarter   MoonPhase = "first_quarter"
	MoonWaxingGibbous  MoonPhase = "waxing_gibbous"
	MoonFullMoon       MoonPhase = "full_moon"
	MoonWaningGibbous  MoonPhase = "waning_gibbous"
	MoonLastQuarter    MoonPhase = "last_quarter"
	MoonWaningCrescent MoonPhase = "waning_crescent"
)

// AllMoonPhases 月相全集。
func AllMoonPhases() []MoonPhase {
	return []MoonPhase{
		MoonNewMoon, MoonWaxingCrescent, MoonFirstQuarter, MoonWaxingGibbous,
		MoonFullMoon, MoonWaningGibbous, MoonLastQuarter, MoonWaningCrescent,
	}
}

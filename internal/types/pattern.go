package types

// Pattern 已知交易形态的封闭枚举。
// 新增形态需要同时注册检测函数，见 internal/pattern。
type Pattern string

const (
	PatternSupportBounce       Pattern = "support_bounce"
	PatternResistanceRejection Pattern = "resistance_rejection"
	PatternMeanReversion       Pattern = "mean_reversion"
	PatternTrendFollow         Pattern = "trend_follow"
	PatternBreakout            Pattern = "breakout"
	PatternRSIDivergence       Pattern = "rsi_divergence"
)

// AllPatterns 枚举全集，测试用它校验注册表完备性。
func AllPatterns() []Pattern {
	return []Pattern{
		PatternSupportBounce,
		PatternResistanceRejection,
		PatternMeanReversion,
		PatternTrendFollow,
		PatternBreakout,
		PatternRSIDivergence,
	}
}

// Valid 判断是否属于封闭枚举。
func (p Pattern) Valid() bool {
	switch p {
	case PatternSupportBounce, PatternResistanceRejection, PatternMeanReversion,
		PatternTrendFollow, PatternBreakout, PatternRSIDivergence:
		return true
	}
	return false
}

package pattern

import (
	"fmt"
	"sync"

	"rayven/internal/types"
)

// Template 单个形态的可调参数：先验置信度与风险档。
// 检测阈值写死在检测函数里，先验允许通过模板文件热更。
type Template struct {
	Prior   float64        `yaml:"prior" json:"prior"`
	Tier    types.RiskTier `yaml:"tier" json:"tier"`
	Enabled *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

func (t Template) enabled() bool { return t.Enabled == nil || *t.Enabled }

// DetectorFunc 纯检测函数：输入快照与模板，产出 0~n 个候选。
type DetectorFunc func(b types.SignalBundle, tpl Template) []types.Candidate

// Library 形态库：封闭枚举中的每个形态在启动时绑定一个检测函数。
// Detect 是纯函数式读取，模板热更走写锁。
type Library struct {
	mu        sync.RWMutex
	detectors map[types.Pattern]DetectorFunc
	templates map[types.Pattern]Template
}

// NewLibrary 注册全部内置检测器与默认模板。
func NewLibrary() *Library {
	l := &Library{
		detectors: make(map[types.Pattern]DetectorFunc),
		templates: DefaultTemplates(),
	}
	l.register(types.PatternSupportBounce, detectSupportBounce)
	l.register(types.PatternResistanceRejection, detectResistanceRejection)
	l.register(types.PatternMeanReversion, detectMeanReversion)
	l.register(types.PatternTrendFollow, detectTrendFollow)
	l.register(types.PatternBreakout, detectBreakout)
	l.register(types.PatternRSIDivergence, detectRSIDivergence)
	return l
}

func (l *Library) register(p types.Pattern, fn DetectorFunc) {
	if !p.Valid() {
		panic(fmt.Sprintf("pattern %q 不在封闭枚举内", p))
	}
	l.detectors[p] = fn
}

// Registered 返回已绑定检测器的形态集合（测试校验完备性用）。
func (l *Library) Registered() []types.Pattern {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Pattern, 0, len(l.detectors))
	for _, p := range types.AllPatterns() {
		if _, ok := l.detectors[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// ApplyTemplates 覆盖形态模板（registry 热更回调）。未知形态被忽略。
func (l *Library) ApplyTemplates(tpls map[types.Pattern]Template) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for p, tpl := range tpls {
		if !p.Valid() {
			continue
		}
		if tpl.Prior <= 0 || tpl.Prior > 1 {
			continue
		}
		l.templates[p] = tpl
	}
}

// Template 返回某形态当前生效的模板。
func (l *Library) Template(p types.Pattern) Template {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.templates[p]
}

// Detect 对快照跑全部检测器，按枚举固定顺序输出，保证确定性。
// 零候选是常态（没有可交易形态），不是错误。
func (l *Library) Detect(b types.SignalBundle) []types.Candidate {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []types.Candidate
	for _, p := range types.AllPatterns() {
		fn, ok := l.detectors[p]
		if !ok {
			continue
		}
		tpl := l.templates[p]
		if !tpl.enabled() {
			continue
		}
		for _, c := range fn(b, tpl) {
			c.Pattern = p
			c.Tier = tpl.Tier
			c.Prior = clip01(c.Prior)
			c.Bundle = b
			out = append(out, c)
		}
	}
	return out
}

// DefaultTemplates 内置先验，可被模板文件覆盖。
func DefaultTemplates() map[types.Pattern]Template {
	return map[types.Pattern]Template{
		types.PatternSupportBounce:       {Prior: 0.65, Tier: types.RiskTierMedium},
		types.PatternResistanceRejection: {Prior: 0.65, Tier: types.RiskTierMedium},
		types.PatternMeanReversion:       {Prior: 0.62, Tier: types.RiskTierHigh},
		types.PatternTrendFollow:         {Prior: 0.63, Tier: types.RiskTierLow},
		types.PatternBreakout:            {Prior: 0.60, Tier: types.RiskTierHigh},
		types.PatternRSIDivergence:       {Prior: 0.60, Tier: types.RiskTierMedium},
	}
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

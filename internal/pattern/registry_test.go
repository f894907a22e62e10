package pattern

import (
	"os"
	"path/filepath"
	"testing"

	"rayven/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplates(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistryLoadsValidFile(t *testing.T) {
	path := writeTemplates(t, `
patterns:
  support_bounce:
    prior: 0.7
    tier: low
  breakout:
    prior: 0.55
    tier: high
    enabled: false
`)
	r, err := NewRegistry(path)
	require.NoError(t, err)

	tpls := r.Templates()
	require.Len(t, tpls, 2)
	assert.InDelta(t, 0.7, tpls[types.PatternSupportBounce].Prior, 1e-9)
	assert.Equal(t, types.RiskTierLow, tpls[types.PatternSupportBounce].Tier)
	require.NotNil(t, tpls[types.PatternBreakout].Enabled)
	assert.False(t, *tpls[types.PatternBreakout].Enabled)
}

func TestRegistrySkipsUnknownPatterns(t *testing.T) {
	path := writeTemplates(t, `
patterns:
  support_bounce:
    prior: 0.7
    tier: low
  head_and_shoulders:
    prior: 0.6
    tier: medium
`)
	r, err := NewRegistry(path)
	require.NoError(t, err)

	tpls := r.Templates()
	assert.Len(t, tpls, 1, "unknown pattern names are skipped, not fatal")
	_, ok := tpls[types.Pattern("head_and_shoulders")]
	assert.False(t, ok)
}

func TestRegistryRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"prior out of range": `
patterns:
  support_bounce:
    prior: 1.5
    tier: low
`,
		"bad tier": `
patterns:
  support_bounce:
    prior: 0.7
    tier: extreme
`,
		"missing prior": `
patterns:
  support_bounce:
    tier: low
`,
		"missing patterns key": `
templates: {}
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeTemplates(t, content)
			_, err := NewRegistry(path)
			assert.Error(t, err)
		})
	}
}

func TestRegistryRequiresPath(t *testing.T) {
	_, err := NewRegistry("  ")
	assert.Error(t, err)
}

func TestRegistryMissingFileErrors(t *testing.T) {
	_, err := NewRegistry(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

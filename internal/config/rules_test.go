package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func TestLoadRules_MissingFileUsesDefaults(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), rules)
}

func TestLoadRules_OverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
defaults:
  remove_urls_emails: true
  target_tokens: 120
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)

	assert.True(t, rules.RemoveURLsEmails)
	assert.True(t, rules.RemoveExtraWhitespace, "unset fields keep defaults")
	assert.Equal(t, 120, rules.TargetTokens)
	assert.Equal(t, DefaultRules().OverlapTokens, rules.OverlapTokens)
}

func TestLoadRules_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("defaults: [unclosed"), 0o644))

	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestApplyRuleDefaults(t *testing.T) {
	r := models.ProcessingRules{TargetTokens: 0, OverlapTokens: 500, MaxFragmentLen: -1}
	ApplyRuleDefaults(&r)

	assert.Equal(t, DefaultRules().TargetTokens, r.TargetTokens)
	assert.Less(t, r.OverlapTokens, r.TargetTokens)
	assert.Equal(t, DefaultRules().MaxFragmentLen, r.MaxFragmentLen)
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("TEST_LIST", " text/plain, ,application/pdf ")
	assert.Equal(t, []string{"text/plain", "application/pdf"}, getEnvList("TEST_LIST", nil))

	t.Setenv("TEST_LIST", " , ")
	assert.Equal(t, []string{"x"}, getEnvList("TEST_LIST", []string{"x"}))
}

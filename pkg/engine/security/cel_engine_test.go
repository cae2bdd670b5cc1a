package security

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackgraft/stackgraft/pkg/config"
)

func newTestCEL(t *testing.T) *CELEngine {
	t.Helper()
	eng, err := NewCELEngine(slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return eng
}

func TestCELEvaluateMatchesInOrder(t *testing.T) {
	eng := newTestCEL(t)
	require.NoError(t, eng.Compile([]DynamicRule{
		{ID: "no-passrole", Severity: "HIGH", Condition: "'iam:PassRole' in actions", Message: "role passes roles"},
		{ID: "untagged", Condition: "!('Project' in tags)"},
	}))

	role := roleFrom(t, cleanRole, "RuntimeRole")
	vars := ContextFor(role)
	vars["actions"] = []string{"iam:PassRole"}
	vars["tags"] = map[string]string{}

	issues := eng.Evaluate(vars)
	require.Len(t, issues, 2)
	assert.Equal(t, SeverityHigh, issues[0].Severity)
	assert.Equal(t, "role passes roles", issues[0].Message)
	assert.Equal(t, CategoryDynamicRule, issues[0].Category)
	assert.Equal(t, SeverityMedium, issues[1].Severity, "severity defaults to MEDIUM")
	assert.Contains(t, issues[1].Message, "untagged")
}

func TestCELCompileRejectsBadExpression(t *testing.T) {
	eng := newTestCEL(t)
	err := eng.Compile([]DynamicRule{{ID: "broken", Condition: "actions +"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestCELEvaluationErrorSkipsRule(t *testing.T) {
	eng := newTestCEL(t)
	// References a map key access on a list, fails only at eval time
	// when the variable is absent.
	require.NoError(t, eng.Compile([]DynamicRule{
		{ID: "needs-var", Condition: "'x' in actions"},
	}))

	issues := eng.Evaluate(map[string]any{"name": "R"})
	assert.Empty(t, issues)
}

func TestLoadRulesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`rules:
  - id: wide-trust
    severity: HIGH
    category: OVERPRIVILEGED
    condition: "'*' in principals"
    message: trust policy is open to any principal
  - id: managed-policy
    condition: "size(managed) > 0"
`), 0o644))

	eng := newTestCEL(t)
	require.NoError(t, eng.LoadRulesFile(path))
	require.Equal(t, 2, eng.Len())

	issues := eng.Evaluate(map[string]any{
		"name":       "OpenRole",
		"principals": []string{"*"},
		"managed":    []string{},
	})
	require.Len(t, issues, 1)
	assert.Equal(t, CategoryOverprivileged, issues[0].Category)
	assert.Equal(t, "OpenRole", issues[0].Resource)
}

func TestLoadRulesFileMissingIsNoop(t *testing.T) {
	eng := newTestCEL(t)
	require.NoError(t, eng.LoadRulesFile(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Equal(t, 0, eng.Len())
}

func TestContextForFlattensRole(t *testing.T) {
	role := roleFrom(t, cleanRole, "RuntimeRole")

	vars := ContextFor(role)
	assert.Equal(t, "RuntimeRole", vars["name"])
	assert.Contains(t, vars["actions"], config.InvokeAction)
	assert.Contains(t, vars["resources"], config.RuntimeResourcePattern)
	assert.Contains(t, vars["principals"], config.RuntimeServicePrincipal)
	tags, ok := vars["tags"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "stackgraft", tags["Project"])
	assert.Equal(t, []string{}, vars["managed"])
}

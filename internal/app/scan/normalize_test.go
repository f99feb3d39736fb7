package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/api/internal/infra/semgrep"
	"github.com/scanforge/api/pkg/domain/finding"
	"github.com/scanforge/api/pkg/domain/shared"
)

func rawFinding(checkID, severity string) semgrep.RawFinding {
	r := semgrep.RawFinding{CheckID: checkID, Path: "src/app.go"}
	r.Start.Line = 3
	r.End.Line = 4
	r.Extra.Severity = severity
	r.Extra.Message = "test message"
	r.Extra.Lines = "x := db.Query(userInput)\n"
	return r
}

func TestSeverityFor_ToolMapping(t *testing.T) {
	n, err := NewNormalizer("")
	require.NoError(t, err)

	tests := []struct {
		tool string
		want finding.Severity
	}{
		{"ERROR", finding.SeverityHigh},
		{"WARNING", finding.SeverityMedium},
		{"INFO", finding.SeverityLow},
		{"", finding.SeverityLow},
	}
	for _, tt := range tests {
		r := rawFinding("rules.generic", tt.tool)
		assert.Equal(t, tt.want, n.severityFor(&r), "tool=%q", tt.tool)
	}
}

func TestSeverityFor_MetadataWins(t *testing.T) {
	n, err := NewNormalizer("")
	require.NoError(t, err)

	r := rawFinding("rules.generic", "WARNING")
	r.Extra.Metadata.Severity = "critical"
	assert.Equal(t, finding.SeverityCritical, n.severityFor(&r))

	// Unknown metadata severity falls through to the tool mapping.
	r.Extra.Metadata.Severity = "catastrophic"
	assert.Equal(t, finding.SeverityMedium, n.severityFor(&r))
}

func TestSeverityFor_ImpactEscalation(t *testing.T) {
	n, err := NewNormalizer("")
	require.NoError(t, err)

	r := rawFinding("rules.generic", "ERROR")
	r.Extra.Metadata.Impact = "HIGH"
	assert.Equal(t, finding.SeverityCritical, n.severityFor(&r))

	r = rawFinding("rules.generic", "ERROR")
	r.Extra.Metadata.Likelihood = "high"
	assert.Equal(t, finding.SeverityCritical, n.severityFor(&r))

	// Escalation only applies to HIGH; a WARNING stays MEDIUM.
	r = rawFinding("rules.generic", "WARNING")
	r.Extra.Metadata.Impact = "HIGH"
	assert.Equal(t, finding.SeverityMedium, n.severityFor(&r))
}

func TestSeverityFor_OverridesLongestPrefixWins(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "severity.yaml")
	require.NoError(t, os.WriteFile(rules, []byte(`rules:
  - prefix: go.lang
    severity: low
  - prefix: go.lang.security
    severity: critical
`), 0o644))

	n, err := NewNormalizer(rules)
	require.NoError(t, err)

	r := rawFinding("go.lang.security.sqli", "WARNING")
	assert.Equal(t, finding.SeverityCritical, n.severityFor(&r))

	r = rawFinding("go.lang.style.naming", "ERROR")
	assert.Equal(t, finding.SeverityLow, n.severityFor(&r))

	r = rawFinding("python.flask", "ERROR")
	assert.Equal(t, finding.SeverityHigh, n.severityFor(&r))
}

func TestNewNormalizer_RejectsBadSeverity(t *testing.T) {
	rules := filepath.Join(t.TempDir(), "severity.yaml")
	require.NoError(t, os.WriteFile(rules, []byte(`rules:
  - prefix: go
    severity: extreme
`), 0o644))

	_, err := NewNormalizer(rules)
	assert.Error(t, err)
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		checkID  string
		metadata string
		want     string
	}{
		{"go.lang.security.sql-injection.gorm", "", "sql-injection"},
		{"javascript.react.xss.dangerously-set", "", "xss"},
		{"generic.secrets.hardcoded-password", "", "secrets"},
		{"go.lang.weak-hash.md5", "", "crypto"},
		{"rules.something.else", "", "security"},
		{"rules.anything", "Injection", "injection"},
	}
	for _, tt := range tests {
		r := rawFinding(tt.checkID, "ERROR")
		r.Extra.Metadata.Category = tt.metadata
		assert.Equal(t, tt.want, categoryFor(&r), "checkID=%s", tt.checkID)
	}
}

func TestOwaspFor(t *testing.T) {
	// Metadata tags pass through deduplicated.
	r := rawFinding("rules.sql-injection", "ERROR")
	r.Extra.Metadata.OWASP = semgrep.StringList{"A03:2021 - Injection", "A03:2021 - Injection"}
	assert.Equal(t, []string{"A03:2021 - Injection"}, owaspFor(&r))

	// Category fallback when metadata is empty.
	r = rawFinding("rules.sql-injection-raw", "ERROR")
	assert.Equal(t, []string{"A03:2021 - Injection"}, owaspFor(&r))

	// Unknown category yields no tags.
	r = rawFinding("rules.misc", "ERROR")
	assert.Empty(t, owaspFor(&r))
}

func TestDedupe(t *testing.T) {
	assert.Nil(t, dedupe(nil))
	assert.Equal(t, []string{"CWE-89", "CWE-79"}, dedupe([]string{"CWE-89", " CWE-89 ", "CWE-79", ""}))
}

func TestNormalize_RelativizesPaths(t *testing.T) {
	n, err := NewNormalizer("")
	require.NoError(t, err)

	dir := t.TempDir()
	r := rawFinding("rules.generic", "ERROR")
	r.Path = filepath.Join(dir, "src", "app.go")

	out := n.Normalize(shared.NewID(), dir, []semgrep.RawFinding{r})
	require.Len(t, out, 1)
	assert.Equal(t, filepath.Join("src", "app.go"), out[0].FilePath)
	assert.False(t, filepath.IsAbs(out[0].FilePath))
}

func TestNormalize_Deterministic(t *testing.T) {
	n, err := NewNormalizer("")
	require.NoError(t, err)
	scanID := shared.NewID()

	raw := []semgrep.RawFinding{
		rawFinding("rules.a", "ERROR"),
		rawFinding("rules.b", "WARNING"),
	}

	first := n.Normalize(scanID, "", raw)
	second := n.Normalize(scanID, "", raw)
	require.Len(t, first, 2)
	for i := range first {
		assert.Equal(t, first[i].RuleID, second[i].RuleID)
		assert.Equal(t, first[i].Severity, second[i].Severity)
		assert.Equal(t, first[i].Category, second[i].Category)
		assert.Equal(t, first[i].FilePath, second[i].FilePath)
	}
}

func TestExcerptFor(t *testing.T) {
	// Inline lines win.
	r := rawFinding("rules.a", "ERROR")
	assert.Equal(t, "x := db.Query(userInput)", excerptFor("", &r))

	// Fallback reads the file range.
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "app.go"),
		[]byte("line1\nline2\nline3\nline4\nline5\n"), 0o644))

	r = rawFinding("rules.a", "ERROR")
	r.Extra.Lines = ""
	assert.Equal(t, "line3\nline4", excerptFor(dir, &r))

	// Missing file yields the placeholder.
	r.Path = "src/gone.go"
	assert.Equal(t, "// source not available", excerptFor(dir, &r))
}

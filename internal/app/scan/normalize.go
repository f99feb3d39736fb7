package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scanforge/api/internal/infra/semgrep"
	"github.com/scanforge/api/pkg/domain/finding"
	"github.com/scanforge/api/pkg/domain/shared"
)

// Normalizer converts raw analyzer findings into canonical findings with
// deterministic severity, category and taxonomy mapping.
type Normalizer struct {
	overrides []severityOverride
}

// severityOverride maps a rule-id prefix to a forced severity.
type severityOverride struct {
	Prefix   string
	Severity finding.Severity
}

// severityRulesFile is the YAML shape of the optional overrides file.
type severityRulesFile struct {
	Rules []struct {
		Prefix   string `yaml:"prefix"`
		Severity string `yaml:"severity"`
	} `yaml:"rules"`
}

// NewNormalizer creates a Normalizer, loading severity overrides from
// rulesPath when non-empty.
func NewNormalizer(rulesPath string) (*Normalizer, error) {
	n := &Normalizer{}
	if rulesPath == "" {
		return n, nil
	}

	data, err := os.ReadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read severity rules: %w", err)
	}
	var file severityRulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse severity rules: %w", err)
	}
	for _, r := range file.Rules {
		sev := finding.Severity(strings.ToUpper(r.Severity))
		if !sev.IsValid() {
			return nil, fmt.Errorf("invalid severity %q for prefix %q", r.Severity, r.Prefix)
		}
		n.overrides = append(n.overrides, severityOverride{Prefix: r.Prefix, Severity: sev})
	}
	// Longest prefix wins when several match.
	sort.Slice(n.overrides, func(i, j int) bool {
		return len(n.overrides[i].Prefix) > len(n.overrides[j].Prefix)
	})
	return n, nil
}

// Normalize converts the raw result set into findings for scanID. Paths
// are relativized against targetDir; absolute host paths never leave this
// function.
func (n *Normalizer) Normalize(scanID shared.ID, targetDir string, raw []semgrep.RawFinding) []*finding.Finding {
	now := time.Now()
	findings := make([]*finding.Finding, 0, len(raw))
	for i := range raw {
		r := &raw[i]
		f := &finding.Finding{
			ID:         shared.NewID(),
			ScanID:     scanID,
			RuleID:     r.CheckID,
			Severity:   n.severityFor(r),
			Category:   categoryFor(r),
			FilePath:   relativePath(targetDir, r.Path),
			StartLine:  r.Start.Line,
			EndLine:    r.End.Line,
			Message:    r.Extra.Message,
			Excerpt:    excerptFor(targetDir, r),
			CWE:        dedupe(r.Extra.Metadata.CWE),
			OWASP:      owaspFor(r),
			Confidence: strings.ToUpper(r.Extra.Metadata.Confidence),
			CreatedAt:  now,
		}
		findings = append(findings, f)
	}
	return findings
}

// severityFor resolves the canonical severity. Precedence: configured
// override, explicit metadata severity, tool severity with impact and
// likelihood escalation.
func (n *Normalizer) severityFor(r *semgrep.RawFinding) finding.Severity {
	for _, o := range n.overrides {
		if strings.HasPrefix(r.CheckID, o.Prefix) {
			return o.Severity
		}
	}

	if meta := strings.ToUpper(r.Extra.Metadata.Severity); meta != "" {
		if sev := finding.Severity(meta); sev.IsValid() {
			return sev
		}
	}

	var sev finding.Severity
	switch strings.ToUpper(r.Extra.Severity) {
	case "ERROR":
		sev = finding.SeverityHigh
	case "WARNING":
		sev = finding.SeverityMedium
	default:
		sev = finding.SeverityLow
	}

	// High blast radius escalates a tool-reported HIGH to CRITICAL.
	if sev == finding.SeverityHigh {
		impact := strings.ToUpper(r.Extra.Metadata.Impact)
		likelihood := strings.ToUpper(r.Extra.Metadata.Likelihood)
		if impact == "HIGH" || likelihood == "HIGH" {
			sev = finding.SeverityCritical
		}
	}
	return sev
}

// categoryKeywords maps rule-id fragments to categories, checked in order
// so the more specific names win.
var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"sql", "sql-injection"},
	{"xss", "xss"},
	{"path-traversal", "path-traversal"},
	{"traversal", "path-traversal"},
	{"deserial", "deserialization"},
	{"ssrf", "ssrf"},
	{"csrf", "csrf"},
	{"cors", "cors"},
	{"secret", "secrets"},
	{"hardcoded", "secrets"},
	{"crypto", "crypto"},
	{"hash", "crypto"},
	{"auth", "auth"},
}

func categoryFor(r *semgrep.RawFinding) string {
	if c := strings.ToLower(r.Extra.Metadata.Category); c != "" {
		return c
	}
	ruleID := strings.ToLower(r.CheckID)
	for _, kc := range categoryKeywords {
		if strings.Contains(ruleID, kc.keyword) {
			return kc.category
		}
	}
	return "security"
}

// categoryOWASP supplies an OWASP tag when rule metadata carries none.
var categoryOWASP = map[string]string{
	"sql-injection":   "A03:2021 - Injection",
	"xss":             "A03:2021 - Injection",
	"path-traversal":  "A01:2021 - Broken Access Control",
	"deserialization": "A08:2021 - Software and Data Integrity Failures",
	"ssrf":            "A10:2021 - Server-Side Request Forgery",
	"secrets":         "A07:2021 - Identification and Authentication Failures",
	"crypto":          "A02:2021 - Cryptographic Failures",
	"auth":            "A07:2021 - Identification and Authentication Failures",
}

func owaspFor(r *semgrep.RawFinding) []string {
	tags := []string(r.Extra.Metadata.OWASP)
	if len(tags) == 0 {
		if tag, ok := categoryOWASP[categoryFor(r)]; ok {
			tags = []string{tag}
		}
	}
	return dedupe(tags)
}

// dedupe removes duplicates preserving first-seen order.
func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// relativePath strips the target directory prefix. The analyzer usually
// reports paths under targetDir already; anything else keeps only what is
// relative so host layout never leaks into stored findings.
func relativePath(targetDir, path string) string {
	if targetDir != "" {
		if rel, err := filepath.Rel(targetDir, path); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return strings.TrimPrefix(filepath.ToSlash(path), "/")
}

const maxExcerptLines = 10

// excerptFor returns the matched source lines, falling back to reading the
// line range from the target file. A read failure yields a placeholder so
// the finding is still presentable.
func excerptFor(targetDir string, r *semgrep.RawFinding) string {
	if lines := strings.TrimRight(r.Extra.Lines, "\n"); lines != "" {
		return lines
	}

	full := r.Path
	if !filepath.IsAbs(full) {
		full = filepath.Join(targetDir, r.Path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "// source not available"
	}

	lines := strings.Split(string(data), "\n")
	start := r.Start.Line
	end := r.End.Line
	if start < 1 || start > len(lines) {
		return "// source not available"
	}
	if end < start {
		end = start
	}
	if end > len(lines) {
		end = len(lines)
	}
	if end-start+1 > maxExcerptLines {
		end = start + maxExcerptLines - 1
	}
	return strings.Join(lines[start-1:end], "\n")
}

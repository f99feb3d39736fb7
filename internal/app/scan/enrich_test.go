package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanforge/api/internal/infra/llm"
	"github.com/scanforge/api/pkg/domain/finding"
	"github.com/scanforge/api/pkg/logger"
)

// fakeProvider returns a canned completion or error.
type fakeProvider struct {
	content string
	err     error
	prompts []string
}

func (p *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.prompts = append(p.prompts, req.UserPrompt)
	if p.err != nil {
		return nil, p.err
	}
	return &llm.CompletionResponse{Content: p.content}, nil
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-1" }

func findingWith(rule string, sev finding.Severity) *finding.Finding {
	return &finding.Finding{RuleID: rule, Severity: sev, FilePath: "src/app.go", StartLine: 1}
}

func TestEnrich_NilProviderDisabled(t *testing.T) {
	e := NewEnricher(nil, 10, logger.NewNop())
	out := e.Enrich(context.Background(), []*finding.Finding{findingWith("r", finding.SeverityHigh)})
	assert.Nil(t, out)
}

func TestEnrich_ParsesResponse(t *testing.T) {
	p := &fakeProvider{content: `[{"rule_id":"rules.sqli","explanation":"tainted input reaches the query","risk":"data exfiltration","remediation":"use prepared statements","business_impact":"customer data exposure"}]`}
	e := NewEnricher(p, 10, logger.NewNop())

	out := e.Enrich(context.Background(), []*finding.Finding{findingWith("rules.sqli", finding.SeverityCritical)})
	require.Len(t, out, 1)
	assert.Equal(t, "rules.sqli", out[0].RuleID)
	assert.Equal(t, "use prepared statements", out[0].Remediation)
	assert.Equal(t, "customer data exposure", out[0].BusinessImpact)
}

func TestEnrich_ProviderFailureIsSoft(t *testing.T) {
	p := &fakeProvider{err: errors.New("rate limited")}
	e := NewEnricher(p, 10, logger.NewNop())

	out := e.Enrich(context.Background(), []*finding.Finding{findingWith("r", finding.SeverityHigh)})
	assert.Nil(t, out)
}

func TestEnrich_UnparseableResponseIsSoft(t *testing.T) {
	p := &fakeProvider{content: "I cannot help with that."}
	e := NewEnricher(p, 10, logger.NewNop())

	out := e.Enrich(context.Background(), []*finding.Finding{findingWith("r", finding.SeverityHigh)})
	assert.Nil(t, out)
}

func TestEnrich_CapsAtMaxFindings(t *testing.T) {
	p := &fakeProvider{content: `[]`}
	e := NewEnricher(p, 2, logger.NewNop())

	findings := []*finding.Finding{
		findingWith("low-1", finding.SeverityLow),
		findingWith("crit", finding.SeverityCritical),
		findingWith("low-2", finding.SeverityLow),
		findingWith("high", finding.SeverityHigh),
	}
	e.Enrich(context.Background(), findings)

	require.Len(t, p.prompts, 1)
	// Only the two most severe findings reach the prompt.
	assert.Contains(t, p.prompts[0], "crit")
	assert.Contains(t, p.prompts[0], "high")
	assert.NotContains(t, p.prompts[0], "low-1")
}

func TestTopBySeverity_StableWithinRank(t *testing.T) {
	a := findingWith("a", finding.SeverityHigh)
	b := findingWith("b", finding.SeverityHigh)
	c := findingWith("c", finding.SeverityCritical)

	top := topBySeverity([]*finding.Finding{a, b, c}, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "c", top[0].RuleID)
	assert.Equal(t, "a", top[1].RuleID)
	assert.Equal(t, "b", top[2].RuleID)
}

func TestParseEnrichments_CodeFences(t *testing.T) {
	out, err := parseEnrichments("```json\n[{\"rule_id\":\"r\"}]\n```")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "r", out[0].RuleID)

	out, err = parseEnrichments("[{\"rule_id\":\"r\"}]")
	require.NoError(t, err)
	assert.Len(t, out, 1)

	_, err = parseEnrichments("not json")
	assert.Error(t, err)
}

package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/scanforge/api/internal/infra/llm"
	"github.com/scanforge/api/internal/metrics"
	"github.com/scanforge/api/pkg/domain/finding"
	"github.com/scanforge/api/pkg/logger"
)

// Enrichment is the AI-generated remediation guidance for one finding.
type Enrichment struct {
	RuleID         string `json:"rule_id"`
	Explanation    string `json:"explanation"`
	Risk           string `json:"risk"`
	Remediation    string `json:"remediation"`
	BusinessImpact string `json:"business_impact"`
}

// Enricher asks the configured LLM for remediation guidance on the most
// severe findings. Enrichment is strictly best-effort: any failure returns
// an empty result and the scan completes without guidance.
type Enricher struct {
	provider    llm.Provider
	maxFindings int
	log         *logger.Logger
}

// NewEnricher creates an Enricher. A nil provider disables enrichment.
func NewEnricher(provider llm.Provider, maxFindings int, log *logger.Logger) *Enricher {
	if maxFindings <= 0 {
		maxFindings = 10
	}
	return &Enricher{provider: provider, maxFindings: maxFindings, log: log}
}

const enrichSystemPrompt = `You are a security engineer reviewing static analysis findings.
For each finding, explain the vulnerability briefly and give a concrete remediation.
Respond with a JSON array of objects:
{"rule_id", "explanation", "risk", "remediation", "business_impact"}.
Respond with JSON only, no prose.`

// Enrich returns guidance for up to maxFindings findings, most severe
// first. It never returns an error to the caller.
func (e *Enricher) Enrich(ctx context.Context, findings []*finding.Finding) []Enrichment {
	if e.provider == nil || len(findings) == 0 {
		return nil
	}

	top := topBySeverity(findings, e.maxFindings)

	var sb strings.Builder
	for i, f := range top {
		fmt.Fprintf(&sb, "%d. rule=%s severity=%s file=%s:%d message=%s\n",
			i+1, f.RuleID, f.Severity, f.FilePath, f.StartLine, f.Message)
	}

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: enrichSystemPrompt,
		UserPrompt:   sb.String(),
		MaxTokens:    3000,
	})
	if err != nil {
		e.log.Warn("enrichment call failed, continuing without guidance", "error", err)
		metrics.EnrichmentFailuresTotal.Inc()
		return nil
	}

	enrichments, err := parseEnrichments(resp.Content)
	if err != nil {
		e.log.Warn("enrichment response unparseable, continuing without guidance", "error", err)
		metrics.EnrichmentFailuresTotal.Inc()
		return nil
	}
	return enrichments
}

// topBySeverity returns up to n findings ordered most severe first. The
// input slice is not mutated.
func topBySeverity(findings []*finding.Finding, n int) []*finding.Finding {
	sorted := make([]*finding.Finding, len(findings))
	copy(sorted, findings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// parseEnrichments decodes the model's JSON array, tolerating markdown
// code fences around it.
func parseEnrichments(content string) ([]Enrichment, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	var out []Enrichment
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("failed to decode enrichment array: %w", err)
	}
	return out, nil
}

package semgrep

import "encoding/json"

// Result is the top-level semgrep --json output.
type Result struct {
	Results []RawFinding `json:"results"`
	Errors  []RawError   `json:"errors,omitempty"`
	Paths   *Paths       `json:"paths,omitempty"`
}

// Paths lists what semgrep actually looked at.
type Paths struct {
	Scanned []string `json:"scanned,omitempty"`
	Skipped []any    `json:"skipped,omitempty"`
}

// RawError is a non-fatal analyzer error embedded in the output.
type RawError struct {
	Type    json.RawMessage `json:"type,omitempty"`
	Level   string          `json:"level,omitempty"`
	Message string          `json:"message,omitempty"`
	Path    string          `json:"path,omitempty"`
}

// RawFinding is one unnormalized match.
type RawFinding struct {
	CheckID string   `json:"check_id"`
	Path    string   `json:"path"`
	Start   Position `json:"start"`
	End     Position `json:"end"`
	Extra   Extra    `json:"extra"`
}

// Position is a line/column location.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"col"`
	Offset int `json:"offset,omitempty"`
}

// Extra holds the match payload: severity, message, the matched source lines
// and free-form rule metadata.
type Extra struct {
	Severity    string   `json:"severity,omitempty"`
	Message     string   `json:"message,omitempty"`
	Lines       string   `json:"lines,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

// Metadata is the rule-author-supplied metadata block. Fields that matter
// for normalization are typed; CWE and OWASP appear as either a string or a
// list depending on the rule, so they decode through StringList.
type Metadata struct {
	Category   string     `json:"category,omitempty"`
	Severity   string     `json:"severity,omitempty"`
	Impact     string     `json:"impact,omitempty"`
	Likelihood string     `json:"likelihood,omitempty"`
	Confidence string     `json:"confidence,omitempty"`
	CWE        StringList `json:"cwe,omitempty"`
	OWASP      StringList `json:"owasp,omitempty"`
}

// StringList unmarshals from either a JSON string or a JSON array of
// strings.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = StringList(many)
	return nil
}

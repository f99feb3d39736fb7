package scan

// Status represents the scan lifecycle status.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true for completed and failed; terminal states are
// sticky and accept no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Tier selects which rule bundles run and how much time is budgeted.
type Tier string

const (
	TierFast Tier = "fast"
	TierDeep Tier = "deep"
)

// IsValid checks if the tier is valid.
func (t Tier) IsValid() bool {
	return t == TierFast || t == TierDeep
}

// Multiplier returns the timeout multiplier for the tier. Deep analysis
// inspects more rule sets per file.
func (t Tier) Multiplier() int {
	if t == TierDeep {
		return 2
	}
	return 1
}

// Target describes where the code to analyze comes from. Exactly one of the
// source-specific field groups is set, matching the project's source kind.
type Target struct {
	UploadPath string `json:"upload_path,omitempty"`
	RepoURL    string `json:"repo_url,omitempty"`
	Branch     string `json:"branch,omitempty"`
	S3Bucket   string `json:"s3_bucket,omitempty"`
	S3Key      string `json:"s3_key,omitempty"`
}

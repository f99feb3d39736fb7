package scan

import "fmt"

// AcquisitionError is a fatal pre-analysis failure: bad URL or archive,
// size ceiling exceeded, clone timeout. No subprocess has been spawned and
// no partial results exist.
type AcquisitionError struct {
	Reason string
	Err    error
}

func (e *AcquisitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("target acquisition failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("target acquisition failed: %s", e.Reason)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// NewAcquisitionError creates an AcquisitionError.
func NewAcquisitionError(reason string, err error) *AcquisitionError {
	return &AcquisitionError{Reason: reason, Err: err}
}

// AnalysisTimeoutError reports that the analyzer exceeded its deadline and
// no partial output could be salvaged.
type AnalysisTimeoutError struct {
	Deadline string
	Err      error
}

func (e *AnalysisTimeoutError) Error() string {
	return fmt.Sprintf("analysis timed out after %s", e.Deadline)
}

func (e *AnalysisTimeoutError) Unwrap() error { return e.Err }

// AnalysisProcessError reports an analyzer exit that denotes genuine
// failure (anything other than the "completed" exit codes) with no usable
// partial output.
type AnalysisProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *AnalysisProcessError) Error() string {
	return fmt.Sprintf("analyzer process failed with exit code %d", e.ExitCode)
}

func (e *AnalysisProcessError) Unwrap() error { return e.Err }

// Package semgrep supervises the external static analyzer as a subprocess
// and parses its JSON output.
package semgrep

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/scanforge/api/internal/config"
	"github.com/scanforge/api/internal/metrics"
	"github.com/scanforge/api/pkg/domain/progress"
	"github.com/scanforge/api/pkg/domain/scan"
	"github.com/scanforge/api/pkg/domain/shared"
	"github.com/scanforge/api/pkg/logger"
)

// Output is the outcome of one analyzer run. Partial marks results salvaged
// from incomplete stdout after a timeout or abnormal exit.
type Output struct {
	Result  *Result
	Partial bool
}

// Runner executes the analyzer binary over an acquired target directory.
type Runner struct {
	cfg     *config.ScannerConfig
	tracker *progress.Tracker
	log     *logger.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg *config.ScannerConfig, tracker *progress.Tracker, log *logger.Logger) *Runner {
	return &Runner{cfg: cfg, tracker: tracker, log: log}
}

// Scanning progress lines on stderr look like "Scanning <path>" in verbose
// mode. This is best effort; format drift only costs progress granularity.
var scanningLineRegex = regexp.MustCompile(`(?i)^\s*scanning\s+(\S+)`)

// Scan runs the analyzer over dir with the tier's rule bundles, bounded by
// deadline. Exit codes 0 and 1 are both success (1 = findings present); a
// complete JSON document on stdout resolves the run early and terminates
// the child.
func (r *Runner) Scan(ctx context.Context, scanID shared.ID, dir string, tier scan.Tier, deadline time.Duration, totalFiles int) (*Output, error) {
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Binary, r.buildArgs(tier, dir)...)

	// Two-stage kill: SIGTERM on cancellation, SIGKILL after the grace
	// period if the process ignores it.
	cmd.Cancel = func() error {
		metrics.AnalyzerKillsTotal.WithLabelValues("sigterm").Inc()
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.cfg.KillGracePeriod

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	r.log.Info("starting analyzer",
		"scan_id", scanID,
		"tier", string(tier),
		"deadline", deadline.String(),
		"files", totalFiles,
	)

	startedAt := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &scan.AnalysisProcessError{ExitCode: -1, Err: fmt.Errorf("failed to start analyzer: %w", err)}
	}

	var (
		mu        sync.Mutex
		buf       bytes.Buffer
		early     *Result
		stderrBuf bytes.Buffer
		wg        sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		chunk := make([]byte, 64*1024)
		for {
			n, readErr := stdout.Read(chunk)
			if n > 0 {
				mu.Lock()
				buf.Write(chunk[:n])
				// The analyzer emits one JSON document; the first complete
				// parse means the results are all in, whatever the process
				// does afterwards.
				if early == nil {
					var res Result
					if json.Unmarshal(buf.Bytes(), &res) == nil {
						early = &res
						mu.Unlock()
						metrics.AnalyzerEarlyResolves.Inc()
						cancel()
						continue
					}
				}
				mu.Unlock()
			}
			if readErr != nil {
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		r.followStderr(scanID, stderr, &stderrBuf)
	}()

	waitErr := cmd.Wait()
	wg.Wait()

	mu.Lock()
	stdoutBytes := append([]byte(nil), buf.Bytes()...)
	earlyResult := early
	mu.Unlock()

	elapsed := time.Since(startedAt)

	if earlyResult != nil {
		r.log.Info("analyzer resolved", "scan_id", scanID, "findings", len(earlyResult.Results), "elapsed", elapsed.String())
		return &Output{Result: earlyResult}, nil
	}

	exitCode := exitCodeOf(cmd, waitErr)
	timedOut := errors.Is(runCtx.Err(), context.DeadlineExceeded)

	if !timedOut && (exitCode == 0 || exitCode == 1) {
		var res Result
		if err := json.Unmarshal(stdoutBytes, &res); err != nil {
			return nil, &scan.AnalysisProcessError{
				ExitCode: exitCode,
				Stderr:   tail(stderrBuf.String(), 2048),
				Err:      fmt.Errorf("failed to parse analyzer output: %w", err),
			}
		}
		r.log.Info("analyzer resolved", "scan_id", scanID, "findings", len(res.Results), "elapsed", elapsed.String())
		return &Output{Result: &res}, nil
	}

	// Abnormal exit or deadline. Whatever made it to stdout may still be a
	// complete document (analyzer killed between final write and exit).
	var partial Result
	if len(stdoutBytes) > 0 && json.Unmarshal(stdoutBytes, &partial) == nil {
		r.log.Warn("analyzer exited abnormally but output was salvageable",
			"scan_id", scanID,
			"exit_code", exitCode,
			"timed_out", timedOut,
			"findings", len(partial.Results),
		)
		return &Output{Result: &partial, Partial: true}, nil
	}

	if timedOut {
		metrics.AnalyzerKillsTotal.WithLabelValues("sigkill").Inc()
		return nil, &scan.AnalysisTimeoutError{Deadline: deadline.String(), Err: waitErr}
	}
	return nil, &scan.AnalysisProcessError{
		ExitCode: exitCode,
		Stderr:   tail(stderrBuf.String(), 2048),
		Err:      waitErr,
	}
}

func (r *Runner) buildArgs(tier scan.Tier, dir string) []string {
	args := []string{"scan", "--json", "--quiet", "--verbose"}

	bundles := r.cfg.FastRuleBundles
	if tier == scan.TierDeep {
		bundles = r.cfg.DeepRuleBundles
	}
	for _, b := range bundles {
		args = append(args, "--config", b)
	}
	for _, g := range r.cfg.ExcludeGlobs {
		args = append(args, "--exclude", g)
	}
	args = append(args,
		"--max-memory", strconv.Itoa(r.cfg.MaxMemoryMB),
		"--max-target-bytes", strconv.FormatInt(r.cfg.MaxTargetBytes, 10),
		"--timeout", strconv.Itoa(int(r.cfg.RuleTimeout.Seconds())),
		dir,
	)
	return args
}

// followStderr feeds per-file progress into the tracker while keeping the
// last stderr output for error reporting.
func (r *Runner) followStderr(scanID shared.ID, stderr io.Reader, keep *bytes.Buffer) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	processed := 0
	for scanner.Scan() {
		line := scanner.Text()
		keep.WriteString(line)
		keep.WriteByte('\n')

		if m := scanningLineRegex.FindStringSubmatch(line); m != nil {
			processed++
			p := processed
			file := m[1]
			r.tracker.SetStage(scanID, progress.StageScanning, progress.Update{
				ProcessedFiles: &p,
				CurrentFile:    file,
			})
		}
	}
}

func exitCodeOf(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

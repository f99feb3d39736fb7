// Package acquire turns a scan target descriptor (uploaded archive, remote
// repository or staged S3 object) into a local directory ready for analysis.
package acquire

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/scanforge/api/internal/config"
	"github.com/scanforge/api/pkg/domain/scan"
	"github.com/scanforge/api/pkg/logger"
)

// Target is an acquired scan target. Dir is exclusively owned by the
// acquiring scan; Cleanup releases it and is safe to call more than once.
type Target struct {
	Dir        string
	FileCount  int
	SizeBytes  int64
	Owner      string
	Repo       string
	Branch     string
	HeadCommit string
	Cleanup    func()
}

// Acquirer produces a local directory for a scan target.
type Acquirer interface {
	Acquire(ctx context.Context, target scan.Target) (*Target, error)
}

// Service dispatches to the archive, git or S3 path based on which target
// fields are set.
type Service struct {
	cfg *config.ScannerConfig
	s3  objectDownloader
	log *logger.Logger
}

// objectDownloader fetches a staged object into a local file.
type objectDownloader interface {
	Download(ctx context.Context, bucket, key, dest string) (int64, error)
}

// NewService creates an acquisition service. The downloader may be nil when
// no S3 source is configured.
func NewService(cfg *config.ScannerConfig, s3 objectDownloader, log *logger.Logger) *Service {
	return &Service{cfg: cfg, s3: s3, log: log}
}

// Acquire resolves the target descriptor into a local directory.
func (s *Service) Acquire(ctx context.Context, target scan.Target) (*Target, error) {
	switch {
	case target.RepoURL != "":
		return s.acquireRepo(ctx, target)
	case target.S3Bucket != "":
		return s.acquireObject(ctx, target)
	case target.UploadPath != "":
		return s.acquireArchive(ctx, target.UploadPath)
	default:
		return nil, scan.NewAcquisitionError("empty target descriptor", nil)
	}
}

// newWorkDir creates a uniquely named directory under the configured temp
// root. The sweep job recognizes the prefix when collecting orphans.
func (s *Service) newWorkDir() (string, error) {
	if err := os.MkdirAll(s.cfg.TempRoot, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp root: %w", err)
	}
	dir, err := os.MkdirTemp(s.cfg.TempRoot, WorkDirPrefix)
	if err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	return dir, nil
}

// WorkDirPrefix names scan-owned temp directories so the orphan sweep can
// tell them apart from anything else under the temp root.
const WorkDirPrefix = "scanforge-"

// cleanupFunc returns an idempotent remover for dir.
func (s *Service) cleanupFunc(dir string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			if err := os.RemoveAll(dir); err != nil {
				s.log.Warn("failed to remove scan work dir", "dir", dir, "error", err)
			}
		})
	}
}

// measureTree walks dir counting regular files and summing their sizes.
// Symlinks are not followed.
func measureTree(dir string) (int, int64, error) {
	var count int
	var size int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		count++
		size += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to measure tree: %w", err)
	}
	return count, size, nil
}

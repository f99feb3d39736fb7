package acquire

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/scanforge/api/pkg/domain/scan"
)

// acquireArchive extracts an uploaded archive into a fresh work directory.
func (s *Service) acquireArchive(ctx context.Context, path string) (*Target, error) {
	dir, err := s.newWorkDir()
	if err != nil {
		return nil, scan.NewAcquisitionError("temp dir creation failed", err)
	}
	cleanup := s.cleanupFunc(dir)

	if err := s.extract(ctx, path, dir); err != nil {
		cleanup()
		return nil, err
	}

	fileCount, size, err := measureTree(dir)
	if err != nil {
		cleanup()
		return nil, scan.NewAcquisitionError("failed to inspect extracted tree", err)
	}
	if fileCount == 0 {
		cleanup()
		return nil, scan.NewAcquisitionError("archive contains no files", nil)
	}

	return &Target{
		Dir:       dir,
		FileCount: fileCount,
		SizeBytes: size,
		Cleanup:   cleanup,
	}, nil
}

// extract dispatches on archive type. Detection is by extension first, with
// a magic-byte check as backstop for misnamed uploads.
func (s *Service) extract(ctx context.Context, path, dest string) error {
	kind, err := detectArchiveKind(path)
	if err != nil {
		return scan.NewAcquisitionError("unsupported archive type", err)
	}

	switch kind {
	case archiveZip:
		return s.extractZip(ctx, path, dest)
	case archiveTarGz, archiveTarZst:
		return s.extractTar(ctx, path, dest, kind)
	default:
		return scan.NewAcquisitionError("unsupported archive type", nil)
	}
}

type archiveKind int

const (
	archiveUnknown archiveKind = iota
	archiveZip
	archiveTarGz
	archiveTarZst
)

var zipMagic = []byte{0x50, 0x4b, 0x03, 0x04}
var gzipMagic = []byte{0x1f, 0x8b}
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func detectArchiveKind(path string) (archiveKind, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return archiveZip, nil
	case strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz"):
		return archiveTarGz, nil
	case strings.HasSuffix(lower, ".tar.zst"):
		return archiveTarZst, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return archiveUnknown, err
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return archiveUnknown, fmt.Errorf("file too short to identify: %w", err)
	}

	switch {
	case string(magic) == string(zipMagic):
		return archiveZip, nil
	case magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1]:
		return archiveTarGz, nil
	case string(magic) == string(zstdMagic):
		return archiveTarZst, nil
	}
	return archiveUnknown, fmt.Errorf("unrecognized archive format")
}

func (s *Service) extractZip(ctx context.Context, path, dest string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return scan.NewAcquisitionError("corrupt zip archive", err)
	}
	defer r.Close()

	var extracted int64
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return scan.NewAcquisitionError("extraction cancelled", err)
		}

		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return scan.NewAcquisitionError("archive entry escapes extraction root", err)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return scan.NewAcquisitionError("extraction failed", err)
			}
			continue
		}
		if !f.FileInfo().Mode().IsRegular() {
			continue
		}

		extracted += int64(f.UncompressedSize64)
		if extracted > s.cfg.MaxTargetSizeBytes {
			return scan.NewAcquisitionError(
				fmt.Sprintf("expanded size exceeds %d byte ceiling", s.cfg.MaxTargetSizeBytes), nil)
		}

		rc, err := f.Open()
		if err != nil {
			return scan.NewAcquisitionError("corrupt zip entry", err)
		}
		err = writeEntry(target, rc, s.cfg.MaxTargetSizeBytes)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) extractTar(ctx context.Context, path, dest string, kind archiveKind) error {
	f, err := os.Open(path)
	if err != nil {
		return scan.NewAcquisitionError("failed to open archive", err)
	}
	defer f.Close()

	var decompressed io.Reader
	switch kind {
	case archiveTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return scan.NewAcquisitionError("corrupt gzip stream", err)
		}
		defer gz.Close()
		decompressed = gz
	case archiveTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return scan.NewAcquisitionError("corrupt zstd stream", err)
		}
		defer zr.Close()
		decompressed = zr
	}

	tr := tar.NewReader(decompressed)
	var extracted int64
	for {
		if err := ctx.Err(); err != nil {
			return scan.NewAcquisitionError("extraction cancelled", err)
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return scan.NewAcquisitionError("corrupt tar stream", err)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return scan.NewAcquisitionError("archive entry escapes extraction root", err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return scan.NewAcquisitionError("extraction failed", err)
			}
		case tar.TypeReg:
			extracted += hdr.Size
			if extracted > s.cfg.MaxTargetSizeBytes {
				return scan.NewAcquisitionError(
					fmt.Sprintf("expanded size exceeds %d byte ceiling", s.cfg.MaxTargetSizeBytes), nil)
			}
			if err := writeEntry(target, tr, s.cfg.MaxTargetSizeBytes); err != nil {
				return err
			}
		default:
			// Symlinks, devices and the rest are skipped: the analyzer only
			// reads regular files and symlinks could point outside the root.
		}
	}
}

// writeEntry streams one archive entry to disk, bounded by limit so a lying
// header cannot smuggle more bytes than declared.
func writeEntry(target string, r io.Reader, limit int64) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return scan.NewAcquisitionError("extraction failed", err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return scan.NewAcquisitionError("extraction failed", err)
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(r, limit+1))
	if err != nil {
		return scan.NewAcquisitionError("extraction failed", err)
	}
	if n > limit {
		return scan.NewAcquisitionError(
			fmt.Sprintf("expanded size exceeds %d byte ceiling", limit), nil)
	}
	return nil
}

// safeJoin joins name under dest, rejecting absolute paths and traversal.
func safeJoin(dest, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("absolute path %q", name)
	}
	target := filepath.Join(dest, filepath.Clean(name))
	if target != dest && !strings.HasPrefix(target, dest+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes root", name)
	}
	return target, nil
}

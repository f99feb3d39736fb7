package acquire

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/scanforge/api/internal/config"
	"github.com/scanforge/api/pkg/domain/scan"
)

// S3Downloader fetches staged upload objects from S3 or an S3-compatible
// endpoint such as MinIO.
type S3Downloader struct {
	client *s3.Client
}

// NewS3Downloader creates a downloader from the S3 configuration.
func NewS3Downloader(ctx context.Context, cfg *config.S3Config) (*S3Downloader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO
		})
	}

	return &S3Downloader{client: s3.NewFromConfig(awsCfg, s3Opts...)}, nil
}

// Download streams the object to dest and returns its size.
func (d *S3Downloader) Download(ctx context.Context, bucket, key, dest string) (int64, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("failed to create download file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, out.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to download object: %w", err)
	}
	return n, nil
}

// acquireObject downloads a staged archive from S3 and hands it to the
// archive path.
func (s *Service) acquireObject(ctx context.Context, target scan.Target) (*Target, error) {
	if s.s3 == nil {
		return nil, scan.NewAcquisitionError("S3 source not configured", nil)
	}

	staging, err := os.MkdirTemp(s.cfg.TempRoot, WorkDirPrefix+"dl-")
	if err != nil {
		return nil, scan.NewAcquisitionError("temp dir creation failed", err)
	}
	defer os.RemoveAll(staging)

	dest := filepath.Join(staging, filepath.Base(target.S3Key))
	size, err := s.s3.Download(ctx, target.S3Bucket, target.S3Key, dest)
	if err != nil {
		return nil, scan.NewAcquisitionError("object download failed", err)
	}
	if size > s.cfg.MaxTargetSizeBytes {
		return nil, scan.NewAcquisitionError(
			fmt.Sprintf("object size %d exceeds %d byte ceiling", size, s.cfg.MaxTargetSizeBytes), nil)
	}

	return s.acquireArchive(ctx, dest)
}

package landing

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ArchiveConfig configures the optional object-store copy of published
// landing files.
type ArchiveConfig struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
}

// Archiver uploads published landing files to an object-store bucket
// under the same {entity}/run_id={run_id}/part-000.{ext} key. Landing
// files are immutable, so an archived copy never needs replacing.
type Archiver struct {
	client *minio.Client
	bucket string
}

// NewArchiver creates an archiver and verifies the bucket exists,
// creating it when absent.
func NewArchiver(ctx context.Context, cfg ArchiveConfig) (*Archiver, error) {
	if cfg.EndpointURL == "" {
		return nil, fmt.Errorf("archive endpoint is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("archive credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	endpoint := cfg.EndpointURL
	useSSL := cfg.UseSSL
	if u, err := url.Parse(cfg.EndpointURL); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check archive bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create archive bucket: %w", err)
		}
	}

	return &Archiver{client: client, bucket: cfg.Bucket}, nil
}

// Archive uploads one published landing file. The object key is the
// file's path relative to the landing root.
func (a *Archiver) Archive(ctx context.Context, landingRoot, path string) (string, error) {
	rel, err := filepath.Rel(landingRoot, path)
	if err != nil {
		return "", fmt.Errorf("archive key for %s: %w", path, err)
	}
	key := filepath.ToSlash(rel)

	info, err := a.client.FPutObject(ctx, a.bucket, key, path, minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("archive landing file %s: %w", path, err)
	}

	log.Printf("archived landing file to s3://%s/%s (bytes=%d)", a.bucket, key, info.Size)
	return key, nil
}

// Package storage provides object storage for the mount journal archive.
//
// # Supported Providers
//
//   - S3 / S3-compatible (AWS, MinIO, etc.) - see s3.go
//   - In-memory - see memory.go
//
// Use OpenBlobStore() for provider-agnostic access, or OpenS3Bucket() for
// fine-grained control.
package storage

import (
	"context"
	"fmt"

	"github.com/dc-tec/openbao-console/internal/interfaces"
)

// ProviderType identifies the storage provider.
type ProviderType string

const (
	// ProviderS3 is Amazon S3 or S3-compatible storage (MinIO, etc.).
	ProviderS3 ProviderType = "s3"
	// ProviderMemory keeps objects in process memory.
	ProviderMemory ProviderType = "memory"
)

// Config holds provider-agnostic storage configuration.
type Config struct {
	// Provider identifies which storage backend to use. Empty means S3.
	Provider ProviderType

	// Bucket is the bucket name. Required for S3.
	Bucket string

	// EnsureExists creates the bucket when it is missing.
	EnsureExists bool

	// Endpoint is a custom endpoint for MinIO/S3-compatible stores.
	Endpoint string

	// Region is required for S3.
	Region string

	// Credentials holds static credentials. Nil uses the default chain.
	Credentials *Credentials

	// S3 contains S3-specific configuration.
	S3 *S3Options
}

// S3Options holds S3-specific configuration options.
type S3Options struct {
	// UsePathStyle forces path-style addressing (required for MinIO and some S3-compatible stores).
	UsePathStyle bool
	// InsecureSkipVerify allows skipping TLS verification.
	InsecureSkipVerify bool
}

// OpenBlobStore opens a storage backend based on the provider configuration.
func OpenBlobStore(ctx context.Context, cfg Config) (interfaces.BlobStore, error) {
	switch cfg.Provider {
	case ProviderMemory:
		return NewMemoryStore(), nil
	case ProviderS3, "":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("bucket is required")
		}
		return openS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage provider: %q", cfg.Provider)
	}
}

// openS3 opens an S3-compatible bucket using the unified Config.
func openS3(ctx context.Context, cfg Config) (interfaces.BlobStore, error) {
	s3Cfg := S3ClientConfig{
		Endpoint:     cfg.Endpoint,
		Bucket:       cfg.Bucket,
		Region:       cfg.Region,
		EnsureExists: cfg.EnsureExists,
	}

	if cfg.Credentials != nil {
		s3Cfg.AccessKeyID = cfg.Credentials.AccessKeyID
		s3Cfg.SecretAccessKey = cfg.Credentials.SecretAccessKey
		s3Cfg.SessionToken = cfg.Credentials.SessionToken
		s3Cfg.CACert = cfg.Credentials.CACert
	}

	if cfg.S3 != nil {
		s3Cfg.UsePathStyle = cfg.S3.UsePathStyle
		s3Cfg.InsecureSkipVerify = cfg.S3.InsecureSkipVerify
	}

	bucket, err := OpenS3Bucket(ctx, s3Cfg)
	if err != nil {
		return nil, err
	}
	return bucket, nil
}

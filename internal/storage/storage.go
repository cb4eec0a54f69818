// Package storage provides S3-compatible object storage for the optional
// post-reindex index-artifact backup (SPEC_FULL.md §6,
// RAG_ARTIFACT_BACKUP_BUCKET). Simplified from the teacher's dual-bucket
// document-upload design to a single configurable bucket, since this
// repository's only use of object storage is backing up the freshly
// swapped SQLite artifact.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/fx"

	"github.com/emergent-company/rag-reindex-worker/internal/config"
	"github.com/emergent-company/rag-reindex-worker/pkg/logger"
)

var Module = fx.Module("storage",
	fx.Provide(NewConfig),
	fx.Provide(NewService),
)

// Config holds S3-compatible storage configuration.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
}

// Enabled returns true when storage is configured: both an endpoint and
// a backup bucket are required.
func (c *Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// NewConfig derives storage config from the worker's central
// configuration (internal/config.StorageConfig).
// RAG_ARTIFACT_BACKUP_BUCKET unset means the backup feature is disabled.
func NewConfig(cfg *config.Config) *Config {
	return &Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.Bucket,
	}
}

// Service provides S3-compatible storage operations against a single
// bucket.
type Service struct {
	client *s3.Client
	cfg    *Config
	log    *slog.Logger
}

// UploadOptions configures an upload operation.
type UploadOptions struct {
	ContentType string
	Metadata    map[string]string
}

// UploadResult describes a successful upload.
type UploadResult struct {
	Key    string
	Bucket string
	ETag   string
	Size   int64
}

// NewService creates a new storage service. When cfg is not Enabled, the
// returned service is a harmless no-op: callers check Enabled() before
// uploading, as failing to back up the index artifact must never fail
// the reindex job (the atomic swap is already complete and is the
// operation of record).
func NewService(cfg *Config, log *slog.Logger) (*Service, error) {
	log = log.With(logger.Scope("storage"))

	if !cfg.Enabled() {
		log.Info("artifact backup storage disabled (RAG_ARTIFACT_BACKUP_BUCKET or STORAGE_ENDPOINT unset)")
		return &Service{cfg: cfg, log: log}, nil
	}

	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
				SigningRegion:     cfg.Region,
			}, nil
		},
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
		awsconfig.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	log.Info("artifact backup storage initialized",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("bucket", cfg.Bucket),
	)

	return &Service{client: client, cfg: cfg, log: log}, nil
}

// Enabled returns true if the storage service is properly configured.
func (s *Service) Enabled() bool {
	return s.client != nil
}

// Upload uploads data to key in the configured bucket.
func (s *Service) Upload(ctx context.Context, key string, data io.Reader, size int64, opts UploadOptions) (*UploadResult, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("storage: service not enabled")
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          data,
		ContentLength: aws.Int64(size),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}

	result, err := s.client.PutObject(ctx, input)
	if err != nil {
		s.log.Error("failed to upload object", slog.String("key", key), logger.Error(err))
		return nil, fmt.Errorf("storage: upload failed: %w", err)
	}

	etag := ""
	if result.ETag != nil {
		etag = strings.Trim(*result.ETag, "\"")
	}

	s.log.Debug("object uploaded", slog.String("key", key), slog.String("bucket", s.cfg.Bucket), slog.Int64("size", size))

	return &UploadResult{Key: key, Bucket: s.cfg.Bucket, ETag: etag, Size: size}, nil
}

// Download retrieves an object from the configured bucket.
func (s *Service) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("storage: service not enabled")
	}
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.log.Error("failed to download object", slog.String("key", key), logger.Error(err))
		return nil, fmt.Errorf("storage: download failed: %w", err)
	}
	return result.Body, nil
}

// Exists checks whether an object exists in the configured bucket.
func (s *Service) Exists(ctx context.Context, key string) (bool, error) {
	if !s.Enabled() {
		return false, fmt.Errorf("storage: service not enabled")
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "NotFound") || strings.Contains(errStr, "404") || strings.Contains(errStr, "NoSuchKey") {
			return false, nil
		}
		return false, fmt.Errorf("storage: head object failed: %w", err)
	}
	return true, nil
}

// Package objectstore uploads exported files to S3-compatible storage such as
// Cloudflare R2.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"navpulse/internal/infrastructure"
)

// Config holds connection settings for the bucket
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// Folder is the key prefix for generated object names.
	Folder string
	// HTTPClient overrides the SDK transport, mostly for tests.
	HTTPClient *http.Client
}

// Upload describes one stored object
type Upload struct {
	Key   string `json:"key"`
	URI   string `json:"uri"`
	Bytes int64  `json:"bytes"`
}

// Uploader puts objects into a single bucket
type Uploader struct {
	client  *s3.Client
	bucket  string
	folder  string
	metrics *infrastructure.BusinessMetrics
	logger  *slog.Logger
}

// Option configures an Uploader
type Option func(*Uploader)

// WithMetrics records uploads on m
func WithMetrics(m *infrastructure.BusinessMetrics) Option {
	return func(u *Uploader) { u.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(u *Uploader) { u.logger = l }
}

// New builds an Uploader with static credentials and path-style addressing.
func New(cfg Config, opts ...Option) (*Uploader, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("object store endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("object store bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	awsCfg := aws.Config{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	}
	if cfg.HTTPClient != nil {
		awsCfg.HTTPClient = cfg.HTTPClient
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	u := &Uploader{
		client: client,
		bucket: cfg.Bucket,
		folder: strings.Trim(cfg.Folder, "/"),
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.logger == nil {
		u.logger = infrastructure.GetLogger()
	}
	return u, nil
}

// Bucket returns the target bucket name
func (u *Uploader) Bucket() string { return u.bucket }

// ObjectName builds {folder}/YYYY/MM/DD/{prefix}_YYYYMMDDHHMMSS[_suffix].{ext}
func ObjectName(folder, prefix string, ts time.Time, suffix, ext string) string {
	ts = ts.UTC()
	name := prefix + "_" + ts.Format("20060102150405")
	if suffix != "" {
		name += "_" + suffix
	}
	name += "." + strings.TrimPrefix(ext, ".")

	parts := []string{ts.Format("2006"), ts.Format("01"), ts.Format("02"), name}
	if folder = strings.Trim(folder, "/"); folder != "" {
		parts = append([]string{folder}, parts...)
	}
	return strings.Join(parts, "/")
}

// URI returns the s3a:// URI of key in the bucket.
func (u *Uploader) URI(key string) string {
	return fmt.Sprintf("s3a://%s/%s", u.bucket, key)
}

// UploadBytes stores data under key.
func (u *Uploader) UploadBytes(ctx context.Context, key string, data []byte, contentType string) (Upload, error) {
	return u.put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

// UploadFile stores the file at path under key.
func (u *Uploader) UploadFile(ctx context.Context, path, key string) (Upload, error) {
	f, err := os.Open(path)
	if err != nil {
		return Upload{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Upload{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return u.put(ctx, key, f, info.Size(), contentTypeFor(path))
}

// UploadExport stores a local file under a generated object name using the
// file's base name as prefix, e.g. nav/2024/01/06/raw_nav_table_20240106183000.parquet.
func (u *Uploader) UploadExport(ctx context.Context, path string, ts time.Time, suffix string) (Upload, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	key := ObjectName(u.folder, strings.TrimSuffix(base, ext), ts, suffix, ext)
	return u.UploadFile(ctx, path, key)
}

func (u *Uploader) put(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) (Upload, error) {
	start := time.Now()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := u.client.PutObject(ctx, input); err != nil {
		u.record(ctx, "error", 0)
		u.logger.ErrorContext(ctx, "upload_failed",
			slog.String("bucket", u.bucket),
			slog.String("key", key),
			slog.String("error", err.Error()))
		return Upload{}, fmt.Errorf("upload %s: %w", key, err)
	}

	u.record(ctx, "ok", size)
	up := Upload{Key: key, URI: u.URI(key), Bytes: size}
	u.logger.InfoContext(ctx, "upload_completed",
		slog.String("uri", up.URI),
		slog.Int64("bytes", size),
		slog.Duration("duration", time.Since(start)))
	return up, nil
}

func (u *Uploader) record(ctx context.Context, result string, size int64) {
	if u.metrics == nil {
		return
	}
	u.metrics.UploadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	if size > 0 {
		u.metrics.UploadBytes.Add(ctx, size)
	}
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

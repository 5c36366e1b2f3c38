// Package mirror copies generated articles, the index and uploaded images
// into an S3-compatible bucket (Cloudflare R2). The local filesystem stays the
// system of record; a failed mirror write is logged and otherwise ignored.
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bilgisen/blog-editor/internal/config"
	"github.com/bilgisen/blog-editor/internal/logger"
)

const (
	ArticlesPrefix = "articles"
	UploadsPrefix  = "uploads"
)

// Mirror receives copies of files the editor has written locally
type Mirror interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// ObjectPutter is the part of the S3 client the mirror needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Nop discards everything; used when no bucket is configured
type Nop struct{}

func (Nop) Put(context.Context, string, []byte, string) error { return nil }

type R2 struct {
	client ObjectPutter
	bucket string
}

func NewR2(client ObjectPutter, bucket string) *R2 {
	return &R2{client: client, bucket: bucket}
}

// New returns an R2 mirror when the config has a bucket, Nop otherwise
func New(ctx context.Context, cfg *config.Config) (Mirror, error) {
	if !cfg.MirrorEnabled() {
		return Nop{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.R2AccessKey, cfg.R2SecretKey, ""),
		),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.R2Endpoint)
		o.UsePathStyle = true
	})

	return NewR2(client, cfg.R2Bucket), nil
}

func (r *R2) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("failed to put %s into bucket %s: %w", key, r.bucket, err)
	}
	return nil
}

// Key joins a prefix and a file name into an object key
func Key(prefix, name string) string {
	return path.Join(prefix, name)
}

// PutFile reads a local file and mirrors it under key. Errors are logged,
// never returned.
func PutFile(ctx context.Context, m Mirror, timeout time.Duration, key, localPath, contentType string) {
	if _, ok := m.(Nop); ok {
		return
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		logger.Get().Error().Err(err).Str("path", localPath).Msg("Error reading file for mirror")
		return
	}
	PutBytes(ctx, m, timeout, key, data, contentType)
}

// PutBytes mirrors data under key. Errors are logged, never returned.
func PutBytes(ctx context.Context, m Mirror, timeout time.Duration, key string, data []byte, contentType string) {
	if _, ok := m.(Nop); ok {
		return
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	if err := m.Put(ctx, key, data, contentType); err != nil {
		logger.Get().Error().Err(err).Str("key", key).Msg("Error mirroring file")
		return
	}
	logger.Get().Debug().
		Str("key", key).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Mirrored file")
}

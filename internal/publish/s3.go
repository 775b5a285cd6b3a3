package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wonny/newsdeck/backend/internal/artifact"
	"github.com/wonny/newsdeck/backend/internal/dashboard"
	"github.com/wonny/newsdeck/backend/pkg/config"
)

// CacheObject is the object name of the latest dashboard cache.
const CacheObject = "dashboard-cache.json"

// ObjectPutter is the subset of the S3 client used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads the dashboard cache to object storage: the latest copy plus
// a dated history copy.
type S3 struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3 builds an S3 publisher from static credentials. Endpoint and
// path-style addressing support S3-compatible stores.
func NewS3(ctx context.Context, cfg config.PublishConfig) (*S3, error) {
	if strings.TrimSpace(cfg.S3Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKeyID != "" && cfg.S3SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return NewS3WithClient(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client ObjectPutter, bucket, prefix string) *S3 {
	return &S3{
		client: client,
		bucket: strings.TrimSpace(bucket),
		prefix: strings.Trim(prefix, "/"),
	}
}

// Keys returns the latest and history object keys for p.
func (s *S3) Keys(p *dashboard.Payload) (latest, dated string) {
	ts := p.GeneratedAt.UTC()
	latest = path.Join(s.prefix, CacheObject)
	dated = path.Join(s.prefix, "history", ts.Format("2006-01-02"),
		"dashboard-cache_"+artifact.FormatFilenameTimestamp(ts)+".json")
	return latest, dated
}

// Publish implements dashboard.Publisher.
func (s *S3) Publish(ctx context.Context, p *dashboard.Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode dashboard cache: %w", err)
	}

	latest, dated := s.Keys(p)
	for _, key := range []string{dated, latest} {
		if err := s.put(ctx, key, body); err != nil {
			return err
		}
	}
	return nil
}

func (s *S3) put(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object %s failed: %w", key, err)
	}
	return nil
}

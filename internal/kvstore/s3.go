package kvstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/onnwee/domu/internal/tracing"
)

// S3API is the subset of the S3 client used by S3.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Config configures an S3-compatible (AWS, R2, MinIO) client.
type S3Config struct {
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Region          string
	Prefix          string
}

// S3 stores each key as a JSON object in a bucket.
type S3 struct {
	api    S3API
	bucket string
	prefix string
}

// NewS3Client builds a path-style client with static credentials.
func NewS3Client(cfg S3Config) (*s3.Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("kvstore: s3 bucket is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("kvstore: s3 credentials are required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := s3.Options{
		Region: region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts), nil
}

// NewS3 wraps api for bucket. Object keys are prefix + key + ".json".
func NewS3(api S3API, bucket, prefix string) *S3 {
	return &S3{api: api, bucket: bucket, prefix: prefix}
}

func (s *S3) objectKey(key string) string {
	return s.prefix + key + ".json"
}

// Get implements Store.
func (s *S3) Get(ctx context.Context, key string) (value string, found bool, err error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	ctx, end := tracing.StartStoreSpan(ctx, "s3", tracing.StoreGet, key)
	defer func() { end(err) }()

	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("kvstore: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", false, fmt.Errorf("kvstore: s3 read %s: %w", key, err)
	}
	return string(data), true, nil
}

// Set implements Store.
func (s *S3) Set(ctx context.Context, key, value string) (err error) {
	if key == "" {
		return ErrEmptyKey
	}
	ctx, end := tracing.StartStoreSpan(ctx, "s3", tracing.StoreSet, key)
	defer func() { end(err) }()

	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        strings.NewReader(value),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("kvstore: s3 put %s: %w", key, err)
	}
	return nil
}

// HealthCheck verifies the bucket is reachable.
func (s *S3) HealthCheck(ctx context.Context) error {
	_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

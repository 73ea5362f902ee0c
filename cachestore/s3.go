package cachestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store persists each cache entry as a standalone object under a
// key prefix in a single bucket. Aimed at fleet-managed embeddings that
// want license cache state centralized and survivable across ephemeral
// instances rather than tied to one machine's disk, the way FileStore is.
type S3Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// S3StoreOption customizes NewS3Store construction.
type S3StoreOption func(*s3StoreOptions)

type s3StoreOptions struct {
	region   string
	endpoint string
}

// WithS3Region pins the client to a specific AWS region.
func WithS3Region(region string) S3StoreOption {
	return func(o *s3StoreOptions) { o.region = region }
}

// WithS3Endpoint overrides the S3 endpoint, for S3-compatible stores.
func WithS3Endpoint(endpoint string) S3StoreOption {
	return func(o *s3StoreOptions) { o.endpoint = endpoint }
}

// NewS3Store loads the default AWS credential chain and returns a Store
// that writes objects to bucket under keyPrefix.
func NewS3Store(ctx context.Context, bucket, keyPrefix string, opts ...S3StoreOption) (*S3Store, error) {
	var options s3StoreOptions
	for _, opt := range opts {
		opt(&options)
	}

	var cfgOpts []func(*awsconfig.LoadOptions) error
	if options.region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(options.region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("cachestore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if options.endpoint != "" {
			o.BaseEndpoint = aws.String(options.endpoint)
			o.UsePathStyle = true
		}
	})

	prefix := strings.TrimSuffix(keyPrefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &S3Store{client: client, bucket: bucket, keyPrefix: prefix}, nil
}

func (s *S3Store) objectKey(key string) string {
	return s.keyPrefix + key
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, false, nil
		}
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cachestore: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("cachestore: s3 read %s: %w", key, err)
	}
	return data, true, nil
}

func (s *S3Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(value),
	})
	if err != nil {
		return fmt.Errorf("cachestore: s3 put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("cachestore: s3 delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.objectKey(prefix)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("cachestore: s3 list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.keyPrefix))
		}
	}

	return keys, nil
}

package rangesource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/abczzz13/cfrealip"
)

// S3API is the subset of *s3.Client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps the snapshot as a JSON object in an S3 bucket, letting a
// fleet of servers share one refreshed copy.
type S3Store struct {
	client S3API
	bucket string
	key    string
}

// NewS3Store returns a store for s3://bucket/key using client.
func NewS3Store(client S3API, bucket, key string) (*S3Store, error) {
	if client == nil {
		return nil, errors.New("s3 client cannot be nil")
	}
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 bucket and key are required (bucket=%q key=%q)", bucket, key)
	}

	return &S3Store{client: client, bucket: bucket, key: key}, nil
}

// NewS3StoreFromConfig loads the default AWS configuration (environment,
// shared config files, instance role) and returns a store backed by a new
// S3 client.
func NewS3StoreFromConfig(ctx context.Context, bucket, key string, optFns ...func(*awsconfig.LoadOptions) error) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return NewS3Store(s3.NewFromConfig(cfg), bucket, key)
}

// Location returns the object URI.
func (s *S3Store) Location() string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
}

// Load downloads and decodes the snapshot object.
func (s *S3Store) Load(ctx context.Context) (*cfrealip.RangeSet, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, s.Location())
		}
		return nil, fmt.Errorf("get range snapshot %s: %w", s.Location(), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, defaultMaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read range snapshot %s: %w", s.Location(), err)
	}
	if len(data) > defaultMaxBodySize {
		return nil, fmt.Errorf("range snapshot %s exceeds %d bytes", s.Location(), defaultMaxBodySize)
	}

	set, err := DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Location(), err)
	}

	return set, nil
}

// Save uploads set as the snapshot object. S3 replaces objects atomically.
func (s *S3Store) Save(ctx context.Context, set *cfrealip.RangeSet) error {
	data, err := EncodeSnapshot(set)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put range snapshot %s: %w", s.Location(), err)
	}

	return nil
}

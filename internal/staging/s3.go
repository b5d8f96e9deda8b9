package staging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kalambet/icebreaker/internal/apperr"
)

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

// S3Store stages artifacts as objects in an S3-compatible bucket.
type S3Store struct {
	client   *minio.Client
	bucket   string
	region   string
	prefix   string
	buckets  bucketAPI

	mu    sync.Mutex
	ready bool // bucket known to exist
}

// bucketAPI is the part of *minio.Client used to provision the bucket.
type bucketAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	prefix := strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix == "" {
		prefix = "staging"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &S3Store{client: client, buckets: client, bucket: bucket, region: region, prefix: prefix}, nil
}

// ensureBucket creates the bucket on first use. A failed attempt is not
// remembered, so the next operation tries again.
func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	exists, err := s.buckets.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	if !exists {
		err := s.buckets.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
		if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
			return fmt.Errorf("creating bucket %s: %w", s.bucket, err)
		}
	}
	s.ready = true
	return nil
}

func (s *S3Store) key(jobID string) string {
	return s.prefix + "/" + jobID + ".json"
}

func (s *S3Store) Put(ctx context.Context, jobID string, payload []byte) error {
	if err := validateKey("staging.put", jobID); err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	_, err := s.client.PutObject(ctx, s.bucket, s.key(jobID), bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("putting staged object: %w", err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, jobID string) ([]byte, error) {
	if err := validateKey("staging.get", jobID); err != nil {
		return nil, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(jobID), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.classify(jobID, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.classify(jobID, err)
	}
	return data, nil
}

func (s *S3Store) Delete(ctx context.Context, jobID string) error {
	if err := validateKey("staging.delete", jobID); err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	// S3 deletes of missing keys succeed.
	if err := s.client.RemoveObject(ctx, s.bucket, s.key(jobID), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("removing staged object: %w", err)
	}
	return nil
}

func (s *S3Store) classify(jobID string, err error) error {
	code := minio.ToErrorResponse(err).Code
	if code == "NoSuchKey" || code == "NoSuchBucket" {
		return apperr.NotFound("staging.get", "no staged artifact for job %q", jobID)
	}
	return fmt.Errorf("reading staged object: %w", err)
}

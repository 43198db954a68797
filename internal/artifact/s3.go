// Package artifact uploads agent transcripts to S3-compatible storage.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned by Get when the object does not exist.
var ErrNotFound = errors.New("artifact not found")

// Config holds the connection settings.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ConfigFromEnv reads BENEISSUE_S3_* variables. ok is false when no
// endpoint is set, meaning transcripts are disabled.
func ConfigFromEnv() (cfg Config, ok bool) {
	cfg = Config{
		Endpoint:  strings.TrimSpace(os.Getenv("BENEISSUE_S3_ENDPOINT")),
		Region:    strings.TrimSpace(os.Getenv("BENEISSUE_S3_REGION")),
		AccessKey: strings.TrimSpace(os.Getenv("BENEISSUE_S3_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("BENEISSUE_S3_SECRET_KEY")),
		Bucket:    strings.TrimSpace(os.Getenv("BENEISSUE_S3_BUCKET")),
		UseSSL:    true,
	}
	if v := os.Getenv("BENEISSUE_S3_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.UseSSL = b
		}
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "beneissue-transcripts"
	}
	return cfg, cfg.Endpoint != ""
}

// S3Store writes objects to one bucket, creating it on first use.
type S3Store struct {
	client   *minio.Client
	bucket   string
	region   string
	initOnce sync.Once
	initErr  error
}

// NewS3Store validates cfg and builds a client. No request is made.
func NewS3Store(cfg Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Store{client: client, bucket: cfg.Bucket, region: region}, nil
}

// NewFromEnv returns a store from BENEISSUE_S3_* variables, or nil when
// transcripts are not configured.
func NewFromEnv() (*S3Store, error) {
	cfg, ok := ConfigFromEnv()
	if !ok {
		return nil, nil
	}
	return NewS3Store(cfg)
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// Put uploads data under key.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get downloads the object at key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "NoSuchKey" || code == "NoSuchBucket" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// List returns the keys under prefix, sorted.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	prefix = strings.TrimSuffix(strings.TrimLeft(prefix, "/"), "/") + "/"
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			code := minio.ToErrorResponse(obj.Err).Code
			if code == "NoSuchBucket" {
				return nil, nil
			}
			return nil, obj.Err
		}
		if obj.Key != "" {
			keys = append(keys, obj.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// TranscriptPrefix is the key prefix of the transcripts for one issue.
func TranscriptPrefix(repo string, issue int) string {
	return fmt.Sprintf("%s/%d/", repo, issue)
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("object key %q escapes its prefix", key)
		}
	}
	return key, nil
}

package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cppla/bottlecaps/config"
)

// MediaStorage persists uploaded media objects and returns their public URL.
type MediaStorage interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

// LocalMediaURLPrefix is where the router serves the local media directory.
const LocalMediaURLPrefix = "/media"

// NewMediaStorage picks S3-compatible storage when a bucket is configured and
// falls back to the local uploads directory otherwise.
func NewMediaStorage(ctx context.Context, cfg config.AppConfig) (MediaStorage, error) {
	if cfg.MediaBucket == "" {
		return NewLocalMediaStorage(cfg.MediaLocalDir, LocalMediaURLPrefix), nil
	}
	return NewS3MediaStorage(ctx, cfg)
}

// S3MediaStorage writes objects to an S3 (or R2/MinIO) bucket.
type S3MediaStorage struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

func NewS3MediaStorage(ctx context.Context, cfg config.AppConfig) (*S3MediaStorage, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.MediaRegion),
	}
	if cfg.MediaAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.MediaAccessKey, cfg.MediaSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load media storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.MediaEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.MediaEndpoint)
			o.UsePathStyle = true
		}
	})

	baseURL := strings.TrimRight(cfg.MediaPublicBaseURL, "/")
	if baseURL == "" {
		endpoint := strings.TrimRight(cfg.MediaEndpoint, "/")
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.MediaRegion)
		}
		baseURL = endpoint + "/" + cfg.MediaBucket
	}
	return &S3MediaStorage{client: client, bucket: cfg.MediaBucket, baseURL: baseURL}, nil
}

func (s *S3MediaStorage) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("upload media %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

func (s *S3MediaStorage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete media %s: %w", key, err)
	}
	return nil
}

// LocalMediaStorage keeps objects under a directory served by the router.
type LocalMediaStorage struct {
	dir     string
	urlBase string
}

func NewLocalMediaStorage(dir, urlBase string) *LocalMediaStorage {
	return &LocalMediaStorage{dir: dir, urlBase: strings.TrimRight(urlBase, "/")}
}

func (s *LocalMediaStorage) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", errors.New("empty media key")
	}
	return filepath.Join(s.dir, filepath.FromSlash(clean)), nil
}

func (s *LocalMediaStorage) Put(_ context.Context, key, _ string, body io.Reader, size int64) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	// Copy one extra byte so an oversize body is detected instead of truncated.
	n, err := io.Copy(f, io.LimitReader(body, size+1))
	if err != nil {
		_ = os.Remove(p)
		return "", err
	}
	if n > size {
		_ = os.Remove(p)
		return "", fmt.Errorf("media %s is larger than declared %d bytes", key, size)
	}
	return s.urlBase + filepath.ToSlash(filepath.Clean("/"+key)), nil
}

func (s *LocalMediaStorage) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const immutableCacheControl = "public, max-age=31536000, immutable"

// S3Store implements ObjectStore for S3 and S3-compatible storage
type S3Store struct {
	client        *s3.Client
	presign       *s3.PresignClient
	basePath      string
	endpoint      string
	region        string
	publicBaseURL string
}

// S3Config holds S3 connection configuration
type S3Config struct {
	BasePath      string
	Region        string
	Endpoint      string // for S3-compatible services like MinIO or R2
	UsePathStyle  bool
	PublicBaseURL string
}

// NewS3Store creates a new S3 object store
func NewS3Store(s3Config S3Config) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(s3Config.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if s3Config.Endpoint != "" {
		cfg.BaseEndpoint = aws.String(s3Config.Endpoint)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = s3Config.UsePathStyle
	})

	return &S3Store{
		client:        client,
		presign:       s3.NewPresignClient(client),
		basePath:      s3Config.BasePath,
		endpoint:      strings.TrimRight(s3Config.Endpoint, "/"),
		region:        s3Config.Region,
		publicBaseURL: s3Config.PublicBaseURL,
	}, nil
}

// Put uploads data to bucket/key, overwriting any existing object
func (s *S3Store) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	objectKey, err := s.getKey(bucket, key)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(objectKey),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(immutableCacheControl),
	})
	return err
}

// Get downloads the object at bucket/key
func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	objectKey, err := s.getKey(bucket, key)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// Exists checks if an object exists at bucket/key
func (s *S3Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	objectKey, err := s.getKey(bucket, key)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		// Check if it's a "not found" error
		var notFoundErr *types.NotFound
		if errors.As(err, &notFoundErr) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// Delete deletes the object at bucket/key
func (s *S3Store) Delete(ctx context.Context, bucket, key string) error {
	objectKey, err := s.getKey(bucket, key)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	})
	return err
}

// SignedURL presigns a GET for bucket/key valid for ttl
func (s *S3Store) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	objectKey, err := s.getKey(bucket, key)
	if err != nil {
		return "", err
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// PublicURL returns the public URL for bucket/key. Without a configured public
// base the path-style bucket endpoint is used.
func (s *S3Store) PublicURL(bucket, key string) string {
	if s.publicBaseURL != "" {
		return publicObjectURL(s.publicBaseURL, bucket, key)
	}
	objectKey, _ := s.getKey(bucket, key)
	endpoint := s.endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", s.region)
	}
	return fmt.Sprintf("%s/%s/%s", endpoint, bucket, objectKey)
}

// getKey constructs the full S3 key from the path
func (s *S3Store) getKey(bucket, key string) (string, error) {
	cleaned, err := cleanKey(bucket, key)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(path.Join(s.basePath, cleaned), "/"), nil
}

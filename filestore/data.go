package filestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidKey is returned for empty or escaping bucket/key values.
var ErrInvalidKey = errors.New("invalid bucket or key")

// ObjectStore is a bucket-addressed blob store. Put is an upsert.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Delete(ctx context.Context, bucket, key string) error
	// PublicURL returns the durable retrieval URL for an object.
	PublicURL(bucket, key string) string
}

// Signer is implemented by stores that can hand out time-limited URLs.
type Signer interface {
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// StoreConfig holds configuration for object storage backends
type StoreConfig struct {
	BackendType string // "local", "sftp", "s3"

	Bucket        string
	PublicBaseURL string
	SignedURLTTL  time.Duration

	// Local backend config
	LocalBasePath string

	// SFTP backend config
	SFTPHost     string
	SFTPPort     int
	SFTPUsername string
	SFTPPassword string
	SFTPKeyFile  string
	SFTPHostKey  string
	SFTPBasePath string

	// S3 backend config
	S3Region       string
	S3Endpoint     string
	S3BasePath     string
	S3UsePathStyle bool
}

// ParseStoreConfigFromEnv parses storage configuration from environment variables
func ParseStoreConfigFromEnv() (*StoreConfig, error) {
	config := &StoreConfig{
		BackendType:   getEnvOrDefault("VITRINE_STORAGE_BACKEND", "local"),
		Bucket:        getEnvOrDefault("VITRINE_STORAGE_BUCKET", "products"),
		PublicBaseURL: strings.TrimRight(getEnvOrDefault("VITRINE_STORAGE_PUBLIC_URL", "http://localhost:3000/storage"), "/"),
		SignedURLTTL:  15 * time.Minute,
	}

	if ttl := os.Getenv("VITRINE_SIGNED_URL_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid signed URL TTL: %w", err)
		}
		config.SignedURLTTL = d
	}

	switch config.BackendType {
	case "local":
		config.LocalBasePath = getEnvOrDefault("VITRINE_STORAGE_LOCAL_PATH", "")
	case "sftp":
		config.SFTPHost = getEnvOrDefault("VITRINE_STORAGE_SFTP_HOST", "")
		if portStr := os.Getenv("VITRINE_STORAGE_SFTP_PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return nil, fmt.Errorf("invalid SFTP port: %w", err)
			}
			config.SFTPPort = port
		} else {
			config.SFTPPort = 22
		}
		config.SFTPUsername = getEnvOrDefault("VITRINE_STORAGE_SFTP_USERNAME", "")
		config.SFTPPassword = getEnvOrDefault("VITRINE_STORAGE_SFTP_PASSWORD", "")
		config.SFTPKeyFile = getEnvOrDefault("VITRINE_STORAGE_SFTP_KEY_FILE", "")
		config.SFTPHostKey = getEnvOrDefault("VITRINE_STORAGE_SFTP_HOST_KEY", "")
		config.SFTPBasePath = getEnvOrDefault("VITRINE_STORAGE_SFTP_BASE_PATH", "")
	case "s3":
		config.S3Region = getEnvOrDefault("VITRINE_STORAGE_S3_REGION", "")
		config.S3Endpoint = getEnvOrDefault("VITRINE_STORAGE_S3_ENDPOINT", "")
		config.S3BasePath = getEnvOrDefault("VITRINE_STORAGE_S3_BASE_PATH", "")
		config.S3UsePathStyle = os.Getenv("VITRINE_STORAGE_S3_PATH_STYLE") == "true"
	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.BackendType)
	}

	return config, nil
}

// Validate validates the storage configuration
func (c *StoreConfig) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}
	switch c.BackendType {
	case "local":
		if c.LocalBasePath == "" {
			return fmt.Errorf("local base path is required for local backend")
		}
	case "sftp":
		if c.SFTPHost == "" {
			return fmt.Errorf("SFTP host is required")
		}
		if c.SFTPUsername == "" {
			return fmt.Errorf("SFTP username is required")
		}
		if c.SFTPPassword == "" && c.SFTPKeyFile == "" {
			return fmt.Errorf("either SFTP password or key file is required")
		}
	case "s3":
		if c.S3Region == "" {
			return fmt.Errorf("S3 region is required")
		}
	default:
		return fmt.Errorf("unsupported storage backend type: %s", c.BackendType)
	}
	return nil
}

// CreateStore creates an object store from the configuration
func (c *StoreConfig) CreateStore() (ObjectStore, error) {
	switch c.BackendType {
	case "local":
		return NewLocalStore(c.LocalBasePath, c.PublicBaseURL), nil
	case "sftp":
		return NewSFTPStore(SFTPConfig{
			Host:          c.SFTPHost,
			Port:          c.SFTPPort,
			Username:      c.SFTPUsername,
			Password:      c.SFTPPassword,
			KeyFile:       c.SFTPKeyFile,
			HostKey:       c.SFTPHostKey,
			BasePath:      c.SFTPBasePath,
			PublicBaseURL: c.PublicBaseURL,
		})
	case "s3":
		return NewS3Store(S3Config{
			Region:        c.S3Region,
			Endpoint:      c.S3Endpoint,
			BasePath:      c.S3BasePath,
			UsePathStyle:  c.S3UsePathStyle,
			PublicBaseURL: c.PublicBaseURL,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", c.BackendType)
	}
}

// publicObjectURL builds "{base}/object/public/{bucket}/{key}", the layout
// internal references are recognised by.
func publicObjectURL(base, bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/object/public/%s/%s", strings.TrimRight(base, "/"), url.PathEscape(bucket), strings.Join(segments, "/"))
}

// cleanKey rejects keys that are empty or try to leave the bucket.
func cleanKey(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == ".." {
		return "", ErrInvalidKey
	}
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

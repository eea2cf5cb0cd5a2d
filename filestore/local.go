package filestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

// LocalStore implements ObjectStore on the local file system. Each bucket is a
// directory below basePath.
type LocalStore struct {
	basePath      string
	publicBaseURL string
}

// NewLocalStore creates a new local file system store
func NewLocalStore(basePath, publicBaseURL string) *LocalStore {
	return &LocalStore{
		basePath:      basePath,
		publicBaseURL: publicBaseURL,
	}
}

// Put writes data to bucket/key, replacing any existing object.
func (l *LocalStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	fullPath, err := l.fullPath(bucket, key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}

	// Write through a temp file so readers never observe a partial object
	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), fullPath)
}

// Get reads the object at bucket/key
func (l *LocalStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	fullPath, err := l.fullPath(bucket, key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return data, err
}

// Exists checks if an object exists at bucket/key
func (l *LocalStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	fullPath, err := l.fullPath(bucket, key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// Delete deletes the object at bucket/key
func (l *LocalStore) Delete(ctx context.Context, bucket, key string) error {
	fullPath, err := l.fullPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// PublicURL returns the URL the HTTP server exposes the object under.
func (l *LocalStore) PublicURL(bucket, key string) string {
	return publicObjectURL(l.publicBaseURL, bucket, key)
}

// Root returns the directory buckets are stored under.
func (l *LocalStore) Root() string {
	return l.basePath
}

func (l *LocalStore) fullPath(bucket, key string) (string, error) {
	cleaned, err := cleanKey(bucket, key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.basePath, bucket, filepath.FromSlash(cleaned)), nil
}

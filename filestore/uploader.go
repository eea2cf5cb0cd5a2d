package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/aws/smithy-go"
	"github.com/gofiber/fiber/v2/log"

	"github.com/alexander-bruun/vitrine/utils"
)

// SlotMain is the storage slot of a product's cover.
const SlotMain = "main"

// UploadError wraps a failed Put. Transient errors are retried.
type UploadError struct {
	Bucket    string
	Path      string
	Transient bool
	Err       error
}

func (e *UploadError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("upload %s/%s: %s error: %v", e.Bucket, e.Path, kind, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether an upload error may be retried.
func IsTransient(err error) bool {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue.Transient
	}
	return false
}

// StoredObject is the durable reference returned by a successful upload.
type StoredObject struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	URL    string `json:"url"`
}

// GallerySlot returns the slot name for a gallery image. The slot depends
// only on the source reference, so reordering or removing other gallery
// images never moves it onto another image's objects.
func GallerySlot(sourceRef string) string {
	sum := sha256.Sum256([]byte(sourceRef))
	return "gallery-" + hex.EncodeToString(sum[:6])
}

// VariantPath builds the canonical object key
// "{tenant}/{slot}/{reference}-{width}w.{ext}".
func VariantPath(tenant, slot, reference string, width int, ext string) string {
	tenantSafe := utils.SafeIdentifier(tenant)
	if tenantSafe == "" {
		tenantSafe = "default"
	}
	refSafe := utils.SafeIdentifier(reference)
	if refSafe == "" {
		refSafe = "item"
	}
	return fmt.Sprintf("%s/%s/%s-%dw.%s", tenantSafe, slot, refSafe, width, ext)
}

// Uploader writes variants to object storage with retries.
type Uploader struct {
	store  ObjectStore
	bucket string
	retry  utils.RetryConfig
}

// NewUploader creates an uploader writing into bucket.
func NewUploader(store ObjectStore, bucket string, retry utils.RetryConfig) *Uploader {
	return &Uploader{store: store, bucket: bucket, retry: retry}
}

// Bucket returns the default destination bucket.
func (u *Uploader) Bucket() string {
	return u.bucket
}

// Upload upserts data at path in the default bucket.
func (u *Uploader) Upload(ctx context.Context, path string, data []byte, contentType string) (*StoredObject, error) {
	return u.UploadTo(ctx, u.bucket, path, data, contentType)
}

// UploadTo upserts data at bucket/path and returns its durable reference.
func (u *Uploader) UploadTo(ctx context.Context, bucket, path string, data []byte, contentType string) (*StoredObject, error) {
	_, err := utils.Retry(ctx, u.retry, "upload "+path, func(ctx context.Context) (struct{}, error) {
		if err := u.store.Put(ctx, bucket, path, data, contentType); err != nil {
			return struct{}{}, classifyStoreError(bucket, path, err)
		}
		return struct{}{}, nil
	}, IsTransient)
	if err != nil {
		log.Warnf("Upload of %s/%s failed: %v", bucket, path, err)
		var ue *UploadError
		if !errors.As(err, &ue) {
			err = &UploadError{Bucket: bucket, Path: path, Err: err}
		}
		return nil, err
	}

	return &StoredObject{
		Bucket: bucket,
		Path:   path,
		URL:    u.store.PublicURL(bucket, path),
	}, nil
}

// Remove deletes path from the default bucket. A missing object is not an error.
func (u *Uploader) Remove(ctx context.Context, path string) error {
	if err := u.store.Delete(ctx, u.bucket, path); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("remove %s/%s: %w", u.bucket, path, err)
	}
	return nil
}

// permanentAPICodes are S3 error codes a retry cannot fix.
var permanentAPICodes = map[string]bool{
	"AccessDenied":          true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"NoSuchBucket":          true,
	"InvalidBucketName":     true,
	"InvalidArgument":       true,
	"InvalidRequest":        true,
	"EntityTooLarge":        true,
	"KeyTooLongError":       true,
}

var retryableAPICodes = map[string]bool{
	"RequestTimeout":      true,
	"SlowDown":            true,
	"Throttling":          true,
	"ThrottlingException": true,
}

func classifyStoreError(bucket, path string, err error) *UploadError {
	ue := &UploadError{Bucket: bucket, Path: path, Err: err, Transient: true}

	switch {
	case errors.Is(err, ErrInvalidKey), errors.Is(err, os.ErrPermission):
		ue.Transient = false
	case errors.Is(err, context.Canceled):
		ue.Transient = false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if retryableAPICodes[code] {
			return ue
		}
		if permanentAPICodes[code] {
			ue.Transient = false
			return ue
		}
	}

	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		code := statusErr.HTTPStatusCode()
		if code >= 400 && code < 500 && code != 408 && code != 429 {
			ue.Transient = false
		}
	}
	return ue
}

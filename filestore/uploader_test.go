package filestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexander-bruun/vitrine/utils"
)

// flakyStore fails the first n Puts with err.
type flakyStore struct {
	*LocalStore
	failures int
	err      error
	calls    int
}

func (f *flakyStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return f.LocalStore.Put(ctx, bucket, key, data, contentType)
}

func testRetry() utils.RetryConfig {
	return utils.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond}
}

func TestVariantPath(t *testing.T) {
	tests := []struct {
		tenant, slot, ref string
		width             int
		expected          string
	}{
		{"Tenant-1", SlotMain, "SKU 1042/B", 320, "tenant-1/main/sku-1042-b-320w.webp"},
		{"t1", GallerySlot("https://cdn.vendor.test/a-P01.jpg"), "ref_01", 1200, "t1/gallery-665ce720b7a5/ref_01-1200w.webp"},
		{"", SlotMain, "###", 640, "default/main/item-640w.webp"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, VariantPath(tt.tenant, tt.slot, tt.ref, tt.width, "webp"))
	}
}

func TestGallerySlot_StablePerSource(t *testing.T) {
	a := GallerySlot("https://cdn.vendor.test/a-P01.jpg")
	assert.Equal(t, a, GallerySlot("https://cdn.vendor.test/a-P01.jpg"))
	assert.NotEqual(t, a, GallerySlot("https://cdn.vendor.test/b-P02.jpg"))
}

func TestUploader_Remove(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "http://localhost:3000/storage")
	u := NewUploader(store, "products", testRetry())
	ctx := context.Background()

	_, err := u.Upload(ctx, "t1/gallery-x/sku-320w.webp", []byte("webp"), "image/webp")
	require.NoError(t, err)

	require.NoError(t, u.Remove(ctx, "t1/gallery-x/sku-320w.webp"))
	_, err = store.Get(ctx, "products", "t1/gallery-x/sku-320w.webp")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// Removing twice is fine.
	assert.NoError(t, u.Remove(ctx, "t1/gallery-x/sku-320w.webp"))
}

func TestUploader_Upload(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "http://localhost:3000/storage")
	u := NewUploader(store, "products", testRetry())

	obj, err := u.Upload(context.Background(), "t1/main/sku-320w.webp", []byte("webp"), "image/webp")

	require.NoError(t, err)
	assert.Equal(t, "products", obj.Bucket)
	assert.Equal(t, "t1/main/sku-320w.webp", obj.Path)
	assert.Equal(t, "http://localhost:3000/storage/object/public/products/t1/main/sku-320w.webp", obj.URL)
}

func TestUploader_RetriesTransientErrors(t *testing.T) {
	store := &flakyStore{
		LocalStore: NewLocalStore(t.TempDir(), ""),
		failures:   2,
		err:        errors.New("connection reset by peer"),
	}
	u := NewUploader(store, "products", testRetry())

	_, err := u.Upload(context.Background(), "t1/main/a-320w.webp", []byte("x"), "image/webp")

	require.NoError(t, err)
	assert.Equal(t, 3, store.calls)
}

func TestUploader_PermanentErrorStopsImmediately(t *testing.T) {
	store := &flakyStore{
		LocalStore: NewLocalStore(t.TempDir(), ""),
		failures:   10,
		err:        &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"},
	}
	u := NewUploader(store, "products", testRetry())

	_, err := u.Upload(context.Background(), "t1/main/a-320w.webp", []byte("x"), "image/webp")

	var ue *UploadError
	require.True(t, errors.As(err, &ue))
	assert.False(t, ue.Transient)
	assert.Equal(t, 1, store.calls)
}

func TestUploader_ExhaustedRetriesSurfaceUploadError(t *testing.T) {
	store := &flakyStore{
		LocalStore: NewLocalStore(t.TempDir(), ""),
		failures:   10,
		err:        &smithy.GenericAPIError{Code: "SlowDown", Message: "reduce rate"},
	}
	u := NewUploader(store, "products", testRetry())

	_, err := u.Upload(context.Background(), "t1/main/a-320w.webp", []byte("x"), "image/webp")

	var ue *UploadError
	require.True(t, errors.As(err, &ue))
	var retryErr *utils.RetryError
	assert.True(t, errors.As(err, &retryErr))
	assert.Equal(t, 3, store.calls)
}

func TestClassifyStoreError(t *testing.T) {
	assert.False(t, classifyStoreError("b", "k", ErrInvalidKey).Transient)
	assert.True(t, classifyStoreError("b", "k", errors.New("i/o timeout")).Transient)
	assert.False(t, classifyStoreError("b", "k", &smithy.GenericAPIError{Code: "NoSuchBucket"}).Transient)
	assert.True(t, classifyStoreError("b", "k", &smithy.GenericAPIError{Code: "InternalError"}).Transient)
}

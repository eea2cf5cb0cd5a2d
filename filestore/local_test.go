package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutGetExistsDelete(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir(), "http://localhost:3000/storage")

	require.NoError(t, store.Put(ctx, "products", "t1/main/sku-320w.webp", []byte("v1"), "image/webp"))

	exists, err := store.Exists(ctx, "products", "t1/main/sku-320w.webp")
	require.NoError(t, err)
	assert.True(t, exists)

	// Put is an upsert
	require.NoError(t, store.Put(ctx, "products", "t1/main/sku-320w.webp", []byte("v2"), "image/webp"))
	data, err := store.Get(ctx, "products", "/t1/main/sku-320w.webp")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	require.NoError(t, store.Delete(ctx, "products", "t1/main/sku-320w.webp"))
	_, err = store.Get(ctx, "products", "t1/main/sku-320w.webp")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// Deleting twice is not an error
	assert.NoError(t, store.Delete(ctx, "products", "t1/main/sku-320w.webp"))
}

func TestLocalStore_LeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root, "")

	require.NoError(t, store.Put(context.Background(), "b", "dir/file.webp", []byte("x"), "image/webp"))

	entries, err := os.ReadDir(filepath.Join(root, "b", "dir"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "file.webp", entries[0].Name())
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir(), "")

	for _, key := range []string{"", "/", "../outside.webp", "a/../../outside.webp"} {
		err := store.Put(ctx, "products", key, []byte("x"), "image/webp")
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
	assert.ErrorIs(t, store.Put(ctx, "", "a.webp", nil, ""), ErrInvalidKey)
	assert.ErrorIs(t, store.Put(ctx, "a/b", "a.webp", nil, ""), ErrInvalidKey)
}

func TestLocalStore_PublicURL(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "https://media.example/storage/")

	assert.Equal(t,
		"https://media.example/storage/object/public/products/t1/main/sku%20x-320w.webp",
		store.PublicURL("products", "t1/main/sku x-320w.webp"))
}

func TestStoreConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  StoreConfig
		wantErr bool
	}{
		{"local ok", StoreConfig{BackendType: "local", Bucket: "p", LocalBasePath: "/tmp/x"}, false},
		{"local without path", StoreConfig{BackendType: "local", Bucket: "p"}, true},
		{"missing bucket", StoreConfig{BackendType: "local", LocalBasePath: "/tmp/x"}, true},
		{"s3 ok", StoreConfig{BackendType: "s3", Bucket: "p", S3Region: "eu-west-1"}, false},
		{"s3 without region", StoreConfig{BackendType: "s3", Bucket: "p"}, true},
		{"sftp without auth", StoreConfig{BackendType: "sftp", Bucket: "p", SFTPHost: "h", SFTPUsername: "u"}, true},
		{"sftp with key", StoreConfig{BackendType: "sftp", Bucket: "p", SFTPHost: "h", SFTPUsername: "u", SFTPKeyFile: "/k"}, false},
		{"unknown", StoreConfig{BackendType: "tape", Bucket: "p"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseStoreConfigFromEnv(t *testing.T) {
	t.Setenv("VITRINE_STORAGE_BACKEND", "sftp")
	t.Setenv("VITRINE_STORAGE_BUCKET", "catalog")
	t.Setenv("VITRINE_STORAGE_SFTP_HOST", "files.internal")
	t.Setenv("VITRINE_STORAGE_SFTP_USERNAME", "media")
	t.Setenv("VITRINE_STORAGE_SFTP_PASSWORD", "secret")
	t.Setenv("VITRINE_SIGNED_URL_TTL", "5m")

	cfg, err := ParseStoreConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "catalog", cfg.Bucket)
	assert.Equal(t, 22, cfg.SFTPPort)
	assert.Equal(t, "files.internal", cfg.SFTPHost)
	assert.Equal(t, "5m0s", cfg.SignedURLTTL.String())
	assert.NoError(t, cfg.Validate())

	t.Setenv("VITRINE_STORAGE_SFTP_PORT", "twenty-two")
	_, err = ParseStoreConfigFromEnv()
	assert.Error(t, err)
}

package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexander-bruun/vitrine/imageref"
	"github.com/alexander-bruun/vitrine/models"
	"github.com/alexander-bruun/vitrine/scheduler"
)

// runRoot executes the command tree with args and returns its output and the
// exit code a failing command requested.
func runRoot(t *testing.T, args ...string) (string, int) {
	t.Helper()

	exitCode := 0
	exit = func(code int) { exitCode = code }
	t.Cleanup(func() { exit = defaultExit })

	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String(), exitCode
}

var defaultExit = exit

func isolateEnv(t *testing.T) {
	t.Setenv("VITRINE_ENV", "development")
	t.Setenv("VITRINE_STORAGE_BACKEND", "local")
	t.Setenv("VITRINE_STORAGE_LOCAL_PATH", "")
	t.Setenv("SYNC_SCHEDULE", "")
}

func TestNewRootCmd(t *testing.T) {
	root := NewRootCmd("1.0.0")

	assert.Equal(t, "vitrine", root.Use)
	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "sync", "import", "migrate", "version"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("data-directory"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

func TestNewSyncCmd(t *testing.T) {
	dataDir := "/tmp/test"
	cmd := NewSyncCmd(&dataDir)

	assert.Equal(t, "sync", cmd.Use)
	assert.Len(t, cmd.Commands(), 3)

	repair := newSyncRepairCmd(&dataDir)
	for _, flag := range []string{"id", "brand", "search", "limit"} {
		assert.NotNil(t, repair.Flags().Lookup(flag), flag)
	}
}

func TestParseMigrationTarget(t *testing.T) {
	v, err := parseMigrationTarget("all")
	assert.NoError(t, err)
	assert.Equal(t, 0, v)

	v, err = parseMigrationTarget("3")
	assert.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = parseMigrationTarget("latest")
	assert.Error(t, err)
}

func TestLoadConfigDataDirectoryOverride(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	cfg, err := loadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDirectory)
	assert.Equal(t, filepath.Join(dir, "objects"), cfg.Storage.LocalBasePath)
}

func TestLoadConfigKeepsExplicitStoragePath(t *testing.T) {
	isolateEnv(t)
	storage := t.TempDir()
	t.Setenv("VITRINE_STORAGE_LOCAL_PATH", storage)

	cfg, err := loadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, storage, cfg.Storage.LocalBasePath)
}

func TestMigrateAndDiagnosticsCommands(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	out, code := runRoot(t, "migrate", "up", "all", "--data-directory", dir)
	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, "All pending migrations applied successfully")

	out, code = runRoot(t, "migrate", "status", "--data-directory", dir)
	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, "Schema version: 2")

	out, code = runRoot(t, "sync", "diagnostics", "--data-directory", dir)
	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, "Internal images: 0")
	assert.Contains(t, out, "External images: 0")
}

func TestSyncRunWithNoCandidates(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	_, code := runRoot(t, "migrate", "up", "all", "--data-directory", dir)
	require.Equal(t, 0, code)

	out, code := runRoot(t, "sync", "run", "--data-directory", dir)
	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, "Processed 0 of 0 products")
}

func TestMigrateRejectsBadVersion(t *testing.T) {
	out, code := runRoot(t, "migrate", "up", "latest", "--data-directory", t.TempDir())
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Invalid version number: latest")
}

func TestImportFeed(t *testing.T) {
	require.NoError(t, models.Initialize(t.TempDir()))
	t.Cleanup(func() { models.Close() })

	feed := `[
		{"id": "p1", "tenantId": "acme", "reference": "a", "brand": "Acme", "name": "Lamp",
		 "imageUrl": "https://cdn.vendor.test/a-P00.jpg",
		 "images": ["https://cdn.vendor.test/a-P01.jpg", {"url": "https://cdn.vendor.test/a-P13.jpg"}]},
		{"id": "p2", "reference": "b", "imageUrl": null, "images": "https://cdn.vendor.test/b.jpg;https://cdn.vendor.test/b2.jpg"},
		{"id": "", "tenantId": "acme", "reference": "orphan"}
	]`

	stats, err := importFeed(context.Background(), strings.NewReader(feed), "default-tenant")
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Imported: 2, Skipped: 1}, stats)

	p1, err := models.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, p1.SyncStatus)
	assert.Equal(t, "https://cdn.vendor.test/a-P00.jpg", p1.ImageURL)
	assert.Equal(t, []string{
		"https://cdn.vendor.test/a-P01.jpg",
		"https://cdn.vendor.test/a-P13.jpg",
	}, imageref.FromString(p1.Images).Values())

	p2, err := models.GetProduct(context.Background(), "p2")
	require.NoError(t, err)
	assert.Equal(t, "default-tenant", p2.TenantID)
	assert.Empty(t, p2.ImageURL)
	assert.Len(t, imageref.FromString(p2.Images).Values(), 2)
}

func TestImportFeedRejectsObject(t *testing.T) {
	_, err := importFeed(context.Background(), strings.NewReader(`{"id":"p1"}`), "")
	assert.ErrorContains(t, err, "JSON array")
}

func TestRawColumn(t *testing.T) {
	assert.Equal(t, "", rawColumn(imageref.Raw{}))
	assert.Equal(t, "https://x.test/a.jpg", rawColumn(imageref.FromString("https://x.test/a.jpg")))
	assert.JSONEq(t, `["a","b"]`, rawColumn(imageref.FromValue([]string{"a", "b"})))
}

func TestStopSchedule(t *testing.T) {
	cron := scheduler.NewCronScheduler()
	stopSchedule(cron)
	assert.False(t, cron.IsRunning())

	cron.Start()
	require.True(t, cron.IsRunning())
	stopSchedule(cron)
	assert.False(t, cron.IsRunning())
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexander-bruun/vitrine/fetcher"
	"github.com/alexander-bruun/vitrine/filestore"
	"github.com/alexander-bruun/vitrine/models"
	"github.com/alexander-bruun/vitrine/proxy"
	"github.com/alexander-bruun/vitrine/resolver"
	"github.com/alexander-bruun/vitrine/scheduler"
	"github.com/alexander-bruun/vitrine/transcoder"
)

type fakeSync struct {
	ack       scheduler.Ack
	startErr  error
	report    scheduler.RepairReport
	repairErr error
	requests  []scheduler.RepairRequest
}

func (f *fakeSync) Start() (scheduler.Ack, error) {
	return f.ack, f.startErr
}

func (f *fakeSync) Repair(_ context.Context, req scheduler.RepairRequest) (scheduler.RepairReport, error) {
	f.requests = append(f.requests, req)
	return f.report, f.repairErr
}

func (f *fakeSync) Status() scheduler.Status {
	return scheduler.Status{RunID: f.ack.RunID, Running: true, Counters: scheduler.Counters{Total: 10, Processed: 4}}
}

type fakeDiagnostics struct {
	internal, external int64
	err                error
}

func (f fakeDiagnostics) CountImageKinds(context.Context) (int64, int64, error) {
	return f.internal, f.external, f.err
}

type fakeProxy struct {
	res  *proxy.Response
	err  error
	last transcoder.TransformRequest
}

func (f *fakeProxy) Get(_ context.Context, _ string, req transcoder.TransformRequest) (*proxy.Response, error) {
	f.last = req
	return f.res, f.err
}

type testEnv struct {
	app   *fiber.App
	sync  *fakeSync
	proxy *fakeProxy
	store *filestore.LocalStore
}

func newTestEnv(t *testing.T, debugAllowed bool) *testEnv {
	t.Helper()

	root := t.TempDir()
	store := filestore.NewLocalStore(root, "http://localhost:3000/storage")
	res := resolver.New(store, nil, resolver.Options{
		DefaultBucket: "products",
		Markers:       []string{"/object/public/"},
	})

	env := &testEnv{
		app:   fiber.New(),
		sync:  &fakeSync{ack: scheduler.Ack{RunID: "run-1", Started: true}},
		proxy: &fakeProxy{},
		store: store,
	}
	Initialize(env.app, &Services{
		Sync:         env.sync,
		Diagnostics:  fakeDiagnostics{internal: 7, external: 3},
		Resolver:     res,
		Proxy:        env.proxy,
		StorageRoot:  root,
		DebugAllowed: debugAllowed,
	})
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, body
}

func TestSyncStart(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.do(t, httptest.NewRequest(http.MethodPost, "/sync/start", nil))
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var ack scheduler.Ack
	require.NoError(t, json.Unmarshal(body, &ack))
	assert.Equal(t, "run-1", ack.RunID)
	assert.True(t, ack.Started)
}

func TestSyncStartDuringShutdown(t *testing.T) {
	env := newTestEnv(t, false)
	env.sync.startErr = scheduler.ErrShutdown

	resp, _ := env.do(t, httptest.NewRequest(http.MethodPost, "/sync/start", nil))
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestSyncRepair(t *testing.T) {
	env := newTestEnv(t, false)
	env.sync.report = scheduler.RepairReport{
		SuccessCount: 1,
		FailCount:    1,
		Logs:         []string{"repairing 2 products", "product a synced", "product b failed: HTTP 404"},
	}

	req := httptest.NewRequest(http.MethodPost, "/sync/repair", strings.NewReader(`{"brand":"Acme","limit":50}`))
	req.Header.Set("Content-Type", "application/json")
	resp, body := env.do(t, req)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var report map[string]any
	require.NoError(t, json.Unmarshal(body, &report))
	assert.EqualValues(t, 1, report["successCount"])
	assert.EqualValues(t, 1, report["failCount"])
	assert.Len(t, report["logs"], 3)

	require.Len(t, env.sync.requests, 1)
	assert.Equal(t, "Acme", env.sync.requests[0].Brand)
	assert.Equal(t, 50, env.sync.requests[0].Limit)
}

func TestSyncRepairEmptyBody(t *testing.T) {
	env := newTestEnv(t, false)

	resp, _ := env.do(t, httptest.NewRequest(http.MethodPost, "/sync/repair", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Len(t, env.sync.requests, 1)
	assert.Equal(t, scheduler.RepairRequest{}, env.sync.requests[0])
}

func TestSyncRepairRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, false)

	req := httptest.NewRequest(http.MethodPost, "/sync/repair", strings.NewReader(`{"limit":`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := env.do(t, req)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/sync/repair", strings.NewReader(`{"limit":-1}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = env.do(t, req)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	assert.Empty(t, env.sync.requests)
}

func TestSyncRepairFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.sync.repairErr = errors.New("select products: database is locked")

	resp, body := env.do(t, httptest.NewRequest(http.MethodPost, "/sync/repair", nil))
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, string(body), "database is locked")
}

func TestSyncDiagnostics(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/sync/diagnostics", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"totalInternal":7,"totalExternal":3}`, string(body))
}

func TestSyncStatus(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/sync/status", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var status scheduler.Status
	require.NoError(t, json.Unmarshal(body, &status))
	assert.True(t, status.Running)
	assert.EqualValues(t, 10, status.Total)
	assert.EqualValues(t, 4, status.Processed)
}

func TestSyncLogsRequiresUpgrade(t *testing.T) {
	env := newTestEnv(t, false)

	resp, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/sync/logs", nil))
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}

func TestStorageImageMissReturnsPlaceholder(t *testing.T) {
	env := newTestEnv(t, true)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/images/storage?path=acme/missing.webp", nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, resolver.Placeholder(), body)
}

func TestStorageImageDebugReport(t *testing.T) {
	env := newTestEnv(t, true)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/images/storage?path=acme/missing.webp&debug=1", nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var report resolver.Report
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, "acme/missing.webp", report.RequestedPath)
	assert.NotEmpty(t, report.Attempts)
	assert.Nil(t, report.Resolved)
}

func TestStorageImageDebugDisallowed(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/images/storage?path=acme/missing.webp&debug=1", nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, resolver.Placeholder(), body)
}

func TestStorageImageHit(t *testing.T) {
	env := newTestEnv(t, false)
	image := resolver.Placeholder()
	require.NoError(t, env.store.Put(context.Background(), "products", "acme/a-P00-320w.png", image, "image/png"))

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/images/storage?path=acme/a-P00-320w.png", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, immutableCacheControl, resp.Header.Get("Cache-Control"))
	assert.True(t, bytes.Equal(image, body))
}

func TestStorageImageRejectsInvalidPath(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/images/storage?path=null", nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, resolver.Placeholder(), body)
}

func proxyURL(target string, extra url.Values) string {
	q := url.Values{"url": {target}}
	for k, v := range extra {
		q[k] = v
	}
	return "/images/proxy?" + q.Encode()
}

func TestProxyImage(t *testing.T) {
	env := newTestEnv(t, false)
	env.proxy.res = &proxy.Response{Data: []byte("webp-bytes"), ContentType: "image/webp", Transformed: true}

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, proxyURL("https://cdn.vendor.test/a.jpg", url.Values{
		"w": {"150"}, "h": {"100"}, "q": {"70"}, "format": {"webp"},
	}), nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/webp", resp.Header.Get("Content-Type"))
	assert.Equal(t, immutableCacheControl, resp.Header.Get("Cache-Control"))
	assert.Equal(t, "webp-bytes", string(body))
	assert.Equal(t, transcoder.TransformRequest{Width: 150, Height: 100, Quality: 70, Format: "webp"}, env.proxy.last)
}

func TestProxyImageErrors(t *testing.T) {
	tests := []struct {
		name        string
		query       url.Values
		err         error
		status      int
		contentType string
	}{
		{"invalid url", nil, proxy.ErrInvalidURL, fiber.StatusBadRequest, "application/json"},
		{"not an image", nil, &fetcher.NotAnImageError{URL: "x", ContentType: "text/html"}, fiber.StatusUnsupportedMediaType, "application/json"},
		{"upstream failure", nil, &fetcher.FetchError{URL: "x", Status: 404}, fiber.StatusBadGateway, "image/png"},
		{"bad width", url.Values{"w": {"wide"}}, nil, fiber.StatusBadRequest, "application/json"},
		{"bad quality", url.Values{"q": {"101"}}, nil, fiber.StatusBadRequest, "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			env.proxy.err = tt.err

			resp, _ := env.do(t, httptest.NewRequest(http.MethodGet, proxyURL("https://cdn.vendor.test/a.jpg", tt.query), nil))
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), tt.contentType)
		})
	}
}

func TestPublicStorageServesLocalObjects(t *testing.T) {
	env := newTestEnv(t, false)
	require.NoError(t, env.store.Put(context.Background(), "products", "acme/main/a-320w.webp", []byte("RIFF"), "image/webp"))

	target := env.store.PublicURL("products", "acme/main/a-320w.webp")
	u, err := url.Parse(target)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u.Path, "/storage"+"/object/public/"))

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, PublicStoragePrefix+"/products/acme/main/a-320w.webp", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "RIFF", string(body))

	_, err = os.Stat(filepath.Join(env.store.Root(), "products", "acme", "main", "a-320w.webp"))
	assert.NoError(t, err)
}

func TestHealthWithoutDatabase(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "NOT READY", string(body))

	resp, body = env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "UNHEALTHY", string(body))
}

func TestHealthAndMetrics(t *testing.T) {
	require.NoError(t, models.Initialize(t.TempDir()))
	t.Cleanup(func() { models.Close() })
	require.NoError(t, models.UpsertProduct(context.Background(), models.Product{
		ID:       "p1",
		TenantID: "acme",
		ImageURL: "https://cdn.vendor.test/a-P00.jpg",
	}))

	env := newTestEnv(t, false)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, body = env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `vitrine_products{status="pending"} 1`)
	assert.Contains(t, string(body), `vitrine_product_images{kind="external"} 1`)
}

package handlers

import (
	"context"

	"github.com/alexander-bruun/vitrine/proxy"
	"github.com/alexander-bruun/vitrine/resolver"
	"github.com/alexander-bruun/vitrine/scheduler"
	"github.com/alexander-bruun/vitrine/transcoder"
)

// SyncService triggers and reports on sync runs.
type SyncService interface {
	Start() (scheduler.Ack, error)
	Repair(ctx context.Context, req scheduler.RepairRequest) (scheduler.RepairReport, error)
	Status() scheduler.Status
}

// DiagnosticsSource counts products by image kind.
type DiagnosticsSource interface {
	CountImageKinds(ctx context.Context) (internal int64, external int64, err error)
}

// ImageResolver serves stored images.
type ImageResolver interface {
	Resolve(ctx context.Context, path, bucket string) (*resolver.Object, *resolver.Report, error)
}

// ImageProxy serves external images.
type ImageProxy interface {
	Get(ctx context.Context, rawURL string, req transcoder.TransformRequest) (*proxy.Response, error)
}

// Services are the collaborators behind the HTTP routes.
type Services struct {
	Sync        SyncService
	Diagnostics DiagnosticsSource
	Resolver    ImageResolver
	Proxy       ImageProxy
	// StorageRoot is served under /storage/object/public when set.
	StorageRoot string
	// DebugAllowed enables debug=1 on /images/storage.
	DebugAllowed bool
}

var services *Services

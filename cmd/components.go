package cmd

import (
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2/log"

	"github.com/alexander-bruun/vitrine/config"
	"github.com/alexander-bruun/vitrine/fetcher"
	"github.com/alexander-bruun/vitrine/filestore"
	"github.com/alexander-bruun/vitrine/imageref"
	"github.com/alexander-bruun/vitrine/models"
	"github.com/alexander-bruun/vitrine/pipeline"
	"github.com/alexander-bruun/vitrine/proxy"
	"github.com/alexander-bruun/vitrine/resolver"
	"github.com/alexander-bruun/vitrine/scheduler"
	"github.com/alexander-bruun/vitrine/transcoder"
	"github.com/alexander-bruun/vitrine/utils"
)

// components holds the long-lived components built from one configuration.
type components struct {
	store      filestore.ObjectStore
	fetcher    *fetcher.Fetcher
	transcoder *transcoder.Transcoder
	resolver   *resolver.Resolver
	pipeline   *pipeline.Pipeline
	scheduler  *scheduler.Scheduler
	proxy      *proxy.Proxy
}

// newComponents wires the sync and read paths. The database must already be
// initialized.
func newComponents(cfg *config.Config) (*components, error) {
	store, err := cfg.Storage.CreateStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create object store: %w", err)
	}

	elector, err := imageref.NewElector(cfg.PrimaryPattern, cfg.TrashPatterns)
	if err != nil {
		return nil, err
	}

	retry := utils.RetryConfig{MaxRetries: cfg.FetchMaxRetries, BaseDelay: cfg.RetryBaseDelay}
	f := fetcher.New(fetcher.Options{
		Timeout:  cfg.FetchTimeout,
		Retry:    retry,
		MaxBytes: cfg.MaxImageBytes,
		Policy:   fetcher.NewTLSPolicy(cfg.InsecureHostAllowlist, cfg.IsProduction(), cfg.AllowInsecureInProduction),
	})
	t := transcoder.New(transcoder.Options{
		Quality:         cfg.WebPQuality,
		Widths:          cfg.ResponsiveWidths,
		PrimaryMaxWidth: cfg.PrimaryMaxWidth,
	})
	res := resolver.New(store, f.Client(), resolver.Options{
		DefaultBucket:  cfg.Storage.Bucket,
		LegacyBuckets:  cfg.ResolverLegacyBuckets,
		LegacyPrefixes: cfg.ResolverLegacyPrefixes,
		Markers:        []string{cfg.InternalMarker},
		AttemptTimeout: cfg.ResolverAttemptTimeout,
		SignedURLTTL:   cfg.Storage.SignedURLTTL,
		MaxBytes:       cfg.MaxImageBytes,
	})

	repo := models.NewRepository()
	pipe := pipeline.New(pipeline.Deps{
		Extractor:          imageref.NewExtractor(cfg.InternalMarker),
		Elector:            elector,
		Fetcher:            f,
		Internal:           res,
		Transcoder:         t,
		Uploader:           filestore.NewUploader(store, cfg.Storage.Bucket, retry),
		Store:              repo,
		GalleryConcurrency: cfg.GalleryConcurrency,
	})

	p, err := proxy.New(f, t, proxy.CacheOptions{
		Entries:       cfg.ProxyCacheEntries,
		MaxBytes:      cfg.ProxyCacheMaxBytes,
		MaxEntryBytes: cfg.ProxyCacheEntryBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create image proxy: %w", err)
	}

	log.Debugf("Runtime ready: storage=%s bucket=%s widths=%v concurrency=%d",
		cfg.Storage.BackendType, cfg.Storage.Bucket, cfg.ResponsiveWidths, cfg.ConcurrencyLimit)

	return &components{
		store:      store,
		fetcher:    f,
		transcoder: t,
		resolver:   res,
		pipeline:   pipe,
		scheduler: scheduler.New(repo, pipe, scheduler.Options{
			Concurrency: cfg.ConcurrencyLimit,
			BatchSize:   cfg.BatchSize,
			RepairLimit: cfg.RepairLimit,
		}),
		proxy: p,
	}, nil
}

// Close releases store connections.
func (r *components) Close() {
	if closer, ok := r.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			log.Warnf("Failed to close object store: %v", err)
		}
	}
}

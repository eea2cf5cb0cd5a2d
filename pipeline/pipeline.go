package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/alexander-bruun/vitrine/fetcher"
	"github.com/alexander-bruun/vitrine/filestore"
	"github.com/alexander-bruun/vitrine/imageref"
	"github.com/alexander-bruun/vitrine/models"
	"github.com/alexander-bruun/vitrine/transcoder"
)

// Outcome is the terminal result of one product job.
type Outcome string

const (
	OutcomeSynced  Outcome = "synced"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

var (
	productOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vitrine_sync_products_total",
		Help: "Product jobs by outcome",
	}, []string{"outcome"})

	galleryOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vitrine_sync_gallery_items_total",
		Help: "Gallery images by outcome",
	}, []string{"outcome"})

	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vitrine_sync_stage_duration_seconds",
		Help:    "Duration of cover pipeline stages",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
)

func init() {
	prometheus.MustRegister(productOutcomes, galleryOutcomes, stageDuration)
}

// Fetcher retrieves external image bytes.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Result, error)
}

// InternalReader reads an image that already lives in object storage.
type InternalReader interface {
	Read(ctx context.Context, ref string) ([]byte, error)
}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Extractor  *imageref.Extractor
	Elector    *imageref.Elector
	Fetcher    Fetcher
	Internal   InternalReader
	Transcoder *transcoder.Transcoder
	Uploader   *filestore.Uploader
	Store      ProductStore
	// GalleryConcurrency bounds gallery fan-out within one product.
	GalleryConcurrency int
}

// Result summarizes one product job.
type Result struct {
	ProductID      string
	Outcome        Outcome
	Cover          string
	Rule           string
	Variants       []models.Variant
	GalleryStored  int
	GalleryDropped int
	GalleryRemoved int
	Filtered       int
	Err            error
}

// Summary renders r as a single log line.
func (r Result) Summary() string {
	switch r.Outcome {
	case OutcomeSynced:
		return fmt.Sprintf("product %s synced: cover %s (%s), %d variants, gallery %d stored / %d dropped",
			r.ProductID, r.Cover, r.Rule, len(r.Variants), r.GalleryStored, r.GalleryDropped)
	case OutcomeSkipped:
		return fmt.Sprintf("product %s skipped: no electable cover (%d references filtered)", r.ProductID, r.Filtered)
	default:
		return fmt.Sprintf("product %s failed: %v (gallery %d stored / %d dropped)",
			r.ProductID, r.Err, r.GalleryStored, r.GalleryDropped)
	}
}

// Pipeline runs the fetch, transcode, upload and commit stages for a product.
type Pipeline struct {
	deps    Deps
	tracker *Tracker
}

// New creates a pipeline.
func New(deps Deps) *Pipeline {
	if deps.GalleryConcurrency < 1 {
		deps.GalleryConcurrency = 1
	}
	return &Pipeline{deps: deps, tracker: NewTracker(deps.Store)}
}

// Process runs one product to a terminal outcome. It never returns early
// because of a gallery error and never panics on malformed image fields.
func (p *Pipeline) Process(ctx context.Context, product models.Product) Result {
	res := Result{ProductID: product.ID}

	refs := p.deps.Extractor.Extract(imageref.FromString(product.ImageURL), imageref.FromString(product.Images))
	election, err := p.deps.Elector.Elect(refs, product.CoverSource)
	res.Filtered = len(election.Dropped)
	if errors.Is(err, imageref.ErrNoElectableCover) {
		res.Outcome = OutcomeSkipped
		log.Warnf("Product %s has no electable cover (%d references, %d filtered); leaving it unchanged",
			product.ID, len(refs), len(election.Dropped))
		productOutcomes.WithLabelValues(string(OutcomeSkipped)).Inc()
		return res
	}
	for _, d := range election.Dropped {
		log.Debugf("Product %s: dropped trash reference %s", product.ID, d.Value)
	}

	res.Cover = election.Cover.Value
	res.Rule = election.Rule

	variants, coverErr := p.processCover(ctx, product, election.Cover)
	if coverErr == nil {
		coverErr = p.tracker.Synced(ctx, product.ID, election.Cover.Value, variants)
	}
	if coverErr != nil {
		res.Outcome = OutcomeFailed
		res.Err = coverErr
		if !errors.Is(coverErr, models.ErrStateConflict) {
			p.tracker.Failed(ctx, product.ID, coverErr)
		}
		log.Warnf("Product %s cover sync failed: %v", product.ID, coverErr)
	} else {
		res.Outcome = OutcomeSynced
		res.Variants = variants
	}

	res.GalleryStored, res.GalleryDropped = p.processGallery(ctx, product, election.Gallery)
	res.GalleryRemoved = p.pruneGallery(ctx, product, election.Gallery)

	productOutcomes.WithLabelValues(string(res.Outcome)).Inc()
	if res.Outcome == OutcomeSynced {
		log.Infof("Product %s synced with cover %s (%s)", product.ID, res.Cover, res.Rule)
	}
	return res
}

func (p *Pipeline) processCover(ctx context.Context, product models.Product, cover imageref.Reference) ([]models.Variant, error) {
	data, err := p.timed("fetch", func() ([]byte, error) { return p.load(ctx, cover) })
	if err != nil {
		return nil, err
	}

	var encoded []transcoder.Variant
	if _, err := p.timed("transcode", func() ([]byte, error) {
		var err error
		encoded, err = p.deps.Transcoder.Transcode(data)
		return nil, err
	}); err != nil {
		return nil, err
	}

	variants := make([]models.Variant, 0, len(encoded))
	_, err = p.timed("upload", func() ([]byte, error) {
		for _, v := range encoded {
			path := filestore.VariantPath(product.TenantID, filestore.SlotMain, referenceCode(product), v.Width, transcoder.Extension)
			obj, err := p.deps.Uploader.Upload(ctx, path, v.Data, transcoder.ContentTypeWebP)
			if err != nil {
				return nil, err
			}
			variants = append(variants, models.Variant{
				Width:       v.Width,
				StoragePath: obj.Path,
				URL:         obj.URL,
				Primary:     v.Primary,
			})
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return variants, nil
}

// processGallery fans out over gallery references with bounded concurrency.
// Each item either lands in full or is dropped.
func (p *Pipeline) processGallery(ctx context.Context, product models.Product, gallery []imageref.Reference) (stored, dropped int) {
	if len(gallery) == 0 {
		return 0, 0
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.deps.GalleryConcurrency)

	for i, ref := range gallery {
		g.Go(func() error {
			err := p.processGalleryItem(ctx, product, i, ref)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				dropped++
				galleryOutcomes.WithLabelValues("dropped").Inc()
				log.Warnf("Product %s: dropping gallery image %s: %v", product.ID, ref.Value, err)
				return nil
			}
			stored++
			galleryOutcomes.WithLabelValues("stored").Inc()
			return nil
		})
	}
	g.Wait()
	return stored, dropped
}

func (p *Pipeline) processGalleryItem(ctx context.Context, product models.Product, index int, ref imageref.Reference) error {
	data, err := p.load(ctx, ref)
	if err != nil {
		return err
	}
	encoded, err := p.deps.Transcoder.Transcode(data)
	if err != nil {
		return err
	}

	slot := filestore.GallerySlot(ref.Value)
	variants := make([]models.GalleryVariant, 0, len(encoded))
	for _, v := range encoded {
		path := filestore.VariantPath(product.TenantID, slot, referenceCode(product), v.Width, transcoder.Extension)
		obj, err := p.deps.Uploader.Upload(ctx, path, v.Data, transcoder.ContentTypeWebP)
		if err != nil {
			return err
		}
		variants = append(variants, models.GalleryVariant{
			Position:    index,
			SourceRef:   ref.Value,
			Width:       v.Width,
			StoragePath: obj.Path,
			URL:         obj.URL,
		})
	}
	return p.tracker.GalleryItem(ctx, product.ID, variants)
}

// pruneGallery drops the rows and objects of gallery images that are no
// longer part of the product. Rows of images that failed this run are kept.
func (p *Pipeline) pruneGallery(ctx context.Context, product models.Product, gallery []imageref.Reference) int {
	current := make([]string, len(gallery))
	for i, ref := range gallery {
		current[i] = ref.Value
	}
	paths, err := p.tracker.PruneGallery(ctx, product.ID, current)
	if err != nil {
		log.Warnf("Product %s: %v", product.ID, err)
		return 0
	}
	for _, path := range paths {
		if err := p.deps.Uploader.Remove(ctx, path); err != nil {
			log.Warnf("Product %s: failed to remove stale gallery object: %v", product.ID, err)
		}
	}
	if len(paths) > 0 {
		log.Debugf("Product %s: removed %d stale gallery objects", product.ID, len(paths))
	}
	return len(paths)
}

// load returns the source bytes of ref. Internal references are read from
// object storage instead of going over the public network.
func (p *Pipeline) load(ctx context.Context, ref imageref.Reference) ([]byte, error) {
	if ref.IsInternal() && p.deps.Internal != nil {
		data, err := p.deps.Internal.Read(ctx, ref.Value)
		if err != nil {
			return nil, fmt.Errorf("read internal %s: %w", ref.Value, err)
		}
		return data, nil
	}
	if !strings.HasPrefix(ref.Value, "http://") && !strings.HasPrefix(ref.Value, "https://") {
		return nil, &fetcher.FetchError{URL: ref.Value, Err: errors.New("not an absolute http(s) url")}
	}
	res, err := p.deps.Fetcher.Fetch(ctx, ref.Value)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

func (p *Pipeline) timed(stage string, fn func() ([]byte, error)) ([]byte, error) {
	start := time.Now()
	defer func() { stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds()) }()
	return fn()
}

// referenceCode names a product's objects. Products without a reference code
// fall back to their id.
func referenceCode(product models.Product) string {
	if strings.TrimSpace(product.Reference) != "" {
		return product.Reference
	}
	return product.ID
}

package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alexander-bruun/vitrine/filestore"
)

// ErrNotFound is returned when every candidate failed.
var ErrNotFound = errors.New("no candidate resolved")

var resolveResults = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "vitrine_resolver_requests_total",
	Help: "Stored image resolutions by result",
}, []string{"result"})

func init() {
	prometheus.MustRegister(resolveResults)
}

// Options configures a Resolver.
type Options struct {
	DefaultBucket  string
	LegacyBuckets  []string
	LegacyPrefixes []string
	// Markers are substrings after which a full URL carries bucket/path.
	Markers        []string
	AttemptTimeout time.Duration
	SignedURLTTL   time.Duration
	MaxBytes       int64
}

// Attempt records one tried candidate.
type Attempt struct {
	Candidate
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Report describes a resolution for debug output.
type Report struct {
	RequestedPath   string     `json:"requestedPath"`
	RequestedBucket string     `json:"requestedBucket,omitempty"`
	NormalizedPath  string     `json:"normalizedPath,omitempty"`
	Rejected        string     `json:"rejected,omitempty"`
	Attempts        []Attempt  `json:"attempts"`
	Resolved        *Candidate `json:"resolved,omitempty"`
}

// Object is a resolved stored image.
type Object struct {
	Candidate
	ContentType string
	Data        []byte
}

// Resolver finds stored images despite historical path conventions.
type Resolver struct {
	store  filestore.ObjectStore
	signer filestore.Signer
	client *http.Client
	rules  []Rule
	opts   Options
}

// New creates a resolver. When store can sign URLs, candidates are fetched
// through signed URLs with client; otherwise they are read from store.
func New(store filestore.ObjectStore, client *http.Client, opts Options) *Resolver {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 4 * time.Second
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = 15 * time.Minute
	}
	if client == nil {
		client = http.DefaultClient
	}
	r := &Resolver{
		store:  store,
		client: client,
		rules:  DefaultRules,
		opts:   opts,
	}
	if signer, ok := store.(filestore.Signer); ok {
		r.signer = signer
	}
	return r
}

// Candidates returns the ordered guesses for path in bucket.
func (r *Resolver) Candidates(path, bucket string) ([]Candidate, string, error) {
	normalized, err := normalizePath(path, r.opts.Markers, r.opts.LegacyPrefixes)
	if err != nil {
		return nil, "", err
	}
	if bucket == "" {
		bucket = r.opts.DefaultBucket
	}

	buckets := []string{bucket}
	for _, b := range append([]string{r.opts.DefaultBucket}, r.opts.LegacyBuckets...) {
		if b != "" && b != bucket {
			buckets = append(buckets, b)
		}
	}

	return buildCandidates(r.rules, request{bucket: bucket, path: normalized, buckets: buckets}), normalized, nil
}

// Resolve tries every candidate in order and stops at the first hit. The
// report is always returned.
func (r *Resolver) Resolve(ctx context.Context, path, bucket string) (*Object, *Report, error) {
	report := &Report{RequestedPath: path, RequestedBucket: bucket, Attempts: []Attempt{}}

	candidates, normalized, err := r.Candidates(path, bucket)
	if err != nil {
		report.Rejected = err.Error()
		resolveResults.WithLabelValues("rejected").Inc()
		return nil, report, err
	}
	report.NormalizedPath = normalized

	for _, c := range candidates {
		start := time.Now()
		data, err := r.attempt(ctx, c)
		attempt := Attempt{Candidate: c, DurationMs: time.Since(start).Milliseconds()}
		if err != nil {
			attempt.Error = err.Error()
			report.Attempts = append(report.Attempts, attempt)
			log.Debugf("Resolver candidate %s/%s (%s) failed: %v", c.Bucket, c.Path, c.Rule, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		report.Attempts = append(report.Attempts, attempt)
		resolved := c
		report.Resolved = &resolved
		resolveResults.WithLabelValues("hit").Inc()
		return &Object{Candidate: c, ContentType: http.DetectContentType(data), Data: data}, report, nil
	}

	resolveResults.WithLabelValues("miss").Inc()
	return nil, report, ErrNotFound
}

// Read returns the bytes of a stored image reference. It satisfies the
// pipeline's internal reader.
func (r *Resolver) Read(ctx context.Context, ref string) ([]byte, error) {
	obj, _, err := r.Resolve(ctx, ref, "")
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return obj.Data, nil
}

func (r *Resolver) attempt(parent context.Context, c Candidate) ([]byte, error) {
	ctx, cancel := context.WithTimeout(parent, r.opts.AttemptTimeout)
	defer cancel()

	if r.signer == nil {
		return r.store.Get(ctx, c.Bucket, c.Path)
	}

	signed, err := r.signer.SignedURL(ctx, c.Bucket, c.Path, r.opts.SignedURLTTL)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden {
		return nil, filestore.ErrObjectNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("signed fetch: HTTP %d", resp.StatusCode)
	}

	if r.opts.MaxBytes <= 0 {
		return io.ReadAll(resp.Body)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.opts.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > r.opts.MaxBytes {
		return nil, fmt.Errorf("signed fetch: object exceeds %d bytes", r.opts.MaxBytes)
	}
	return data, nil
}

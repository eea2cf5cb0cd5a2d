package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/gofiber/fiber/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alexander-bruun/vitrine/fetcher"
	"github.com/alexander-bruun/vitrine/transcoder"
)

// ErrInvalidURL is returned for anything but an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid image url")

var proxyResults = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "vitrine_proxy_requests_total",
	Help: "Proxied image requests by result",
}, []string{"result"})

func init() {
	prometheus.MustRegister(proxyResults)
}

// Fetcher retrieves external image bytes.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Result, error)
}

// Response is a proxied image.
type Response struct {
	Data        []byte
	ContentType string
	// Transformed is false when no transform was asked for or it failed.
	Transformed bool
	Cached      bool
}

// CacheOptions bound the response cache by entry count and by total bytes.
type CacheOptions struct {
	// Entries <= 0 disables the cache.
	Entries int
	// MaxBytes caps the summed size of cached bodies. 0 means no byte cap.
	MaxBytes int64
	// MaxEntryBytes is the largest body that is cached at all.
	MaxEntryBytes int64
}

// Proxy serves external images that have not been internalized yet.
type Proxy struct {
	fetcher    Fetcher
	transcoder *transcoder.Transcoder
	cache      *lru.Cache[string, Response]
	cacheOpts  CacheOptions
	cacheBytes atomic.Int64
}

// New creates a proxy.
func New(f Fetcher, t *transcoder.Transcoder, opts CacheOptions) (*Proxy, error) {
	p := &Proxy{fetcher: f, transcoder: t, cacheOpts: opts}
	if opts.Entries > 0 {
		cache, err := lru.NewWithEvict[string, Response](opts.Entries, func(_ string, r Response) {
			p.cacheBytes.Add(-int64(len(r.Data)))
		})
		if err != nil {
			return nil, fmt.Errorf("create proxy cache: %w", err)
		}
		p.cache = cache
	}
	return p, nil
}

// CachedBytes returns the summed size of the cached bodies.
func (p *Proxy) CachedBytes() int64 {
	return p.cacheBytes.Load()
}

func (p *Proxy) store(key string, r Response) {
	size := int64(len(r.Data))
	if p.cacheOpts.MaxEntryBytes > 0 && size > p.cacheOpts.MaxEntryBytes {
		return
	}
	if p.cacheOpts.MaxBytes > 0 && size > p.cacheOpts.MaxBytes {
		return
	}
	if found, _ := p.cache.ContainsOrAdd(key, r); found {
		return
	}
	p.cacheBytes.Add(size)
	for p.cacheOpts.MaxBytes > 0 && p.cacheBytes.Load() > p.cacheOpts.MaxBytes {
		if _, _, ok := p.cache.RemoveOldest(); !ok {
			break
		}
	}
}

// Get fetches rawURL and applies req when it asks for any change. A failed
// transform falls back to the original bytes.
func (p *Proxy) Get(ctx context.Context, rawURL string, req transcoder.TransformRequest) (*Response, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		proxyResults.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidURL
	}
	req = req.Normalize()

	key := cacheKey(rawURL, req)
	if p.cache != nil {
		if cached, ok := p.cache.Get(key); ok {
			proxyResults.WithLabelValues("cached").Inc()
			cached.Cached = true
			return &cached, nil
		}
	}

	res, err := p.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		var notImage *fetcher.NotAnImageError
		if errors.As(err, &notImage) {
			proxyResults.WithLabelValues("not_image").Inc()
		} else {
			proxyResults.WithLabelValues("fetch_error").Inc()
		}
		return nil, err
	}

	out := Response{Data: res.Data, ContentType: res.ContentType}
	if !req.Empty() && p.transcoder != nil {
		data, contentType, err := p.transcoder.Transform(res.Data, req)
		if err != nil {
			log.Warnf("Proxy transform of %s failed, serving original: %v", rawURL, err)
		} else {
			out = Response{Data: data, ContentType: contentType, Transformed: true}
		}
	}

	if p.cache != nil {
		p.store(key, out)
	}
	proxyResults.WithLabelValues("ok").Inc()
	return &out, nil
}

func cacheKey(rawURL string, req transcoder.TransformRequest) string {
	return fmt.Sprintf("%s|w=%d|h=%d|q=%d|f=%s", rawURL, req.Width, req.Height, req.Quality, req.Format)
}

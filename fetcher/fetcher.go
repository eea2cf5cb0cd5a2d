package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alexander-bruun/vitrine/utils"
)

const userAgent = "Mozilla/5.0 (compatible; vitrine-media/1.0)"

var (
	fetchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vitrine_fetch_duration_seconds",
		Help:    "Duration of single image fetch attempts",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
	}, []string{"outcome"})

	fetchRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vitrine_fetch_retries_total",
		Help: "Number of fetch attempts that were retried",
	})
)

func init() {
	prometheus.MustRegister(fetchDuration)
	prometheus.MustRegister(fetchRetries)
}

// Options configures a Fetcher.
type Options struct {
	Timeout  time.Duration
	Retry    utils.RetryConfig
	MaxBytes int64
	Policy   *TLSPolicy
}

// Result is a successfully fetched image body.
type Result struct {
	URL         string
	ContentType string
	Data        []byte
}

// Fetcher retrieves images over HTTP. It is safe for concurrent use; all
// callers share one connection pool.
type Fetcher struct {
	strict  *http.Client
	relaxed *http.Client
	opts    Options
}

// New creates a fetcher with a shared keep-alive transport.
func New(opts Options) *Fetcher {
	if opts.Policy == nil {
		opts.Policy = NewTLSPolicy(nil, false, false)
	}

	strictTransport := newTransport(nil)
	relaxedTransport := newTransport(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // gated by TLSPolicy

	return &Fetcher{
		strict:  &http.Client{Transport: strictTransport},
		relaxed: &http.Client{Transport: relaxedTransport},
		opts:    opts,
	}
}

func newTransport(tlsConfig *tls.Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       tlsConfig,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// Client returns the strict shared client for callers that need raw HTTP
// access, such as signed-URL reads.
func (f *Fetcher) Client() *http.Client {
	return f.strict
}

// Fetch downloads rawURL, retrying transient failures with linear backoff.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("unsupported url")}
	}

	client, err := f.clientFor(u)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	attempt := 0
	return utils.Retry(ctx, f.opts.Retry, "fetch "+u.Host, func(ctx context.Context) (*Result, error) {
		attempt++
		if attempt > 1 {
			fetchRetries.Inc()
		}
		return f.fetchOnce(ctx, client, u.String())
	}, IsTransient)
}

func (f *Fetcher) clientFor(u *url.URL) (*http.Client, error) {
	if u.Scheme != "https" {
		return f.strict, nil
	}
	relaxed, err := f.opts.Policy.Relaxed(u.Host)
	if err != nil {
		log.Warnf("Refusing relaxed TLS for %s: %v", u.Host, err)
		return nil, err
	}
	if relaxed {
		log.Debugf("Using relaxed TLS for allow-listed host %s", u.Host)
		return f.relaxed, nil
	}
	return f.strict, nil
}

func (f *Fetcher) fetchOnce(parent context.Context, client *http.Client, rawURL string) (res *Result, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		fetchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	ctx := parent
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(parent, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, statusError(rawURL, resp.StatusCode)
	}

	body, err := readLimited(resp.Body, f.opts.MaxBytes)
	if err != nil {
		if fe, ok := err.(*FetchError); ok {
			fe.URL = rawURL
			return nil, fe
		}
		return nil, transportError(parent, rawURL, err)
	}

	contentType, ok := ImageContentType(resp.Header.Get("Content-Type"), body)
	if !ok {
		return nil, &NotAnImageError{URL: rawURL, ContentType: contentType}
	}

	return &Result{URL: rawURL, ContentType: contentType, Data: body}, nil
}

func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > max {
		return nil, &FetchError{Err: fmt.Errorf("response exceeds %d bytes", max)}
	}
	return body, nil
}

// ImageContentType validates that a response is an image. A declared image
// media type is accepted as is; an absent or generic binary type is sniffed.
func ImageContentType(header string, body []byte) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(header))
	}

	if strings.HasPrefix(mediaType, "image/") {
		return mediaType, true
	}
	if mediaType == "" || mediaType == "application/octet-stream" || mediaType == "binary/octet-stream" {
		sniffed := http.DetectContentType(body)
		if strings.HasPrefix(sniffed, "image/") {
			return sniffed, true
		}
		if mediaType == "" {
			return sniffed, false
		}
	}
	return mediaType, false
}

package fetcher

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
)

// ErrInsecureHostRejected is returned when a host is on the relaxed-TLS
// allow-list but the deployment is production and the override flag is off.
var ErrInsecureHostRejected = errors.New("relaxed TLS not permitted for host in production")

// FetchError describes a failed retrieval. Transient errors may be retried.
type FetchError struct {
	URL       string
	Status    int
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s error: HTTP %d", e.URL, kind, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s error: %v", e.URL, kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NotAnImageError is returned when the response is not an image. Never retried.
type NotAnImageError struct {
	URL         string
	ContentType string
}

func (e *NotAnImageError) Error() string {
	return fmt.Sprintf("fetch %s: not an image (content-type %q)", e.URL, e.ContentType)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Transient
	}
	return false
}

// statusError classifies a non-2xx response: 5xx is retried, 4xx is not.
func statusError(url string, status int) *FetchError {
	return &FetchError{URL: url, Status: status, Transient: status >= 500}
}

// transportError classifies an error from the HTTP round trip. parent is the
// caller's context; its cancellation is never retried.
func transportError(parent context.Context, url string, err error) *FetchError {
	if parent.Err() != nil {
		return &FetchError{URL: url, Err: parent.Err()}
	}
	if isCertificateError(err) {
		return &FetchError{URL: url, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{URL: url, Transient: true, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &FetchError{URL: url, Transient: true, Err: err}
	}
	return &FetchError{URL: url, Err: err}
}

func isCertificateError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var invalid x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid)
}

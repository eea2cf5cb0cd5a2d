package fetcher

import (
	"net"
	"strings"
)

// TLSPolicy decides per host whether certificate validation may be relaxed.
type TLSPolicy struct {
	hosts                     map[string]bool
	wildcards                 []string
	production                bool
	allowInsecureInProduction bool
}

// NewTLSPolicy builds a policy from an allow-list. Entries may be exact host
// names or "*.example.com" suffix patterns.
func NewTLSPolicy(allowlist []string, production, allowInsecureInProduction bool) *TLSPolicy {
	p := &TLSPolicy{
		hosts:                     make(map[string]bool),
		production:                production,
		allowInsecureInProduction: allowInsecureInProduction,
	}
	for _, h := range allowlist {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if strings.HasPrefix(h, "*.") {
			p.wildcards = append(p.wildcards, h[1:])
			continue
		}
		p.hosts[h] = true
	}
	return p
}

// Allowlisted reports whether host appears on the allow-list.
func (p *TLSPolicy) Allowlisted(host string) bool {
	host = normalizeHost(host)
	if p.hosts[host] {
		return true
	}
	for _, suffix := range p.wildcards {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// Relaxed returns true when the request to host may skip certificate
// validation. It returns ErrInsecureHostRejected for allow-listed hosts in a
// production deployment that has not opted in.
func (p *TLSPolicy) Relaxed(host string) (bool, error) {
	if !p.Allowlisted(host) {
		return false, nil
	}
	if p.production && !p.allowInsecureInProduction {
		return false, ErrInsecureHostRejected
	}
	return true, nil
}

func normalizeHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

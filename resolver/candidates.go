package resolver

import (
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidPath is returned for inputs that cannot name a stored object.
var ErrInvalidPath = errors.New("invalid storage path")

const minPathLength = 5

var invalidInputs = map[string]bool{
	"null":      true,
	"undefined": true,
	"none":      true,
	"nil":       true,
	"false":     true,
}

// Candidate is one bucket/path guess.
type Candidate struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	Rule   string `json:"rule"`
}

// Rule generates candidates for a normalized request. Rules are evaluated in
// order and must not depend on each other.
type Rule struct {
	Name     string
	Generate func(req request) []Candidate
}

type request struct {
	bucket  string
	path    string
	buckets []string
}

// DefaultRules covers the storage layouts in use over time.
var DefaultRules = []Rule{
	{Name: "as-is", Generate: func(req request) []Candidate {
		return []Candidate{{Bucket: req.bucket, Path: req.path}}
	}},
	{Name: "embedded-bucket", Generate: func(req request) []Candidate {
		if bucket, rest, ok := req.embeddedBucket(); ok {
			return []Candidate{{Bucket: bucket, Path: rest}}
		}
		return nil
	}},
	{Name: "strip-public", Generate: func(req request) []Candidate {
		if rest, ok := strings.CutPrefix(req.path, "public/"); ok && rest != "" {
			return []Candidate{{Bucket: req.bucket, Path: rest}}
		}
		return nil
	}},
	{Name: "add-public", Generate: func(req request) []Candidate {
		if strings.HasPrefix(req.path, "public/") {
			return nil
		}
		return []Candidate{{Bucket: req.bucket, Path: "public/" + req.path}}
	}},
	{Name: "bucket-duplication", Generate: func(req request) []Candidate {
		if strings.HasPrefix(req.path, req.bucket+"/") {
			return nil
		}
		return []Candidate{{Bucket: req.bucket, Path: req.bucket + "/" + req.path}}
	}},
	{Name: "legacy-bucket", Generate: func(req request) []Candidate {
		_, rest, embedded := req.embeddedBucket()
		var out []Candidate
		for _, b := range req.buckets {
			if b == req.bucket {
				continue
			}
			out = append(out, Candidate{Bucket: b, Path: req.path})
			if embedded {
				out = append(out, Candidate{Bucket: b, Path: rest})
			}
		}
		return out
	}},
}

// embeddedBucket splits a leading path segment that names a known bucket.
func (req request) embeddedBucket() (string, string, bool) {
	first, rest, ok := strings.Cut(req.path, "/")
	if !ok || rest == "" {
		return "", "", false
	}
	for _, b := range req.buckets {
		if first == b {
			return b, rest, true
		}
	}
	return "", "", false
}

// normalizePath reduces a requested path or URL to a bucket-relative key.
// Query strings, leading slashes and known legacy prefixes are removed; for
// full URLs everything up to the public-object marker is dropped.
func normalizePath(raw string, markers, prefixes []string) (string, error) {
	p := strings.TrimSpace(raw)
	if len(p) < minPathLength || invalidInputs[strings.ToLower(p)] {
		return "", ErrInvalidPath
	}

	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		u, err := url.Parse(p)
		if err != nil {
			return "", ErrInvalidPath
		}
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}

	for _, m := range markers {
		if m == "" {
			continue
		}
		if i := strings.Index(p, m); i >= 0 {
			p = p[i+len(m):]
			break
		}
	}

	p = strings.TrimLeft(p, "/")
	for changed := true; changed; {
		changed = false
		for _, prefix := range prefixes {
			if prefix != "" && strings.HasPrefix(p, prefix) {
				p = strings.TrimLeft(strings.TrimPrefix(p, prefix), "/")
				changed = true
			}
		}
	}

	if len(p) < minPathLength || strings.Contains(p, "..") {
		return "", ErrInvalidPath
	}
	return p, nil
}

func buildCandidates(rules []Rule, req request) []Candidate {
	seen := make(map[string]bool)
	var out []Candidate
	for _, rule := range rules {
		for _, c := range rule.Generate(req) {
			if c.Bucket == "" || c.Path == "" {
				continue
			}
			key := c.Bucket + "\x00" + c.Path
			if seen[key] {
				continue
			}
			seen[key] = true
			c.Rule = rule.Name
			out = append(out, c)
		}
	}
	return out
}

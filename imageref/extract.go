package imageref

import (
	"strings"
)

// Kind says whether a reference already lives in our object storage.
type Kind string

const (
	External Kind = "external"
	Internal Kind = "internal"
)

// MinReferenceLength is the shortest value treated as a plausible URL or path.
const MinReferenceLength = 8

var sentinels = map[string]bool{
	"":          true,
	"null":      true,
	"undefined": true,
	"none":      true,
	"nil":       true,
}

// Reference is one normalized image source.
type Reference struct {
	Value string `json:"value"`
	Kind  Kind   `json:"kind"`
}

// IsInternal reports whether the reference points into owned storage.
func (r Reference) IsInternal() bool {
	return r.Kind == Internal
}

// Extractor normalizes raw product image fields.
type Extractor struct {
	markers []string
}

// NewExtractor returns an extractor that classifies any value containing one
// of markers as internal.
func NewExtractor(markers ...string) *Extractor {
	var clean []string
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			clean = append(clean, m)
		}
	}
	return &Extractor{markers: clean}
}

// Extract collects references from the cover field first and the gallery field
// second, drops implausible values and returns them deduplicated in first-seen
// order.
func (e *Extractor) Extract(cover, gallery Raw) []Reference {
	values := append(cover.Values(), gallery.Values()...)

	refs := make([]Reference, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if !plausible(v) {
			continue
		}
		refs = append(refs, Reference{Value: v, Kind: e.Classify(v)})
	}
	return Dedupe(refs)
}

// Classify tags a value as internal or external.
func (e *Extractor) Classify(value string) Kind {
	for _, m := range e.markers {
		if strings.Contains(value, m) {
			return Internal
		}
	}
	return External
}

// Dedupe removes repeated values, keeping the first occurrence.
func Dedupe(refs []Reference) []Reference {
	seen := make(map[string]bool, len(refs))
	out := refs[:0:0]
	for _, r := range refs {
		if seen[r.Value] {
			continue
		}
		seen[r.Value] = true
		out = append(out, r)
	}
	return out
}

func plausible(v string) bool {
	if sentinels[strings.ToLower(v)] {
		return false
	}
	return len(v) >= MinReferenceLength
}

package imageref

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RawKind tags which shape a Raw value holds.
type RawKind int

const (
	RawNone RawKind = iota
	RawString
	RawList
)

// RawItem is one element of a list-shaped image field: either a plain string
// or an object carrying the URL under one of a few well-known keys.
type RawItem struct {
	Str    string
	Object map[string]any
}

// Raw is an unnormalized image field as stored by the catalog: a single URL,
// a delimited string, a JSON-encoded array, or an array of strings/objects.
type Raw struct {
	Kind  RawKind
	Str   string
	Items []RawItem
}

// objectURLKeys are tried in order when a list element is an object.
var objectURLKeys = []string{"url", "src", "href", "path", "image", "imageUrl", "image_url"}

// FromString wraps a string column value.
func FromString(s string) Raw {
	if strings.TrimSpace(s) == "" {
		return Raw{Kind: RawNone}
	}
	return Raw{Kind: RawString, Str: s}
}

// FromValue converts a decoded JSON value (string, array, nil) into a Raw.
// Unsupported shapes become RawNone.
func FromValue(v any) Raw {
	switch val := v.(type) {
	case nil:
		return Raw{Kind: RawNone}
	case string:
		return FromString(val)
	case []string:
		items := make([]RawItem, 0, len(val))
		for _, s := range val {
			items = append(items, RawItem{Str: s})
		}
		return Raw{Kind: RawList, Items: items}
	case []any:
		items := make([]RawItem, 0, len(val))
		for _, elem := range val {
			switch e := elem.(type) {
			case string:
				items = append(items, RawItem{Str: e})
			case map[string]any:
				items = append(items, RawItem{Object: e})
			}
		}
		return Raw{Kind: RawList, Items: items}
	default:
		return Raw{Kind: RawNone}
	}
}

// UnmarshalJSON accepts any of the shapes FromValue understands.
func (r *Raw) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode image field: %w", err)
	}
	*r = FromValue(v)
	return nil
}

// MarshalJSON writes the value back in its original shape.
func (r Raw) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RawString:
		return json.Marshal(r.Str)
	case RawList:
		out := make([]any, 0, len(r.Items))
		for _, item := range r.Items {
			if item.Object != nil {
				out = append(out, item.Object)
			} else {
				out = append(out, item.Str)
			}
		}
		return json.Marshal(out)
	default:
		return []byte("null"), nil
	}
}

// Values flattens the field into candidate strings in source order. It never
// fails: anything it cannot interpret contributes nothing.
func (r Raw) Values() []string {
	switch r.Kind {
	case RawString:
		return stringValues(r.Str)
	case RawList:
		var out []string
		for _, item := range r.Items {
			if item.Object != nil {
				if s, ok := objectURL(item.Object); ok {
					out = append(out, s)
				}
				continue
			}
			out = append(out, item.Str)
		}
		return out
	default:
		return nil
	}
}

func stringValues(s string) []string {
	s = strings.TrimSpace(s)

	switch {
	case strings.HasPrefix(s, "["):
		var decoded []any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			return FromValue(decoded).Values()
		}
		// Not valid JSON, treat the brackets as noise
		s = strings.Trim(s, "[]")
	case strings.HasPrefix(s, `"`):
		var decoded string
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			return stringValues(decoded)
		}
	}

	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	})
}

func objectURL(obj map[string]any) (string, bool) {
	for _, key := range objectURLKeys {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

package imageref

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const marker = "/object/public/"

func values(refs []Reference) []string {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		out = append(out, r.Value)
	}
	return out
}

func TestDedupe_KeepsFirstSeenOrder(t *testing.T) {
	refs := []Reference{
		{Value: "a.jpg", Kind: External},
		{Value: "a.jpg", Kind: External},
		{Value: "b.jpg", Kind: External},
	}

	out := Dedupe(refs)

	assert.Equal(t, []string{"a.jpg", "b.jpg"}, values(out))
}

func TestExtract_Dedup(t *testing.T) {
	e := NewExtractor(marker)

	refs := e.Extract(
		FromString(""),
		FromValue([]any{"https://vendor.example/a.jpg", "https://vendor.example/a.jpg", "https://vendor.example/b.jpg"}),
	)

	assert.Equal(t, []string{"https://vendor.example/a.jpg", "https://vendor.example/b.jpg"}, values(refs))
}

func TestExtract_CoverFieldComesFirst(t *testing.T) {
	e := NewExtractor(marker)

	refs := e.Extract(
		FromString("https://vendor.example/cover.jpg"),
		FromString("https://vendor.example/g1.jpg,https://vendor.example/cover.jpg"),
	)

	assert.Equal(t, []string{"https://vendor.example/cover.jpg", "https://vendor.example/g1.jpg"}, values(refs))
}

func TestExtract_StringShapes(t *testing.T) {
	e := NewExtractor(marker)

	tests := []struct {
		name     string
		gallery  string
		expected []string
	}{
		{
			name:     "single url",
			gallery:  "https://vendor.example/one.jpg",
			expected: []string{"https://vendor.example/one.jpg"},
		},
		{
			name:     "comma and semicolon delimited",
			gallery:  "https://v.example/1.jpg, https://v.example/2.jpg;https://v.example/3.jpg",
			expected: []string{"https://v.example/1.jpg", "https://v.example/2.jpg", "https://v.example/3.jpg"},
		},
		{
			name:     "json array of strings",
			gallery:  `["https://v.example/1.jpg","https://v.example/2.jpg"]`,
			expected: []string{"https://v.example/1.jpg", "https://v.example/2.jpg"},
		},
		{
			name:     "json array of mixed strings and objects",
			gallery:  `[{"url":"https://v.example/1.jpg"},"https://v.example/2.jpg",{"src":"https://v.example/3.jpg"},{"alt":"no url"}]`,
			expected: []string{"https://v.example/1.jpg", "https://v.example/2.jpg", "https://v.example/3.jpg"},
		},
		{
			name:     "broken json falls back to splitting",
			gallery:  `[https://v.example/1.jpg, https://v.example/2.jpg`,
			expected: []string{"https://v.example/1.jpg", "https://v.example/2.jpg"},
		},
		{
			name:     "json encoded string",
			gallery:  `"https://v.example/quoted.jpg"`,
			expected: []string{"https://v.example/quoted.jpg"},
		},
		{
			name:     "sentinels and short values dropped",
			gallery:  "null,undefined, ,abc.jpg,https://v.example/ok.jpg",
			expected: []string{"https://v.example/ok.jpg"},
		},
		{
			name:     "empty",
			gallery:  "",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := e.Extract(Raw{}, FromString(tt.gallery))
			assert.Equal(t, tt.expected, values(refs))
		})
	}
}

func TestExtract_Classification(t *testing.T) {
	e := NewExtractor(marker)

	refs := e.Extract(
		FromString("http://localhost:3000/storage/object/public/products/t1/main/sku-320w.webp"),
		FromString("https://vendor.example/a-P01.jpg"),
	)

	require.Len(t, refs, 2)
	assert.Equal(t, Internal, refs[0].Kind)
	assert.Equal(t, External, refs[1].Kind)
}

func TestRaw_UnmarshalJSON(t *testing.T) {
	var payload struct {
		Cover   Raw `json:"cover"`
		Gallery Raw `json:"gallery"`
	}
	err := json.Unmarshal([]byte(`{"cover":"https://v.example/c.jpg","gallery":["https://v.example/g.jpg",{"url":"https://v.example/h.jpg"}]}`), &payload)
	require.NoError(t, err)

	assert.Equal(t, RawString, payload.Cover.Kind)
	assert.Equal(t, RawList, payload.Gallery.Kind)
	assert.Equal(t, []string{"https://v.example/g.jpg", "https://v.example/h.jpg"}, payload.Gallery.Values())

	encoded, err := json.Marshal(payload.Gallery)
	require.NoError(t, err)
	assert.JSONEq(t, `["https://v.example/g.jpg",{"url":"https://v.example/h.jpg"}]`, string(encoded))
}

func TestFromValue_UnsupportedShape(t *testing.T) {
	assert.Equal(t, RawNone, FromValue(42).Kind)
	assert.Empty(t, FromValue(map[string]any{"url": "x"}).Values())
}

package transcoder

import (
	"strings"

	"github.com/nfnt/resize"
)

// TransformRequest describes an on-the-fly conversion. Zero fields mean
// "keep the source value".
type TransformRequest struct {
	Width   int
	Height  int
	Quality int
	Format  string
}

// Empty reports whether the request asks for any change at all.
func (r TransformRequest) Empty() bool {
	return r.Width <= 0 && r.Height <= 0 && r.Quality <= 0 && r.Format == ""
}

// Normalize lowercases the format and maps aliases.
func (r TransformRequest) Normalize() TransformRequest {
	r.Format = strings.ToLower(strings.TrimSpace(r.Format))
	if r.Format == "jpg" {
		r.Format = "jpeg"
	}
	return r
}

// Transform resizes data to fit inside the requested box, never upscaling,
// and re-encodes it. It returns the encoded bytes and their content type.
func (t *Transcoder) Transform(data []byte, req TransformRequest) ([]byte, string, error) {
	req = req.Normalize()

	img, _, err := Decode(data)
	if err != nil {
		return nil, "", err
	}

	bounds := img.Bounds()
	switch {
	case req.Width > 0 && req.Height > 0:
		img = resize.Thumbnail(uint(req.Width), uint(req.Height), img, resize.Lanczos3)
	case req.Width > 0 && bounds.Dx() > req.Width:
		img = resize.Resize(uint(req.Width), 0, img, resize.Lanczos3)
	case req.Height > 0 && bounds.Dy() > req.Height:
		img = resize.Resize(0, uint(req.Height), img, resize.Lanczos3)
	}

	quality := req.Quality
	if quality <= 0 {
		quality = t.quality
	}
	format := req.Format
	if format == "" {
		format = Extension
	}
	return Encode(img, format, quality)
}

package transcoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"sort"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/alexander-bruun/vitrine/utils"
)

const (
	// ContentTypeWebP is the media type of every stored variant.
	ContentTypeWebP = "image/webp"
	// Extension is the file extension of every stored variant.
	Extension = "webp"
)

// maxPixels guards against decompression bombs.
const maxPixels = 80_000_000

// TranscodeError is returned when bytes cannot be decoded or re-encoded.
type TranscodeError struct {
	Stage string
	Err   error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode %s: %v", e.Stage, e.Err)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}

// Options controls variant generation.
type Options struct {
	Quality         int
	Widths          []int
	PrimaryMaxWidth int
}

// Variant is one encoded rendition.
type Variant struct {
	Width   int
	Height  int
	Primary bool
	Data    []byte
}

// Transcoder turns source images into webp variants.
type Transcoder struct {
	quality         int
	widths          []int
	primaryMaxWidth int
}

// New creates a transcoder. Widths are sorted ascending and deduplicated.
func New(opts Options) *Transcoder {
	widths := make([]int, 0, len(opts.Widths))
	seen := make(map[int]bool)
	for _, w := range opts.Widths {
		if w > 0 && !seen[w] {
			seen[w] = true
			widths = append(widths, w)
		}
	}
	sort.Ints(widths)

	return &Transcoder{
		quality:         clampQuality(opts.Quality),
		widths:          widths,
		primaryMaxWidth: opts.PrimaryMaxWidth,
	}
}

// Quality returns the configured output quality.
func (t *Transcoder) Quality() int {
	return t.quality
}

// Transcode decodes data and produces every responsive width narrower than
// the source plus one primary variant capped at the maximum width. Variants
// are returned in ascending width order and never upscaled.
func (t *Transcoder) Transcode(data []byte) ([]Variant, error) {
	defer utils.LogDuration("Transcode", time.Now(), len(data))

	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}

	srcWidth := img.Bounds().Dx()
	primaryWidth := srcWidth
	if t.primaryMaxWidth > 0 && primaryWidth > t.primaryMaxWidth {
		primaryWidth = t.primaryMaxWidth
	}

	targets := make([]int, 0, len(t.widths)+1)
	for _, w := range t.widths {
		if srcWidth > w && w != primaryWidth {
			targets = append(targets, w)
		}
	}
	targets = append(targets, primaryWidth)
	sort.Ints(targets)

	variants := make([]Variant, 0, len(targets))
	for _, w := range targets {
		scaled := scaleToWidth(img, w)
		encoded, err := EncodeWebP(scaled, t.quality)
		if err != nil {
			return nil, err
		}
		variants = append(variants, Variant{
			Width:   scaled.Bounds().Dx(),
			Height:  scaled.Bounds().Dy(),
			Primary: w == primaryWidth,
			Data:    encoded,
		})
	}
	return variants, nil
}

// Decode decodes any registered format (jpeg, png, gif, webp, bmp, tiff).
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", &TranscodeError{Stage: "decode", Err: errors.New("empty input")}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", &TranscodeError{Stage: "decode", Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, "", &TranscodeError{Stage: "decode", Err: fmt.Errorf("unsupported dimensions %dx%d", cfg.Width, cfg.Height)}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &TranscodeError{Stage: "decode", Err: err}
	}
	return img, format, nil
}

// EncodeWebP encodes img as lossy webp.
func EncodeWebP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(clampQuality(quality))}); err != nil {
		return nil, &TranscodeError{Stage: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

// Encode writes img in the named format. Unknown formats fall back to webp.
func Encode(img image.Image, format string, quality int) ([]byte, string, error) {
	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
			return nil, "", &TranscodeError{Stage: "encode", Err: err}
		}
		return buf.Bytes(), "image/jpeg", nil
	case "png":
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", &TranscodeError{Stage: "encode", Err: err}
		}
		return buf.Bytes(), "image/png", nil
	case "gif":
		if err := gif.Encode(&buf, img, nil); err != nil {
			return nil, "", &TranscodeError{Stage: "encode", Err: err}
		}
		return buf.Bytes(), "image/gif", nil
	default:
		data, err := EncodeWebP(img, quality)
		if err != nil {
			return nil, "", err
		}
		return data, ContentTypeWebP, nil
	}
}

func scaleToWidth(img image.Image, width int) image.Image {
	if img.Bounds().Dx() <= width {
		return img
	}
	return resize.Resize(uint(width), 0, img, resize.Lanczos3)
}

func clampQuality(q int) int {
	if q < 1 {
		return 75
	}
	if q > 100 {
		return 100
	}
	return q
}

package transcoder

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func webpWidth(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, err := webp.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func widths(variants []Variant) []int {
	out := make([]int, 0, len(variants))
	for _, v := range variants {
		out = append(out, v.Width)
	}
	return out
}

func TestTranscode_ProducesResponsiveAndPrimary(t *testing.T) {
	tr := New(Options{Quality: 75, Widths: []int{640, 320}, PrimaryMaxWidth: 1200})

	variants, err := tr.Transcode(sourceImage(t, 1600, 900))

	require.NoError(t, err)
	assert.Equal(t, []int{320, 640, 1200}, widths(variants))

	for _, v := range variants {
		w, h := webpWidth(t, v.Data)
		assert.Equal(t, v.Width, w)
		assert.Equal(t, v.Height, h)
		assert.InDelta(t, float64(v.Width)*900/1600, float64(v.Height), 1)
	}
	assert.True(t, variants[2].Primary)
	assert.False(t, variants[0].Primary)
}

func TestTranscode_NeverUpscales(t *testing.T) {
	tr := New(Options{Quality: 75, Widths: []int{320, 640}, PrimaryMaxWidth: 1200})

	variants, err := tr.Transcode(sourceImage(t, 500, 250))

	require.NoError(t, err)
	assert.Equal(t, []int{320, 500}, widths(variants))
	assert.True(t, variants[1].Primary)
}

func TestTranscode_PrimaryEqualsResponsiveWidth(t *testing.T) {
	tr := New(Options{Quality: 75, Widths: []int{320, 640}, PrimaryMaxWidth: 640})

	variants, err := tr.Transcode(sourceImage(t, 800, 400))

	require.NoError(t, err)
	assert.Equal(t, []int{320, 640}, widths(variants))
	assert.True(t, variants[1].Primary)
}

func TestTranscode_TinySourceYieldsSinglePrimary(t *testing.T) {
	tr := New(Options{Quality: 75, Widths: []int{320, 640}, PrimaryMaxWidth: 1200})

	variants, err := tr.Transcode(sourceImage(t, 120, 80))

	require.NoError(t, err)
	require.Len(t, variants, 1)
	assert.Equal(t, 120, variants[0].Width)
	assert.True(t, variants[0].Primary)
}

func TestTranscode_DecodeFailure(t *testing.T) {
	tr := New(Options{Quality: 75, Widths: []int{320}, PrimaryMaxWidth: 1200})

	for _, input := range [][]byte{nil, []byte("<html>not an image</html>")} {
		_, err := tr.Transcode(input)
		var te *TranscodeError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, "decode", te.Stage)
	}
}

func TestTransform(t *testing.T) {
	tr := New(Options{Quality: 75, Widths: []int{320}, PrimaryMaxWidth: 1200})
	src := sourceImage(t, 1600, 900)

	t.Run("width only", func(t *testing.T) {
		data, ct, err := tr.Transform(src, TransformRequest{Width: 400})
		require.NoError(t, err)
		assert.Equal(t, ContentTypeWebP, ct)
		w, h := webpWidth(t, data)
		assert.Equal(t, 400, w)
		assert.Equal(t, 225, h)
	})

	t.Run("box fit as png", func(t *testing.T) {
		data, ct, err := tr.Transform(src, TransformRequest{Width: 100, Height: 100, Format: "PNG"})
		require.NoError(t, err)
		assert.Equal(t, "image/png", ct)
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.Width)
		assert.LessOrEqual(t, cfg.Height, 100)
	})

	t.Run("jpg alias", func(t *testing.T) {
		_, ct, err := tr.Transform(src, TransformRequest{Height: 90, Format: "jpg", Quality: 60})
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", ct)
	})

	t.Run("no upscale", func(t *testing.T) {
		data, _, err := tr.Transform(src, TransformRequest{Width: 5000})
		require.NoError(t, err)
		w, _ := webpWidth(t, data)
		assert.Equal(t, 1600, w)
	})

	t.Run("garbage input", func(t *testing.T) {
		_, _, err := tr.Transform([]byte("nope"), TransformRequest{Width: 10})
		var te *TranscodeError
		assert.True(t, errors.As(err, &te))
	})
}

func TestTransformRequest_Empty(t *testing.T) {
	assert.True(t, TransformRequest{}.Empty())
	assert.False(t, TransformRequest{Format: "png"}.Empty())
	assert.False(t, TransformRequest{Width: 10}.Empty())
}

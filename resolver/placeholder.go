package resolver

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	placeholderSize  = 400
	placeholderLabel = "image unavailable"
)

var (
	placeholderOnce  sync.Once
	placeholderBytes []byte
)

// Placeholder returns a neutral PNG served in place of a missing image.
func Placeholder() []byte {
	placeholderOnce.Do(func() {
		placeholderBytes = renderPlaceholder(placeholderSize, placeholderSize, placeholderLabel)
	})
	return placeholderBytes
}

func renderPlaceholder(w, h int, label string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}}, image.Point{}, draw.Src)

	border := color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}
	for x := 0; x < w; x++ {
		img.Set(x, 0, border)
		img.Set(x, h-1, border)
	}
	for y := 0; y < h; y++ {
		img.Set(0, y, border)
		img.Set(w-1, y, border)
	}

	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 0x88, G: 0x88, B: 0x88, A: 0xff}),
		Face: face,
	}
	textWidth := drawer.MeasureString(label)
	drawer.Dot = fixed.Point26_6{
		X: (fixed.I(w) - textWidth) / 2,
		Y: fixed.I(h/2 + face.Ascent/2),
	}
	drawer.DrawString(label)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

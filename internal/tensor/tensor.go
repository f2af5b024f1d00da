// Package tensor holds the IMAGE value passed along graph edges: a batch of
// H×W×3 float images with channel values in [0,1].
package tensor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/anthonynsimon/bild/clone"
)

const Channels = 3

var (
	ErrEmptyBatch   = errors.New("image batch is empty")
	ErrUniformSize  = errors.New("images must have uniform size")
	ErrInvalidShape = errors.New("pixel buffer does not match image shape")
)

// Image is a single H×W×3 image, row major, RGB interleaved.
type Image struct {
	Width  int
	Height int
	Pix    []float32
}

type Batch []*Image

func New(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]float32, width*height*Channels),
	}
}

func (t *Image) Validate() error {
	if t == nil || t.Width <= 0 || t.Height <= 0 || len(t.Pix) != t.Width*t.Height*Channels {
		return ErrInvalidShape
	}
	return nil
}

func (t *Image) At(x, y int) (r, g, b float32) {
	i := (y*t.Width + x) * Channels
	return t.Pix[i], t.Pix[i+1], t.Pix[i+2]
}

func (t *Image) Set(x, y int, r, g, b float32) {
	i := (y*t.Width + x) * Channels
	t.Pix[i], t.Pix[i+1], t.Pix[i+2] = r, g, b
}

// FromImage decodes any image.Image into a normalized tensor. Alpha is dropped
// after un-premultiplying.
func FromImage(img image.Image) *Image {
	rgba := clone.AsRGBA(img)
	bounds := rgba.Bounds()
	out := New(bounds.Dx(), bounds.Dy())

	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			o := rgba.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			r, g, b, a := rgba.Pix[o], rgba.Pix[o+1], rgba.Pix[o+2], rgba.Pix[o+3]
			if a != 0 && a != 0xff {
				r = unpremultiply(r, a)
				g = unpremultiply(g, a)
				b = unpremultiply(b, a)
			}
			out.Set(x, y, float32(r)/255, float32(g)/255, float32(b)/255)
		}
	}

	return out
}

// ToRGBA quantizes a copy of the tensor into an opaque 8-bit image.
func (t *Image) ToRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, t.Width, t.Height))
	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			r, g, b := t.At(x, y)
			img.SetRGBA(x, y, color.RGBA{R: Quantize(r), G: Quantize(g), B: Quantize(b), A: 0xff})
		}
	}

	return img
}

// Quantize maps a [0,1] channel value onto 0..255, clamping out of range input.
// It rounds to nearest rather than truncating, so 0.999 gives 255 and every
// 8-bit value survives a round trip through FromImage.
func Quantize(v float32) uint8 {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xff
	}
	return uint8(math.Round(float64(v) * 255))
}

func unpremultiply(c, a uint8) uint8 {
	v := (uint32(c)*0xff + uint32(a)/2) / uint32(a)
	if v > 0xff {
		v = 0xff
	}
	return uint8(v)
}

// Size returns the shared size of the batch, or an error if the batch is empty or
// mixes sizes.
func (b Batch) Size() (image.Point, error) {
	if len(b) == 0 {
		return image.Point{}, ErrEmptyBatch
	}

	size := image.Pt(b[0].Width, b[0].Height)
	for i, img := range b {
		if err := img.Validate(); err != nil {
			return image.Point{}, fmt.Errorf("image %d: %w", i, err)
		}
		if img.Width != size.X || img.Height != size.Y {
			return image.Point{}, ErrUniformSize
		}
	}

	return size, nil
}

// Concat joins batches in order. Mixed sizes are rejected since a batch is a
// single N×H×W×3 block on the host side.
func Concat(batches ...Batch) (Batch, error) {
	var out Batch
	for _, b := range batches {
		out = append(out, b...)
	}

	if _, err := out.Size(); err != nil {
		return nil, err
	}

	return out, nil
}

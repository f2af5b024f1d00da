package imageutil

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/webp"
)

// DefaultJPEGQuality matches the quality Pillow uses when none is given.
const DefaultJPEGQuality = 75

var ErrUnsupportedFormat = errors.New("unsupported image format")

// DecodeImage sniffs the payload and decodes it with the matching codec.
func DecodeImage(data []byte) (image.Image, error) {
	mtype := mimetype.Detect(data)
	format := strings.TrimPrefix(mtype.String(), "image/")

	var (
		output image.Image
		err    error
	)

	switch format {
	case "bmp":
		output, err = bmp.Decode(bytes.NewReader(data))
	case "png":
		output, err = png.Decode(bytes.NewReader(data))
	case "jpeg":
		output, err = jpeg.Decode(bytes.NewReader(data))
	case "gif":
		output, err = gif.Decode(bytes.NewReader(data))
	case "webp":
		output, err = webp.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mtype.String())
	}

	return output, err
}

// EncodeJPEG encodes img as a baseline JPEG.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}

	var output bytes.Buffer
	if err := jpeg.Encode(&output, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}

	return output.Bytes(), nil
}

// PNGCompression maps a zlib level (0-9) onto the levels image/png exposes.
func PNGCompression(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level >= 9:
		return png.BestCompression
	default:
		return png.DefaultCompression
	}
}

// EncodePNG encodes img and inserts the given text chunks right after IHDR.
func EncodePNG(img image.Image, level int, texts []TextChunk) ([]byte, error) {
	encoder := png.Encoder{CompressionLevel: PNGCompression(level)}

	var output bytes.Buffer
	if err := encoder.Encode(&output, img); err != nil {
		return nil, err
	}

	if len(texts) == 0 {
		return output.Bytes(), nil
	}

	return InsertTextChunks(output.Bytes(), texts)
}

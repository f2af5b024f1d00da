package imageutil

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/shoenig/test/must"
)

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(60 * x), G: uint8(60 * y), B: 90, A: 0xff})
		}
	}
	return img
}

func TestEncodePNGWithText(t *testing.T) {
	prompt, err := JSONTextChunk("prompt", map[string]any{"1": map[string]any{"class_type": "ノード"}})
	must.NoError(t, err)
	must.StrContains(t, prompt.Text, `\u30ce\u30fc\u30c9`)

	data, err := EncodePNG(testImage(), 4, []TextChunk{prompt, {Keyword: "workflow", Text: `{"nodes":[]}`}})
	must.NoError(t, err)

	texts, err := ReadTextChunks(bytes.NewReader(data))
	must.NoError(t, err)
	must.MapLen(t, 2, texts)
	must.EqOp(t, `{"nodes":[]}`, texts["workflow"])

	var decoded map[string]map[string]string
	must.NoError(t, json.Unmarshal([]byte(texts["prompt"]), &decoded))
	must.EqOp(t, "ノード", decoded["1"]["class_type"])

	// The chunks must not corrupt the image stream.
	img, err := png.Decode(bytes.NewReader(data))
	must.NoError(t, err)
	rgba, ok := img.(*image.RGBA)
	must.True(t, ok)
	must.Eq(t, testImage().Pix, rgba.Pix)
}

func TestInsertTextChunksRejectsNonPNG(t *testing.T) {
	_, err := InsertTextChunks([]byte("GIF89a"), nil)
	must.ErrorIs(t, err, ErrNotPNG)

	_, err = ReadTextChunks(bytes.NewReader([]byte("not a png file")))
	must.ErrorIs(t, err, ErrNotPNG)
}

func TestReadTextChunksRejectsBogusLength(t *testing.T) {
	chunk := func(length uint32, body string) []byte {
		data := append([]byte{}, pngSignature...)
		data = binary.BigEndian.AppendUint32(data, length)
		data = append(data, "tEXt"...)
		return append(data, body...)
	}

	_, err := ReadTextChunks(bytes.NewReader(chunk(0xfffffff0, "a\x00b")))
	must.ErrorIs(t, err, ErrChunkTooLarge)

	// Declares 2 GiB but carries three bytes.
	_, err = ReadTextChunks(bytes.NewReader(chunk(maxChunkLength, "a\x00b")))
	must.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestInsertTextChunksRejectsBadKeyword(t *testing.T) {
	var buf bytes.Buffer
	must.NoError(t, png.Encode(&buf, testImage()))

	_, err := InsertTextChunks(buf.Bytes(), []TextChunk{{Keyword: "", Text: "x"}})
	must.ErrorIs(t, err, ErrInvalidTextChunk)
}

func TestDecodeImage(t *testing.T) {
	var pngBuf, jpegBuf bytes.Buffer
	must.NoError(t, png.Encode(&pngBuf, testImage()))
	must.NoError(t, jpeg.Encode(&jpegBuf, testImage(), nil))

	for name, data := range map[string][]byte{"png": pngBuf.Bytes(), "jpeg": jpegBuf.Bytes()} {
		img, err := DecodeImage(data)
		must.NoError(t, err, must.Sprint(name))
		must.Eq(t, image.Rect(0, 0, 4, 4), img.Bounds(), must.Sprint(name))
	}

	_, err := DecodeImage([]byte("plain text"))
	must.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEncodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(testImage(), 0)
	must.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	must.NoError(t, err)
	must.Eq(t, image.Rect(0, 0, 4, 4), img.Bounds())
}

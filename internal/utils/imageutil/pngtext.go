package imageutil

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strconv"
	"unicode/utf8"
)

var pngSignature = []byte{137, 80, 78, 71, 13, 10, 26, 10}

// IHDR is always the first chunk: 4 length + 4 type + 13 data + 4 crc.
const ihdrEnd = 8 + 4 + 4 + 13 + 4

var (
	ErrNotPNG           = errors.New("not a valid PNG file")
	ErrMalformedText    = errors.New("malformed tEXt chunk")
	ErrInvalidTextChunk = errors.New("invalid tEXt keyword")
	ErrChunkTooLarge    = errors.New("PNG chunk length out of range")
)

// maxChunkLength is the largest chunk length a PNG may declare.
const maxChunkLength = 1<<31 - 1

type TextChunk struct {
	Keyword string
	Text    string
}

// JSONTextChunk serializes value as ASCII-only JSON so it fits a Latin-1 tEXt chunk.
func JSONTextChunk(keyword string, value any) (TextChunk, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return TextChunk{}, fmt.Errorf("failed to encode %s metadata: %w", keyword, err)
	}

	return TextChunk{
		Keyword: keyword,
		Text:    asciiEscape(bytes.TrimRight(buf.Bytes(), "\n")),
	}, nil
}

func asciiEscape(data []byte) string {
	var out bytes.Buffer
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r < utf8.RuneSelf {
			out.WriteRune(r)
			continue
		}
		if r > 0xffff {
			r -= 0x10000
			writeUnicodeEscape(&out, 0xd800+(r>>10))
			writeUnicodeEscape(&out, 0xdc00+(r&0x3ff))
			continue
		}
		writeUnicodeEscape(&out, r)
	}
	return out.String()
}

func writeUnicodeEscape(out *bytes.Buffer, r rune) {
	out.WriteString(`\u`)
	hex := strconv.FormatInt(int64(r), 16)
	for i := len(hex); i < 4; i++ {
		out.WriteByte('0')
	}
	out.WriteString(hex)
}

// InsertTextChunks returns a copy of an encoded PNG with tEXt chunks placed after IHDR.
func InsertTextChunks(data []byte, texts []TextChunk) ([]byte, error) {
	if len(data) < ihdrEnd || !bytes.Equal(data[:8], pngSignature) || string(data[12:16]) != "IHDR" {
		return nil, ErrNotPNG
	}

	var output bytes.Buffer
	output.Grow(len(data))
	output.Write(data[:ihdrEnd])

	for _, text := range texts {
		if err := writeTextChunk(&output, text); err != nil {
			return nil, err
		}
	}

	output.Write(data[ihdrEnd:])
	return output.Bytes(), nil
}

func writeTextChunk(w *bytes.Buffer, text TextChunk) error {
	if len(text.Keyword) == 0 || len(text.Keyword) > 79 || bytes.IndexByte([]byte(text.Keyword), 0) >= 0 {
		return fmt.Errorf("%w: %q", ErrInvalidTextChunk, text.Keyword)
	}

	payload := make([]byte, 0, len(text.Keyword)+1+len(text.Text))
	payload = append(payload, text.Keyword...)
	payload = append(payload, 0)
	payload = append(payload, text.Text...)

	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(payload)))
	copy(header[4:], "tEXt")

	crc := crc32.NewIEEE()
	crc.Write(header[4:])
	crc.Write(payload)

	w.Write(header[:])
	w.Write(payload)
	return binary.Write(w, binary.BigEndian, crc.Sum32())
}

// ReadTextChunks returns every tEXt chunk of a PNG stream keyed by keyword.
func ReadTextChunks(r io.Reader) (map[string]string, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	if !bytes.Equal(header, pngSignature) {
		return nil, ErrNotPNG
	}

	texts := make(map[string]string)
	for {
		var length uint32
		err := binary.Read(r, binary.BigEndian, &length)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if length > maxChunkLength {
			return nil, fmt.Errorf("%w: %d", ErrChunkTooLarge, length)
		}

		chunkType := make([]byte, 4)
		if _, err := io.ReadFull(r, chunkType); err != nil {
			return nil, err
		}

		if string(chunkType) == "tEXt" {
			// Grows with the bytes actually present, not the declared length.
			chunkData, err := io.ReadAll(io.LimitReader(r, int64(length)))
			if err != nil {
				return nil, err
			}
			if len(chunkData) < int(length) {
				return nil, io.ErrUnexpectedEOF
			}

			keywordEnd := bytes.IndexByte(chunkData, 0)
			if keywordEnd == -1 {
				return nil, ErrMalformedText
			}

			texts[string(chunkData[:keywordEnd])] = string(chunkData[keywordEnd+1:])
		} else if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
			return nil, err
		}

		// crc
		if _, err := io.CopyN(io.Discard, r, 4); err != nil {
			return nil, err
		}

		if string(chunkType) == "IEND" {
			break
		}
	}

	return texts, nil
}

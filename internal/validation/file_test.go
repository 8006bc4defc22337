package validation

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/png"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

// pngCanvas returns just the signature and IHDR chunk of a PNG declaring a
// w x h grayscale canvas. Decoders read the size without any pixel data.
func pngCanvas(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth, color type 0 (grayscale)

	chunk := append([]byte("IHDR"), ihdr...)
	out := []byte("\x89PNG\r\n\x1a\n")
	out = binary.BigEndian.AppendUint32(out, uint32(len(ihdr)))
	out = append(out, chunk...)
	out = binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(chunk))
	return out
}

func multipartHeader(t *testing.T, filename string, data []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("reference_image", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	return req.MultipartForm.File["reference_image"][0]
}

func TestValidateBytes(t *testing.T) {
	mime, err := ValidateBytes(pngBytes(t), BotReferenceConstraints)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	_, err = ValidateBytes([]byte("GIF89a...."), BotReferenceConstraints)
	assert.True(t, errors.Is(err, ErrUnsupportedType))
}

func TestValidateBytesSizeCeilings(t *testing.T) {
	data := append(pngBytes(t), make([]byte, 6<<20)...)

	_, err := ValidateBytes(data, BotReferenceConstraints)
	assert.True(t, errors.Is(err, ErrFileTooLarge))

	// the web ceiling is higher
	_, err = ValidateBytes(data, WebReferenceConstraints)
	assert.NoError(t, err)
}

func TestValidateFile(t *testing.T) {
	header := multipartHeader(t, "ref.png", pngBytes(t))
	mime, err := ValidateFile(header, WebReferenceConstraints)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	header = multipartHeader(t, "ref.gif", pngBytes(t))
	_, err = ValidateFile(header, WebReferenceConstraints)
	assert.True(t, errors.Is(err, ErrInvalidExtension))

	header = multipartHeader(t, "ref.png", []byte("plain text pretending"))
	_, err = ValidateFile(header, WebReferenceConstraints)
	assert.True(t, errors.Is(err, ErrUnsupportedType))
}

func TestValidatePrompt(t *testing.T) {
	assert.NoError(t, ValidatePrompt("a cat"))
	assert.ErrorIs(t, ValidatePrompt("   "), ErrPromptRequired)
	assert.ErrorIs(t, ValidatePrompt(string(bytes.Repeat([]byte("a"), MaxPromptLength+1))), ErrPromptTooLong)
}

func TestValidateRejectsOversizedCanvas(t *testing.T) {
	huge := pngCanvas(16000, 16000)
	require.Less(t, len(huge), 64, "the header alone is tiny")

	_, err := ValidateBytes(huge, BotReferenceConstraints)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = ValidateBytes(huge, WebReferenceConstraints)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = ValidateFile(multipartHeader(t, "huge.png", huge), WebReferenceConstraints)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	// one long side is enough
	_, err = ValidateBytes(pngCanvas(MaxReferenceSide+1, 10), BotReferenceConstraints)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = ValidateBytes(pngCanvas(4000, 3000), BotReferenceConstraints)
	assert.NoError(t, err)
}

func TestValidateRejectsUndecodableImage(t *testing.T) {
	_, err := ValidateBytes([]byte("\x89PNG\r\n\x1a\nnot really a png"), BotReferenceConstraints)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, makeTestImage(width, height), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, makeTestImage(width, height)))
	return buf.Bytes()
}

func TestNormalizeJPEGWithinBounds(t *testing.T) {
	n := NewNormalizer(Options{})

	result, err := n.Normalize(encodeJPEG(t, 400, 300))

	require.NoError(t, err)
	assert.Equal(t, 400, result.Width)
	assert.Equal(t, 300, result.Height)
	assert.Equal(t, DefaultBaseQuality, result.Quality)
	assert.NotEmpty(t, result.Bytes)

	decoded, err := base64.StdEncoding.DecodeString(result.Base64)
	require.NoError(t, err)
	assert.Equal(t, result.Bytes, decoded)
}

func TestNormalizeAcceptsPNG(t *testing.T) {
	n := NewNormalizer(Options{})

	result, err := n.Normalize(encodePNG(t, 200, 100))

	require.NoError(t, err)
	assert.Equal(t, 200, result.Width)
	assert.Equal(t, 100, result.Height)

	// Output is always re-encoded as JPEG regardless of input format.
	_, err = jpeg.Decode(bytes.NewReader(result.Bytes))
	assert.NoError(t, err)
}

func TestNormalizeDownscalesLargeImages(t *testing.T) {
	n := NewNormalizer(Options{MaxEdgePx: 100})

	result, err := n.Normalize(encodeJPEG(t, 400, 200))

	require.NoError(t, err)
	assert.Equal(t, 100, result.Width)
	assert.Equal(t, 50, result.Height)
}

func TestNormalizeKeepsAspectRatioOnPortrait(t *testing.T) {
	n := NewNormalizer(Options{MaxEdgePx: 100})

	result, err := n.Normalize(encodeJPEG(t, 200, 400))

	require.NoError(t, err)
	assert.Equal(t, 50, result.Width)
	assert.Equal(t, 100, result.Height)
}

func TestNormalizeRejectsOversizedUpload(t *testing.T) {
	payload := encodeJPEG(t, 400, 300)
	n := NewNormalizer(Options{MaxUploadBytes: int64(len(payload) - 1)})

	_, err := n.Normalize(payload)

	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestNormalizeRejectsUnsupportedFormat(t *testing.T) {
	n := NewNormalizer(Options{})

	_, err := n.Normalize([]byte("%PDF-1.4 definitely not an image"))

	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestNormalizeRejectsEmptyPayload(t *testing.T) {
	n := NewNormalizer(Options{})

	_, err := n.Normalize(nil)

	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestNormalizeRejectsCorruptImage(t *testing.T) {
	n := NewNormalizer(Options{})

	// Valid JPEG magic bytes followed by garbage.
	corrupt := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0xAB}, 64)...)
	_, err := n.Normalize(corrupt)

	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestNormalizeOverBudgetInputShrinks(t *testing.T) {
	// Noisy input encoded at high quality compresses poorly; forcing the
	// adaptive quality to the floor must still shrink the payload.
	img := image.NewRGBA(image.Rect(0, 0, 300, 300))
	seed := uint32(1)
	for y := 0; y < 300; y++ {
		for x := 0; x < 300; x++ {
			seed = seed*1664525 + 1013904223
			img.Set(x, y, color.RGBA{uint8(seed >> 8), uint8(seed >> 16), uint8(seed >> 24), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	input := buf.Bytes()

	n := NewNormalizer(Options{TargetBytes: 1024})
	result, err := n.Normalize(input)

	require.NoError(t, err)
	assert.Equal(t, DefaultMinQuality, result.Quality)
	assert.Less(t, len(result.Bytes), len(input))
}

func TestQualityForScalesWithInputSize(t *testing.T) {
	n := NewNormalizer(Options{TargetBytes: 1000, BaseQuality: 80, MinQuality: 60})

	assert.Equal(t, 80, n.qualityFor(500), "inputs under budget keep base quality")
	assert.Equal(t, 80, n.qualityFor(1000))
	assert.Equal(t, 64, n.qualityFor(1250), "quality scales down proportionally")
	assert.Equal(t, 60, n.qualityFor(100000), "quality never drops below the floor")
}

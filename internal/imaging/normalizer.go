// Package imaging prepares uploaded document photos for recognition. It
// bounds the byte budget before any network call: oversized images are
// rejected, large dimensions are downscaled, and the result is re-encoded as
// JPEG with a quality chosen from the input size. It also derives the content
// fingerprint used as the recognition cache key.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	// WEBP uploads are common from Android camera apps; registering the
	// decoder lets image.Decode handle them alongside JPEG and PNG.
	_ "golang.org/x/image/webp"

	"docintel/internal/logger"
)

const (
	// DefaultMaxUploadBytes is the hard cap on raw uploads (5MB).
	DefaultMaxUploadBytes = 5 * 1024 * 1024

	// DefaultMaxEdgePx bounds the longer image edge after normalization.
	DefaultMaxEdgePx = 2000

	// DefaultTargetBytes is the encoded size the adaptive quality aims for (2MB).
	DefaultTargetBytes = 2 * 1024 * 1024

	// DefaultBaseQuality is the JPEG quality used for inputs under the target budget.
	DefaultBaseQuality = 85

	// DefaultMinQuality is the floor the adaptive quality never drops below.
	DefaultMinQuality = 60
)

var acceptedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Options configures the normalizer. Zero values fall back to the defaults.
type Options struct {
	MaxUploadBytes int64
	MaxEdgePx      int
	TargetBytes    int64
	BaseQuality    int
	MinQuality     int
}

// NormalizedImage is the bounded, JPEG re-encoded form of an upload.
type NormalizedImage struct {
	// Base64 is the standard-encoded JPEG payload sent to the OCR service
	// (no data-URI header).
	Base64 string

	// Bytes is the raw encoded JPEG.
	Bytes []byte

	Width   int
	Height  int
	Quality int
}

// Normalizer downsamples and re-encodes uploads to a bounded byte budget.
type Normalizer struct {
	opts Options
	log  zerolog.Logger
}

// NewNormalizer creates a normalizer with the given options.
func NewNormalizer(opts Options) *Normalizer {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.MaxEdgePx <= 0 {
		opts.MaxEdgePx = DefaultMaxEdgePx
	}
	if opts.TargetBytes <= 0 {
		opts.TargetBytes = DefaultTargetBytes
	}
	if opts.BaseQuality <= 0 {
		opts.BaseQuality = DefaultBaseQuality
	}
	if opts.MinQuality <= 0 {
		opts.MinQuality = DefaultMinQuality
	}
	return &Normalizer{
		opts: opts,
		log:  logger.WithComponent("normalizer"),
	}
}

// Normalize validates the raw upload, downscales it when either dimension
// exceeds the configured maximum edge, and re-encodes it as JPEG. The
// returned payload is what the OCR adapter and the fingerprint see.
func (n *Normalizer) Normalize(raw []byte) (*NormalizedImage, error) {
	const op = "Normalize"

	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyImage)
	}
	if int64(len(raw)) > n.opts.MaxUploadBytes {
		return nil, fmt.Errorf("%s: %w (size: %d bytes, limit: %d)", op, ErrImageTooLarge, len(raw), n.opts.MaxUploadBytes)
	}

	mimeType := http.DetectContentType(raw)
	if !acceptedMIMETypes[mimeType] {
		return nil, fmt.Errorf("%s: %w (detected: %s)", op, ErrUnsupportedFormat, mimeType)
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrUndecodable, err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width > n.opts.MaxEdgePx || height > n.opts.MaxEdgePx {
		img = imaging.Fit(img, n.opts.MaxEdgePx, n.opts.MaxEdgePx, imaging.Lanczos)
		bounds = img.Bounds()
		n.log.Debug().
			Int("original_width", width).
			Int("original_height", height).
			Int("width", bounds.Dx()).
			Int("height", bounds.Dy()).
			Msg("Downscaled image to maximum edge")
		width, height = bounds.Dx(), bounds.Dy()
	}

	quality := n.qualityFor(int64(len(raw)))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("%s: failed to encode JPEG: %w", op, err)
	}

	n.log.Debug().
		Str("mime", mimeType).
		Int("input_bytes", len(raw)).
		Int("output_bytes", buf.Len()).
		Int("quality", quality).
		Msg("Image normalized")

	return &NormalizedImage{
		Base64:  base64.StdEncoding.EncodeToString(buf.Bytes()),
		Bytes:   buf.Bytes(),
		Width:   width,
		Height:  height,
		Quality: quality,
	}, nil
}

// qualityFor lowers the JPEG quality proportionally as the input grows past
// the target budget, bounded below by the minimum quality.
func (n *Normalizer) qualityFor(inputSize int64) int {
	if inputSize <= n.opts.TargetBytes {
		return n.opts.BaseQuality
	}
	quality := int(int64(n.opts.BaseQuality) * n.opts.TargetBytes / inputSize)
	if quality < n.opts.MinQuality {
		return n.opts.MinQuality
	}
	return quality
}

package imaging

import "errors"

// Validation errors raised before any network call. The pipeline surfaces
// these to the caller as user-facing messages rather than transport failures.
var (
	// ErrImageTooLarge is returned when the raw upload exceeds the hard size cap.
	ErrImageTooLarge = errors.New("image exceeds the maximum upload size")

	// ErrUnsupportedFormat is returned for files outside the accepted MIME set
	// (JPEG, PNG, WEBP).
	ErrUnsupportedFormat = errors.New("unsupported image format: only JPEG, PNG and WEBP are accepted")

	// ErrUndecodable is returned when the payload claims an accepted format
	// but cannot be decoded.
	ErrUndecodable = errors.New("image could not be decoded")

	// ErrEmptyImage is returned for zero-length input.
	ErrEmptyImage = errors.New("image is empty")
)

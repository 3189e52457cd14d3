// Package ocr invokes the external text-recognition service on a normalized
// document photo. Two providers are supported: Google Cloud Vision document
// text detection (default) and a Google Document AI OCR processor. Both are
// treated as opaque — any transport or service-side failure comes back as a
// wrapped typed error, never a panic, so the orchestrator can treat OCR and
// extraction failures uniformly.
//
// Required Environment Variables (either provider):
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
package ocr

import (
	"context"
	"time"
)

// Service defines the text-recognition boundary. Input is the normalized
// base64 JPEG payload produced by the image normalizer.
type Service interface {
	// Recognize extracts text from a normalized base64-encoded image.
	Recognize(ctx context.Context, base64Image string) (*Result, error)
}

// Result contains the recognized text with metadata.
type Result struct {
	// Text is the extracted text content in reading order.
	Text string `json:"text"`

	// Confidence is the average confidence reported by the provider (0.0 to 1.0).
	Confidence float32 `json:"confidence"`

	// ProcessingTime is how long the provider call took.
	ProcessingTime time.Duration `json:"processing_time"`
}

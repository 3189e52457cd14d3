package extract

import "errors"

var (
	// ErrExtractionFailed is returned when the AI service is unreachable or
	// keeps returning unusable output after retries.
	ErrExtractionFailed = errors.New("field extraction failed")

	// ErrEmptyText is returned when there is no OCR text to extract from.
	ErrEmptyText = errors.New("no text to extract from")
)

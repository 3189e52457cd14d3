package ocr

import (
	"errors"
	"fmt"
)

// Common OCR processing errors
var (
	// ErrInvalidPayload is returned when the base64 payload cannot be decoded.
	ErrInvalidPayload = errors.New("invalid base64 image payload")

	// ErrRecognitionFailed is returned when the provider fails to process the image.
	ErrRecognitionFailed = errors.New("text recognition failed")

	// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
	// nor GOOGLE_CREDENTIALS environment variables are configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrEmptyDocument is returned when the image contains no readable text.
	ErrEmptyDocument = errors.New("image contains no readable text")

	// ErrInvalidConfiguration is returned when provider configuration is incomplete.
	ErrInvalidConfiguration = errors.New("invalid OCR provider configuration")
)

// Error wraps failures with additional context about the recognition attempt.
type Error struct {
	// Op is the operation that failed (e.g., "Recognize").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WrapError wraps an error with operation context if it isn't already wrapped.
func WrapError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *Error
	if errors.As(err, &ocrErr) {
		return err
	}

	return &Error{Op: op, Err: err, Details: details}
}

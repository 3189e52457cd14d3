// Package extract invokes the external AI service that turns raw OCR text
// into structured fields. The adapter is agnostic to field semantics: what
// fields come back is governed entirely by the caller's prompt, and the
// matcher and classifier interpret whatever keys arrive. When a
// classification ruleset is supplied, the service may also return a document
// type with confidence; the orchestrator falls back to the keyword
// classifier when it does not.
package extract

import (
	"context"
	"time"

	"docintel/pkg/models"
)

// Request is one extraction call.
type Request struct {
	// Text is the raw OCR output to extract from.
	Text string

	// Prompt describes the desired field names and formats, free-form.
	Prompt string

	// ClassificationRules optionally describe how to choose among document
	// archetypes. Empty means the service is not asked to classify.
	ClassificationRules string
}

// Result contains the structured extraction outcome.
type Result struct {
	// Fields maps extracted field name to value. Never populated on failure.
	Fields map[string]string

	// Confidence maps field name to an integer score in [0, 100], when the
	// service reported per-field confidence.
	Confidence map[string]int

	// Classification is set only when the service classified the document.
	Classification *models.Classification

	// ProcessingTime is how long the service call took.
	ProcessingTime time.Duration
}

// Service defines the field-extraction boundary.
type Service interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}

// Package classify decides which document archetype a recognized document
// belongs to. The extraction service's own classification takes precedence
// when present; the keyword classifier here is the deterministic fallback,
// scoring raw text and extracted fields against weighted keyword groups.
package classify

import "docintel/pkg/models"

// Classifier scores a document into one of the archetypes.
type Classifier interface {
	Classify(text string, fields map[string]string) models.Classification
}

// Priority is the fixed evaluation order used to break score ties. The
// accumulation order must not silently decide ties, so the order is a named
// constant: followup beats vaccination beats diagnosis.
var Priority = []models.DocumentType{
	models.DocumentFollowUp,
	models.DocumentVaccination,
	models.DocumentDiagnosis,
}

// MinConfidence is the score floor below which a document is classified as
// unknown regardless of which archetype nominally led.
const MinConfidence = 30

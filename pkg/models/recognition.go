package models

// DocumentType identifies one of the recognized document archetypes.
type DocumentType string

const (
	DocumentVaccination DocumentType = "vaccination"
	DocumentFollowUp    DocumentType = "followup"
	DocumentDiagnosis   DocumentType = "diagnosis"
	DocumentUnknown     DocumentType = "unknown"
)

// Classification is the outcome of document type classification.
// Confidence is an integer score in [0, 100].
type Classification struct {
	Type       DocumentType `json:"type"`
	Confidence int          `json:"confidence"`
}

// CandidateMatch scores one resident as a possible identity match for an
// extracted document. Candidates are never auto-committed; the caller always
// presents them for human confirmation.
type CandidateMatch struct {
	ResidentID    string   `json:"resident_id"`
	MatchedFields []string `json:"matched_fields"`
	Confidence    int      `json:"confidence"`
}

// RecognitionResult is the immutable outcome of one pipeline run. Successful
// results are persisted into the recognition cache keyed by Fingerprint; a
// result with Success=false never carries extracted fields and is never
// cached.
type RecognitionResult struct {
	Success bool `json:"success"`

	// RawText is the OCR output the extraction step ran on.
	RawText string `json:"raw_text,omitempty"`

	// Fields holds the AI-extracted key/value pairs. Key names are whatever
	// the extraction prompt asked for; the pipeline assigns no semantics.
	Fields map[string]string `json:"fields,omitempty"`

	// FieldConfidence maps field name to an integer confidence in [0, 100],
	// when the extraction service reported one.
	FieldConfidence map[string]int `json:"field_confidence,omitempty"`

	Classification *Classification `json:"classification,omitempty"`

	// Candidates is the ranked resident match list, sorted descending by
	// confidence. Computed fresh on every run, including cache hits.
	Candidates []CandidateMatch `json:"candidates,omitempty"`

	Error string `json:"error,omitempty"`

	// ProcessingTimeMs covers the OCR and extraction calls. A cache hit
	// reports 0 to signal that no network work occurred.
	ProcessingTimeMs int64 `json:"processing_time_ms"`

	// Fingerprint is the content hash the result is cached under.
	Fingerprint string `json:"fingerprint,omitempty"`

	CacheHit bool `json:"cache_hit,omitempty"`
}

// Clone returns a deep copy. The cache hands out clones so callers can never
// mutate a stored entry.
func (r *RecognitionResult) Clone() *RecognitionResult {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Fields != nil {
		clone.Fields = make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			clone.Fields[k] = v
		}
	}
	if r.FieldConfidence != nil {
		clone.FieldConfidence = make(map[string]int, len(r.FieldConfidence))
		for k, v := range r.FieldConfidence {
			clone.FieldConfidence[k] = v
		}
	}
	if r.Classification != nil {
		c := *r.Classification
		clone.Classification = &c
	}
	if r.Candidates != nil {
		clone.Candidates = make([]CandidateMatch, len(r.Candidates))
		for i, cand := range r.Candidates {
			clone.Candidates[i] = cand
			clone.Candidates[i].MatchedFields = append([]string(nil), cand.MatchedFields...)
		}
	}
	return &clone
}

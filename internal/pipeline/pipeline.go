// Package pipeline sequences one document recognition: normalize the photo,
// fingerprint it, consult the recognition cache, run OCR, run AI field
// extraction, classify the document and match it against the resident
// roster. Each request is one linear asynchronous sequence; concurrent
// requests for the same image coalesce into a single execution through the
// batcher. The caller — the record UI — owns whatever happens after the
// result surfaces.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"docintel/internal/batch"
	"docintel/internal/cache"
	"docintel/internal/classify"
	"docintel/internal/extract"
	"docintel/internal/imaging"
	"docintel/internal/logger"
	"docintel/internal/match"
	"docintel/internal/ocr"
	"docintel/internal/prompt"
	"docintel/pkg/models"
)

const recognizeCategory = "recognize"

// Request is one recognition invocation.
type Request struct {
	// Image is the raw uploaded photo.
	Image []byte

	// ForceRefresh skips the cache lookup and guarantees a fresh OCR and
	// extraction pass; the fresh result overwrites the cached entry.
	ForceRefresh bool

	// Residents is the roster the entity matcher scores against. Empty
	// skips matching.
	Residents []models.Resident

	// Prompt and ClassificationRules override the prompt store for this
	// request when non-empty.
	Prompt              string
	ClassificationRules string
}

// Options wires the pipeline's collaborators. Cache, OCR and Extractor are
// required; the rest default.
type Options struct {
	Normalizer *imaging.Normalizer
	Cache      cache.Store
	OCR        ocr.Service
	Extractor  extract.Service
	Fallback   classify.Classifier
	Matcher    *match.Matcher
	Prompts    prompt.Store

	// AdapterTimeout bounds each OCR/extraction call. An expiry is reported
	// as a retryable failure result, not a hang.
	AdapterTimeout time.Duration

	// BatchWindow is how long identical concurrent uploads are collected
	// before one shared execution dispatches.
	BatchWindow time.Duration
}

// Pipeline orchestrates the recognition stages.
type Pipeline struct {
	normalizer *imaging.Normalizer
	cache      cache.Store
	ocr        ocr.Service
	extractor  extract.Service
	fallback   classify.Classifier
	matcher    *match.Matcher
	prompts    prompt.Store
	timeout    time.Duration
	batcher    *batch.Batcher[*models.RecognitionResult]
	log        zerolog.Logger
}

// New creates a pipeline from options.
func New(opts Options) (*Pipeline, error) {
	if opts.Cache == nil {
		return nil, fmt.Errorf("pipeline: cache store is required")
	}
	if opts.OCR == nil {
		return nil, fmt.Errorf("pipeline: OCR service is required")
	}
	if opts.Extractor == nil {
		return nil, fmt.Errorf("pipeline: extraction service is required")
	}
	if opts.Normalizer == nil {
		opts.Normalizer = imaging.NewNormalizer(imaging.Options{})
	}
	if opts.Fallback == nil {
		opts.Fallback = classify.NewKeywordClassifier()
	}
	if opts.Matcher == nil {
		opts.Matcher = match.NewMatcher()
	}
	if opts.Prompts == nil {
		opts.Prompts = prompt.NewMemoryStore(nil)
	}
	if opts.AdapterTimeout <= 0 {
		opts.AdapterTimeout = 30 * time.Second
	}

	return &Pipeline{
		normalizer: opts.Normalizer,
		cache:      opts.Cache,
		ocr:        opts.OCR,
		extractor:  opts.Extractor,
		fallback:   opts.Fallback,
		matcher:    opts.Matcher,
		prompts:    opts.Prompts,
		timeout:    opts.AdapterTimeout,
		batcher:    batch.New[*models.RecognitionResult](batch.Options{Window: opts.BatchWindow}),
		log:        logger.WithComponent("pipeline"),
	}, nil
}

// Recognize runs the full pipeline for one uploaded image.
//
// Validation failures (bad type, oversized, undecodable) return an error the
// caller can match with errors.Is against the imaging sentinels — nothing
// was sent over the network. Once the image is accepted, transport-level
// failures come back inside the result (Success=false, Error set) so OCR and
// extraction failures read uniformly; such results are never cached, so a
// retry always re-attempts.
func (p *Pipeline) Recognize(ctx context.Context, req Request) (*models.RecognitionResult, error) {
	requestID := uuid.NewString()
	log := p.log.With().Str("request_id", requestID).Logger()

	normalized, err := p.normalizer.Normalize(req.Image)
	if err != nil {
		log.Warn().Err(err).Msg("Image rejected before recognition")
		return nil, err
	}

	fingerprint := imaging.Fingerprint(normalized.Base64)
	log.Info().
		Str("fingerprint", fingerprint).
		Bool("force_refresh", req.ForceRefresh).
		Int("image_bytes", len(normalized.Bytes)).
		Msg("Starting recognition")

	promptSet, err := p.resolvePrompts(ctx, req)
	if err != nil {
		return nil, err
	}

	// Identical concurrent uploads share one execution. Force-refresh
	// requests batch separately so they can never be satisfied by a
	// cache-hit execution.
	dedupKey := fmt.Sprintf("%s:%t", fingerprint, req.ForceRefresh)
	shared, err := p.batcher.Do(ctx, recognizeCategory, dedupKey, func() (*models.RecognitionResult, error) {
		return p.process(ctx, log, fingerprint, normalized.Base64, req.ForceRefresh, promptSet), nil
	})
	if err != nil {
		return nil, err
	}

	// Matching always runs fresh — candidates are never persisted, and
	// duplicate callers may carry different rosters.
	result := shared.Clone()
	if result.Success && len(req.Residents) > 0 {
		result.Candidates = p.matcher.Match(result.Fields, req.Residents)
	}

	log.Info().
		Bool("success", result.Success).
		Bool("cache_hit", result.CacheHit).
		Int64("processing_time_ms", result.ProcessingTimeMs).
		Int("candidates", len(result.Candidates)).
		Msg("Recognition finished")

	return result, nil
}

// process runs the cache/OCR/extract/classify leg shared between duplicate
// callers.
func (p *Pipeline) process(ctx context.Context, log zerolog.Logger, fingerprint, base64Image string, forceRefresh bool, promptSet *prompt.PromptSet) *models.RecognitionResult {
	if !forceRefresh {
		cached, err := p.cache.Get(ctx, fingerprint)
		if err != nil {
			log.Warn().Err(err).Msg("Cache lookup failed, proceeding without cache")
		} else if cached != nil {
			hit := cached.Clone()
			hit.ProcessingTimeMs = 0
			hit.CacheHit = true
			log.Info().Msg("Recognition cache hit")
			return hit
		}
	}

	startTime := time.Now()

	ocrCtx, cancel := context.WithTimeout(ctx, p.timeout)
	ocrResult, err := p.ocr.Recognize(ocrCtx, base64Image)
	cancel()
	if err != nil {
		return p.failure(log, fingerprint, startTime, "OCR", err)
	}

	extractCtx, cancel := context.WithTimeout(ctx, p.timeout)
	extractResult, err := p.extractor.Extract(extractCtx, extract.Request{
		Text:                ocrResult.Text,
		Prompt:              promptSet.ExtractionPrompt,
		ClassificationRules: promptSet.ClassificationRules,
	})
	cancel()
	if err != nil {
		return p.failure(log, fingerprint, startTime, "extraction", err)
	}

	classification := p.classify(log, ocrResult.Text, extractResult)

	result := &models.RecognitionResult{
		Success:          true,
		RawText:          ocrResult.Text,
		Fields:           extractResult.Fields,
		FieldConfidence:  extractResult.Confidence,
		Classification:   &classification,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
		Fingerprint:      fingerprint,
	}

	if err := p.cache.Put(ctx, fingerprint, result); err != nil {
		log.Warn().Err(err).Msg("Failed to cache recognition result")
	}

	return result
}

// classify applies the documented precedence: the AI classification wins
// when it committed to a concrete archetype, otherwise the deterministic
// keyword fallback decides.
func (p *Pipeline) classify(log zerolog.Logger, text string, extractResult *extract.Result) models.Classification {
	if ai := extractResult.Classification; ai != nil && ai.Type != models.DocumentUnknown {
		log.Debug().
			Str("type", string(ai.Type)).
			Int("confidence", ai.Confidence).
			Msg("Using AI classification")
		return *ai
	}
	classification := p.fallback.Classify(text, extractResult.Fields)
	log.Debug().
		Str("type", string(classification.Type)).
		Int("confidence", classification.Confidence).
		Msg("Using keyword classification")
	return classification
}

func (p *Pipeline) failure(log zerolog.Logger, fingerprint string, startTime time.Time, stage string, err error) *models.RecognitionResult {
	message := fmt.Sprintf("%s failed: %v", stage, err)
	if errors.Is(err, context.DeadlineExceeded) {
		message = fmt.Sprintf("%s timed out, please retry", stage)
	}
	log.Error().Err(err).Str("stage", stage).Msg("Recognition stage failed")
	return &models.RecognitionResult{
		Success:          false,
		Error:            message,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
		Fingerprint:      fingerprint,
	}
}

func (p *Pipeline) resolvePrompts(ctx context.Context, req Request) (*prompt.PromptSet, error) {
	set := &prompt.PromptSet{
		ExtractionPrompt:    req.Prompt,
		ClassificationRules: req.ClassificationRules,
	}
	if set.ExtractionPrompt != "" && set.ClassificationRules != "" {
		return set, nil
	}

	stored, err := p.prompts.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to load prompts: %w", err)
	}
	if set.ExtractionPrompt == "" {
		set.ExtractionPrompt = stored.ExtractionPrompt
	}
	if set.ClassificationRules == "" {
		set.ClassificationRules = stored.ClassificationRules
	}
	return set, nil
}

// ClearPending discards recognition work that is queued but not yet
// dispatched. Callers waiting on discarded entries receive
// batch.ErrDiscarded.
func (p *Pipeline) ClearPending() {
	p.batcher.ClearQueue(recognizeCategory)
}

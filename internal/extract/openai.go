package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"docintel/internal/logger"
	"docintel/pkg/models"
)

// chatCompleter is the slice of the OpenAI client the service uses. Tests
// inject a stub; production passes *openai.Client.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config configures the OpenAI-backed extraction service.
type Config struct {
	Model       string  // e.g. gpt-4o-mini
	Temperature float32 // keep low for deterministic extraction
	MaxRetries  int     // attempts before giving up on unusable output
	MaxTokens   int
}

// DefaultConfig returns the production defaults.
func DefaultConfig(model string) Config {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return Config{
		Model:       model,
		Temperature: 0.1,
		MaxRetries:  3,
		MaxTokens:   1500,
	}
}

// OpenAIService implements Service using a chat completion with a JSON-only
// contract and a bounded retry loop around malformed replies.
type OpenAIService struct {
	client chatCompleter
	config Config
	log    zerolog.Logger
}

// NewOpenAIService creates the service from an API key.
func NewOpenAIService(apiKey string, config Config) (*OpenAIService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("NewOpenAIService: API key is required")
	}
	return NewOpenAIServiceWithClient(openai.NewClient(apiKey), config), nil
}

// NewOpenAIServiceWithClient creates the service with an explicit client (for testing).
func NewOpenAIServiceWithClient(client chatCompleter, config Config) *OpenAIService {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1500
	}
	return &OpenAIService{
		client: client,
		config: config,
		log:    logger.WithComponent("extract"),
	}
}

// Extract sends the OCR text plus the extraction prompt (and optional
// classification rules) to the model and parses the JSON reply.
func (s *OpenAIService) Extract(ctx context.Context, req Request) (*Result, error) {
	const op = "Extract"
	startTime := time.Now()

	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyText)
	}

	prompt := s.buildUserPrompt(req)

	s.log.Debug().
		Int("text_length", len(req.Text)).
		Bool("with_classification", req.ClassificationRules != "").
		Str("model", s.config.Model).
		Msg("Sending extraction request")

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       s.config.Model,
			Temperature: s.config.Temperature,
			MaxTokens:   s.config.MaxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req.ClassificationRules != "")},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			lastErr = err
			// Do not burn retries on a dead context.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: %w: %v", op, ErrExtractionFailed, err)
			}
			s.log.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("max_retries", s.config.MaxRetries).
				Msg("Extraction request failed, retrying")
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no response choices")
			continue
		}

		content := resp.Choices[0].Message.Content
		result, err := s.parseResponse(content, req.ClassificationRules != "")
		if err != nil {
			lastErr = err
			s.log.Warn().
				Err(err).
				Str("response", content).
				Int("attempt", attempt).
				Msg("Unusable extraction response, retrying")
			continue
		}

		result.ProcessingTime = time.Since(startTime)
		s.log.Info().
			Int("field_count", len(result.Fields)).
			Dur("duration", result.ProcessingTime).
			Int("attempt", attempt).
			Msg("Extraction completed")
		return result, nil
	}

	return nil, fmt.Errorf("%s: %w: all %d attempts failed, last error: %v", op, ErrExtractionFailed, s.config.MaxRetries, lastErr)
}

func systemPrompt(withClassification bool) string {
	var b strings.Builder
	b.WriteString(`You extract structured data from OCR text of medical documents photographed in a residential care facility. The text mixes Traditional Chinese and English and may contain OCR noise.

Return ONLY valid JSON, no markdown fences, no text before or after, with this shape:
{
  "fields": { "<field name from the instructions>": "<value>", ... },
  "confidence": { "<field name>": <integer 0-100>, ... }`)
	if withClassification {
		b.WriteString(`,
  "classification": { "type": "<per the classification rules>", "confidence": <integer 0-100> }`)
	}
	b.WriteString(`
}

Rules:
- Omit fields you cannot find; never invent values.
- Dates in YYYY-MM-DD format where the instructions do not say otherwise.
- Keep identifier values exactly as printed, including redaction characters.
- No trailing commas.`)
	return b.String()
}

func (s *OpenAIService) buildUserPrompt(req Request) string {
	var prompt strings.Builder
	prompt.WriteString("Extraction instructions:\n")
	prompt.WriteString(req.Prompt)
	if req.ClassificationRules != "" {
		prompt.WriteString("\n\nClassification rules:\n")
		prompt.WriteString(req.ClassificationRules)
	}
	prompt.WriteString("\n\nOCR text:\n")
	prompt.WriteString(req.Text)
	return prompt.String()
}

// parseResponse parses the model reply tolerantly: markdown fences are
// stripped, confidence values are accepted as numbers or numeric strings,
// and fractional confidences (0..1) are scaled to 0-100.
func (s *OpenAIService) parseResponse(content string, expectClassification bool) (*Result, error) {
	cleaned := stripCodeFence(content)

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse extraction JSON: %w", err)
	}

	result := &Result{
		Fields:     make(map[string]string),
		Confidence: make(map[string]int),
	}

	if fieldsRaw, ok := raw["fields"].(map[string]interface{}); ok {
		for key, value := range fieldsRaw {
			if str := coerceString(value); str != "" {
				result.Fields[key] = str
			}
		}
	} else {
		// Some models flatten the object; treat top-level non-reserved keys
		// as fields.
		for key, value := range raw {
			if key == "confidence" || key == "classification" {
				continue
			}
			if str := coerceString(value); str != "" {
				result.Fields[key] = str
			}
		}
	}

	if len(result.Fields) == 0 {
		return nil, fmt.Errorf("extraction response contained no fields")
	}

	if confRaw, ok := raw["confidence"].(map[string]interface{}); ok {
		for key, value := range confRaw {
			result.Confidence[key] = coerceConfidence(value)
		}
	}

	if expectClassification {
		if classRaw, ok := raw["classification"].(map[string]interface{}); ok {
			docType := models.DocumentType(strings.ToLower(coerceString(classRaw["type"])))
			switch docType {
			case models.DocumentVaccination, models.DocumentFollowUp, models.DocumentDiagnosis, models.DocumentUnknown:
				result.Classification = &models.Classification{
					Type:       docType,
					Confidence: coerceConfidence(classRaw["confidence"]),
				}
			default:
				s.log.Warn().
					Str("type", string(docType)).
					Msg("Ignoring unrecognized classification type from model")
			}
		}
	}

	return result, nil
}

// stripCodeFence removes a surrounding ```json ... ``` block if present.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// coerceString renders a JSON value as a string, tolerating numbers.
func coerceString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// coerceConfidence accepts a confidence as a number or numeric string and
// normalizes it into [0, 100]. Fractions in (0, 1] are treated as ratios.
func coerceConfidence(value interface{}) int {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if f > 0 && f <= 1 {
		f *= 100
	}
	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return int(f + 0.5)
}

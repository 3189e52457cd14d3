package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docintel/pkg/models"
)

// stubCompleter feeds scripted replies to the service; each call consumes the
// next entry.
type stubCompleter struct {
	replies []string
	errs    []error
	calls   int
}

func (s *stubCompleter) CreateChatCompletion(_ context.Context, _ openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return openai.ChatCompletionResponse{}, s.errs[i]
	}
	reply := ""
	if i < len(s.replies) {
		reply = s.replies[i]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: reply}},
		},
	}, nil
}

func newTestService(replies []string, errs []error) *OpenAIService {
	return NewOpenAIServiceWithClient(
		&stubCompleter{replies: replies, errs: errs},
		DefaultConfig("gpt-4o-mini"),
	)
}

func TestExtractParsesWellFormedResponse(t *testing.T) {
	svc := newTestService([]string{`{
		"fields": {"疫苗名稱": "流感疫苗", "注射日期": "2024-09-15"},
		"confidence": {"疫苗名稱": 95, "注射日期": 88}
	}`}, nil)

	result, err := svc.Extract(context.Background(), Request{Text: "some ocr text", Prompt: "extract"})

	require.NoError(t, err)
	assert.Equal(t, "流感疫苗", result.Fields["疫苗名稱"])
	assert.Equal(t, 95, result.Confidence["疫苗名稱"])
	assert.Nil(t, result.Classification)
}

func TestExtractStripsMarkdownFence(t *testing.T) {
	svc := newTestService([]string{"```json\n{\"fields\": {\"姓名\": \"陳大文\"}}\n```"}, nil)

	result, err := svc.Extract(context.Background(), Request{Text: "text", Prompt: "extract"})

	require.NoError(t, err)
	assert.Equal(t, "陳大文", result.Fields["姓名"])
}

func TestExtractAcceptsFlattenedFields(t *testing.T) {
	// Some models drop the "fields" wrapper and emit fields at the top level.
	svc := newTestService([]string{`{"姓名": "陳大文", "confidence": {"姓名": 80}}`}, nil)

	result, err := svc.Extract(context.Background(), Request{Text: "text", Prompt: "extract"})

	require.NoError(t, err)
	assert.Equal(t, "陳大文", result.Fields["姓名"])
	assert.Equal(t, 80, result.Confidence["姓名"])
}

func TestExtractParsesClassification(t *testing.T) {
	svc := newTestService([]string{`{
		"fields": {"覆診日期": "2024-10-01"},
		"classification": {"type": "followup", "confidence": 85}
	}`}, nil)

	result, err := svc.Extract(context.Background(), Request{
		Text:                "text",
		Prompt:              "extract",
		ClassificationRules: "choose the document type",
	})

	require.NoError(t, err)
	require.NotNil(t, result.Classification)
	assert.Equal(t, models.DocumentFollowUp, result.Classification.Type)
	assert.Equal(t, 85, result.Classification.Confidence)
}

func TestExtractIgnoresUnrecognizedClassificationType(t *testing.T) {
	svc := newTestService([]string{`{
		"fields": {"a": "b"},
		"classification": {"type": "invoice", "confidence": 90}
	}`}, nil)

	result, err := svc.Extract(context.Background(), Request{
		Text:                "text",
		Prompt:              "extract",
		ClassificationRules: "choose the document type",
	})

	require.NoError(t, err)
	assert.Nil(t, result.Classification)
}

func TestExtractRetriesOnMalformedReply(t *testing.T) {
	stub := &stubCompleter{replies: []string{
		"I'm sorry, I can't produce JSON",
		`{"fields": {"a": "b"}}`,
	}}
	svc := NewOpenAIServiceWithClient(stub, DefaultConfig(""))

	result, err := svc.Extract(context.Background(), Request{Text: "text", Prompt: "extract"})

	require.NoError(t, err)
	assert.Equal(t, "b", result.Fields["a"])
	assert.Equal(t, 2, stub.calls)
}

func TestExtractFailsAfterMaxRetries(t *testing.T) {
	stub := &stubCompleter{replies: []string{"garbage", "garbage", "garbage"}}
	svc := NewOpenAIServiceWithClient(stub, DefaultConfig(""))

	_, err := svc.Extract(context.Background(), Request{Text: "text", Prompt: "extract"})

	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.Equal(t, 3, stub.calls)
}

func TestExtractDoesNotRetryOnDeadContext(t *testing.T) {
	stub := &stubCompleter{errs: []error{context.Canceled, context.Canceled, context.Canceled}}
	svc := NewOpenAIServiceWithClient(stub, DefaultConfig(""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Extract(ctx, Request{Text: "text", Prompt: "extract"})

	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.Equal(t, 1, stub.calls)
}

func TestExtractRejectsEmptyText(t *testing.T) {
	svc := newTestService(nil, nil)

	_, err := svc.Extract(context.Background(), Request{Text: "   ", Prompt: "extract"})

	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestExtractRejectsEmptyFields(t *testing.T) {
	stub := &stubCompleter{replies: []string{`{"fields": {}}`, `{"fields": {}}`, `{"fields": {}}`}}
	svc := NewOpenAIServiceWithClient(stub, DefaultConfig(""))

	_, err := svc.Extract(context.Background(), Request{Text: "text", Prompt: "extract"})

	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtractRetriesTransportError(t *testing.T) {
	stub := &stubCompleter{
		errs:    []error{errors.New("rate limited"), nil},
		replies: []string{"", `{"fields": {"a": "b"}}`},
	}
	svc := NewOpenAIServiceWithClient(stub, DefaultConfig(""))

	result, err := svc.Extract(context.Background(), Request{Text: "text", Prompt: "extract"})

	require.NoError(t, err)
	assert.Equal(t, "b", result.Fields["a"])
}

func TestCoerceConfidence(t *testing.T) {
	assert.Equal(t, 85, coerceConfidence(float64(85)))
	assert.Equal(t, 85, coerceConfidence("85"))
	assert.Equal(t, 85, coerceConfidence(0.85), "fractions scale to percentages")
	assert.Equal(t, 100, coerceConfidence(float64(250)), "clamped above")
	assert.Equal(t, 0, coerceConfidence(float64(-5)), "clamped below")
	assert.Equal(t, 0, coerceConfidence("not a number"))
	assert.Equal(t, 0, coerceConfidence(nil))
}

func TestCoerceString(t *testing.T) {
	assert.Equal(t, "hello", coerceString("  hello  "))
	assert.Equal(t, "42", coerceString(float64(42)))
	assert.Equal(t, "3.5", coerceString(3.5))
	assert.Equal(t, "true", coerceString(true))
	assert.Equal(t, "", coerceString(map[string]interface{}{}))
}

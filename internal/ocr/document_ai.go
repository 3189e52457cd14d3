package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
)

// DocumentAIConfig configures the Document AI OCR provider.
type DocumentAIConfig struct {
	ProjectID   string
	Location    string // "us", "eu", ...
	ProcessorID string // a Document OCR processor
}

// DocumentAIService implements Service using a Google Document AI OCR
// processor. Selected with OCR_PROVIDER=documentai; useful where Vision's
// handwriting accuracy on care-home paperwork falls short.
type DocumentAIService struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
}

// NewDocumentAIService creates the provider with credentials from environment.
func NewDocumentAIService(ctx context.Context, config DocumentAIConfig) (Service, error) {
	const op = "NewDocumentAIService"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, WrapError(op, ErrInvalidConfiguration, "project ID and processor ID are required")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	var clientOptions []option.ClientOption

	// Regional endpoint for non-US processors
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	if credJSON := os.Getenv("GOOGLE_CREDENTIALS"); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if len(clientOptions) == 0 {
			return nil, WrapError(op, ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, WrapError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return &DocumentAIService{client: client, config: config}, nil
}

// NewDocumentAIServiceWithClient creates the provider with an explicit client (for testing).
func NewDocumentAIServiceWithClient(config DocumentAIConfig, client *documentai.DocumentProcessorClient) Service {
	return &DocumentAIService{client: client, config: config}
}

// Recognize extracts text from a normalized base64-encoded image.
func (d *DocumentAIService) Recognize(ctx context.Context, base64Image string) (*Result, error) {
	const op = "Recognize"
	startTime := time.Now()

	imageBytes, err := base64.StdEncoding.DecodeString(base64Image)
	if err != nil {
		return nil, WrapError(op, ErrInvalidPayload, err.Error())
	}

	req := &documentaipb.ProcessRequest{
		Name: d.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  imageBytes,
				MimeType: "image/jpeg",
			},
		},
	}

	resp, err := d.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, WrapError(op, ErrRecognitionFailed, fmt.Sprintf("Document AI call failed: %v", err))
	}

	doc := resp.GetDocument()
	if doc == nil || doc.Text == "" {
		return nil, WrapError(op, ErrEmptyDocument, "")
	}

	// Document AI reports confidence per detected page layout.
	var confidenceSum float32
	var confidenceCount int
	for _, page := range doc.Pages {
		if layout := page.GetLayout(); layout != nil && layout.Confidence > 0 {
			confidenceSum += layout.Confidence
			confidenceCount++
		}
	}
	var avgConfidence float32
	if confidenceCount > 0 {
		avgConfidence = confidenceSum / float32(confidenceCount)
	}

	return &Result{
		Text:           doc.Text,
		Confidence:     avgConfidence,
		ProcessingTime: time.Since(startTime),
	}, nil
}

func (d *DocumentAIService) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		d.config.ProjectID, d.config.Location, d.config.ProcessorID)
}

// Close closes the underlying Document AI client.
func (d *DocumentAIService) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"docintel/internal/cache"
	"docintel/internal/config"
	"docintel/internal/extract"
	"docintel/internal/imaging"
	"docintel/internal/logger"
	"docintel/internal/ocr"
	"docintel/internal/pipeline"
	"docintel/internal/prompt"
	"docintel/pkg/models"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize [image-file]",
	Short: "Run the full recognition pipeline on a document photo",
	Long: `Process a photographed medical document end to end: normalize the
image, check the recognition cache, extract text via OCR, extract structured
fields via the AI service, classify the document type and rank possible
resident matches.

Required environment variables:
  OPENAI_API_KEY - API key for the field-extraction service
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string`,
	Example: `  # Recognize a photo and print the result
  docintel recognize photo.jpg

  # Match against a resident roster and emit JSON
  docintel recognize photo.jpg --roster roster.json --json

  # Bypass the cache
  docintel recognize photo.jpg --force-refresh`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().StringP("roster", "r", "", "Path to a JSON resident roster to match against")
	recognizeCmd.Flags().StringP("prompts", "p", "", "Path to a JSON prompt set file (default: built-in prompts)")
	recognizeCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	recognizeCmd.Flags().Bool("force-refresh", false, "Skip the recognition cache and force a fresh pass")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
	recognizeCmd.Flags().Int("timeout", 300, "Overall processing timeout in seconds")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("recognize")

	rosterPath, _ := cmd.Flags().GetString("roster")
	promptsPath, _ := cmd.Flags().GetString("prompts")
	outputPath, _ := cmd.Flags().GetString("output")
	forceRefresh, _ := cmd.Flags().GetBool("force-refresh")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	imagePath := args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		log.Error().Err(err).Str("file", imagePath).Msg("Failed to read image file")
		return fmt.Errorf("failed to read image file: %w", err)
	}

	var roster []models.Resident
	if rosterPath != "" {
		roster, err = loadRoster(rosterPath)
		if err != nil {
			return err
		}
		log.Info().Int("residents", len(roster)).Str("file", rosterPath).Msg("Roster loaded")
	}

	ctx, cancel := contextWithTimeout(timeoutSecs, log)
	defer cancel()

	p, cleanup, err := buildPipeline(ctx, cfg, promptsPath, log)
	if err != nil {
		return err
	}
	defer cleanup()

	log.Info().
		Str("file", imagePath).
		Int("bytes", len(imageBytes)).
		Bool("force_refresh", forceRefresh).
		Msg("Starting recognition")

	result, err := p.Recognize(ctx, pipeline.Request{
		Image:        imageBytes,
		ForceRefresh: forceRefresh,
		Residents:    roster,
	})
	if err != nil {
		return handleRecognitionError(err)
	}

	return outputResult(result, outputPath, jsonOutput, log)
}

// buildPipeline assembles the pipeline from configuration. The returned
// cleanup closes any provider clients that were opened.
func buildPipeline(ctx context.Context, cfg *config.Config, promptsPath string, log zerolog.Logger) (*pipeline.Pipeline, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}

	ocrService, err := buildOCRService(ctx, cfg, log)
	if err != nil {
		return nil, cleanup, err
	}
	if closer, ok := ocrService.(interface{ Close() error }); ok {
		cleanups = append(cleanups, func() { _ = closer.Close() })
	}

	extractor, err := extract.NewOpenAIService(cfg.OpenAIAPIKey, extract.DefaultConfig(cfg.OpenAIModel))
	if err != nil {
		return nil, cleanup, err
	}

	var store cache.Store
	if cfg.RedisAddr != "" {
		redisStore, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		})
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, func() { _ = redisStore.Close() })
		store = redisStore
		log.Debug().Str("addr", cfg.RedisAddr).Msg("Using Redis recognition cache")
	} else {
		store = cache.NewMemoryStore(cfg.CacheTTL)
		log.Debug().Msg("Using in-memory recognition cache")
	}

	var prompts prompt.Store
	if promptsPath != "" {
		prompts = prompt.NewFileStore(promptsPath)
	}

	p, err := pipeline.New(pipeline.Options{
		Normalizer: imaging.NewNormalizer(imaging.Options{
			MaxUploadBytes: cfg.MaxUploadBytes,
			MaxEdgePx:      cfg.MaxImageEdgePx,
			TargetBytes:    cfg.TargetImageSize,
		}),
		Cache:          store,
		OCR:            ocrService,
		Extractor:      extractor,
		Prompts:        prompts,
		AdapterTimeout: cfg.AdapterTimeout,
	})
	if err != nil {
		return nil, cleanup, err
	}
	return p, cleanup, nil
}

func buildOCRService(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.Service, error) {
	hasCredentials := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" || os.Getenv("GOOGLE_CREDENTIALS") != ""
	if !hasCredentials {
		log.Error().Msg("Google Cloud credentials not configured")
		return nil, fmt.Errorf("Google Cloud credentials not configured. Please set one of:\n\n" +
			"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
			"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
			"2. Export GOOGLE_CREDENTIALS with inline JSON:\n" +
			"   export GOOGLE_CREDENTIALS='{\"type\":\"service_account\",...}'\n\n" +
			"3. Use Application Default Credentials (if gcloud is configured):\n" +
			"   gcloud auth application-default login")
	}

	switch cfg.OCRProvider {
	case "documentai":
		return ocr.NewDocumentAIService(ctx, ocr.DocumentAIConfig{
			ProjectID:   cfg.GoogleCloudProject,
			Location:    cfg.GoogleCloudLocation,
			ProcessorID: cfg.DocumentAIProcessorID,
		})
	default:
		return ocr.NewGoogleVisionService(ctx)
	}
}

func loadRoster(path string) ([]models.Resident, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}
	var roster []models.Resident
	if err := json.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("invalid roster file %s: %w", path, err)
	}
	return roster, nil
}

// contextWithTimeout creates a context with timeout and signal handling.
func contextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling recognition")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func handleRecognitionError(err error) error {
	switch {
	case errors.Is(err, imaging.ErrImageTooLarge):
		return fmt.Errorf("image is too large (maximum 5MB). Try a smaller photo")
	case errors.Is(err, imaging.ErrUnsupportedFormat):
		return fmt.Errorf("unsupported image format. Accepted formats: JPEG, PNG, WEBP")
	case errors.Is(err, imaging.ErrUndecodable):
		return fmt.Errorf("the file could not be decoded as an image. Please check the file")
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("recognition timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("recognition was canceled")
	default:
		return fmt.Errorf("recognition failed: %w", err)
	}
}

func outputResult(result *models.RecognitionResult, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	var outputData []byte

	if jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		outputData = data
	} else {
		var output strings.Builder
		if result.Success {
			output.WriteString("=== Recognition Result ===\n")
			if result.CacheHit {
				output.WriteString("Served from cache\n")
			}
			if result.Classification != nil {
				output.WriteString(fmt.Sprintf("Document type: %s (confidence %d%%)\n",
					result.Classification.Type, result.Classification.Confidence))
			}
			output.WriteString(fmt.Sprintf("Processing time: %dms\n\n", result.ProcessingTimeMs))
			output.WriteString("Extracted fields:\n")
			for name, value := range result.Fields {
				output.WriteString(fmt.Sprintf("  %s: %s\n", name, value))
			}
			if len(result.Candidates) > 0 {
				output.WriteString("\nResident candidates (needs human confirmation):\n")
				for _, candidate := range result.Candidates {
					output.WriteString(fmt.Sprintf("  %s: %d%% (matched: %s)\n",
						candidate.ResidentID, candidate.Confidence, strings.Join(candidate.MatchedFields, ", ")))
				}
			}
		} else {
			output.WriteString(fmt.Sprintf("Recognition failed: %s\n", result.Error))
		}
		outputData = []byte(output.String())
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, outputData, 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(outputData)).
			Msg("Result written to file")
		return nil
	}

	if _, err := os.Stdout.Write(outputData); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if jsonOutput {
		fmt.Println()
	}
	return nil
}

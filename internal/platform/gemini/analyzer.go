package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/google/uuid"
	"github.com/nimbusvault/nimbus-api/internal/analysis"
	"github.com/nimbusvault/nimbus-api/internal/config"
	"github.com/nimbusvault/nimbus-api/internal/domain"
	"google.golang.org/genai"
)

// ErrInvalidConfig is returned when the analyzer is constructed with missing
// or invalid configuration.
var ErrInvalidConfig = errors.New("invalid gemini configuration")

// defaultConfidence is used when the model response omits its own score.
const defaultConfidence = float64(0)

// promptTemplates maps each supported task type to the prompt sent to the
// model. Every prompt instructs the model to answer with a single JSON
// object carrying a confidence field.
var promptTemplates = map[string]string{
	domain.TaskTypeAnalyzeContent: `Analyze the content of the stored file with ID {{.FileID}}.
Describe what the file contains, its main subjects, and anything notable.
Respond with a single JSON object of the form
{"summary": string, "topics": [string], "confidence": number between 0 and 1}.`,

	domain.TaskTypeExtractMetadata: `Extract structured metadata for the stored file with ID {{.FileID}}.
Respond with a single JSON object of the form
{"title": string, "language": string, "keywords": [string], "confidence": number between 0 and 1}.`,
}

// promptData is the template input for prompt rendering.
type promptData struct {
	FileID uuid.UUID
}

// GeminiAnalyzer implements the analysis.Analyzer interface using Google's
// Gemini API. Failures are tagged analysis.ErrTransient or
// analysis.ErrPermanent so the retry classifier can act on them structurally.
//
// The analyzer makes exactly one API call per Analyze invocation; retrying
// belongs to the caller.
type GeminiAnalyzer struct {
	logger  *slog.Logger
	config  config.LLMConfig
	client  *genai.Client
	model   string
	prompts map[string]*template.Template
}

// NewGeminiAnalyzer creates a new GeminiAnalyzer with the provided
// configuration. The context is used only for client initialization.
func NewGeminiAnalyzer(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiAnalyzer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	prompts, err := parsePromptTemplates()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return &GeminiAnalyzer{
		logger:  logger.With("component", "gemini_analyzer"),
		config:  cfg,
		client:  client,
		model:   cfg.ModelName,
		prompts: prompts,
	}, nil
}

// Ensure GeminiAnalyzer implements analysis.Analyzer
var _ analysis.Analyzer = (*GeminiAnalyzer)(nil)

// Analyze implements analysis.Analyzer.Analyze
func (g *GeminiAnalyzer) Analyze(ctx context.Context, taskType string, fileID uuid.UUID) (*analysis.Result, error) {
	prompt, err := g.buildPrompt(taskType, fileID)
	if err != nil {
		return nil, err
	}

	g.logger.DebugContext(ctx, "calling Gemini API",
		"task_type", taskType,
		"file_id", fileID,
		"model", g.model)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		// Network and quota faults from the API are worth retrying.
		return nil, fmt.Errorf("%w: gemini call failed: %v", analysis.ErrTransient, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", analysis.ErrPermanent)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: content blocked by safety filters", analysis.ErrPermanent)
	}

	result, err := parseModelResponse(resp.Text())
	if err != nil {
		return nil, err
	}

	g.logger.DebugContext(ctx, "Gemini API call succeeded",
		"task_type", taskType,
		"file_id", fileID,
		"confidence", result.Confidence)
	return result, nil
}

// buildPrompt renders the prompt template for the task type.
func (g *GeminiAnalyzer) buildPrompt(taskType string, fileID uuid.UUID) (string, error) {
	tmpl, ok := g.prompts[taskType]
	if !ok {
		return "", fmt.Errorf("%w: %w: %s", analysis.ErrPermanent, analysis.ErrUnknownTaskType, taskType)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, promptData{FileID: fileID}); err != nil {
		return "", fmt.Errorf("%w: failed to render prompt: %v", analysis.ErrPermanent, err)
	}

	return buf.String(), nil
}

// parseModelResponse validates the model's JSON answer and extracts the
// confidence score. The full JSON object is kept as the result payload.
func parseModelResponse(text string) (*analysis.Result, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: empty response text", analysis.ErrPermanent)
	}

	var envelope struct {
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err != nil {
		return nil, fmt.Errorf("%w: invalid format in model response: %v", analysis.ErrPermanent, err)
	}

	confidence := defaultConfidence
	if envelope.Confidence != nil {
		confidence = *envelope.Confidence
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of range", analysis.ErrPermanent, confidence)
	}

	return &analysis.Result{
		Data:       json.RawMessage(text),
		Confidence: confidence,
	}, nil
}

// parsePromptTemplates compiles the built-in prompts once at construction.
func parsePromptTemplates() (map[string]*template.Template, error) {
	prompts := make(map[string]*template.Template, len(promptTemplates))
	for taskType, text := range promptTemplates {
		tmpl, err := template.New(taskType).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt template for %s: %v", taskType, err)
		}
		prompts[taskType] = tmpl
	}
	return prompts, nil
}

package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"google.golang.org/genai"

	"github.com/edgard/labsage/internal/config"
)

// maxInlineImageBytes bounds the image fetched for inline submission.
const maxInlineImageBytes = 20 << 20

// geminiProvider calls the Gemini API. Gemini cannot dereference arbitrary
// URLs, so images are fetched and sent inline.
type geminiProvider struct {
	genaiClient   *genai.Client
	httpClient    *http.Client
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	modelName     string
}

// NewGeminiProvider creates a Provider backed by the genai SDK.
func NewGeminiProvider(ctx context.Context, cfg config.AnalysisConfig, httpClient *http.Client, logger *slog.Logger) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	temperature := cfg.Temperature
	baseCfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
		},
	}

	log := logger.With("component", "gemini_provider")
	log.Info("Gemini provider initialized successfully", "model", cfg.Model)
	return &geminiProvider{
		genaiClient:   gi,
		httpClient:    httpClient,
		log:           log,
		contentConfig: baseCfg,
		modelName:     cfg.Model,
	}, nil
}

func (p *geminiProvider) Name() string { return ProviderGemini }

func (p *geminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Text)}
	if req.ImageURL != "" {
		data, mimeType, err := p.fetchImage(ctx, req.ImageURL)
		if err != nil {
			return "", err
		}
		parts = append(parts, genai.NewPartFromBytes(data, mimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	copyCfg := *p.contentConfig
	copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.Instruction}}}

	resp, err := p.genaiClient.Models.GenerateContent(ctx, p.modelName, contents, &copyCfg)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	return p.extractText(ctx, resp)
}

func (p *geminiProvider) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build image request: %w", err)
	}
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.log.WarnContext(ctx, "Failed to close image response body", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &httpStatusError{Code: resp.StatusCode, URL: url}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxInlineImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) > maxInlineImageBytes {
		return nil, "", errors.New("image exceeds inline size limit")
	}

	mimeType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

func (p *geminiProvider) extractText(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		p.log.ErrorContext(ctx, "Gemini request blocked", "reason", reasonMsg)
		return "", fmt.Errorf("blocked by safety filter: %s", reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		p.log.WarnContext(ctx, "Gemini response missing candidates or content", "finish_reason", finishReason)
		return "", fmt.Errorf("gemini returned no content, finish reason: %s", finishReason)
	}

	return resp.Text(), nil
}

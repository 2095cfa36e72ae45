package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/edgard/labsage/internal/config"
)

// Supported values of config.AnalysisConfig.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ErrNotConfigured is returned by NewProvider when no API key is set.
var ErrNotConfigured = errors.New("analysis provider not configured")

// Request is a single completion request.
// ImageURL is empty for text-only requests.
type Request struct {
	Instruction string
	Text        string
	ImageURL    string
}

// Provider submits a request to a generative model and returns its text.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// NewProvider creates the provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.AnalysisConfig, logger *slog.Logger) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIProvider(cfg, logger), nil
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg, http.DefaultClient, logger)
	default:
		return nil, fmt.Errorf("unsupported analysis provider %q", cfg.Provider)
	}
}

// isRetryable reports whether err is a rate limit or a server-side failure.
func isRetryable(err error) bool {
	if code := statusCode(err); code != 0 {
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return false
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var genErr genai.APIError
	if errors.As(err, &genErr) {
		return genErr.Code
	}
	var genErrPtr *genai.APIError
	if errors.As(err, &genErrPtr) {
		return genErrPtr.Code
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	return 0
}

// httpStatusError is returned when fetching an image for inline upload fails.
type httpStatusError struct {
	Code int
	URL  string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.Code, e.URL)
}

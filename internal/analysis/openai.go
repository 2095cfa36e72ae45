package analysis

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/edgard/labsage/internal/config"
)

// openAIProvider calls the Chat Completions API. Images are passed by URL.
type openAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	log         *slog.Logger
}

// NewOpenAIProvider creates a Provider backed by go-openai.
func NewOpenAIProvider(cfg config.AnalysisConfig, logger *slog.Logger) Provider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}

	log := logger.With("component", "openai_provider")
	log.Info("OpenAI provider initialized", "model", model)
	return &openAIProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		log:         log,
	}
}

func (p *openAIProvider) Name() string { return ProviderOpenAI }

func (p *openAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if req.ImageURL == "" {
		user.Content = req.Text
	} else {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Text},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    req.ImageURL,
				Detail: openai.ImageURLDetailAuto,
			}},
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: p.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.Instruction},
			user,
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	p.log.DebugContext(ctx, "Completion received",
		"finish_reason", resp.Choices[0].FinishReason,
		"tokens_in", resp.Usage.PromptTokens,
		"tokens_out", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

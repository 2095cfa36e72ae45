// Package analysis submits lab results to a generative provider and always
// hands back text that can be stored and shown to the user.
package analysis

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/edgard/labsage/internal/config"
	"github.com/edgard/labsage/internal/metrics"
)

// Degradation reasons reported in Result.Reason.
const (
	ReasonNotConfigured = "not_configured"
	ReasonTimeout       = "timeout"
	ReasonCanceled      = "canceled"
	ReasonProviderError = "provider_error"
	ReasonEmptyResponse = "empty_response"
)

// ErrAnalysisTimeout marks a provider call that exceeded the configured bound.
var ErrAnalysisTimeout = errors.New("analysis timeout")

var errEmptyResponse = errors.New("provider returned empty text")

// Fallbacks are the user-facing texts substituted when the provider does not answer.
type Fallbacks struct {
	NotConfigured string
	TextApology   string
	ImageApology  string
}

// Result is the outcome of an analysis call. Text is never empty.
type Result struct {
	Text     string
	Degraded bool
	Reason   string
}

// Gateway wraps a Provider with a timeout, retries and fallback texts.
type Gateway struct {
	provider  Provider
	cfg       config.AnalysisConfig
	fallbacks Fallbacks
	log       *slog.Logger
}

// NewGateway creates a Gateway. A nil provider yields the not-configured text on every call.
func NewGateway(provider Provider, cfg config.AnalysisConfig, fallbacks Fallbacks, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	return &Gateway{
		provider:  provider,
		cfg:       cfg,
		fallbacks: fallbacks,
		log:       logger.With("component", "analysis"),
	}
}

// AnalyzeText analyzes free-text lab results.
func (g *Gateway) AnalyzeText(ctx context.Context, text string) Result {
	return g.analyze(ctx, "text", Request{Instruction: TextSystemInstruction, Text: text}, g.fallbacks.TextApology)
}

// AnalyzeImage analyzes the image at publicURL using promptText as the user prompt.
func (g *Gateway) AnalyzeImage(ctx context.Context, publicURL, promptText string) Result {
	req := Request{Instruction: ImageSystemInstruction, Text: promptText, ImageURL: publicURL}
	return g.analyze(ctx, "image", req, g.fallbacks.ImageApology)
}

func (g *Gateway) analyze(ctx context.Context, input string, req Request, apology string) Result {
	if g.provider == nil {
		g.log.ErrorContext(ctx, "Analysis provider is not configured", "input", input)
		return Result{Text: g.fallbacks.NotConfigured, Degraded: true, Reason: ReasonNotConfigured}
	}

	start := time.Now()
	text, err := g.complete(ctx, req)
	elapsed := time.Since(start)

	if err == nil && strings.TrimSpace(text) == "" {
		err = errEmptyResponse
	}

	if err != nil {
		reason := ReasonProviderError
		switch {
		case errors.Is(err, ErrAnalysisTimeout):
			reason = ReasonTimeout
			g.log.ErrorContext(ctx, "AnalysisTimeout", "input", input, "timeout", g.cfg.Timeout, "error", err)
		case ctx.Err() != nil:
			reason = ReasonCanceled
			g.log.WarnContext(ctx, "Analysis canceled", "input", input, "error", err)
		case errors.Is(err, errEmptyResponse):
			reason = ReasonEmptyResponse
			g.log.WarnContext(ctx, "Analysis provider returned empty text", "input", input)
		default:
			g.log.ErrorContext(ctx, "Analysis provider call failed", "input", input, "error", err)
		}
		metrics.AnalysisDuration.WithLabelValues(g.provider.Name(), input, reason).Observe(elapsed.Seconds())
		return Result{Text: apology, Degraded: true, Reason: reason}
	}

	metrics.AnalysisDuration.WithLabelValues(g.provider.Name(), input, "ok").Observe(elapsed.Seconds())
	g.log.InfoContext(ctx, "Analysis completed", "input", input, "duration", elapsed, "length", len(text))
	return Result{Text: text}
}

// complete runs the provider call with retries for transient failures,
// bounded as a whole by cfg.Timeout.
func (g *Gateway) complete(ctx context.Context, req Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = g.cfg.InitialInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(g.cfg.MaxAttempts-1)), callCtx)

	var text string
	attempt := 0
	op := func() error {
		attempt++
		out, err := g.provider.Complete(callCtx, req)
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		text = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		g.log.WarnContext(ctx, "Analysis provider call failed, retrying",
			"attempt", attempt, "max_attempts", g.cfg.MaxAttempts, "status", statusCode(err), "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(op, policy, notify)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", errors.Join(ErrAnalysisTimeout, err)
	}
	return text, err
}

package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/labsage/internal/config"
)

var testFallbacks = Fallbacks{
	NotConfigured: "not configured",
	TextApology:   "sorry, text",
	ImageApology:  "sorry, image",
}

type fakeProvider struct {
	calls   atomic.Int32
	respond func(ctx context.Context, call int32, req Request) (string, error)
	last    atomic.Pointer[Request]
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req Request) (string, error) {
	n := f.calls.Add(1)
	f.last.Store(&req)
	return f.respond(ctx, n, req)
}

func testAnalysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		Timeout:         time.Second,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
	}
}

func TestAnalyzeTextSuccess(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{respond: func(context.Context, int32, Request) (string, error) {
		return "Elevated TSH suggests...", nil
	}}
	g := NewGateway(p, testAnalysisConfig(), testFallbacks, nil)

	res := g.AnalyzeText(context.Background(), "What does high TSH mean?")
	assert.Equal(t, Result{Text: "Elevated TSH suggests..."}, res)

	req := p.last.Load()
	require.NotNil(t, req)
	assert.Equal(t, TextSystemInstruction, req.Instruction)
	assert.Equal(t, "What does high TSH mean?", req.Text)
	assert.Empty(t, req.ImageURL)
}

func TestAnalyzeImageSuccess(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{respond: func(context.Context, int32, Request) (string, error) {
		return "Your ferritin is low", nil
	}}
	g := NewGateway(p, testAnalysisConfig(), testFallbacks, nil)

	res := g.AnalyzeImage(context.Background(), "https://cdn.example/a.jpg", "check my bloodwork")
	assert.False(t, res.Degraded)
	assert.Equal(t, "Your ferritin is low", res.Text)

	req := p.last.Load()
	assert.Equal(t, ImageSystemInstruction, req.Instruction)
	assert.Equal(t, "check my bloodwork", req.Text)
	assert.Equal(t, "https://cdn.example/a.jpg", req.ImageURL)
}

func TestAnalyzeNotConfigured(t *testing.T) {
	t.Parallel()
	g := NewGateway(nil, testAnalysisConfig(), testFallbacks, nil)

	res := g.AnalyzeText(context.Background(), "x")
	assert.Equal(t, Result{Text: "not configured", Degraded: true, Reason: ReasonNotConfigured}, res)
	res = g.AnalyzeImage(context.Background(), "https://x", "y")
	assert.Equal(t, ReasonNotConfigured, res.Reason)
}

func TestAnalyzeProviderErrorFallsBack(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{respond: func(context.Context, int32, Request) (string, error) {
		return "", &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "bad request"}
	}}
	g := NewGateway(p, testAnalysisConfig(), testFallbacks, nil)

	text := g.AnalyzeText(context.Background(), "x")
	assert.Equal(t, Result{Text: "sorry, text", Degraded: true, Reason: ReasonProviderError}, text)
	image := g.AnalyzeImage(context.Background(), "https://x", "y")
	assert.Equal(t, "sorry, image", image.Text)
	assert.Equal(t, int32(2), p.calls.Load(), "client errors are not retried")
}

func TestAnalyzeRetriesTransientErrors(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{respond: func(_ context.Context, call int32, _ Request) (string, error) {
		switch call {
		case 1:
			return "", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}
		case 2:
			return "", &openai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}
		default:
			return "third time lucky", nil
		}
	}}
	g := NewGateway(p, testAnalysisConfig(), testFallbacks, nil)

	res := g.AnalyzeText(context.Background(), "x")
	assert.Equal(t, "third time lucky", res.Text)
	assert.False(t, res.Degraded)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestAnalyzeRetriesAreBounded(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{respond: func(context.Context, int32, Request) (string, error) {
		return "", &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable}
	}}
	g := NewGateway(p, testAnalysisConfig(), testFallbacks, nil)

	res := g.AnalyzeText(context.Background(), "x")
	assert.True(t, res.Degraded)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestAnalyzeTimeout(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{respond: func(ctx context.Context, _ int32, _ Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	cfg := testAnalysisConfig()
	cfg.Timeout = 20 * time.Millisecond
	g := NewGateway(p, cfg, testFallbacks, nil)

	start := time.Now()
	res := g.AnalyzeText(context.Background(), "x")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, Result{Text: "sorry, text", Degraded: true, Reason: ReasonTimeout}, res)
}

func TestAnalyzeCanceled(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{respond: func(ctx context.Context, _ int32, _ Request) (string, error) {
		return "", ctx.Err()
	}}
	g := NewGateway(p, testAnalysisConfig(), testFallbacks, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := g.AnalyzeImage(ctx, "https://x", "y")
	assert.Equal(t, Result{Text: "sorry, image", Degraded: true, Reason: ReasonCanceled}, res)
}

func TestAnalyzeEmptyResponse(t *testing.T) {
	t.Parallel()
	p := &fakeProvider{respond: func(context.Context, int32, Request) (string, error) {
		return "  \n", nil
	}}
	g := NewGateway(p, testAnalysisConfig(), testFallbacks, nil)

	res := g.AnalyzeText(context.Background(), "x")
	assert.Equal(t, Result{Text: "sorry, text", Degraded: true, Reason: ReasonEmptyResponse}, res)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"plain", errors.New("boom"), false},
		{"openai 400", &openai.APIError{HTTPStatusCode: 400}, false},
		{"openai 429", &openai.APIError{HTTPStatusCode: 429}, true},
		{"openai 500", &openai.APIError{HTTPStatusCode: 500}, true},
		{"request 503", &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("x")}, true},
		{"image fetch 404", &httpStatusError{Code: 404}, false},
		{"image fetch 502", &httpStatusError{Code: 502}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestOpenAIProviderSendsImagePart(t *testing.T) {
	t.Parallel()

	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4o",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Elevated TSH suggests..."}}],
			"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	t.Cleanup(srv.Close)

	p := NewOpenAIProvider(config.AnalysisConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o"}, nil)
	text, err := p.Complete(context.Background(), Request{
		Instruction: ImageSystemInstruction,
		Text:        "check my bloodwork",
		ImageURL:    "https://cdn.example/a.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "Elevated TSH suggests...", text)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	require.Len(t, got.Messages[1].MultiContent, 2)
	assert.Equal(t, "check my bloodwork", got.Messages[1].MultiContent[0].Text)
	assert.Equal(t, "https://cdn.example/a.jpg", got.Messages[1].MultiContent[1].ImageURL.URL)
}

func TestOpenAIProviderServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	t.Cleanup(srv.Close)

	p := NewOpenAIProvider(config.AnalysisConfig{APIKey: "sk-test", BaseURL: srv.URL}, nil)
	_, err := p.Complete(context.Background(), Request{Instruction: "i", Text: "t"})
	require.Error(t, err)
	assert.True(t, isRetryable(err))
}

func TestNewProviderRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(context.Background(), config.AnalysisConfig{Provider: ProviderOpenAI}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewProvider(context.Background(), config.AnalysisConfig{Provider: "claude", APIKey: "k"}, nil)
	assert.Error(t, err)
}

package ai

import (
	"context"
	"iter"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"finvisor/pkg/errors"
)

type stubLLM struct {
	name  string
	calls atomic.Int32
}

func (s *stubLLM) Name() string { return s.name }

func (s *stubLLM) GenerateContent(_ context.Context, _ *model.LLMRequest, _ bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		s.calls.Add(1)
		yield(&model.LLMResponse{Content: genai.NewContentFromText("ok", genai.RoleModel)}, nil)
	}
}

type denyLimiter struct{}

func (denyLimiter) Wait(context.Context) error { return context.DeadlineExceeded }
func (denyLimiter) Allow() bool                { return false }

func newTestProvider(apiKey string, limiter RateLimiter) (*GeminiProvider, *atomic.Int32) {
	var created atomic.Int32
	p := NewGeminiProvider(apiKey, limiter)
	p.newModel = func(_ context.Context, name string, cfg *genai.ClientConfig) (model.LLM, error) {
		created.Add(1)
		return &stubLLM{name: name}, nil
	}
	return p, &created
}

func TestGeminiProviderModels(t *testing.T) {
	p := NewGeminiProvider("key", nil)

	info, err := p.GetModel(context.Background(), "Gemini-2.0-Flash")
	require.NoError(t, err)
	assert.Equal(t, ModelGemini20Flash, info.Name)
	assert.Equal(t, ProviderNameGoogle, info.Provider)
	assert.True(t, info.SupportsTools)

	_, err = p.GetModel(context.Background(), "gpt-4o")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	models, err := p.ListModels(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, 6)
}

func TestModelInfoCost(t *testing.T) {
	info := ModelInfo{InputCostPer1K: 0.0001, OutputCostPer1K: 0.0004}

	in, out := info.Cost(10_000, 2_000)
	assert.InDelta(t, 0.001, in, 1e-12)
	assert.InDelta(t, 0.0008, out, 1e-12)
}

func TestGeminiProviderLLMIsCached(t *testing.T) {
	p, created := newTestProvider("key", nil)

	first, err := p.LLM(context.Background(), ModelGemini20Flash)
	require.NoError(t, err)
	second, err := p.LLM(context.Background(), ModelGemini20Flash)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, ModelGemini20Flash, first.Name())
}

func TestGeminiProviderLLMRequiresKey(t *testing.T) {
	p, created := newTestProvider("", nil)

	_, err := p.LLM(context.Background(), ModelGemini20Flash)
	assert.ErrorIs(t, err, errors.ErrUnavailable)
	assert.Zero(t, created.Load())
}

func TestLimitedLLMRejectsWhenLimiterFails(t *testing.T) {
	inner := &stubLLM{name: "stub"}
	llm := NewLimitedLLM(inner, denyLimiter{})

	var gotErr error
	for _, err := range llm.GenerateContent(context.Background(), &model.LLMRequest{}, false) {
		gotErr = err
	}

	assert.ErrorIs(t, gotErr, errors.ErrRateLimitExceeded)
	assert.Zero(t, inner.calls.Load())
}

func TestLimitedLLMForwards(t *testing.T) {
	inner := &stubLLM{name: "stub"}
	llm := NewLimitedLLM(inner, NewNoOpLimiter())

	var texts []string
	for resp, err := range llm.GenerateContent(context.Background(), &model.LLMRequest{}, true) {
		require.NoError(t, err)
		texts = append(texts, resp.Content.Parts[0].Text)
	}

	assert.Equal(t, []string{"ok"}, texts)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestRegistryResolveLLM(t *testing.T) {
	p, _ := newTestProvider("key", nil)
	registry := NewProviderRegistry()
	require.NoError(t, registry.Register(p))
	assert.ErrorIs(t, registry.Register(p), errors.ErrAlreadyExists)

	info, llm, err := registry.ResolveLLM(context.Background(), "google", ModelGemini25Flash)
	require.NoError(t, err)
	assert.Equal(t, ModelGemini25Flash, info.Name)
	assert.Equal(t, ModelGemini25Flash, llm.Name())

	_, _, err = registry.ResolveLLM(context.Background(), "openai", "gpt-4o")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	models, err := registry.ListModels(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, models)
	assert.Equal(t, ModelGemini15Flash, models[0].Name)
}

func TestRateLimiterFactory(t *testing.T) {
	f := NewRateLimiterFactory(nil)

	assert.IsType(t, &NoOpLimiter{}, f.Create(ProviderNameGoogle, RateLimitConfig{}))

	limiter := f.Create(ProviderNameGoogle, RateLimitConfig{Enabled: true, ReqPerMinute: 60, Burst: 2})
	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())
}

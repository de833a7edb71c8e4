package ai

import (
	"context"
	"iter"
	"strings"
	"sync"

	"google.golang.org/adk/model"
	"google.golang.org/adk/model/gemini"
	"google.golang.org/genai"

	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

// GeminiProvider serves Gemini models through the Gemini API.
type GeminiProvider struct {
	apiKey  string
	models  []ModelInfo
	limiter RateLimiter

	// newModel is swapped in tests
	newModel func(ctx context.Context, name string, cfg *genai.ClientConfig) (model.LLM, error)

	mu     sync.Mutex
	cached map[string]model.LLM
}

// NewGeminiProvider creates a new Gemini provider. A nil limiter disables throttling.
func NewGeminiProvider(apiKey string, limiter RateLimiter) *GeminiProvider {
	if limiter == nil {
		limiter = NewNoOpLimiter()
	}
	return &GeminiProvider{
		apiKey:   apiKey,
		models:   geminiModels(),
		limiter:  limiter,
		newModel: gemini.NewModel,
		cached:   make(map[string]model.LLM),
	}
}

// Name returns provider name.
func (p *GeminiProvider) Name() string { return ProviderNameGoogle.String() }

// GetModel returns model info by name.
func (p *GeminiProvider) GetModel(_ context.Context, name string) (ModelInfo, error) {
	for _, m := range p.models {
		if strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	return ModelInfo{}, errors.Wrapf(errors.ErrNotFound, "gemini model %s not found", name)
}

// ListModels lists available models.
func (p *GeminiProvider) ListModels(_ context.Context) ([]ModelInfo, error) {
	return p.models, nil
}

// LLM returns a rate limited Gemini client for the model, creating it once.
func (p *GeminiProvider) LLM(ctx context.Context, name string) (model.LLM, error) {
	info, err := p.GetModel(ctx, name)
	if err != nil {
		return nil, err
	}
	if p.apiKey == "" {
		return nil, errors.Wrap(errors.ErrUnavailable, "GOOGLE_API_KEY is not set")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if llm, ok := p.cached[info.Name]; ok {
		return llm, nil
	}

	llm, err := p.newModel(ctx, info.Name, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create gemini model %s", info.Name)
	}

	limited := NewLimitedLLM(llm, p.limiter)
	p.cached[info.Name] = limited
	return limited, nil
}

// LimitedLLM waits for the rate limiter before each model call.
type LimitedLLM struct {
	inner   model.LLM
	limiter RateLimiter
	log     *logger.Logger
}

// NewLimitedLLM wraps an ADK model with a rate limiter
func NewLimitedLLM(inner model.LLM, limiter RateLimiter) *LimitedLLM {
	return &LimitedLLM{
		inner:   inner,
		limiter: limiter,
		log:     logger.Get().With("component", "gemini_model", "model", inner.Name()),
	}
}

// Name returns the wrapped model name
func (m *LimitedLLM) Name() string { return m.inner.Name() }

// GenerateContent forwards to the wrapped model once the limiter allows it
func (m *LimitedLLM) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		if err := m.limiter.Wait(ctx); err != nil {
			m.log.Warnw("Model call rejected by rate limiter", "error", err)
			yield(nil, errors.Wrap(errors.ErrRateLimitExceeded, err.Error()))
			return
		}
		for resp, err := range m.inner.GenerateContent(ctx, req, stream) {
			if !yield(resp, err) {
				return
			}
		}
	}
}

func geminiModels() []ModelInfo {
	return []ModelInfo{
		{
			Provider:          ProviderNameGoogle,
			Name:              ModelGemini20Flash,
			Family:            "gemini-2.0",
			MaxTokens:         1048576,
			InputCostPer1K:    0.0001,
			OutputCostPer1K:   0.0004,
			SupportsAudio:     true,
			SupportsTools:     true,
			SupportsStreaming: true,
		},
		{
			Provider:          ProviderNameGoogle,
			Name:              ModelGemini20FlashLite,
			Family:            "gemini-2.0",
			MaxTokens:         1048576,
			InputCostPer1K:    0.000075,
			OutputCostPer1K:   0.0003,
			SupportsAudio:     true,
			SupportsTools:     true,
			SupportsStreaming: true,
		},
		{
			Provider:          ProviderNameGoogle,
			Name:              ModelGemini25Flash,
			Family:            "gemini-2.5",
			MaxTokens:         1048576,
			InputCostPer1K:    0.0003,
			OutputCostPer1K:   0.0025,
			SupportsAudio:     true,
			SupportsTools:     true,
			SupportsStreaming: true,
		},
		{
			Provider:          ProviderNameGoogle,
			Name:              ModelGemini25Pro,
			Family:            "gemini-2.5",
			MaxTokens:         1048576,
			InputCostPer1K:    0.00125,
			OutputCostPer1K:   0.01,
			SupportsAudio:     true,
			SupportsTools:     true,
			SupportsStreaming: true,
		},
		{
			Provider:          ProviderNameGoogle,
			Name:              ModelGemini15Flash,
			Family:            "gemini-1.5",
			MaxTokens:         1000000,
			InputCostPer1K:    0.0002,
			OutputCostPer1K:   0.0004,
			SupportsAudio:     true,
			SupportsTools:     true,
			SupportsStreaming: true,
		},
		{
			Provider:          ProviderNameGoogle,
			Name:              ModelGemini15Pro,
			Family:            "gemini-1.5",
			MaxTokens:         2000000,
			InputCostPer1K:    0.0035,
			OutputCostPer1K:   0.0105,
			SupportsAudio:     true,
			SupportsTools:     true,
			SupportsStreaming: true,
		},
	}
}

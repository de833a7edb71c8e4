package ai

import (
	"context"
	"sort"
	"sync"

	"google.golang.org/adk/model"

	"finvisor/pkg/errors"
)

// ProviderRegistry stores all available AI providers.
type ProviderRegistry struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
func (r *ProviderRegistry) Register(provider Provider) error {
	if provider == nil {
		return errors.Wrap(errors.ErrInvalidInput, "provider is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return errors.Wrapf(errors.ErrAlreadyExists, "provider %s", name)
	}

	r.providers[name] = provider
	return nil
}

// Get returns the provider by name.
func (r *ProviderRegistry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "provider %s", name)
	}

	return provider, nil
}

// ListModels aggregates all models across providers, ordered by provider and model name.
func (r *ProviderRegistry) ListModels(ctx context.Context) ([]ModelInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []ModelInfo
	for name, provider := range r.providers {
		models, err := provider.ListModels(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list models for provider %s", name)
		}
		result = append(result, models...)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Provider != result[j].Provider {
			return result[i].Provider < result[j].Provider
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

// ResolveModel fetches model metadata for provider+model combination.
func (r *ProviderRegistry) ResolveModel(ctx context.Context, providerName string, model string) (ModelInfo, error) {
	provider, err := r.Get(providerName)
	if err != nil {
		return ModelInfo{}, err
	}

	return provider.GetModel(ctx, model)
}

// ResolveLLM returns the model metadata together with a client for it.
func (r *ProviderRegistry) ResolveLLM(ctx context.Context, providerName string, name string) (ModelInfo, model.LLM, error) {
	provider, err := r.Get(providerName)
	if err != nil {
		return ModelInfo{}, nil, err
	}

	info, err := provider.GetModel(ctx, name)
	if err != nil {
		return ModelInfo{}, nil, err
	}

	llm, err := provider.LLM(ctx, info.Name)
	if err != nil {
		return ModelInfo{}, nil, err
	}
	return info, llm, nil
}

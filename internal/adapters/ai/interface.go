package ai

import (
	"context"

	"google.golang.org/adk/model"
)

// Provider defines the contract each AI provider implementation must satisfy.
type Provider interface {
	Name() string

	// GetModel returns metadata for a specific model.
	GetModel(ctx context.Context, model string) (ModelInfo, error)

	// ListModels returns the list of available models for the provider.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// LLM returns a model client usable by ADK agents.
	LLM(ctx context.Context, model string) (model.LLM, error)
}

// ModelInfo describes the capabilities and pricing of a model.
type ModelInfo struct {
	Provider          ProviderName `json:"provider"`
	Name              string       `json:"name"`       // Provider-specific model identifier
	Family            string       `json:"family"`     // Family/category name (e.g., "gemini-2.0")
	MaxTokens         int          `json:"max_tokens"` // Maximum context length
	InputCostPer1K    float64      `json:"input_cost_per_1k"`
	OutputCostPer1K   float64      `json:"output_cost_per_1k"`
	SupportsAudio     bool         `json:"supports_audio"`
	SupportsTools     bool         `json:"supports_tools"`
	SupportsStreaming bool         `json:"supports_streaming"`
}

// Cost returns the USD cost of a call split into input and output parts
func (m ModelInfo) Cost(inputTokens, outputTokens int) (input, output float64) {
	input = float64(inputTokens) / 1_000.0 * m.InputCostPer1K
	output = float64(outputTokens) / 1_000.0 * m.OutputCostPer1K
	return input, output
}

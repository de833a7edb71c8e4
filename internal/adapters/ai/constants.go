package ai

// ProviderName represents an AI provider identifier
type ProviderName string

// Provider name constants
const (
	ProviderNameGoogle ProviderName = "google"
)

// String returns the string representation of the provider name
func (p ProviderName) String() string {
	return string(p)
}

// Model name constants
const (
	ModelGemini20Flash     = "gemini-2.0-flash"
	ModelGemini20FlashLite = "gemini-2.0-flash-lite"
	ModelGemini25Flash     = "gemini-2.5-flash"
	ModelGemini25Pro       = "gemini-2.5-pro"
	ModelGemini15Flash     = "gemini-1.5-flash"
	ModelGemini15Pro       = "gemini-1.5-pro"

	DefaultModel = ModelGemini20Flash
)

package embeddings

import (
	"context"
	"time"

	"google.golang.org/genai"

	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

const defaultGeminiEmbeddingModel = "gemini-embedding-001"

// GeminiProvider generates embeddings with the Gemini API so the service can
// run on a single Google key
type GeminiProvider struct {
	client     *genai.Client
	model      string
	dimensions int
	timeout    time.Duration
	log        *logger.Logger
}

// NewGeminiProvider creates a Gemini embedding provider truncated to dimensions
func NewGeminiProvider(ctx context.Context, apiKey, model string, dimensions int, timeout time.Duration) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "google API key is required")
	}
	if model == "" || model == "text-embedding-3-small" {
		model = defaultGeminiEmbeddingModel
	}
	if dimensions <= 0 {
		dimensions = 1536
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create genai client")
	}

	return &GeminiProvider{
		client:     client,
		model:      model,
		dimensions: dimensions,
		timeout:    timeout,
		log:        logger.Get().With("component", "gemini_embeddings", "model", model),
	}, nil
}

// GenerateEmbedding creates a vector embedding for the given text
func (p *GeminiProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "text cannot be empty")
	}
	vectors, err := p.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateBatchEmbeddings embeds all texts in one request
func (p *GeminiProvider) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.Wrap(errors.ErrInvalidInput, "texts cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dims := int32(p.dimensions)
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrExternal, "gemini embeddings: %v", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, errors.Wrapf(errors.ErrExternal, "expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}

	p.log.Debugw("Generated embeddings", "count", len(vectors))
	return vectors, nil
}

// Dimensions returns the dimensionality of embeddings
func (p *GeminiProvider) Dimensions() int {
	return p.dimensions
}

// Name returns the model name
func (p *GeminiProvider) Name() string {
	return p.model
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/philippgille/chromem-go"

	"tutorgate/internal/config"
)

// Embedder calls an OpenAI-compatible embeddings endpoint.
type Embedder struct {
	model string
	embed chromem.EmbeddingFunc
}

func NewEmbedder(cfg config.EmbeddingConfig) *Embedder {
	// OpenAI embeddings are unit length already
	normalized := true
	return &Embedder{
		model: cfg.Model,
		embed: chromem.NewEmbeddingFuncOpenAICompat(cfg.BaseURL, cfg.APIKey, cfg.Model, &normalized),
	}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("embed: empty text")
	}
	vec, err := e.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed with %s: %w", e.model, err)
	}
	return vec, nil
}

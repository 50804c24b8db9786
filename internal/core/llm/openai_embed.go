package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

const ProviderOpenAI = "openai"

// OpenAIEmbedder calls any OpenAI-compatible embeddings endpoint through langchaingo.
type OpenAIEmbedder struct {
	embedder  embeddings.Embedder
	modelName string
	logger    *slog.Logger
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder builds an embedder for baseURL. Local servers that need no
// auth accept the token "none".
func NewOpenAIEmbedder(baseURL, token, modelName string) (*OpenAIEmbedder, error) {
	if modelName == "" {
		return nil, fmt.Errorf("embedding model not set")
	}
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(modelName),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &OpenAIEmbedder{
		embedder:  embedder,
		modelName: modelName,
		logger:    slog.Default().With("component", "openai-embedder"),
	}, nil
}

func (e *OpenAIEmbedder) Model() string    { return e.modelName }
func (e *OpenAIEmbedder) Provider() string { return ProviderOpenAI }

func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.Debug("generating embeddings", "count", len(texts))

	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("openai embed: got %d embeddings for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

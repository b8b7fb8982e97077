package embedding

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const DefaultGenAIModel = "gemini-embedding-001"

const taskSemanticSimilarity = "SEMANTIC_SIMILARITY"

// GenAI embeds text with the Gemini embedding API.
type GenAI struct {
	client *genai.Client
	model  string
}

// NewGenAI creates a GenAI embedder. The API key is required.
func NewGenAI(ctx context.Context, apiKey, model string) (*GenAI, error) {
	if apiKey == "" {
		return nil, errors.New("genai api key is required")
	}
	return newGenAI(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}, model)
}

func newGenAI(ctx context.Context, cc *genai.ClientConfig, model string) (*GenAI, error) {
	if model == "" {
		model = DefaultGenAIModel
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAI{client: client, model: model}, nil
}

// Embed returns the semantic-similarity embedding of text.
func (g *GenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}
	res, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		TaskType: taskSemanticSimilarity,
	})
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}
	if len(res.Embeddings) == 0 || len(res.Embeddings[0].Values) == 0 {
		return nil, errors.New("genai embed: no embedding returned")
	}
	return res.Embeddings[0].Values, nil
}

// Name identifies the backend and model.
func (g *GenAI) Name() string { return "genai:" + g.model }

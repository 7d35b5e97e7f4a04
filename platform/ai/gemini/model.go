// Package gemini adapts the Gemini API to the ADK model interface.
package gemini

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// Config for the Gemini model adapter.
type Config struct {
	APIKey string
	Model  string
}

// Model adapts the google genai client to the ADK model.LLM interface.
type Model struct {
	config Config

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// NewModel creates a Gemini model adapter. The underlying client is built
// lazily on first use because genai requires a context at construction.
func NewModel(cfg Config) *Model {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return &Model{config: cfg}
}

// Name returns the configured model identifier.
func (m *Model) Name() string {
	return m.config.Model
}

// GenerateContent adapts ADK requests to the Gemini API.
func (m *Model) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.generate(ctx, req)
		yield(resp, err)
	}
}

func (m *Model) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	client, err := m.getClient(ctx)
	if err != nil {
		return nil, err
	}

	var cfg *genai.GenerateContentConfig
	if req != nil {
		cfg = req.Config
	}

	var contents []*genai.Content
	if req != nil {
		contents = req.Contents
	}

	resp, err := client.Models.GenerateContent(ctx, m.config.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini api error: empty candidates")
	}

	return &model.LLMResponse{
		Content: resp.Candidates[0].Content,
	}, nil
}

func (m *Model) getClient(ctx context.Context) (*genai.Client, error) {
	m.once.Do(func() {
		m.client, m.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  m.config.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return m.client, m.clientErr
}

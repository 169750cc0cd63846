package provider

import (
	"context"
	"fmt"

	genai "google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider is the fast cloud backend, using the Gemini API. The API
// key is read from the environment by the genai client.
type GeminiProvider struct {
	client *genai.Client
	config Config
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(ctx context.Context, cfg Config) (*GeminiProvider, error) {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiProvider{client: client, config: cfg}, nil
}

// Complete implements Provider.Complete for Gemini.
func (p *GeminiProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	temperature := float32(p.config.Temperature)
	maxTokens := int32(p.config.MaxTokens)
	genCfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: maxTokens,
	}
	if systemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.config.Model,
		[]*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)},
		genCfg,
	)
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

// Name implements Provider.Name.
func (p *GeminiProvider) Name() string {
	return BackendGemini
}

// Model implements Provider.Model.
func (p *GeminiProvider) Model() string {
	return p.config.Model
}

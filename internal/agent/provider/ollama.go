package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.1"
)

// OllamaProvider is the local backend, talking to an Ollama server over
// HTTP. Since text never leaves the machine, the pipeline skips redaction
// for this backend.
type OllamaProvider struct {
	baseURL string
	config  Config
	client  *http.Client
}

// NewOllamaProvider creates a provider against the given base URL
// (defaults to http://localhost:11434).
func NewOllamaProvider(baseURL string, cfg Config) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	return &OllamaProvider{
		baseURL: baseURL,
		config:  cfg,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Complete implements Provider.Complete for Ollama.
func (p *OllamaProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:  p.config.Model,
		System: systemPrompt,
		Prompt: userPrompt,
		Stream: false,
		Options: map[string]any{
			"temperature": p.config.Temperature,
			"num_predict": p.config.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encoding ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading ollama response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(data))
	}

	var out ollamaResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decoding ollama response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	return out.Response, nil
}

// Name implements Provider.Name.
func (p *OllamaProvider) Name() string {
	return BackendOllama
}

// Model implements Provider.Model.
func (p *OllamaProvider) Model() string {
	return p.config.Model
}

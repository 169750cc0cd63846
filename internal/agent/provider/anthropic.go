package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicProvider is the accurate cloud backend, using the Anthropic API.
type AnthropicProvider struct {
	client anthropic.Client
	config Config
}

// NewAnthropicProvider creates a new Anthropic provider. The API key is
// read from the ANTHROPIC_API_KEY environment variable.
func NewAnthropicProvider(cfg Config) (*AnthropicProvider, error) {
	applyAnthropicDefaults(&cfg)
	return &AnthropicProvider{
		client: anthropic.NewClient(),
		config: cfg,
	}, nil
}

// NewAnthropicProviderWithKey creates a provider with an explicit API key.
func NewAnthropicProviderWithKey(apiKey string, cfg Config) (*AnthropicProvider, error) {
	applyAnthropicDefaults(&cfg)
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		config: cfg,
	}, nil
}

func applyAnthropicDefaults(cfg *Config) {
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
}

// Complete implements Provider.Complete for Anthropic.
func (p *AnthropicProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(p.config.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var textParts []string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			textParts = append(textParts, block.Text)
		}
	}
	return strings.Join(textParts, ""), nil
}

// Name implements Provider.Name.
func (p *AnthropicProvider) Name() string {
	return BackendAnthropic
}

// Model implements Provider.Model.
func (p *AnthropicProvider) Model() string {
	return p.config.Model
}

// Package provider implements the reasoning-backend abstraction for the
// diagnosis agents. Three interchangeable implementations are provided:
// an accurate cloud backend (Anthropic), a fast cloud backend (Gemini),
// and a local backend (Ollama), selected by configuration.
package provider

import (
	"context"
	"fmt"
)

// Provider is one reasoning backend. Implementations must be safe for
// concurrent use; the orchestrator fans four agent calls out over a single
// Provider instance.
type Provider interface {
	// Complete sends a prompt under a system instruction and returns the
	// model's text. The call must respect ctx cancellation and deadline.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Name returns the provider name for logging and display.
	Name() string

	// Model returns the model identifier being used.
	Model() string
}

// Config contains common configuration for providers.
type Config struct {
	// Model is the backend-specific model identifier.
	Model string

	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic).
	Temperature float64
}

// DefaultConfig returns sensible defaults for incident analysis.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   2048,
		Temperature: 0.0, // Deterministic for incident response
	}
}

// Backend names accepted by New.
const (
	BackendAnthropic = "anthropic"
	BackendGemini    = "gemini"
	BackendOllama    = "ollama"
	BackendMock      = "mock"
)

// Local reports whether the backend runs on the local machine, meaning
// input text never leaves the process boundary.
func Local(backend string) bool {
	return backend == BackendOllama || backend == BackendMock
}

// New constructs the provider selected by name.
func New(ctx context.Context, backend string, cfg Config) (Provider, error) {
	switch backend {
	case BackendAnthropic:
		return NewAnthropicProvider(cfg)
	case BackendGemini:
		return NewGeminiProvider(ctx, cfg)
	case BackendOllama:
		return NewOllamaProvider("", cfg), nil
	case BackendMock:
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown reasoning backend: %q", backend)
	}
}

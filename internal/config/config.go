// Package config holds the application configuration and its YAML loader.
package config

import (
	"fmt"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// LogLevel is the default logging level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// PackageLogLevels overrides the log level per package, supporting
	// trailing wildcards like "agent.*".
	PackageLogLevels map[string]string `yaml:"package_log_levels"`

	// Backend selects the reasoning backend (anthropic, gemini, ollama, mock).
	Backend string `yaml:"backend"`

	// Model overrides the backend's default model.
	Model string `yaml:"model"`

	// EnableMultiAgent runs the four specialist agents instead of the
	// single generalist.
	EnableMultiAgent bool `yaml:"enable_multi_agent"`

	// EnableSanitization redacts sensitive substrings before text is sent
	// to a remote backend. Local backends skip redaction regardless.
	EnableSanitization bool `yaml:"enable_sanitization"`

	// EnableFuzzyMatching allows near-miss alias detection.
	EnableFuzzyMatching bool `yaml:"enable_fuzzy_matching"`

	// TopK bounds the number of retrieved knowledge fragments.
	TopK int `yaml:"top_k"`

	// AgentTimeoutSeconds bounds each reasoning-backend call.
	AgentTimeoutSeconds int `yaml:"agent_timeout_seconds"`

	// ContradictionThreshold marks an agent pair as contradictory when
	// their agreement falls below it.
	ContradictionThreshold float64 `yaml:"contradiction_threshold"`

	// LowConfidenceThreshold annotates the report as low confidence when
	// the aggregate confidence falls below it.
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold"`

	// KnowledgeDir is the directory of markdown knowledge-base documents.
	KnowledgeDir string `yaml:"knowledge_dir"`

	// InventoryPath is the server inventory YAML file.
	InventoryPath string `yaml:"inventory_path"`

	// DatabaseURL enables the pgvector-backed index when set; the
	// in-memory index is used otherwise.
	DatabaseURL string `yaml:"database_url"`

	// EmbeddingCacheSize is the LRU capacity for embedding results.
	EmbeddingCacheSize int `yaml:"embedding_cache_size"`

	// WatchKnowledgeDir rebuilds the in-memory index when knowledge-base
	// files change (server mode only).
	WatchKnowledgeDir bool `yaml:"watch_knowledge_dir"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr"`

	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	TLSCAPath   string `yaml:"tls_ca_path"`
	TLSInsecure bool   `yaml:"tls_insecure"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:               "info",
		Backend:                "anthropic",
		EnableMultiAgent:       true,
		EnableSanitization:     true,
		EnableFuzzyMatching:    true,
		TopK:                   8,
		AgentTimeoutSeconds:    30,
		ContradictionThreshold: 0.3,
		LowConfidenceThreshold: 0.5,
		KnowledgeDir:           "knowledge",
		InventoryPath:          "knowledge/inventory.yaml",
		EmbeddingCacheSize:     512,
	}
}

// AgentTimeout returns the per-agent timeout as a duration.
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutSeconds) * time.Second
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Backend {
	case "anthropic", "gemini", "ollama", "mock":
	default:
		return NewConfigError(fmt.Sprintf("unknown backend %q", c.Backend))
	}

	if c.TopK < 1 {
		return NewConfigError("top_k must be at least 1")
	}
	if c.AgentTimeoutSeconds < 1 {
		return NewConfigError("agent_timeout_seconds must be at least 1")
	}
	if c.ContradictionThreshold <= 0 || c.ContradictionThreshold >= 1 {
		return NewConfigError("contradiction_threshold must be in (0, 1)")
	}
	if c.LowConfidenceThreshold <= 0 || c.LowConfidenceThreshold >= 1 {
		return NewConfigError("low_confidence_threshold must be in (0, 1)")
	}
	if c.KnowledgeDir == "" {
		return NewConfigError("knowledge_dir must not be empty")
	}
	if c.InventoryPath == "" {
		return NewConfigError("inventory_path must not be empty")
	}
	if c.EmbeddingCacheSize < 1 {
		return NewConfigError("embedding_cache_size must be at least 1")
	}
	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}
	return nil
}

// ConfigError represents a configuration error.
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	return e.message
}

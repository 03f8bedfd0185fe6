// Package backend turns a provider/model configuration into an invokable
// language-model backend. Providers follow the conversions used elsewhere in
// the codebase for the Anthropic and OpenAI SDKs.
package backend

import (
	"context"
	"fmt"
)

// Known provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config holds the generation parameters a backend is built from.
type Config struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	LogLevel    string  `json:"log_level,omitempty"`
	Streaming   bool    `json:"streaming,omitempty"`
}

// Validate rejects configs with an unknown provider or an empty model.
func (c Config) Validate() error {
	if !KnownProvider(c.Provider) {
		return fmt.Errorf("unknown provider: %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max tokens cannot be negative")
	}
	return nil
}

// KnownProvider reports whether the provider name is supported.
func KnownProvider(provider string) bool {
	switch provider {
	case ProviderAnthropic, ProviderOpenAI:
		return true
	}
	return false
}

// Message is one conversation turn in backend wire shape.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolSpec describes one tool offered to the model.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Request contains everything for one completion call. Generation parameters
// (model, temperature, max tokens) live on the backend itself.
type Request struct {
	Messages     []Message
	Tools        []ToolSpec
	SystemPrompt string
}

// Response contains the model's reply.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// Backend is an invokable language-model backend.
type Backend interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Provider() string
	Config() Config
}

// Factory builds backends from configs.
type Factory interface {
	Build(cfg Config) (Backend, error)
}

// APIFactory builds real provider-backed backends from API keys.
type APIFactory struct {
	AnthropicKey string
	OpenAIKey    string
}

// Build constructs a backend for the config's provider.
func (f *APIFactory) Build(cfg Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend config: %w", err)
	}

	switch cfg.Provider {
	case ProviderAnthropic:
		if f.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		return newAnthropicBackend(f.AnthropicKey, cfg), nil
	case ProviderOpenAI:
		if f.OpenAIKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		return newOpenAIBackend(f.OpenAIKey, cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", cfg.Provider)
	}
}

package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		shouldErr bool
	}{
		{"valid anthropic", Config{Provider: "anthropic", Model: "claude-sonnet-4", Temperature: 0.7, MaxTokens: 4096}, false},
		{"valid openai", Config{Provider: "openai", Model: "gpt-4-turbo"}, false},
		{"unknown provider", Config{Provider: "gemini", Model: "gemini-pro"}, true},
		{"empty provider", Config{Model: "claude-sonnet-4"}, true},
		{"empty model", Config{Provider: "anthropic"}, true},
		{"temperature too high", Config{Provider: "anthropic", Model: "m", Temperature: 1.5}, true},
		{"negative max tokens", Config{Provider: "anthropic", Model: "m", MaxTokens: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAPIFactory_Build(t *testing.T) {
	factory := &APIFactory{AnthropicKey: "sk-ant-test", OpenAIKey: "sk-test"}

	b, err := factory.Build(Config{Provider: "anthropic", Model: "claude-sonnet-4"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", b.Provider())
	assert.Equal(t, "claude-sonnet-4", b.Config().Model)

	b, err = factory.Build(Config{Provider: "openai", Model: "gpt-4-turbo"})
	require.NoError(t, err)
	assert.Equal(t, "openai", b.Provider())
}

func TestAPIFactory_Build_MissingKey(t *testing.T) {
	factory := &APIFactory{}

	_, err := factory.Build(Config{Provider: "anthropic", Model: "claude-sonnet-4"})
	assert.Error(t, err)

	_, err = factory.Build(Config{Provider: "openai", Model: "gpt-4-turbo"})
	assert.Error(t, err)
}

func TestAPIFactory_Build_InvalidConfig(t *testing.T) {
	factory := &APIFactory{AnthropicKey: "sk-ant-test"}

	_, err := factory.Build(Config{Provider: "anthropic"})
	assert.Error(t, err)
}

package llms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLLMMockProvider(t *testing.T) {
	llm, err := NewLLM(ProviderConfig{Provider: "mock"})
	require.NoError(t, err)
	assert.Equal(t, "mock", llm.ProviderName())
}

func TestNewLLMMockModeOverride(t *testing.T) {
	t.Setenv("PROMPTUNE_MOCK_MODE", "true")

	llm, err := NewLLM(ProviderConfig{Provider: "anthropic"})
	require.NoError(t, err)
	assert.Equal(t, "mock", llm.ProviderName())
}

func TestNewLLMAssistantOverride(t *testing.T) {
	t.Setenv("PROMPTUNE_MOCK_MODE", "")
	t.Setenv("LLM_PROVIDER", "assistant")

	llm, err := NewLLM(ProviderConfig{Provider: "anthropic", Workspace: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "assistant", llm.ProviderName())
}

func TestNewLLMAnthropicRequiresKey(t *testing.T) {
	t.Setenv("PROMPTUNE_MOCK_MODE", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewLLM(ProviderConfig{Provider: "anthropic"})
	assert.Error(t, err)
}

func TestNewLLMAnthropicDefaults(t *testing.T) {
	t.Setenv("PROMPTUNE_MOCK_MODE", "")
	t.Setenv("LLM_PROVIDER", "")

	llm, err := NewLLM(ProviderConfig{Provider: "anthropic", APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", llm.ProviderName())
	assert.Equal(t, DefaultModelID, llm.ModelID())
}

func TestNewLLMUnsupportedProvider(t *testing.T) {
	t.Setenv("PROMPTUNE_MOCK_MODE", "")
	t.Setenv("LLM_PROVIDER", "")

	_, err := NewLLM(ProviderConfig{Provider: "aws-bedrock"})
	assert.Error(t, err)
}

func TestNewAnthropicLLMRejectsUnknownModel(t *testing.T) {
	_, err := NewAnthropicLLM("test-key", "gpt-4o", nil)
	assert.Error(t, err)
}

func TestNormalizeModelName(t *testing.T) {
	assert.NotEqual(t, "claude-3-5-sonnet-20241022", string(normalizeModelName("claude-3-5-sonnet-20241022")))
	assert.Equal(t, "claude-sonnet-4-5-20250929", string(normalizeModelName("claude-sonnet-4-5-20250929")))
}

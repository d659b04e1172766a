// Package llms provides the model clients used for prompt generation,
// mutation, and judging: a real Anthropic client, a file-based client for
// interactive assistant sessions, and a deterministic offline mock.
package llms

import (
	"os"
	"strings"

	"github.com/promptune/promptune/pkg/core"
	errs "github.com/promptune/promptune/pkg/errors"
)

// Provider names accepted by NewLLM.
const (
	ProviderAnthropic = "anthropic"
	ProviderAssistant = "assistant"
	ProviderMock      = "mock"
)

// DefaultModelID is used when no model is configured.
const DefaultModelID = "claude-sonnet-4-5-20250929"

// ProviderConfig describes which model client to construct.
type ProviderConfig struct {
	Provider  string
	ModelID   string
	APIKey    string
	Workspace string // exchange directory root for the assistant provider
	Endpoint  *core.EndpointConfig
}

// NewLLM constructs a model client from configuration. Two environment
// variables override the configured provider: PROMPTUNE_MOCK_MODE=true forces
// the mock, and LLM_PROVIDER=assistant forces the file-based client.
func NewLLM(cfg ProviderConfig) (core.LLM, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = ProviderAnthropic
	}
	if strings.EqualFold(os.Getenv("PROMPTUNE_MOCK_MODE"), "true") {
		provider = ProviderMock
	} else if strings.EqualFold(os.Getenv("LLM_PROVIDER"), ProviderAssistant) {
		provider = ProviderAssistant
	}

	modelID := cfg.ModelID
	if modelID == "" {
		modelID = DefaultModelID
	}

	switch provider {
	case ProviderMock:
		return NewMockLLM(), nil
	case ProviderAssistant:
		workspace := cfg.Workspace
		if workspace == "" {
			workspace = ".promptune"
		}
		return NewAssistantLLM(workspace)
	case ProviderAnthropic:
		return NewAnthropicLLM(cfg.APIKey, modelID, cfg.Endpoint)
	default:
		return nil, errs.WithFields(
			errs.New(errs.InvalidInput, "unsupported LLM provider"),
			errs.Fields{"provider": cfg.Provider})
	}
}

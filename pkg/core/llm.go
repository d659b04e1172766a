package core

import (
	"context"
	"net/http"
	"time"
)

// TokenInfo tracks token usage for a single generation.
type TokenInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMResponse is the result of a single generation call.
type LLMResponse struct {
	Content  string
	Usage    *TokenInfo
	Metadata map[string]interface{}
}

// LLM represents an interface for language models.
type LLM interface {
	// Generate produces a text completion for the given prompt.
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (*LLMResponse, error)

	// GenerateWithJSON produces structured JSON output for the given prompt.
	GenerateWithJSON(ctx context.Context, prompt string, options ...GenerateOption) (map[string]interface{}, error)

	ProviderName() string
	ModelID() string
}

// GenerateOption represents an option for text generation.
type GenerateOption func(*GenerateOptions)

// GenerateOptions holds configuration for text generation.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
}

// NewGenerateOptions creates a new GenerateOptions with default values.
func NewGenerateOptions() *GenerateOptions {
	return &GenerateOptions{
		MaxTokens:   4096, // Default max tokens
		Temperature: 1.0,  // Default temperature
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = t
	}
}

// WithTopP sets the nucleus sampling probability.
func WithTopP(p float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.TopP = p
	}
}

// WithStopSequences sets the stop sequences.
func WithStopSequences(sequences ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Stop = sequences
	}
}

// EndpointConfig holds optional endpoint overrides for a provider.
type EndpointConfig struct {
	BaseURL    string            // Base API URL
	Headers    map[string]string // Common headers
	TimeoutSec int               // Request timeout in seconds
}

// BaseLLM provides a base implementation of the LLM interface.
type BaseLLM struct {
	providerName string
	modelID      string

	endpoint *EndpointConfig // Optional endpoint configuration
	client   *http.Client    // Common HTTP client
}

// ProviderName implements LLM interface.
func (b *BaseLLM) ProviderName() string {
	return b.providerName
}

// ModelID implements LLM interface.
func (b *BaseLLM) ModelID() string {
	return b.modelID
}

// Endpoint returns the configured endpoint override, if any.
func (b *BaseLLM) Endpoint() *EndpointConfig {
	return b.endpoint
}

// HTTPClient returns the shared HTTP client.
func (b *BaseLLM) HTTPClient() *http.Client {
	return b.client
}

func NewBaseLLM(providerName, modelID string, endpoint *EndpointConfig) *BaseLLM {
	timeout := 30 * time.Second
	if endpoint != nil && endpoint.TimeoutSec > 0 {
		timeout = time.Duration(endpoint.TimeoutSec) * time.Second
	}

	return &BaseLLM{
		providerName: providerName,
		modelID:      modelID,
		endpoint:     endpoint,
		client:       &http.Client{Timeout: timeout},
	}
}

package llms

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/promptune/promptune/pkg/core"
	errs "github.com/promptune/promptune/pkg/errors"
	"github.com/promptune/promptune/pkg/logging"
	"github.com/promptune/promptune/pkg/utils"
)

const (
	defaultAssistantTimeout = 5 * time.Minute
	defaultPollInterval     = 500 * time.Millisecond
)

// AssistantLLM is a file-based client that lets an interactive AI assistant
// play the model role without API keys. Each request is written as a JSON
// file under <workspace>/llm_requests/; the client then polls
// <workspace>/llm_responses/ for a file answering the same request ID.
type AssistantLLM struct {
	*core.BaseLLM

	requestDir   string
	responseDir  string
	timeout      time.Duration
	pollInterval time.Duration
}

// AssistantOption configures an AssistantLLM.
type AssistantOption func(*AssistantLLM)

// WithAssistantTimeout caps how long a single generation waits for a
// response file.
func WithAssistantTimeout(d time.Duration) AssistantOption {
	return func(a *AssistantLLM) {
		a.timeout = d
	}
}

// WithPollInterval sets how often the response directory is checked.
func WithPollInterval(d time.Duration) AssistantOption {
	return func(a *AssistantLLM) {
		a.pollInterval = d
	}
}

// assistantRequest is the on-disk request format.
type assistantRequest struct {
	RequestID   string  `json:"request_id"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Prompt      string  `json:"prompt"`
	Timestamp   int64   `json:"timestamp"`
}

// assistantResponse is the on-disk response format.
type assistantResponse struct {
	RequestID string `json:"request_id"`
	Content   string `json:"content"`
}

// NewAssistantLLM creates a file-based client rooted at workspace. The
// request and response directories are created if missing.
func NewAssistantLLM(workspace string, opts ...AssistantOption) (*AssistantLLM, error) {
	a := &AssistantLLM{
		BaseLLM:      core.NewBaseLLM("assistant", "assistant-llm", nil),
		requestDir:   filepath.Join(workspace, "llm_requests"),
		responseDir:  filepath.Join(workspace, "llm_responses"),
		timeout:      defaultAssistantTimeout,
		pollInterval: defaultPollInterval,
	}

	for _, opt := range opts {
		opt(a)
	}

	for _, dir := range []string{a.requestDir, a.responseDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.WithFields(
				errs.Wrap(err, errs.InvalidInput, "failed to create assistant exchange directory"),
				errs.Fields{"dir": dir})
		}
	}

	return a, nil
}

// Generate implements the core.LLM interface. It blocks until the matching
// response file appears, the context is canceled, or the timeout elapses.
func (a *AssistantLLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	logger := logging.GetLogger()
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	// Random IDs keep concurrent runs in the same workspace from colliding.
	requestID := uuid.New().String()

	request := assistantRequest{
		RequestID:   requestID,
		Model:       a.ModelID(),
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Prompt:      prompt,
		Timestamp:   time.Now().Unix(),
	}

	payload, err := json.MarshalIndent(request, "", "  ")
	if err != nil {
		return nil, errs.Wrap(err, errs.LLMGenerationFailed, "failed to encode request")
	}

	requestFile := filepath.Join(a.requestDir, "request_"+requestID+".json")
	if err := os.WriteFile(requestFile, payload, 0o644); err != nil {
		return nil, errs.WithFields(
			errs.Wrap(err, errs.LLMGenerationFailed, "failed to write request file"),
			errs.Fields{"file": requestFile})
	}

	logger.Debug(ctx, "Waiting for assistant response to request %s", requestID)

	responseFile := filepath.Join(a.responseDir, "response_"+requestID+".json")
	deadline := time.NewTimer(a.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		if content, ok, err := a.readResponse(responseFile); err != nil {
			return nil, err
		} else if ok {
			return &core.LLMResponse{Content: content}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errs.Wrap(ctx.Err(), errs.Canceled, "assistant generation canceled")
		case <-deadline.C:
			return nil, errs.WithFields(
				errs.New(errs.Timeout, "no assistant response received"),
				errs.Fields{
					"request_id":    requestID,
					"response_file": responseFile,
					"timeout":       a.timeout.String(),
				})
		case <-ticker.C:
		}
	}
}

// readResponse attempts one read of the response file. A missing file is not
// an error; a present but malformed file is.
func (a *AssistantLLM) readResponse(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.WithFields(
			errs.Wrap(err, errs.LLMGenerationFailed, "failed to read response file"),
			errs.Fields{"file": path})
	}

	var response assistantResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return "", false, errs.WithFields(
			errs.Wrap(err, errs.InvalidResponse, "malformed assistant response file"),
			errs.Fields{"file": path})
	}
	return response.Content, true, nil
}

// GenerateWithJSON implements the core.LLM interface.
func (a *AssistantLLM) GenerateWithJSON(ctx context.Context, prompt string, options ...core.GenerateOption) (map[string]interface{}, error) {
	response, err := a.Generate(ctx, prompt, options...)
	if err != nil {
		return nil, err
	}

	parsed, err := utils.ParseJSONResponse(response.Content)
	if err != nil {
		return nil, errs.Wrap(err, errs.InvalidResponse, "assistant output is not valid JSON")
	}
	return parsed, nil
}

package llms

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptune/promptune/pkg/errors"
)

// respondTo watches the request directory and answers the first request that
// appears, simulating the assistant side of the exchange.
func respondTo(t *testing.T, workspace, content string) {
	t.Helper()
	requestDir := filepath.Join(workspace, "llm_requests")
	responseDir := filepath.Join(workspace, "llm_responses")

	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			entries, err := os.ReadDir(requestDir)
			if err == nil && len(entries) > 0 {
				data, err := os.ReadFile(filepath.Join(requestDir, entries[0].Name()))
				if err != nil {
					return
				}
				var request assistantRequest
				if err := json.Unmarshal(data, &request); err != nil {
					return
				}
				payload, _ := json.Marshal(assistantResponse{
					RequestID: request.RequestID,
					Content:   content,
				})
				responseFile := filepath.Join(responseDir, "response_"+request.RequestID+".json")
				_ = os.WriteFile(responseFile, payload, 0o644)
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()
}

func TestAssistantRoundTrip(t *testing.T) {
	workspace := t.TempDir()

	client, err := NewAssistantLLM(workspace,
		WithAssistantTimeout(5*time.Second),
		WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	respondTo(t, workspace, "generated text")

	response, err := client.Generate(context.Background(), "write something")
	require.NoError(t, err)
	assert.Equal(t, "generated text", response.Content)
}

func TestAssistantRequestFileContents(t *testing.T) {
	workspace := t.TempDir()

	client, err := NewAssistantLLM(workspace,
		WithAssistantTimeout(200*time.Millisecond),
		WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	// No responder: the call times out, but the request file must be valid.
	_, genErr := client.Generate(context.Background(), "the prompt")
	require.Error(t, genErr)

	entries, err := os.ReadDir(filepath.Join(workspace, "llm_requests"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(workspace, "llm_requests", entries[0].Name()))
	require.NoError(t, err)

	var request assistantRequest
	require.NoError(t, json.Unmarshal(data, &request))
	assert.Equal(t, "the prompt", request.Prompt)
	assert.Equal(t, "assistant-llm", request.Model)
	assert.NotEmpty(t, request.RequestID)
	assert.Equal(t, 4096, request.MaxTokens)
}

func TestAssistantTimeout(t *testing.T) {
	workspace := t.TempDir()

	client, err := NewAssistantLLM(workspace,
		WithAssistantTimeout(50*time.Millisecond),
		WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "never answered")
	require.Error(t, err)

	var perr *errors.Error
	require.True(t, stderrors.As(err, &perr))
	assert.Equal(t, errors.Timeout, perr.Code())
}

func TestAssistantContextCancellation(t *testing.T) {
	workspace := t.TempDir()

	client, err := NewAssistantLLM(workspace,
		WithAssistantTimeout(5*time.Second),
		WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err = client.Generate(ctx, "never answered")
	require.Error(t, err)

	var perr *errors.Error
	require.True(t, stderrors.As(err, &perr))
	assert.Equal(t, errors.Canceled, perr.Code())
}

func TestAssistantGenerateWithJSON(t *testing.T) {
	workspace := t.TempDir()

	client, err := NewAssistantLLM(workspace,
		WithAssistantTimeout(5*time.Second),
		WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	respondTo(t, workspace, "```json\n{\"score\": 4}\n```")

	parsed, err := client.GenerateWithJSON(context.Background(), "judge this")
	require.NoError(t, err)
	assert.Equal(t, float64(4), parsed["score"])
}

package llms

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/promptune/promptune/pkg/core"
	errs "github.com/promptune/promptune/pkg/errors"
	"github.com/promptune/promptune/pkg/utils"
)

// MockLLM is a deterministic offline model for dry runs without API keys.
// Responses are seeded by a hash of the prompt, so identical prompts always
// produce identical output while distinct mutations still score differently.
type MockLLM struct {
	*core.BaseLLM
	callCount atomic.Int64
}

// NewMockLLM creates a new MockLLM instance.
func NewMockLLM() *MockLLM {
	return &MockLLM{
		BaseLLM: core.NewBaseLLM("mock", "mock", nil),
	}
}

// CallCount reports how many generations this instance has served.
func (m *MockLLM) CallCount() int64 {
	return m.callCount.Load()
}

// Generate implements the core.LLM interface.
func (m *MockLLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	if err := errs.CheckContext(ctx, "mock generation"); err != nil {
		return nil, err
	}
	m.callCount.Add(1)

	sum := md5.Sum([]byte(prompt))
	seed := hex.EncodeToString(sum[:])[:8]

	lower := strings.ToLower(prompt)
	var content string
	switch {
	case strings.Contains(lower, "respond with json") || strings.Contains(lower, "\"score\""):
		content = mockJudgment(seed)
	case strings.Contains(lower, "improved version") || strings.Contains(lower, "rewrite"):
		content = mockMutation(seed, prompt)
	default:
		content = mockDocument(seed)
	}

	return &core.LLMResponse{
		Content: content,
		Usage: &core.TokenInfo{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      (len(prompt) + len(content)) / 4,
		},
	}, nil
}

// GenerateWithJSON implements the core.LLM interface.
func (m *MockLLM) GenerateWithJSON(ctx context.Context, prompt string, options ...core.GenerateOption) (map[string]interface{}, error) {
	response, err := m.Generate(ctx, prompt, options...)
	if err != nil {
		return nil, err
	}
	return utils.ParseJSONResponse(response.Content)
}

// mockJudgment emits a judge verdict with a seed-derived score in [3, 5].
func mockJudgment(seed string) string {
	score := 3 + int(seed[0])%3
	return fmt.Sprintf(`{"score": %d, "reasoning": "Deterministic verdict for seed %s."}`, score, seed)
}

// mockMutation emits a lightly varied copy of the prompt being rewritten.
func mockMutation(seed, prompt string) string {
	// Keep any placeholders from the source prompt so rendering still works.
	var placeholders []string
	for _, line := range strings.Split(prompt, "\n") {
		if strings.Contains(line, "{") && strings.Contains(line, "}") {
			placeholders = append(placeholders, strings.TrimSpace(line))
		}
	}

	body := fmt.Sprintf("Generate a thorough, well-structured document (variant %s).", seed)
	if len(placeholders) > 0 {
		body += "\n\n" + strings.Join(placeholders, "\n")
	}
	return body
}

// mockDocument emits a fixed document stamped with the seed.
func mockDocument(seed string) string {
	return fmt.Sprintf(`# Draft Document (%s)

## Summary

This solution addresses the customer problem with a clear, measurable outcome.

## Details

- The problem affects teams that rely on manual review.
- The proposed approach automates the slowest steps.
- Early feedback indicates a meaningful reduction in turnaround time.

## FAQ

Q: Who is this for?
A: Teams that need to streamline their review workflows.

Q: When is it available?
A: The rollout begins next quarter.
`, seed)
}

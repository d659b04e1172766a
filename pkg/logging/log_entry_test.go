package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()

	// Test ModelID
	ctxWithModel := WithModelID(ctx, "test-model")
	retrievedModelID, ok := GetModelID(ctxWithModel)
	assert.True(t, ok)
	assert.Equal(t, "test-model", retrievedModelID)

	// Test TokenInfo
	tokenInfo := &TokenInfo{
		PromptTokens:     100,
		CompletionTokens: 50,
		TotalTokens:      150,
	}
	ctxWithToken := WithTokenInfo(ctx, tokenInfo)
	retrievedTokenInfo, ok := GetTokenInfo(ctxWithToken)
	assert.True(t, ok)
	assert.Equal(t, tokenInfo, retrievedTokenInfo)

	// Test RunID
	ctxWithRun := WithRunID(ctx, "run-123")
	runID, ok := GetRunID(ctxWithRun)
	assert.True(t, ok)
	assert.Equal(t, "run-123", runID)

	// Test invalid context values
	_, ok = GetModelID(ctx)
	assert.False(t, ok)
	_, ok = GetTokenInfo(ctx)
	assert.False(t, ok)
	_, ok = GetRunID(ctx)
	assert.False(t, ok)
}

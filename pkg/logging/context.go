package logging

import "context"

type contextKey int

const (
	modelIDKey contextKey = iota
	tokenInfoKey
	runIDKey
)

// WithModelID annotates the context with the model serving the current call.
func WithModelID(ctx context.Context, modelID string) context.Context {
	return context.WithValue(ctx, modelIDKey, modelID)
}

// GetModelID retrieves the model ID from the context, if set.
func GetModelID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(modelIDKey).(string)
	return id, ok
}

// WithTokenInfo annotates the context with token usage for the current call.
func WithTokenInfo(ctx context.Context, info *TokenInfo) context.Context {
	return context.WithValue(ctx, tokenInfoKey, info)
}

// GetTokenInfo retrieves token usage from the context, if set.
func GetTokenInfo(ctx context.Context) (*TokenInfo, bool) {
	info, ok := ctx.Value(tokenInfoKey).(*TokenInfo)
	return info, ok
}

// WithRunID annotates the context with the optimization run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// GetRunID retrieves the optimization run identifier from the context, if set.
func GetRunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok
}

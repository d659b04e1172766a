// Package testutil provides shared test doubles.
package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/promptune/promptune/pkg/core"
	"github.com/promptune/promptune/pkg/utils"
)

// MockLLM is a testify mock for core.LLM.
type MockLLM struct {
	mock.Mock
}

var _ core.LLM = (*MockLLM)(nil)

func (m *MockLLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	args := m.Called(ctx, prompt, options)
	if response := args.Get(0); response != nil {
		return response.(*core.LLMResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLM) GenerateWithJSON(ctx context.Context, prompt string, options ...core.GenerateOption) (map[string]interface{}, error) {
	response, err := m.Generate(ctx, prompt, options...)
	if err != nil {
		return nil, err
	}
	return utils.ParseJSONResponse(response.Content)
}

func (m *MockLLM) ProviderName() string {
	return "mock"
}

func (m *MockLLM) ModelID() string {
	return "mock"
}

// Respond registers a canned response for any Generate call.
func (m *MockLLM) Respond(content string) *mock.Call {
	return m.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(&core.LLMResponse{Content: content}, nil)
}

// Fail registers a failure for any Generate call.
func (m *MockLLM) Fail(err error) *mock.Call {
	return m.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, err)
}

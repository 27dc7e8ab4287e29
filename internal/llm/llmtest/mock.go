// Package llmtest provides testify mocks of the llm interfaces.
package llmtest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kitchencompanion/kitchencompanion/internal/llm"
)

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

type MockEmbedder struct {
	mock.Mock
	ModelName string
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	v, _ := args.Get(0).([][]float32)
	return v, args.Error(1)
}

func (m *MockEmbedder) Model() string {
	return m.ModelName
}

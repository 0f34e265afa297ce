package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// MockGenerator answers every request locally. It is used when no backend key is
// configured and in tests.
type MockGenerator struct{}

// NewMockGenerator creates a mock generator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

const mockQuestions = 5

type mockQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// Generate implements Generator.
func (m *MockGenerator) Generate(_ context.Context, req Request) (Response, error) {
	if req.Prompt == probePrompt {
		return TextResponse("pong"), nil
	}

	quiz := make([]mockQuestion, mockQuestions)
	for i := range quiz {
		options := []string{
			fmt.Sprintf("Option A%d", i+1),
			fmt.Sprintf("Option B%d", i+1),
			fmt.Sprintf("Option C%d", i+1),
			fmt.Sprintf("Option D%d", i+1),
		}

		quiz[i] = mockQuestion{
			Question: fmt.Sprintf("Mock question %d?", i+1),
			Options:  options,
			Answer:   options[i%len(options)],
		}
	}

	data, err := json.Marshal(map[string]any{
		"quiz": quiz,
		"tags": []string{"mock"},
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal mock reply: %w", err)
	}

	return PartsResponse("```json\n", string(data), "\n```"), nil
}

var _ Generator = (*MockGenerator)(nil)

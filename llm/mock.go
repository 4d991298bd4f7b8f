package llm

import (
	"context"
	"sync"
)

// MockModel is a scripted StreamingModel for tests.
//
//	m := &llm.MockModel{Responses: []llm.ChatOut{{Text: `{"summary":"..."}`}}}
//
// Each call returns the next response; the last one repeats once the script
// is exhausted. Errs, when set, is consumed the same way before Responses, so
// {Errs: []error{errTransient, nil}} fails once and then succeeds. Err fails
// every call.
type MockModel struct {
	Responses []ChatOut
	Errs      []error
	Err       error

	// Chunks, when set, is what Stream delivers instead of splitting the
	// response text.
	Chunks []string

	// Calls records the messages of every call.
	Calls [][]Message

	mu        sync.Mutex
	callIndex int
}

// Chat implements ChatModel.
func (m *MockModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return ChatOut{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, messages)
	idx := m.callIndex
	m.callIndex++

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if idx < len(m.Errs) && m.Errs[idx] != nil {
		return ChatOut{}, m.Errs[idx]
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	return m.Responses[idx], nil
}

// Stream implements StreamingModel on top of Chat.
func (m *MockModel) Stream(ctx context.Context, messages []Message, fn func(string) error) error {
	out, err := m.Chat(ctx, messages)
	if err != nil {
		return err
	}

	chunks := m.Chunks
	if chunks == nil && out.Text != "" {
		chunks = []string{out.Text}
	}
	for _, c := range chunks {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// CallCount returns how many times the model was called.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Reset clears the call history and restarts the script.
func (m *MockModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.callIndex = 0
}

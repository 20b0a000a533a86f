package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/parley/pkg/completion"
)

// MockCompleter returns a fixed reply and records every prompt.
type MockCompleter struct {
	Reply string
	Err   error

	mu      sync.Mutex
	prompts []completion.Prompt
}

func (m *MockCompleter) Complete(_ context.Context, p completion.Prompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, p)
	return m.Reply, m.Err
}

// Prompts returns the recorded prompts.
func (m *MockCompleter) Prompts() []completion.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]completion.Prompt(nil), m.prompts...)
}

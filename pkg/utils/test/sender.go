package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/proxychat"
)

// SentTurn records one SendTurn call.
type SentTurn struct {
	UserID string
	Text   string
	Token  string
}

// MockSender is a scripted proxy chat backend keyed by user id.
//
// A call without a token opens a new session with a unique id of the form
// "<user id>#<n>". A call with a token continues that session.
type MockSender struct {
	// Replies are consumed in order per user. When a user's script runs out
	// the reply is "<user id> reply <n>".
	Replies map[string][]string

	// Errors fail every call for a user.
	Errors map[string]error

	// FailOnCall fails the nth call (1-based) for a user with the mapped error.
	FailOnCall map[string]FailAt

	// Delay is applied before every reply, honouring context cancellation.
	Delay time.Duration

	// PanicFor panics on calls for the named user.
	PanicFor string

	mu       sync.Mutex
	calls    []SentTurn
	counts   map[string]int
	sessions int
}

// FailAt fails call number Call with Err.
type FailAt struct {
	Call int
	Err  error
}

// NewMockSender creates an empty MockSender.
func NewMockSender() *MockSender {
	return &MockSender{
		Replies:    make(map[string][]string),
		Errors:     make(map[string]error),
		FailOnCall: make(map[string]FailAt),
	}
}

func (m *MockSender) SendTurn(ctx context.Context, user *network.User, text, token string) (proxychat.Reply, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return proxychat.Reply{}, &network.ChatBackendError{Err: ctx.Err()}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.calls = append(m.calls, SentTurn{UserID: user.ID, Text: text, Token: token})
	m.counts[user.ID]++
	n := m.counts[user.ID]

	if m.PanicFor != "" && user.ID == m.PanicFor {
		panic("mock sender panic for " + user.ID)
	}
	if err := m.Errors[user.ID]; err != nil {
		return proxychat.Reply{}, err
	}
	if f, ok := m.FailOnCall[user.ID]; ok && f.Call == n {
		return proxychat.Reply{}, f.Err
	}

	reply := fmt.Sprintf("%s reply %d", user.ID, n)
	if script := m.Replies[user.ID]; len(script) >= n {
		reply = script[n-1]
	}

	session := token
	if session == "" {
		m.sessions++
		session = fmt.Sprintf("%s#%d", user.ID, m.sessions)
	}
	return proxychat.Reply{Text: reply, SessionID: session}, nil
}

// Calls returns every recorded call in order.
func (m *MockSender) Calls() []SentTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentTurn(nil), m.calls...)
}

// CallsFor returns the recorded calls for one user.
func (m *MockSender) CallsFor(userID string) []SentTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentTurn
	for _, c := range m.calls {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

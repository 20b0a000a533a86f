package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/parley/pkg/conclusion"
	"github.com/papercomputeco/parley/pkg/network"
)

// MockDetector is a scripted conclusion detector.
type MockDetector struct {
	// ConcludeAtPeerTurn concludes once the transcript holds this many peer
	// turns. Zero never concludes.
	ConcludeAtPeerTurn int

	// Reason is reported when concluding.
	Reason string

	mu    sync.Mutex
	calls int
}

func (m *MockDetector) Detect(_ context.Context, transcript network.Transcript) conclusion.Result {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.ConcludeAtPeerTurn > 0 && transcript.Count(network.RolePeer) >= m.ConcludeAtPeerTurn {
		reason := m.Reason
		if reason == "" {
			reason = "scripted conclusion"
		}
		return conclusion.Result{Concluded: true, Reason: reason}
	}
	return conclusion.Result{Concluded: false, Reason: "scripted continue"}
}

// Calls returns how many times Detect ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

package cliui

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/papercomputeco/parley/pkg/broadcast"
	"github.com/papercomputeco/parley/pkg/utils"
)

const excerptRunes = 120

// StreamPrinter is a broadcast.Sink that prints progress lines as a
// broadcast runs.
type StreamPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
	turns  map[string]int
}

var _ broadcast.Sink = (*StreamPrinter)(nil)

// NewStreamPrinter creates a printer writing to w.
func NewStreamPrinter(w io.Writer) *StreamPrinter {
	return &StreamPrinter{w: w, turns: make(map[string]int)}
}

func (p *StreamPrinter) Write(_ context.Context, ev broadcast.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return broadcast.ErrSinkClosed
	}

	peer := PeerStyle.Render(ev.PeerName)
	var err error
	switch ev.Kind {
	case broadcast.EventConversationStart:
		_, err = fmt.Fprintf(p.w, "  %s %s\n", StepStyle.Render("→"), peer)
	case broadcast.EventMessage:
		p.turns[ev.CorrelationID]++
		_, err = fmt.Fprintf(p.w, "    %s %s: %s\n",
			StepStyle.Render(fmt.Sprintf("%2d", p.turns[ev.CorrelationID])),
			RoleLabel(ev.Role, ev.PeerName),
			utils.Truncate(ev.Text, excerptRunes),
		)
	case broadcast.EventConversationEnd:
		_, err = fmt.Fprintf(p.w, "  %s %s %s %s\n",
			StatusMark(ev.Status), peer, string(ev.Status), StepStyle.Render(ev.Reason))
	case broadcast.EventError:
		_, err = fmt.Fprintf(p.w, "  %s %s %s\n", FailMark, peer, ev.Error)
	case broadcast.EventDone:
		_, err = fmt.Fprintf(p.w, "\n  %s %d conversations finished\n", SuccessMark, ev.Total)
	}
	return err
}

// Close makes later writes report broadcast.ErrSinkClosed.
func (p *StreamPrinter) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

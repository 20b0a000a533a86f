// Package sse reads and writes Server-Sent Events.
//
// The Reader drains the event-streamed proxy chat backend. The Writer frames
// broadcast progress events for HTTP clients of the streaming endpoint.
//
// See https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event is a single SSE event, delimited by a blank line on the wire.
type Event struct {
	// Type is the "event:" field. Empty means the default "message" type.
	Type string

	// Data holds all "data:" lines of the event joined with "\n".
	Data string

	// ID is the "id:" field, if present.
	ID string
}

// DoneSentinel is the data payload OpenAI-style streams send last.
const DoneSentinel = "[DONE]"

// IsDone reports whether e is the terminating "[DONE]" event.
func (e *Event) IsDone() bool {
	return e != nil && e.Data == DoneSentinel
}

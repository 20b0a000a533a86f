package sse

import (
	"bufio"
	"io"
	"strings"
)

const (
	initialLineBuffer = 64 * 1024
	maxLineBuffer     = 1024 * 1024
)

// Reader parses SSE events from a source stream. When built with
// NewTeeReader every raw line is also copied to a destination writer, which
// is how the chat adapter keeps a verbatim trace of a turn in debug mode.
type Reader struct {
	scanner *bufio.Scanner
	dest    io.Writer

	current *Event
	pending bool
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader) *Reader {
	return NewTeeReader(src, io.Discard)
}

// NewTeeReader returns a Reader over src that writes every raw line to dest.
func NewTeeReader(src io.Reader, dest io.Writer) *Reader {
	if dest == nil {
		dest = io.Discard
	}
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, initialLineBuffer), maxLineBuffer)

	return &Reader{
		scanner: scanner,
		dest:    dest,
		current: &Event{},
	}
}

// Next blocks until a complete event is available and returns it.
// It returns nil, nil once the source is exhausted. A trailing event that was
// not terminated by a blank line is still returned.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		raw := r.scanner.Text()

		if _, err := io.WriteString(r.dest, raw+"\n"); err != nil {
			return nil, err
		}

		if raw == "" {
			if r.pending {
				return r.take(), nil
			}
			// keep-alive or leading blank line
			continue
		}

		if strings.HasPrefix(raw, ":") {
			continue
		}

		r.parseLine(raw)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	if r.pending {
		return r.take(), nil
	}
	return nil, nil
}

// parseLine accumulates one "field:value" line into the current event.
// A single space after the colon is not part of the value.
func (r *Reader) parseLine(line string) {
	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "data":
		if r.pending && r.current.Data != "" {
			r.current.Data += "\n"
		}
		r.current.Data += value
	case "event":
		r.current.Type = value
	case "id":
		r.current.ID = value
	default:
		// retry and unknown fields are ignored
		return
	}
	r.pending = true
}

func (r *Reader) take() *Event {
	ev := r.current
	r.current = &Event{}
	r.pending = false
	return ev
}

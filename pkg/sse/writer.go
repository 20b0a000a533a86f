package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ErrWriterClosed is returned by Write after Close.
var ErrWriterClosed = errors.New("sse writer closed")

// Writer frames events onto an output stream and flushes after each one.
type Writer struct {
	w      io.Writer
	flush  func() error
	closed bool
}

// NewWriter returns a Writer over w. When w is a *bufio.Writer it is flushed
// after every event so clients see progress immediately.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if bw, ok := w.(*bufio.Writer); ok {
		sw.flush = bw.Flush
	}
	return sw
}

// Write frames ev. Multi-line data is split over several "data:" lines.
func (w *Writer) Write(ev Event) error {
	if w.closed {
		return ErrWriterClosed
	}

	var b strings.Builder
	if ev.ID != "" {
		b.WriteString("id: " + ev.ID + "\n")
	}
	if ev.Type != "" {
		b.WriteString("event: " + ev.Type + "\n")
	}
	for line := range strings.SplitSeq(ev.Data, "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")

	if _, err := io.WriteString(w.w, b.String()); err != nil {
		return err
	}
	if w.flush != nil {
		return w.flush()
	}
	return nil
}

// Comment writes a comment line, used as a keep-alive.
func (w *Writer) Comment(text string) error {
	if w.closed {
		return ErrWriterClosed
	}
	if _, err := io.WriteString(w.w, ": "+text+"\n\n"); err != nil {
		return err
	}
	if w.flush != nil {
		return w.flush()
	}
	return nil
}

// Close marks the writer closed. The underlying stream is left open.
func (w *Writer) Close() error {
	w.closed = true
	return nil
}

package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger created with New.
type Option func(*config)

// WithDebug lowers the level to Debug when debug is true.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithJSON selects the JSON handler for structured service logs.
func WithJSON(json bool) Option {
	return func(c *config) { c.json = json }
}

// WithPretty selects the charmbracelet/log handler for colorized CLI output.
func WithPretty(pretty bool) Option {
	return func(c *config) { c.pretty = pretty }
}

// WithWriter sends output to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.writers = []io.Writer{w} }
}

// WithWriters sends output to every writer.
func WithWriters(w ...io.Writer) Option {
	return func(c *config) { c.writers = w }
}

// WithSource adds the file:line of the call site.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}

// WithComponent binds a "component" attribute to every record.
func WithComponent(name string) Option {
	return func(c *config) { c.component = name }
}

package storage

import (
	"errors"
	"fmt"
)

// Record kinds used in NotFoundError.
const (
	KindUser         = "user"
	KindRequest      = "request"
	KindConversation = "conversation"
)

// NotFoundError is returned when a record doesn't exist in the store.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// ErrMissingID is returned when a record that must carry an id has none.
var ErrMissingID = errors.New("record id is required")

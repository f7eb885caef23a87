package store

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Error kinds distinguished at component boundaries. Operations are never
// retried inside the store; callers decide what is fatal.
var (
	// ErrOpen indicates the database could not be opened or WAL could not
	// be enabled.
	ErrOpen = errors.New("store open failed")

	// ErrIO indicates a read or write failure.
	ErrIO = errors.New("store io error")

	// ErrConstraint indicates a foreign-key or check violation.
	ErrConstraint = errors.New("store constraint violation")

	// ErrCorrupt indicates database corruption.
	ErrCorrupt = errors.New("store corrupt")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// wrapKind attaches an error kind so callers can match with errors.Is while
// keeping the underlying cause in the message.
func wrapKind(kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", kind, err)
}

// isKind reports whether err carries the given kind.
func isKind(err, kind error) bool {
	return errors.Is(err, kind)
}

// classify maps a raw driver error onto one of the store error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "constraint"):
		return wrapKind(ErrConstraint, err)
	case strings.Contains(msg, "malformed"),
		strings.Contains(msg, "not a database"),
		strings.Contains(msg, "corrupt"):
		return wrapKind(ErrCorrupt, err)
	default:
		return wrapKind(ErrIO, err)
	}
}

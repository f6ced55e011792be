package engine

import "errors"

// ErrNotFound is returned by StateStore lookups that match nothing.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err is a store miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

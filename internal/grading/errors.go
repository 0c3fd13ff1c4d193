package grading

import (
	"errors"
	"fmt"

	"github.com/pavelanni/studytool/internal/store"
)

var (
	// ErrNotFound is wrapped with the missing entity, e.g. "exam 7: not found".
	ErrNotFound = errors.New("not found")
	// ErrInvalidState reports an operation not allowed in the attempt's
	// current status.
	ErrInvalidState = errors.New("invalid attempt state")
	// ErrInvalidInput reports a request that cannot be satisfied as given.
	ErrInvalidInput = errors.New("invalid input")
)

// notFound translates a store miss into ErrNotFound for the named entity
// and wraps anything else.
func notFound(err error, entity string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
	}
	return fmt.Errorf("load %s %d: %w", entity, id, err)
}

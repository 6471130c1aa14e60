package store

import "fmt"

// NotFoundError is returned when a node id does not exist in the store.
// Handlers map it to a 404.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("node %q not found", e.ID)
}

// StoreUnavailableError wraps a transient backend failure that survived
// bounded retry. Handlers map it to a 503; it is never retried further
// up the stack.
type StoreUnavailableError struct {
	Backend string
	Err     error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s store unavailable: %v", e.Backend, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput covers missing seed URLs, query text, or session ids.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionNotFound signals that a session id was never registered.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists signals a duplicate session id on create.
	ErrSessionExists = errors.New("session already exists")
	// ErrPageNotFound signals that no record exists for a URL.
	ErrPageNotFound = errors.New("page not found")
	// ErrQueueFull signals that the crawl queue has no free slot.
	ErrQueueFull = errors.New("queue full")
	// ErrQueueClosed signals that the crawl queue no longer accepts or yields items.
	ErrQueueClosed = errors.New("queue closed")
)

// NetworkError reports a failed fetch of a single URL.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StoreError reports an unavailable or failing persistence layer.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapStoreError returns nil for a nil err and otherwise a *StoreError.
func WrapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// InvalidInputf builds an error wrapping ErrInvalidInput.
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

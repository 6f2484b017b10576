// Package anki provides a typed client for the AnkiConnect HTTP bridge
// with automatic retry and error classification.
package anki

import (
	"errors"
	"fmt"
)

// Sentinel errors for bridge failure classification.
// Use errors.Is(err, anki.ErrUnreachable) to check.
var (
	// ErrUnreachable covers transport-level failures: connection refused,
	// timeouts, non-2xx status after retries, and malformed responses.
	// Fatal to a sync run.
	ErrUnreachable = errors.New("anki: bridge unreachable")

	// ErrAction is a failure reported by the bridge itself in the response
	// envelope. The endpoint answered, so these are never retried.
	ErrAction = errors.New("anki: action failed")

	// ErrVersion indicates the bridge speaks an older protocol version than
	// this client requires.
	ErrVersion = errors.New("anki: protocol version mismatch")

	// ErrNoteRejected marks a single note the bridge refused inside a bulk
	// addNotes call (null id in the positional response).
	ErrNoteRejected = errors.New("anki: note rejected")
)

// BridgeError wraps a sentinel error with the action name, HTTP status code,
// and the bridge's error message for debugging.
type BridgeError struct {
	Action     string
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *BridgeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("anki: %s: HTTP %d: %s", e.Action, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("anki: %s: %s", e.Action, e.Message)
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}

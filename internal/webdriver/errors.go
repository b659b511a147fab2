package webdriver

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionOpen reports that no session could be created: the driver is
	// not accepting connections or rejected the capability profile.
	ErrSessionOpen = errors.New("webdriver: could not open session")

	// ErrNavigate reports that the driver failed to load the requested URL.
	ErrNavigate = errors.New("webdriver: navigation failed")

	// ErrSessionClose reports that ending a session failed.
	ErrSessionClose = errors.New("webdriver: could not close session")
)

// Error is a failure reported by the driver itself, decoded from the
// protocol's error body.
type Error struct {
	StatusCode int    // HTTP status of the response
	Code       string // protocol error code, e.g. "invalid argument"
	Message    string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("webdriver: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("webdriver: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
}

// SessionError ties a failure to the session it happened in, so callers can
// log the session ID without parsing messages.
type SessionError struct {
	SessionID string
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.SessionID, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

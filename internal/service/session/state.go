// Package session drives one voice-dictation session: it starts and stops the
// recognizer, folds recognition events into a transcript, retries on silence
// and turns the finished transcript into persisted tasks.
package session

import "fmt"

// State represents the lifecycle state of a session.
type State int

const (
	// StateIdle - No recognition running. Initial and terminal state.
	StateIdle State = iota
	// StateListening - Recognizer running, events are folded into the transcript.
	StateListening
	// StateRetrying - No speech heard; waiting out the backoff before restarting.
	StateRetrying
	// StateStopping - Recognizer stopping, transcript being turned into tasks.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateRetrying:
		return "RETRYING"
	case StateStopping:
		return "STOPPING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsActive returns true if a session is in progress (anything but IDLE).
func (s State) IsActive() bool {
	return s != StateIdle
}

// MarshalText renders the state name for JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

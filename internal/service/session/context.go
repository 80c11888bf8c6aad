package session

import (
	"time"

	"voice-task-service/internal/service/transcript"
)

// RetryState counts automatic restarts after silence.
type RetryState struct {
	Count int `json:"count"`
	Max   int `json:"max"`
}

// Context is the mutable state of one session. Every field is guarded by the
// owning Controller's mutex; timer callbacks carry the generation they were
// armed in and do nothing once it moved on.
type Context struct {
	State      State
	Transcript transcript.State
	Retry      RetryState

	open       bool // voice UI shown; cleared by Cancel
	starting   bool // Start between permission request and listen
	processing bool // Stop pipeline running
	counted    bool // session counted in the active gauge
	startedAt  time.Time

	watchdog   Timer
	backoff    Timer
	generation uint64
}

// advance invalidates every timer callback armed so far and returns the new
// generation.
func (sc *Context) advance() uint64 {
	sc.generation++
	return sc.generation
}

// cancelTimers stops the watchdog and any pending restart.
func (sc *Context) cancelTimers() {
	if sc.watchdog != nil {
		sc.watchdog.Stop()
		sc.watchdog = nil
	}
	if sc.backoff != nil {
		sc.backoff.Stop()
		sc.backoff = nil
	}
}

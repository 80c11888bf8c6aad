// Package relay provides an stt.Adapter fed by events that a device-side
// recognizer pushes to the service.
package relay

import (
	"context"
	"errors"
	"sync"

	"voice-task-service/internal/service/stt"
	"voice-task-service/internal/service/transcript"
)

// ErrNotStarted is returned by Push while no session is running.
var ErrNotStarted = errors.New("relay: recognizer not started")

// Kind is the type of a relayed event.
type Kind string

const (
	KindInterim Kind = "interim"
	KindResult  Kind = "result"
	KindError   Kind = "error"
)

// Event is one recognition event pushed by the device.
type Event struct {
	Kind    Kind
	Payload transcript.Payload
	Code    string
	Message string
}

// Adapter implements stt.Adapter by relaying pushed events.
type Adapter struct {
	mu         sync.Mutex
	permission bool
	cfg        stt.Config
	cb         stt.Callback
	running    bool
}

// New creates a relay adapter. permissionGranted is the device's answer to
// its own permission prompt.
func New(permissionGranted bool) *Adapter {
	return &Adapter{permission: permissionGranted}
}

// SetPermission updates the device's permission answer.
func (a *Adapter) SetPermission(granted bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.permission = granted
}

// RequestPermission reports the device's permission answer.
func (a *Adapter) RequestPermission(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.permission, nil
}

// Start records the callback; pushed events are delivered to it until Stop.
func (a *Adapter) Start(ctx context.Context, cfg stt.Config, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
	a.cb = cb
	a.running = true
	return nil
}

// Stop ends delivery. Idempotent.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	return nil
}

// Running reports whether a session is active.
func (a *Adapter) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Config returns the configuration of the last Start.
func (a *Adapter) Config() stt.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Push delivers ev to the session callback.
func (a *Adapter) Push(ev Event) error {
	a.mu.Lock()
	cb, running := a.cb, a.running
	a.mu.Unlock()

	if !running || cb == nil {
		return ErrNotStarted
	}
	switch ev.Kind {
	case KindInterim:
		cb.OnInterim(ev.Payload)
	case KindResult:
		cb.OnResult(ev.Payload)
	case KindError:
		cb.OnError(ev.Code, ev.Message)
	default:
		return errors.New("relay: unknown event kind " + string(ev.Kind))
	}
	return nil
}

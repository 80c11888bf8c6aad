// Package mock provides a scripted stt.Adapter for running the service
// without a real recognizer. It simulates progressive interim results and a
// final result with scored alternatives per utterance.
package mock

import (
	"context"
	"sync"
	"time"

	"voice-task-service/internal/service/stt"
	"voice-task-service/internal/service/transcript"
)

// ScoredText is one alternative of a simulated final result.
type ScoredText struct {
	Text       string
	Confidence float64
}

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials []string     // Progressive interim transcripts
	Final    []ScoredText // Alternatives of the final result
}

// DefaultUtterances provides sample dictations for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials: []string{"buy", "buy milk", "buy milk and"},
		Final: []ScoredText{
			{Text: "buy milk and call mom", Confidence: 0.92},
			{Text: "by milk and call mom", Confidence: 0.61},
		},
	},
	{
		Partials: []string{"walk the", "walk the dog"},
		Final: []ScoredText{
			{Text: "walk the dog then water the plants", Confidence: 0.95},
		},
	},
	{
		Partials: []string{"remind me", "remind me to pay"},
		Final: []ScoredText{
			{Text: "remind me to pay rent", Confidence: 0.89},
			{Text: "remind me to pay rant", Confidence: 0.42},
		},
	},
	{
		Partials: []string{"pick up", "pick up the kids"},
		Final: []ScoredText{
			{Text: "pick up the kids, book a dentist appointment", Confidence: 0.9},
		},
	},
	{
		Partials: []string{"email", "email Sandra"},
		Final: []ScoredText{
			{Text: "email Sandra about the report", Confidence: 0.97},
		},
	},
}

// utteranceCounter tracks which utterance to use next (cycles through defaults)
var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// Adapter implements stt.Adapter with scripted responses:
//   - one interim result per audio frame until the partials are exhausted
//   - exactly one final result per session, on the next frame or on Stop
type Adapter struct {
	mu           sync.Mutex
	cb           stt.Callback
	utterance    SimulatedUtterance
	partialIndex int
	finalSent    bool
	running      bool
	permission   bool
	delay        time.Duration
}

// New creates a mock adapter using the next default utterance.
func New() *Adapter {
	counterMu.Lock()
	idx := utteranceCounter % len(DefaultUtterances)
	utteranceCounter++
	counterMu.Unlock()

	return NewWithUtterance(DefaultUtterances[idx])
}

// NewWithUtterance creates a mock adapter that plays back utt.
func NewWithUtterance(utt SimulatedUtterance) *Adapter {
	return &Adapter{
		utterance:  utt,
		permission: true,
		delay:      50 * time.Millisecond,
	}
}

// DenyPermission makes RequestPermission report a denial.
func (a *Adapter) DenyPermission() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.permission = false
}

// RequestPermission always answers with the configured permission.
func (a *Adapter) RequestPermission(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.permission, nil
}

// Start begins a mock recognition session. A restart replays the utterance.
func (a *Adapter) Start(ctx context.Context, cfg stt.Config, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	a.partialIndex = 0
	a.finalSent = false
	a.running = true
	return nil
}

// SendAudio simulates receiving audio: each frame triggers the next interim
// result, and the frame after the last interim triggers the final result.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running || a.cb == nil {
		return nil
	}

	if a.partialIndex < len(a.utterance.Partials) {
		partial := a.utterance.Partials[a.partialIndex]
		a.partialIndex++

		go func(text string) {
			time.Sleep(a.delay)
			if cb := a.liveCallback(); cb != nil {
				cb.OnInterim(transcript.TextPayload(text))
			}
		}(partial)
	} else if !a.finalSent {
		a.finalSent = true
		payload := a.finalPayload()

		go func() {
			time.Sleep(2 * a.delay)
			if cb := a.liveCallback(); cb != nil {
				cb.OnResult(payload)
			}
		}()
	}

	return nil
}

// Stop ends the session. If the final result was not sent yet it is
// delivered before Stop returns.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	cb := a.cb
	sendFinal := !a.finalSent && a.partialIndex > 0
	a.finalSent = true
	payload := a.finalPayload()
	a.mu.Unlock()

	if sendFinal && cb != nil {
		cb.OnResult(payload)
	}
	return nil
}

func (a *Adapter) liveCallback() stt.Callback {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}
	return a.cb
}

func (a *Adapter) finalPayload() transcript.Payload {
	alts := make([]transcript.Alternative, 0, len(a.utterance.Final))
	for _, f := range a.utterance.Final {
		c := f.Confidence
		alts = append(alts, transcript.Alternative{Text: f.Text, Confidence: &c})
	}
	return transcript.Payload{Variants: []transcript.Variant{
		transcript.ResultSegments{Segments: []transcript.ResultSegment{{Alternatives: alts}}},
	}}
}

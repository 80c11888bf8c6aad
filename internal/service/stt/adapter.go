// Package stt defines the interface for speech-recognition adapters.
package stt

import (
	"context"

	"voice-task-service/internal/service/transcript"
)

// Error codes reported through Callback.OnError.
const (
	ErrorCodeNoSpeech = "no-speech"
	ErrorCodeNetwork  = "network"
)

// Config is the recognition configuration sent on Start.
type Config struct {
	Language       string
	InterimResults bool
	Continuous     bool
}

// Callback receives recognition events from the adapter.
type Callback interface {
	// OnInterim is called with a provisional result.
	OnInterim(p transcript.Payload)

	// OnResult is called with a final result for part of the utterance.
	OnResult(p transcript.Payload)

	// OnError is called when recognition fails. code is a recognizer error
	// code such as ErrorCodeNoSpeech or ErrorCodeNetwork.
	OnError(code, message string)
}

// Adapter is a speech recognizer (device relay, Google, mock, ...).
type Adapter interface {
	// RequestPermission asks for microphone/recognition permission.
	RequestPermission(ctx context.Context) (bool, error)

	// Start begins a recognition session delivering events to cb.
	Start(ctx context.Context, cfg Config, cb Callback) error

	// Stop ends the session and returns once the recognizer acknowledged.
	Stop(ctx context.Context) error
}

// AudioSink is implemented by adapters that recognize audio sent by the caller.
type AudioSink interface {
	SendAudio(ctx context.Context, audio []byte) error
}

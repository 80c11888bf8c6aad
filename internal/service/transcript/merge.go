package transcript

import (
	"strings"
	"sync"
)

// Fold merges a new result chunk into the running final transcript.
//
//   - empty previous: the chunk becomes the transcript
//   - chunk extends previous: the recognizer resent a cumulative transcript, replace
//   - previous already ends with chunk: nothing new, keep previous
//   - otherwise: append the chunk
//
// The caller normalizes the result.
func Fold(previous, chunk string) string {
	switch {
	case previous == "":
		return chunk
	case strings.HasPrefix(chunk, previous):
		return chunk
	case strings.HasSuffix(previous, chunk):
		return previous
	default:
		return previous + " " + chunk
	}
}

// State is the transcript of one listen session: the latest interim text and
// the folded final text. Safe for concurrent use.
type State struct {
	mu      sync.Mutex
	interim string
	final   string
}

// Snapshot is a point-in-time copy of a State.
type Snapshot struct {
	Interim string `json:"interim"`
	Final   string `json:"final"`
}

// Empty reports whether neither interim nor final text was captured.
func (s Snapshot) Empty() bool {
	return s.Interim == "" && s.Final == ""
}

// ApplyInterim replaces the interim text wholesale.
func (s *State) ApplyInterim(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interim = text
}

// ApplyResult folds chunk into the final text, normalizes it and clears the
// interim text. It returns the new final text.
func (s *State) ApplyResult(chunk string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interim = ""
	s.final = Normalize(Fold(s.final, chunk))
	return s.final
}

// ClearInterim drops the interim text, leaving the final text intact.
func (s *State) ClearInterim() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interim = ""
}

// Snapshot returns the current interim and final text.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Interim: s.interim, Final: s.final}
}

// Take returns the final text, or the interim text when no final text exists,
// and clears both.
func (s *State) Take() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.final
	if text == "" {
		text = s.interim
	}
	s.interim, s.final = "", ""
	return text
}

// Reset clears both interim and final text.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interim, s.final = "", ""
}

// Package transcript turns raw recognition events into clean transcript text.
//
// The pipeline is: Extract pulls one candidate string out of an event payload
// (using Selector for alternative lists), Normalize removes echo artifacts and
// Fold merges each new result chunk into the running final transcript.
package transcript

import (
	"math/rand/v2"
	"sync"
)

// Alternative is one candidate reading of an utterance.
type Alternative struct {
	Text string
	// Confidence is nil when the recognizer did not report a score.
	Confidence *float64
}

// Selector picks one alternative out of a candidate list.
// Higher confidence wins; ties and unscored lists are broken uniformly at random.
// Safe for concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector returns a Selector drawing from rng. A nil rng uses a randomly
// seeded source.
func NewSelector(rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{rng: rng}
}

// NewSeededSelector returns a deterministic Selector, useful in tests.
func NewSeededSelector(seed uint64) *Selector {
	return NewSelector(rand.New(rand.NewPCG(seed, seed)))
}

// Select returns the chosen alternative text. ok is false for an empty list.
func (s *Selector) Select(alts []Alternative) (text string, ok bool) {
	if len(alts) == 0 {
		return "", false
	}

	var best []int
	var bestScore float64
	for i, a := range alts {
		if a.Confidence == nil {
			continue
		}
		switch {
		case len(best) == 0 || *a.Confidence > bestScore:
			best = append(best[:0], i)
			bestScore = *a.Confidence
		case *a.Confidence == bestScore:
			best = append(best, i)
		}
	}

	if len(best) == 0 {
		return alts[s.intN(len(alts))].Text, true
	}
	if len(best) == 1 {
		return alts[best[0]].Text, true
	}
	return alts[best[s.intN(len(best))]].Text, true
}

func (s *Selector) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

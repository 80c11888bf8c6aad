// Package voice keeps the live voice sessions of the service and routes
// recognizer input to them.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"voice-task-service/internal/models"
	"voice-task-service/internal/observability/metrics"
	"voice-task-service/internal/service/session"
	"voice-task-service/internal/service/stt"
	"voice-task-service/internal/service/stt/relay"
	"voice-task-service/internal/service/transcript"
	"voice-task-service/internal/store"
)

var (
	ErrNotFound    = errors.New("voice: session not found")
	ErrUnsupported = errors.New("voice: operation not supported by recognizer")
	ErrTooMany     = errors.New("voice: session limit reached")
)

// Publisher publishes the events a session produces.
type Publisher interface {
	session.Publisher
	PublishNotice(ctx context.Context, key string, event any) error
}

// RecognizerFactory builds the recognizer for a new session.
type RecognizerFactory func(ctx context.Context, opts CreateOptions) (stt.Adapter, error)

// CreateOptions describe a new session.
type CreateOptions struct {
	PermissionGranted bool
	Language          string
}

// Config wires a Registry.
type Config struct {
	Factory   RecognizerFactory
	Store     store.Store
	Publisher Publisher
	Metrics   *metrics.Metrics
	Clock     session.Clock
	Selector  *transcript.Selector
	Options   session.Options
	// MaxSessions bounds registered sessions; zero means no bound.
	MaxSessions int
	// IdleTTL is how long an idle session stays registered after its last
	// use. Zero keeps idle sessions until they are removed.
	IdleTTL time.Duration
}

// Session is one registered voice session.
type Session struct {
	ID         string
	CreatedAt  time.Time
	Controller *session.Controller
	Recognizer stt.Adapter
	notices    *noticeLog
	lastUsed   atomic.Int64 // unix nanos
}

func (s *Session) touch(now time.Time) { s.lastUsed.Store(now.UnixNano()) }

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastUsed.Load()))
}

// Notices returns every notice the session produced, oldest first.
func (s *Session) Notices() []session.Notice {
	return s.notices.list()
}

// Registry owns the live sessions. Safe for concurrent use.
//
// At most one session is active at a time. Each finished session rewrites the
// shared task list, and the device offers a single dictation sheet.
type Registry struct {
	cfg Config

	startMu sync.Mutex // serializes Start against the active check

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}
	if cfg.Clock == nil {
		cfg.Clock = session.SystemClock()
	}
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Create registers an idle session with its own recognizer.
func (r *Registry) Create(ctx context.Context, opts CreateOptions) (*Session, error) {
	r.evictIdle(ctx)

	r.mu.RLock()
	full := r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions
	r.mu.RUnlock()
	if full {
		return nil, ErrTooMany
	}

	recognizer, err := r.cfg.Factory(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("voice: create recognizer: %w", err)
	}

	id := uuid.NewString()
	sessOpts := r.cfg.Options
	if opts.Language != "" {
		sessOpts.Language = opts.Language
	}

	s := &Session{
		ID:         id,
		CreatedAt:  r.cfg.Clock.Now(),
		Recognizer: recognizer,
		notices:    &noticeLog{},
	}
	s.touch(s.CreatedAt)

	var publisher session.Publisher
	if r.cfg.Publisher != nil {
		publisher = r.cfg.Publisher
	}
	s.Controller = session.New(id, session.Deps{
		Recognizer: recognizer,
		Store:      r.cfg.Store,
		Notifier:   r.notifier(s),
		Publisher:  publisher,
		Metrics:    r.cfg.Metrics,
		Clock:      r.cfg.Clock,
		Selector:   r.cfg.Selector,
	}, sessOpts)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	log.Info().Str("sessionId", id).Str("language", sessOpts.Language).Msg("Voice session created")
	return s, nil
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(r.cfg.Clock.Now())
	return s, nil
}

// Start starts the session with id. It fails with session.ErrSessionActive
// while any other session is listening, retrying or saving.
func (r *Registry) Start(ctx context.Context, id string) (*Session, error) {
	s, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	r.startMu.Lock()
	defer r.startMu.Unlock()
	if other := r.activeExcept(id); other != nil {
		return s, fmt.Errorf("%w: session %s is still running", session.ErrSessionActive, other.ID)
	}
	return s, s.Controller.Start(ctx)
}

func (r *Registry) activeExcept(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.ID != id && s.Controller.Status().State.IsActive() {
			return s
		}
	}
	return nil
}

// evictIdle removes idle sessions unused for longer than IdleTTL.
func (r *Registry) evictIdle(ctx context.Context) {
	if r.cfg.IdleTTL <= 0 {
		return
	}
	now := r.cfg.Clock.Now()

	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if s.idleSince(now) >= r.cfg.IdleTTL && !s.Controller.Status().State.IsActive() {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range stale {
		r.release(ctx, s)
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Push hands a recognition event to a session whose recognizer is relayed.
func (r *Registry) Push(id string, ev relay.Event) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	rel, ok := s.Recognizer.(*relay.Adapter)
	if !ok {
		return ErrUnsupported
	}
	return rel.Push(ev)
}

// SendAudio forwards an audio chunk to a session whose recognizer takes audio.
func (r *Registry) SendAudio(ctx context.Context, id string, audio []byte) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	sink, ok := s.Recognizer.(stt.AudioSink)
	if !ok {
		return ErrUnsupported
	}
	if err := sink.SendAudio(ctx, audio); err != nil {
		return err
	}
	r.cfg.Metrics.RecordAudioReceived(len(audio))
	return nil
}

// Remove cancels the session, releases its recognizer and forgets it.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	r.release(ctx, s)
	return nil
}

// Close cancels every session.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		r.release(ctx, s)
	}
}

func (r *Registry) release(ctx context.Context, s *Session) {
	s.Controller.Cancel(ctx)
	if c, ok := s.Recognizer.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Str("sessionId", s.ID).Msg("Closing recognizer failed")
		}
	}
	log.Info().Str("sessionId", s.ID).Msg("Voice session removed")
}

// notifier records a notice on the session, logs it and publishes it.
func (r *Registry) notifier(s *Session) session.Notifier {
	return session.NotifierFunc(func(n session.Notice) {
		s.notices.add(n)
		log.Info().
			Str("sessionId", s.ID).
			Str("kind", string(n.Kind)).
			Str("message", n.Message).
			Msg("Session notice")

		if r.cfg.Publisher == nil {
			return
		}
		event := models.SessionNotice{
			EventType: models.EventTypeSessionNotice,
			SessionID: s.ID,
			Timestamp: r.cfg.Clock.Now().UnixMilli(),
			Kind:      string(n.Kind),
			Title:     n.Title,
			Message:   n.Message,
		}
		if err := r.cfg.Publisher.PublishNotice(context.Background(), s.ID, event); err != nil {
			log.Warn().Err(err).Str("sessionId", s.ID).Msg("Publishing notice failed")
		}
	})
}

type noticeLog struct {
	mu      sync.Mutex
	notices []session.Notice
}

func (l *noticeLog) add(n session.Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notices = append(l.notices, n)
}

func (l *noticeLog) list() []session.Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]session.Notice(nil), l.notices...)
}

package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"voice-task-service/internal/service/session"
	"voice-task-service/internal/service/stt"
	"voice-task-service/internal/service/stt/mock"
	"voice-task-service/internal/service/stt/relay"
	"voice-task-service/internal/service/transcript"
	"voice-task-service/internal/store"
)

type recordingPublisher struct {
	mu      sync.Mutex
	tasks   []any
	notices []any
}

func (p *recordingPublisher) PublishTasks(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, event)
	return nil
}

func (p *recordingPublisher) PublishNotice(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, event)
	return nil
}

func relayFactory(ctx context.Context, opts CreateOptions) (stt.Adapter, error) {
	return relay.New(opts.PermissionGranted), nil
}

func newRegistry(factory RecognizerFactory) (*Registry, *store.Memory, *recordingPublisher) {
	mem := store.NewMemory()
	pub := &recordingPublisher{}
	r := NewRegistry(Config{
		Factory:   factory,
		Store:     mem,
		Publisher: pub,
		Selector:  transcript.NewSeededSelector(7),
		Options:   session.DefaultOptions(),
	})
	return r, mem, pub
}

func TestRegistry_RelayFlow(t *testing.T) {
	ctx := context.Background()
	r, mem, pub := newRegistry(relayFactory)

	s, err := r.Create(ctx, CreateOptions{PermissionGranted: true, Language: "en-GB"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Controller.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if lang := s.Recognizer.(*relay.Adapter).Config().Language; lang != "en-GB" {
		t.Errorf("expected session language en-GB, got %s", lang)
	}

	events := []relay.Event{
		{Kind: relay.KindInterim, Payload: transcript.TextPayload("buy")},
		{Kind: relay.KindResult, Payload: transcript.TextPayload("buy milk then call mom")},
	}
	for _, ev := range events {
		if err := r.Push(s.ID, ev); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	out, err := s.Controller.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(out.Tasks) != 2 {
		t.Errorf("expected 2 tasks, got %+v", out.Tasks)
	}
	saved, _ := mem.Load(ctx)
	if len(saved) != 2 || saved[0].Title != "buy milk" || saved[1].Title != "call mom" {
		t.Errorf("unexpected saved tasks %+v", saved)
	}

	notices := s.Notices()
	if len(notices) != 1 || notices[0].Kind != session.NoticeTasksAdded {
		t.Errorf("unexpected notices %+v", notices)
	}
	if len(pub.tasks) != 1 || len(pub.notices) != 1 {
		t.Errorf("expected one tasks event and one notice event, got %d and %d", len(pub.tasks), len(pub.notices))
	}
}

func TestRegistry_PermissionDeniedNotice(t *testing.T) {
	ctx := context.Background()
	r, _, pub := newRegistry(relayFactory)

	s, _ := r.Create(ctx, CreateOptions{PermissionGranted: false})
	if err := s.Controller.Start(ctx); !errors.Is(err, session.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if n := s.Notices(); len(n) != 1 || n[0].Kind != session.NoticePermissionDenied {
		t.Errorf("unexpected notices %+v", n)
	}
	if len(pub.notices) != 1 {
		t.Errorf("expected notice to be published, got %d", len(pub.notices))
	}
}

func TestRegistry_MockAudioFlow(t *testing.T) {
	ctx := context.Background()
	utt := mock.SimulatedUtterance{
		Partials: []string{"water the"},
		Final: []mock.ScoredText{
			{Text: "water the plants and pay rent", Confidence: 0.9},
			{Text: "water the plans and pay rent", Confidence: 0.4},
		},
	}
	r, mem, _ := newRegistry(func(ctx context.Context, opts CreateOptions) (stt.Adapter, error) {
		return mock.NewWithUtterance(utt), nil
	})

	s, _ := r.Create(ctx, CreateOptions{PermissionGranted: true})
	if err := s.Controller.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.SendAudio(ctx, s.ID, make([]byte, 320)); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}

	// Stop drains the pending final result before parsing.
	if _, err := s.Controller.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	saved, _ := mem.Load(ctx)
	if len(saved) != 2 || saved[0].Title != "water the plants" || saved[1].Title != "pay rent" {
		t.Errorf("unexpected saved tasks %+v", saved)
	}
}

func TestRegistry_UnsupportedInput(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry(relayFactory)
	s, _ := r.Create(ctx, CreateOptions{PermissionGranted: true})

	if err := r.SendAudio(ctx, s.ID, []byte{1, 2}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("relay recognizer should not take audio, got %v", err)
	}

	m, _, _ := newRegistry(func(ctx context.Context, opts CreateOptions) (stt.Adapter, error) {
		return mock.New(), nil
	})
	ms, _ := m.Create(ctx, CreateOptions{PermissionGranted: true})
	if err := m.Push(ms.ID, relay.Event{Kind: relay.KindInterim}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("mock recognizer should not take pushed events, got %v", err)
	}
}

func TestRegistry_PushBeforeStart(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newRegistry(relayFactory)
	s, _ := r.Create(ctx, CreateOptions{PermissionGranted: true})

	err := r.Push(s.ID, relay.Event{Kind: relay.KindResult, Payload: transcript.TextPayload("buy milk")})
	if !errors.Is(err, relay.ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestRegistry_RemoveAndNotFound(t *testing.T) {
	ctx := context.Background()
	r, mem, _ := newRegistry(relayFactory)
	s, _ := r.Create(ctx, CreateOptions{PermissionGranted: true})
	_ = s.Controller.Start(ctx)
	_ = r.Push(s.ID, relay.Event{Kind: relay.KindResult, Payload: transcript.TextPayload("buy milk")})

	if err := r.Remove(ctx, s.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if st := s.Controller.Status().State; st != session.StateIdle {
		t.Errorf("removed session should be idle, got %s", st)
	}
	if saved, _ := mem.Load(ctx); len(saved) != 0 {
		t.Errorf("removing a session must not persist, got %+v", saved)
	}
	if _, err := r.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := r.Remove(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestRegistry_MaxSessions(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(Config{Factory: relayFactory, Store: store.NewMemory(), MaxSessions: 1})

	if _, err := r.Create(ctx, CreateOptions{}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := r.Create(ctx, CreateOptions{}); !errors.Is(err, ErrTooMany) {
		t.Errorf("expected ErrTooMany, got %v", err)
	}

	r.Close(ctx)
	if r.Len() != 0 {
		t.Errorf("expected no sessions after Close, got %d", r.Len())
	}
}

func TestRegistry_OneActiveSessionAtATime(t *testing.T) {
	ctx := context.Background()
	r, mem, _ := newRegistry(relayFactory)
	a, _ := r.Create(ctx, CreateOptions{PermissionGranted: true})
	b, _ := r.Create(ctx, CreateOptions{PermissionGranted: true})

	if _, err := r.Start(ctx, a.ID); err != nil {
		t.Fatalf("Start(a) error = %v", err)
	}
	if _, err := r.Start(ctx, b.ID); !errors.Is(err, session.ErrSessionActive) {
		t.Fatalf("Start(b) while a listens: expected ErrSessionActive, got %v", err)
	}
	if st := b.Controller.Status(); st.State != session.StateIdle || st.Open {
		t.Errorf("refused session should stay closed and idle, got %+v", st)
	}

	_ = r.Push(a.ID, relay.Event{Kind: relay.KindResult, Payload: transcript.TextPayload("buy milk")})
	if _, err := a.Controller.Stop(ctx); err != nil {
		t.Fatalf("Stop(a) error = %v", err)
	}

	if _, err := r.Start(ctx, b.ID); err != nil {
		t.Fatalf("Start(b) after a stopped: %v", err)
	}
	_ = r.Push(b.ID, relay.Event{Kind: relay.KindResult, Payload: transcript.TextPayload("call mom")})
	if _, err := b.Controller.Stop(ctx); err != nil {
		t.Fatalf("Stop(b) error = %v", err)
	}

	saved, _ := mem.Load(ctx)
	if len(saved) != 2 || saved[0].Title != "call mom" || saved[1].Title != "buy milk" {
		t.Errorf("expected both sessions' tasks newest first, got %+v", saved)
	}
}

func TestRegistry_StartUnknownSession(t *testing.T) {
	r, _, _ := newRegistry(relayFactory)
	if s, err := r.Start(context.Background(), "nope"); s != nil || !errors.Is(err, ErrNotFound) {
		t.Errorf("Start(nope) = %v, %v; want nil, ErrNotFound", s, err)
	}
}

// steppedClock reports a settable time and runs timers for real.
type steppedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *steppedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *steppedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *steppedClock) AfterFunc(d time.Duration, f func()) session.Timer {
	return time.AfterFunc(d, f)
}

func TestRegistry_IdleSessionsExpire(t *testing.T) {
	ctx := context.Background()
	clock := &steppedClock{now: time.UnixMilli(1700000000000)}
	r := NewRegistry(Config{
		Factory:     relayFactory,
		Store:       store.NewMemory(),
		Clock:       clock,
		MaxSessions: 2,
		IdleTTL:     time.Minute,
	})

	stale, _ := r.Create(ctx, CreateOptions{PermissionGranted: true})
	busy, _ := r.Create(ctx, CreateOptions{PermissionGranted: true})
	if _, err := r.Start(ctx, busy.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer busy.Controller.Cancel(ctx)

	if _, err := r.Create(ctx, CreateOptions{}); !errors.Is(err, ErrTooMany) {
		t.Fatalf("expected ErrTooMany before the TTL, got %v", err)
	}

	clock.advance(2 * time.Minute)
	fresh, err := r.Create(ctx, CreateOptions{})
	if err != nil {
		t.Fatalf("Create() after TTL error = %v", err)
	}
	if _, err := r.Get(stale.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("idle session should be evicted, got %v", err)
	}
	if _, err := r.Get(busy.ID); err != nil {
		t.Errorf("listening session must survive eviction, got %v", err)
	}
	if _, err := r.Get(fresh.ID); err != nil {
		t.Errorf("new session missing: %v", err)
	}
}

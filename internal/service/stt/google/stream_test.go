package google

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"voice-task-service/internal/service/session"
	"voice-task-service/internal/service/stt"
	"voice-task-service/internal/service/transcript"
	"voice-task-service/internal/store"
)

type recvResult struct {
	resp *speechpb.StreamingRecognizeResponse
	err  error
}

// fakeStream replays queued responses. CloseSend ends the stream with io.EOF
// once the queue is drained.
type fakeStream struct {
	speechpb.Speech_StreamingRecognizeClient
	recv      chan recvResult
	closeOnce sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{recv: make(chan recvResult, 16)}
}

func (s *fakeStream) Send(*speechpb.StreamingRecognizeRequest) error { return nil }

func (s *fakeStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	r, ok := <-s.recv
	if !ok {
		return nil, io.EOF
	}
	return r.resp, r.err
}

func (s *fakeStream) CloseSend() error {
	s.closeOnce.Do(func() { close(s.recv) })
	return nil
}

func (s *fakeStream) fail(err error) { s.recv <- recvResult{err: err} }

func (s *fakeStream) final(text string) {
	s.recv <- recvResult{resp: &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{{
			IsFinal:      true,
			Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text, Confidence: 0.9}},
		}},
	}}
}

// streamAdapter opens the next queued fake stream on every Start.
type streamAdapter struct {
	*Adapter
	mu      sync.Mutex
	streams []*fakeStream
	starts  int
}

func newStreamAdapter(streams ...*fakeStream) *streamAdapter {
	return &streamAdapter{Adapter: &Adapter{cfg: DefaultConfig()}, streams: streams}
}

func (a *streamAdapter) Start(ctx context.Context, cfg stt.Config, cb stt.Callback) error {
	a.mu.Lock()
	if a.starts >= len(a.streams) {
		a.mu.Unlock()
		return errors.New("no stream left")
	}
	s := a.streams[a.starts]
	a.starts++
	a.mu.Unlock()

	a.attach(s, cb)
	return nil
}

func (a *streamAdapter) startCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.starts
}

// stopOnError stops the adapter from inside OnError, as the session
// controller does.
type stopOnError struct {
	a       *Adapter
	code    string
	stopErr error
	done    chan struct{}
}

func (c *stopOnError) OnInterim(transcript.Payload) {}
func (c *stopOnError) OnResult(transcript.Payload)  {}

func (c *stopOnError) OnError(code, _ string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.code = code
	c.stopErr = c.a.Stop(ctx)
	close(c.done)
}

func TestStopFromErrorCallbackDoesNotBlock(t *testing.T) {
	a := &Adapter{cfg: DefaultConfig()}
	s := newFakeStream()
	cb := &stopOnError{a: a, done: make(chan struct{})}
	a.attach(s, cb)

	s.fail(status.Error(codes.Unavailable, "connection reset"))

	select {
	case <-cb.done:
	case <-time.After(3 * time.Second):
		t.Fatal("OnError never returned")
	}
	if cb.code != stt.ErrorCodeNetwork {
		t.Errorf("code = %q, want %q", cb.code, stt.ErrorCodeNetwork)
	}
	if cb.stopErr != nil {
		t.Errorf("Stop() inside OnError = %v, want nil", cb.stopErr)
	}
}

func TestStopDrainsRemainingResults(t *testing.T) {
	a := &Adapter{cfg: DefaultConfig()}
	s := newFakeStream()
	var mu sync.Mutex
	var results []string
	a.attach(s, callbackFunc(func(p transcript.Payload) {
		text, _ := transcript.Extract(p, nil)
		mu.Lock()
		results = append(results, text)
		mu.Unlock()
	}))

	s.final("buy milk")
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 1 || results[0] != "buy milk" {
		t.Errorf("results = %v, want [buy milk]", results)
	}
}

type callbackFunc func(transcript.Payload)

func (f callbackFunc) OnInterim(transcript.Payload)  {}
func (f callbackFunc) OnResult(p transcript.Payload) { f(p) }
func (f callbackFunc) OnError(string, string)        {}

func newController(t *testing.T, rec stt.Adapter, notes *session.Recorder, opts session.Options) *session.Controller {
	t.Helper()
	return session.New("s-google", session.Deps{
		Recognizer: rec,
		Store:      store.NewMemory(),
		Notifier:   notes,
		Selector:   transcript.NewSeededSelector(1),
	}, opts)
}

// waitFor polls until cond holds or fails the test after two seconds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func hasNotice(notes *session.Recorder, kind session.NoticeKind) bool {
	for _, n := range notes.Notices() {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

func TestSession_NetworkErrorIsReported(t *testing.T) {
	s := newFakeStream()
	notes := &session.Recorder{}
	ctrl := newController(t, newStreamAdapter(s), notes, session.DefaultOptions())

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.fail(status.Error(codes.Unavailable, "connection reset"))

	waitFor(t, "network notice", func() bool { return hasNotice(notes, session.NoticeNetworkError) })
	if st := ctrl.Status().State; st != session.StateIdle {
		t.Errorf("state = %s, want IDLE", st)
	}
}

func TestSession_NoSpeechRestartsThenGivesUp(t *testing.T) {
	first, second := newFakeStream(), newFakeStream()
	rec := newStreamAdapter(first, second)
	notes := &session.Recorder{}
	opts := session.DefaultOptions()
	opts.MaxRetries = 1
	opts.RetryBackoff = 10 * time.Millisecond
	ctrl := newController(t, rec, notes, opts)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	first.fail(status.Error(codes.OutOfRange, "Audio Timeout Error"))
	waitFor(t, "restart", func() bool {
		return rec.startCount() == 2 && ctrl.Status().State == session.StateListening
	})
	if got := ctrl.Status().Retry.Count; got != 1 {
		t.Errorf("retry count = %d, want 1", got)
	}

	second.fail(status.Error(codes.OutOfRange, "Audio Timeout Error"))
	waitFor(t, "no-speech notice", func() bool { return hasNotice(notes, session.NoticeNoSpeech) })
	if st := ctrl.Status().State; st != session.StateIdle {
		t.Errorf("state = %s, want IDLE", st)
	}
}

func TestSession_NoSpeechWithTextStopsAndSaves(t *testing.T) {
	s := newFakeStream()
	notes := &session.Recorder{}
	ctrl := newController(t, newStreamAdapter(s), notes, session.DefaultOptions())

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.final("buy milk")
	waitFor(t, "final result", func() bool { return !ctrl.Status().Transcript.Empty() })

	s.fail(status.Error(codes.OutOfRange, "Audio Timeout Error"))
	waitFor(t, "tasks notice", func() bool { return hasNotice(notes, session.NoticeTasksAdded) })
	if st := ctrl.Status().State; st != session.StateIdle {
		t.Errorf("state = %s, want IDLE", st)
	}
}

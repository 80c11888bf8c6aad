package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-task-service/internal/models"
	"voice-task-service/internal/observability/logging"
	"voice-task-service/internal/observability/metrics"
	"voice-task-service/internal/service/stt"
	"voice-task-service/internal/service/tasks"
	"voice-task-service/internal/service/transcript"
	"voice-task-service/internal/store"
)

// Publisher receives the tasks-created event after a confirmed save.
type Publisher interface {
	PublishTasks(ctx context.Context, key string, event any) error
}

// Options tunes a Controller.
type Options struct {
	Language        string
	WatchdogTimeout time.Duration
	RetryBackoff    time.Duration
	MaxRetries      int
}

// DefaultOptions returns the standard timings: an 18s watchdog, a 400ms
// restart backoff and three automatic restarts.
func DefaultOptions() Options {
	return Options{
		Language:        "en-US",
		WatchdogTimeout: 18 * time.Second,
		RetryBackoff:    400 * time.Millisecond,
		MaxRetries:      3,
	}
}

// Deps are the collaborators of a Controller. Recognizer, Store and Notifier
// are required.
type Deps struct {
	Recognizer stt.Adapter
	Store      store.Store
	Notifier   Notifier
	Publisher  Publisher
	Metrics    *metrics.Metrics
	Clock      Clock
	Selector   *transcript.Selector
}

// Status is a snapshot of a session for callers outside the controller.
type Status struct {
	ID         string              `json:"id"`
	State      State               `json:"state"`
	Open       bool                `json:"open"`
	Transcript transcript.Snapshot `json:"transcript"`
	Retry      RetryState          `json:"retry"`
}

// Outcome describes what a Stop produced.
type Outcome struct {
	Transcript string        `json:"transcript"`
	Tasks      []models.Task `json:"tasks"`
	Notice     Notice        `json:"notice"`
}

// Controller runs the listen, retry and stop cycle of one voice session.
// Recognizer callbacks and timers may arrive from any goroutine. The mutex is
// never held while calling the recognizer, the store or the notifier.
type Controller struct {
	id         string
	recognizer stt.Adapter
	store      store.Store
	notifier   Notifier
	publisher  Publisher
	metrics    *metrics.Metrics
	clock      Clock
	selector   *transcript.Selector
	opts       Options
	logger     zerolog.Logger

	mu sync.Mutex
	sc Context
}

var _ stt.Callback = (*Controller)(nil)

// New creates an idle Controller.
func New(id string, deps Deps, opts Options) *Controller {
	def := DefaultOptions()
	if opts.Language == "" {
		opts.Language = def.Language
	}
	if opts.WatchdogTimeout <= 0 {
		opts.WatchdogTimeout = def.WatchdogTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultMetrics
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}

	return &Controller{
		id:         id,
		recognizer: deps.Recognizer,
		store:      deps.Store,
		notifier:   deps.Notifier,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		selector:   deps.Selector,
		opts:       opts,
		logger:     logging.WithSession(id),
		sc:         Context{Retry: RetryState{Max: opts.MaxRetries}},
	}
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// Status returns the current state, transcript and retry counter.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		ID:         c.id,
		State:      c.sc.State,
		Open:       c.sc.open,
		Transcript: c.sc.Transcript.Snapshot(),
		Retry:      c.sc.Retry,
	}
}

// Start asks for permission and starts listening. A denied permission leaves
// the session idle, reports a notice and returns ErrPermissionDenied.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.sc.State.IsActive() || c.sc.starting || c.sc.processing {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.sc.starting = true
	c.sc.open = true
	c.mu.Unlock()

	granted, err := c.recognizer.RequestPermission(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Permission request failed")
	}
	if err != nil || !granted {
		c.mu.Lock()
		c.sc.starting = false
		c.sc.open = false
		c.mu.Unlock()
		c.metrics.RecordPermissionDenied()
		c.notify(permissionDeniedNotice())
		return ErrPermissionDenied
	}

	c.mu.Lock()
	c.sc.starting = false
	if !c.sc.open {
		// Cancelled while the permission prompt was pending.
		c.mu.Unlock()
		return ErrNotActive
	}
	c.sc.Retry = RetryState{Max: c.opts.MaxRetries}
	c.sc.Transcript.Reset()
	c.sc.startedAt = c.clock.Now()
	c.sc.counted = true
	c.metrics.RecordSessionStart()
	gen := c.listenLocked()
	c.mu.Unlock()

	c.logger.Info().Str("language", c.opts.Language).Msg("Session listening")
	return c.startRecognizer(ctx, gen)
}

// Stop ends listening and turns the transcript into tasks. A Stop while
// another is running returns immediately with a zero Outcome. Only a failed
// save is returned as an error.
func (c *Controller) Stop(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	if c.sc.processing {
		c.mu.Unlock()
		return Outcome{}, nil
	}
	if !c.sc.State.IsActive() {
		c.mu.Unlock()
		return Outcome{}, ErrNotActive
	}
	prev := c.sc.State
	c.sc.processing = true
	c.sc.State = StateStopping
	c.sc.cancelTimers()
	c.sc.advance()
	c.mu.Unlock()

	start := time.Now()
	if prev == StateListening {
		// Late results are still folded while the recognizer drains.
		if err := c.recognizer.Stop(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Recognizer stop failed")
		}
	}

	c.mu.Lock()
	text := c.sc.Transcript.Take()
	c.mu.Unlock()

	out, err := c.process(ctx, text)

	c.mu.Lock()
	c.sc.processing = false
	c.enterIdleLocked(string(out.Notice.Kind))
	c.mu.Unlock()

	c.metrics.RecordStopLatency(time.Since(start).Seconds())
	c.notify(out.Notice)
	return out, err
}

// Cancel abandons the session: the recognizer is stopped, the transcript and
// retry counter are cleared and nothing is persisted. A Stop already in
// progress still completes.
func (c *Controller) Cancel(ctx context.Context) {
	c.mu.Lock()
	running := c.sc.State == StateListening
	c.sc.open = false
	c.sc.cancelTimers()
	c.sc.advance()
	c.sc.Transcript.Reset()
	c.sc.Retry.Count = 0
	if !c.sc.processing {
		c.enterIdleLocked("cancelled")
	}
	c.mu.Unlock()

	if running {
		if err := c.recognizer.Stop(ctx); err != nil {
			c.logger.Debug().Err(err).Msg("Recognizer stop on cancel failed")
		}
	}
	c.logger.Info().Msg("Session cancelled")
}

// OnInterim implements stt.Callback.
func (c *Controller) OnInterim(p transcript.Payload) {
	c.metrics.RecordRecognitionEvent("interim")
	text, ok := transcript.Extract(p, c.selector)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acceptingLocked() {
		return
	}
	c.sc.Transcript.ApplyInterim(text)
}

// OnResult implements stt.Callback.
func (c *Controller) OnResult(p transcript.Payload) {
	c.metrics.RecordRecognitionEvent("result")
	text, _ := transcript.Extract(p, c.selector)
	chunk := transcript.Normalize(text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.acceptingLocked() {
		return
	}
	// Any result is a sign of life; the watchdog stays disarmed.
	if c.sc.watchdog != nil {
		c.sc.watchdog.Stop()
		c.sc.watchdog = nil
	}
	if chunk == "" {
		c.sc.Transcript.ClearInterim()
		return
	}
	final := c.sc.Transcript.ApplyResult(chunk)
	c.logger.Debug().Str("final", final).Msg("Result folded")
}

// OnError implements stt.Callback.
func (c *Controller) OnError(code, message string) {
	c.metrics.RecordRecognitionEvent("error")
	c.metrics.RecordRecognitionError(code)
	c.logger.Warn().Str("code", code).Str("message", message).Msg("Recognition error")

	switch code {
	case stt.ErrorCodeNoSpeech:
		c.mu.Lock()
		if c.sc.State != StateListening {
			c.mu.Unlock()
			return
		}
		c.silenceLocked()
	case stt.ErrorCodeNetwork:
		c.fail(networkErrorNotice())
	default:
		c.fail(recognitionErrorNotice(message))
	}
}

// listenLocked enters LISTENING and arms a fresh watchdog.
func (c *Controller) listenLocked() uint64 {
	c.sc.cancelTimers()
	c.sc.State = StateListening
	gen := c.sc.advance()
	c.sc.watchdog = c.clock.AfterFunc(c.opts.WatchdogTimeout, func() { c.onWatchdog(gen) })
	return gen
}

func (c *Controller) startRecognizer(ctx context.Context, gen uint64) error {
	cfg := stt.Config{
		Language:       c.opts.Language,
		InterimResults: true,
		Continuous:     true,
	}
	// The recognition stream outlives the request that started it.
	if err := c.recognizer.Start(context.WithoutCancel(ctx), cfg, c); err != nil {
		c.logger.Error().Err(err).Msg("Recognizer failed to start")
		c.mu.Lock()
		current := c.sc.generation == gen
		c.mu.Unlock()
		if current {
			c.fail(recognitionErrorNotice(err.Error()))
		}
		return fmt.Errorf("session: start recognizer: %w", err)
	}
	return nil
}

func (c *Controller) onWatchdog(gen uint64) {
	c.mu.Lock()
	// A result disarms the watchdog without moving the generation.
	if c.sc.generation != gen || c.sc.State != StateListening || c.sc.watchdog == nil {
		c.mu.Unlock()
		return
	}
	c.sc.watchdog = nil
	c.logger.Info().Msg("Watchdog fired")
	c.silenceLocked()
}

// silenceLocked handles a no-speech timeout or error. It must be called with
// the lock held in LISTENING and releases it. Captured text turns the timeout
// into a normal stop.
func (c *Controller) silenceLocked() {
	if !c.sc.Transcript.Snapshot().Empty() {
		c.mu.Unlock()
		if _, err := c.Stop(context.Background()); err != nil {
			c.logger.Error().Err(err).Msg("Stop after silence failed")
		}
		return
	}

	c.sc.cancelTimers()
	c.sc.State = StateRetrying
	gen := c.sc.advance()
	c.mu.Unlock()

	if err := c.recognizer.Stop(context.Background()); err != nil {
		c.logger.Debug().Err(err).Msg("Recognizer stop after silence failed")
	}

	c.mu.Lock()
	if c.sc.generation != gen || c.sc.State != StateRetrying || !c.sc.open {
		c.mu.Unlock()
		return
	}
	if c.sc.Retry.Count < c.sc.Retry.Max {
		c.sc.Retry.Count++
		c.metrics.RecordRetry()
		c.logger.Info().Int("attempt", c.sc.Retry.Count).Int("max", c.sc.Retry.Max).Msg("No speech, restarting")
		c.sc.backoff = c.clock.AfterFunc(c.opts.RetryBackoff, func() { c.restart(gen) })
		c.mu.Unlock()
		return
	}
	attempts := c.sc.Retry.Count
	c.sc.advance()
	c.enterIdleLocked(string(NoticeNoSpeech))
	c.mu.Unlock()

	c.notify(noSpeechNotice(attempts))
}

func (c *Controller) restart(gen uint64) {
	c.mu.Lock()
	if c.sc.generation != gen || c.sc.State != StateRetrying || !c.sc.open {
		c.mu.Unlock()
		return
	}
	c.sc.backoff = nil
	next := c.listenLocked()
	c.mu.Unlock()

	if err := c.startRecognizer(context.Background(), next); err != nil {
		c.logger.Error().Err(err).Msg("Restart failed")
	}
}

// fail ends a listening session on an unrecoverable recognizer error. The
// retry counter is left alone.
func (c *Controller) fail(n Notice) {
	c.mu.Lock()
	if c.sc.State != StateListening {
		c.mu.Unlock()
		return
	}
	c.sc.cancelTimers()
	c.sc.advance()
	c.enterIdleLocked(string(n.Kind))
	c.mu.Unlock()

	if err := c.recognizer.Stop(context.Background()); err != nil {
		c.logger.Debug().Err(err).Msg("Recognizer stop after error failed")
	}
	c.notify(n)
}

// process runs the task pipeline over a finished transcript and persists the
// result.
func (c *Controller) process(ctx context.Context, text string) (Outcome, error) {
	out := Outcome{Transcript: text}
	if transcript.Normalize(text) == "" {
		out.Notice = emptyTranscriptNotice()
		return out, nil
	}

	titles := tasks.FromTranscript(text)
	c.metrics.RecordTranscriptParsed(len(titles))
	if len(titles) == 0 {
		c.logger.Info().Str("transcript", text).Msg("No tasks parsed")
		out.Notice = noTasksNotice()
		return out, nil
	}

	added := tasks.Build(titles, c.clock.Now())
	err := store.Update(ctx, c.store, func(existing []models.Task) []models.Task {
		return tasks.Prepend(added, existing)
	})
	if err != nil {
		c.logger.Error().Err(err).Int("tasks", len(added)).Msg("Saving tasks failed")
		out.Notice = persistenceErrorNotice(err)
		return out, errors.Join(ErrPersistence, err)
	}

	out.Tasks = added
	out.Notice = tasksAddedNotice(len(added))
	c.metrics.RecordTasksCreated(len(added))
	c.logger.Info().Int("tasks", len(added)).Msg("Tasks saved")

	if c.publisher != nil {
		event := models.TasksCreated{
			EventType: models.EventTypeTasksCreated,
			SessionID: c.id,
			Timestamp: c.clock.Now().UnixMilli(),
			Tasks:     added,
		}
		if err := c.publisher.PublishTasks(ctx, c.id, event); err != nil {
			c.logger.Warn().Err(err).Msg("Publishing created tasks failed")
		}
	}
	return out, nil
}

func (c *Controller) acceptingLocked() bool {
	return c.sc.State == StateListening || c.sc.State == StateStopping
}

// enterIdleLocked returns to IDLE, drops any text folded after the transcript
// was taken and closes the active-session gauge once.
func (c *Controller) enterIdleLocked(outcome string) {
	c.sc.State = StateIdle
	c.sc.Transcript.Reset()
	if c.sc.counted {
		c.sc.counted = false
		c.metrics.RecordSessionEnd(outcome, c.clock.Now().Sub(c.sc.startedAt).Seconds())
	}
}

func (c *Controller) notify(n Notice) {
	if n.Kind == "" || c.notifier == nil {
		return
	}
	c.notifier.Notify(n)
}

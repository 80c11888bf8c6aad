package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"voice-task-service/internal/config"
	"voice-task-service/internal/events"
	"voice-task-service/internal/observability/logging"
	"voice-task-service/internal/observability/metrics"
	"voice-task-service/internal/service/session"
	"voice-task-service/internal/service/stt"
	"voice-task-service/internal/service/stt/google"
	"voice-task-service/internal/service/stt/mock"
	"voice-task-service/internal/service/stt/relay"
	"voice-task-service/internal/service/transcript"
	"voice-task-service/internal/service/voice"
	"voice-task-service/internal/store"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Metrics     *metrics.Metrics
	Store       *store.Instrumented
	Publisher   *events.Publisher
	Sessions    *voice.Registry

	pool *pgxpool.Pool
}

// New wires the store, the Kafka publisher and the session registry from cfg.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	a := &Application{
		Cfg:     cfg,
		Logger:  logging.WithComponent("application"),
		Metrics: metrics.DefaultMetrics,
	}

	backend, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Store = store.Instrument(backend, cfg.Store.Driver, a.Metrics)

	a.Publisher = events.New(&events.Config{
		Brokers:      cfg.Kafka.Brokers,
		TopicTasks:   cfg.Kafka.TopicTasks,
		TopicNotices: cfg.Kafka.TopicNotices,
		Principal:    cfg.Kafka.Principal,
		Enabled:      cfg.Kafka.Enabled,
	})

	a.Sessions = voice.NewRegistry(voice.Config{
		Factory:   a.recognizerFactory(),
		Store:     a.Store,
		Publisher: a.Publisher,
		Metrics:   a.Metrics,
		Selector:  transcript.NewSelector(nil),
		Options: session.Options{
			Language:        cfg.STT.LanguageCode,
			WatchdogTimeout: cfg.Session.WatchdogTimeout,
			RetryBackoff:    cfg.Session.RetryBackoff,
			MaxRetries:      cfg.Session.MaxRetries,
		},
		MaxSessions: cfg.Session.MaxSessions,
		IdleTTL:     cfg.Session.IdleTTL,
	})

	a.Logger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Str("storeDriver", cfg.Store.Driver).
		Bool("kafkaEnabled", cfg.Kafka.Enabled).
		Msg("Voice task service application created")
	return a, nil
}

func (a *Application) openStore(ctx context.Context) (store.Store, error) {
	switch strings.ToLower(a.Cfg.Store.Driver) {
	case "memory":
		return store.NewMemory(), nil
	case "file":
		return store.NewFile(a.Cfg.Store.Path), nil
	case "postgres":
		pg, pool, err := store.OpenPostgres(ctx, a.Cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		return pg, nil
	default:
		return nil, fmt.Errorf("app: unknown store driver %q", a.Cfg.Store.Driver)
	}
}

// recognizerFactory builds one recognizer per session for the configured
// provider. Server-side recognizers ignore the device permission answer.
func (a *Application) recognizerFactory() voice.RecognizerFactory {
	cfg := a.Cfg.STT
	return func(ctx context.Context, opts voice.CreateOptions) (stt.Adapter, error) {
		switch strings.ToLower(cfg.Provider) {
		case "relay":
			return relay.New(opts.PermissionGranted), nil
		case "mock":
			m := mock.New()
			if !opts.PermissionGranted {
				m.DenyPermission()
			}
			return m, nil
		case "google":
			return google.New(ctx, google.Config{
				LanguageCode:   cfg.LanguageCode,
				SampleRateHz:   int32(cfg.SampleRateHz),
				InterimResults: cfg.InterimResults,
				AudioEncoding:  cfg.AudioEncoding,
			})
		default:
			return nil, fmt.Errorf("app: unknown stt provider %q", cfg.Provider)
		}
	}
}

// Ready reports whether the task store is reachable.
func (a *Application) Ready(ctx context.Context) error {
	return a.Store.Ping(ctx)
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Voice task service starting")
	return nil
}

// Shutdown cancels live sessions and releases the publisher and the database.
func (a *Application) Shutdown(ctx context.Context) {
	a.Logger.Info().Int("sessions", a.Sessions.Len()).Msg("Voice task service shutting down")

	a.Sessions.Close(ctx)
	if err := a.Publisher.Close(); err != nil {
		a.Logger.Error().Err(err).Msg("Closing publisher failed")
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

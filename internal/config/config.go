// Package config loads service configuration from an optional YAML file and
// environment variables. Environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	STT           STTConfig           `yaml:"stt"`
	Session       SessionConfig       `yaml:"session"`
	Store         StoreConfig         `yaml:"store"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type ServiceConfig struct {
	Principal string `yaml:"principal"`
	HTTPPort  string `yaml:"http_port"`
	GRPCPort  string `yaml:"grpc_port"`
}

type STTConfig struct {
	Provider       string `yaml:"provider"` // mock, relay, google
	LanguageCode   string `yaml:"language_code"`
	SampleRateHz   int    `yaml:"sample_rate_hz"`
	InterimResults bool   `yaml:"interim_results"`
	AudioEncoding  string `yaml:"audio_encoding"`
}

type SessionConfig struct {
	WatchdogTimeout time.Duration `yaml:"watchdog_timeout"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	MaxRetries      int           `yaml:"max_retries"`
	MaxSessions     int           `yaml:"max_sessions"` // registered sessions, active or idle
	IdleTTL         time.Duration `yaml:"idle_ttl"`     // idle sessions are evicted after this
}

type StoreConfig struct {
	Driver      string `yaml:"driver"` // file, memory, postgres
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	TopicTasks   string   `yaml:"topic_tasks"`
	TopicNotices string   `yaml:"topic_notices"`
	Principal    string   `yaml:"principal"`
}

type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`
}

var (
	sttProviders = []string{"mock", "relay", "google"}
	storeDrivers = []string{"file", "memory", "postgres"}
)

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Principal: "svc-voice-tasks",
			HTTPPort:  "8080",
			GRPCPort:  "50051",
		},
		STT: STTConfig{
			Provider:       "relay",
			LanguageCode:   "en-US",
			SampleRateHz:   16000,
			InterimResults: true,
			AudioEncoding:  "LINEAR16",
		},
		Session: SessionConfig{
			WatchdogTimeout: 18 * time.Second,
			RetryBackoff:    400 * time.Millisecond,
			MaxRetries:      3,
			MaxSessions:     100,
			IdleTTL:         10 * time.Minute,
		},
		Store: StoreConfig{
			Driver: "file",
			Path:   "data/tasks.json",
		},
		Kafka: KafkaConfig{
			TopicTasks:   "voice.tasks.created",
			TopicNotices: "voice.session.notices",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsAddr: ":9090",
		},
	}
}

// Load returns the defaults overridden by environment variables.
func Load() *Config {
	cfg := Defaults()
	applyEnv(cfg)
	return cfg
}

// LoadAll applies CONFIG_FILE when set, then the environment, and validates
// the result.
func LoadAll() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg. Unknown keys are errors.
func LoadFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config: decode %q: %w", path, err)
	}
	return nil
}

// Validate reports every inconsistent setting at once.
func Validate(cfg *Config) error {
	var errs []error
	if !slices.Contains(sttProviders, cfg.STT.Provider) {
		errs = append(errs, fmt.Errorf("config: stt.provider %q not one of %v", cfg.STT.Provider, sttProviders))
	}
	if !slices.Contains(storeDrivers, cfg.Store.Driver) {
		errs = append(errs, fmt.Errorf("config: store.driver %q not one of %v", cfg.Store.Driver, storeDrivers))
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DatabaseURL == "" {
		errs = append(errs, errors.New("config: store.database_url is required for postgres"))
	}
	if cfg.Store.Driver == "file" && cfg.Store.Path == "" {
		errs = append(errs, errors.New("config: store.path is required for file"))
	}
	if cfg.Session.WatchdogTimeout <= 0 || cfg.Session.RetryBackoff <= 0 {
		errs = append(errs, errors.New("config: session timings must be positive"))
	}
	if cfg.Session.MaxRetries < 0 {
		errs = append(errs, errors.New("config: session.max_retries must not be negative"))
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("config: kafka.brokers is required when kafka is enabled"))
	}
	return errors.Join(errs...)
}

func applyEnv(cfg *Config) {
	cfg.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", cfg.Service.Principal)
	cfg.Service.HTTPPort = envOrDefault("HTTP_PORT", cfg.Service.HTTPPort)
	cfg.Service.GRPCPort = envOrDefault("GRPC_PORT", cfg.Service.GRPCPort)

	cfg.STT.Provider = envOrDefault("STT_PROVIDER", cfg.STT.Provider)
	cfg.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", cfg.STT.LanguageCode)
	cfg.STT.SampleRateHz = envOrDefaultInt("STT_SAMPLE_RATE_HZ", cfg.STT.SampleRateHz)
	cfg.STT.InterimResults = envOrDefaultBool("STT_INTERIM_RESULTS", cfg.STT.InterimResults)
	cfg.STT.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", cfg.STT.AudioEncoding)

	cfg.Session.WatchdogTimeout = envOrDefaultDuration("SESSION_WATCHDOG_TIMEOUT", cfg.Session.WatchdogTimeout)
	cfg.Session.RetryBackoff = envOrDefaultDuration("SESSION_RETRY_BACKOFF", cfg.Session.RetryBackoff)
	cfg.Session.MaxRetries = envOrDefaultInt("SESSION_MAX_RETRIES", cfg.Session.MaxRetries)
	cfg.Session.MaxSessions = envOrDefaultInt("SESSION_MAX_SESSIONS", cfg.Session.MaxSessions)
	cfg.Session.IdleTTL = envOrDefaultDuration("SESSION_IDLE_TTL", cfg.Session.IdleTTL)

	cfg.Store.Driver = envOrDefault("STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.Path = envOrDefault("STORE_PATH", cfg.Store.Path)
	cfg.Store.DatabaseURL = envOrDefault("DATABASE_URL", cfg.Store.DatabaseURL)

	cfg.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", cfg.Kafka.Enabled)
	cfg.Kafka.Brokers = envOrDefaultList("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.TopicTasks = envOrDefault("KAFKA_TOPIC_TASKS", cfg.Kafka.TopicTasks)
	cfg.Kafka.TopicNotices = envOrDefault("KAFKA_TOPIC_NOTICES", cfg.Kafka.TopicNotices)
	cfg.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", cfg.Kafka.Principal)
	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Service.Principal
	}

	cfg.Observability.LogLevel = envOrDefault("LOG_LEVEL", cfg.Observability.LogLevel)
	cfg.Observability.LogFormat = envOrDefault("LOG_FORMAT", cfg.Observability.LogFormat)
	cfg.Observability.MetricsAddr = envOrDefault("METRICS_ADDR", cfg.Observability.MetricsAddr)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnvVars = []string{
	"CONFIG_FILE", "SERVICE_PRINCIPAL", "HTTP_PORT", "GRPC_PORT", "LOG_LEVEL", "LOG_FORMAT", "METRICS_ADDR",
	"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_SAMPLE_RATE_HZ", "STT_INTERIM_RESULTS", "STT_AUDIO_ENCODING",
	"SESSION_WATCHDOG_TIMEOUT", "SESSION_RETRY_BACKOFF", "SESSION_MAX_RETRIES", "SESSION_MAX_SESSIONS", "SESSION_IDLE_TTL",
	"STORE_DRIVER", "STORE_PATH", "DATABASE_URL",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC_TASKS", "KAFKA_TOPIC_NOTICES", "KAFKA_PRINCIPAL",
}

func clearEnv() {
	for _, v := range configEnvVars {
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv()

	cfg := Load()

	// Service defaults
	if cfg.Service.Principal != "svc-voice-tasks" {
		t.Errorf("expected default principal 'svc-voice-tasks', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default http port '8080', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Service.GRPCPort != "50051" {
		t.Errorf("expected default grpc port '50051', got %s", cfg.Service.GRPCPort)
	}

	// STT defaults
	if cfg.STT.Provider != "relay" {
		t.Errorf("expected default STT provider 'relay', got %s", cfg.STT.Provider)
	}
	if cfg.STT.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.STT.LanguageCode)
	}
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.STT.InterimResults)
	}

	// Session defaults
	if cfg.Session.WatchdogTimeout != 18*time.Second {
		t.Errorf("expected default watchdog 18s, got %v", cfg.Session.WatchdogTimeout)
	}
	if cfg.Session.RetryBackoff != 400*time.Millisecond {
		t.Errorf("expected default backoff 400ms, got %v", cfg.Session.RetryBackoff)
	}
	if cfg.Session.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.Session.MaxRetries)
	}
	if cfg.Session.MaxSessions != 100 || cfg.Session.IdleTTL != 10*time.Minute {
		t.Errorf("expected 100 sessions with a 10m idle TTL, got %d and %v", cfg.Session.MaxSessions, cfg.Session.IdleTTL)
	}

	// Store and Kafka defaults
	if cfg.Store.Driver != "file" || cfg.Store.Path != "data/tasks.json" {
		t.Errorf("unexpected store defaults %+v", cfg.Store)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Kafka.TopicTasks != "voice.tasks.created" || cfg.Kafka.TopicNotices != "voice.session.notices" {
		t.Errorf("unexpected topics %s %s", cfg.Kafka.TopicTasks, cfg.Kafka.TopicNotices)
	}

	// Observability defaults
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv()
	os.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	os.Setenv("GRPC_PORT", "9999")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("STT_PROVIDER", "google")
	os.Setenv("STT_LANGUAGE_CODE", "es-ES")
	os.Setenv("STT_SAMPLE_RATE_HZ", "8000")
	os.Setenv("STT_INTERIM_RESULTS", "false")
	os.Setenv("SESSION_WATCHDOG_TIMEOUT", "20s")
	os.Setenv("SESSION_MAX_RETRIES", "5")
	os.Setenv("KAFKA_ENABLED", "true")
	os.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	defer clearEnv()

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.GRPCPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.GRPCPort)
	}
	if cfg.STT.Provider != "google" {
		t.Errorf("expected STT provider 'google', got %s", cfg.STT.Provider)
	}
	if cfg.STT.LanguageCode != "es-ES" {
		t.Errorf("expected language 'es-ES', got %s", cfg.STT.LanguageCode)
	}
	if cfg.STT.SampleRateHz != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults != false {
		t.Errorf("expected interim results false, got %v", cfg.STT.InterimResults)
	}
	if cfg.Session.WatchdogTimeout != 20*time.Second {
		t.Errorf("expected watchdog 20s, got %v", cfg.Session.WatchdogTimeout)
	}
	if cfg.Session.MaxRetries != 5 {
		t.Errorf("expected max retries 5, got %d", cfg.Session.MaxRetries)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected kafka config %+v", cfg.Kafka)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv()
	os.Setenv("STT_SAMPLE_RATE_HZ", "not-a-number")
	os.Setenv("STT_INTERIM_RESULTS", "invalid")
	os.Setenv("SESSION_WATCHDOG_TIMEOUT", "invalid")
	os.Setenv("SESSION_MAX_RETRIES", "invalid")
	defer clearEnv()

	cfg := Load()

	// Should fall back to defaults on parse errors
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults != true {
		t.Errorf("expected default interim results on invalid input, got %v", cfg.STT.InterimResults)
	}
	if cfg.Session.WatchdogTimeout != 18*time.Second {
		t.Errorf("expected default watchdog on invalid input, got %v", cfg.Session.WatchdogTimeout)
	}
	if cfg.Session.MaxRetries != 3 {
		t.Errorf("expected default max retries on invalid input, got %d", cfg.Session.MaxRetries)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	clearEnv()
	os.Setenv("SERVICE_PRINCIPAL", "my-service")
	defer clearEnv()

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestLoadAll_FileThenEnv(t *testing.T) {
	clearEnv()
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
service:
  principal: file-principal
stt:
  provider: mock
session:
  watchdog_timeout: 12s
  max_retries: 2
store:
  driver: memory
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	os.Setenv("CONFIG_FILE", path)
	os.Setenv("SESSION_MAX_RETRIES", "4")
	defer clearEnv()

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if cfg.Service.Principal != "file-principal" || cfg.STT.Provider != "mock" {
		t.Errorf("file values not applied: %+v %+v", cfg.Service, cfg.STT)
	}
	if cfg.Session.WatchdogTimeout != 12*time.Second {
		t.Errorf("expected watchdog from file, got %v", cfg.Session.WatchdogTimeout)
	}
	if cfg.Session.MaxRetries != 4 {
		t.Errorf("environment should override file, got %d", cfg.Session.MaxRetries)
	}
	if cfg.Session.RetryBackoff != 400*time.Millisecond {
		t.Errorf("unset keys keep defaults, got %v", cfg.Session.RetryBackoff)
	}
	if cfg.Kafka.Principal != "file-principal" {
		t.Errorf("expected Kafka principal fallback to file principal, got %s", cfg.Kafka.Principal)
	}
}

func TestLoadFile_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("service:\n  prinicpal: typo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := LoadFile(Defaults(), path); err == nil {
		t.Error("expected unknown key to be rejected")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad provider", func(c *Config) { c.STT.Provider = "whisper" }, "stt.provider"},
		{"bad driver", func(c *Config) { c.Store.Driver = "sqlite" }, "store.driver"},
		{"postgres without url", func(c *Config) { c.Store.Driver = "postgres" }, "database_url"},
		{"negative retries", func(c *Config) { c.Session.MaxRetries = -1 }, "max_retries"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka.brokers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

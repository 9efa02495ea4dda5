package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/history"
	"github.com/torosent/vuload/internal/metrics"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Users != 5 {
		t.Errorf("Users = %d, want 5", cfg.Users)
	}
	if cfg.Mode != metrics.ModeHeadless {
		t.Errorf("Mode = %q, want headless", cfg.Mode)
	}
	if cfg.Retry.Attempts != 3 || cfg.Retry.Delay != time.Second {
		t.Errorf("Retry = %+v, want 3 attempts / 1s", cfg.Retry)
	}
	if cfg.StepTimeout != 5*time.Second || cfg.TerminalTimeout != 20*time.Second {
		t.Errorf("timeouts = %s/%s, want 5s/20s", cfg.StepTimeout, cfg.TerminalTimeout)
	}
	if cfg.History.Backend != config.BackendFile || cfg.History.Path != history.DefaultPath {
		t.Errorf("History = %+v", cfg.History)
	}
	if cfg.GracefulDrain {
		t.Error("GracefulDrain should default to false")
	}
	if cfg.Tracing.SampleRate != 1.0 {
		t.Errorf("Tracing.SampleRate = %g, want 1", cfg.Tracing.SampleRate)
	}
}

func TestLoadPositionalArguments(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"--workflow", "wf.yaml", "10", "headed"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Users != 10 || cfg.Mode != metrics.ModeHeaded {
		t.Errorf("got users=%d mode=%q", cfg.Users, cfg.Mode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestFlagsOverridePositional(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"10", "--users", "3", "--mode", "headless"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Users != 3 || cfg.Mode != metrics.ModeHeadless {
		t.Errorf("got users=%d mode=%q, want flags to win", cfg.Users, cfg.Mode)
	}
}

func TestLoadRejectsBadPositional(t *testing.T) {
	if _, err := config.NewLoader().Load([]string{"many"}); err == nil {
		t.Fatal("expected error for non-numeric numUsers")
	}
}

func TestLoadHelp(t *testing.T) {
	if _, err := config.NewLoader().Load([]string{"--help"}); !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("expected ErrHelpRequested, got %v", err)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vuload.yaml")
	content := `
users: 8
mode: headed
workflow: workflows/coffee-cart.yaml
feeder:
  path: data/customers.csv
retry:
  attempts: 4
  delay: 250ms
step_timeout: 3s
spawn_rate: 2.5
graceful_drain: true
history:
  backend: redis
  redisAddr: localhost:6379
thresholds:
  - errorRate < 5
  - step:checkout < 2000
tracing:
  endpoint: localhost:4317
  insecure: true
  propagate: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--retries", "2"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Users != 8 || cfg.Mode != metrics.ModeHeaded {
		t.Errorf("users/mode = %d/%q", cfg.Users, cfg.Mode)
	}
	if cfg.Retry.Attempts != 2 {
		t.Errorf("Retry.Attempts = %d, want flag value 2", cfg.Retry.Attempts)
	}
	if cfg.Retry.Delay != 250*time.Millisecond {
		t.Errorf("Retry.Delay = %s", cfg.Retry.Delay)
	}
	if cfg.StepTimeout != 3*time.Second || cfg.SpawnRate != 2.5 || !cfg.GracefulDrain {
		t.Errorf("unexpected run settings: %+v", cfg)
	}
	if cfg.History.Backend != config.BackendRedis || cfg.History.RedisAddr != "localhost:6379" {
		t.Errorf("History = %+v", cfg.History)
	}
	if cfg.History.RedisKey != history.DefaultRedisKey {
		t.Errorf("RedisKey = %q, want default", cfg.History.RedisKey)
	}
	if len(cfg.Thresholds) != 2 {
		t.Errorf("Thresholds = %q", cfg.Thresholds)
	}
	if !cfg.Tracing.Insecure || cfg.Tracing.ShouldPropagate() {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Feeder.Path != "data/customers.csv" {
		t.Errorf("Feeder = %+v", cfg.Feeder)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vuload.json")
	if err := os.WriteFile(path, []byte(`{"users": 2, "workflow": "wf.yaml", "terminal_timeout": "30s"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Users != 2 || cfg.TerminalTimeout != 30*time.Second || cfg.Workflow != "wf.yaml" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vuload.yaml")
	if err := os.WriteFile(path, []byte("users: 8\nhistory:\n  path: a.json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VULOAD_USERS", "11")
	t.Setenv("VULOAD_HISTORY_PATH", "b.json")

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Users != 11 {
		t.Errorf("Users = %d, want env value 11", cfg.Users)
	}
	if cfg.History.Path != "b.json" {
		t.Errorf("History.Path = %q, want env value", cfg.History.Path)
	}
}

func TestValidateAggregatesIssues(t *testing.T) {
	cfg := config.Defaults()
	cfg.Users = 0
	cfg.Mode = "visible"
	cfg.Retry.Attempts = 0
	cfg.StepTimeout = 0
	cfg.SpawnRate = -1
	cfg.History.Backend = "s3"
	cfg.Feeder.Type = "xml"
	cfg.Thresholds = []string{"latency < 5"}
	cfg.Tracing.Protocol = "udp"
	cfg.LogFormat = "xml"

	err := cfg.Validate()
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{"users", "mode", "workflow", "retry.attempts", "step_timeout", "spawn_rate",
		"history.backend", "feeder.type", "thresholds", "tracing.protocol", "log_format"}
	msg := verr.Error()
	for _, w := range want {
		if !strings.Contains(msg, w) {
			t.Errorf("expected issue mentioning %q in %q", w, msg)
		}
	}
}

func TestValidateRedisNeedsAddress(t *testing.T) {
	cfg := config.Defaults()
	cfg.History.Backend = config.BackendRedis
	if err := cfg.ValidateHistory(); err == nil || !strings.Contains(err.Error(), "redis_addr") {
		t.Fatalf("expected redis_addr issue, got %v", err)
	}
	cfg.History.RedisAddr = "localhost:6379"
	if err := cfg.ValidateHistory(); err != nil {
		t.Errorf("ValidateHistory() error = %v", err)
	}
}

func TestTracingConfigEnabled(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if (config.TracingConfig{}).Enabled() {
		t.Error("tracing should be disabled without an endpoint")
	}
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	if !(config.TracingConfig{}).Enabled() {
		t.Error("tracing should follow OTEL_EXPORTER_OTLP_ENDPOINT")
	}
}

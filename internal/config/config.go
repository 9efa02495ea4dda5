package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torosent/vuload/internal/history"
	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/threshold"
)

// History backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Defaults.
const (
	DefaultUsers           = 5
	DefaultRetryAttempts   = 3
	DefaultRetryDelay      = time.Second
	DefaultStepTimeout     = 5 * time.Second
	DefaultTerminalTimeout = 20 * time.Second
	DefaultResultsDir      = "performance-results"
)

type Config struct {
	Users              int           `mapstructure:"users"`
	Mode               metrics.Mode  `mapstructure:"mode"`
	Workflow           string        `mapstructure:"workflow"`
	Feeder             FeederConfig  `mapstructure:"feeder"`
	Retry              RetryConfig   `mapstructure:"retry"`
	StepTimeout        time.Duration `mapstructure:"step_timeout"`
	TerminalTimeout    time.Duration `mapstructure:"terminal_timeout"`
	SpawnRate          float64       `mapstructure:"spawn_rate"`
	GracefulDrain      bool          `mapstructure:"graceful_drain"`
	History            HistoryConfig `mapstructure:"history"`
	ResultsDir         string        `mapstructure:"results_dir"`
	HTMLOutput         string        `mapstructure:"html_output"`
	CSVOutput          string        `mapstructure:"csv_output"`
	JSONOutput         bool          `mapstructure:"json_output"`
	PrometheusTextfile string        `mapstructure:"prometheus_textfile"`
	Dashboard          bool          `mapstructure:"dashboard"`
	Thresholds         []string      `mapstructure:"thresholds"`
	Tracing            TracingConfig `mapstructure:"tracing"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFormat          string        `mapstructure:"log_format"`
	ConfigFile         string        `mapstructure:"-"`
}

type FeederConfig struct {
	Path string `mapstructure:"path"`
	Type string `mapstructure:"type"` // "csv" or "json"
}

type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

type HistoryConfig struct {
	Backend   string `mapstructure:"backend"` // "file" or "redis"
	Path      string `mapstructure:"path"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisKey  string `mapstructure:"redis_key"`
}

// TracingConfig configures OTLP span export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an OTLP endpoint is configured, either directly or
// through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return t.Endpoint != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate defaults to true once tracing is enabled.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return true
}

// Defaults returns a Config populated with every default value.
func Defaults() *Config {
	return &Config{
		Users:           DefaultUsers,
		Mode:            metrics.ModeHeadless,
		Retry:           RetryConfig{Attempts: DefaultRetryAttempts, Delay: DefaultRetryDelay},
		StepTimeout:     DefaultStepTimeout,
		TerminalTimeout: DefaultTerminalTimeout,
		History: HistoryConfig{
			Backend:  BackendFile,
			Path:     history.DefaultPath,
			RedisKey: history.DefaultRedisKey,
		},
		ResultsDir: DefaultResultsDir,
		Tracing: TracingConfig{
			Protocol:    "grpc",
			SampleRate:  1.0,
			ServiceName: "vuload",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks everything a load test run needs.
func (c Config) Validate() error {
	var issues []string

	if c.Users < 1 {
		issues = append(issues, "users must be a positive integer")
	}
	if !c.Mode.Valid() {
		issues = append(issues, fmt.Sprintf("mode must be %q or %q, got %q", metrics.ModeHeadless, metrics.ModeHeaded, c.Mode))
	}
	if strings.TrimSpace(c.Workflow) == "" {
		issues = append(issues, "workflow is required")
	}
	if c.Retry.Attempts < 1 {
		issues = append(issues, "retry.attempts must be at least 1")
	}
	if c.Retry.Delay < 0 {
		issues = append(issues, "retry.delay must not be negative")
	}
	if c.StepTimeout <= 0 {
		issues = append(issues, "step_timeout must be greater than zero")
	}
	if c.TerminalTimeout <= 0 {
		issues = append(issues, "terminal_timeout must be greater than zero")
	}
	if c.SpawnRate < 0 {
		issues = append(issues, "spawn_rate must not be negative")
	}
	if _, err := threshold.ParseMultiple(c.Thresholds); err != nil {
		issues = append(issues, fmt.Sprintf("thresholds: %v", err))
	}
	issues = append(issues, validateFeederConfig(c.Feeder)...)
	issues = append(issues, c.commonIssues()...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// ValidateHistory checks only what reading history needs.
func (c Config) ValidateHistory() error {
	if issues := c.commonIssues(); len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func (c Config) commonIssues() []string {
	var issues []string
	issues = append(issues, validateHistoryConfig(c.History)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		issues = append(issues, fmt.Sprintf("log_level: %v", err))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log_format must be text or json, got %q", c.LogFormat))
	}
	return issues
}

func validateFeederConfig(feeder FeederConfig) []string {
	var issues []string
	switch strings.ToLower(feeder.Type) {
	case "", "csv", "json":
	default:
		issues = append(issues, fmt.Sprintf("feeder.type must be csv or json, got %q", feeder.Type))
	}
	if feeder.Type != "" && strings.TrimSpace(feeder.Path) == "" {
		issues = append(issues, "feeder.path is required when feeder.type is set")
	}
	return issues
}

func validateHistoryConfig(h HistoryConfig) []string {
	var issues []string
	switch h.Backend {
	case BackendFile:
		if strings.TrimSpace(h.Path) == "" {
			issues = append(issues, "history.path is required for the file backend")
		}
	case BackendRedis:
		if strings.TrimSpace(h.RedisAddr) == "" {
			issues = append(issues, "history.redis_addr is required for the redis backend")
		}
		if strings.TrimSpace(h.RedisKey) == "" {
			issues = append(issues, "history.redis_key must not be empty")
		}
	default:
		issues = append(issues, fmt.Sprintf("history.backend must be file or redis, got %q", h.Backend))
	}
	return issues
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol must be grpc or http, got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing.sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}

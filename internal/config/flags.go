package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/torosent/vuload/internal/metrics"
)

// RegisterFlags adds every setting flag to flags. Defaults shown in help
// come from Defaults; only explicitly changed flags override other sources.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Defaults()

	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Run flags
	flags.IntP("users", "u", d.Users, "Number of concurrent virtual users")
	flags.StringP("mode", "m", string(d.Mode), "Execution mode: headless or headed")
	flags.StringP("workflow", "w", "", "Path to the workflow YAML file")
	flags.String("feeder-path", "", "Path to CSV or JSON file with per-user form data")
	flags.String("feeder-type", "", "Type of feeder file: 'csv' or 'json'")
	flags.Int("retries", d.Retry.Attempts, "Attempts per retryable step")
	flags.Duration("retry-delay", d.Retry.Delay, "Fixed delay between step attempts")
	flags.Duration("step-timeout", d.StepTimeout, "Per-attempt timeout for ordinary steps")
	flags.Duration("terminal-timeout", d.TerminalTimeout, "Per-attempt timeout for the terminal success step")
	flags.Float64("spawn-rate", 0, "Users started per second (0 starts everyone at once)")
	flags.Bool("graceful-drain", false, "On interrupt, let users stop between steps instead of exiting immediately")

	// History flags
	flags.String("history-backend", d.History.Backend, "History backend: 'file' or 'redis'")
	flags.String("history-path", d.History.Path, "History document path for the file backend")
	flags.String("redis-addr", "", "Redis address for the redis history backend")
	flags.String("redis-key", d.History.RedisKey, "Redis key holding the history document")

	// Output flags
	flags.String("results-dir", d.ResultsDir, "Directory for per-run artifacts")
	flags.String("html-output", "", "Also write the HTML run report to this path")
	flags.String("csv-output", "", "Also write per-user results as CSV to this path")
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.String("prometheus-textfile", "", "Write run metrics in Prometheus text format to this path")
	flags.Bool("dashboard", false, "Show live terminal dashboard while users run")
	flags.StringSlice("threshold", nil, "Report-only threshold (repeatable, e.g. 'errorRate < 5')")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.String("tracing-protocol", d.Tracing.Protocol, "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", d.Tracing.SampleRate, "Fraction of runs to sample (0.0-1.0)")
	flags.String("tracing-service-name", d.Tracing.ServiceName, "service.name resource attribute")
	flags.Bool("tracing-propagate", true, "Inject W3C trace context into workflow requests")

	// Logging flags
	flags.String("log-level", d.LogLevel, "Log level: trace, debug, info, warn, error")
	flags.String("log-format", d.LogFormat, "Log format: text or json")
}

// applyPositional reads the "[numUsers] [mode]" arguments of the run command.
func applyPositional(cfg *Config, args []string) error {
	if len(args) > 2 {
		return fmt.Errorf("expected at most 2 arguments ([numUsers] [mode]), got %d", len(args))
	}
	if len(args) > 0 {
		n, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil || n < 1 {
			return fmt.Errorf("numUsers must be a positive integer, got %q", args[0])
		}
		cfg.Users = n
	}
	if len(args) > 1 {
		cfg.Mode = metrics.Mode(strings.ToLower(strings.TrimSpace(args[1])))
	}
	return nil
}

// applyFlagOverrides applies explicitly set flags over every other source.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	str := func(name string, dst *string) error {
		if !fs.Changed(name) {
			return nil
		}
		v, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(v)
		return nil
	}
	boolean := func(name string, dst *bool) error {
		if !fs.Changed(name) {
			return nil
		}
		v, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}

	var mode string
	for name, dst := range map[string]*string{
		"workflow":             &cfg.Workflow,
		"feeder-path":          &cfg.Feeder.Path,
		"feeder-type":          &cfg.Feeder.Type,
		"history-backend":      &cfg.History.Backend,
		"history-path":         &cfg.History.Path,
		"redis-addr":           &cfg.History.RedisAddr,
		"redis-key":            &cfg.History.RedisKey,
		"results-dir":          &cfg.ResultsDir,
		"html-output":          &cfg.HTMLOutput,
		"csv-output":           &cfg.CSVOutput,
		"prometheus-textfile":  &cfg.PrometheusTextfile,
		"tracing-endpoint":     &cfg.Tracing.Endpoint,
		"tracing-protocol":     &cfg.Tracing.Protocol,
		"tracing-service-name": &cfg.Tracing.ServiceName,
		"log-level":            &cfg.LogLevel,
		"log-format":           &cfg.LogFormat,
		"mode":                 &mode,
	} {
		if err := str(name, dst); err != nil {
			return err
		}
	}
	if mode != "" {
		cfg.Mode = metrics.Mode(strings.ToLower(mode))
	}

	for name, dst := range map[string]*bool{
		"graceful-drain":   &cfg.GracefulDrain,
		"json-output":      &cfg.JSONOutput,
		"dashboard":        &cfg.Dashboard,
		"tracing-insecure": &cfg.Tracing.Insecure,
	} {
		if err := boolean(name, dst); err != nil {
			return err
		}
	}
	if fs.Changed("tracing-propagate") {
		v, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &v
	}

	if fs.Changed("users") {
		val, err := fs.GetInt("users")
		if err != nil {
			return err
		}
		cfg.Users = val
	}
	if fs.Changed("retries") {
		val, err := fs.GetInt("retries")
		if err != nil {
			return err
		}
		cfg.Retry.Attempts = val
	}
	if fs.Changed("retry-delay") {
		val, err := fs.GetDuration("retry-delay")
		if err != nil {
			return err
		}
		cfg.Retry.Delay = val
	}
	if fs.Changed("step-timeout") {
		val, err := fs.GetDuration("step-timeout")
		if err != nil {
			return err
		}
		cfg.StepTimeout = val
	}
	if fs.Changed("terminal-timeout") {
		val, err := fs.GetDuration("terminal-timeout")
		if err != nil {
			return err
		}
		cfg.TerminalTimeout = val
	}
	if fs.Changed("spawn-rate") {
		val, err := fs.GetFloat64("spawn-rate")
		if err != nil {
			return err
		}
		cfg.SpawnRate = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/torosent/vuload/internal/metrics"
)

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// EnvPrefix prefixes environment overrides, e.g. VULOAD_HISTORY_REDIS_ADDR.
const EnvPrefix = "VULOAD"

// settingKeys are the dotted keys that may also come from the environment.
var settingKeys = []string{
	"users", "mode", "workflow",
	"feeder.path", "feeder.type",
	"retry.attempts", "retry.delay",
	"step_timeout", "terminal_timeout", "spawn_rate", "graceful_drain",
	"history.backend", "history.path", "history.redis_addr", "history.redis_key",
	"results_dir", "html_output", "csv_output", "json_output", "prometheus_textfile",
	"dashboard", "thresholds",
	"tracing.endpoint", "tracing.protocol", "tracing.insecure", "tracing.sample_rate",
	"tracing.service_name", "tracing.propagate",
	"log_level", "log_format",
}

// Loader handles loading configuration from files, the environment and
// command-line arguments.
type Loader struct{}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses args with a fresh flag set. Arguments left after flag parsing
// are the positional "[numUsers] [mode]".
func (l Loader) Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("vuload", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, ErrHelpRequested
		}
		return nil, err
	}
	return l.FromFlags(fs, fs.Args())
}

// FromFlags builds a Config from an already parsed flag set, such as the one
// cobra hands a command.
func (Loader) FromFlags(fs *pflag.FlagSet, positional []string) (*Config, error) {
	configPath := ""
	if fs.Lookup("config") != nil {
		v, err := fs.GetString("config")
		if err != nil {
			return nil, err
		}
		configPath = strings.TrimSpace(v)
	}

	v := viper.New()
	for _, key := range settingKeys {
		env := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath
	if err := applyConfigSettings(cfg, v.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyPositional(cfg, positional); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, fs); err != nil {
		return nil, err
	}

	cfg.Mode = metrics.Mode(strings.ToLower(string(cfg.Mode)))
	cfg.History.Backend = strings.ToLower(strings.TrimSpace(cfg.History.Backend))
	cfg.Feeder.Type = strings.ToLower(cfg.Feeder.Type)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	return cfg, nil
}

// applyConfigSettings applies file and environment settings to cfg.
func applyConfigSettings(cfg *Config, settings map[string]any) error {
	if len(settings) == 0 {
		return nil
	}

	scalars := []struct {
		keys  []string
		apply func(any) error
	}{
		{[]string{"users"}, intInto(&cfg.Users)},
		{[]string{"mode"}, func(raw any) error {
			s, err := asString(raw)
			if err == nil && s != "" {
				cfg.Mode = metrics.Mode(strings.TrimSpace(s))
			}
			return err
		}},
		{[]string{"workflow"}, stringInto(&cfg.Workflow)},
		{[]string{"step_timeout", "steptimeout"}, durationInto(&cfg.StepTimeout)},
		{[]string{"terminal_timeout", "terminaltimeout"}, durationInto(&cfg.TerminalTimeout)},
		{[]string{"spawn_rate", "spawnrate"}, floatInto(&cfg.SpawnRate)},
		{[]string{"graceful_drain", "gracefuldrain"}, boolInto(&cfg.GracefulDrain)},
		{[]string{"results_dir", "resultsdir"}, stringInto(&cfg.ResultsDir)},
		{[]string{"html_output", "htmloutput"}, stringInto(&cfg.HTMLOutput)},
		{[]string{"csv_output", "csvoutput"}, stringInto(&cfg.CSVOutput)},
		{[]string{"json_output", "jsonoutput"}, boolInto(&cfg.JSONOutput)},
		{[]string{"prometheus_textfile", "prometheustextfile"}, stringInto(&cfg.PrometheusTextfile)},
		{[]string{"dashboard"}, boolInto(&cfg.Dashboard)},
		{[]string{"thresholds"}, func(raw any) error {
			vals, err := asStringSlice(raw)
			if err == nil && len(vals) > 0 {
				cfg.Thresholds = vals
			}
			return err
		}},
		{[]string{"log_level", "loglevel"}, stringInto(&cfg.LogLevel)},
		{[]string{"log_format", "logformat"}, stringInto(&cfg.LogFormat)},
	}
	for _, s := range scalars {
		raw, ok := lookupSetting(settings, s.keys...)
		if !ok || raw == nil {
			continue
		}
		if err := s.apply(raw); err != nil {
			return fmt.Errorf("%s: %w", s.keys[0], err)
		}
	}

	sections := []struct {
		key   string
		apply func(map[string]any) error
	}{
		{"feeder", func(m map[string]any) error {
			return applySection(m, map[string]func(any) error{
				"path": stringInto(&cfg.Feeder.Path),
				"type": stringInto(&cfg.Feeder.Type),
			})
		}},
		{"retry", func(m map[string]any) error {
			return applySection(m, map[string]func(any) error{
				"attempts": intInto(&cfg.Retry.Attempts),
				"delay":    durationInto(&cfg.Retry.Delay),
			})
		}},
		{"history", func(m map[string]any) error {
			return applySection(m, map[string]func(any) error{
				"backend":    stringInto(&cfg.History.Backend),
				"path":       stringInto(&cfg.History.Path),
				"redis_addr": stringInto(&cfg.History.RedisAddr),
				"redis_key":  stringInto(&cfg.History.RedisKey),
			})
		}},
		{"tracing", func(m map[string]any) error {
			return applySection(m, map[string]func(any) error{
				"endpoint":     stringInto(&cfg.Tracing.Endpoint),
				"protocol":     stringInto(&cfg.Tracing.Protocol),
				"insecure":     boolInto(&cfg.Tracing.Insecure),
				"sample_rate":  floatInto(&cfg.Tracing.SampleRate),
				"service_name": stringInto(&cfg.Tracing.ServiceName),
				"propagate": func(raw any) error {
					b, err := asBool(raw)
					if err == nil {
						cfg.Tracing.Propagate = &b
					}
					return err
				},
			})
		}},
	}
	for _, s := range sections {
		raw, ok := lookupSetting(settings, s.key)
		if !ok || raw == nil {
			continue
		}
		m, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.key, err)
		}
		if err := s.apply(m); err != nil {
			return fmt.Errorf("%s.%w", s.key, err)
		}
	}
	return nil
}

// applySection applies known keys of a nested section. Keys are also
// matched without underscores so "redisAddr" works in YAML files.
func applySection(m map[string]any, fields map[string]func(any) error) error {
	for key, apply := range fields {
		raw, ok := lookupSetting(m, key, strings.ReplaceAll(key, "_", ""))
		if !ok || raw == nil {
			continue
		}
		if err := apply(raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func stringInto(dst *string) func(any) error {
	return func(raw any) error {
		s, err := asString(raw)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(s)
		return nil
	}
}

func intInto(dst *int) func(any) error {
	return func(raw any) error {
		n, err := asInt(raw)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func floatInto(dst *float64) func(any) error {
	return func(raw any) error {
		f, err := asFloat64(raw)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func boolInto(dst *bool) func(any) error {
	return func(raw any) error {
		b, err := asBool(raw)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func durationInto(dst *time.Duration) func(any) error {
	return func(raw any) error {
		d, err := asDuration(raw)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}
}

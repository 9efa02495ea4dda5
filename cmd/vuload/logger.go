package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/torosent/vuload/internal/config"
)

// newLogger builds the shared logger. LOG_LEVEL is honoured unless
// --log-level was given explicitly.
func newLogger(cfg *config.Config, flags *pflag.FlagSet, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	levelName := cfg.LogLevel
	if env := os.Getenv("LOG_LEVEL"); env != "" && !flags.Changed("log-level") {
		levelName = env
	}
	level, err := logrus.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelName, err)
	}
	logger.SetLevel(level)

	switch cfg.LogFormat {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/dashboard"
	"github.com/torosent/vuload/internal/feeder"
	"github.com/torosent/vuload/internal/history"
	"github.com/torosent/vuload/internal/httpflow"
	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/output"
	"github.com/torosent/vuload/internal/runner"
	"github.com/torosent/vuload/internal/threshold"
	"github.com/torosent/vuload/internal/tracing"
	"github.com/torosent/vuload/internal/workflow"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
	summaryHTMLFile  = "performance-summary.html"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [numUsers] [mode]",
		Short: "Run a workflow with concurrent virtual users and record the run",
		Long: `Run launches numUsers virtual users (default 5) at once, each walking the
workflow in its own isolated session. mode is headless (default) or headed.
The exit status is zero whenever the run completes, however many users failed.`,
		Example: `  vuload run 10 --workflow workflows/coffee-cart.yaml
  vuload run 25 headed -w workflows/coffee-cart.yaml --threshold "errorRate < 5"`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(cfg, cmd.Flags(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runLoadTest(cmd.Context(), cfg, logger, cmd.OutOrStdout())
		},
	}
}

func runLoadTest(ctx context.Context, cfg *config.Config, logger *logrus.Logger, out io.Writer) error {
	wf, err := workflow.Load(cfg.Workflow)
	if err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	var feed feeder.Feeder
	if cfg.Feeder.Path != "" {
		feed, err = feeder.Open(cfg.Feeder.Path, cfg.Feeder.Type)
		if err != nil {
			return err
		}
		defer feed.Close()
	}

	provider, err := tracing.Init(ctx, cfg.Tracing, tracing.Run{
		Workflow: wf.Name,
		Mode:     string(cfg.Mode),
		Users:    cfg.Users,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	executor, err := httpflow.New(wf, httpflow.Options{
		Feeder:    feed,
		Propagate: provider.ShouldPropagate(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	collector := metrics.NewCollector(cfg.Users)
	orch, err := runner.New(runner.Options{
		Users:    cfg.Users,
		Mode:     cfg.Mode,
		Workflow: wf,
		Executor: executor,
		Retry: runner.RetryPolicy{
			MaxAttempts: cfg.Retry.Attempts,
			Delay:       cfg.Retry.Delay,
		},
		StepTimeout:     cfg.StepTimeout,
		TerminalTimeout: cfg.TerminalTimeout,
		SpawnRate:       cfg.SpawnRate,
		GracefulDrain:   cfg.GracefulDrain,
		Logger:          logger,
		Tracer:          provider.Tracer(),
		OnUserDone:      collector.Record,
	})
	if err != nil {
		return err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	stopLive, err := startLiveView(cfg, wf, collector, cancelRun, out)
	if err != nil {
		return err
	}
	var stopOnce sync.Once
	stopView := func() { stopOnce.Do(stopLive) }

	stopExit := func() bool { return false }
	if !cfg.GracefulDrain {
		stopExit = context.AfterFunc(runCtx, func() {
			stopView()
			logger.Warn("Interrupted, exiting without recording the run")
			exitFunc(130)
		})
	}

	collector.Start()
	report := orch.Run(runCtx)
	stopExit()
	stopView()

	thresholdResults := threshold.NewEvaluator(thresholds).Evaluate(report)

	// Persisting the run is the one output whose failure fails the command.
	ctx = context.WithoutCancel(ctx)
	if err := store.AddRun(ctx, report); err != nil {
		return fmt.Errorf("save performance history: %w", err)
	}

	writeArtifacts(ctx, cfg, report, thresholdResults, store.Snapshot(), logger)
	if err := writeRequestedOutputs(cfg, report, thresholdResults); err != nil {
		return err
	}

	if cfg.JSONOutput {
		return output.PrintJSONReport(out, struct {
			Report     metrics.RunReport  `json:"report"`
			Thresholds []threshold.Result `json:"thresholds,omitempty"`
			Trends     []history.Change   `json:"trends"`
		}{report.WithoutDiagnostics(), thresholdResults, store.Summary().Trends})
	}

	scheme := output.SchemeFor(out != os.Stdout)
	output.PrintReport(out, report, thresholdResults, scheme)
	output.PrintTrends(out, store.Summary().Trends, scheme)
	return nil
}

// startLiveView starts the dashboard or the progress line and returns the
// function that stops it.
func startLiveView(cfg *config.Config, wf *workflow.Workflow, collector *metrics.Collector, cancel context.CancelFunc, out io.Writer) (func(), error) {
	switch {
	case cfg.Dashboard:
		dash, err := dashboard.New(collector, dashboard.RunInfo{
			Workflow:    wf.Name,
			Users:       cfg.Users,
			Mode:        cfg.Mode,
			SpawnRate:   cfg.SpawnRate,
			Retries:     cfg.Retry.Attempts,
			StepTimeout: cfg.StepTimeout,
			ConfigFile:  cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return nil, err
		}
		dash.Start()
		return dash.Stop, nil
	case cfg.JSONOutput:
		return func() {}, nil
	default:
		progress := output.NewProgressReporter(collector, progressInterval, out)
		progress.Start()
		return progress.Stop, nil
	}
}

// writeArtifacts writes the run directory and the history summary page.
// Failures are logged; the run is already recorded.
func writeArtifacts(ctx context.Context, cfg *config.Config, report metrics.RunReport, results []threshold.Result, doc history.Document, logger *logrus.Logger) {
	runDir, err := output.NewArtifactWriter(cfg.ResultsDir, logger).Write(ctx, report, results)
	if err != nil {
		logger.WithError(err).WithField("dir", runDir).Error("Failed to write run artifacts")
	}

	summaryPath := filepath.Join(cfg.ResultsDir, summaryHTMLFile)
	if err := writeFileWith(summaryPath, func(w io.Writer) error {
		return output.GenerateSummaryHTML(w, doc)
	}); err != nil {
		logger.WithError(err).Error("Failed to write history summary")
		return
	}
	logger.WithFields(logrus.Fields{"run_dir": runDir, "summary": summaryPath}).Info("Reports written")
}

// writeRequestedOutputs writes the reports asked for by explicit paths.
func writeRequestedOutputs(cfg *config.Config, report metrics.RunReport, results []threshold.Result) error {
	if cfg.HTMLOutput != "" {
		if err := writeFileWith(cfg.HTMLOutput, func(w io.Writer) error {
			return output.GenerateHTMLReport(w, report, results)
		}); err != nil {
			return fmt.Errorf("html output: %w", err)
		}
	}
	if cfg.CSVOutput != "" {
		if err := writeFileWith(cfg.CSVOutput, func(w io.Writer) error {
			return output.WriteCSVReport(w, report)
		}); err != nil {
			return fmt.Errorf("csv output: %w", err)
		}
	}
	if cfg.PrometheusTextfile != "" {
		if err := output.WritePrometheusTextfile(cfg.PrometheusTextfile, report); err != nil {
			return fmt.Errorf("prometheus textfile: %w", err)
		}
	}
	return nil
}

func writeFileWith(path string, render func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/threshold"
)

// Artifact file names inside a run directory.
const (
	ReportJSONFile = "performance-report.json"
	ReportCSVFile  = "performance-report.csv"
	ReportHTMLFile = "performance-report.html"
	DiagnosticFile = "diagnostic.json"
	StepLogFile    = "steps.log"
)

// ArtifactWriter lays out the evidence of one run under
// <dir>/run-<id>/: the report in JSON, CSV and HTML, a user-<n>/steps.log for
// every failed user and a user-<n>/failure/ directory per user that left a
// failure snapshot.
type ArtifactWriter struct {
	dir    string
	logger logrus.FieldLogger
}

// NewArtifactWriter creates a writer rooted at dir.
func NewArtifactWriter(dir string, logger logrus.FieldLogger) *ArtifactWriter {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &ArtifactWriter{dir: dir, logger: logger}
}

// RunDir returns the directory artifacts of report are written to.
func (a *ArtifactWriter) RunDir(report metrics.RunReport) string {
	return filepath.Join(a.dir, "run-"+report.ID)
}

// Write renders every artifact concurrently and returns the run directory.
// The JSON report omits failure snapshots; they live in the user directories.
func (a *ArtifactWriter) Write(ctx context.Context, report metrics.RunReport, thresholds []threshold.Result) (string, error) {
	if report.ID == "" {
		return "", fmt.Errorf("run report has no id")
	}
	runDir := a.RunDir(report)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return writeFile(ctx, filepath.Join(runDir, ReportJSONFile), func(w io.Writer) error {
			return PrintJSONReport(w, report.WithoutDiagnostics())
		})
	})
	g.Go(func() error {
		return writeFile(ctx, filepath.Join(runDir, ReportCSVFile), func(w io.Writer) error {
			return WriteCSVReport(w, report)
		})
	})
	g.Go(func() error {
		return writeFile(ctx, filepath.Join(runDir, ReportHTMLFile), func(w io.Writer) error {
			return GenerateHTMLReport(w, report, thresholds)
		})
	})
	for _, r := range report.Results {
		if !r.Success && len(r.Log) > 0 {
			g.Go(func() error {
				path := filepath.Join(a.userDir(runDir, r.User), StepLogFile)
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return fmt.Errorf("user %d: create user directory: %w", r.User, err)
				}
				return writeFile(ctx, path, func(w io.Writer) error {
					return WriteStepLog(w, r.Log)
				})
			})
		}
		if r.FailureState != nil {
			g.Go(func() error {
				return a.writeFailure(ctx, runDir, r)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return runDir, err
	}
	a.logger.WithFields(logrus.Fields{"run_id": report.ID, "dir": runDir}).Debug("run artifacts written")
	return runDir, nil
}

func (a *ArtifactWriter) writeFailure(ctx context.Context, runDir string, r metrics.UserResult) error {
	dir := filepath.Join(a.userDir(runDir, r.User), "failure")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("user %d: create failure directory: %w", r.User, err)
	}
	diag := *r.FailureState
	if diag.Markup != "" {
		name := markupFile(diag.ContentType)
		err := writeFile(ctx, filepath.Join(dir, name), func(w io.Writer) error {
			_, err := io.Copy(w, strings.NewReader(diag.Markup))
			return err
		})
		if err != nil {
			return fmt.Errorf("user %d: %w", r.User, err)
		}
		diag.Markup = ""
	}
	err := writeFile(ctx, filepath.Join(dir, DiagnosticFile), func(w io.Writer) error {
		return PrintJSONReport(w, struct {
			User  int                 `json:"user"`
			Error string              `json:"error"`
			State *metrics.Diagnostic `json:"failureState"`
		}{r.User, r.Error, &diag})
	})
	if err != nil {
		return fmt.Errorf("user %d: %w", r.User, err)
	}
	return nil
}

func (a *ArtifactWriter) userDir(runDir string, user int) string {
	return filepath.Join(runDir, "user-"+strconv.Itoa(user))
}

// markupFile picks the evidence file name for a captured body.
func markupFile(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "html"):
		return "page.html"
	case strings.Contains(ct, "json"):
		return "body.json"
	default:
		return "body.txt"
	}
}

// writeFile renders into memory before touching path.
func writeFile(ctx context.Context, path string, render func(io.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/demotarget"
	"github.com/torosent/vuload/internal/output"
)

const testWorkflow = `
name: coffee-cart
base_url: %s
steps:
  - name: navigation
    action: navigate
    url: /
    text: Coffee cart
  - name: add espresso
    action: click
    url: /cart/add?item=espresso
    method: POST
    timing: addToCart
  - name: checkout
    action: fill
    url: /checkout
    status: 201
    form:
      name: "{{name}}"
      email: "{{email}}"
    extract:
      - name: order
        json_path: $.order
  - name: success
    action: wait
    url: /order/status?order={{order}}
    json_path: status
    equals: confirmed
    interval: 10ms
    terminal: true
`

type testEnv struct {
	dir      string
	workflow string
	feeder   string
	history  string
	results  string
}

func newTestEnv(t *testing.T, opts demotarget.Options) testEnv {
	t.Helper()
	srv := httptest.NewServer(demotarget.New(opts).Handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	env := testEnv{
		dir:      dir,
		workflow: filepath.Join(dir, "workflow.yaml"),
		feeder:   filepath.Join(dir, "customers.csv"),
		history:  filepath.Join(dir, "results", "history.json"),
		results:  filepath.Join(dir, "results"),
	}
	wf := strings.Replace(testWorkflow, "%s", srv.URL, 1)
	if err := os.WriteFile(env.workflow, []byte(wf), 0o644); err != nil {
		t.Fatal(err)
	}
	csv := "name,email\nAda,ada@example.com\nGrace,grace@example.com\n"
	if err := os.WriteFile(env.feeder, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e testEnv) args(extra ...string) []string {
	return append([]string{
		"--history-path", e.history,
		"--results-dir", e.results,
		"--log-level", "error",
	}, extra...)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunRecordsHistoryAndArtifacts(t *testing.T) {
	env := newTestEnv(t, demotarget.Options{ConfirmAfter: 1})

	out, err := execute(t, append([]string{"run", "3"}, env.args(
		"--workflow", env.workflow,
		"--feeder-path", env.feeder,
		"--retry-delay", "10ms",
		"--threshold", "successRate >= 100",
		"--csv-output", filepath.Join(env.dir, "users.csv"),
	)...)...)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	for _, want := range []string{"Load Test Results", "Users:             3", "Success Rate:      100.00%", "PASS  successRate >= 100"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	if _, err := os.Stat(env.history); err != nil {
		t.Fatalf("history not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.results, summaryHTMLFile)); err != nil {
		t.Errorf("summary page not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "users.csv")); err != nil {
		t.Errorf("csv output not written: %v", err)
	}
	runDirs, _ := filepath.Glob(filepath.Join(env.results, "run-*", output.ReportJSONFile))
	if len(runDirs) != 1 {
		t.Errorf("expected one run directory, found %v", runDirs)
	}

	// A second run at another load level feeds trends and comparison.
	if _, err := execute(t, append([]string{"run", "2"}, env.args(
		"--workflow", env.workflow,
		"--feeder-path", env.feeder,
		"--json-output",
	)...)...); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	out, err = execute(t, append([]string{"trends"}, env.args("--json-output")...)...)
	if err != nil {
		t.Fatalf("trends failed: %v", err)
	}
	var summary struct {
		TotalRuns   int            `json:"totalRuns"`
		ByUserCount map[string]int `json:"byUserCount"`
		Trends      []struct {
			Metric string `json:"metric"`
		} `json:"trends"`
	}
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode trends: %v\n%s", err, out)
	}
	if summary.TotalRuns != 2 || summary.ByUserCount["3"] != 1 || summary.ByUserCount["2"] != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
	if len(summary.Trends) == 0 {
		t.Error("expected trends after two runs")
	}

	out, err = execute(t, append([]string{"compare"}, env.args()...)...)
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	if !strings.Contains(out, "2 users") || !strings.Contains(out, "3 users") {
		t.Errorf("comparison should list both load levels:\n%s", out)
	}
}

func TestRunWithFailingUsersStillSucceeds(t *testing.T) {
	env := newTestEnv(t, demotarget.Options{ConfirmAfter: 1_000_000})

	out, err := execute(t, append([]string{"run", "2", "headless"}, env.args(
		"--workflow", env.workflow,
		"--feeder-path", env.feeder,
		"--retries", "1",
		"--terminal-timeout", "150ms",
	)...)...)
	if err != nil {
		t.Fatalf("a run with failed users must not fail the command: %v", err)
	}
	if !strings.Contains(out, "Success Rate:      0.00%") {
		t.Errorf("expected every user to fail:\n%s", out)
	}

	evidence, _ := filepath.Glob(filepath.Join(env.results, "run-*", "user-*", "failure", "diagnostic.json"))
	if len(evidence) != 2 {
		t.Errorf("expected failure evidence for both users, found %v", evidence)
	}
	logs, _ := filepath.Glob(filepath.Join(env.results, "run-*", "user-*", output.StepLogFile))
	if len(logs) != 2 {
		t.Errorf("expected a step log for both users, found %v", logs)
	}
}

func TestRunFailsWhenHistoryIsUnwritable(t *testing.T) {
	env := newTestEnv(t, demotarget.Options{})
	blocker := filepath.Join(env.dir, "blocker")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "run", "1",
		"--workflow", env.workflow,
		"--feeder-path", env.feeder,
		"--history-path", filepath.Join(blocker, "history.json"),
		"--results-dir", env.results,
		"--log-level", "error",
	)
	if err == nil || !strings.Contains(err.Error(), "save performance history") {
		t.Fatalf("expected history error, got %v", err)
	}
}

func TestRunRejectsInvalidConfiguration(t *testing.T) {
	tests := map[string][]string{
		"missing workflow": {"run", "2"},
		"bad users":        {"run", "zero", "--workflow", "wf.yaml"},
		"bad mode":         {"run", "2", "visible", "--workflow", "wf.yaml"},
		"too many args":    {"run", "2", "headless", "extra"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := execute(t, args...); err == nil {
				t.Errorf("expected error for %q", args)
			}
		})
	}
}

func TestTrendsOnEmptyHistory(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "trends", "--history-path", filepath.Join(dir, "none.json"), "--log-level", "error")
	if err != nil {
		t.Fatalf("trends failed: %v", err)
	}
	if !strings.Contains(out, "Total Runs:        0") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestNewLoggerHonoursLogLevelEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	tests := []struct {
		name string
		args []string
		want logrus.Level
	}{
		{"env applies", nil, logrus.DebugLevel},
		{"flag wins", []string{"--log-level", "warn"}, logrus.WarnLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			config.RegisterFlags(fs)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatal(err)
			}
			cfg, err := config.NewLoader().FromFlags(fs, fs.Args())
			if err != nil {
				t.Fatal(err)
			}
			logger, err := newLogger(cfg, fs, &bytes.Buffer{})
			if err != nil {
				t.Fatal(err)
			}
			if logger.GetLevel() != tt.want {
				t.Errorf("level = %s, want %s", logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	cfg, err := config.NewLoader().Load([]string{"--log-level", "loud"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := newLogger(cfg, pflag.NewFlagSet("empty", pflag.ContinueOnError), &bytes.Buffer{}); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

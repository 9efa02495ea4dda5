package runner_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/time/rate"

	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/runner"
	"github.com/torosent/vuload/internal/workflow"
)

func newOrchestrator(t *testing.T, opt runner.Options) *runner.Orchestrator {
	t.Helper()
	if opt.Workflow == nil {
		opt.Workflow = checkoutWorkflow()
	}
	opt.Retry.Wait = noWait
	if opt.Retry.MaxAttempts == 0 {
		opt.Retry.MaxAttempts = 3
	}
	o, err := runner.New(opt)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestOrchestratorMixedOutcomes(t *testing.T) {
	exec := &scriptedExecutor{behave: func(user int, step workflow.Step, attempt int) error {
		if user == 2 && step.Terminal {
			return errTimeout
		}
		return nil
	}}
	o := newOrchestrator(t, runner.Options{Users: 3, Executor: exec})

	report := o.Run(context.Background())
	if report.NumUsers != 3 || len(report.Results) != 3 {
		t.Fatalf("expected 3 results, got %d/%d", report.NumUsers, len(report.Results))
	}
	for i, r := range report.Results {
		if r.User != i+1 {
			t.Errorf("results not ordered by user: index %d holds user %d", i, r.User)
		}
	}
	if report.SuccessRate < 66.6 || report.SuccessRate > 66.7 {
		t.Errorf("expected success rate ~66.67, got %.2f", report.SuccessRate)
	}
	if report.Statistics == nil {
		t.Fatal("expected statistics")
	}
	if report.Results[1].FailureState == nil {
		t.Error("expected failure state for user 2")
	}
	if report.ID == "" || report.Timestamp.IsZero() {
		t.Error("expected run id and timestamp")
	}
	if report.Metrics.Resources == nil {
		t.Error("expected a resource snapshot")
	}
	if exec.closed.Load() != 3 {
		t.Errorf("expected 3 sessions closed, got %d", exec.closed.Load())
	}
}

func TestOrchestratorRunsUsersConcurrently(t *testing.T) {
	exec := &scriptedExecutor{latency: 20 * time.Millisecond}
	wf := &workflow.Workflow{Name: "x", Steps: []workflow.Step{{Name: "nav", Action: workflow.ActionNavigate, URL: "/"}}}
	o := newOrchestrator(t, runner.Options{Users: 10, Executor: exec, Workflow: wf})

	start := time.Now()
	report := o.Run(context.Background())
	elapsed := time.Since(start)

	if report.SuccessRate != 100 {
		t.Fatalf("expected all users to succeed, got %.2f", report.SuccessRate)
	}
	if exec.peak.Load() < 2 {
		t.Errorf("expected overlapping users, peak concurrency %d", exec.peak.Load())
	}
	if elapsed > 150*time.Millisecond {
		t.Errorf("users appear to run sequentially: %s", elapsed)
	}
}

func TestOrchestratorIsolatesCrashes(t *testing.T) {
	exec := &scriptedExecutor{behave: func(user int, step workflow.Step, attempt int) error {
		if user == 2 && step.Name == "checkout" {
			panic("executor bug")
		}
		return nil
	}}
	var (
		mu   sync.Mutex
		done []int
	)
	o := newOrchestrator(t, runner.Options{
		Users:    3,
		Executor: exec,
		OnUserDone: func(r metrics.UserResult) {
			mu.Lock()
			done = append(done, r.User)
			mu.Unlock()
		},
	})

	report := o.Run(context.Background())
	crashed := report.Results[1]
	if crashed.Success || !crashed.Crashed || !strings.Contains(crashed.Error, "executor bug") {
		t.Fatalf("expected crashed result, got %+v", crashed)
	}
	if !report.Results[0].Success || !report.Results[2].Success {
		t.Error("a crash must not affect sibling users")
	}
	if exec.closed.Load() != 3 {
		t.Errorf("crashed user's session must still be closed, closed=%d", exec.closed.Load())
	}
	if len(done) != 3 {
		t.Errorf("expected OnUserDone for every user, got %v", done)
	}
}

func TestOrchestratorIgnoresCancellationByDefault(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &scriptedExecutor{}
	o := newOrchestrator(t, runner.Options{Users: 2, Executor: exec})
	report := o.Run(ctx)
	if report.SuccessRate != 100 {
		t.Errorf("without graceful drain users are not interrupted, got %.2f", report.SuccessRate)
	}
}

func TestOrchestratorGracefulDrain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &scriptedExecutor{}
	o := newOrchestrator(t, runner.Options{Users: 4, Executor: exec, GracefulDrain: true, SpawnRate: 1})
	report := o.Run(ctx)

	if report.NumUsers != 4 {
		t.Fatalf("expected a result for every user, got %d", report.NumUsers)
	}
	for _, r := range report.Results {
		if r.Success || !strings.Contains(r.Error, "run cancelled") {
			t.Errorf("user %d: expected cancellation, got %+v", r.User, r)
		}
	}
	if report.Statistics != nil {
		t.Error("statistics must be omitted when nobody succeeded")
	}
}

func TestOrchestratorSpawnRate(t *testing.T) {
	exec := &scriptedExecutor{}
	wf := &workflow.Workflow{Name: "x", Steps: []workflow.Step{{Name: "nav", Action: workflow.ActionNavigate, URL: "/"}}}
	o := newOrchestrator(t, runner.Options{
		Users:     4,
		Executor:  exec,
		Workflow:  wf,
		SpawnRate: 50,
		LimiterFactory: func(perSecond float64) *rate.Limiter {
			return rate.NewLimiter(rate.Limit(perSecond), 1)
		},
	})

	start := time.Now()
	o.Run(context.Background())
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected spawns paced at 50/s (>=60ms for 4 users), took %s", elapsed)
	}
}

func TestOrchestratorEmitsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	o := newOrchestrator(t, runner.Options{Users: 2, Executor: &scriptedExecutor{}, Tracer: tp.Tracer("test")})
	o.Run(context.Background())

	// 1 run span + 2 user spans + 2*5 step spans.
	if got := len(exporter.GetSpans()); got != 13 {
		t.Errorf("expected 13 spans, got %d", got)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	cases := map[string]runner.Options{
		"zero users":    {Users: 0, Workflow: checkoutWorkflow(), Executor: &scriptedExecutor{}},
		"bad mode":      {Users: 1, Mode: "invisible", Workflow: checkoutWorkflow(), Executor: &scriptedExecutor{}},
		"no workflow":   {Users: 1, Executor: &scriptedExecutor{}},
		"no executor":   {Users: 1, Workflow: checkoutWorkflow()},
		"negative pace": {Users: 1, Workflow: checkoutWorkflow(), Executor: &scriptedExecutor{}, SpawnRate: -1},
	}
	for name, opt := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := runner.New(opt); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

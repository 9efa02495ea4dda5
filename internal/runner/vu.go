package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/tracing"
	"github.com/torosent/vuload/internal/workflow"
)

// ErrCancelled marks a user that stopped between steps because the run was
// cancelled during a graceful drain.
var ErrCancelled = errors.New("run cancelled")

// VirtualUser runs one simulated user's workflow end to end.
type VirtualUser struct {
	ID              int
	Workflow        *workflow.Workflow
	Executor        workflow.Executor
	Mode            metrics.Mode
	Retry           RetryPolicy
	StepTimeout     time.Duration
	TerminalTimeout time.Duration
	CheckCancel     bool
	Logger          logrus.FieldLogger
	Tracer          trace.Tracer
}

// Run executes every step in order and never returns an error: all failures
// are captured in the result. The session is always closed.
func (u *VirtualUser) Run(ctx context.Context) (result metrics.UserResult) {
	start := time.Now()
	u.defaults()
	steps, trailLogger := newTrail(u.Logger)
	log := trailLogger.WithField("user", u.ID)
	result = metrics.UserResult{User: u.ID, Timings: metrics.StepTiming{}}

	ctx, span := tracing.StartUserSpan(ctx, u.Tracer, u.ID)
	defer func() {
		result.TotalTime = metrics.Millis(time.Since(start))
		result.Log = steps.Entries()
		var err error
		if !result.Success {
			err = fmt.Errorf("%s", result.Error)
		}
		tracing.EndSpan(span, err, tracing.AttrSuccess.Bool(result.Success))
	}()

	session, err := u.Executor.Open(ctx, u.ID, u.Mode)
	if err != nil {
		result.Error = fmt.Sprintf("open session: %v", err)
		log.WithError(err).Warn("Failed to open session")
		return result
	}
	defer func() {
		if t, ok := session.(workflow.Telemetry); ok {
			result.Browser, result.Network = t.Telemetry()
		}
		if err := session.Close(); err != nil {
			log.WithError(err).Warn("Failed to close session")
		}
	}()

	for _, step := range u.Workflow.Steps {
		if u.CheckCancel && ctx.Err() != nil {
			result.Error = fmt.Sprintf("%v before step %s", ErrCancelled, step.Name)
			return result
		}

		elapsed, attempts, err := u.runStep(ctx, session, step, log)
		if attempts > 1 {
			result.RetryCount += attempts - 1
		}
		if err == nil {
			result.Timings[step.TimingName()] += metrics.Millis(elapsed)
			log.WithFields(logrus.Fields{
				"step":       step.Name,
				"elapsed_ms": metrics.Millis(elapsed),
				"attempts":   attempts,
			}).Debug("Step completed")
			continue
		}

		result.Error = err.Error()
		log.WithField("step", step.Name).WithError(err).Debug("Step failed")
		if step.Terminal {
			result.FailureState = u.capture(ctx, session, log)
		}
		return result
	}

	result.Success = true
	return result
}

func (u *VirtualUser) defaults() {
	if u.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		u.Logger = l
	}
	if u.Tracer == nil {
		u.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if u.StepTimeout <= 0 {
		u.StepTimeout = workflow.DefaultStepTimeout
	}
	if u.TerminalTimeout <= 0 {
		u.TerminalTimeout = workflow.DefaultTerminalTimeout
	}
}

func (u *VirtualUser) runStep(ctx context.Context, session workflow.Session, step workflow.Step, log logrus.FieldLogger) (time.Duration, int, error) {
	policy := u.Retry
	if !step.Retryable() {
		policy.MaxAttempts = 1
	}
	policy.Logger = log
	timeout := step.TimeoutOr(u.StepTimeout, u.TerminalTimeout)

	ctx, span := tracing.StartStepSpan(ctx, u.Tracer, step.Name, string(step.Action))
	start := time.Now()
	attempts, err := policy.Execute(ctx, step.Name, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return session.Execute(ctx, step)
	})
	elapsed := time.Since(start)
	tracing.EndSpan(span, err, tracing.AttrAttempts.Int(attempts))
	return elapsed, attempts, err
}

func (u *VirtualUser) capture(ctx context.Context, session workflow.Session, log logrus.FieldLogger) *metrics.Diagnostic {
	// The run context may already be past its budget; the snapshot gets its own.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.StepTimeout)
	defer cancel()
	diag, err := session.Diagnostic(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to capture failure state")
		return nil
	}
	if diag != nil && diag.CapturedAt.IsZero() {
		diag.CapturedAt = time.Now()
	}
	log.Debug("Failure state captured")
	return diag
}

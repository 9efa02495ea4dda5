package runner

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/workflow"
)

// Options configure the Orchestrator.
type Options struct {
	Users           int                // number of virtual users, all concurrent
	Mode            metrics.Mode       // execution mode handed to the executor
	Workflow        *workflow.Workflow // steps every user performs (required)
	Executor        workflow.Executor  // session factory (required)
	Retry           RetryPolicy        // per-step retry policy
	StepTimeout     time.Duration      // per-attempt timeout of ordinary steps
	TerminalTimeout time.Duration      // per-attempt timeout of the terminal step
	SpawnRate       float64            // users started per second (0 starts all at once)
	GracefulDrain   bool               // let cancellation reach users between steps
	Logger          logrus.FieldLogger
	Tracer          trace.Tracer
	OnUserDone      func(metrics.UserResult) // called from the user's goroutine
	LimiterFactory  func(perSecond float64) *rate.Limiter
}

func (o *Options) validate() error {
	var errs []error
	if o.Users < 1 {
		errs = append(errs, fmt.Errorf("users must be a positive integer, got %d", o.Users))
	}
	if o.Mode == "" {
		o.Mode = metrics.ModeHeadless
	}
	if !o.Mode.Valid() {
		errs = append(errs, fmt.Errorf("mode must be headless or headed, got %q", o.Mode))
	}
	if o.Workflow == nil || len(o.Workflow.Steps) == 0 {
		errs = append(errs, errors.New("a workflow with at least one step is required"))
	}
	if o.Executor == nil {
		errs = append(errs, errors.New("a workflow executor is required"))
	}
	if o.SpawnRate < 0 {
		errs = append(errs, fmt.Errorf("spawn rate must not be negative, got %g", o.SpawnRate))
	}
	return errors.Join(errs...)
}

func (o *Options) normalize() {
	if o.Retry.MaxAttempts == 0 {
		logger := o.Retry.Logger
		o.Retry = DefaultRetryPolicy()
		o.Retry.Logger = logger
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = workflow.DefaultStepTimeout
	}
	if o.TerminalTimeout <= 0 {
		o.TerminalTimeout = workflow.DefaultTerminalTimeout
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	if o.Retry.Logger == nil {
		o.Retry.Logger = o.Logger
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("")
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(perSecond float64) *rate.Limiter {
			if perSecond <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

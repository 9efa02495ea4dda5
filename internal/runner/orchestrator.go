package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/tracing"
)

// Orchestrator runs a fixed number of virtual users concurrently and joins
// them into a single RunReport.
type Orchestrator struct {
	opt Options
}

// New validates opt and returns an Orchestrator.
func New(opt Options) (*Orchestrator, error) {
	if err := opt.validate(); err != nil {
		return nil, fmt.Errorf("invalid run options: %w", err)
	}
	opt.normalize()
	return &Orchestrator{opt: opt}, nil
}

// Run spawns every user, blocks until all of them have terminated and
// returns the aggregated report. Results are ordered by user number.
//
// Unless GracefulDrain is set, cancellation of ctx does not reach the users:
// in-flight work is abandoned only when the process exits.
func (o *Orchestrator) Run(ctx context.Context) metrics.RunReport {
	start := time.Now()
	runID := metrics.NewRunID(start)
	log := o.opt.Logger.WithFields(logrus.Fields{
		"run_id": runID,
		"users":  o.opt.Users,
		"mode":   o.opt.Mode,
	})

	ctx, span := tracing.StartRunSpan(ctx, o.opt.Tracer, o.opt.Workflow.Name, o.opt.Users, string(o.opt.Mode))
	defer span.End()

	unitCtx := ctx
	if !o.opt.GracefulDrain {
		unitCtx = context.WithoutCancel(ctx)
	}

	log.Info("Starting load test")
	results := make([]metrics.UserResult, o.opt.Users)
	limiter := o.opt.LimiterFactory(o.opt.SpawnRate)

	var g errgroup.Group
	for i := range results {
		user := i + 1
		if err := limiter.Wait(unitCtx); err != nil {
			// Only reachable while draining: remaining users never start.
			for j := i; j < len(results); j++ {
				results[j] = metrics.UserResult{
					User:    j + 1,
					Error:   fmt.Sprintf("%v before start", ErrCancelled),
					Timings: metrics.StepTiming{},
				}
			}
			log.WithError(err).Warn("Spawn interrupted")
			break
		}
		g.Go(func() error {
			results[user-1] = o.runUser(unitCtx, user, log)
			if o.opt.OnUserDone != nil {
				o.opt.OnUserDone(results[user-1])
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	report := metrics.Summarize(metrics.RunInput{
		ID:        runID,
		Timestamp: time.Now().UTC(),
		Workflow:  o.opt.Workflow.Name,
		Mode:      o.opt.Mode,
		Elapsed:   elapsed,
		Resources: metrics.CaptureResources(),
	}, results)

	log.WithFields(logrus.Fields{
		"success_rate": fmt.Sprintf("%.2f", report.SuccessRate),
		"elapsed":      elapsed.Round(time.Millisecond),
	}).Info("Load test finished")
	return report
}

// runUser is the per-unit error boundary: a panic inside one user becomes a
// failed result and never reaches its siblings.
func (o *Orchestrator) runUser(ctx context.Context, user int, log logrus.FieldLogger) (result metrics.UserResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.WithField("user", user).WithField("stack", string(debug.Stack())).Errorf("Virtual user crashed: %v", r)
			result = metrics.UserResult{
				User:      user,
				Crashed:   true,
				Error:     fmt.Sprintf("user %d crashed: %v", user, r),
				Timings:   metrics.StepTiming{},
				TotalTime: metrics.Millis(time.Since(start)),
			}
		}
	}()

	vu := &VirtualUser{
		ID:              user,
		Workflow:        o.opt.Workflow,
		Executor:        o.opt.Executor,
		Mode:            o.opt.Mode,
		Retry:           o.opt.Retry,
		StepTimeout:     o.opt.StepTimeout,
		TerminalTimeout: o.opt.TerminalTimeout,
		CheckCancel:     o.opt.GracefulDrain,
		Logger:          log,
		Tracer:          o.opt.Tracer,
	}
	return vu.Run(ctx)
}

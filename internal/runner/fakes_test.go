package runner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/workflow"
)

// scriptedExecutor hands out sessions whose step outcomes are decided by a
// per-user behaviour function.
type scriptedExecutor struct {
	behave   func(user int, step workflow.Step, attempt int) error
	latency  time.Duration
	openErr  error
	closeErr error
	network  *metrics.NetworkMetrics

	opened   atomic.Int64
	closed   atomic.Int64
	active   atomic.Int64
	peak     atomic.Int64
	mu       sync.Mutex
	sessions map[int]*scriptedSession
}

func (e *scriptedExecutor) Open(ctx context.Context, user int, mode metrics.Mode) (workflow.Session, error) {
	e.opened.Add(1)
	if e.openErr != nil {
		return nil, e.openErr
	}
	s := &scriptedSession{exec: e, user: user, attempts: map[string]int{}}
	e.mu.Lock()
	if e.sessions == nil {
		e.sessions = map[int]*scriptedSession{}
	}
	e.sessions[user] = s
	e.mu.Unlock()
	return s, nil
}

func (e *scriptedExecutor) session(user int) *scriptedSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[user]
}

type scriptedSession struct {
	exec     *scriptedExecutor
	user     int
	attempts map[string]int
	executed []string
}

func (s *scriptedSession) Execute(ctx context.Context, step workflow.Step) error {
	n := s.exec.active.Add(1)
	defer s.exec.active.Add(-1)
	for {
		peak := s.exec.peak.Load()
		if n <= peak || s.exec.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	s.attempts[step.Name]++
	s.executed = append(s.executed, step.Name)
	if s.exec.latency > 0 {
		select {
		case <-time.After(s.exec.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.exec.behave == nil {
		return nil
	}
	return s.exec.behave(s.user, step, s.attempts[step.Name])
}

func (s *scriptedSession) Diagnostic(ctx context.Context) (*metrics.Diagnostic, error) {
	return &metrics.Diagnostic{URL: "/order/status", Markup: "<p>pending</p>"}, nil
}

func (s *scriptedSession) Telemetry() (*metrics.BrowserMetrics, *metrics.NetworkMetrics) {
	return nil, s.exec.network
}

func (s *scriptedSession) Close() error {
	s.exec.closed.Add(1)
	return s.exec.closeErr
}

var errTimeout = errors.New("timeout")

func checkoutWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		Name: "checkout",
		Steps: []workflow.Step{
			{Name: "navigation", Action: workflow.ActionNavigate, URL: "/"},
			{Name: "add espresso", Action: workflow.ActionClick, URL: "/cart", Timing: "addToCart"},
			{Name: "add mocha", Action: workflow.ActionClick, URL: "/cart", Timing: "addToCart"},
			{Name: "checkout", Action: workflow.ActionFill, URL: "/checkout", Form: map[string]string{"name": "x"}},
			{Name: "success", Action: workflow.ActionWait, Text: "Thanks", Terminal: true},
		},
	}
}

func noWait(ctx context.Context, d time.Duration) error { return nil }

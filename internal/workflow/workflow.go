// Package workflow defines the scripted user journey a virtual user performs
// and the executor contract the runner drives it through.
package workflow

import (
	"context"
	"time"

	"github.com/torosent/vuload/internal/metrics"
)

// Default step timeouts.
const (
	DefaultStepTimeout     = 5 * time.Second
	DefaultTerminalTimeout = 20 * time.Second
)

// Action names what a step does against the target.
type Action string

const (
	ActionNavigate  Action = "navigate"
	ActionClick     Action = "click"
	ActionFill      Action = "fill"
	ActionWait      Action = "wait"
	ActionWebSocket Action = "websocket"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionNavigate, ActionClick, ActionFill, ActionWait, ActionWebSocket:
		return true
	}
	return false
}

// Extract captures a value from a step's response into a per-user variable.
type Extract struct {
	Name     string `yaml:"name" json:"name"`
	JSONPath string `yaml:"json_path,omitempty" json:"json_path,omitempty"`
	Regex    string `yaml:"regex,omitempty" json:"regex,omitempty"`
}

// Step is one unit of work in a workflow. Steps are immutable once loaded.
type Step struct {
	Name     string            `yaml:"name" json:"name"`
	Action   Action            `yaml:"action" json:"action"`
	URL      string            `yaml:"url,omitempty" json:"url,omitempty"`
	Method   string            `yaml:"method,omitempty" json:"method,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Form     map[string]string `yaml:"form,omitempty" json:"form,omitempty"`
	Body     string            `yaml:"body,omitempty" json:"body,omitempty"`
	Status   int               `yaml:"status,omitempty" json:"status,omitempty"`
	Text     string            `yaml:"text,omitempty" json:"text,omitempty"`
	JSONPath string            `yaml:"json_path,omitempty" json:"json_path,omitempty"`
	Equals   string            `yaml:"equals,omitempty" json:"equals,omitempty"`
	Message  string            `yaml:"message,omitempty" json:"message,omitempty"`
	Interval time.Duration     `yaml:"interval,omitempty" json:"interval,omitempty"`
	Timing   string            `yaml:"timing,omitempty" json:"timing,omitempty"`
	Retry    *bool             `yaml:"retry,omitempty" json:"retry,omitempty"`
	Terminal bool              `yaml:"terminal,omitempty" json:"terminal,omitempty"`
	Timeout  time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Extract  []Extract         `yaml:"extract,omitempty" json:"extract,omitempty"`
}

// Retryable reports whether failures of s are retried. Terminal steps are
// retried by default like any other step; an explicit retry flag wins.
func (s Step) Retryable() bool {
	if s.Retry != nil {
		return *s.Retry
	}
	return true
}

// TimingName is the phase s contributes its elapsed time to.
func (s Step) TimingName() string {
	if s.Timing != "" {
		return s.Timing
	}
	return s.Name
}

// TimeoutOr resolves the per-attempt timeout of s from the given defaults.
func (s Step) TimeoutOr(step, terminal time.Duration) time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	if s.Terminal {
		return terminal
	}
	return step
}

// Workflow is an ordered, named sequence of steps.
type Workflow struct {
	Name    string `yaml:"name" json:"name"`
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Steps   []Step `yaml:"steps" json:"steps"`
}

// Executor acquires isolated execution contexts for virtual users.
type Executor interface {
	Open(ctx context.Context, user int, mode metrics.Mode) (Session, error)
}

// Session is one user's isolated execution context. A session is used by a
// single goroutine.
type Session interface {
	// Execute performs a single attempt of step.
	Execute(ctx context.Context, step Step) error
	// Diagnostic captures a best-effort snapshot of the current state.
	Diagnostic(ctx context.Context) (*metrics.Diagnostic, error)
	Close() error
}

// Telemetry is implemented by sessions that report resource or network data.
// Either return value may be nil when the session has nothing to report.
type Telemetry interface {
	Telemetry() (*metrics.BrowserMetrics, *metrics.NetworkMetrics)
}

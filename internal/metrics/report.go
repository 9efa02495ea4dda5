package metrics

import (
	"sort"
	"time"
)

// Mode selects how the workflow executor presents its execution context.
type Mode string

const (
	ModeHeadless Mode = "headless"
	ModeHeaded   Mode = "headed"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeHeadless || m == ModeHeaded
}

// StepTiming maps a timing name to its elapsed milliseconds. Only steps that
// succeeded are present.
type StepTiming map[string]float64

// Names returns the timing names in sorted order.
func (t StepTiming) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Diagnostic is an opaque failure snapshot captured by the workflow executor.
type Diagnostic struct {
	CapturedAt  time.Time         `json:"capturedAt"`
	URL         string            `json:"url,omitempty"`
	StatusCode  int               `json:"statusCode,omitempty"`
	Markup      string            `json:"markup,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// LogEntry is one line of a user's step log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Step    string    `json:"step,omitempty"`
	Message string    `json:"message"`
	Error   string    `json:"error,omitempty"`
}

// BrowserMetrics is executor-supplied resource telemetry for the execution context.
type BrowserMetrics struct {
	MemoryUsage float64 `json:"memoryUsage"`
	CPUUsage    float64 `json:"cpuUsage"`
}

// NetworkMetrics is executor-supplied network telemetry in milliseconds. A
// nil field was never measured, e.g. no DNS lookup against an IP literal or
// only reused connections.
type NetworkMetrics struct {
	Latency       *float64 `json:"latency,omitempty"`
	DNSLookup     *float64 `json:"dnsLookup,omitempty"`
	TCPConnection *float64 `json:"tcpConnection,omitempty"`
}

// Empty reports whether no network phase was measured.
func (n *NetworkMetrics) Empty() bool {
	return n == nil || (n.Latency == nil && n.DNSLookup == nil && n.TCPConnection == nil)
}

// Float returns a pointer to v for optional telemetry fields.
func Float(v float64) *float64 { return &v }

// UserResult is the outcome of one virtual user.
type UserResult struct {
	User         int             `json:"user"`
	Success      bool            `json:"success"`
	Error        string          `json:"error,omitempty"`
	Crashed      bool            `json:"crashed,omitempty"`
	Timings      StepTiming      `json:"timings"`
	TotalTime    float64         `json:"totalTime"`
	RetryCount   int             `json:"retryCount"`
	FailureState *Diagnostic     `json:"failureState,omitempty"`
	Browser      *BrowserMetrics `json:"browserMetrics,omitempty"`
	Network      *NetworkMetrics `json:"networkMetrics,omitempty"`
	Log          []LogEntry      `json:"log,omitempty"`
}

// Statistics averages timings across successful users only.
type Statistics struct {
	AverageTotalTime float64            `json:"averageTotalTime"`
	AverageStepTimes map[string]float64 `json:"averageStepTimes"`
}

// ResourceSnapshot captures the orchestrating process after the barrier.
type ResourceSnapshot struct {
	HeapUsedBytes uint64  `json:"heapUsed"`
	CPUTimeMs     float64 `json:"cpuTime"`
	Goroutines    int     `json:"goroutines"`
}

// RunMetrics are derived over every result regardless of success.
type RunMetrics struct {
	FailureRate         float64           `json:"failureRate"`
	ErrorRate           float64           `json:"errorRate"`
	UsersPerSecond      float64           `json:"usersPerSecond"`
	Throughput          float64           `json:"throughput"`
	RetryCount          int               `json:"retryCount"`
	AverageResponseTime float64           `json:"averageResponseTime"`
	MinResponseTime     float64           `json:"minResponseTime"`
	MaxResponseTime     float64           `json:"maxResponseTime"`
	P50ResponseTime     float64           `json:"p50ResponseTime"`
	P90ResponseTime     float64           `json:"p90ResponseTime"`
	P99ResponseTime     float64           `json:"p99ResponseTime"`
	Resources           *ResourceSnapshot `json:"resources,omitempty"`
	Browser             *BrowserMetrics   `json:"browserMetrics,omitempty"`
	Network             *NetworkMetrics   `json:"networkMetrics,omitempty"`
}

// RunReport describes one load test invocation.
type RunReport struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	Workflow    string       `json:"workflow,omitempty"`
	Mode        Mode         `json:"mode"`
	NumUsers    int          `json:"numUsers"`
	TotalTime   float64      `json:"totalTime"`
	SuccessRate float64      `json:"successRate"`
	Results     []UserResult `json:"results"`
	Statistics  *Statistics  `json:"statistics,omitempty"`
	Metrics     RunMetrics   `json:"metrics"`
}

// Successes counts successful results.
func (r RunReport) Successes() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

// Failures returns the results that did not succeed.
func (r RunReport) Failures() []UserResult {
	var out []UserResult
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res)
		}
	}
	return out
}

// WithoutDiagnostics returns a copy of r whose results carry no failure
// snapshots and no step logs.
func (r RunReport) WithoutDiagnostics() RunReport {
	cp := r
	cp.Results = make([]UserResult, len(r.Results))
	for i, res := range r.Results {
		res.FailureState = nil
		res.Log = nil
		cp.Results[i] = res
	}
	return cp
}

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const recentResults = 10

// Collector tracks user completions while a run is in flight. It is safe for
// concurrent use and feeds the progress line and the dashboard.
type Collector struct {
	mu        sync.Mutex
	hist      *hdrhistogram.Histogram
	expected  int
	successes int
	failures  int
	retries   int
	sumTime   float64
	recent    []UserResult
	start     time.Time
}

// Progress is a point-in-time view of a run.
type Progress struct {
	Expected  int
	Completed int
	Successes int
	Failures  int
	Retries   int
	MeanMs    float64
	P50Ms     float64
	P90Ms     float64
	Elapsed   time.Duration
	Recent    []UserResult
}

// NewCollector creates a collector expecting the given number of users.
func NewCollector(expected int) *Collector {
	return &Collector{
		hist:     hdrhistogram.New(histogramLowest, histogramHighest, histogramSigFigs),
		expected: expected,
		start:    time.Now(),
	}
}

// Start marks the moment users begin executing.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
}

// Record registers a finished user.
func (c *Collector) Record(r UserResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.Success {
		c.successes++
	} else {
		c.failures++
	}
	c.retries += r.RetryCount
	c.sumTime += r.TotalTime
	recordMillis(c.hist, r.TotalTime)

	c.recent = append(c.recent, r)
	if len(c.recent) > recentResults {
		c.recent = c.recent[len(c.recent)-recentResults:]
	}
}

// Snapshot returns the current progress.
func (c *Collector) Snapshot() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := Progress{
		Expected:  c.expected,
		Completed: c.successes + c.failures,
		Successes: c.successes,
		Failures:  c.failures,
		Retries:   c.retries,
		Elapsed:   time.Since(c.start),
		Recent:    append([]UserResult(nil), c.recent...),
	}
	if p.Completed > 0 {
		p.MeanMs = c.sumTime / float64(p.Completed)
	}
	if c.hist.TotalCount() > 0 {
		p.P50Ms = quantileMillis(c.hist, 50)
		p.P90Ms = quantileMillis(c.hist, 90)
	}
	return p
}

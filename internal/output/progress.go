package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/vuload/internal/metrics"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(collector *metrics.Collector, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and prints the final state on its own line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer, progressLine(p.collector.Snapshot()))
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, progressLine(p.collector.Snapshot()))
		case <-p.done:
			return
		}
	}
}

func progressLine(s metrics.Progress) string {
	line := fmt.Sprintf("\rUsers: %d/%d | Successes: %d | Failures: %d | Retries: %d | Elapsed: %s",
		s.Completed, s.Expected, s.Successes, s.Failures, s.Retries, s.Elapsed.Truncate(100*time.Millisecond))
	if s.Completed > 0 {
		line += fmt.Sprintf(" | Mean %.0fms P90 %.0fms", s.MeanMs, s.P90Ms)
	}
	return line
}

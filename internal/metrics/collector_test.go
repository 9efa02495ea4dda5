package metrics_test

import (
	"sync"
	"testing"

	"github.com/torosent/vuload/internal/metrics"
)

func TestCollectorTracksCompletions(t *testing.T) {
	c := metrics.NewCollector(4)
	c.Start()

	c.Record(metrics.UserResult{User: 1, Success: true, TotalTime: 100})
	c.Record(metrics.UserResult{User: 2, Success: false, Error: "timeout", TotalTime: 300, RetryCount: 2})
	c.Record(metrics.UserResult{User: 3, Success: true, TotalTime: 200})

	p := c.Snapshot()
	if p.Expected != 4 {
		t.Errorf("expected 4 users, got %d", p.Expected)
	}
	if p.Completed != 3 {
		t.Errorf("expected 3 completed, got %d", p.Completed)
	}
	if p.Successes != 2 || p.Failures != 1 {
		t.Errorf("expected 2/1 successes/failures, got %d/%d", p.Successes, p.Failures)
	}
	if p.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", p.Retries)
	}
	if p.MeanMs != 200 {
		t.Errorf("expected mean 200ms, got %.2f", p.MeanMs)
	}
	if p.P50Ms < 199 || p.P50Ms > 201 {
		t.Errorf("expected p50 ~200ms, got %.2f", p.P50Ms)
	}
	if len(p.Recent) != 3 {
		t.Errorf("expected 3 recent results, got %d", len(p.Recent))
	}
}

func TestCollectorKeepsOnlyRecentResults(t *testing.T) {
	c := metrics.NewCollector(50)
	for i := 1; i <= 25; i++ {
		c.Record(metrics.UserResult{User: i, Success: true, TotalTime: float64(i)})
	}
	p := c.Snapshot()
	if len(p.Recent) != 10 {
		t.Fatalf("expected 10 recent results, got %d", len(p.Recent))
	}
	if p.Recent[0].User != 16 || p.Recent[9].User != 25 {
		t.Errorf("unexpected recent window: first=%d last=%d", p.Recent[0].User, p.Recent[9].User)
	}
}

func TestCollectorConcurrentRecord(t *testing.T) {
	c := metrics.NewCollector(200)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Record(metrics.UserResult{User: i + 1, Success: i%2 == 0, TotalTime: 10})
		}(i)
	}
	wg.Wait()

	p := c.Snapshot()
	if p.Completed != 200 {
		t.Fatalf("expected 200 completed, got %d", p.Completed)
	}
	if p.Successes != 100 {
		t.Errorf("expected 100 successes, got %d", p.Successes)
	}
}

package history_test

import (
	"math"
	"testing"
	"time"

	"github.com/torosent/vuload/internal/history"
	"github.com/torosent/vuload/internal/metrics"
)

func docWithSeries(m metrics.Metric, values ...float64) history.Document {
	doc := history.NewDocument()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		doc.Trends[m] = append(doc.Trends[m], history.TrendPoint{Timestamp: base.Add(time.Duration(i) * time.Hour), Value: v, NumUsers: 5})
	}
	return doc
}

func TestAnalyzeTrends(t *testing.T) {
	tests := []struct {
		name      string
		values    []float64
		percent   float64
		direction history.Direction
		display   string
	}{
		{"increase", []float64{80, 100}, 25, history.Increase, "25.00%"},
		{"decrease", []float64{100, 75}, -25, history.Decrease, "-25.00%"},
		{"unchanged counts as decrease", []float64{100, 100}, 0, history.Decrease, "0.00%"},
		{"uses last two points", []float64{1, 50, 100}, 100, history.Increase, "100.00%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.Of(metrics.KindAverageResponseTime)
			changes := history.AnalyzeTrends(docWithSeries(m, tt.values...))
			if len(changes) != 1 {
				t.Fatalf("expected one change, got %d", len(changes))
			}
			c := changes[0]
			if c.Percent != tt.percent || c.Direction != tt.direction || c.Display != tt.display {
				t.Errorf("got %+v, want percent=%v direction=%s display=%s", c, tt.percent, tt.direction, tt.display)
			}
			if c.Undefined {
				t.Error("change should be defined")
			}
		})
	}
}

func TestAnalyzeTrendsZeroPrevious(t *testing.T) {
	m := metrics.Of(metrics.KindErrorRate)

	up := history.AnalyzeTrends(docWithSeries(m, 0, 10))[0]
	if !up.Undefined || !math.IsInf(up.Percent, 1) || up.Direction != history.Increase || up.Display != "+Inf%" {
		t.Errorf("0 -> 10: %+v", up)
	}

	flat := history.AnalyzeTrends(docWithSeries(m, 0, 0))[0]
	if !flat.Undefined || !math.IsNaN(flat.Percent) || flat.Direction != history.Decrease || flat.Display != "NaN%" {
		t.Errorf("0 -> 0: %+v", flat)
	}
}

func TestAnalyzeTrendsSkipsShortSeries(t *testing.T) {
	doc := docWithSeries(metrics.Of(metrics.KindThroughput), 5)
	if changes := history.AnalyzeTrends(doc); len(changes) != 0 {
		t.Errorf("expected no changes for a single point, got %+v", changes)
	}
}

func TestAnalyzeTrendsOrdersByMetric(t *testing.T) {
	doc := docWithSeries(metrics.Of(metrics.KindRetryCount), 1, 2)
	doc.Trends[metrics.StepMetric("checkout")] = docWithSeries(metrics.Of(metrics.KindRetryCount), 3, 4).Trends[metrics.Of(metrics.KindRetryCount)]
	doc.Trends[metrics.Of(metrics.KindSuccessRate)] = doc.Trends[metrics.Of(metrics.KindRetryCount)]

	changes := history.AnalyzeTrends(doc)
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(changes))
	}
	if changes[0].Metric != metrics.StepMetric("checkout") ||
		changes[1].Metric != metrics.Of(metrics.KindSuccessRate) ||
		changes[2].Metric != metrics.Of(metrics.KindRetryCount) {
		t.Errorf("unexpected order: %v, %v, %v", changes[0].Metric, changes[1].Metric, changes[2].Metric)
	}
}

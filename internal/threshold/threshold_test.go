package threshold

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/vuload/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "error rate",
			input: "errorRate < 5",
			want:  Threshold{Metric: metrics.Of(metrics.KindErrorRate), Operator: "<", Value: 5, Raw: "errorRate < 5"},
		},
		{
			name:  "percentile without spaces",
			input: "p99ResponseTime<=8000",
			want:  Threshold{Metric: metrics.Of(metrics.KindP99ResponseTime), Operator: "<=", Value: 8000, Raw: "p99ResponseTime<=8000"},
		},
		{
			name:  "step timing with spaces in name",
			input: "step:add to cart >= 1.5",
			want:  Threshold{Metric: metrics.StepMetric("add to cart"), Operator: ">=", Value: 1.5, Raw: "step:add to cart >= 1.5"},
		},
		{name: "unknown metric", input: "latency < 5", wantError: true},
		{name: "missing value", input: "errorRate <", wantError: true},
		{name: "bad operator", input: "errorRate != 5", wantError: true},
		{name: "empty", input: "  ", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantError {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %+v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseMultipleReportsEveryError(t *testing.T) {
	_, err := ParseMultiple([]string{"errorRate < 5", "bogus", "nope > 1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "threshold[1]") || !strings.Contains(err.Error(), "threshold[2]") {
		t.Errorf("expected both bad thresholds reported: %v", err)
	}
	got, err := ParseMultiple(nil)
	if err != nil || got != nil {
		t.Errorf("ParseMultiple(nil) = %v, %v", got, err)
	}
}

func testReport() metrics.RunReport {
	results := []metrics.UserResult{
		{User: 1, Success: true, TotalTime: 1000, Timings: metrics.StepTiming{"checkout": 800}},
		{User: 2, Success: false, Error: "timeout", TotalTime: 3000},
	}
	return metrics.Summarize(metrics.RunInput{Elapsed: 2 * time.Second}, results)
}

func TestEvaluate(t *testing.T) {
	ths, err := ParseMultiple([]string{
		"errorRate < 60",
		"successRate >= 75",
		"step:checkout <= 800",
		"usersPerSecond == 1",
		"networkLatency < 100",
	})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}

	results := NewEvaluator(ths).Evaluate(testReport())
	want := []bool{true, false, true, true, false}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, r := range results {
		if r.Pass != want[i] {
			t.Errorf("%s: pass = %v, want %v (%s)", r.Expr, r.Pass, want[i], r.Message)
		}
	}
	if !strings.Contains(results[4].Message, "no data") {
		t.Errorf("expected missing telemetry to be explained, got %q", results[4].Message)
	}
	if AllPassed(results) {
		t.Error("AllPassed() = true with failures")
	}
}

func TestEvaluateWithoutThresholds(t *testing.T) {
	if got := NewEvaluator(nil).Evaluate(testReport()); got != nil {
		t.Errorf("expected nil results, got %v", got)
	}
	if !AllPassed(nil) {
		t.Error("AllPassed(nil) should be true")
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		actual   float64
		op       string
		expected float64
		want     bool
	}{
		{1, "<", 2, true},
		{2, "<", 2, false},
		{2, "<=", 2, true},
		{3, ">", 2, true},
		{2, ">=", 2.0000000001, true},
		{2, "==", 2, true},
		{2, "~", 2, false},
	}
	for _, tt := range tests {
		if got := compareValues(tt.actual, tt.op, tt.expected); got != tt.want {
			t.Errorf("compareValues(%v %s %v) = %v, want %v", tt.actual, tt.op, tt.expected, got, tt.want)
		}
	}
}

package output

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/threshold"
)

func sampleReport() metrics.RunReport {
	return metrics.RunReport{
		ID:          "01J9Z8Y7X6W5V4T3S2R1Q0P9N8",
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Workflow:    "coffee-cart",
		Mode:        metrics.ModeHeadless,
		NumUsers:    3,
		TotalTime:   4200,
		SuccessRate: 66.67,
		Results: []metrics.UserResult{
			{User: 1, Success: true, Timings: metrics.StepTiming{"navigate": 120, "checkout": 900}, TotalTime: 1020},
			{User: 2, Success: true, Timings: metrics.StepTiming{"navigate": 100, "checkout": 1100}, TotalTime: 1200, RetryCount: 1},
			{
				User:       3,
				Error:      "step \"checkout\": status 503",
				Timings:    metrics.StepTiming{"navigate": 140},
				TotalTime:  3900,
				RetryCount: 2,
				Log: []metrics.LogEntry{
					{Time: time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC), Level: "debug", Step: "navigate", Message: "Step completed"},
					{Time: time.Date(2026, 3, 1, 12, 0, 2, 0, time.UTC), Level: "warning", Step: "checkout", Message: "Attempt failed", Error: "status 503"},
				},
				FailureState: &metrics.Diagnostic{
					URL:         "http://localhost/checkout",
					StatusCode:  503,
					ContentType: "text/html; charset=utf-8",
					Markup:      "<html><body>busy</body></html>",
				},
			},
		},
		Statistics: &metrics.Statistics{
			AverageTotalTime: 1110,
			AverageStepTimes: map[string]float64{"navigate": 110, "checkout": 1000},
		},
		Metrics: metrics.RunMetrics{
			FailureRate:         33.33,
			ErrorRate:           33.33,
			UsersPerSecond:      0.71,
			Throughput:          0.48,
			RetryCount:          3,
			AverageResponseTime: 2040,
			MinResponseTime:     1020,
			MaxResponseTime:     3900,
			P50ResponseTime:     1200,
			P90ResponseTime:     3900,
			P99ResponseTime:     3900,
			Network:             &metrics.NetworkMetrics{Latency: metrics.Float(12), DNSLookup: metrics.Float(1), TCPConnection: metrics.Float(2)},
		},
	}
}

func TestPrintReport(t *testing.T) {
	results := []threshold.Result{
		{Expr: "errorRate < 5", Actual: 33.33, Pass: false, Message: "errorRate = 33.33"},
		{Expr: "step:checkout < 2000", Actual: 1000, Pass: true, Message: "step:checkout = 1000.00"},
	}

	var buf bytes.Buffer
	PrintReport(&buf, sampleReport(), results, NoColorScheme())
	out := buf.String()

	for _, want := range []string{
		"Load Test Results",
		"Users:             3",
		"Success Rate:      66.67%",
		"Retries:           3",
		"P90:             3.90s",
		"checkout:",
		"Latency (TTFB):  12.00ms",
		"user 3: step \"checkout\": status 503",
		"    12:00:02.000 WARNING [checkout] Attempt failed: status 503",
		"FAIL  errorRate < 5",
		"PASS  step:checkout < 2000",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Step completed") {
		t.Errorf("debug entries belong in the step log only:\n%s", out)
	}
}

func TestPrintReportWithoutResults(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, metrics.RunReport{ID: "empty", NumUsers: 0}, nil, nil)
	out := buf.String()
	if strings.Contains(out, "Response Time") {
		t.Errorf("empty run should not print response times:\n%s", out)
	}
	if strings.Contains(out, "Thresholds") {
		t.Errorf("no thresholds were given:\n%s", out)
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleReport().WithoutDiagnostics()); err != nil {
		t.Fatalf("PrintJSONReport() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"numUsers": 3`) {
		t.Errorf("expected indented numUsers in JSON:\n%s", out)
	}
	if strings.Contains(out, "failureState") {
		t.Error("diagnostics should be stripped")
	}
}

func TestWriteCSVReport(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSVReport(&buf, sampleReport()); err != nil {
		t.Fatalf("WriteCSVReport() error = %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("got %d rows, want header + 3 users + average", len(rows))
	}
	wantHeader := []string{"user", "success", "crashed", "retries", "total_ms", "checkout_ms", "navigate_ms", "error"}
	if strings.Join(rows[0], ",") != strings.Join(wantHeader, ",") {
		t.Errorf("header = %q", rows[0])
	}
	if rows[3][5] != "" || rows[3][1] != "false" {
		t.Errorf("failed user row = %q", rows[3])
	}
	if rows[4][0] != "average" || rows[4][5] != "1000.00" {
		t.Errorf("average row = %q", rows[4])
	}
}

func TestWritePrometheusTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vuload.prom")
	if err := WritePrometheusTextfile(path, sampleReport()); err != nil {
		t.Fatalf("WritePrometheusTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{
		"vuload_users{",
		"vuload_success_rate{",
		"vuload_p99_response_time{",
		"vuload_network_latency{",
		`step="checkout"`,
		`run_id="01J9Z8Y7X6W5V4T3S2R1Q0P9N8"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in textfile:\n%s", want, out)
		}
	}
	if strings.Contains(out, "vuload_browser") {
		t.Error("browser metrics were not observed and should be absent")
	}
}

func TestGaugeName(t *testing.T) {
	tests := map[string]string{
		"successRate":     "success_rate",
		"p50ResponseTime": "p50_response_time",
		"throughput":      "throughput",
		"browserCpuUsage": "browser_cpu_usage",
	}
	for in, want := range tests {
		if got := gaugeName(in); got != want {
			t.Errorf("gaugeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatMillis(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{12.5, "12.50ms"},
		{1500, "1.50s"},
		{90_000, "1.50m"},
	}
	for _, tt := range tests {
		if got := formatMillis(tt.in); got != tt.want {
			t.Errorf("formatMillis(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Package output renders run reports, history summaries and comparisons for
// the console, files and monitoring systems.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/threshold"
)

// PrintReport outputs a human-readable summary of one run.
func PrintReport(w io.Writer, report metrics.RunReport, thresholds []threshold.Result, scheme *ColorScheme) {
	if scheme == nil {
		scheme = NoColorScheme()
	}
	m := report.Metrics

	scheme.Title.Fprintln(w, "\n--- Load Test Results ---")
	fmt.Fprintf(w, "Run:               %s\n", report.ID)
	if report.Workflow != "" {
		fmt.Fprintf(w, "Workflow:          %s (%s)\n", report.Workflow, report.Mode)
	}
	fmt.Fprintf(w, "Users:             %d\n", report.NumUsers)
	fmt.Fprintf(w, "Successful:        %s\n", scheme.Success.Sprint(report.Successes()))
	fmt.Fprintf(w, "Failed:            %s\n", failureColor(scheme, len(report.Failures())).Sprint(len(report.Failures())))
	fmt.Fprintf(w, "Success Rate:      %.2f%%\n", report.SuccessRate)
	fmt.Fprintf(w, "Run Duration:      %s\n", formatMillis(report.TotalTime))
	fmt.Fprintf(w, "Users/sec:         %.2f\n", m.UsersPerSecond)
	fmt.Fprintf(w, "Throughput:        %.2f checkouts/sec\n", m.Throughput)
	fmt.Fprintf(w, "Retries:           %d\n", m.RetryCount)

	if len(report.Results) > 0 {
		scheme.Title.Fprintln(w, "\nResponse Time:")
		fmt.Fprintf(w, "  Min:             %s\n", formatMillis(m.MinResponseTime))
		fmt.Fprintf(w, "  Max:             %s\n", formatMillis(m.MaxResponseTime))
		fmt.Fprintf(w, "  Mean:            %s\n", formatMillis(m.AverageResponseTime))
		fmt.Fprintf(w, "  P50:             %s\n", formatMillis(m.P50ResponseTime))
		fmt.Fprintf(w, "  P90:             %s\n", formatMillis(m.P90ResponseTime))
		fmt.Fprintf(w, "  P99:             %s\n", formatMillis(m.P99ResponseTime))
	}

	if s := report.Statistics; s != nil {
		scheme.Title.Fprintln(w, "\nStep Timings (successful users):")
		for _, name := range metrics.StepTiming(s.AverageStepTimes).Names() {
			fmt.Fprintf(w, "  %-16s %s\n", name+":", formatMillis(s.AverageStepTimes[name]))
		}
		fmt.Fprintf(w, "  %-16s %s\n", "total:", formatMillis(s.AverageTotalTime))
	}

	if n := m.Network; !n.Empty() {
		scheme.Title.Fprintln(w, "\nNetwork:")
		printOptionalMillis(w, "Latency (TTFB):", n.Latency)
		printOptionalMillis(w, "DNS Lookup:", n.DNSLookup)
		printOptionalMillis(w, "TCP Connect:", n.TCPConnection)
	}
	if r := m.Resources; r != nil {
		scheme.Title.Fprintln(w, "\nProcess:")
		fmt.Fprintf(w, "  Heap In Use:     %s\n", formatBytes(r.HeapUsedBytes))
		fmt.Fprintf(w, "  CPU Time:        %s\n", formatMillis(r.CPUTimeMs))
	}

	if failures := report.Failures(); len(failures) > 0 {
		scheme.Title.Fprintln(w, "\nFailures:")
		for _, f := range failures {
			tag := ""
			if f.Crashed {
				tag = " (crashed)"
			}
			fmt.Fprintf(w, "  user %d%s: %s\n", f.User, tag, scheme.Failure.Sprint(f.Error))
			for _, e := range problemEntries(f.Log) {
				scheme.Dim.Fprintln(w, "    "+formatLogEntry(e, "15:04:05.000"))
			}
		}
	}

	if len(thresholds) > 0 {
		PrintThresholds(w, thresholds, scheme)
	}
}

// PrintThresholds lists threshold outcomes. Thresholds are informational and
// never affect the exit status.
func PrintThresholds(w io.Writer, results []threshold.Result, scheme *ColorScheme) {
	if scheme == nil {
		scheme = NoColorScheme()
	}
	scheme.Title.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		mark := scheme.Success.Sprint("PASS")
		if !r.Pass {
			mark = scheme.Failure.Sprint("FAIL")
		}
		fmt.Fprintf(w, "  %s  %s (%s)\n", mark, r.Expr, r.Message)
	}
}

// PrintJSONReport outputs v as indented JSON.
func PrintJSONReport(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func failureColor(scheme *ColorScheme, n int) interface{ Sprint(...any) string } {
	if n == 0 {
		return scheme.Label
	}
	return scheme.Failure
}

func printOptionalMillis(w io.Writer, label string, v *float64) {
	if v != nil {
		fmt.Fprintf(w, "  %-16s %s\n", label, formatMillis(*v))
	}
}

func formatMillis(ms float64) string {
	switch {
	case ms >= 60_000:
		return fmt.Sprintf("%.2fm", ms/60_000)
	case ms >= 1000:
		return fmt.Sprintf("%.2fs", ms/1000)
	default:
		return fmt.Sprintf("%.2fms", ms)
	}
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

package metrics

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Track user response times from 1µs up to one hour with 3 significant figures.
const (
	histogramLowest  = 1
	histogramHighest = 3_600_000_000
	histogramSigFigs = 3
)

// RunInput carries everything Summarize needs besides the per-user results.
type RunInput struct {
	ID        string
	Timestamp time.Time
	Workflow  string
	Mode      Mode
	Elapsed   time.Duration
	Resources *ResourceSnapshot
}

// Summarize assembles a RunReport from collected results. Results are kept in
// the given order.
func Summarize(in RunInput, results []UserResult) RunReport {
	report := RunReport{
		ID:        in.ID,
		Timestamp: in.Timestamp,
		Workflow:  in.Workflow,
		Mode:      in.Mode,
		NumUsers:  len(results),
		TotalTime: Millis(in.Elapsed),
		Results:   append([]UserResult(nil), results...),
	}

	successes := report.Successes()
	if report.NumUsers > 0 {
		report.SuccessRate = 100 * float64(successes) / float64(report.NumUsers)
	}
	report.Statistics = successStatistics(results, successes)
	report.Metrics = runMetrics(results, successes, in.Elapsed)
	report.Metrics.FailureRate = 100 - report.SuccessRate
	if report.NumUsers == 0 {
		report.Metrics.FailureRate = 0
	}
	report.Metrics.Resources = in.Resources
	return report
}

// successStatistics averages timing phases over successful users. It returns
// nil when nobody succeeded.
func successStatistics(results []UserResult, successes int) *Statistics {
	if successes == 0 {
		return nil
	}
	stats := &Statistics{AverageStepTimes: map[string]float64{}}
	sums := map[string]float64{}
	counts := map[string]int{}
	var total float64
	for _, r := range results {
		if !r.Success {
			continue
		}
		total += r.TotalTime
		for name, v := range r.Timings {
			sums[name] += v
			counts[name]++
		}
	}
	stats.AverageTotalTime = total / float64(successes)
	for name, sum := range sums {
		stats.AverageStepTimes[name] = sum / float64(counts[name])
	}
	return stats
}

func runMetrics(results []UserResult, successes int, elapsed time.Duration) RunMetrics {
	var m RunMetrics
	n := len(results)
	if n == 0 {
		return m
	}

	hist := hdrhistogram.New(histogramLowest, histogramHighest, histogramSigFigs)
	var (
		errors   int
		sum      float64
		browser  BrowserMetrics
		browserN int
		latency  optionalMean
		dns      optionalMean
		connect  optionalMean
	)
	m.MinResponseTime = results[0].TotalTime
	for _, r := range results {
		if r.Error != "" {
			errors++
		}
		m.RetryCount += r.RetryCount
		sum += r.TotalTime
		if r.TotalTime < m.MinResponseTime {
			m.MinResponseTime = r.TotalTime
		}
		if r.TotalTime > m.MaxResponseTime {
			m.MaxResponseTime = r.TotalTime
		}
		recordMillis(hist, r.TotalTime)

		if r.Browser != nil {
			browser.MemoryUsage += r.Browser.MemoryUsage
			browser.CPUUsage += r.Browser.CPUUsage
			browserN++
		}
		if r.Network != nil {
			latency.add(r.Network.Latency)
			dns.add(r.Network.DNSLookup)
			connect.add(r.Network.TCPConnection)
		}
	}

	m.ErrorRate = 100 * float64(errors) / float64(n)
	m.AverageResponseTime = sum / float64(n)
	if hist.TotalCount() > 0 {
		m.P50ResponseTime = quantileMillis(hist, 50)
		m.P90ResponseTime = quantileMillis(hist, 90)
		m.P99ResponseTime = quantileMillis(hist, 99)
	}
	if secs := elapsed.Seconds(); secs > 0 {
		m.UsersPerSecond = float64(n) / secs
		m.Throughput = float64(successes) / secs
	}
	if browserN > 0 {
		m.Browser = &BrowserMetrics{
			MemoryUsage: browser.MemoryUsage / float64(browserN),
			CPUUsage:    browser.CPUUsage / float64(browserN),
		}
	}
	network := &NetworkMetrics{
		Latency:       latency.value(),
		DNSLookup:     dns.value(),
		TCPConnection: connect.value(),
	}
	if !network.Empty() {
		m.Network = network
	}
	return m
}

// optionalMean averages only the users that reported a value.
type optionalMean struct {
	sum float64
	n   int
}

func (o *optionalMean) add(v *float64) {
	if v == nil {
		return
	}
	o.sum += *v
	o.n++
}

func (o optionalMean) value() *float64 {
	if o.n == 0 {
		return nil
	}
	return Float(o.sum / float64(o.n))
}

func recordMillis(h *hdrhistogram.Histogram, ms float64) {
	us := int64(ms * 1000)
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

func quantileMillis(h *hdrhistogram.Histogram, q float64) float64 {
	return float64(h.ValueAtQuantile(q)) / 1000
}

// Observe extracts every metric defined for report. Metrics whose source
// data is absent for this run are omitted rather than zero-filled.
func Observe(report RunReport) map[Metric]float64 {
	out := map[Metric]float64{
		Of(KindRunDuration):    report.TotalTime,
		Of(KindSuccessRate):    report.SuccessRate,
		Of(KindFailureRate):    report.Metrics.FailureRate,
		Of(KindUsersPerSecond): report.Metrics.UsersPerSecond,
		Of(KindThroughput):     report.Metrics.Throughput,
		Of(KindErrorRate):      report.Metrics.ErrorRate,
		Of(KindRetryCount):     float64(report.Metrics.RetryCount),
	}
	if s := report.Statistics; s != nil {
		out[Of(KindTotalTime)] = s.AverageTotalTime
		for name, v := range s.AverageStepTimes {
			out[StepMetric(name)] = v
		}
	}
	if len(report.Results) > 0 {
		out[Of(KindAverageResponseTime)] = report.Metrics.AverageResponseTime
		out[Of(KindMaxResponseTime)] = report.Metrics.MaxResponseTime
		out[Of(KindMinResponseTime)] = report.Metrics.MinResponseTime
		out[Of(KindP50ResponseTime)] = report.Metrics.P50ResponseTime
		out[Of(KindP90ResponseTime)] = report.Metrics.P90ResponseTime
		out[Of(KindP99ResponseTime)] = report.Metrics.P99ResponseTime
	}
	if r := report.Metrics.Resources; r != nil {
		out[Of(KindMemoryUsage)] = float64(r.HeapUsedBytes)
		out[Of(KindCPUUsage)] = r.CPUTimeMs
	}
	if b := report.Metrics.Browser; b != nil {
		out[Of(KindBrowserMemoryUsage)] = b.MemoryUsage
		out[Of(KindBrowserCPUUsage)] = b.CPUUsage
	}
	if n := report.Metrics.Network; n != nil {
		for kind, v := range map[Kind]*float64{
			KindNetworkLatency:    n.Latency,
			KindDNSLookupTime:     n.DNSLookup,
			KindTCPConnectionTime: n.TCPConnection,
		} {
			if v != nil {
				out[Of(kind)] = *v
			}
		}
	}
	return out
}

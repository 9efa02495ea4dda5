package metrics

import (
	"fmt"
	"strings"
)

// Kind enumerates the tracked metric kinds.
type Kind int

const (
	KindStepTime Kind = iota
	KindTotalTime
	KindRunDuration
	KindSuccessRate
	KindFailureRate
	KindAverageResponseTime
	KindMaxResponseTime
	KindMinResponseTime
	KindP50ResponseTime
	KindP90ResponseTime
	KindP99ResponseTime
	KindMemoryUsage
	KindCPUUsage
	KindUsersPerSecond
	KindThroughput
	KindErrorRate
	KindRetryCount
	KindBrowserMemoryUsage
	KindBrowserCPUUsage
	KindNetworkLatency
	KindDNSLookupTime
	KindTCPConnectionTime
	kindCount
)

// Category groups metric kinds the way history trends are organised.
type Category string

const (
	CategoryTiming   Category = "timing"
	CategoryRate     Category = "rate"
	CategoryResponse Category = "response"
	CategoryResource Category = "resource"
	CategoryLoad     Category = "load"
	CategoryError    Category = "error"
	CategoryBrowser  Category = "browser"
	CategoryNetwork  Category = "network"
)

var kindInfo = [kindCount]struct {
	name     string
	category Category
}{
	KindStepTime:            {"step", CategoryTiming},
	KindTotalTime:           {"totalTime", CategoryTiming},
	KindRunDuration:         {"runDuration", CategoryTiming},
	KindSuccessRate:         {"successRate", CategoryRate},
	KindFailureRate:         {"failureRate", CategoryRate},
	KindAverageResponseTime: {"averageResponseTime", CategoryResponse},
	KindMaxResponseTime:     {"maxResponseTime", CategoryResponse},
	KindMinResponseTime:     {"minResponseTime", CategoryResponse},
	KindP50ResponseTime:     {"p50ResponseTime", CategoryResponse},
	KindP90ResponseTime:     {"p90ResponseTime", CategoryResponse},
	KindP99ResponseTime:     {"p99ResponseTime", CategoryResponse},
	KindMemoryUsage:         {"memoryUsage", CategoryResource},
	KindCPUUsage:            {"cpuUsage", CategoryResource},
	KindUsersPerSecond:      {"usersPerSecond", CategoryLoad},
	KindThroughput:          {"throughput", CategoryLoad},
	KindErrorRate:           {"errorRate", CategoryError},
	KindRetryCount:          {"retryCount", CategoryError},
	KindBrowserMemoryUsage:  {"browserMemoryUsage", CategoryBrowser},
	KindBrowserCPUUsage:     {"browserCpuUsage", CategoryBrowser},
	KindNetworkLatency:      {"networkLatency", CategoryNetwork},
	KindDNSLookupTime:       {"dnsLookupTime", CategoryNetwork},
	KindTCPConnectionTime:   {"tcpConnectionTime", CategoryNetwork},
}

const stepPrefix = "step:"

// String returns the kind's canonical name.
func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindInfo[k].name
}

// Category returns the trend category of k.
func (k Kind) Category() Category {
	if k < 0 || k >= kindCount {
		return ""
	}
	return kindInfo[k].category
}

// Metric identifies one tracked series. Step is set only for KindStepTime.
type Metric struct {
	Kind Kind
	Step string
}

// Of returns the metric for a fixed kind.
func Of(k Kind) Metric { return Metric{Kind: k} }

// StepMetric returns the timing metric for a named workflow phase.
func StepMetric(name string) Metric { return Metric{Kind: KindStepTime, Step: name} }

// Name renders the metric as used in persisted trend keys.
func (m Metric) Name() string {
	if m.Kind == KindStepTime {
		return stepPrefix + m.Step
	}
	return m.Kind.String()
}

func (m Metric) String() string { return m.Name() }

// MarshalText lets Metric act as a JSON object key.
func (m Metric) MarshalText() ([]byte, error) {
	if m.Kind < 0 || m.Kind >= kindCount {
		return nil, fmt.Errorf("unknown metric kind %d", int(m.Kind))
	}
	if m.Kind == KindStepTime && m.Step == "" {
		return nil, fmt.Errorf("step metric without a step name")
	}
	return []byte(m.Name()), nil
}

// UnmarshalText parses a persisted metric name.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMetric resolves a metric name; unknown names are rejected.
func ParseMetric(name string) (Metric, error) {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, stepPrefix) {
		step := strings.TrimPrefix(name, stepPrefix)
		if step == "" {
			return Metric{}, fmt.Errorf("metric %q: missing step name", name)
		}
		return StepMetric(step), nil
	}
	for k := KindTotalTime; k < kindCount; k++ {
		if strings.EqualFold(kindInfo[k].name, name) {
			return Of(k), nil
		}
	}
	return Metric{}, fmt.Errorf("unknown metric %q", name)
}

// Kinds returns every fixed (non-step) kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount-1)
	for k := KindTotalTime; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Less orders metrics by kind, then step name.
func Less(a, b Metric) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.Step < b.Step
}

package history

import (
	"fmt"
	"math"
	"sort"

	"github.com/torosent/vuload/internal/metrics"
)

// Direction classifies a trend change. A zero change counts as a decrease.
type Direction string

const (
	Increase Direction = "increase"
	Decrease Direction = "decrease"
)

// Change compares the two most recent points of one metric.
type Change struct {
	Metric    metrics.Metric `json:"metric"`
	Previous  float64        `json:"previous"`
	Latest    float64        `json:"latest"`
	Percent   float64        `json:"-"`
	Display   string         `json:"change"`
	Direction Direction      `json:"trend"`
	// Undefined is set when the previous value is zero; Percent is then
	// +Inf, -Inf or NaN depending on the latest value.
	Undefined bool `json:"undefined,omitempty"`
}

// AnalyzeTrends reports the change between the last two points of every
// metric with at least two observations, ordered by metric.
func AnalyzeTrends(doc Document) []Change {
	var out []Change
	for m, series := range doc.Trends {
		if len(series) < 2 {
			continue
		}
		prev := series[len(series)-2].Value
		latest := series[len(series)-1].Value
		out = append(out, changeBetween(m, prev, latest))
	}
	sort.Slice(out, func(i, j int) bool { return metrics.Less(out[i].Metric, out[j].Metric) })
	return out
}

func changeBetween(m metrics.Metric, prev, latest float64) Change {
	c := Change{Metric: m, Previous: prev, Latest: latest}
	if prev == 0 {
		c.Undefined = true
		switch {
		case latest > 0:
			c.Percent = math.Inf(1)
		case latest < 0:
			c.Percent = math.Inf(-1)
		default:
			c.Percent = math.NaN()
		}
	} else {
		c.Percent = 100 * (latest - prev) / prev
	}

	c.Direction = Decrease
	if c.Percent > 0 {
		c.Direction = Increase
	}
	c.Display = FormatPercent(c.Percent)
	return c
}

// FormatPercent renders a percentage with two decimals, spelling out
// infinities and NaN.
func FormatPercent(p float64) string {
	switch {
	case math.IsNaN(p):
		return "NaN%"
	case math.IsInf(p, 1):
		return "+Inf%"
	case math.IsInf(p, -1):
		return "-Inf%"
	}
	return fmt.Sprintf("%.2f%%", p)
}

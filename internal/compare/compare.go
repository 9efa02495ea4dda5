// Package compare contrasts the latest run at each concurrency level.
package compare

import (
	"math"
	"sort"

	"github.com/torosent/vuload/internal/history"
	"github.com/torosent/vuload/internal/metrics"
)

// z95 is the normal quantile of a two-sided 95% interval.
const z95 = 1.96

// Difference is the change of a metric between two adjacent load levels.
type Difference struct {
	From       int     `json:"from"`
	To         int     `json:"to"`
	Absolute   float64 `json:"absolute"`
	Percentage float64 `json:"percentage"`
}

// Interval is a closed range of values.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Statistics describes one metric across load levels using population
// formulas.
type Statistics struct {
	N                  int      `json:"n"`
	Mean               float64  `json:"mean"`
	StdDev             float64  `json:"stdDev"`
	Min                float64  `json:"min"`
	Max                float64  `json:"max"`
	Range              float64  `json:"range"`
	ConfidenceInterval Interval `json:"confidenceInterval"`
}

// Result is the cross-level comparison. Metrics holds one entry per level in
// UserCounts order; nil marks a level whose run did not observe the metric.
type Result struct {
	UserCounts  []int                           `json:"userCounts"`
	Metrics     map[metrics.Metric][]*float64   `json:"metrics"`
	Differences map[metrics.Metric][]Difference `json:"differences"`
	Statistics  map[metrics.Metric]Statistics   `json:"statistics"`
}

// Compare groups runs by user count, keeps the most recently appended run of
// each level and compares the levels in ascending order. It does not modify doc.
func Compare(doc history.Document) Result {
	latest := map[int]metrics.RunReport{}
	for _, run := range doc.Runs {
		latest[run.NumUsers] = run
	}

	res := Result{
		UserCounts:  make([]int, 0, len(latest)),
		Metrics:     map[metrics.Metric][]*float64{},
		Differences: map[metrics.Metric][]Difference{},
		Statistics:  map[metrics.Metric]Statistics{},
	}
	for users := range latest {
		res.UserCounts = append(res.UserCounts, users)
	}
	sort.Ints(res.UserCounts)

	observed := make([]map[metrics.Metric]float64, len(res.UserCounts))
	for i, users := range res.UserCounts {
		observed[i] = metrics.Observe(latest[users])
		for m := range observed[i] {
			if _, ok := res.Metrics[m]; !ok {
				res.Metrics[m] = make([]*float64, len(res.UserCounts))
			}
		}
	}

	for m, values := range res.Metrics {
		defined := make([]float64, 0, len(values))
		for i := range values {
			if v, ok := observed[i][m]; ok {
				values[i] = &v
				defined = append(defined, v)
			}
		}
		if diffs := differences(res.UserCounts, values); len(diffs) > 0 {
			res.Differences[m] = diffs
		}
		if stats, ok := Describe(defined); ok {
			res.Statistics[m] = stats
		}
	}
	return res
}

// differences compares each level with the one before it when both carry a
// value. A zero previous value divides by one instead.
func differences(levels []int, values []*float64) []Difference {
	var out []Difference
	for i := 1; i < len(values); i++ {
		prev, cur := values[i-1], values[i]
		if prev == nil || cur == nil {
			continue
		}
		abs := *cur - *prev
		denom := *prev
		if denom == 0 {
			denom = 1
		}
		out = append(out, Difference{
			From:       levels[i-1],
			To:         levels[i],
			Absolute:   abs,
			Percentage: 100 * abs / denom,
		})
	}
	return out
}

// Describe computes population statistics of values. ok is false for an
// empty input.
func Describe(values []float64) (stats Statistics, ok bool) {
	n := len(values)
	if n == 0 {
		return Statistics{}, false
	}
	stats.N = n
	stats.Min, stats.Max = values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		stats.Min = math.Min(stats.Min, v)
		stats.Max = math.Max(stats.Max, v)
	}
	stats.Mean = sum / float64(n)

	var sq float64
	for _, v := range values {
		d := v - stats.Mean
		sq += d * d
	}
	stats.StdDev = math.Sqrt(sq / float64(n))
	stats.Range = stats.Max - stats.Min

	margin := z95 * stats.StdDev / math.Sqrt(float64(n))
	stats.ConfidenceInterval = Interval{Lower: stats.Mean - margin, Upper: stats.Mean + margin}
	return stats, true
}

// MetricNames returns the compared metrics in a stable order.
func (r Result) MetricNames() []metrics.Metric {
	out := make([]metrics.Metric, 0, len(r.Metrics))
	for m := range r.Metrics {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return metrics.Less(out[i], out[j]) })
	return out
}

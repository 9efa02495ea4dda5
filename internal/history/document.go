// Package history persists every run report and tracks how each metric
// evolves across runs.
package history

import (
	"time"

	"github.com/torosent/vuload/internal/metrics"
)

// TrendPoint is one observation of a metric.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	NumUsers  int       `json:"numUsers"`
}

// Document is the persisted aggregate: every run in submission order plus
// one append-only series per metric.
type Document struct {
	Runs   []metrics.RunReport             `json:"runs"`
	Trends map[metrics.Metric][]TrendPoint `json:"trends"`
}

// NewDocument returns an empty document.
func NewDocument() Document {
	return Document{Runs: []metrics.RunReport{}, Trends: map[metrics.Metric][]TrendPoint{}}
}

// Clone deep-copies the slices and maps of d. Reports are copied by value.
func (d Document) Clone() Document {
	out := Document{
		Runs:   append([]metrics.RunReport{}, d.Runs...),
		Trends: make(map[metrics.Metric][]TrendPoint, len(d.Trends)),
	}
	for m, series := range d.Trends {
		out.Trends[m] = append([]TrendPoint(nil), series...)
	}
	return out
}

// Append records report and one trend point per metric it observes. Metrics
// the report carries no data for are left untouched.
func (d *Document) Append(report metrics.RunReport) {
	if d.Trends == nil {
		d.Trends = map[metrics.Metric][]TrendPoint{}
	}
	d.Runs = append(d.Runs, report)

	for m, v := range metrics.Observe(report) {
		series := d.Trends[m]
		ts := report.Timestamp
		// Keep each series ordered even if the wall clock stepped back.
		if n := len(series); n > 0 && ts.Before(series[n-1].Timestamp) {
			ts = series[n-1].Timestamp
		}
		d.Trends[m] = append(series, TrendPoint{Timestamp: ts, Value: v, NumUsers: report.NumUsers})
	}
}

func (d *Document) normalize() {
	if d.Runs == nil {
		d.Runs = []metrics.RunReport{}
	}
	if d.Trends == nil {
		d.Trends = map[metrics.Metric][]TrendPoint{}
	}
}

package output

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/torosent/vuload/internal/metrics"
)

// NewRunRegistry exposes every metric observed in report as a gauge on a
// fresh registry. Step timings share one gauge labelled by step.
func NewRunRegistry(report metrics.RunReport) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"run_id": report.ID, "mode": string(report.Mode)}

	usersGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "vuload",
		Name:        "users",
		Help:        "Virtual users launched by the run.",
		ConstLabels: labels,
	})
	usersGauge.Set(float64(report.NumUsers))

	steps := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   "vuload",
		Name:        "step_average_milliseconds",
		Help:        "Average step time across successful users.",
		ConstLabels: labels,
	}, []string{"step"})

	if err := reg.Register(usersGauge); err != nil {
		return nil, err
	}
	if err := reg.Register(steps); err != nil {
		return nil, err
	}

	for m, v := range metrics.Observe(report) {
		if m.Kind == metrics.KindStepTime {
			steps.WithLabelValues(m.Step).Set(v)
			continue
		}
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "vuload",
			Name:        gaugeName(m.Kind.String()),
			Help:        "Run metric " + m.Kind.String() + ".",
			ConstLabels: labels,
		})
		g.Set(v)
		if err := reg.Register(g); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// WritePrometheusTextfile writes the run metrics in the text exposition
// format, e.g. for the node_exporter textfile collector.
func WritePrometheusTextfile(path string, report metrics.RunReport) error {
	reg, err := NewRunRegistry(report)
	if err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, reg)
}

// gaugeName converts a camelCase metric name to snake_case.
func gaugeName(name string) string {
	out := make([]byte, 0, len(name)+4)
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

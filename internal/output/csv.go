package output

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/torosent/vuload/internal/metrics"
)

// WriteCSVReport writes one row per user followed by a summary row. Step
// timing columns are the union of every user's timings, sorted by name.
func WriteCSVReport(w io.Writer, report metrics.RunReport) error {
	steps := map[string]float64{}
	for _, r := range report.Results {
		for name := range r.Timings {
			steps[name] = 0
		}
	}
	stepNames := metrics.StepTiming(steps).Names()

	cw := csv.NewWriter(w)
	header := []string{"user", "success", "crashed", "retries", "total_ms"}
	for _, name := range stepNames {
		header = append(header, name+"_ms")
	}
	header = append(header, "error")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range report.Results {
		row := []string{
			strconv.Itoa(r.User),
			strconv.FormatBool(r.Success),
			strconv.FormatBool(r.Crashed),
			strconv.Itoa(r.RetryCount),
			formatValue(r.TotalTime),
		}
		for _, name := range stepNames {
			v, ok := r.Timings[name]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, formatValue(v))
		}
		row = append(row, r.Error)
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	if s := report.Statistics; s != nil {
		row := []string{"average", "", "", strconv.Itoa(report.Metrics.RetryCount), formatValue(s.AverageTotalTime)}
		for _, name := range stepNames {
			v, ok := s.AverageStepTimes[name]
			if !ok {
				row = append(row, "")
				continue
			}
			row = append(row, formatValue(v))
		}
		row = append(row, "")
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

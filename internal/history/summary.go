package history

import (
	"sort"
	"time"

	"github.com/torosent/vuload/internal/metrics"
)

// ErrorCount is how often one error message occurred across all runs.
type ErrorCount struct {
	Error string `json:"error"`
	Count int    `json:"count"`
}

// Summary condenses a history document for reports.
type Summary struct {
	GeneratedAt     time.Time          `json:"generatedAt"`
	TotalRuns       int                `json:"totalRuns"`
	RunsByUserCount map[int]int        `json:"byUserCount"`
	Trends          []Change           `json:"trends"`
	CommonErrors    []ErrorCount       `json:"commonErrors"`
	Latest          *metrics.RunReport `json:"latest,omitempty"`
}

// Summarize builds the summary of doc.
func Summarize(doc Document) Summary {
	s := Summary{
		GeneratedAt:     time.Now().UTC(),
		TotalRuns:       len(doc.Runs),
		RunsByUserCount: map[int]int{},
		Trends:          AnalyzeTrends(doc),
		CommonErrors:    CommonErrors(doc),
	}
	for _, run := range doc.Runs {
		s.RunsByUserCount[run.NumUsers]++
	}
	if n := len(doc.Runs); n > 0 {
		latest := doc.Runs[n-1]
		s.Latest = &latest
	}
	return s
}

// CommonErrors counts error messages over every user of every run, most
// frequent first. Ties are ordered by message.
func CommonErrors(doc Document) []ErrorCount {
	counts := map[string]int{}
	for _, run := range doc.Runs {
		for _, r := range run.Results {
			if r.Error != "" {
				counts[r.Error]++
			}
		}
	}
	out := make([]ErrorCount, 0, len(counts))
	for msg, n := range counts {
		out = append(out, ErrorCount{Error: msg, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Error < out[j].Error
	})
	return out
}

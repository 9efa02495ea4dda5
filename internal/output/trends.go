package output

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/torosent/vuload/internal/compare"
	"github.com/torosent/vuload/internal/history"
)

// PrintSummary outputs the history summary: run counts, per-metric trends and
// the most common errors.
func PrintSummary(w io.Writer, s history.Summary, scheme *ColorScheme) {
	if scheme == nil {
		scheme = NoColorScheme()
	}
	scheme.Title.Fprintln(w, "\n--- Performance History ---")
	fmt.Fprintf(w, "Total Runs:        %d\n", s.TotalRuns)
	if len(s.RunsByUserCount) > 0 {
		fmt.Fprintf(w, "Runs by Users:     %s\n", formatUserCounts(s.RunsByUserCount))
	}
	if s.Latest != nil {
		fmt.Fprintf(w, "Latest Run:        %s (%d users, %.2f%% success)\n",
			s.Latest.ID, s.Latest.NumUsers, s.Latest.SuccessRate)
	}
	PrintTrends(w, s.Trends, scheme)

	if len(s.CommonErrors) > 0 {
		scheme.Title.Fprintln(w, "\nCommon Errors:")
		for _, e := range s.CommonErrors {
			fmt.Fprintf(w, "  %4d  %s\n", e.Count, e.Error)
		}
	}
}

// PrintTrends outputs a table of metric changes between the last two runs.
func PrintTrends(w io.Writer, changes []history.Change, scheme *ColorScheme) {
	if scheme == nil {
		scheme = NoColorScheme()
	}
	scheme.Title.Fprintln(w, "\nTrends:")
	if len(changes) == 0 {
		scheme.Dim.Fprintln(w, "  not enough runs to compute trends")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  METRIC\tPREVIOUS\tLATEST\tCHANGE\tTREND")
	for _, c := range changes {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
			c.Metric, formatValue(c.Previous), formatValue(c.Latest), c.Display, c.Direction)
	}
	tw.Flush()
}

// PrintComparison outputs one row per metric with its value at every load
// level, followed by the spread statistics.
func PrintComparison(w io.Writer, r compare.Result, scheme *ColorScheme) {
	if scheme == nil {
		scheme = NoColorScheme()
	}
	scheme.Title.Fprintln(w, "\n--- Load Level Comparison ---")
	if len(r.UserCounts) == 0 {
		scheme.Dim.Fprintln(w, "  no runs recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"  METRIC"}
	for _, n := range r.UserCounts {
		header = append(header, strconv.Itoa(n)+" users")
	}
	header = append(header, "MEAN", "STDDEV", "95% CI")
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, m := range r.MetricNames() {
		row := []string{"  " + m.String()}
		for _, v := range r.Metrics[m] {
			if v == nil {
				row = append(row, "-")
				continue
			}
			row = append(row, formatValue(*v))
		}
		if st, ok := r.Statistics[m]; ok {
			row = append(row, formatValue(st.Mean), formatValue(st.StdDev),
				fmt.Sprintf("[%s, %s]", formatValue(st.ConfidenceInterval.Lower), formatValue(st.ConfidenceInterval.Upper)))
		} else {
			row = append(row, "-", "-", "-")
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()

	if len(r.UserCounts) < 2 {
		return
	}
	scheme.Title.Fprintln(w, "\nLevel Differences:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  METRIC\tFROM\tTO\tABSOLUTE\tPERCENT")
	for _, m := range r.MetricNames() {
		for _, d := range r.Differences[m] {
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%s\t%s\n",
				m, d.From, d.To, formatValue(d.Absolute), history.FormatPercent(d.Percentage))
		}
	}
	tw.Flush()
}

func formatUserCounts(counts map[int]int) string {
	levels := make([]int, 0, len(counts))
	for n := range counts {
		levels = append(levels, n)
	}
	sort.Ints(levels)
	parts := make([]string, len(levels))
	for i, n := range levels {
		parts[i] = fmt.Sprintf("%d users x%d", n, counts[n])
	}
	return strings.Join(parts, ", ")
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/torosent/vuload/internal/metrics"
)

// WriteStepLog writes one line per entry of a user's step log.
func WriteStepLog(w io.Writer, entries []metrics.LogEntry) error {
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, formatLogEntry(e, "2006-01-02T15:04:05.000Z07:00")); err != nil {
			return err
		}
	}
	return nil
}

func formatLogEntry(e metrics.LogEntry, layout string) string {
	var b strings.Builder
	b.WriteString(e.Time.Format(layout))
	fmt.Fprintf(&b, " %-7s", strings.ToUpper(e.Level))
	if e.Step != "" {
		fmt.Fprintf(&b, " [%s]", e.Step)
	}
	b.WriteString(" " + e.Message)
	if e.Error != "" {
		b.WriteString(": " + e.Error)
	}
	return b.String()
}

// problemEntries keeps the warnings and errors of a step log.
func problemEntries(entries []metrics.LogEntry) []metrics.LogEntry {
	var out []metrics.LogEntry
	for _, e := range entries {
		switch e.Level {
		case "warning", "error", "fatal", "panic":
			out = append(out, e)
		}
	}
	return out
}

package runner

import (
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/torosent/vuload/internal/metrics"
)

// trail is a logrus hook that keeps one user's entries in memory and forwards
// each of them to the operator logger.
type trail struct {
	mu      sync.Mutex
	entries []metrics.LogEntry
	forward logrus.FieldLogger
}

// newTrail returns the trail and a logger that writes through it.
func newTrail(forward logrus.FieldLogger) (*trail, *logrus.Logger) {
	t := &trail{forward: forward}
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.DebugLevel)
	l.AddHook(t)
	return t, l
}

func (t *trail) Levels() []logrus.Level { return logrus.AllLevels }

func (t *trail) Fire(e *logrus.Entry) error {
	entry := metrics.LogEntry{
		Time:    e.Time,
		Level:   e.Level.String(),
		Message: e.Message,
	}
	for _, key := range []string{"step", "label"} {
		if v, ok := e.Data[key]; ok && entry.Step == "" {
			entry.Step = fmt.Sprint(v)
		}
	}
	if err, ok := e.Data[logrus.ErrorKey]; ok {
		entry.Error = fmt.Sprint(err)
	}

	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.mu.Unlock()

	out := t.forward.WithFields(e.Data)
	switch e.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		out.Error(e.Message)
	case logrus.WarnLevel:
		out.Warn(e.Message)
	case logrus.InfoLevel:
		out.Info(e.Message)
	default:
		out.Debug(e.Message)
	}
	return nil
}

// Entries returns a copy of what was recorded so far.
func (t *trail) Entries() []metrics.LogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]metrics.LogEntry(nil), t.entries...)
}

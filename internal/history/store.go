package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/torosent/vuload/internal/metrics"
)

// Store is the process-wide history handle. AddRun is safe for concurrent
// use; the load-modify-persist sequence runs under both an in-process mutex
// and the backend's lock when it has one.
type Store struct {
	mu      sync.Mutex
	backend Backend
	log     logrus.FieldLogger
	doc     Document
}

// NewStore loads the current document from backend. An absent or unreadable
// document yields an empty history.
func NewStore(ctx context.Context, backend Backend, logger logrus.FieldLogger) (*Store, error) {
	if backend == nil {
		return nil, errors.New("history: backend is required")
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	s := &Store{backend: backend, log: logger, doc: NewDocument()}
	s.Load(ctx)
	return s, nil
}

// Load replaces the in-memory document with the stored one. Read and decode
// failures are logged and leave an empty history.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read(ctx, false)
	if err != nil {
		s.log.WithError(err).Warn("Could not read performance history, starting empty")
		doc = NewDocument()
	}
	s.doc = doc
}

// AddRun appends report to history and persists the whole document. Failure
// snapshots are not persisted. When AddRun returns nil the stored document
// contains the run; on error nothing changes.
func (s *Store) AddRun(ctx context.Context, report metrics.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.backend.(Locker); ok {
		unlock, err := l.Lock(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := unlock(); err != nil {
				s.log.WithError(err).Warn("Failed to release history lock")
			}
		}()
	}

	// Another process may have appended since we loaded.
	doc, err := s.read(ctx, true)
	if err != nil {
		return err
	}
	doc.Append(report.WithoutDiagnostics())

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := s.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("persist history: %w", err)
	}
	s.doc = doc
	s.log.WithFields(logrus.Fields{
		"run_id":     report.ID,
		"total_runs": len(doc.Runs),
	}).Debug("Run added to history")
	return nil
}

// Snapshot returns a copy of the current document.
func (s *Store) Snapshot() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Summary derives the history summary and logs any undefined trend change.
func (s *Store) Summary() Summary {
	summary := Summarize(s.Snapshot())
	for _, c := range summary.Trends {
		if c.Undefined {
			s.log.WithFields(logrus.Fields{
				"metric":   c.Metric.Name(),
				"previous": c.Previous,
				"latest":   c.Latest,
			}).Warn("Trend change undefined: previous value is zero")
		}
	}
	return summary
}

// read loads the stored document. I/O failures are returned so a write never
// replaces history that merely could not be read. A corrupt document is
// quarantined when the backend supports it; in strict mode a failed
// quarantine is an error too.
func (s *Store) read(ctx context.Context, strict bool) (Document, error) {
	data, err := s.backend.Read(ctx)
	if errors.Is(err, ErrNotFound) {
		return NewDocument(), nil
	}
	if err != nil {
		return Document{}, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		entry := s.log.WithError(err)
		if q, ok := s.backend.(Quarantiner); ok {
			dest, qerr := q.Quarantine(ctx)
			if qerr != nil {
				if strict {
					return Document{}, fmt.Errorf("history is corrupt and could not be set aside: %w", qerr)
				}
				entry = entry.WithField("quarantine_error", qerr)
			} else {
				entry = entry.WithField("backup", dest)
			}
		}
		entry.Warn("Performance history is corrupt, starting empty")
		return NewDocument(), nil
	}
	doc.normalize()
	return doc, nil
}

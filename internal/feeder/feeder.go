// Package feeder supplies per-user data records, such as checkout form
// values, from CSV or JSON files.
package feeder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Record represents a single row of data with named fields.
type Record map[string]string

// Feeder hands out records in deterministic round-robin order, rewinding after
// the last one. Implementations must be safe for concurrent use.
type Feeder interface {
	Next(ctx context.Context) (Record, error)
	Close() error
	Len() int
}

// ErrEmpty is returned when a dataset holds no records.
var ErrEmpty = errors.New("feeder: dataset has no records")

// Open builds a feeder for path. kind is "csv" or "json"; when empty it is
// inferred from the file extension.
func Open(path, kind string) (Feeder, error) {
	if kind == "" {
		kind = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch strings.ToLower(kind) {
	case "csv":
		return NewCSVFeeder(path)
	case "json":
		return NewJSONFeeder(path)
	default:
		return nil, fmt.Errorf("feeder: unsupported type %q", kind)
	}
}

// dataset is the shared round-robin cursor behind every file feeder.
type dataset struct {
	mu      sync.Mutex
	records []Record
	index   int
}

func (d *dataset) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.records) == 0 {
		return nil, ErrEmpty
	}
	rec := d.records[d.index%len(d.records)]
	d.index++
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out, nil
}

func (d *dataset) Close() error { return nil }

func (d *dataset) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// Static serves an in-memory list of records.
func Static(records ...Record) Feeder {
	return &dataset{records: records}
}

// Substitute replaces every {{field}} in template with the matching value
// from each record, earlier records taking precedence. Unknown placeholders are
// left intact.
func Substitute(template string, records ...Record) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	result := template
	for _, rec := range records {
		for key, value := range rec {
			result = strings.ReplaceAll(result, "{{"+key+"}}", value)
		}
	}
	return result
}

package history

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Backend.Read when no document has been stored yet.
var ErrNotFound = errors.New("history: document not found")

// Backend stores the serialized history document.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// Locker is implemented by backends that can be shared between processes.
// The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context) (unlock func() error, err error)
}

// Quarantiner is implemented by backends that can set an unreadable document
// aside instead of overwriting it.
type Quarantiner interface {
	Quarantine(ctx context.Context) (string, error)
}

// MemoryBackend keeps the document in memory. It is safe for concurrent use.
type MemoryBackend struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryBackend returns a backend seeded with data, which may be nil.
func NewMemoryBackend(data []byte) *MemoryBackend {
	return &MemoryBackend{data: append([]byte(nil), data...)}
}

func (m *MemoryBackend) Read(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemoryBackend) Write(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	return nil
}

package storage

import (
	"errors"
	"io"
	"sync/atomic"
)

var errMemoryClosed = errors.New("memory source: closed")

// MemorySource is an in-memory Source, used for tests and for archives that are
// already fully loaded.
type MemorySource struct {
	data   []byte
	closed atomic.Bool
}

var _ Source = (*MemorySource)(nil)

// NewMemorySource wraps data without copying it; callers must not mutate data
// while the source is open.
func NewMemorySource(data []byte) *MemorySource {
	return &MemorySource{data: data}
}

// ReadAt implements io.ReaderAt.
func (m *MemorySource) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, errMemoryClosed
	}
	if off < 0 {
		return 0, errors.New("memory source: negative offset")
	}
	if off >= int64(len(m.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the number of bytes in the source.
func (m *MemorySource) Size() int64 { return int64(len(m.data)) }

// Close marks the source closed; later reads fail.
func (m *MemorySource) Close() error {
	m.closed.Store(true)
	return nil
}

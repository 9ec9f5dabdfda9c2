// Package storage provides the read-only byte views an archive is decoded from.
package storage

import (
	"fmt"
	"io"

	"golang.org/x/exp/mmap"
)

// Source is a read-only, random-access view over the bytes of a whole archive.
// ReadAt must be safe for concurrent use until Close is called.
type Source interface {
	io.ReaderAt
	Size() int64
	Close() error
}

// MappedFile is a Source backed by a read-only memory mapping of a file.
type MappedFile struct {
	path string
	r    *mmap.ReaderAt
}

var _ Source = (*MappedFile)(nil)

// OpenFile maps the file at path. The mapping and the file handle are both
// released by Close.
func OpenFile(path string) (*MappedFile, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &MappedFile{path: path, r: r}, nil
}

// Path returns the file the mapping was created from.
func (m *MappedFile) Path() string { return m.path }

// ReadAt implements io.ReaderAt over the mapping.
func (m *MappedFile) ReadAt(p []byte, off int64) (int, error) {
	return m.r.ReadAt(p, off)
}

// Size returns the length of the mapped file.
func (m *MappedFile) Size() int64 { return int64(m.r.Len()) }

// Close unmaps the file.
func (m *MappedFile) Close() error { return m.r.Close() }

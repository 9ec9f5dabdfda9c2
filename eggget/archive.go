package eggget

import (
	"io"
	"iter"
	"sync/atomic"

	"github.com/flaneur2020/egg-get/eggget/eggutil"
	eggerrors "github.com/flaneur2020/egg-get/eggget/errors"
	"github.com/flaneur2020/egg-get/eggget/logger"
	"github.com/flaneur2020/egg-get/eggget/storage"
)

// Options configures how an Archive walks its chunks.
type Options struct {
	// SkipEndMarkers walks past End chunks and stops at the end of the file.
	SkipEndMarkers bool
}

// EntryInfo describes a stored entry without decompressing it.
type EntryInfo struct {
	Name             string
	Method           eggutil.Method
	CompressedSize   int64
	UncompressedSize int64
	CRC              uint32
	HeaderOffset     int64 // offset of the entry's filename chunk
	DataOffset       int64 // offset of the compressed bytes
}

// Archive is an open egg archive. Every lookup is an independent walk from
// offset 0 with its own cursor, so methods may be called concurrently. Close
// must not race with in-flight calls.
type Archive struct {
	src    storage.Source
	path   string
	opts   Options
	closed atomic.Bool
}

// Open maps the archive at path and validates its header.
func Open(path string) (*Archive, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions is Open with explicit walk options.
func OpenWithOptions(path string, opts Options) (*Archive, error) {
	src, err := storage.OpenFile(path)
	if err != nil {
		return nil, eggerrors.ErrIO.WithDetail("path", path).WithCause(err)
	}

	a, err := NewArchive(src, opts)
	if err != nil {
		src.Close()
		return nil, err
	}
	a.path = path
	return a, nil
}

// NewArchive wraps an already opened Source. On success the Archive owns src
// and releases it on Close.
func NewArchive(src storage.Source, opts Options) (*Archive, error) {
	a := &Archive{src: src, opts: opts}
	if _, err := a.walker().Next(); err != nil {
		return nil, err
	}
	return a, nil
}

// Path returns the file the archive was opened from, or "" for a Source.
func (a *Archive) Path() string { return a.path }

// Size returns the archive size in bytes.
func (a *Archive) Size() int64 { return a.src.Size() }

// Close releases the byte view. Calling Close more than once is a no-op.
func (a *Archive) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	return a.src.Close()
}

func (a *Archive) walker() *eggutil.Walker {
	return eggutil.NewWalker(a.src, eggutil.WalkOptions{SkipEndMarkers: a.opts.SkipEndMarkers})
}

func (a *Archive) checkOpen() error {
	if a.closed.Load() {
		return eggerrors.ErrArchiveClosed.WithDetail("path", a.path)
	}
	return nil
}

// Chunks walks every chunk from offset 0. A terminal failure is yielded once
// with a zero Chunk and ends the sequence.
func (a *Archive) Chunks() iter.Seq2[eggutil.Chunk, error] {
	return func(yield func(eggutil.Chunk, error) bool) {
		if err := a.checkOpen(); err != nil {
			yield(eggutil.Chunk{}, err)
			return
		}

		w := a.walker()
		for {
			c, err := w.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(eggutil.Chunk{}, err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

// Entries lazily yields entry names in the order they appear in the file.
// A terminal failure is yielded once as ("", err) and ends the sequence; names
// yielded before it remain valid.
func (a *Archive) Entries() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for c, err := range a.Chunks() {
			if err != nil {
				yield("", err)
				return
			}
			if c.Kind != eggutil.KindFilename {
				continue
			}
			if !yield(c.Name, nil) {
				return
			}
		}
	}
}

// ListEntries collects Entries. When the walk fails part way, the names found
// before the failure are returned together with the error.
func (a *Archive) ListEntries() ([]string, error) {
	var names []string
	for name, err := range a.Entries() {
		if err != nil {
			logger.Debug("listing %s stopped after %d entries: %v", a.path, len(names), err)
			return names, err
		}
		names = append(names, name)
	}
	return names, nil
}

// EntryInfos pairs every filename with its block in a single walk. Like
// ListEntries it returns what it found before a failure along with the error.
func (a *Archive) EntryInfos() ([]EntryInfo, error) {
	var (
		infos   []EntryInfo
		pending *EntryInfo
	)
	for c, err := range a.Chunks() {
		if err != nil {
			return infos, err
		}
		switch c.Kind {
		case eggutil.KindFilename:
			if pending != nil {
				return infos, missingBlock(pending.Name, c.Offset)
			}
			pending = &EntryInfo{Name: c.Name, HeaderOffset: c.Offset}
		case eggutil.KindBlockHeader:
			if pending == nil {
				continue
			}
			fillBlock(pending, c)
			infos = append(infos, *pending)
			pending = nil
		}
	}
	if pending != nil {
		return infos, missingBlock(pending.Name, a.Size())
	}
	return infos, nil
}

// Stat locates the first entry called name and describes its block.
func (a *Archive) Stat(name string) (EntryInfo, error) {
	var (
		info    EntryInfo
		matched bool
	)
	for c, err := range a.Chunks() {
		if err != nil {
			return EntryInfo{}, err
		}
		if !matched {
			if c.Kind == eggutil.KindFilename && c.Name == name {
				matched = true
				info = EntryInfo{Name: name, HeaderOffset: c.Offset}
			}
			continue
		}

		switch c.Kind {
		case eggutil.KindEncryptHeader:
			return EntryInfo{}, eggerrors.ErrUnsupportedChunk.
				WithMessage("encrypted entries are not supported").
				WithDetail("name", name).
				WithDetail("offset", c.Offset)
		case eggutil.KindFilename:
			return EntryInfo{}, missingBlock(name, c.Offset)
		case eggutil.KindBlockHeader:
			fillBlock(&info, c)
			return info, nil
		}
	}
	if matched {
		return EntryInfo{}, missingBlock(name, a.Size())
	}
	return EntryInfo{}, eggerrors.ErrNotFound.WithDetail("name", name)
}

// ReadEntry returns the decompressed content of the first entry called name.
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	info, err := a.Stat(name)
	if err != nil {
		return nil, err
	}

	payload, err := a.payload(info)
	if err != nil {
		return nil, err
	}

	data, err := eggutil.Inflate(payload, info.Method, info.UncompressedSize)
	if err != nil {
		return nil, withName(err, name)
	}
	return data, nil
}

// OpenEntry streams the decompressed content of the first entry called name.
func (a *Archive) OpenEntry(name string) (io.ReadCloser, error) {
	info, err := a.Stat(name)
	if err != nil {
		return nil, err
	}
	return a.OpenEntryInfo(info)
}

// OpenEntryInfo streams the entry described by info, as returned by Stat or
// EntryInfos, without walking the archive again.
func (a *Archive) OpenEntryInfo(info EntryInfo) (io.ReadCloser, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	if info.DataOffset < 0 || info.CompressedSize < 0 || info.DataOffset+info.CompressedSize > a.Size() {
		return nil, eggerrors.ErrTruncated.
			WithDetail("name", info.Name).
			WithDetail("offset", info.DataOffset).
			WithDetail("length", info.CompressedSize)
	}

	section := io.NewSectionReader(a.src, info.DataOffset, info.CompressedSize)
	rc, err := eggutil.NewReader(section, info.Method, info.UncompressedSize)
	if err != nil {
		return nil, withName(err, info.Name)
	}
	return rc, nil
}

// WalkEnd returns the offset where a full walk stops. Without SkipEndMarkers
// it is below Size when an End chunk comes before the end of the file.
func (a *Archive) WalkEnd() (int64, error) {
	if err := a.checkOpen(); err != nil {
		return 0, err
	}

	w := a.walker()
	for {
		if _, err := w.Next(); err != nil {
			if err == io.EOF {
				return w.Pos(), nil
			}
			return w.Pos(), err
		}
	}
}

func (a *Archive) payload(info EntryInfo) ([]byte, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	buf := make([]byte, info.CompressedSize)
	if _, err := a.src.ReadAt(buf, info.DataOffset); err != nil {
		return nil, eggerrors.ErrIO.
			WithMessage("failed to read entry data").
			WithDetail("name", info.Name).
			WithDetail("offset", info.DataOffset).
			WithCause(err)
	}
	return buf, nil
}

func fillBlock(info *EntryInfo, c eggutil.Chunk) {
	info.Method = c.Method
	info.CompressedSize = int64(c.CompressedSize)
	info.UncompressedSize = int64(c.UncompressedSize)
	info.CRC = c.CRC
	info.DataOffset = c.DataOffset
}

func missingBlock(name string, offset int64) error {
	return eggerrors.ErrDecode.
		WithMessage("entry has no data block").
		WithDetail("name", name).
		WithDetail("offset", offset)
}

func withName(err error, name string) error {
	if eggErr, ok := err.(*eggerrors.EggError); ok {
		return eggErr.WithDetail("name", name)
	}
	return err
}

package eggutil_test

import (
	"errors"
	"io"
	"testing"

	"github.com/flaneur2020/egg-get/eggget/eggutil"
	eggerrors "github.com/flaneur2020/egg-get/eggget/errors"
	"github.com/flaneur2020/egg-get/eggget/storage"
	"github.com/flaneur2020/egg-get/internal/eggtest"
)

const headerLen = eggutil.ArchiveHeaderSize

func TestNextChunk_Lengths(t *testing.T) {
	tests := []struct {
		name       string
		build      func(b *eggtest.Builder)
		wantKind   eggutil.Kind
		wantLength int64
	}{
		{"file header", func(b *eggtest.Builder) { b.FileHeader(1, 10) }, eggutil.KindFileHeader, 16},
		{"stored block", func(b *eggtest.Builder) { b.Stored([]byte("hello")) }, eggutil.KindBlockHeader, 22 + 5},
		{"encrypt zip2.0", func(b *eggtest.Builder) { b.Encrypt(0) }, eggutil.KindEncryptHeader, 24},
		{"encrypt aes128", func(b *eggtest.Builder) { b.Encrypt(1) }, eggutil.KindEncryptHeader, 28},
		{"encrypt aes256", func(b *eggtest.Builder) { b.Encrypt(2) }, eggutil.KindEncryptHeader, 36},
		{"windows info", func(b *eggtest.Builder) { b.WindowsInfo() }, eggutil.KindWindowsInfo, 16},
		{"posix info", func(b *eggtest.Builder) { b.PosixInfo() }, eggutil.KindPosixInfo, 27},
		{"dummy", func(b *eggtest.Builder) { b.Dummy(9) }, eggutil.KindDummy, 7 + 9},
		{"filename", func(b *eggtest.Builder) { b.Filename("dir/a.txt") }, eggutil.KindFilename, 7 + 9},
		{"split", func(b *eggtest.Builder) { b.Split() }, eggutil.KindSplit, 15},
		{"solid", func(b *eggtest.Builder) { b.Solid() }, eggutil.KindSolid, 7},
		{"end", func(b *eggtest.Builder) { b.End() }, eggutil.KindEnd, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := eggtest.New().Header(1)
			tt.build(b)
			// a trailing chunk proves the length lands on the next tag
			b.End()
			view := storage.NewMemorySource(b.Bytes())

			c, err := eggutil.NextChunk(view, headerLen)
			if err != nil {
				t.Fatalf("NextChunk() error = %v", err)
			}
			if c.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", c.Kind, tt.wantKind)
			}
			if c.Length != tt.wantLength {
				t.Errorf("Length = %d, want %d", c.Length, tt.wantLength)
			}

			next, err := eggutil.NextChunk(view, c.End())
			if err != nil {
				t.Fatalf("NextChunk() after %v error = %v", c.Kind, err)
			}
			if next.Kind != eggutil.KindEnd {
				t.Errorf("chunk after %v = %v, want End", c.Kind, next.Kind)
			}
		})
	}
}

func TestNextChunk_BlockFields(t *testing.T) {
	original := []byte("hello, hello, hello")
	payload := eggtest.DeflateBytes(t, original)
	data := eggtest.New().Header(1).Block(eggtest.Deflate, payload, original).Bytes()

	c, err := eggutil.NextChunk(storage.NewMemorySource(data), headerLen)
	if err != nil {
		t.Fatalf("NextChunk() error = %v", err)
	}
	if c.Method != eggutil.MethodDeflate {
		t.Errorf("Method = %v, want deflate", c.Method)
	}
	if c.CompressedSize != uint32(len(payload)) {
		t.Errorf("CompressedSize = %d, want %d", c.CompressedSize, len(payload))
	}
	if c.UncompressedSize != uint32(len(original)) {
		t.Errorf("UncompressedSize = %d, want %d", c.UncompressedSize, len(original))
	}
	if c.DataOffset != headerLen+eggutil.BlockDataOffset {
		t.Errorf("DataOffset = %d, want %d", c.DataOffset, headerLen+eggutil.BlockDataOffset)
	}
}

func TestNextChunk_ArchiveHeaderValidation(t *testing.T) {
	tests := []struct {
		name     string
		version  uint16
		id       uint32
		reserved uint32
		wantErr  bool
	}{
		{"valid", 0x0100, 7, 0, false},
		{"wrong version", 0x0200, 7, 0, true},
		{"zero id", 0x0100, 0, 0, true},
		{"reserved set", 0x0100, 7, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := eggtest.New().RawHeader(tt.version, tt.id, tt.reserved).End().Bytes()
			c, err := eggutil.NextChunk(storage.NewMemorySource(data), 0)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NextChunk() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.Is(err, eggerrors.ErrBadArchiveHeader) {
					t.Errorf("error = %v, want BAD_ARCHIVE_HEADER", err)
				}
				return
			}
			if c.HeaderID != tt.id || c.Length != headerLen {
				t.Errorf("chunk = %+v, want id %d length %d", c, tt.id, headerLen)
			}
		})
	}
}

func TestNextChunk_Failures(t *testing.T) {
	tests := []struct {
		name    string
		build   func(b *eggtest.Builder)
		wantErr *eggerrors.EggError
	}{
		{
			name:    "fewer than four bytes",
			build:   func(b *eggtest.Builder) { b.Raw([]byte{0x13, 0x0c}) },
			wantErr: eggerrors.ErrTruncated,
		},
		{
			name:    "unknown tag",
			build:   func(b *eggtest.Builder) { b.Raw([]byte{0xde, 0xad, 0xbe, 0xef}) },
			wantErr: eggerrors.ErrUnrecognizedTag,
		},
		{
			name:    "comment",
			build:   func(b *eggtest.Builder) { b.Comment("hi") },
			wantErr: eggerrors.ErrUnsupportedChunk,
		},
		{
			name:    "unknown encryption",
			build:   func(b *eggtest.Builder) { b.Encrypt(9) },
			wantErr: eggerrors.ErrUnsupportedChunk,
		},
		{
			name:    "block larger than archive",
			build:   func(b *eggtest.Builder) { b.BlockHeaderOnly(0, 1<<20).Raw([]byte("abc")) },
			wantErr: eggerrors.ErrTruncated,
		},
		{
			name:    "block header cut short",
			build:   func(b *eggtest.Builder) { b.Raw([]byte{0x13, 0x0c, 0xb5, 0x02, 0x00}) },
			wantErr: eggerrors.ErrTruncated,
		},
		{
			name:    "filename larger than archive",
			build:   func(b *eggtest.Builder) { b.Raw([]byte{0xac, 0x91, 0x85, 0x0a, 0x00, 0xff, 0x00, 'a'}) },
			wantErr: eggerrors.ErrTruncated,
		},
		{
			name:    "fixed chunk cut short",
			build:   func(b *eggtest.Builder) { b.Raw([]byte{0x0b, 0x95, 0x86, 0x2c, 0x00}) },
			wantErr: eggerrors.ErrTruncated,
		},
		{
			name:    "invalid utf-8 filename",
			build:   func(b *eggtest.Builder) { b.RawFilename([]byte{'a', 0xff, 0xfe}) },
			wantErr: eggerrors.ErrDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := eggtest.New().Header(1)
			tt.build(b)
			_, err := eggutil.NextChunk(storage.NewMemorySource(b.Bytes()), headerLen)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NextChunk() error = %v, want %s", err, tt.wantErr.Code)
			}
		})
	}
}

func TestNextChunk_TruncatedNeverReadsPastEnd(t *testing.T) {
	data := eggtest.New().Header(1).BlockHeaderOnly(0, 100).Raw(make([]byte, 10)).Bytes()
	view := &boundedView{MemorySource: storage.NewMemorySource(data)}

	_, err := eggutil.NextChunk(view, headerLen)
	if !errors.Is(err, eggerrors.ErrTruncated) {
		t.Fatalf("NextChunk() error = %v, want TRUNCATED", err)
	}
	if view.outOfBounds {
		t.Error("NextChunk() read past the end of the view")
	}
}

// boundedView records reads that run past the end of the data.
type boundedView struct {
	*storage.MemorySource
	outOfBounds bool
}

func (v *boundedView) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > v.Size() {
		v.outOfBounds = true
	}
	n, err := v.MemorySource.ReadAt(p, off)
	if err == io.EOF && n == len(p) {
		err = nil
	}
	return n, err
}

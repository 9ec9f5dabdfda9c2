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

func walkAll(t *testing.T, w *eggutil.Walker) ([]eggutil.Chunk, error) {
	t.Helper()

	var chunks []eggutil.Chunk
	for {
		c, err := w.Next()
		if err == io.EOF {
			return chunks, nil
		}
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, c)
	}
}

func kinds(chunks []eggutil.Chunk) []eggutil.Kind {
	out := make([]eggutil.Kind, len(chunks))
	for i, c := range chunks {
		out[i] = c.Kind
	}
	return out
}

func equalKinds(a, b []eggutil.Kind) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWalker_AllChunkKinds(t *testing.T) {
	data := eggtest.New().
		Header(1).
		FileHeader(1, 2).
		Filename("a.txt").
		WindowsInfo().
		PosixInfo().
		Dummy(3).
		Split().
		Solid().
		Encrypt(1).
		Stored([]byte("hi")).
		End().
		Bytes()

	chunks, err := walkAll(t, eggutil.NewWalker(storage.NewMemorySource(data), eggutil.WalkOptions{}))
	if err != nil {
		t.Fatalf("walk error = %v", err)
	}

	want := []eggutil.Kind{
		eggutil.KindArchiveHeader,
		eggutil.KindFileHeader,
		eggutil.KindFilename,
		eggutil.KindWindowsInfo,
		eggutil.KindPosixInfo,
		eggutil.KindDummy,
		eggutil.KindSplit,
		eggutil.KindSolid,
		eggutil.KindEncryptHeader,
		eggutil.KindBlockHeader,
		eggutil.KindEnd,
	}
	if got := kinds(chunks); !equalKinds(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}

	var prev int64 = -1
	for _, c := range chunks {
		if c.Offset <= prev {
			t.Errorf("offset %d of %v does not advance past %d", c.Offset, c.Kind, prev)
		}
		prev = c.Offset
	}
	if last := chunks[len(chunks)-1]; last.End() != int64(len(data)) {
		t.Errorf("walk ended at %d, want %d", last.End(), len(data))
	}
}

func TestWalker_EndMarkerStopsWalk(t *testing.T) {
	data := eggtest.New().Header(1).End().Filename("hidden").Stored(nil).End().Bytes()
	view := storage.NewMemorySource(data)

	chunks, err := walkAll(t, eggutil.NewWalker(view, eggutil.WalkOptions{}))
	if err != nil {
		t.Fatalf("walk error = %v", err)
	}
	want := []eggutil.Kind{eggutil.KindArchiveHeader, eggutil.KindEnd}
	if got := kinds(chunks); !equalKinds(got, want) {
		t.Errorf("kinds = %v, want %v", got, want)
	}

	chunks, err = walkAll(t, eggutil.NewWalker(view, eggutil.WalkOptions{SkipEndMarkers: true}))
	if err != nil {
		t.Fatalf("walk with SkipEndMarkers error = %v", err)
	}
	want = []eggutil.Kind{
		eggutil.KindArchiveHeader,
		eggutil.KindEnd,
		eggutil.KindFilename,
		eggutil.KindBlockHeader,
		eggutil.KindEnd,
	}
	if got := kinds(chunks); !equalKinds(got, want) {
		t.Errorf("kinds with SkipEndMarkers = %v, want %v", got, want)
	}
}

func TestWalker_CleanEndWithoutEndMarker(t *testing.T) {
	data := eggtest.New().Header(1).Filename("a").Stored([]byte("x")).Bytes()

	chunks, err := walkAll(t, eggutil.NewWalker(storage.NewMemorySource(data), eggutil.WalkOptions{}))
	if err != nil {
		t.Fatalf("walk error = %v", err)
	}
	if len(chunks) != 3 {
		t.Errorf("chunks = %d, want 3", len(chunks))
	}
}

func TestWalker_HeaderRequired(t *testing.T) {
	tests := []struct {
		name      string
		data      []byte
		alsoMatch *eggerrors.EggError
	}{
		{"empty", nil, eggerrors.ErrTruncated},
		{"starts with filename", eggtest.New().Filename("a").End().Bytes(), nil},
		{"starts with garbage", []byte("PK\x03\x04 not an egg"), eggerrors.ErrUnrecognizedTag},
		{"reserved set", eggtest.New().RawHeader(0x0100, 1, 5).End().Bytes(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := eggutil.NewWalker(storage.NewMemorySource(tt.data), eggutil.WalkOptions{})
			_, err := w.Next()
			if !errors.Is(err, eggerrors.ErrBadArchiveHeader) {
				t.Fatalf("Next() error = %v, want BAD_ARCHIVE_HEADER", err)
			}
			if tt.alsoMatch != nil && !errors.Is(err, tt.alsoMatch) {
				t.Errorf("Next() error = %v, want it to wrap %s", err, tt.alsoMatch.Code)
			}
			if _, again := w.Next(); again != err {
				t.Errorf("Next() after failure = %v, want the same sticky error", again)
			}
		})
	}
}

func TestWalker_ReservedHeaderReadsNothingBeyondOffsetZero(t *testing.T) {
	data := eggtest.New().RawHeader(0x0100, 1, 1).Filename("a").Stored([]byte("x")).End().Bytes()
	view := &recordingView{MemorySource: storage.NewMemorySource(data)}

	_, err := eggutil.NewWalker(view, eggutil.WalkOptions{}).Next()
	if !errors.Is(err, eggerrors.ErrBadArchiveHeader) {
		t.Fatalf("Next() error = %v, want BAD_ARCHIVE_HEADER", err)
	}
	if view.maxEnd > eggutil.ArchiveHeaderSize {
		t.Errorf("read up to offset %d, want nothing past %d", view.maxEnd, eggutil.ArchiveHeaderSize)
	}
}

func TestWalker_DuplicateHeader(t *testing.T) {
	data := eggtest.New().Header(1).Header(2).End().Bytes()

	chunks, err := walkAll(t, eggutil.NewWalker(storage.NewMemorySource(data), eggutil.WalkOptions{}))
	if !errors.Is(err, eggerrors.ErrBadArchiveHeader) {
		t.Fatalf("walk error = %v, want BAD_ARCHIVE_HEADER", err)
	}
	if len(chunks) != 1 {
		t.Errorf("chunks before failure = %d, want 1", len(chunks))
	}
}

func TestWalker_IndependentCursors(t *testing.T) {
	data := eggtest.New().Header(1).Filename("a").Stored([]byte("1")).Filename("b").Stored([]byte("2")).End().Bytes()
	view := storage.NewMemorySource(data)

	w1 := eggutil.NewWalker(view, eggutil.WalkOptions{})
	w2 := eggutil.NewWalker(view, eggutil.WalkOptions{})

	for i := 0; i < 3; i++ {
		if _, err := w1.Next(); err != nil {
			t.Fatalf("w1.Next() error = %v", err)
		}
	}
	if w2.Pos() != 0 {
		t.Errorf("w2.Pos() = %d, want 0 while w1 advances", w2.Pos())
	}

	c, err := w2.Next()
	if err != nil || c.Kind != eggutil.KindArchiveHeader {
		t.Errorf("w2.Next() = %v, %v, want ArchiveHeader", c.Kind, err)
	}
}

type recordingView struct {
	*storage.MemorySource
	maxEnd int64
}

func (v *recordingView) ReadAt(p []byte, off int64) (int, error) {
	if end := off + int64(len(p)); end > v.maxEnd {
		v.maxEnd = end
	}
	return v.MemorySource.ReadAt(p, off)
}

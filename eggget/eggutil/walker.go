package eggutil

import (
	"io"

	eggerrors "github.com/flaneur2020/egg-get/eggget/errors"
	"github.com/flaneur2020/egg-get/eggget/logger"
)

// WalkOptions tunes how a walk decides it has reached the end of an archive.
type WalkOptions struct {
	// SkipEndMarkers treats End chunks as 4-byte separators instead of the
	// end of the walk; the walk then ends at the exact end of the view.
	// Archives written by the reference tool close every header group with
	// an End chunk and need this.
	SkipEndMarkers bool
}

// Walker is a caller-owned cursor over the chunks of one archive. The view it
// reads from is shared and read-only, so any number of Walkers may run over
// the same view concurrently; a single Walker is not safe for concurrent use.
type Walker struct {
	view    ByteView
	opts    WalkOptions
	pos     int64
	started bool
	err     error // sticky: io.EOF or the terminal failure
}

// NewWalker starts a walk at offset 0.
func NewWalker(view ByteView, opts WalkOptions) *Walker {
	return &Walker{view: view, opts: opts}
}

// Pos returns the offset of the next chunk to be decoded.
func (w *Walker) Pos() int64 { return w.pos }

// Next decodes the chunk at the cursor and advances past it. The first chunk
// must be a valid archive header. Next returns io.EOF once the walk has ended;
// any other error is terminal and is returned again by every later call.
func (w *Walker) Next() (Chunk, error) {
	if w.err != nil {
		return Chunk{}, w.err
	}

	if w.started && w.pos == w.view.Size() {
		w.err = io.EOF
		return Chunk{}, w.err
	}

	c, err := NextChunk(w.view, w.pos)
	if err != nil {
		logger.Debug("chunk walk stopped at offset %d: %v", w.pos, err)
		if !w.started && eggerrors.GetErrorCode(err) != eggerrors.ErrBadArchiveHeader.Code {
			err = eggerrors.ErrBadArchiveHeader.WithDetail("offset", w.pos).WithCause(err)
		}
		w.err = err
		return Chunk{}, err
	}

	switch {
	case !w.started && c.Kind != KindArchiveHeader:
		w.err = eggerrors.ErrBadArchiveHeader.
			WithDetail("offset", w.pos).
			WithDetail("kind", c.Kind.String())
		return Chunk{}, w.err
	case w.started && c.Kind == KindArchiveHeader:
		w.err = eggerrors.ErrBadArchiveHeader.
			WithMessage("duplicate archive header").
			WithDetail("offset", w.pos)
		return Chunk{}, w.err
	}

	w.started = true
	w.pos = c.End()
	if c.Kind == KindEnd && !w.opts.SkipEndMarkers {
		w.err = io.EOF
	}
	return c, nil
}

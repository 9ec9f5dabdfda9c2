package eggutil

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"

	eggerrors "github.com/flaneur2020/egg-get/eggget/errors"
)

// Method is the compression method byte of a block header.
type Method uint8

const (
	MethodStore   Method = 0
	MethodDeflate Method = 1 // raw DEFLATE, no zlib or gzip framing
	MethodBzip2   Method = 2
)

func (m Method) String() string {
	switch m {
	case MethodStore:
		return "store"
	case MethodDeflate:
		return "deflate"
	case MethodBzip2:
		return "bzip2"
	default:
		return fmt.Sprintf("method(%d)", uint8(m))
	}
}

// Decompressor turns a compressed block payload into a stream of the
// original bytes.
type Decompressor interface {
	Decompress(src io.Reader) (io.ReadCloser, error)
}

// StoredDecompressor implements the store method
type StoredDecompressor struct{}

func (StoredDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	if rc, ok := src.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(src), nil
}

// DeflateDecompressor implements the deflate method
type DeflateDecompressor struct{}

func (DeflateDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(src), nil
}

// Bzip2Decompressor implements the bzip2 method
type Bzip2Decompressor struct{}

func (Bzip2Decompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	zr, err := bzip2.NewReader(src, nil)
	if err != nil {
		return nil, err
	}
	return zr, nil
}

var decompressors = map[Method]Decompressor{
	MethodStore:   StoredDecompressor{},
	MethodDeflate: DeflateDecompressor{},
	MethodBzip2:   Bzip2Decompressor{},
}

// DecompressorFor returns the Decompressor registered for method.
func DecompressorFor(method Method) (Decompressor, error) {
	d, ok := decompressors[method]
	if !ok {
		return nil, eggerrors.ErrUnsupportedMethod.WithDetail("method", uint8(method))
	}
	return d, nil
}

// NewReader returns a stream of the decompressed payload read from src.
// Failures while reading are reported as ErrDecode, including a stream that
// ends before or runs past size bytes. A negative size skips the length
// check; store payloads are never checked.
func NewReader(src io.Reader, method Method, size int64) (io.ReadCloser, error) {
	d, err := DecompressorFor(method)
	if err != nil {
		return nil, err
	}
	rc, err := d.Decompress(src)
	if err != nil {
		return nil, eggerrors.ErrDecode.
			WithDetail("method", method.String()).
			WithCause(err)
	}
	if method == MethodStore {
		size = -1
	}
	return &decodeReader{rc: rc, method: method, want: size}, nil
}

// maxPrealloc caps how much of a block's declared uncompressed size is
// allocated before any data has been decoded.
const maxPrealloc = 64 << 20

// Inflate decompresses a whole block payload that must expand to exactly
// size bytes. Store payloads are returned as is.
func Inflate(data []byte, method Method, size int64) ([]byte, error) {
	if method == MethodStore {
		return data, nil
	}

	rc, err := NewReader(bytes.NewReader(data), method, size)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var out bytes.Buffer
	if size > 0 {
		out.Grow(int(min(size, maxPrealloc)))
	}
	if _, err := out.ReadFrom(rc); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

type decodeReader struct {
	rc     io.ReadCloser
	method Method
	want   int64 // declared output size, negative when unknown
	n      int64
}

func (r *decodeReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	r.n += int64(n)
	if r.want >= 0 && r.n > r.want {
		return n, r.sizeMismatch("stream is longer than the declared size")
	}
	if err == io.EOF {
		if r.want >= 0 && r.n != r.want {
			return n, r.sizeMismatch("stream ended before the declared size")
		}
		return n, err
	}
	if err != nil {
		if eggerrors.IsEggError(err) {
			return n, err
		}
		return n, eggerrors.ErrDecode.
			WithDetail("method", r.method.String()).
			WithCause(err)
	}
	return n, nil
}

func (r *decodeReader) sizeMismatch(msg string) error {
	return eggerrors.ErrDecode.
		WithMessage(msg).
		WithDetail("method", r.method.String()).
		WithDetail("declared", r.want).
		WithDetail("decoded", r.n)
}

func (r *decodeReader) Close() error {
	return r.rc.Close()
}

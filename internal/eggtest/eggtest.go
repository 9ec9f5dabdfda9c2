// Package eggtest assembles synthetic egg archives for tests.
package eggtest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
)

const (
	tagArchive  uint32 = 0x41474745
	tagFile     uint32 = 0x0A8590E3
	tagBlock    uint32 = 0x02B50C13
	tagEncrypt  uint32 = 0x08D1470F
	tagWindows  uint32 = 0x2C86950B
	tagPosix    uint32 = 0x1EE922E5
	tagDummy    uint32 = 0x07463307
	tagFilename uint32 = 0x0A8591AC
	tagComment  uint32 = 0x04C63672
	tagSplit    uint32 = 0x24F5A262
	tagSolid    uint32 = 0x24E5A060
	tagEnd      uint32 = 0x08E28222
)

// Method codes as stored in block headers.
const (
	Store   uint8 = 0
	Deflate uint8 = 1
	Bzip2   uint8 = 2
)

// Builder appends chunks in the order they are called.
type Builder struct {
	buf bytes.Buffer
}

// New returns an empty Builder.
func New() *Builder { return &Builder{} }

// Bytes returns the archive assembled so far.
func (b *Builder) Bytes() []byte { return bytes.Clone(b.buf.Bytes()) }

// Len returns the number of bytes written so far.
func (b *Builder) Len() int { return b.buf.Len() }

func (b *Builder) u8(v uint8) { b.buf.WriteByte(v) }

func (b *Builder) u16(v uint16) {
	var p [2]byte
	binary.LittleEndian.PutUint16(p[:], v)
	b.buf.Write(p[:])
}

func (b *Builder) u32(v uint32) {
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], v)
	b.buf.Write(p[:])
}

func (b *Builder) zeros(n int) { b.buf.Write(make([]byte, n)) }

// Header writes a valid archive header with the given id.
func (b *Builder) Header(id uint32) *Builder {
	return b.RawHeader(0x0100, id, 0)
}

// RawHeader writes an archive header with arbitrary field values.
func (b *Builder) RawHeader(version uint16, id, reserved uint32) *Builder {
	b.u32(tagArchive)
	b.u16(version)
	b.u32(id)
	b.u32(reserved)
	return b
}

// FileHeader writes a 16-byte file entry header.
func (b *Builder) FileHeader(id uint32, size uint64) *Builder {
	b.u32(tagFile)
	b.u32(id)
	var p [8]byte
	binary.LittleEndian.PutUint64(p[:], size)
	b.buf.Write(p[:])
	return b
}

// Filename writes a filename chunk holding name verbatim.
func (b *Builder) Filename(name string) *Builder {
	return b.RawFilename([]byte(name))
}

// RawFilename writes a filename chunk with arbitrary name bytes.
func (b *Builder) RawFilename(name []byte) *Builder {
	b.u32(tagFilename)
	b.u8(0)
	b.u16(uint16(len(name)))
	b.buf.Write(name)
	return b
}

// Block writes a block chunk holding payload, the already-compressed form of
// original.
func (b *Builder) Block(method uint8, payload, original []byte) *Builder {
	b.u32(tagBlock)
	b.u8(method)
	b.u8(0)
	b.u32(uint32(len(original)))
	b.u32(uint32(len(payload)))
	b.u32(crc32.ChecksumIEEE(original))
	b.buf.Write(payload)
	b.u32(tagEnd)
	return b
}

// Stored writes a store-method block for data.
func (b *Builder) Stored(data []byte) *Builder {
	return b.Block(Store, data, data)
}

// BlockHeaderOnly writes the fixed part of a block chunk that declares
// compressedSize bytes without writing them.
func (b *Builder) BlockHeaderOnly(method uint8, compressedSize uint32) *Builder {
	b.u32(tagBlock)
	b.u8(method)
	b.u8(0)
	b.u32(0)
	b.u32(compressedSize)
	b.u32(0)
	return b
}

// Encrypt writes an encrypt header; methods outside 0..2 get a short body.
func (b *Builder) Encrypt(method uint8) *Builder {
	size := map[uint8]int{0: 24, 1: 28, 2: 36}[method]
	if size == 0 {
		size = 8
	}
	b.u32(tagEncrypt)
	b.u8(0)
	b.u16(uint16(size - 7))
	b.u8(method)
	b.zeros(size - 8)
	return b
}

// WindowsInfo writes a 16-byte Windows metadata chunk.
func (b *Builder) WindowsInfo() *Builder {
	b.u32(tagWindows)
	b.zeros(12)
	return b
}

// PosixInfo writes a 27-byte posix metadata chunk.
func (b *Builder) PosixInfo() *Builder {
	b.u32(tagPosix)
	b.zeros(23)
	return b
}

// Dummy writes a padding chunk with n payload bytes.
func (b *Builder) Dummy(n int) *Builder {
	b.u32(tagDummy)
	b.u8(0)
	b.u16(uint16(n))
	b.zeros(n)
	return b
}

// Comment writes a comment chunk.
func (b *Builder) Comment(text string) *Builder {
	b.u32(tagComment)
	b.u8(0)
	b.u16(uint16(len(text)))
	b.buf.WriteString(text)
	return b
}

// Split writes a 15-byte split marker.
func (b *Builder) Split() *Builder {
	b.u32(tagSplit)
	b.zeros(11)
	return b
}

// Solid writes a 7-byte solid marker.
func (b *Builder) Solid() *Builder {
	b.u32(tagSolid)
	b.zeros(3)
	return b
}

// End writes an end marker.
func (b *Builder) End() *Builder {
	b.u32(tagEnd)
	return b
}

// Raw appends p unchanged.
func (b *Builder) Raw(p []byte) *Builder {
	b.buf.Write(p)
	return b
}

// Entry is one stored file for Archive.
type Entry struct {
	Name   string
	Data   []byte
	Method uint8
}

// Archive builds header, one filename + block pair per entry, and an end marker.
func Archive(tb testing.TB, entries ...Entry) []byte {
	tb.Helper()

	b := New().Header(0x1234)
	for _, e := range entries {
		b.Filename(e.Name)
		switch e.Method {
		case Deflate:
			b.Block(Deflate, DeflateBytes(tb, e.Data), e.Data)
		case Bzip2:
			b.Block(Bzip2, Bzip2Bytes(tb, e.Data), e.Data)
		default:
			b.Stored(e.Data)
		}
	}
	return b.End().Bytes()
}

// DeflateBytes raw-deflates data.
func DeflateBytes(tb testing.TB, data []byte) []byte {
	tb.Helper()

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		tb.Fatalf("flate.NewWriter() error = %v", err)
	}
	if _, err := w.Write(data); err != nil {
		tb.Fatalf("deflate write error = %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("deflate close error = %v", err)
	}
	return buf.Bytes()
}

// Bzip2Bytes bzip2-compresses data.
func Bzip2Bytes(tb testing.TB, data []byte) []byte {
	tb.Helper()

	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, nil)
	if err != nil {
		tb.Fatalf("bzip2.NewWriter() error = %v", err)
	}
	if _, err := w.Write(data); err != nil {
		tb.Fatalf("bzip2 write error = %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("bzip2 close error = %v", err)
	}
	return buf.Bytes()
}

// WriteFile stores data as name inside a fresh temp dir and returns the path.
func WriteFile(tb testing.TB, name string, data []byte) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

package eggutil

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"

	eggerrors "github.com/flaneur2020/egg-get/eggget/errors"
)

// ByteView is the read-only random-access view chunks are decoded from.
type ByteView interface {
	io.ReaderAt
	Size() int64
}

// Chunk is one decoded chunk. Only the fields belonging to Kind are set.
type Chunk struct {
	Kind   Kind
	Offset int64 // position of the magic tag
	Length int64 // total bytes the chunk occupies, tag included

	// ArchiveHeader
	Version  uint16
	HeaderID uint32

	// Filename
	Name string

	// BlockHeader
	Method           Method
	UncompressedSize uint32
	CompressedSize   uint32
	CRC              uint32
	DataOffset       int64

	// EncryptHeader
	EncryptMethod uint8
}

// End returns the offset of the first byte after the chunk.
func (c Chunk) End() int64 { return c.Offset + c.Length }

type decodeFunc func(v ByteView, pos int64) (Chunk, error)

var decoders = map[Kind]decodeFunc{
	KindArchiveHeader: decodeArchiveHeader,
	KindFileHeader:    fixedSize(KindFileHeader, FileHeaderSize),
	KindBlockHeader:   decodeBlockHeader,
	KindEncryptHeader: decodeEncryptHeader,
	KindWindowsInfo:   fixedSize(KindWindowsInfo, WindowsInfoSize),
	KindPosixInfo:     fixedSize(KindPosixInfo, PosixInfoSize),
	KindDummy:         decodeDummy,
	KindFilename:      decodeFilename,
	KindComment:       decodeComment,
	KindSplit:         fixedSize(KindSplit, SplitSize),
	KindSolid:         fixedSize(KindSolid, SolidSize),
	KindEnd:           fixedSize(KindEnd, EndSize),
}

// NextChunk decodes the chunk whose tag starts at pos. The returned Length
// bounds the chunk exactly and the whole chunk is guaranteed to lie inside v.
func NextChunk(v ByteView, pos int64) (Chunk, error) {
	if pos < 0 || pos > v.Size() {
		return Chunk{}, eggerrors.ErrTruncated.
			WithDetail("offset", pos).
			WithMessage("position outside archive")
	}

	tagBytes, err := readField(v, pos, 0, TagSize, "tag")
	if err != nil {
		return Chunk{}, err
	}
	kind := Kind(binary.LittleEndian.Uint32(tagBytes))

	decode, ok := decoders[kind]
	if !ok {
		return Chunk{}, eggerrors.ErrUnrecognizedTag.
			WithDetail("offset", pos).
			WithDetail("tag", fmt.Sprintf("%#08x", uint32(kind)))
	}

	c, err := decode(v, pos)
	if err != nil {
		return Chunk{}, err
	}
	if c.Length < TagSize {
		return Chunk{}, eggerrors.ErrDecode.
			WithDetail("offset", pos).
			WithMessage(fmt.Sprintf("%s chunk length %d is shorter than its tag", kind, c.Length))
	}
	if end := pos + c.Length; end < pos || end > v.Size() {
		return Chunk{}, truncated(v, pos, kind, c.Length)
	}
	return c, nil
}

// readField reads n bytes at chunk offset pos+rel, failing with ErrTruncated
// instead of reading past the end of v.
func readField(v ByteView, pos, rel int64, n int, field string) ([]byte, error) {
	start := pos + rel
	if start+int64(n) > v.Size() {
		return nil, eggerrors.ErrTruncated.
			WithDetail("offset", pos).
			WithDetail("field", field).
			WithDetail("remaining", v.Size()-pos)
	}
	buf := make([]byte, n)
	if _, err := v.ReadAt(buf, start); err != nil {
		return nil, eggerrors.ErrIO.
			WithMessage("failed to read archive").
			WithDetail("offset", start).
			WithCause(err)
	}
	return buf, nil
}

func truncated(v ByteView, pos int64, kind Kind, length int64) error {
	return eggerrors.ErrTruncated.
		WithDetail("offset", pos).
		WithDetail("kind", kind.String()).
		WithDetail("length", length).
		WithDetail("remaining", v.Size()-pos)
}

func fixedSize(kind Kind, n int64) decodeFunc {
	return func(v ByteView, pos int64) (Chunk, error) {
		return Chunk{Kind: kind, Offset: pos, Length: n}, nil
	}
}

func decodeArchiveHeader(v ByteView, pos int64) (Chunk, error) {
	b, err := readField(v, pos, 0, ArchiveHeaderSize, "archive header")
	if err != nil {
		return Chunk{}, err
	}

	version := binary.LittleEndian.Uint16(b[4:6])
	headerID := binary.LittleEndian.Uint32(b[6:10])
	reserved := binary.LittleEndian.Uint32(b[10:14])

	bad := eggerrors.ErrBadArchiveHeader.WithDetail("offset", pos)
	switch {
	case version != ArchiveVersion:
		return Chunk{}, bad.WithDetail("version", fmt.Sprintf("%#04x", version))
	case headerID == 0:
		return Chunk{}, bad.WithDetail("headerID", headerID)
	case reserved != 0:
		return Chunk{}, bad.WithDetail("reserved", reserved)
	}

	return Chunk{
		Kind:     KindArchiveHeader,
		Offset:   pos,
		Length:   ArchiveHeaderSize,
		Version:  version,
		HeaderID: headerID,
	}, nil
}

func decodeBlockHeader(v ByteView, pos int64) (Chunk, error) {
	b, err := readField(v, pos, 0, BlockDataOffset, "block header")
	if err != nil {
		return Chunk{}, err
	}

	compressed := binary.LittleEndian.Uint32(b[blockCompressedOffset : blockCompressedOffset+4])
	c := Chunk{
		Kind:             KindBlockHeader,
		Offset:           pos,
		Length:           BlockOverhead + int64(compressed),
		Method:           Method(b[blockMethodOffset]),
		UncompressedSize: binary.LittleEndian.Uint32(b[blockUncompressedOffset : blockUncompressedOffset+4]),
		CompressedSize:   compressed,
		CRC:              binary.LittleEndian.Uint32(b[blockCRCOffset : blockCRCOffset+4]),
		DataOffset:       pos + BlockDataOffset,
	}
	if c.End() > v.Size() {
		return Chunk{}, truncated(v, pos, KindBlockHeader, c.Length)
	}
	return c, nil
}

func decodeEncryptHeader(v ByteView, pos int64) (Chunk, error) {
	b, err := readField(v, pos, encryptMethodOffset, 1, "encrypt method")
	if err != nil {
		return Chunk{}, err
	}

	method := b[0]
	n, ok := encryptHeaderSizes[method]
	if !ok {
		return Chunk{}, eggerrors.ErrUnsupportedChunk.
			WithMessage("unsupported encryption method").
			WithDetail("offset", pos).
			WithDetail("encryptMethod", method)
	}
	return Chunk{Kind: KindEncryptHeader, Offset: pos, Length: n, EncryptMethod: method}, nil
}

// variableLength decodes the u16 payload size shared by Dummy and Filename chunks.
func variableLength(v ByteView, pos int64, kind Kind) (int64, error) {
	b, err := readField(v, pos, variableSizeOffset, 2, "payload size")
	if err != nil {
		return 0, err
	}
	n := variablePrefixSize + int64(binary.LittleEndian.Uint16(b))
	if pos+n > v.Size() {
		return 0, truncated(v, pos, kind, n)
	}
	return n, nil
}

func decodeDummy(v ByteView, pos int64) (Chunk, error) {
	n, err := variableLength(v, pos, KindDummy)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Kind: KindDummy, Offset: pos, Length: n}, nil
}

func decodeFilename(v ByteView, pos int64) (Chunk, error) {
	n, err := variableLength(v, pos, KindFilename)
	if err != nil {
		return Chunk{}, err
	}

	name, err := readField(v, pos, variablePrefixSize, int(n-variablePrefixSize), "filename")
	if err != nil {
		return Chunk{}, err
	}
	if !utf8.Valid(name) {
		return Chunk{}, eggerrors.ErrDecode.
			WithMessage("filename is not valid UTF-8").
			WithDetail("offset", pos)
	}
	return Chunk{Kind: KindFilename, Offset: pos, Length: n, Name: string(name)}, nil
}

func decodeComment(v ByteView, pos int64) (Chunk, error) {
	return Chunk{}, eggerrors.ErrUnsupportedChunk.
		WithMessage("comment headers are not supported").
		WithDetail("offset", pos)
}

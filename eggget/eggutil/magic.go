package eggutil

import "fmt"

// Kind is the 4-byte little-endian magic tag that opens every chunk.
type Kind uint32

const (
	KindArchiveHeader Kind = 0x41474745
	KindFileHeader    Kind = 0x0A8590E3
	KindBlockHeader   Kind = 0x02B50C13
	KindEncryptHeader Kind = 0x08D1470F
	KindWindowsInfo   Kind = 0x2C86950B
	KindPosixInfo     Kind = 0x1EE922E5
	KindDummy         Kind = 0x07463307
	KindFilename      Kind = 0x0A8591AC
	KindComment       Kind = 0x04C63672
	KindSplit         Kind = 0x24F5A262
	KindSolid         Kind = 0x24E5A060
	KindEnd           Kind = 0x08E28222
)

var kindNames = map[Kind]string{
	KindArchiveHeader: "ArchiveHeader",
	KindFileHeader:    "FileHeader",
	KindBlockHeader:   "BlockHeader",
	KindEncryptHeader: "EncryptHeader",
	KindWindowsInfo:   "WindowsInfo",
	KindPosixInfo:     "PosixInfo",
	KindDummy:         "Dummy",
	KindFilename:      "Filename",
	KindComment:       "Comment",
	KindSplit:         "Split",
	KindSolid:         "Solid",
	KindEnd:           "End",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%#08x)", uint32(k))
}

// Known reports whether k is one of the chunk tags the walker understands.
func (k Kind) Known() bool {
	_, ok := kindNames[k]
	return ok
}

// Chunk sizes and field offsets, all relative to the start of the chunk.
const (
	TagSize = 4

	ArchiveHeaderSize = 14
	ArchiveVersion    = 0x0100

	FileHeaderSize  = 16
	WindowsInfoSize = 16
	PosixInfoSize   = 27
	SplitSize       = 15
	SolidSize       = 7
	EndSize         = 4

	// Dummy and Filename chunks: tag, one flag byte, u16 payload size at +5.
	variablePrefixSize = 7
	variableSizeOffset = 5

	// Block chunks: method at +4, uncompressed size at +6, compressed size
	// at +10, CRC32 at +14, data from +18, then a 4-byte trailer.
	blockMethodOffset       = 4
	blockUncompressedOffset = 6
	blockCompressedOffset   = 10
	blockCRCOffset          = 14
	BlockDataOffset         = 18
	BlockOverhead           = 22

	encryptMethodOffset = 7
)

var encryptHeaderSizes = map[uint8]int64{
	0: 24,
	1: 28,
	2: 36,
}

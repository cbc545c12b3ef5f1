// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bgcode

import (
	"encoding/binary"
	"fmt"
	"io"
)

// BlockType identifies the contents of a block.
type BlockType uint16

const (
	FileMetadata    BlockType = 0
	GCode           BlockType = 1
	SlicerMetadata  BlockType = 2
	PrinterMetadata BlockType = 3
	PrintMetadata   BlockType = 4
	Thumbnail       BlockType = 5
	IdentityBlock   BlockType = 6
	KeyBlock        BlockType = 7
	EncryptedBlock  BlockType = 8
)

var blockTypes = [...]string{
	FileMetadata:    "FileMetadata",
	GCode:           "GCode",
	SlicerMetadata:  "SlicerMetadata",
	PrinterMetadata: "PrinterMetadata",
	PrintMetadata:   "PrintMetadata",
	Thumbnail:       "Thumbnail",
	IdentityBlock:   "Identity",
	KeyBlock:        "Key",
	EncryptedBlock:  "Encrypted",
}

// String returns the name of t.
func (t BlockType) String() string {
	if t.Known() {
		return blockTypes[t]
	}
	return fmt.Sprintf("BlockType(%d)", uint16(t))
}

// Known reports whether t is one of the defined block types.
func (t BlockType) Known() bool {
	return int(t) < len(blockTypes)
}

// IsMetadata reports whether t belongs to the metadata family, which
// is copied through unencrypted.
func (t BlockType) IsMetadata() bool {
	switch t {
	case FileMetadata, SlicerMetadata, PrinterMetadata, PrintMetadata, Thumbnail:
		return true
	}
	return false
}

// ParamsSize returns the width of the type parameters that precede
// the block's data.
func (t BlockType) ParamsSize() int {
	switch t {
	case Thumbnail:
		return 6
	case IdentityBlock, EncryptedBlock:
		return 3
	default:
		return 2
	}
}

// Compression identifies the codec of a block's data. The data itself
// is opaque to this package.
type Compression uint16

const (
	NoCompression  Compression = 0
	Deflate        Compression = 1
	HeatShrink11_4 Compression = 2
	HeatShrink12_4 Compression = 3
)

// String returns the name of c.
func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case Deflate:
		return "deflate"
	case HeatShrink11_4:
		return "heatshrink_11_4"
	case HeatShrink12_4:
		return "heatshrink_12_4"
	default:
		return fmt.Sprintf("compression(%d)", uint16(c))
	}
}

const (
	blockHeaderSize           = 8
	compressedBlockHeaderSize = 12
	// MaxBlockHeaderSize is the largest encoded BlockHeader.
	MaxBlockHeaderSize = compressedBlockHeaderSize
)

// BlockHeader layout:
//
//	type              [2B LE]
//	compression       [2B LE]
//	uncompressed_size [4B LE]
//	compressed_size   [4B LE] iff compression != 0
//
// The header is followed by the type params, compressed_size data
// bytes, and a CRC32 when the file has checksums enabled.
type BlockHeader struct {
	Type             BlockType
	Compression      Compression
	UncompressedSize uint32
	// CompressedSize equals UncompressedSize when Compression is
	// NoCompression.
	CompressedSize uint32
}

// NewBlockHeader returns the header of an uncompressed block holding
// size data bytes.
func NewBlockHeader(t BlockType, size int) BlockHeader {
	return BlockHeader{Type: t, UncompressedSize: uint32(size), CompressedSize: uint32(size)}
}

// Size returns the encoded size of h.
func (h BlockHeader) Size() int {
	if h.Compression == NoCompression {
		return blockHeaderSize
	}
	return compressedBlockHeaderSize
}

// PayloadSize returns the number of bytes between the header and the
// checksum: the type params plus the compressed data.
func (h BlockHeader) PayloadSize() int64 {
	return int64(h.Type.ParamsSize()) + int64(h.CompressedSize)
}

// AppendTo appends the encoded header to b.
func (h BlockHeader) AppendTo(b []byte) []byte {
	var buf [compressedBlockHeaderSize]byte
	binary.LittleEndian.PutUint16(buf[0:], uint16(h.Type))
	binary.LittleEndian.PutUint16(buf[2:], uint16(h.Compression))
	binary.LittleEndian.PutUint32(buf[4:], h.UncompressedSize)
	binary.LittleEndian.PutUint32(buf[8:], h.CompressedSize)
	return append(b, buf[:h.Size()]...)
}

// Bytes returns the encoded header.
func (h BlockHeader) Bytes() []byte {
	return h.AppendTo(make([]byte, 0, h.Size()))
}

// ReadBlockHeader reads one block header from r. It returns io.EOF if
// r is exhausted before the first byte, a TruncatedFile error if it
// ends inside the header, and an UnsupportedBlockType or Framing
// error for unknown types or compressions.
func ReadBlockHeader(r io.Reader) (BlockHeader, error) {
	return readBlockHeader(r, -1, -1)
}

func readBlockHeader(r io.Reader, block int, off int64) (BlockHeader, error) {
	var (
		buf [compressedBlockHeaderSize]byte
		h   BlockHeader
	)
	if n, err := io.ReadFull(r, buf[:blockHeaderSize]); err != nil {
		if err == io.EOF && n == 0 {
			return h, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return h, NewError(TruncatedFile, block, off, "inside block header", nil)
		}
		return h, err
	}
	h.Type = BlockType(binary.LittleEndian.Uint16(buf[0:]))
	h.Compression = Compression(binary.LittleEndian.Uint16(buf[2:]))
	h.UncompressedSize = binary.LittleEndian.Uint32(buf[4:])
	if !h.Type.Known() {
		return h, NewError(UnsupportedBlockType, block, off, fmt.Sprintf("type %d", uint16(h.Type)), nil)
	}
	switch h.Compression {
	case NoCompression:
		h.CompressedSize = h.UncompressedSize
		return h, nil
	case Deflate, HeatShrink11_4, HeatShrink12_4:
	default:
		return h, NewError(Framing, block, off, fmt.Sprintf("unknown compression %d", uint16(h.Compression)), nil)
	}
	if _, err := io.ReadFull(r, buf[blockHeaderSize:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return h, NewError(TruncatedFile, block, off, "inside block header", nil)
		}
		return h, err
	}
	h.CompressedSize = binary.LittleEndian.Uint32(buf[blockHeaderSize:])
	return h, nil
}

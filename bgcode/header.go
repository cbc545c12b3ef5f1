// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bgcode

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// Magic opens every container.
	Magic = "GCDE"
	// Version is the format generation implemented by this package:
	// identity block, then one key block per recipient, then encrypted
	// blocks whose last one carries the terminal flag.
	Version uint32 = 1
	// FileHeaderSize is the encoded size of a FileHeader.
	FileHeaderSize = 10
)

// ChecksumType selects the per-block checksum.
type ChecksumType uint16

const (
	// ChecksumNone disables block checksums.
	ChecksumNone ChecksumType = 0
	// ChecksumCRC32 appends an IEEE CRC32 to every block.
	ChecksumCRC32 ChecksumType = 1
)

// String returns the name of t.
func (t ChecksumType) String() string {
	switch t {
	case ChecksumNone:
		return "none"
	case ChecksumCRC32:
		return "crc32"
	default:
		return fmt.Sprintf("checksum(%d)", uint16(t))
	}
}

// Size returns the number of checksum bytes that follow each block.
func (t ChecksumType) Size() int {
	if t == ChecksumCRC32 {
		return crcSize
	}
	return 0
}

// FileHeader layout:
//
//	magic    [4B] "GCDE"
//	version  [4B LE]
//	checksum [2B LE]
type FileHeader struct {
	Magic    [4]byte
	Version  uint32
	Checksum ChecksumType
}

// NewFileHeader returns the header of a current-generation container.
func NewFileHeader(checksum ChecksumType) FileHeader {
	h := FileHeader{Version: Version, Checksum: checksum}
	copy(h.Magic[:], Magic)
	return h
}

// ReadFileHeader reads and checks a file header.
func ReadFileHeader(r io.Reader) (FileHeader, error) {
	var (
		buf [FileHeaderSize]byte
		h   FileHeader
	)
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return h, NewError(TruncatedFile, -1, 0, "reading file header", nil)
		}
		return h, err
	}
	copy(h.Magic[:], buf[:4])
	h.Version = binary.LittleEndian.Uint32(buf[4:])
	h.Checksum = ChecksumType(binary.LittleEndian.Uint16(buf[8:]))
	return h, h.Check()
}

// Check verifies the magic, the format generation and the checksum type.
func (h FileHeader) Check() error {
	if string(h.Magic[:]) != Magic {
		return NewError(Framing, -1, 0, fmt.Sprintf("bad magic %q", h.Magic[:]), nil)
	}
	if h.Version != Version {
		return NewError(Framing, -1, 0, fmt.Sprintf("unsupported format version %d", h.Version), nil)
	}
	switch h.Checksum {
	case ChecksumNone, ChecksumCRC32:
	default:
		return NewError(Framing, -1, 0, fmt.Sprintf("unknown checksum type %d", uint16(h.Checksum)), nil)
	}
	return nil
}

// Bytes returns the encoded header.
func (h FileHeader) Bytes() []byte {
	b := make([]byte, FileHeaderSize)
	copy(b, h.Magic[:])
	binary.LittleEndian.PutUint32(b[4:], h.Version)
	binary.LittleEndian.PutUint16(b[8:], uint16(h.Checksum))
	return b
}

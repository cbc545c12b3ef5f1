// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bgcode

import (
	"bufio"
	"fmt"
	"io"

	"github.com/grailbio/bgcode/errors"
)

// DefaultMaxBlockSize bounds the payload of a single block.
const DefaultMaxBlockSize = 256 << 20

// Block is one framed block as read from a container.
type Block struct {
	// Index is the block's position in the container, starting at 0.
	Index int
	// Offset is the absolute offset of the block header.
	Offset int64
	Header BlockHeader
	// Raw holds the exact wire bytes: header, params, data and checksum.
	Raw []byte
}

// HeaderBytes returns the encoded block header.
func (b Block) HeaderBytes() []byte { return b.Raw[:b.Header.Size()] }

// Params returns the type params.
func (b Block) Params() []byte {
	off := b.Header.Size()
	return b.Raw[off : off+b.Header.Type.ParamsSize()]
}

// Data returns the block data, excluding params and checksum.
func (b Block) Data() []byte {
	off := b.Header.Size() + b.Header.Type.ParamsSize()
	return b.Raw[off : off+int(b.Header.CompressedSize)]
}

// Unchecked returns the block bytes without the checksum.
func (b Block) Unchecked() []byte {
	return b.Raw[:b.Header.Size()+int(b.Header.PayloadSize())]
}

// End returns the offset of the byte following the block.
func (b Block) End() int64 { return b.Offset + int64(len(b.Raw)) }

// ScannerOpts configures a Scanner.
type ScannerOpts struct {
	// MaxBlockSize bounds the payload size of any block. Zero means
	// DefaultMaxBlockSize.
	MaxBlockSize int64
}

// Scanner is a forward-only cursor over the blocks of a container. It
// reads the file header on construction and verifies block checksums
// when the header enables them. Thread compatible.
//
// Example:
//
//	sc := bgcode.NewScanner(r, bgcode.ScannerOpts{})
//	for sc.Scan() {
//		b := sc.Block()
//		...
//	}
//	if err := sc.Err(); err != nil { ... }
//
// Scan returns false with a nil Err when the input ends cleanly on a
// block boundary.
type Scanner struct {
	r      *bufio.Reader
	opts   ScannerOpts
	header FileHeader
	off    int64
	index  int
	block  Block
	err    errors.Once
}

// NewScanner creates a scanner over r. Errors, including those from
// the file header, are reported by Err.
func NewScanner(r io.Reader, opts ScannerOpts) *Scanner {
	if opts.MaxBlockSize <= 0 {
		opts.MaxBlockSize = DefaultMaxBlockSize
	}
	s := &Scanner{r: bufio.NewReader(r), opts: opts}
	h, err := ReadFileHeader(s.r)
	if err != nil {
		s.err.Set(err)
		return s
	}
	s.header = h
	s.off = FileHeaderSize
	return s
}

// Header returns the container's file header.
func (s *Scanner) Header() FileHeader { return s.header }

// Offset returns the absolute offset of the next unread byte.
func (s *Scanner) Offset() int64 { return s.off }

// Block returns the block read by the last successful Scan.
func (s *Scanner) Block() Block { return s.block }

// Err returns the first error encountered.
func (s *Scanner) Err() error { return s.err.Err() }

// Scan reads the next block. It returns false at the end of input or
// on error.
func (s *Scanner) Scan() bool {
	if s.err.Err() != nil {
		return false
	}
	h, err := readBlockHeader(s.r, s.index, s.off)
	if err == io.EOF {
		return false
	}
	if err != nil {
		s.err.Set(err)
		return false
	}
	if h.Type == IdentityBlock || h.Type == KeyBlock || h.Type == EncryptedBlock {
		if h.Compression != NoCompression {
			s.err.Set(NewError(Framing, s.index, s.off,
				fmt.Sprintf("%v block with compression %v", h.Type, h.Compression), nil))
			return false
		}
	}
	size := h.PayloadSize()
	if size > s.opts.MaxBlockSize {
		s.err.Set(NewError(Framing, s.index, s.off,
			fmt.Sprintf("block payload of %d bytes exceeds limit %d", size, s.opts.MaxBlockSize), nil))
		return false
	}
	hsize := h.Size()
	raw := make([]byte, int64(hsize)+size+int64(s.header.Checksum.Size()))
	h.AppendTo(raw[:0])
	if _, err := io.ReadFull(s.r, raw[hsize:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = NewError(TruncatedFile, s.index, s.off,
				fmt.Sprintf("%v block needs %d bytes", h.Type, len(raw)), nil)
		}
		s.err.Set(err)
		return false
	}
	if s.header.Checksum == ChecksumCRC32 && !VerifyChecksum(raw) {
		s.err.Set(NewError(Checksum, s.index, s.off, fmt.Sprintf("%v block", h.Type), nil))
		return false
	}
	s.block = Block{Index: s.index, Offset: s.off, Header: h, Raw: raw}
	s.index++
	s.off += int64(len(raw))
	return true
}

// AtEOF reports whether the input is exhausted. It is used after a
// terminal block to detect trailing data.
func (s *Scanner) AtEOF() (bool, error) {
	_, err := s.r.Peek(1)
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

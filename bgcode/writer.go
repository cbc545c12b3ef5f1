// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bgcode

import (
	"fmt"
	"io"

	"github.com/grailbio/bgcode/errors"
	"github.com/grailbio/bgcode/must"
)

// EncodeBlock frames one block: header, params, data, and a checksum
// if checksum is ChecksumCRC32. The header's sizes must describe data.
func EncodeBlock(h BlockHeader, params, data []byte, checksum ChecksumType) []byte {
	must.Truef(len(params) == h.Type.ParamsSize(), "%v block: %d params bytes, want %d", h.Type, len(params), h.Type.ParamsSize())
	must.Truef(len(data) == int(h.CompressedSize), "%v block: %d data bytes, header says %d", h.Type, len(data), h.CompressedSize)
	b := make([]byte, 0, h.Size()+len(params)+len(data)+checksum.Size())
	b = h.AppendTo(b)
	b = append(b, params...)
	b = append(b, data...)
	if checksum == ChecksumCRC32 {
		b = AppendChecksum(b)
	}
	return b
}

// Writer is a forward-only container writer that tracks the absolute
// offset of the next block. Write errors are sticky and reported by
// Err. Thread compatible.
type Writer struct {
	w        io.Writer
	checksum ChecksumType
	off      int64
	err      errors.Once
}

// NewWriter writes the file header h to w and returns a writer for the
// blocks that follow it.
func NewWriter(w io.Writer, h FileHeader) *Writer {
	bw := &Writer{w: w, checksum: h.Checksum}
	bw.WriteRaw(h.Bytes())
	return bw
}

// Offset returns the number of bytes written so far, which is the
// absolute offset of the next block.
func (w *Writer) Offset() int64 { return w.off }

// Checksum returns the checksum type from the file header.
func (w *Writer) Checksum() ChecksumType { return w.checksum }

// WriteRaw writes pre-framed bytes.
func (w *Writer) WriteRaw(b []byte) {
	if w.err.Err() != nil {
		return
	}
	n, err := w.w.Write(b)
	w.off += int64(n)
	if err != nil {
		w.err.Set(err)
		return
	}
	if n != len(b) {
		w.err.Set(fmt.Errorf("short write: %d of %d bytes", n, len(b)))
	}
}

// WriteBlock frames and writes one block, returning its wire bytes.
func (w *Writer) WriteBlock(h BlockHeader, params, data []byte) []byte {
	b := EncodeBlock(h, params, data, w.checksum)
	w.WriteRaw(b)
	return b
}

// Err returns the first write error.
func (w *Writer) Err() error { return w.err.Err() }

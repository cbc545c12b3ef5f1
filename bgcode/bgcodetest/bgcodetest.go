// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package bgcodetest builds plain bgcode containers for tests.
package bgcodetest

import (
	"bytes"
	"encoding/binary"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/bgcode/bgcode"
	"github.com/grailbio/bgcode/must"
	"github.com/klauspost/compress/flate"
)

// Block is one block of a test container.
type Block struct {
	Type        bgcode.BlockType
	Compression bgcode.Compression
	// UncompressedSize is used only when Compression is not
	// NoCompression.
	UncompressedSize uint32
	Params           []byte
	Data             []byte
}

// Builder accumulates the blocks of a plain container.
type Builder struct {
	checksum bgcode.ChecksumType
	blocks   []Block
}

// NewBuilder returns a builder for a container with the given checksum type.
func NewBuilder(checksum bgcode.ChecksumType) *Builder {
	return &Builder{checksum: checksum}
}

// Add appends a block as is.
func (b *Builder) Add(blk Block) *Builder {
	b.blocks = append(b.blocks, blk)
	return b
}

// Metadata appends an uncompressed metadata block of type typ. Its
// params encode the INI encoding (0).
func (b *Builder) Metadata(typ bgcode.BlockType, data []byte) *Builder {
	return b.Add(Block{Type: typ, Params: make([]byte, typ.ParamsSize()), Data: data})
}

// DeflatedMetadata appends a Deflate-compressed metadata block, which
// has the 12-byte block header.
func (b *Builder) DeflatedMetadata(typ bgcode.BlockType, data []byte) *Builder {
	return b.Add(Block{
		Type:             typ,
		Compression:      bgcode.Deflate,
		UncompressedSize: uint32(len(data)),
		Params:           make([]byte, typ.ParamsSize()),
		Data:             Deflate(data),
	})
}

// Thumbnail appends a thumbnail block with PNG format params.
func (b *Builder) Thumbnail(width, height uint16, image []byte) *Builder {
	params := make([]byte, 6)
	binary.LittleEndian.PutUint16(params[2:], width)
	binary.LittleEndian.PutUint16(params[4:], height)
	return b.Add(Block{Type: bgcode.Thumbnail, Params: params, Data: image})
}

// GCode appends an uncompressed g-code block.
func (b *Builder) GCode(text []byte) *Builder {
	return b.Add(Block{Type: bgcode.GCode, Params: make([]byte, 2), Data: text})
}

// Blocks returns the blocks added so far.
func (b *Builder) Blocks() []Block { return b.blocks }

// Bytes encodes the container.
func (b *Builder) Bytes() []byte {
	var buf bytes.Buffer
	w := bgcode.NewWriter(&buf, bgcode.NewFileHeader(b.checksum))
	for _, blk := range b.blocks {
		h := bgcode.NewBlockHeader(blk.Type, len(blk.Data))
		if blk.Compression != bgcode.NoCompression {
			h.Compression = blk.Compression
			h.UncompressedSize = blk.UncompressedSize
		}
		w.WriteBlock(h, blk.Params, blk.Data)
	}
	must.Nil(w.Err())
	return buf.Bytes()
}

// Deflate compresses data with klauspost's flate at the default level.
func Deflate(data []byte) []byte {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	must.Nil(err)
	_, err = fw.Write(data)
	must.Nil(err)
	must.Nil(fw.Close())
	return buf.Bytes()
}

var metadataTypes = []bgcode.BlockType{
	bgcode.FileMetadata,
	bgcode.PrinterMetadata,
	bgcode.Thumbnail,
	bgcode.PrintMetadata,
	bgcode.SlicerMetadata,
}

// Fuzz builds a random plain container with up to maxMetadata metadata
// blocks and between 1 and maxGCode g-code blocks. Some metadata
// blocks are Deflate-compressed; some g-code blocks are empty.
func Fuzz(fz *fuzz.Fuzzer, maxMetadata, maxGCode int) *Builder {
	var (
		crc       bool
		nmeta     uint8
		ngcode    uint8
		compress  bool
		emptyCode bool
	)
	fz.Fuzz(&crc)
	fz.Fuzz(&nmeta)
	fz.Fuzz(&ngcode)
	checksum := bgcode.ChecksumNone
	if crc {
		checksum = bgcode.ChecksumCRC32
	}
	b := NewBuilder(checksum)
	for i := 0; i < int(nmeta)%(maxMetadata+1); i++ {
		var data []byte
		fz.Fuzz(&data)
		fz.Fuzz(&compress)
		typ := metadataTypes[i%len(metadataTypes)]
		switch {
		case typ == bgcode.Thumbnail:
			b.Thumbnail(uint16(i), uint16(len(data)), data)
		case compress:
			b.DeflatedMetadata(typ, data)
		default:
			b.Metadata(typ, data)
		}
	}
	for i := 0; i < 1+int(ngcode)%maxGCode; i++ {
		var text []byte
		fz.Fuzz(&emptyCode)
		if !emptyCode {
			fz.Fuzz(&text)
		}
		b.GCode(text)
	}
	return b
}

// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package e2ee

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/bgcode/bgcode"
)

// BlockInfo describes one block of a container without decrypting it.
type BlockInfo struct {
	Index       int
	Offset      int64
	Type        bgcode.BlockType
	Compression bgcode.Compression
	// Size is the block's size on the wire, checksum included.
	Size int64
	// PayloadSize is the size of the params and data.
	PayloadSize int64

	// IV is set for encrypted blocks.
	IV *IV
	// Last is the terminal flag of an encrypted block.
	Last bool
	// Algorithm describes the block's cryptographic algorithm, if any.
	Algorithm string
	// Identity is set for identity blocks. It is parsed but not verified.
	Identity *Identity
}

func (b BlockInfo) String() string {
	s := fmt.Sprintf("%4d @%-8d %-14v %8d bytes", b.Index, b.Offset, b.Type, b.Size)
	if b.Compression != bgcode.NoCompression {
		s += " " + b.Compression.String()
	}
	if b.Algorithm != "" {
		s += " " + b.Algorithm
	}
	if b.Identity != nil {
		h := b.Identity.KeyHash()
		s += fmt.Sprintf(" %q key %x", b.Identity.Name, h[:8])
		if b.Identity.OneTime() {
			s += " one-time"
		}
	}
	if b.IV != nil {
		s += fmt.Sprintf(" iv %x", b.IV[:8])
	}
	if b.Last {
		s += " last"
	}
	return s
}

// Inspect lists the blocks of the container in r. Checksums and
// framing are verified; signatures, hashes and tags are not.
func Inspect(r io.Reader) (bgcode.FileHeader, []BlockInfo, error) {
	sc := bgcode.NewScanner(r, bgcode.ScannerOpts{})
	if err := sc.Err(); err != nil {
		return bgcode.FileHeader{}, nil, err
	}
	var infos []BlockInfo
	for sc.Scan() {
		blk := sc.Block()
		info := BlockInfo{
			Index:       blk.Index,
			Offset:      blk.Offset,
			Type:        blk.Header.Type,
			Compression: blk.Header.Compression,
			Size:        int64(len(blk.Raw)),
			PayloadSize: blk.Header.PayloadSize(),
		}
		params := blk.Params()
		switch blk.Header.Type {
		case bgcode.IdentityBlock:
			id, err := parseIdentity(at(blk), blk.Header, blk.Raw[blk.Header.Size():blk.Header.Size()+int(info.PayloadSize)])
			if err != nil {
				return sc.Header(), infos, err
			}
			info.Identity = id
			info.Algorithm = id.Algorithm.String()
		case bgcode.KeyBlock:
			info.Algorithm = KeyEncryption(binary.LittleEndian.Uint16(params)).String()
		case bgcode.EncryptedBlock:
			iv := DeriveIV(blk.Offset)
			info.IV = &iv
			info.Algorithm = BlockEncryption(binary.LittleEndian.Uint16(params)).String()
			info.Last = params[2] == 1
		}
		infos = append(infos, info)
	}
	return sc.Header(), infos, sc.Err()
}

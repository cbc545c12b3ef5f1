// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bgcode

import (
	"encoding/binary"
	"hash/crc32"
)

const crcSize = 4

// AppendChecksum appends the little-endian IEEE CRC32 of b to b.
func AppendChecksum(b []byte) []byte {
	var buf [crcSize]byte
	binary.LittleEndian.PutUint32(buf[:], crc32.ChecksumIEEE(b))
	return append(b, buf[:]...)
}

// VerifyChecksum reports whether the last four bytes of block are the
// CRC32 of the bytes before them.
func VerifyChecksum(block []byte) bool {
	if len(block) < crcSize {
		return false
	}
	n := len(block) - crcSize
	return crc32.ChecksumIEEE(block[:n]) == binary.LittleEndian.Uint32(block[n:])
}

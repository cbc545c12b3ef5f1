// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package e2ee_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"

	"github.com/grailbio/bgcode/bgcode"
	"github.com/grailbio/bgcode/bgcode/bgcodetest"
	"github.com/grailbio/bgcode/e2ee"
	"github.com/grailbio/bgcode/must"
	"github.com/grailbio/testutil/assert"
	"github.com/stretchr/testify/require"
)

const numTestKeys = 5

var (
	keysOnce sync.Once
	keys     [numTestKeys]*rsa.PrivateKey
)

// testKey returns one of a fixed set of RSA-2048 keys, generated once
// per test binary.
func testKey(i int) *rsa.PrivateKey {
	keysOnce.Do(func() {
		for j := range keys {
			var err error
			keys[j], err = rsa.GenerateKey(rand.Reader, e2ee.RSAKeyBits)
			must.Nil(err)
		}
	})
	return keys[i]
}

func pubs(idx ...int) []*rsa.PublicKey {
	var p []*rsa.PublicKey
	for _, i := range idx {
		p = append(p, &testKey(i).PublicKey)
	}
	return p
}

const (
	signer = 0
	alice  = 1
	bob    = 2
	carol  = 3
	mallet = 4
)

func plainContainer(checksum bgcode.ChecksumType, gcode ...string) []byte {
	b := bgcodetest.NewBuilder(checksum).Metadata(bgcode.FileMetadata, []byte("m"))
	for _, g := range gcode {
		b.GCode([]byte(g))
	}
	return b.Bytes()
}

func encrypt(t *testing.T, plain []byte, opts e2ee.EncryptOptions) []byte {
	t.Helper()
	if opts.Signer == nil {
		opts.Signer = testKey(signer)
	}
	var out bytes.Buffer
	require.NoError(t, e2ee.Encrypt(context.Background(), bytes.NewReader(plain), &out, opts))
	return out.Bytes()
}

func decrypt(data []byte, opts e2ee.DecryptOptions) ([]byte, *e2ee.Result, error) {
	var out bytes.Buffer
	res, err := e2ee.Decrypt(context.Background(), bytes.NewReader(data), &out, opts)
	return out.Bytes(), res, err
}

func inspect(t *testing.T, data []byte) []e2ee.BlockInfo {
	t.Helper()
	_, infos, err := e2ee.Inspect(bytes.NewReader(data))
	assert.NoError(t, err)
	return infos
}

// findBlock returns the first block of type typ at or after index from.
func findBlock(t *testing.T, data []byte, typ bgcode.BlockType, from int) e2ee.BlockInfo {
	t.Helper()
	for _, info := range inspect(t, data) {
		if info.Index >= from && info.Type == typ {
			return info
		}
	}
	t.Fatalf("no %v block at or after %d", typ, from)
	return e2ee.BlockInfo{}
}

// flip returns a copy of data with one bit flipped at off, inside the
// block described by info. The block's checksum, if any, is recomputed
// so that the damage reaches the cryptographic checks.
func flip(data []byte, info e2ee.BlockInfo, off int64) []byte {
	return flipBit(data, info, off, 0x01)
}

// flipBit is flip for the bits set in mask.
func flipBit(data []byte, info e2ee.BlockInfo, off int64, mask byte) []byte {
	must.Truef(off >= info.Offset && off < info.Offset+info.Size, "offset %d outside block %d", off, info.Index)
	tampered := append([]byte(nil), data...)
	tampered[off] ^= mask
	if tampered[8] == byte(bgcode.ChecksumCRC32) {
		raw := tampered[info.Offset : info.Offset+info.Size]
		n := len(raw) - 4
		sum := bgcode.AppendChecksum(append([]byte(nil), raw[:n]...))
		copy(raw[n:], sum[n:])
	}
	return tampered
}

// dataOffset returns the offset of the first data byte of a block.
func dataOffset(info e2ee.BlockInfo) int64 {
	hsize := int64(8)
	if info.Compression != bgcode.NoCompression {
		hsize = 12
	}
	return info.Offset + hsize + int64(info.Type.ParamsSize())
}

// mixedContainer has every metadata type, a compressed metadata block
// and an empty g-code block.
func mixedContainer(checksum bgcode.ChecksumType) []byte {
	return bgcodetest.NewBuilder(checksum).
		Metadata(bgcode.FileMetadata, []byte("Producer=test")).
		DeflatedMetadata(bgcode.PrinterMetadata, bytes.Repeat([]byte("nozzle_diameter=0.4\n"), 8)).
		Thumbnail(16, 16, []byte("\x89PNG\r\n\x1a\n")).
		Metadata(bgcode.PrintMetadata, []byte("estimated printing time=1m")).
		GCode([]byte("G28\n")).
		GCode(nil).
		GCode([]byte("M84\n")).
		Bytes()
}

// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package e2ee implements end-to-end encryption of bgcode containers.
//
// An encrypted container keeps the file header and metadata blocks in
// the clear, followed by
//
//	identity block   signer public key, name, and SHA-256 hashes of the
//	                 preceding bytes and of the key blocks, signed with
//	                 RSA-PSS-SHA256
//	key blocks       one per recipient: RSA-OAEP-SHA256 encryption of the
//	                 session keys, bound to signer and recipient by their
//	                 key hashes, then signed by the signer
//	encrypted blocks one per g-code block: AES-128-CBC of the original
//	                 block, followed by one HMAC-SHA256 tag per recipient;
//	                 the last one carries the terminal flag
//
// The AES key is shared by all recipients. Each recipient has its own
// HMAC key, so a recipient can verify only its own tag. The CBC IV of
// an encrypted block is the little-endian encoding of the block's
// offset in the container and is never stored.
//
// Decrypt verifies before it trusts: the identity signature and
// metadata hash, then the key-set hash, then each block's tag before
// its decryption. Output is released only after the terminal block has
// been authenticated and the input is known to end there.
package e2ee

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/grailbio/bgcode/bgcode"
	"github.com/grailbio/bgcode/errors"
)

const (
	// HashSize is the size of the SHA-256 hashes embedded in identity
	// and key blocks.
	HashSize = sha256.Size
	// SignatureSize is the size of an RSA-2048 signature.
	SignatureSize = 256
	// KeySize is the size of each session key.
	KeySize = 16
	// TagSize is the size of an HMAC-SHA256 tag.
	TagSize = sha256.Size
	// WrappedKeySize is the size of an RSA key block payload.
	WrappedKeySize = 2 * SignatureSize
	// MaxIdentityNameLen bounds the identity name in bytes.
	MaxIdentityNameLen = 31
	// RSAKeyBits is the only RSA modulus size the format admits.
	RSAKeyBits = 2048
)

// SignAlgorithm identifies the identity block signature scheme.
type SignAlgorithm uint16

// SignRSA is RSA-PSS with SHA-256 and a salt as long as the hash.
const SignRSA SignAlgorithm = 0

func (a SignAlgorithm) String() string {
	if a == SignRSA {
		return "rsa-pss-sha256"
	}
	return fmt.Sprintf("sign(%d)", uint16(a))
}

// IdentityFlags are the identity block flags.
type IdentityFlags uint8

// OneTimeIdentity marks an identity that should not be remembered by
// the recipient.
const OneTimeIdentity IdentityFlags = 1 << 0

// KeyEncryption identifies how a key block protects the session keys.
type KeyEncryption uint16

const (
	// KeyEncryptionNone stores the session keys in the clear. It is
	// decoded for interoperability and encoded only on request.
	KeyEncryptionNone KeyEncryption = 0
	// KeyEncryptionRSA is RSA-OAEP-SHA256 encryption to the recipient,
	// signed with RSA-PSS-SHA256 by the signer.
	KeyEncryptionRSA KeyEncryption = 1
)

func (e KeyEncryption) String() string {
	switch e {
	case KeyEncryptionNone:
		return "none"
	case KeyEncryptionRSA:
		return "rsa-oaep-sha256+pss"
	default:
		return fmt.Sprintf("keyenc(%d)", uint16(e))
	}
}

// BlockEncryption identifies the cipher of an encrypted block.
type BlockEncryption uint16

// AES128CBCSHA256HMAC is AES-128-CBC with PKCS#7 padding, authenticated
// by HMAC-SHA256.
const AES128CBCSHA256HMAC BlockEncryption = 0

func (e BlockEncryption) String() string {
	if e == AES128CBCSHA256HMAC {
		return "aes128-cbc-sha256-hmac"
	}
	return fmt.Sprintf("blockenc(%d)", uint16(e))
}

// lockedReader serializes reads from r. Key wrapping reads randomness
// from several goroutines.
type lockedReader struct {
	mu sync.Mutex
	r  io.Reader
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Read(p)
}

var randomSource io.Reader = &lockedReader{r: rand.Reader}

// SetRandSource sets the source of random numbers used for session
// keys and RSA padding. It is intended for testing. The source need
// not be safe for concurrent use, and a deterministic source yields
// deterministic containers.
func SetRandSource(rd io.Reader) {
	randomSource = &lockedReader{r: rd}
}

func readRandom(b []byte) error {
	n, err := io.ReadFull(randomSource, b)
	if err != nil {
		return errors.E(fmt.Sprintf("failed to read %d bytes of random data", len(b)), err)
	}
	if n != len(b) {
		return errors.E(fmt.Sprintf("failed to read %d bytes of random data: got %d", len(b), n))
	}
	return nil
}

// KeyHash returns the SHA-256 hash of the DER (SubjectPublicKeyInfo)
// encoding of pub. It names signers and recipients on the wire.
func KeyHash(pub *rsa.PublicKey) ([HashSize]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return [HashSize]byte{}, errors.E(errors.Invalid, "marshal public key", err)
	}
	return sha256.Sum256(der), nil
}

func checkKeySize(what string, pub *rsa.PublicKey) error {
	if pub == nil {
		return errors.E(errors.Invalid, what+" key is missing")
	}
	if pub.Size() != SignatureSize {
		return errors.E(errors.Invalid, fmt.Sprintf("%s key has %d bits, want %d", what, pub.N.BitLen(), RSAKeyBits))
	}
	return nil
}

// position locates a block in the input for error reporting.
type position struct {
	block  int
	offset int64
}

var nowhere = position{-1, -1}

func at(b bgcode.Block) position { return position{b.Index, b.Offset} }

func (p position) fail(code bgcode.Code, msg string, cause error) error {
	return bgcode.NewError(code, p.block, p.offset, msg, cause)
}

func appendUint16(b []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(b, buf[:]...)
}

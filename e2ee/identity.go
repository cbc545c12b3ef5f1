// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package e2ee

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/grailbio/bgcode/bgcode"
	"github.com/grailbio/bgcode/errors"
)

var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}

// Identity is the trust anchor of an encrypted container. It binds the
// signer's public key and name to the hash of everything before it
// (MetadataHash) and to the hash of the key blocks after it
// (KeySetHash).
//
// Identity block payload layout, after the 3-byte params
// (algorithm [2B LE], flags [1B]):
//
//	pubkey_len    [2B LE]
//	pubkey        [pubkey_len] DER SubjectPublicKeyInfo
//	name_len      [1B] <= 31
//	name          [name_len]
//	metadata_hash [32B]
//	key_set_hash  [32B]
//	signature     [256B] RSA-PSS-SHA256 over header, params and the
//	              payload up to here
type Identity struct {
	Algorithm    SignAlgorithm
	Flags        IdentityFlags
	PublicKey    *rsa.PublicKey
	PublicKeyDER []byte
	Name         string
	MetadataHash [HashSize]byte
	KeySetHash   [HashSize]byte
	Signature    []byte
}

// GenerateIdentity assembles and signs an identity.
func GenerateIdentity(signer *rsa.PrivateKey, metadataHash, keySetHash [HashSize]byte, name string, flags IdentityFlags) (*Identity, error) {
	if signer == nil {
		return nil, errors.E(errors.Invalid, "signer key is missing")
	}
	if err := checkKeySize("signer", &signer.PublicKey); err != nil {
		return nil, err
	}
	if len(name) > MaxIdentityNameLen {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("identity name %q is longer than %d bytes", name, MaxIdentityNameLen))
	}
	der, err := MarshalPublicKey(&signer.PublicKey)
	if err != nil {
		return nil, err
	}
	id := &Identity{
		Algorithm:    SignRSA,
		Flags:        flags,
		PublicKey:    &signer.PublicKey,
		PublicKeyDER: der,
		Name:         name,
		MetadataHash: metadataHash,
		KeySetHash:   keySetHash,
	}
	digest := sha256.Sum256(id.signedBytes())
	id.Signature, err = rsa.SignPSS(randomSource, signer, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, errors.E("sign identity", err)
	}
	return id, nil
}

// OneTime reports whether the identity is marked one-time.
func (id *Identity) OneTime() bool { return id.Flags&OneTimeIdentity != 0 }

// KeyHash returns the SHA-256 hash of the signer's DER public key.
func (id *Identity) KeyHash() [HashSize]byte { return sha256.Sum256(id.PublicKeyDER) }

func (id *Identity) header() bgcode.BlockHeader {
	size := 2 + len(id.PublicKeyDER) + 1 + len(id.Name) + 2*HashSize + SignatureSize
	return bgcode.NewBlockHeader(bgcode.IdentityBlock, size)
}

func (id *Identity) params() []byte {
	return append(appendUint16(nil, uint16(id.Algorithm)), byte(id.Flags))
}

// data returns the payload after the params, excluding the signature.
func (id *Identity) data() []byte {
	b := appendUint16(nil, uint16(len(id.PublicKeyDER)))
	b = append(b, id.PublicKeyDER...)
	b = append(b, byte(len(id.Name)))
	b = append(b, id.Name...)
	b = append(b, id.MetadataHash[:]...)
	return append(b, id.KeySetHash[:]...)
}

func (id *Identity) signedBytes() []byte {
	b := id.header().Bytes()
	b = append(b, id.params()...)
	return append(b, id.data()...)
}

// Encode frames the signed identity as a block.
func (id *Identity) Encode(checksum bgcode.ChecksumType) []byte {
	data := append(id.data(), id.Signature...)
	return bgcode.EncodeBlock(id.header(), id.params(), data, checksum)
}

// ParseIdentity decodes an identity block from its header and its
// payload (params followed by data). The signature is not checked;
// see Verify.
func ParseIdentity(h bgcode.BlockHeader, payload []byte) (*Identity, error) {
	return parseIdentity(nowhere, h, payload)
}

func parseIdentity(pos position, h bgcode.BlockHeader, payload []byte) (*Identity, error) {
	if h.Type != bgcode.IdentityBlock {
		return nil, pos.fail(bgcode.Framing, fmt.Sprintf("%v block is not an identity", h.Type), nil)
	}
	if h.Compression != bgcode.NoCompression {
		return nil, pos.fail(bgcode.Framing, "compressed identity block", nil)
	}
	if int64(len(payload)) != h.PayloadSize() {
		return nil, pos.fail(bgcode.Framing, fmt.Sprintf("identity payload is %d bytes, header says %d", len(payload), h.PayloadSize()), nil)
	}
	id := &Identity{
		Algorithm: SignAlgorithm(binary.LittleEndian.Uint16(payload)),
		Flags:     IdentityFlags(payload[2]),
	}
	if id.Algorithm != SignRSA {
		return nil, pos.fail(bgcode.UnsupportedAlgorithm, fmt.Sprintf("identity signature %v", id.Algorithm), nil)
	}
	r := bytes.NewReader(payload[3:])
	short := func(field string) error {
		return pos.fail(bgcode.Framing, "identity block too short for "+field, nil)
	}
	var keyLen uint16
	if binary.Read(r, binary.LittleEndian, &keyLen) != nil {
		return nil, short("key length")
	}
	if int(keyLen) > r.Len() {
		return nil, short("public key")
	}
	id.PublicKeyDER = make([]byte, keyLen)
	r.Read(id.PublicKeyDER) // nolint: errcheck
	nameLen, err := r.ReadByte()
	if err != nil {
		return nil, short("name length")
	}
	if nameLen > MaxIdentityNameLen {
		return nil, pos.fail(bgcode.Framing, fmt.Sprintf("identity name of %d bytes is too long", nameLen), nil)
	}
	if int(nameLen)+2*HashSize+SignatureSize != r.Len() {
		return nil, pos.fail(bgcode.Framing, fmt.Sprintf("identity block has %d bytes after the public key, want %d",
			r.Len()+1, 1+int(nameLen)+2*HashSize+SignatureSize), nil)
	}
	name := make([]byte, nameLen)
	r.Read(name)               // nolint: errcheck
	r.Read(id.MetadataHash[:]) // nolint: errcheck
	r.Read(id.KeySetHash[:])   // nolint: errcheck
	id.Signature = make([]byte, SignatureSize)
	r.Read(id.Signature) // nolint: errcheck
	id.Name = string(name)

	id.PublicKey, err = ParsePublicKey(id.PublicKeyDER)
	if err != nil {
		if errors.Is(errors.NotSupported, err) {
			return nil, pos.fail(bgcode.UnsupportedAlgorithm, "identity public key", err)
		}
		return nil, pos.fail(bgcode.Framing, "identity public key", err)
	}
	return id, nil
}

// Verify checks that metadataHash, the hash of every byte before the
// identity block, matches the attested one, and that the signature is
// valid for the embedded public key.
func (id *Identity) Verify(metadataHash [HashSize]byte) error {
	return id.verify(nowhere, metadataHash)
}

func (id *Identity) verify(pos position, metadataHash [HashSize]byte) error {
	if metadataHash != id.MetadataHash {
		return pos.fail(bgcode.HashMismatch, "metadata hash", nil)
	}
	if id.PublicKey.Size() != SignatureSize {
		return pos.fail(bgcode.Signature, fmt.Sprintf("identity key has %d bits", id.PublicKey.N.BitLen()), nil)
	}
	digest := sha256.Sum256(id.signedBytes())
	if err := rsa.VerifyPSS(id.PublicKey, crypto.SHA256, digest[:], id.Signature, pssOptions); err != nil {
		return pos.fail(bgcode.Signature, "identity", err)
	}
	return nil
}

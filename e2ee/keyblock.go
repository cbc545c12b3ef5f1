// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package e2ee

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/bgcode/bgcode"
	"github.com/grailbio/bgcode/errors"
	"golang.org/x/sync/errgroup"
)

// SessionKeys are the symmetric keys one recipient needs to read a
// container: the AES key shared by all recipients, and the HMAC key
// of this recipient's tags.
type SessionKeys struct {
	CipherKey [KeySize]byte
	AuthKey   [KeySize]byte
}

// Inner plaintext of an RSA key block:
//
//	signer_key_hash    [32B]
//	recipient_key_hash [32B]
//	cipher_key         [16B]
//	auth_key           [16B]
const wrappedPlaintextSize = 2*HashSize + 2*KeySize

// WrapKey encrypts keys to recipient with RSA-OAEP-SHA256, binding
// them to the signer and recipient key hashes, and signs the
// ciphertext with RSA-PSS-SHA256. The result is WrappedKeySize bytes.
func WrapKey(keys SessionKeys, signer *rsa.PrivateKey, recipient *rsa.PublicKey) ([]byte, error) {
	return wrapKey(randomSource, keys, signer, recipient)
}

// wrapRandomSize is the randomness one wrap consumes: the OAEP seed
// and the PSS salt.
const wrapRandomSize = 2 * HashSize

func wrapKey(rnd io.Reader, keys SessionKeys, signer *rsa.PrivateKey, recipient *rsa.PublicKey) ([]byte, error) {
	if signer == nil {
		return nil, errors.E(errors.Invalid, "signer key is missing")
	}
	if err := checkKeySize("signer", &signer.PublicKey); err != nil {
		return nil, err
	}
	if err := checkKeySize("recipient", recipient); err != nil {
		return nil, err
	}
	signerHash, err := KeyHash(&signer.PublicKey)
	if err != nil {
		return nil, err
	}
	recipientHash, err := KeyHash(recipient)
	if err != nil {
		return nil, err
	}
	inner := make([]byte, 0, wrappedPlaintextSize)
	inner = append(inner, signerHash[:]...)
	inner = append(inner, recipientHash[:]...)
	inner = append(inner, keys.CipherKey[:]...)
	inner = append(inner, keys.AuthKey[:]...)
	ct, err := rsa.EncryptOAEP(sha256.New(), rnd, recipient, inner, nil)
	if err != nil {
		return nil, errors.E("wrap session keys", err)
	}
	digest := sha256.Sum256(ct)
	sig, err := rsa.SignPSS(rnd, signer, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, errors.E("sign key block", err)
	}
	return append(ct, sig...), nil
}

// UnwrapKey verifies the signer's signature on wrapped, decrypts it
// with the recipient key, and checks that the embedded key hashes name
// this signer and this recipient. A bad signature is a Signature
// error, a failed decryption a KeyUnwrap error, and a hash mismatch a
// KeyBinding error.
func UnwrapKey(wrapped []byte, signerPub *rsa.PublicKey, recipient *rsa.PrivateKey) (SessionKeys, error) {
	return unwrapKey(nowhere, wrapped, signerPub, recipient)
}

func unwrapKey(pos position, wrapped []byte, signerPub *rsa.PublicKey, recipient *rsa.PrivateKey) (SessionKeys, error) {
	var keys SessionKeys
	if len(wrapped) != WrappedKeySize {
		return keys, pos.fail(bgcode.KeyUnwrap, fmt.Sprintf("wrapped key is %d bytes, want %d", len(wrapped), WrappedKeySize), nil)
	}
	if signerPub == nil || recipient == nil {
		return keys, pos.fail(bgcode.KeyUnwrap, "missing signer or recipient key", nil)
	}
	ct, sig := wrapped[:SignatureSize], wrapped[SignatureSize:]
	digest := sha256.Sum256(ct)
	if err := rsa.VerifyPSS(signerPub, crypto.SHA256, digest[:], sig, pssOptions); err != nil {
		return keys, pos.fail(bgcode.Signature, "key block", err)
	}
	inner, err := rsa.DecryptOAEP(sha256.New(), nil, recipient, ct, nil)
	if err != nil {
		return keys, pos.fail(bgcode.KeyUnwrap, "", err)
	}
	if len(inner) != wrappedPlaintextSize {
		return keys, pos.fail(bgcode.KeyUnwrap, fmt.Sprintf("unwrapped %d bytes, want %d", len(inner), wrappedPlaintextSize), nil)
	}
	signerHash, err := KeyHash(signerPub)
	if err != nil {
		return keys, err
	}
	recipientHash, err := KeyHash(&recipient.PublicKey)
	if err != nil {
		return keys, err
	}
	if !bytes.Equal(inner[:HashSize], signerHash[:]) {
		return keys, pos.fail(bgcode.KeyBinding, "signer key hash", nil)
	}
	if !bytes.Equal(inner[HashSize:2*HashSize], recipientHash[:]) {
		return keys, pos.fail(bgcode.KeyBinding, "recipient key hash", nil)
	}
	copy(keys.CipherKey[:], inner[2*HashSize:])
	copy(keys.AuthKey[:], inner[2*HashSize+KeySize:])
	return keys, nil
}

// encodeKeyBlock frames a key block.
func encodeKeyBlock(enc KeyEncryption, payload []byte, checksum bgcode.ChecksumType) []byte {
	return bgcode.EncodeBlock(bgcode.NewBlockHeader(bgcode.KeyBlock, len(payload)),
		appendUint16(nil, uint16(enc)), payload, checksum)
}

// wrapKeys produces one framed key block per recipient, in recipient
// order. Each recipient gets a fresh auth key; the cipher key is shared.
// Wrapping runs concurrently.
func wrapKeys(ctx context.Context, cipherKey [KeySize]byte, signer *rsa.PrivateKey, recipients []*rsa.PublicKey, checksum bgcode.ChecksumType) ([]SessionKeys, [][]byte, error) {
	keys := make([]SessionKeys, len(recipients))
	rnds := make([]io.Reader, len(recipients))
	for i := range keys {
		keys[i].CipherKey = cipherKey
		if err := readRandom(keys[i].AuthKey[:]); err != nil {
			return nil, nil, err
		}
		// Padding randomness is drawn in recipient order so that the
		// output does not depend on goroutine scheduling.
		pad := make([]byte, wrapRandomSize)
		if err := readRandom(pad); err != nil {
			return nil, nil, err
		}
		rnds[i] = io.MultiReader(bytes.NewReader(pad), randomSource)
	}
	blocks := make([][]byte, len(recipients))
	g, ctx := errgroup.WithContext(ctx)
	for i := range recipients {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return errors.E(err)
			}
			wrapped, err := wrapKey(rnds[i], keys[i], signer, recipients[i])
			if err != nil {
				return errors.E(fmt.Sprintf("recipient %d", i), err)
			}
			blocks[i] = encodeKeyBlock(KeyEncryptionRSA, wrapped, checksum)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return keys, blocks, nil
}

// plainKeyBlock frames a KeyEncryptionNone block carrying keys in the clear.
func plainKeyBlock(keys SessionKeys, checksum bgcode.ChecksumType) []byte {
	payload := make([]byte, 0, 2*KeySize)
	payload = append(payload, keys.CipherKey[:]...)
	payload = append(payload, keys.AuthKey[:]...)
	return encodeKeyBlock(KeyEncryptionNone, payload, checksum)
}

// openKeyBlock recovers the session keys from a key block.
func openKeyBlock(blk bgcode.Block, signerPub *rsa.PublicKey, recipient *rsa.PrivateKey) (SessionKeys, error) {
	pos := at(blk)
	enc := KeyEncryption(binary.LittleEndian.Uint16(blk.Params()))
	data := blk.Data()
	switch enc {
	case KeyEncryptionNone:
		var keys SessionKeys
		if len(data) != 2*KeySize {
			return keys, pos.fail(bgcode.KeyUnwrap, fmt.Sprintf("plain key block is %d bytes, want %d", len(data), 2*KeySize), nil)
		}
		copy(keys.CipherKey[:], data)
		copy(keys.AuthKey[:], data[KeySize:])
		return keys, nil
	case KeyEncryptionRSA:
		return unwrapKey(pos, data, signerPub, recipient)
	default:
		return SessionKeys{}, pos.fail(bgcode.UnsupportedAlgorithm, fmt.Sprintf("key block encryption %v", enc), nil)
	}
}

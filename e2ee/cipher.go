// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package e2ee

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/grailbio/bgcode/bgcode"
	"github.com/grailbio/bgcode/errors"
)

// IV is the CBC initialization vector of an encrypted block.
type IV [aes.BlockSize]byte

// DeriveIV returns the IV of the encrypted block whose header starts at
// offset: the offset as a 16-byte little-endian integer. Offsets in a
// forward-written container strictly increase, so IVs never repeat
// under one cipher key.
func DeriveIV(offset int64) IV {
	var iv IV
	binary.LittleEndian.PutUint64(iv[:], uint64(offset))
	return iv
}

// EncryptBlock pads plaintext with PKCS#7 and encrypts it with
// AES-128-CBC.
func EncryptBlock(plaintext []byte, cipherKey [KeySize]byte, iv IV) ([]byte, error) {
	block, err := aes.NewCipher(cipherKey[:])
	if err != nil {
		return nil, errors.E(errors.Invalid, "aes key", err)
	}
	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	buf := make([]byte, len(plaintext)+pad)
	copy(buf, plaintext)
	for i := len(plaintext); i < len(buf); i++ {
		buf[i] = byte(pad)
	}
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(buf, buf)
	return buf, nil
}

// AuthenticateBlock returns HMAC-SHA256(authKey, header ∥ iv ∥ params ∥ ciphertext).
func AuthenticateBlock(header []byte, iv IV, params, ciphertext []byte, authKey [KeySize]byte) [TagSize]byte {
	mac := hmac.New(sha256.New, authKey[:])
	mac.Write(header)
	mac.Write(iv[:])
	mac.Write(params)
	mac.Write(ciphertext)
	var tag [TagSize]byte
	copy(tag[:], mac.Sum(nil))
	return tag
}

// DecryptBlock authenticates and decrypts the data of an encrypted
// block: ciphertext followed by numTags tags. The tag at index is
// compared in constant time against the one computed with keys.AuthKey
// and, on mismatch, an Authentication error is returned before any
// decryption takes place. Bad padding after a good tag is also an
// Authentication error.
func DecryptBlock(header []byte, iv IV, params, data []byte, numTags, index int, keys SessionKeys) ([]byte, error) {
	return decryptBlock(nowhere, header, iv, params, data, numTags, index, keys)
}

func decryptBlock(pos position, header []byte, iv IV, params, data []byte, numTags, index int, keys SessionKeys) ([]byte, error) {
	if numTags < 1 || index < 0 || index >= numTags {
		return nil, pos.fail(bgcode.Framing, fmt.Sprintf("tag %d of %d", index, numTags), nil)
	}
	n := len(data) - numTags*TagSize
	if n <= 0 || n%aes.BlockSize != 0 {
		return nil, pos.fail(bgcode.Framing, fmt.Sprintf("encrypted block of %d bytes cannot hold %d tags and whole cipher blocks", len(data), numTags), nil)
	}
	ciphertext := data[:n]
	tag := data[n+index*TagSize : n+(index+1)*TagSize]
	want := AuthenticateBlock(header, iv, params, ciphertext, keys.AuthKey)
	if !hmac.Equal(tag, want[:]) {
		return nil, pos.fail(bgcode.Authentication, fmt.Sprintf("tag %d", index), nil)
	}
	block, err := aes.NewCipher(keys.CipherKey[:])
	if err != nil {
		return nil, errors.E(errors.Invalid, "aes key", err)
	}
	plaintext := make([]byte, n)
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(plaintext, ciphertext)
	pad := int(plaintext[n-1])
	if pad == 0 || pad > aes.BlockSize {
		return nil, pos.fail(bgcode.Authentication, "bad padding", nil)
	}
	for _, b := range plaintext[n-pad:] {
		if int(b) != pad {
			return nil, pos.fail(bgcode.Authentication, "bad padding", nil)
		}
	}
	return plaintext[:n-pad], nil
}

// encryptedParams encodes the params of an encrypted block.
func encryptedParams(last bool) []byte {
	p := appendUint16(nil, uint16(AES128CBCSHA256HMAC))
	if last {
		return append(p, 1)
	}
	return append(p, 0)
}

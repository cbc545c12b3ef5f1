// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package e2ee_test

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"testing"

	"github.com/grailbio/bgcode/bgcode"
	"github.com/grailbio/bgcode/e2ee"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestDeriveIV(t *testing.T) {
	expect.EQ(t, e2ee.DeriveIV(0), e2ee.IV{})
	expect.EQ(t, e2ee.DeriveIV(0x0102), e2ee.IV{0x02, 0x01})
	expect.EQ(t, e2ee.DeriveIV(1<<40), e2ee.IV{5: 1})
}

func TestBlockCipher(t *testing.T) {
	keys := e2ee.SessionKeys{
		CipherKey: [e2ee.KeySize]byte{1, 2, 3},
		AuthKey:   [e2ee.KeySize]byte{4, 5, 6},
	}
	other := e2ee.SessionKeys{AuthKey: [e2ee.KeySize]byte{7}}
	header := bgcode.NewBlockHeader(bgcode.EncryptedBlock, 0).Bytes()
	params := []byte{0, 0, 1}
	iv := e2ee.DeriveIV(1234)
	for _, n := range []int{0, 1, 15, 16, 17, 100} {
		plain := bytes.Repeat([]byte{'G'}, n)
		ct, err := e2ee.EncryptBlock(plain, keys.CipherKey, iv)
		assert.NoError(t, err)
		expect.EQ(t, len(ct), (n/16+1)*16)

		tag0 := e2ee.AuthenticateBlock(header, iv, params, ct, other.AuthKey)
		tag1 := e2ee.AuthenticateBlock(header, iv, params, ct, keys.AuthKey)
		data := append(append(append([]byte(nil), ct...), tag0[:]...), tag1[:]...)

		got, err := e2ee.DecryptBlock(header, iv, params, data, 2, 1, keys)
		assert.NoError(t, err)
		expect.EQ(t, len(got), n)
		expect.True(t, bytes.Equal(got, plain))

		_, err = e2ee.DecryptBlock(header, iv, params, data, 2, 0, keys)
		expect.EQ(t, bgcode.CodeOf(err), bgcode.Authentication)
		_, err = e2ee.DecryptBlock(header, e2ee.DeriveIV(1235), params, data, 2, 1, keys)
		expect.EQ(t, bgcode.CodeOf(err), bgcode.Authentication)
		_, err = e2ee.DecryptBlock(header, iv, []byte{0, 0, 0}, data, 2, 1, keys)
		expect.EQ(t, bgcode.CodeOf(err), bgcode.Authentication)
		_, err = e2ee.DecryptBlock(header, iv, params, data, 0, 0, keys)
		expect.EQ(t, bgcode.CodeOf(err), bgcode.Framing)
		_, err = e2ee.DecryptBlock(header, iv, params, data[:len(data)-1], 2, 1, keys)
		expect.EQ(t, bgcode.CodeOf(err), bgcode.Framing)
		_, err = e2ee.DecryptBlock(header, iv, params, data, 2, 2, keys)
		expect.EQ(t, bgcode.CodeOf(err), bgcode.Framing)
	}
}

func TestBadPadding(t *testing.T) {
	keys := e2ee.SessionKeys{CipherKey: [e2ee.KeySize]byte{1}, AuthKey: [e2ee.KeySize]byte{2}}
	iv := e2ee.DeriveIV(10)
	// The first cipher block of sixteen zeros decrypts to a zero pad
	// byte. The tag is valid, so only the padding check rejects it.
	ct, err := e2ee.EncryptBlock(make([]byte, 16), keys.CipherKey, iv)
	assert.NoError(t, err)
	tag := e2ee.AuthenticateBlock(nil, iv, nil, ct[:16], keys.AuthKey)
	data := append(append([]byte(nil), ct[:16]...), tag[:]...)
	_, err = e2ee.DecryptBlock(nil, iv, nil, data, 1, 0, keys)
	expect.EQ(t, bgcode.CodeOf(err), bgcode.Authentication)
}

func TestWrapKey(t *testing.T) {
	keys := e2ee.SessionKeys{CipherKey: [e2ee.KeySize]byte{9}, AuthKey: [e2ee.KeySize]byte{8}}
	wrapped, err := e2ee.WrapKey(keys, testKey(signer), &testKey(alice).PublicKey)
	assert.NoError(t, err)
	expect.EQ(t, len(wrapped), e2ee.WrappedKeySize)

	got, err := e2ee.UnwrapKey(wrapped, &testKey(signer).PublicKey, testKey(alice))
	assert.NoError(t, err)
	expect.EQ(t, got, keys)

	_, err = e2ee.UnwrapKey(wrapped, &testKey(signer).PublicKey, testKey(bob))
	expect.EQ(t, bgcode.CodeOf(err), bgcode.KeyUnwrap)
	_, err = e2ee.UnwrapKey(wrapped, &testKey(mallet).PublicKey, testKey(alice))
	expect.EQ(t, bgcode.CodeOf(err), bgcode.Signature)
	_, err = e2ee.UnwrapKey(wrapped[:100], &testKey(signer).PublicKey, testKey(alice))
	expect.EQ(t, bgcode.CodeOf(err), bgcode.KeyUnwrap)
}

// TestKeyBinding checks that a key block signed by the right signer
// but naming another one is rejected.
func TestKeyBinding(t *testing.T) {
	for _, c := range []struct {
		name              string
		signer, recipient int
	}{
		{"signer", mallet, alice},
		{"recipient", signer, bob},
	} {
		t.Run(c.name, func(t *testing.T) {
			signerHash, err := e2ee.KeyHash(&testKey(c.signer).PublicKey)
			assert.NoError(t, err)
			recipientHash, err := e2ee.KeyHash(&testKey(c.recipient).PublicKey)
			assert.NoError(t, err)
			inner := append(signerHash[:], recipientHash[:]...)
			inner = append(inner, make([]byte, 2*e2ee.KeySize)...)
			ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &testKey(alice).PublicKey, inner, nil)
			assert.NoError(t, err)
			digest := sha256.Sum256(ct)
			sig, err := rsa.SignPSS(rand.Reader, testKey(signer), crypto.SHA256, digest[:],
				&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256})
			assert.NoError(t, err)

			_, err = e2ee.UnwrapKey(append(ct, sig...), &testKey(signer).PublicKey, testKey(alice))
			expect.EQ(t, bgcode.CodeOf(err), bgcode.KeyBinding)
		})
	}
}

func TestIdentity(t *testing.T) {
	mh := sha256.Sum256([]byte("metadata"))
	ksh := sha256.Sum256([]byte("keys"))
	id, err := e2ee.GenerateIdentity(testKey(signer), mh, ksh, "printer farm", e2ee.OneTimeIdentity)
	assert.NoError(t, err)
	raw := id.Encode(bgcode.ChecksumNone)

	sc := bgcode.NewScanner(bytes.NewReader(append(bgcode.NewFileHeader(bgcode.ChecksumNone).Bytes(), raw...)), bgcode.ScannerOpts{})
	assert.True(t, sc.Scan())
	blk := sc.Block()
	parsed, err := e2ee.ParseIdentity(blk.Header, blk.Raw[blk.Header.Size():])
	assert.NoError(t, err)
	expect.EQ(t, parsed.Name, "printer farm")
	expect.True(t, parsed.OneTime())
	expect.EQ(t, parsed.KeySetHash, ksh)
	expect.EQ(t, parsed.KeyHash(), id.KeyHash())
	assert.NoError(t, parsed.Verify(mh))

	err = parsed.Verify(ksh)
	expect.EQ(t, bgcode.CodeOf(err), bgcode.HashMismatch)
	parsed.Name = "impostor"
	err = parsed.Verify(mh)
	expect.EQ(t, bgcode.CodeOf(err), bgcode.Signature)

	_, err = e2ee.GenerateIdentity(testKey(signer), mh, ksh, "a name that is far too long to fit", 0)
	expect.HasSubstr(t, err.Error(), "longer than")
}

func TestKeys(t *testing.T) {
	der, err := e2ee.MarshalPublicKey(&testKey(alice).PublicKey)
	assert.NoError(t, err)
	pub, err := e2ee.ParsePublicKey(der)
	assert.NoError(t, err)
	expect.EQ(t, pub.N.Cmp(testKey(alice).N), 0)

	priv, err := e2ee.ParsePrivateKey(e2ee.MarshalPrivateKey(testKey(bob)))
	assert.NoError(t, err)
	expect.EQ(t, priv.N.Cmp(testKey(bob).N), 0)

	_, err = e2ee.ParsePublicKey([]byte("not a key"))
	expect.True(t, err != nil)
}

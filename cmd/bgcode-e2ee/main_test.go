// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/bgcode/bgcode"
	"github.com/grailbio/bgcode/bgcode/bgcodetest"
	"github.com/grailbio/bgcode/e2ee"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"v.io/x/lib/cmdline"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	env := &cmdline.Env{Stdout: &stdout, Stderr: &stderr}
	err := cmdline.ParseAndRun(newCmdRoot(), env, args)
	return stdout.String(), err
}

func writeKeys(t *testing.T, dir, name string) (priv, pub string) {
	key, err := rsa.GenerateKey(rand.Reader, e2ee.RSAKeyBits)
	assert.NoError(t, err)
	der, err := e2ee.MarshalPublicKey(&key.PublicKey)
	assert.NoError(t, err)
	priv = filepath.Join(dir, name+".key.der")
	pub = filepath.Join(dir, name+".pub.der")
	assert.NoError(t, ioutil.WriteFile(priv, e2ee.MarshalPrivateKey(key), 0600))
	assert.NoError(t, ioutil.WriteFile(pub, der, 0644))
	return
}

func TestEncryptDecrypt(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	signerKey, signerPub := writeKeys(t, dir, "signer")
	recipientKey, recipientPub := writeKeys(t, dir, "printer")

	plain := bgcodetest.NewBuilder(bgcode.ChecksumCRC32).
		Metadata(bgcode.FileMetadata, []byte("Producer=test")).
		GCode([]byte("G28\n")).
		GCode([]byte("M84\n")).
		Bytes()
	var (
		plainPath = filepath.Join(dir, "part.bgcode")
		encPath   = filepath.Join(dir, "part.enc.bgcode")
		outPath   = filepath.Join(dir, "out.bgcode")
		storePath = filepath.Join(dir, "trusted.yaml")
	)
	assert.NoError(t, ioutil.WriteFile(plainPath, plain, 0644))

	_, err := run(t, "encrypt", "-in", plainPath, "-out", encPath,
		"-signer-key", signerKey, "-recipient-key", recipientPub, "-identity", "slicer")
	assert.NoError(t, err)

	out, err := run(t, "inspect", encPath)
	assert.NoError(t, err)
	expect.HasSubstr(t, out, "GCDE version 1, checksum crc32")
	expect.HasSubstr(t, out, `"slicer"`)
	expect.HasSubstr(t, out, "last")

	_, err = run(t, "decrypt", "-in", encPath, "-out", outPath, "-recipient-key", recipientKey,
		"-trust-store", storePath, "-known-only")
	expect.EQ(t, bgcode.CodeOf(err), bgcode.UntrustedIdentity)

	out, err = run(t, "trust", "add", "-trust-store", storePath, "-name", "slicer", signerPub)
	assert.NoError(t, err)
	expect.HasSubstr(t, out, "Found ")
	out, err = run(t, "trust", "list", "-trust-store", storePath)
	assert.NoError(t, err)
	expect.HasSubstr(t, out, "\tslicer\n")

	out, err = run(t, "decrypt", "-in", encPath, "-out", outPath, "-recipient-key", recipientKey,
		"-signer-pub", signerPub, "-trust-store", storePath, "-known-only")
	assert.NoError(t, err)
	expect.HasSubstr(t, out, `signed by "slicer" (trusted`)
	got, err := ioutil.ReadFile(outPath)
	assert.NoError(t, err)
	expect.EQ(t, got, plain)
}

// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package e2ee

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/grailbio/bgcode/bgcode"
	"github.com/grailbio/bgcode/errors"
	"github.com/grailbio/bgcode/file"
	"github.com/grailbio/bgcode/log"
)

// EncryptOptions configures Encrypt.
type EncryptOptions struct {
	// Signer signs the identity and key blocks. Required.
	Signer *rsa.PrivateKey
	// Recipients receive one key block each, in this order. At least
	// one is required unless PlainKeys is set.
	Recipients []*rsa.PublicKey
	// IdentityName is the signer's name, at most MaxIdentityNameLen bytes.
	IdentityName string
	// OneTime marks the identity as one-time.
	OneTime bool
	// PlainKeys writes a single KeyEncryptionNone key block instead of
	// wrapping the keys for each recipient. The output is readable
	// by anyone.
	PlainKeys bool
	// MaxBlockSize bounds input blocks; see bgcode.ScannerOpts.
	MaxBlockSize int64
}

func (o EncryptOptions) check() error {
	if o.Signer == nil {
		return errors.E(errors.Invalid, "encrypt: signer key is missing")
	}
	if err := checkKeySize("signer", &o.Signer.PublicKey); err != nil {
		return err
	}
	if len(o.IdentityName) > MaxIdentityNameLen {
		return errors.E(errors.Invalid, fmt.Sprintf("encrypt: identity name %q is longer than %d bytes", o.IdentityName, MaxIdentityNameLen))
	}
	if o.PlainKeys {
		return nil
	}
	if len(o.Recipients) == 0 {
		return errors.E(errors.Invalid, "encrypt: no recipients")
	}
	for i, r := range o.Recipients {
		if err := checkKeySize(fmt.Sprintf("recipient %d", i), r); err != nil {
			return err
		}
	}
	return nil
}

// Encrypt reads a plain container from r and writes its encrypted form
// to w. Metadata blocks are copied through; every g-code block becomes
// one encrypted block. Input checksums are verified. Nothing is written
// to w unless the whole container was processed.
func Encrypt(ctx context.Context, r io.Reader, w io.Writer, opts EncryptOptions) error {
	if err := opts.check(); err != nil {
		return err
	}
	sc := bgcode.NewScanner(r, bgcode.ScannerOpts{MaxBlockSize: opts.MaxBlockSize})
	if err := sc.Err(); err != nil {
		return err
	}
	header := sc.Header()
	var out bytes.Buffer
	bw := bgcode.NewWriter(&out, header)
	metadataHash := sha256.New()
	metadataHash.Write(header.Bytes()) // nolint: errcheck

	var (
		session []SessionKeys
		pending *bgcode.Block
		nblocks int
	)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return errors.E("encrypt", err)
		}
		blk := sc.Block()
		switch typ := blk.Header.Type; {
		case typ.IsMetadata():
			if session != nil {
				return bgcode.NewError(bgcode.Framing, blk.Index, blk.Offset, fmt.Sprintf("%v block after g-code", typ), nil)
			}
			metadataHash.Write(blk.Raw) // nolint: errcheck
			bw.WriteRaw(blk.Raw)
		case typ == bgcode.GCode:
			if session == nil {
				var hash [HashSize]byte
				copy(hash[:], metadataHash.Sum(nil))
				var err error
				if session, err = writeKeys(ctx, bw, hash, opts); err != nil {
					return err
				}
			}
			if pending != nil {
				if err := writeEncrypted(bw, *pending, session, false); err != nil {
					return err
				}
				nblocks++
			}
			b := blk
			pending = &b
		default:
			return errors.E(errors.Invalid, fmt.Sprintf("encrypt: input is not a plain container: %v block at offset %d", typ, blk.Offset))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if pending == nil {
		return errors.E(errors.Invalid, "encrypt: container has no g-code blocks")
	}
	if err := writeEncrypted(bw, *pending, session, true); err != nil {
		return err
	}
	nblocks++
	if err := bw.Err(); err != nil {
		return err
	}
	log.Debug.Printf("encrypt: %d g-code blocks for %d recipients, %d bytes", nblocks, len(session), out.Len())
	_, err := w.Write(out.Bytes())
	return err
}

// writeKeys creates the session, then writes the identity block and the
// key blocks. It returns the per-key-block session keys in tag order.
func writeKeys(ctx context.Context, bw *bgcode.Writer, metadataHash [HashSize]byte, opts EncryptOptions) ([]SessionKeys, error) {
	var cipherKey [KeySize]byte
	if err := readRandom(cipherKey[:]); err != nil {
		return nil, err
	}
	var (
		session []SessionKeys
		blocks  [][]byte
	)
	if opts.PlainKeys {
		keys := SessionKeys{CipherKey: cipherKey}
		if err := readRandom(keys.AuthKey[:]); err != nil {
			return nil, err
		}
		session = []SessionKeys{keys}
		blocks = [][]byte{plainKeyBlock(keys, bw.Checksum())}
	} else {
		var err error
		session, blocks, err = wrapKeys(ctx, cipherKey, opts.Signer, opts.Recipients, bw.Checksum())
		if err != nil {
			return nil, err
		}
	}
	keySetHash := sha256.New()
	for _, b := range blocks {
		keySetHash.Write(b) // nolint: errcheck
	}
	var ksh [HashSize]byte
	copy(ksh[:], keySetHash.Sum(nil))
	var flags IdentityFlags
	if opts.OneTime {
		flags |= OneTimeIdentity
	}
	id, err := GenerateIdentity(opts.Signer, metadataHash, ksh, opts.IdentityName, flags)
	if err != nil {
		return nil, err
	}
	bw.WriteRaw(id.Encode(bw.Checksum()))
	for _, b := range blocks {
		bw.WriteRaw(b)
	}
	return session, nil
}

// writeEncrypted encrypts the plain block blk, including its header and
// params, at the writer's current offset, and appends one tag per key.
func writeEncrypted(bw *bgcode.Writer, blk bgcode.Block, session []SessionKeys, last bool) error {
	iv := DeriveIV(bw.Offset())
	ct, err := EncryptBlock(blk.Unchecked(), session[0].CipherKey, iv)
	if err != nil {
		return err
	}
	params := encryptedParams(last)
	h := bgcode.NewBlockHeader(bgcode.EncryptedBlock, len(ct)+len(session)*TagSize)
	hb := h.Bytes()
	data := make([]byte, 0, int(h.CompressedSize))
	data = append(data, ct...)
	for _, keys := range session {
		tag := AuthenticateBlock(hb, iv, params, ct, keys.AuthKey)
		data = append(data, tag[:]...)
	}
	bw.WriteBlock(h, params, data)
	return nil
}

// EncryptFile encrypts the container at in into out. The output file
// appears only if encryption succeeds.
func EncryptFile(ctx context.Context, in, out string, opts EncryptOptions) (err error) {
	inf, err := file.Open(ctx, in)
	if err != nil {
		return err
	}
	defer errors.CleanUpCtx(ctx, inf.Close, &err)
	outf, err := file.Create(ctx, out)
	if err != nil {
		return err
	}
	if err = Encrypt(ctx, inf.Reader(ctx), outf.Writer(ctx), opts); err != nil {
		outf.Discard(ctx) // nolint: errcheck
		return err
	}
	return outf.Close(ctx)
}

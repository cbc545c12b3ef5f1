// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package e2ee

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	"github.com/grailbio/bgcode/bgcode"
	"github.com/grailbio/bgcode/errors"
	"github.com/grailbio/bgcode/file"
	"github.com/grailbio/bgcode/log"
)

// DecryptOptions configures Decrypt.
type DecryptOptions struct {
	// RecipientKey unwraps this recipient's key block. It may be nil
	// only for containers whose keys are stored in the clear.
	RecipientKey *rsa.PrivateKey
	// SignerKey, if set, pins the expected signer; any other signer
	// fails with an UntrustedIdentity error.
	SignerKey *rsa.PublicKey
	// CheckLevel and TrustStore decide which signers are accepted.
	CheckLevel CheckLevel
	TrustStore *TrustStore
	// MaxBlockSize bounds input blocks; see bgcode.ScannerOpts.
	MaxBlockSize int64
}

// Result describes a decrypted container.
type Result struct {
	// IdentityName is the signer's name from the identity block.
	IdentityName string
	// SignerKey is the signer's verified public key.
	SignerKey *rsa.PublicKey
	// SignerKeyHash is the SHA-256 hash of the signer's DER public key.
	SignerKeyHash [HashSize]byte
	// OneTime reports the identity's one-time flag.
	OneTime bool
	// Trusted reports whether the signer is in the trust store.
	Trusted bool
	// RecipientIndex is the index of the key block, and so of the tag,
	// that belongs to the recipient.
	RecipientIndex int
	// KeyBlocks, MetadataBlocks and PayloadBlocks count blocks by kind.
	KeyBlocks      int
	MetadataBlocks int
	PayloadBlocks  int
}

type decryptState int

const (
	stateInit decryptState = iota
	stateReadingMetadata
	stateIdentityVerified
	stateKeysAccumulated
	stateStreamingPayload
	stateTerminal
)

var stateNames = [...]string{
	stateInit:             "init",
	stateReadingMetadata:  "reading metadata",
	stateIdentityVerified: "identity verified",
	stateKeysAccumulated:  "keys accumulated",
	stateStreamingPayload: "streaming payload",
	stateTerminal:         "terminal",
}

func (s decryptState) String() string { return stateNames[s] }

// decrypter is the state of one Decrypt call.
type decrypter struct {
	opts  DecryptOptions
	state decryptState
	res   Result

	out          *bgcode.Writer
	metadataHash hash.Hash
	keySetHash   hash.Hash
	identity     *Identity

	keys      SessionKeys
	haveKeys  bool
	unwrapErr error
}

// Decrypt reads an encrypted container from r and writes the plain
// container to w. Every block is verified before it is trusted, and w
// receives nothing unless the terminal block was authenticated and
// nothing follows it.
func Decrypt(ctx context.Context, r io.Reader, w io.Writer, opts DecryptOptions) (*Result, error) {
	sc := bgcode.NewScanner(r, bgcode.ScannerOpts{MaxBlockSize: opts.MaxBlockSize})
	if err := sc.Err(); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	d := &decrypter{
		opts:         opts,
		out:          bgcode.NewWriter(&out, sc.Header()),
		metadataHash: sha256.New(),
		keySetHash:   sha256.New(),
	}
	d.metadataHash.Write(sc.Header().Bytes()) // nolint: errcheck
	d.state = stateReadingMetadata

	for d.state != stateTerminal && sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, errors.E("decrypt", err)
		}
		if err := d.next(sc.Block()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if d.state != stateTerminal {
		return nil, bgcode.NewError(bgcode.TruncatedFile, -1, sc.Offset(),
			fmt.Sprintf("end of input while %v, before the terminal block", d.state), nil)
	}
	eof, err := sc.AtEOF()
	if err != nil {
		return nil, err
	}
	if !eof {
		return nil, bgcode.NewError(bgcode.TrailingData, -1, sc.Offset(), "", nil)
	}
	if err := d.out.Err(); err != nil {
		return nil, err
	}
	log.Debug.Printf("decrypt: %d metadata, %d key, %d payload blocks", d.res.MetadataBlocks, d.res.KeyBlocks, d.res.PayloadBlocks)
	if _, err := w.Write(out.Bytes()); err != nil {
		return nil, err
	}
	return &d.res, nil
}

// next advances the state machine by one block.
func (d *decrypter) next(blk bgcode.Block) error {
	pos := at(blk)
	typ := blk.Header.Type
	switch {
	case typ.IsMetadata():
		if d.state != stateReadingMetadata {
			return pos.fail(bgcode.Framing, fmt.Sprintf("%v block while %v", typ, d.state), nil)
		}
		d.metadataHash.Write(blk.Raw) // nolint: errcheck
		d.out.WriteRaw(blk.Raw)
		d.res.MetadataBlocks++
	case typ == bgcode.IdentityBlock:
		if d.state != stateReadingMetadata {
			return pos.fail(bgcode.Framing, fmt.Sprintf("identity block while %v", d.state), nil)
		}
		return d.verifyIdentity(pos, blk)
	case typ == bgcode.KeyBlock:
		if d.state != stateIdentityVerified && d.state != stateKeysAccumulated {
			return pos.fail(bgcode.Framing, fmt.Sprintf("key block while %v", d.state), nil)
		}
		return d.addKeyBlock(blk)
	case typ == bgcode.EncryptedBlock:
		switch d.state {
		case stateKeysAccumulated:
			if err := d.startPayload(pos); err != nil {
				return err
			}
		case stateStreamingPayload:
		default:
			return pos.fail(bgcode.Framing, fmt.Sprintf("encrypted block while %v", d.state), nil)
		}
		return d.decryptBlock(pos, blk)
	case typ == bgcode.GCode:
		if d.state == stateReadingMetadata {
			return pos.fail(bgcode.Framing, "container is not encrypted", nil)
		}
		return pos.fail(bgcode.Framing, fmt.Sprintf("plain g-code block while %v", d.state), nil)
	default:
		return pos.fail(bgcode.UnsupportedBlockType, typ.String(), nil)
	}
	return nil
}

func (d *decrypter) verifyIdentity(pos position, blk bgcode.Block) error {
	id, err := parseIdentity(pos, blk.Header, blk.Raw[blk.Header.Size():blk.Header.Size()+int(blk.Header.PayloadSize())])
	if err != nil {
		return err
	}
	var mh [HashSize]byte
	copy(mh[:], d.metadataHash.Sum(nil))
	if err := id.verify(pos, mh); err != nil {
		return err
	}
	if err := checkTrust(pos, id, d.opts); err != nil {
		return err
	}
	d.identity = id
	d.res.IdentityName = id.Name
	d.res.SignerKey = id.PublicKey
	d.res.SignerKeyHash = id.KeyHash()
	d.res.OneTime = id.OneTime()
	_, d.res.Trusted = d.opts.TrustStore.Lookup(d.res.SignerKeyHash)
	log.Printf("identity %q (key %x, one-time %v, trusted %v)", id.Name, d.res.SignerKeyHash[:8], d.res.OneTime, d.res.Trusted)
	d.state = stateIdentityVerified
	return nil
}

// addKeyBlock accumulates the key-set hash and, until a key block opens,
// tries this recipient's key. Decryption and binding failures belong
// to other recipients' blocks and are remembered, not returned.
func (d *decrypter) addKeyBlock(blk bgcode.Block) error {
	d.keySetHash.Write(blk.Raw) // nolint: errcheck
	index := d.res.KeyBlocks
	d.res.KeyBlocks++
	d.state = stateKeysAccumulated
	if d.haveKeys {
		return nil
	}
	keys, err := openKeyBlock(blk, d.identity.PublicKey, d.opts.RecipientKey)
	switch code := bgcode.CodeOf(err); {
	case err == nil:
		d.keys, d.haveKeys = keys, true
		d.res.RecipientIndex = index
		log.Debug.Printf("decrypt: opened key block %d", index)
	case code == bgcode.KeyBinding:
		d.unwrapErr = err
	case code == bgcode.KeyUnwrap:
		if bgcode.CodeOf(d.unwrapErr) != bgcode.KeyBinding {
			d.unwrapErr = err
		}
	default:
		return err
	}
	return nil
}

// startPayload checks the key-set hash and that this recipient has keys.
func (d *decrypter) startPayload(pos position) error {
	var ksh [HashSize]byte
	copy(ksh[:], d.keySetHash.Sum(nil))
	if ksh != d.identity.KeySetHash {
		return pos.fail(bgcode.HashMismatch, "key set hash", nil)
	}
	if !d.haveKeys {
		return d.unwrapErr
	}
	d.state = stateStreamingPayload
	return nil
}

func (d *decrypter) decryptBlock(pos position, blk bgcode.Block) error {
	params := blk.Params()
	if algo := BlockEncryption(binary.LittleEndian.Uint16(params)); algo != AES128CBCSHA256HMAC {
		return pos.fail(bgcode.UnsupportedAlgorithm, fmt.Sprintf("block encryption %v", algo), nil)
	}
	last := params[2]
	if last > 1 {
		return pos.fail(bgcode.Framing, fmt.Sprintf("bad last-block flag %d", last), nil)
	}
	plain, err := decryptBlock(pos, blk.HeaderBytes(), DeriveIV(blk.Offset), params, blk.Data(), d.res.KeyBlocks, d.res.RecipientIndex, d.keys)
	if err != nil {
		return err
	}
	h, err := bgcode.ReadBlockHeader(bytes.NewReader(plain))
	if err != nil {
		return pos.fail(bgcode.Framing, "decrypted block header", err)
	}
	if h.Type != bgcode.GCode {
		return pos.fail(bgcode.Framing, fmt.Sprintf("decrypted %v block, want GCode", h.Type), nil)
	}
	if int64(len(plain)) != int64(h.Size())+h.PayloadSize() {
		return pos.fail(bgcode.Framing, fmt.Sprintf("decrypted block is %d bytes, its header says %d", len(plain), int64(h.Size())+h.PayloadSize()), nil)
	}
	body := plain[h.Size():]
	ps := h.Type.ParamsSize()
	d.out.WriteBlock(h, body[:ps], body[ps:])
	d.res.PayloadBlocks++
	if last == 1 {
		d.state = stateTerminal
	}
	return nil
}

// DecryptFile decrypts the container at in into out. The output file
// appears only if decryption and every verification succeed.
func DecryptFile(ctx context.Context, in, out string, opts DecryptOptions) (_ *Result, err error) {
	inf, err := file.Open(ctx, in)
	if err != nil {
		return nil, err
	}
	defer errors.CleanUpCtx(ctx, inf.Close, &err)
	outf, err := file.Create(ctx, out)
	if err != nil {
		return nil, err
	}
	res, err := Decrypt(ctx, inf.Reader(ctx), outf.Writer(ctx), opts)
	if err != nil {
		outf.Discard(ctx) // nolint: errcheck
		return nil, err
	}
	return res, outf.Close(ctx)
}

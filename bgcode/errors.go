// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bgcode

import (
	"bytes"
	goerrors "errors"
	"fmt"

	"github.com/grailbio/bgcode/errors"
)

// Code classifies a codec failure. Every code is fatal to the
// operation that produced it.
type Code int

const (
	// Framing indicates a malformed file or block header, an
	// out-of-order block, or a block that exceeds the size limit.
	Framing Code = iota + 1
	// UnsupportedBlockType indicates a block type outside the known
	// set. It is a framing error.
	UnsupportedBlockType
	// Checksum indicates a CRC32 mismatch.
	Checksum
	// TruncatedFile indicates EOF inside a block or before the
	// terminal block.
	TruncatedFile
	// Signature indicates an invalid identity or key block signature.
	Signature
	// HashMismatch indicates that the metadata hash or key-set hash
	// does not match the identity block.
	HashMismatch
	// KeyUnwrap indicates that a key block could not be decrypted.
	KeyUnwrap
	// KeyBinding indicates that a key block decrypted but names a
	// different signer or recipient.
	KeyBinding
	// Authentication indicates an HMAC tag mismatch.
	Authentication
	// UnsupportedAlgorithm indicates an unknown signature, key
	// encryption or block encryption identifier.
	UnsupportedAlgorithm
	// TrailingData indicates bytes after the terminal block.
	TrailingData
	// UntrustedIdentity indicates that the signer is not the expected
	// one or is absent from the trust store.
	UntrustedIdentity
)

var codes = map[Code]string{
	Framing:              "framing error",
	UnsupportedBlockType: "unsupported block type",
	Checksum:             "checksum mismatch",
	TruncatedFile:        "truncated file",
	Signature:            "invalid signature",
	HashMismatch:         "hash mismatch",
	KeyUnwrap:            "key unwrap failed",
	KeyBinding:           "key binding mismatch",
	Authentication:       "authentication failed",
	UnsupportedAlgorithm: "unsupported algorithm",
	TrailingData:         "trailing data after terminal block",
	UntrustedIdentity:    "untrusted identity",
}

// String returns a short description of c.
func (c Code) String() string {
	if s, ok := codes[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Kind maps c to the error kind reported by errors.E.
func (c Code) Kind() errors.Kind {
	switch c {
	case UnsupportedAlgorithm:
		return errors.NotSupported
	case UntrustedIdentity:
		return errors.NotAllowed
	default:
		return errors.Integrity
	}
}

// Error is the codec's error type. Block and Offset locate the failure
// in the input; Block is -1 when the failure is not tied to a block.
type Error struct {
	Code    Code
	Block   int
	Offset  int64
	Message string
	Err     error
}

// Sentinels for use with the standard library's errors.Is. A match
// compares codes only.
var (
	ErrFraming              = sentinel(Framing)
	ErrUnsupportedBlockType = sentinel(UnsupportedBlockType)
	ErrChecksum             = sentinel(Checksum)
	ErrTruncatedFile        = sentinel(TruncatedFile)
	ErrSignature            = sentinel(Signature)
	ErrHashMismatch         = sentinel(HashMismatch)
	ErrKeyUnwrap            = sentinel(KeyUnwrap)
	ErrKeyBinding           = sentinel(KeyBinding)
	ErrAuthentication       = sentinel(Authentication)
	ErrUnsupportedAlgorithm = sentinel(UnsupportedAlgorithm)
	ErrTrailingData         = sentinel(TrailingData)
	ErrUntrustedIdentity    = sentinel(UntrustedIdentity)
)

func sentinel(code Code) *Error {
	return &Error{Code: code, Block: -1, Offset: -1}
}

// NewError returns an *Error wrapped by errors.E, which assigns the
// code's kind and fatal severity. Pass block -1 or offset -1 when the
// position is unknown.
func NewError(code Code, block int, offset int64, msg string, cause error) error {
	return errors.E(errors.Fatal, &Error{
		Code:    code,
		Block:   block,
		Offset:  offset,
		Message: msg,
		Err:     cause,
	})
}

func (e *Error) Error() string {
	var b bytes.Buffer
	b.WriteString(e.Code.String())
	switch {
	case e.Block >= 0 && e.Offset >= 0:
		fmt.Fprintf(&b, " (block %d, offset %d)", e.Block, e.Offset)
	case e.Offset >= 0:
		fmt.Fprintf(&b, " (offset %d)", e.Offset)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// ErrorKind implements errors.Kinder.
func (e *Error) ErrorKind() errors.Kind { return e.Code.Kind() }

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code. An
// UnsupportedBlockType error also matches ErrFraming.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code || (t.Code == Framing && e.Code == UnsupportedBlockType)
}

// CodeOf returns the code of the first *Error in err's chain, or 0.
func CodeOf(err error) Code {
	var e *Error
	if goerrors.As(err, &e) {
		return e.Code
	}
	return 0
}

// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package e2ee

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"

	"github.com/grailbio/bgcode/errors"
)

// ParsePublicKey parses a DER SubjectPublicKeyInfo RSA public key.
func ParsePublicKey(der []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.E(errors.Invalid, "parse public key", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("public key of type %T is not RSA", key))
	}
	return pub, nil
}

// MarshalPublicKey returns the DER SubjectPublicKeyInfo encoding of pub.
func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, errors.E(errors.Invalid, "marshal public key", err)
	}
	return der, nil
}

// ParsePrivateKey parses a DER RSA private key in PKCS#1 or PKCS#8 form.
func ParsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, errors.E(errors.Invalid, "parse private key", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("private key of type %T is not RSA", key))
	}
	return priv, nil
}

// MarshalPrivateKey returns the PKCS#1 DER encoding of priv.
func MarshalPrivateKey(priv *rsa.PrivateKey) []byte {
	return x509.MarshalPKCS1PrivateKey(priv)
}

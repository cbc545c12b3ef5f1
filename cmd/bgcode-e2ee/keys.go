// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/rsa"
	"strings"

	"github.com/grailbio/bgcode/e2ee"
	"github.com/grailbio/bgcode/errors"
	"github.com/grailbio/bgcode/file"
)

// pathList is a repeatable flag.
type pathList []string

func (l *pathList) String() string { return strings.Join(*l, ",") }

func (l *pathList) Set(s string) error {
	*l = append(*l, s)
	return nil
}

func readPublicKey(ctx context.Context, path string) (*rsa.PublicKey, error) {
	der, err := file.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	pub, err := e2ee.ParsePublicKey(der)
	if err != nil {
		return nil, errors.E(path, err)
	}
	return pub, nil
}

func readPrivateKey(ctx context.Context, path string) (*rsa.PrivateKey, error) {
	der, err := file.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	priv, err := e2ee.ParsePrivateKey(der)
	if err != nil {
		return nil, errors.E(path, err)
	}
	return priv, nil
}

// checkInOut validates the -in and -out flags.
func checkInOut(in, out string) error {
	if in == "" || out == "" {
		return errors.E(errors.Invalid, "-in and -out are required")
	}
	if in == out {
		return errors.E(errors.Invalid, "-in and -out must differ")
	}
	return nil
}

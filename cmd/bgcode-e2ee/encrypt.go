// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"

	"github.com/grailbio/bgcode/cmdutil"
	"github.com/grailbio/bgcode/e2ee"
	"github.com/grailbio/bgcode/errors"
	"v.io/x/lib/cmdline"
)

var (
	encInFlag        string
	encOutFlag       string
	encSignerFlag    string
	encRecipientFlag pathList
	encIdentityFlag  string
	encOneTimeFlag   bool
	encPlainKeysFlag bool
)

func newCmdEncrypt() *cmdline.Command {
	cmd := &cmdline.Command{
		Runner: cmdutil.RunnerFunc(runEncrypt),
		Name:   "encrypt",
		Short:  "Encrypt a binary g-code file",
		Long: `
Encrypt copies the metadata blocks of a plain container and encrypts
every g-code block. The output is signed with -signer-key and readable
by each -recipient-key.
`,
	}
	cmd.Flags.StringVar(&encInFlag, "in", "", "Plain input file.")
	cmd.Flags.StringVar(&encOutFlag, "out", "", "Encrypted output file.")
	cmd.Flags.StringVar(&encSignerFlag, "signer-key", "", "DER private key of the signer.")
	cmd.Flags.Var(&encRecipientFlag, "recipient-key", "DER public key of a recipient. May be repeated.")
	cmd.Flags.StringVar(&encIdentityFlag, "identity", "", "Identity name of the signer, at most 31 bytes.")
	cmd.Flags.BoolVar(&encOneTimeFlag, "one-time", false, "Mark the identity as one-time.")
	cmd.Flags.BoolVar(&encPlainKeysFlag, "plain-keys", false, "Store the session keys unencrypted. The output can be read by anyone.")
	return cmd
}

func runEncrypt(ctx context.Context, env *cmdline.Env, args []string) error {
	if len(args) != 0 {
		return env.UsageErrorf("encrypt takes no arguments")
	}
	if err := checkInOut(encInFlag, encOutFlag); err != nil {
		return err
	}
	if encSignerFlag == "" {
		return errors.E(errors.Invalid, "-signer-key is required")
	}
	opts := e2ee.EncryptOptions{
		IdentityName: encIdentityFlag,
		OneTime:      encOneTimeFlag,
		PlainKeys:    encPlainKeysFlag,
	}
	var err error
	if opts.Signer, err = readPrivateKey(ctx, encSignerFlag); err != nil {
		return err
	}
	for _, path := range encRecipientFlag {
		pub, err := readPublicKey(ctx, path)
		if err != nil {
			return err
		}
		opts.Recipients = append(opts.Recipients, pub)
	}
	return e2ee.EncryptFile(ctx, encInFlag, encOutFlag, opts)
}

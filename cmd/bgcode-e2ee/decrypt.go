// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"

	"github.com/grailbio/bgcode/cmdutil"
	"github.com/grailbio/bgcode/e2ee"
	"github.com/grailbio/bgcode/log"
	"v.io/x/lib/cmdline"
)

var (
	decInFlag         string
	decOutFlag        string
	decRecipientFlag  string
	decSignerPubFlag  string
	decTrustStoreFlag string
	decKnownOnlyFlag  bool
	decRememberFlag   bool
)

func newCmdDecrypt() *cmdline.Command {
	cmd := &cmdline.Command{
		Runner: cmdutil.RunnerFunc(runDecrypt),
		Name:   "decrypt",
		Short:  "Verify and decrypt an encrypted binary g-code file",
		Long: `
Decrypt verifies the signer's identity, unwraps the session keys with
-recipient-key, and authenticates every block before decrypting it.
The output file is written only if the whole container verifies.
`,
	}
	cmd.Flags.StringVar(&decInFlag, "in", "", "Encrypted input file.")
	cmd.Flags.StringVar(&decOutFlag, "out", "", "Plain output file.")
	cmd.Flags.StringVar(&decRecipientFlag, "recipient-key", "", "DER private key of the recipient.")
	cmd.Flags.StringVar(&decSignerPubFlag, "signer-pub", "", "If set, DER public key the signer must match.")
	cmd.Flags.StringVar(&decTrustStoreFlag, "trust-store", "", "YAML file of trusted identities.")
	cmd.Flags.BoolVar(&decKnownOnlyFlag, "known-only", false, "Accept only signers listed in -trust-store.")
	cmd.Flags.BoolVar(&decRememberFlag, "remember", false, "Add the signer to -trust-store after a successful decryption, unless its identity is one-time.")
	return cmd
}

func runDecrypt(ctx context.Context, env *cmdline.Env, args []string) error {
	if len(args) != 0 {
		return env.UsageErrorf("decrypt takes no arguments")
	}
	if err := checkInOut(decInFlag, decOutFlag); err != nil {
		return err
	}
	if (decKnownOnlyFlag || decRememberFlag) && decTrustStoreFlag == "" {
		return env.UsageErrorf("-known-only and -remember need -trust-store")
	}
	var opts e2ee.DecryptOptions
	var err error
	if decRecipientFlag != "" {
		if opts.RecipientKey, err = readPrivateKey(ctx, decRecipientFlag); err != nil {
			return err
		}
	}
	if decSignerPubFlag != "" {
		if opts.SignerKey, err = readPublicKey(ctx, decSignerPubFlag); err != nil {
			return err
		}
	}
	if decTrustStoreFlag != "" {
		if opts.TrustStore, err = e2ee.LoadTrustStore(ctx, decTrustStoreFlag); err != nil {
			return err
		}
	}
	if decKnownOnlyFlag {
		opts.CheckLevel = e2ee.KnownOnly
	}
	res, err := e2ee.DecryptFile(ctx, decInFlag, decOutFlag, opts)
	if err != nil {
		return err
	}
	trust := "untrusted"
	if res.Trusted {
		trust = "trusted"
	}
	if err := cmdutil.WriteWrapped(env.Stdout, cmdutil.TerminalWidth(), "  ",
		"Decrypted %d g-code blocks signed by %q (%s, key %x).\n",
		res.PayloadBlocks, res.IdentityName, trust, res.SignerKeyHash[:8]); err != nil {
		return err
	}
	if !decRememberFlag || res.Trusted {
		return nil
	}
	if res.OneTime {
		log.Printf("not remembering one-time identity %q", res.IdentityName)
		return nil
	}
	if err := opts.TrustStore.Add(res.IdentityName, res.SignerKey); err != nil {
		return err
	}
	return opts.TrustStore.Save(ctx, decTrustStoreFlag)
}

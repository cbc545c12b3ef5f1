// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/go-test/deep"
	"github.com/grailbio/bgcode/cmdutil"
	"github.com/grailbio/bgcode/e2ee"
	"v.io/x/lib/cmdline"
)

var (
	trustStoreFlag string
	trustNameFlag  string
	dryRunFlag     bool
)

func newCmdTrust() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "trust",
		Short: "Manage the store of trusted signer identities",
		Children: []*cmdline.Command{
			newCmdTrustList(),
			newCmdTrustAdd(),
		},
	}
	return cmd
}

func newCmdTrustList() *cmdline.Command {
	cmd := &cmdline.Command{
		Runner: cmdutil.RunnerFunc(runTrustList),
		Name:   "list",
		Short:  "List the trusted identities",
	}
	cmd.Flags.StringVar(&trustStoreFlag, "trust-store", "", "YAML file of trusted identities.")
	return cmd
}

func newCmdTrustAdd() *cmdline.Command {
	cmd := &cmdline.Command{
		Runner:   cmdutil.RunnerFunc(runTrustAdd),
		Name:     "add",
		Short:    "Trust a signer's public key",
		ArgsName: "<public key>",
	}
	cmd.Flags.StringVar(&trustStoreFlag, "trust-store", "", "YAML file of trusted identities.")
	cmd.Flags.StringVar(&trustNameFlag, "name", "", "Name the identity is known by.")
	cmd.Flags.BoolVar(&dryRunFlag, "dry-run", false, "Print the changes without saving them.")
	return cmd
}

func runTrustList(ctx context.Context, env *cmdline.Env, args []string) error {
	if trustStoreFlag == "" {
		return env.UsageErrorf("-trust-store is required")
	}
	store, err := e2ee.LoadTrustStore(ctx, trustStoreFlag)
	if err != nil {
		return err
	}
	for _, id := range store.Identities {
		fmt.Fprintf(env.Stdout, "%s\t%s\n", id.KeyHash, id.Name)
	}
	return nil
}

func runTrustAdd(ctx context.Context, env *cmdline.Env, args []string) error {
	if len(args) != 1 {
		return env.UsageErrorf("bad number of arguments, expected 1, got %q", args)
	}
	if trustStoreFlag == "" || trustNameFlag == "" {
		return env.UsageErrorf("-trust-store and -name are required")
	}
	pub, err := readPublicKey(ctx, args[0])
	if err != nil {
		return err
	}
	orig, err := e2ee.LoadTrustStore(ctx, trustStoreFlag)
	if err != nil {
		return err
	}
	store := &e2ee.TrustStore{Identities: append([]e2ee.TrustedIdentity(nil), orig.Identities...)}
	if err := store.Add(trustNameFlag, pub); err != nil {
		return err
	}
	diff := deep.Equal(orig, store)
	if len(diff) == 0 {
		fmt.Fprintln(env.Stdout, "No diffs")
		return nil
	}
	fmt.Fprintf(env.Stdout, "Found %d diffs:\n\n", len(diff))
	for _, l := range diff {
		fmt.Fprintf(env.Stdout, "\t%s\n", l)
	}
	if dryRunFlag {
		return nil
	}
	return store.Save(ctx, trustStoreFlag)
}

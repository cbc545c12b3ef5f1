// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	"github.com/grailbio/bgcode/cmdutil"
	"github.com/grailbio/bgcode/e2ee"
	"github.com/grailbio/bgcode/errors"
	"github.com/grailbio/bgcode/file"
	"v.io/x/lib/cmdline"
)

func newCmdInspect() *cmdline.Command {
	return &cmdline.Command{
		Runner:   cmdutil.RunnerFunc(runInspect),
		Name:     "inspect",
		Short:    "List the blocks of a binary g-code file",
		ArgsName: "<file>",
		Long: `
Inspect prints one line per block: index, offset, type, size, and for
encrypted containers the algorithms, the signer and each block's IV.
Checksums are verified; signatures and tags are not.
`,
	}
}

func runInspect(ctx context.Context, env *cmdline.Env, args []string) (err error) {
	if len(args) != 1 {
		return env.UsageErrorf("inspect takes one file, got %q", args)
	}
	f, err := file.Open(ctx, args[0])
	if err != nil {
		return err
	}
	defer errors.CleanUpCtx(ctx, f.Close, &err)
	header, infos, err := e2ee.Inspect(f.Reader(ctx))
	if header.Version != 0 {
		fmt.Fprintf(env.Stdout, "%s version %d, checksum %v\n", header.Magic[:], header.Version, header.Checksum)
	}
	for _, info := range infos {
		fmt.Fprintln(env.Stdout, info)
	}
	return err
}

// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmdutil_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/grailbio/bgcode/cmdutil"
	"github.com/grailbio/testutil/expect"
	"v.io/x/lib/cmdline"
)

func TestRunnerFunc(t *testing.T) {
	var stdout, stderr bytes.Buffer
	env := &cmdline.Env{Stdout: &stdout, Stderr: &stderr}
	var gotArgs []string
	r := cmdutil.RunnerFunc(func(ctx context.Context, env *cmdline.Env, args []string) error {
		expect.NoError(t, ctx.Err())
		gotArgs = args
		return nil
	})
	expect.NoError(t, r.Run(env, []string{"in.bgcode"}))
	expect.EQ(t, gotArgs, []string{"in.bgcode"})
}

func TestVersionCommand(t *testing.T) {
	var stdout bytes.Buffer
	env := &cmdline.Env{Stdout: &stdout}
	cmd := cmdutil.CreateVersionCommand("version", "bgcode-e2ee")
	expect.NoError(t, cmd.Runner.Run(env, nil))
	expect.HasSubstr(t, stdout.String(), "bgcode-e2ee/(missing) (os=")
}

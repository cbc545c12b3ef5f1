// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package cmdutil provides utility routines for implementing the bgcode
// command line tools.
package cmdutil

import (
	"context"
	"os"
	"os/signal"

	"github.com/grailbio/bgcode/log"
	"v.io/x/lib/cmdline"
)

// RunnerFunc is an adapter that turns regular functions into cmdline.Runners.
// The function receives a context that is canceled on interrupt, so that
// an operation in flight discards its output instead of committing it.
type RunnerFunc func(context.Context, *cmdline.Env, []string) error

// Run implements the cmdline.Runner interface method by calling
// f(ctx, env, args). Log output is directed to env.Stderr for the
// duration of the call.
func (f RunnerFunc) Run(env *cmdline.Env, args []string) error {
	if env.Stderr != nil {
		log.SetOutput(env.Stderr)
		defer log.SetOutput(os.Stderr)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
			log.Error.Print("interrupted")
			cancel()
		case <-ctx.Done():
		}
	}()
	return f(ctx, env, args)
}

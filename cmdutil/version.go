// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmdutil

import (
	"context"
	"fmt"
	"runtime"

	"v.io/x/lib/cmdline"
)

var (
	version = "(missing)"
	tags    = ""
)

func init() {
	s := fmt.Sprintf("os=%s; arch=%s; %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
	if tags == "" {
		tags = s
		return
	}
	tags = tags + "; " + s
}

// CreateVersionCommand creates a cmdline subcommand that prints
//
//	<prefix>/<version> (<tag1>; <tag2>; ...)
//
// The version and tags are set at build time with
//
//	go build -ldflags \
//	 "-X github.com/grailbio/bgcode/cmdutil.version=$version \
//	  -X github.com/grailbio/bgcode/cmdutil.tags=$tags"
func CreateVersionCommand(name, prefix string) *cmdline.Command {
	return &cmdline.Command{
		Runner: RunnerFunc(func(_ context.Context, env *cmdline.Env, _ []string) error {
			_, err := fmt.Fprintf(env.Stdout, "%s/%v (%v)\n", prefix, version, tags)
			return err
		}),
		Name:  name,
		Short: "Display version information",
	}
}

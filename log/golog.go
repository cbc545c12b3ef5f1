// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package log

import (
	"flag"
	"io"
	golog "log"
	"sync/atomic"
)

var (
	golevel = Info
	added   int32
)

// AddFlags registers -log on flag.CommandLine. Calling it more than
// once is a no-op.
func AddFlags() {
	AddFlagsTo(flag.CommandLine)
}

// AddFlagsTo registers -log on fs.
func AddFlagsTo(fs *flag.FlagSet) {
	if fs == flag.CommandLine && !atomic.CompareAndSwapInt32(&added, 0, 1) {
		return
	}
	fs.Var(new(levelFlag), "log", "set log level (off, error, info, debug)")
}

// SetFlags sets the output flags for the Go standard logger.
func SetFlags(flag int) {
	golog.SetFlags(flag)
}

// SetOutput sets the output destination for the Go standard logger.
func SetOutput(w io.Writer) {
	golog.SetOutput(w)
}

// SetPrefix sets the output prefix for the Go standard logger.
func SetPrefix(prefix string) {
	golog.SetPrefix(prefix)
}

// SetLevel sets the level of the default outputter.
func SetLevel(level Level) {
	golevel = level
}

type levelFlag struct{}

func (levelFlag) String() string { return golevel.String() }

func (*levelFlag) Set(s string) error {
	l, err := ParseLevel(s)
	if err != nil {
		return err
	}
	golevel = l
	return nil
}

// Get implements flag.Getter.
func (levelFlag) Get() interface{} { return golevel }

type gologOutputter struct{}

func (gologOutputter) Level() Level { return golevel }

func (gologOutputter) Output(calldepth int, level Level, s string) error {
	if golevel < level {
		return nil
	}
	return golog.Output(calldepth+1, s)
}

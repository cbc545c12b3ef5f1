// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package log_test

import (
	"flag"
	"os"
	"testing"

	"github.com/grailbio/bgcode/log"
)

type testOutputter struct {
	level    log.Level
	messages map[log.Level][]string
}

func newTestOutputter(level log.Level) *testOutputter {
	return &testOutputter{level, make(map[log.Level][]string)}
}

func (t *testOutputter) Next(level log.Level) string {
	if len(t.messages[level]) == 0 {
		return ""
	}
	var m string
	m, t.messages[level] = t.messages[level][0], t.messages[level][1:]
	return m
}

func (t *testOutputter) Level() log.Level {
	return t.level
}

func (t *testOutputter) Output(calldepth int, level log.Level, s string) error {
	t.messages[level] = append(t.messages[level], s)
	return nil
}

func TestLog(t *testing.T) {
	out := newTestOutputter(log.Info)
	defer log.SetOutputter(log.SetOutputter(out))
	log.Printf("block %d: %s", 3, "GCode")
	if got, want := out.Next(log.Info), "block 3: GCode"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	log.Error.Print(1, 2, 3)
	if got, want := out.Next(log.Error), "1 2 3"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	log.Debug.Print("x")
	if got, want := out.Next(log.Debug), ""; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseLevel(t *testing.T) {
	for _, l := range []log.Level{log.Off, log.Error, log.Info, log.Debug} {
		got, err := log.ParseLevel(l.String())
		if err != nil {
			t.Fatal(err)
		}
		if got != l {
			t.Errorf("got %v, want %v", got, l)
		}
	}
	if _, err := log.ParseLevel("verbose"); err == nil {
		t.Error("expected error")
	}
}

func TestFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	log.AddFlagsTo(fs)
	defer log.SetLevel(log.Info)
	if err := fs.Parse([]string{"-log=debug"}); err != nil {
		t.Fatal(err)
	}
	if !log.At(log.Debug) {
		t.Error("expected debug logging")
	}
}

func ExampleLevel() {
	log.SetOutput(os.Stdout)
	log.SetFlags(0)
	log.Print("encrypted 2 blocks")
	log.Error.Print("tag mismatch")
	log.Debug.Print("invisible")

	// Output:
	// encrypted 2 blocks
	// tag mismatch
}

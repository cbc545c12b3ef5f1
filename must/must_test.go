// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package must_test

import (
	"errors"
	"fmt"
	"runtime"
	"testing"

	"github.com/grailbio/bgcode/must"
)

// TestDepth verifies that the depth passed to Func locates the caller
// of the must function.
func TestDepth(t *testing.T) {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("could not determine current file")
	}
	old := must.Func
	defer func() { must.Func = old }()
	must.Func = func(depth int, v ...interface{}) {
		_, file, _, ok := runtime.Caller(depth)
		if !ok {
			t.Fatal("could not determine caller of Func")
		}
		if file != thisFile {
			t.Errorf("caller at depth %d is '%s'; should be '%s'", depth, file, thisFile)
		}
	}
	must.True(false)
	must.Truef(false, "")
	must.Nil(struct{}{})
	must.Nilf(struct{}{}, "")
}

func TestPanics(t *testing.T) {
	defer func() {
		if r := recover(); r != "writing header: short write" {
			t.Errorf("unexpected panic value %v", r)
		}
	}()
	must.Nil(errors.New("short write"), "writing header")
	t.Error("must.Nil did not panic")
}

func Example() {
	old := must.Func
	defer func() { must.Func = old }()
	must.Func = func(depth int, v ...interface{}) {
		fmt.Print(v...)
		fmt.Print("\n")
	}

	must.Nil(nil)
	must.Nil(errors.New("short write"), "writing header")
	must.True(false)
	must.Truef(false, "block %d", 3)

	// Output:
	// writing header: short write
	// must: assertion failed
	// block 3
}

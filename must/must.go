// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package must expresses fatal assertions. The codec packages use it
// only for conditions that no input can trigger, such as a write to
// an in-memory buffer failing; everything an input can cause is
// returned as an error instead.
package must

import (
	"fmt"

	"github.com/grailbio/bgcode/log"
)

// Func reports a failed assertion and interrupts execution. It is
// passed the call depth of the caller of the must function.
//
// The default logs at the Error level and panics.
var Func = func(depth int, v ...interface{}) {
	s := fmt.Sprint(v...)
	_ = log.Output(depth+1, log.Error, s)
	panic(s)
}

// Nil asserts that v, typically an error, is nil. Otherwise the
// message formed from args is prefixed to v and passed to Func.
func Nil(v interface{}, args ...interface{}) {
	if v == nil {
		return
	}
	if len(args) == 0 {
		Func(2, v)
		return
	}
	Func(2, fmt.Sprint(args...), ": ", v)
}

// Nilf is Nil with a format string.
func Nilf(v interface{}, format string, args ...interface{}) {
	if v == nil {
		return
	}
	Func(2, fmt.Sprintf(format, args...), ": ", v)
}

// True asserts that b holds.
func True(b bool, v ...interface{}) {
	if b {
		return
	}
	if len(v) == 0 {
		Func(2, "must: assertion failed")
		return
	}
	Func(2, v...)
}

// Truef is True with a format string.
func Truef(b bool, format string, v ...interface{}) {
	if b {
		return
	}
	Func(2, fmt.Sprintf(format, v...))
}

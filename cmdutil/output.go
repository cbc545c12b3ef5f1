// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmdutil

import (
	"fmt"
	"io"

	"v.io/x/lib/textutil"
)

// defaultWidth is the wrap width when there is no terminal.
const defaultWidth = 100

// TerminalWidth returns the width of the controlling terminal in
// columns, or a default width when there is none.
func TerminalWidth() int {
	if _, cols, err := textutil.TerminalSize(); err == nil && cols > 0 {
		return cols
	}
	return defaultWidth
}

// WriteWrapped formats a message and writes it to w, word wrapped at
// width runes. Continuation lines of a paragraph start with indent.
func WriteWrapped(w io.Writer, width int, indent, format string, args ...interface{}) error {
	ww := textutil.NewUTF8WrapWriter(w, width)
	if err := ww.SetIndents("", indent); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(ww, format, args...); err != nil {
		return err
	}
	return ww.Flush()
}

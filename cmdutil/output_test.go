// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmdutil_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/bgcode/cmdutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestWriteWrapped(t *testing.T) {
	const msg = "Decrypted %d g-code blocks signed by %q (%s, key %x).\n"
	args := []interface{}{12, "slicer", "untrusted", []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}}
	var buf bytes.Buffer
	assert.NoError(t, cmdutil.WriteWrapped(&buf, 24, "  ", msg, args...))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	expect.True(t, len(lines) > 1, "%q not wrapped", buf.String())
	expect.False(t, strings.HasPrefix(lines[0], " "))
	for i, line := range lines {
		expect.True(t, len(line) <= 26, "line %d too long: %q", i, line)
		if i > 0 {
			expect.HasPrefix(t, line, "  ")
		}
	}
	want := strings.Fields(`Decrypted 12 g-code blocks signed by "slicer" (untrusted, key 0123456789abcdef).`)
	expect.EQ(t, strings.Fields(buf.String()), want)

	buf.Reset()
	assert.NoError(t, cmdutil.WriteWrapped(&buf, cmdutil.TerminalWidth(), "  ", msg, args...))
	expect.HasSubstr(t, buf.String(), `signed by "slicer" (untrusted`)
}

// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Command bgcode-e2ee encrypts, decrypts and inspects end-to-end
// encrypted binary g-code containers.
//
// Keys are DER files: PKIX public keys, and PKCS#1 or PKCS#8 private
// keys. Encrypt and decrypt write their output only on success.
package main

import (
	"regexp"

	"github.com/grailbio/bgcode/cmdutil"
	"github.com/grailbio/bgcode/log"
	"v.io/x/lib/cmdline"
)

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bgcode-e2ee",
		Short:    "End-to-end encryption of binary g-code",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdEncrypt(),
			newCmdDecrypt(),
			newCmdInspect(),
			newCmdTrust(),
			cmdutil.CreateVersionCommand("version", "bgcode-e2ee"),
		},
	}
}

func main() {
	log.AddFlags()
	cmdline.HideGlobalFlagsExcept(regexp.MustCompile(`^log$`))
	cmdline.Main(newCmdRoot())
}

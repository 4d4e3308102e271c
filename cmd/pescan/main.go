// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command pescan dumps and pattern-scans Portable Executable images,
// grounded on the teacher's cmd/main.go + cmd/dump.go banner/tabwriter
// dump style and cmd/pedumper.go's cobra command tree.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

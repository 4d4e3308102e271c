// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/binlens/pescan"
	"github.com/binlens/pescan/pattern"
)

var scanPattern string

var scanCmd = &cobra.Command{
	Use:   "scan <file>",
	Short: "Scan a PE image's code sections for a byte pattern",
	Long: "Scans every executable section of a Portable Executable file for matches of a " +
		"code-signature pattern (?? wildcards, X?/?X nibble masks, ' captures, *{...} absolute " +
		"pointer jumps, $ relative call/jmp follows, and [a|b] alternation).",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(args[0])
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanPattern, "pattern", "", "the pattern to scan for (required)")
	scanCmd.MarkFlagRequired("pattern")
}

func runScan(path string) error {
	pat, err := pattern.Parse(scanPattern)
	if err != nil {
		return fmt.Errorf("parsing pattern: %w", err)
	}

	pe, closer, err := openView(path)
	if err != nil {
		return err
	}
	defer closer()

	it := pescan.Scanner(pe).MatchesCode(pat)
	n := 0
	for it.Next() {
		m := it.Current()
		n++
		fmt.Printf("match at 0x%x", m.Start)
		for i, slot := range m.Slots {
			fmt.Printf(" slot[%d]=0x%x", i, slot)
		}
		fmt.Println()
	}
	if n == 0 {
		fmt.Println("no matches")
	}
	return nil
}

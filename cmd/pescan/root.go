// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/binlens/pescan/internal/xlog"
)

var (
	verbose bool
	mapped  bool
	log     xlog.Logger = xlog.Nop
)

var rootCmd = &cobra.Command{
	Use:   "pescan",
	Short: "A Portable Executable introspector",
	Long:  "A safe, zero-copy Portable Executable introspector built for malware-analysis tooling",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := xlog.New(verbose)
		if err != nil {
			return err
		}
		log = l
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("pescan version 0.1.0")
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&mapped, "mapped", "m", false,
		"treat the input as an in-memory layout (MappedView) instead of on-disk (FileView)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(scanCmd)
}

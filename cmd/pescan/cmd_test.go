// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenViewMissingFile(t *testing.T) {
	if _, _, err := openView(filepath.Join(t.TempDir(), "nope.exe")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestOpenViewTooSmallForHeaders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.exe")
	if err := os.WriteFile(path, []byte("MZ"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, _, err := openView(path); err == nil {
		t.Fatal("expected an error for an image too small to hold headers")
	}
}

func TestRunScanInvalidPattern(t *testing.T) {
	scanPattern = "G1"
	defer func() { scanPattern = "" }()
	if err := runScan(filepath.Join(t.TempDir(), "unused.exe")); err == nil {
		t.Fatal("expected a pattern-parse error before the file is ever opened")
	}
}

func TestRunDumpMissingFile(t *testing.T) {
	if err := runDump(filepath.Join(t.TempDir(), "nope.exe")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestHumanizeTimestamp(t *testing.T) {
	got := humanizeTimestamp(0)
	want := "1970-01-01 00:00:00 +0000 UTC"
	if got != want {
		t.Errorf("humanizeTimestamp(0) = %q, want %q", got, want)
	}
}

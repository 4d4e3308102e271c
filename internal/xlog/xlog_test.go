// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package xlog

import "testing"

func TestNopSwallowsEverything(t *testing.T) {
	// Must not panic regardless of verb/arg mismatch; nop never formats.
	Nop.Debugf("debug %d", 1)
	Nop.Warnf("warn %s", "x")
	Nop.Errorf("no args at all")
}

func TestNewQuiet(t *testing.T) {
	l, err := New(false)
	if err != nil {
		t.Fatalf("New(false) failed: %v", err)
	}
	if l == nil {
		t.Fatal("New(false) returned a nil Logger")
	}
	l.Warnf("should not panic: %d", 42)
}

func TestNewVerbose(t *testing.T) {
	l, err := New(true)
	if err != nil {
		t.Fatalf("New(true) failed: %v", err)
	}
	if l == nil {
		t.Fatal("New(true) returned a nil Logger")
	}
	l.Debugf("should not panic: %s", "debug line")
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import (
	"encoding/binary"
	"testing"
)

func TestValidateHeadersMinimalImage(t *testing.T) {
	b := newBuilder()
	b.addSection(".text", make([]byte, 0x100), ImageScnCntCode|ImageScnMemExecute|ImageScnMemRead)
	image := b.build()

	h, err := ValidateHeaders(image)
	if err != nil {
		t.Fatalf("ValidateHeaders failed: %v", err)
	}
	if !h.Is64 {
		t.Fatalf("expected Is64, got 32-bit")
	}
	if h.NumSections != 1 {
		t.Fatalf("NumSections = %d, want 1", h.NumSections)
	}
	if h.ImageBase() != Va(b.imageBase) {
		t.Errorf("ImageBase() = %#x, want %#x", h.ImageBase(), b.imageBase)
	}
	secs, err := h.sectionHeaders(image)
	if err != nil {
		t.Fatalf("sectionHeaders failed: %v", err)
	}
	if len(secs) != 1 || secs[0].NameString() != ".text" {
		t.Fatalf("unexpected section headers: %+v", secs)
	}
}

func TestValidateHeadersTooSmall(t *testing.T) {
	_, err := ValidateHeaders(make([]byte, 10))
	if !IsKind(err, KindOOB) {
		t.Fatalf("expected KindOOB, got %v", err)
	}
}

func TestValidateHeadersBadDOSMagic(t *testing.T) {
	b := newBuilder()
	b.addSection(".text", make([]byte, 0x100), ImageScnCntCode)
	image := b.build()
	image[0] = 'X'

	_, err := ValidateHeaders(image)
	if !IsKind(err, KindBadMagic) {
		t.Fatalf("expected KindBadMagic, got %v", err)
	}
}

func TestValidateHeadersMachineMagicMismatch(t *testing.T) {
	b := newBuilder()
	b.addSection(".text", make([]byte, 0x100), ImageScnCntCode)
	image := b.build()

	// This builder always emits a PE32+ optional header; set Machine to
	// a 32-bit type so it disagrees with the magic.
	const machineOff = 0x80 + 4
	binary.LittleEndian.PutUint16(image[machineOff:machineOff+2], ImageFileMachineI386)

	_, err := ValidateHeaders(image)
	if !IsKind(err, KindInsanity) {
		t.Fatalf("expected KindInsanity, got %v", err)
	}
}

func TestValidateHeadersBadNTSignature(t *testing.T) {
	b := newBuilder()
	b.addSection(".text", make([]byte, 0x100), ImageScnCntCode)
	image := b.build()
	image[0x80] = 0 // corrupt the 'PE\0\0' signature at e_lfanew

	_, err := ValidateHeaders(image)
	if !IsKind(err, KindBadMagic) {
		t.Fatalf("expected KindBadMagic, got %v", err)
	}
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import (
	"encoding/binary"
	"testing"

	"github.com/binlens/pescan/pattern"
)

func TestScannerExecLiteralAndCapture(t *testing.T) {
	b := newBuilder()
	code := []byte{0x90, 0x55, 0x8B, 0xEC, 0x5D, 0xC3}
	rva := b.addSection(".text", code, ImageScnCntCode|ImageScnMemExecute|ImageScnMemRead)
	image := b.build()

	v, err := NewFileView(image)
	if err != nil {
		t.Fatalf("NewFileView failed: %v", err)
	}

	pat := pattern.MustParse("558BEC'5D")
	m, ok := Scanner(v).Exec(pat, Rva(rva)+1)
	if !ok {
		t.Fatalf("Exec failed to match at the expected start")
	}
	if m.Start != Rva(rva)+1 {
		t.Errorf("Start = %#x, want %#x", m.Start, Rva(rva)+1)
	}
	if m.Slot(0) != Rva(rva)+4 {
		t.Errorf("Slot(0) = %#x, want %#x", m.Slot(0), Rva(rva)+4)
	}
}

func TestScannerMatchesCodeFindsOnlyExecutableSections(t *testing.T) {
	b := newBuilder()
	b.addSection(".rdata", []byte{0xC3, 0xC3}, ImageScnCntInitializedData|ImageScnMemRead)
	codeRVA := b.addSection(".text", []byte{0x90, 0xC3, 0x90, 0xC3}, ImageScnCntCode|ImageScnMemExecute)
	image := b.build()

	v, err := NewFileView(image)
	if err != nil {
		t.Fatalf("NewFileView failed: %v", err)
	}

	pat := pattern.MustParse("C3")
	it := Scanner(v).MatchesCode(pat)
	var starts []Rva
	for it.Next() {
		starts = append(starts, it.Current().Start)
	}
	if len(starts) != 2 {
		t.Fatalf("found %d matches, want 2: %v", len(starts), starts)
	}
	if starts[0] != Rva(codeRVA)+1 || starts[1] != Rva(codeRVA)+3 {
		t.Errorf("unexpected match starts: %v", starts)
	}
}

// TestScannerExecFollow builds a relative call (E8 + 4-byte signed
// displacement) and verifies the Follow atom (`$`) redirects the cursor
// to the call target rather than treating the displacement bytes as
// literal data.
func TestScannerExecFollow(t *testing.T) {
	b := newBuilder()
	code := make([]byte, 0x20)
	code[0] = 0xE8 // call rel32
	const target = 0x10
	// disp is relative to the address of the instruction *after* the
	// 4-byte operand, i.e. rva+5.
	disp := int32(target) - int32(5)
	binary.LittleEndian.PutUint32(code[1:5], uint32(disp))
	code[target] = 0xAA
	code[target+1] = 0xBB
	rva := b.addSection(".text", code, ImageScnCntCode|ImageScnMemExecute)
	image := b.build()

	v, err := NewFileView(image)
	if err != nil {
		t.Fatalf("NewFileView failed: %v", err)
	}

	pat := pattern.MustParse("E8$'AABB")
	m, ok := Scanner(v).Exec(pat, Rva(rva))
	if !ok {
		t.Fatalf("Exec failed to match the followed call target")
	}
	if want := Rva(rva) + target; m.Slot(0) != want {
		t.Errorf("Slot(0) = %#x, want %#x (the call target)", m.Slot(0), want)
	}
}

// TestScannerExecSaveJump builds a pointer field (an absolute VA) that
// targets a marker elsewhere in the same section and verifies the
// SaveJump atom (`*{...}`) follows it, matches the bracketed
// sub-pattern there, and restores the cursor to just past the pointer
// field for the remainder of the outer pattern.
func TestScannerExecSaveJump(t *testing.T) {
	b := newBuilder()
	code := make([]byte, 0x30)
	const target = 0x20
	rva := b.addSection(".text", code, ImageScnCntCode|ImageScnMemExecute)
	// Fill in the pointer once rva is known: an absolute VA pointing at
	// the marker bytes at sectionRVA+target.
	va := b.imageBase + uint64(rva) + target
	binary.LittleEndian.PutUint64(code[0:8], va)
	code[8] = 0xCC // literal matched after SaveJump restores the cursor
	code[target] = 0xAA
	code[target+1] = 0xBB
	image := b.build()

	v, err := NewFileView(image)
	if err != nil {
		t.Fatalf("NewFileView failed: %v", err)
	}

	pat := pattern.MustParse("*{'AABB}CC")
	m, ok := Scanner(v).Exec(pat, Rva(rva))
	if !ok {
		t.Fatalf("Exec failed to match through the save-jump")
	}
	if want := Rva(rva) + target; m.Slot(0) != want {
		t.Errorf("Slot(0) = %#x, want %#x (the jump target)", m.Slot(0), want)
	}
}

// TestScannerExecZeroFillStopsMatch exercises KindZeroFill as a scan
// failure rather than a propagated error: a pattern that walks into a
// section's zero-fill tail under a FileView must simply not match,
// mirroring how an OOB byte read is treated.
func TestScannerExecZeroFillStopsMatch(t *testing.T) {
	b := newBuilder()
	rva := b.addSection(".data", []byte{0x90, 0x90}, ImageScnCntInitializedData|ImageScnMemRead)
	image := b.build()

	const (
		lfanew        = 0x80
		optHdrSize    = 112 + 16*8
		sectionTblOff = lfanew + 4 + 20 + optHdrSize
		sizeOfRawOff  = sectionTblOff + 16 // IMAGE_SECTION_HEADER.SizeOfRawData
	)
	// Shrink SizeOfRawData to 1 byte, well below the section's
	// VirtualSize (2, from the two-byte section data above), so the
	// pattern's second byte read falls into the zero-fill tail.
	binary.LittleEndian.PutUint32(image[sizeOfRawOff:], 1)

	v, err := NewFileView(image)
	if err != nil {
		t.Fatalf("NewFileView failed: %v", err)
	}

	pat := pattern.MustParse("90??")
	if _, ok := Scanner(v).Exec(pat, Rva(rva)); ok {
		t.Fatalf("expected the zero-fill tail read to fail the match")
	}
}

func TestScannerExecMismatch(t *testing.T) {
	b := newBuilder()
	rva := b.addSection(".text", []byte{0x90, 0x90}, ImageScnCntCode|ImageScnMemExecute)
	image := b.build()

	v, err := NewFileView(image)
	if err != nil {
		t.Fatalf("NewFileView failed: %v", err)
	}

	pat := pattern.MustParse("55")
	if _, ok := Scanner(v).Exec(pat, Rva(rva)); ok {
		t.Fatalf("expected mismatch")
	}
}

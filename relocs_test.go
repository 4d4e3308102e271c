// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import (
	"encoding/binary"
	"testing"
)

func buildRelocSection(pageRVA uint32) []byte {
	// One block: header (8 bytes) + two HIGHLOW entries + one padding
	// ABSOLUTE entry, each entry a 2-byte (type<<12 | offset) word.
	buf := make([]byte, 8+2*3)
	binary.LittleEndian.PutUint32(buf[0:4], pageRVA)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(buf)))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(RelBasedHighLow)<<12|0x010)
	binary.LittleEndian.PutUint16(buf[10:12], uint16(RelBasedHighLow)<<12|0x020)
	binary.LittleEndian.PutUint16(buf[12:14], uint16(RelBasedAbsolute)<<12) // padding
	return buf
}

func TestGetBaseRelocations(t *testing.T) {
	b := newBuilder()
	rva := b.addSection(".reloc", nil, ImageScnCntInitializedData|ImageScnMemDiscardable|ImageScnMemRead)
	data := buildRelocSection(rva)
	b.sections[0].data = data
	b.setDataDirectory(DirectoryEntryBaseReloc, rva, uint32(len(data)))
	image := b.build()

	v, err := NewFileView(image)
	if err != nil {
		t.Fatalf("NewFileView failed: %v", err)
	}

	blocks, err := GetBaseRelocations(v)
	if err != nil {
		t.Fatalf("GetBaseRelocations failed: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("len(blocks) = %d, want 1", len(blocks))
	}
	if blocks[0].PageRVA != Rva(rva) {
		t.Errorf("PageRVA = %#x, want %#x", blocks[0].PageRVA, rva)
	}
	// The padding ABSOLUTE entry must have been dropped.
	if len(blocks[0].Relocations) != 2 {
		t.Fatalf("len(Relocations) = %d, want 2", len(blocks[0].Relocations))
	}
	if blocks[0].Relocations[0].RVA != Rva(rva)+0x010 {
		t.Errorf("Relocations[0].RVA = %#x, want %#x", blocks[0].Relocations[0].RVA, Rva(rva)+0x010)
	}
	if RelocTypeName(blocks[0].Relocations[0].Type) != "HighLow" {
		t.Errorf("RelocTypeName = %q, want HighLow", RelocTypeName(blocks[0].Relocations[0].Type))
	}
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import (
	"encoding/binary"
	"testing"
)

// buildImportSection lays out one ImageImportDescriptor (terminated by
// a zero entry), its IAT thunk, and a hint/name entry, all inside one
// section.
func buildImportSection(sectionRVA uint32) (data []byte, dirRVA uint32) {
	const (
		descSize = 20
		term     = descSize // the all-zero terminator descriptor
		iatOff   = term + descSize
		// iatOff holds one 8-byte thunk entry; the 8 bytes immediately
		// after it are left zero (readThunks64's own terminator), so the
		// hint/name data must start a further 8 bytes on.
		hintOff = iatOff + 16
		dllOff  = hintOff + 2 + 16
	)
	buf := make([]byte, dllOff+16)

	binary.LittleEndian.PutUint32(buf[0:4], sectionRVA+iatOff)  // OriginalFirstThunk == IAT (no separate ILT)
	binary.LittleEndian.PutUint32(buf[12:16], sectionRVA+dllOff) // Name
	binary.LittleEndian.PutUint32(buf[16:20], sectionRVA+iatOff) // FirstThunk
	// descriptor[1] is left all-zero: the terminator.

	binary.LittleEndian.PutUint64(buf[iatOff:], uint64(sectionRVA+hintOff))

	binary.LittleEndian.PutUint16(buf[hintOff:], 7) // Hint
	copy(buf[hintOff+2:], "CreateFileW\x00")
	copy(buf[dllOff:], "kernel32.dll\x00")

	return buf, sectionRVA
}

func TestGetImports(t *testing.T) {
	b := newBuilder()
	rva := b.addSection(".idata", nil, ImageScnCntInitializedData|ImageScnMemRead)
	data, dirRVA := buildImportSection(rva)
	b.sections[0].data = data
	b.setDataDirectory(DirectoryEntryImport, dirRVA, uint32(len(data)))
	image := b.build()

	v, err := NewFileView(image)
	if err != nil {
		t.Fatalf("NewFileView failed: %v", err)
	}

	mods, err := GetImports(v)
	if err != nil {
		t.Fatalf("GetImports failed: %v", err)
	}
	if len(mods) != 1 {
		t.Fatalf("len(mods) = %d, want 1", len(mods))
	}
	if mods[0].Name != "kernel32.dll" {
		t.Errorf("module name = %q, want kernel32.dll", mods[0].Name)
	}
	if len(mods[0].Functions) != 1 || mods[0].Functions[0].Name != "CreateFileW" {
		t.Fatalf("unexpected functions: %+v", mods[0].Functions)
	}
	if mods[0].Functions[0].Hint != 7 {
		t.Errorf("Hint = %d, want 7", mods[0].Functions[0].Hint)
	}

	hash, err := ImpHash(mods)
	if err != nil {
		t.Fatalf("ImpHash failed: %v", err)
	}
	if hash == "" {
		t.Errorf("ImpHash returned empty string")
	}
}

func TestImpHashEmpty(t *testing.T) {
	if _, err := ImpHash(nil); !IsKind(err, KindInvalid) {
		t.Fatalf("expected KindInvalid for empty module list, got %v", err)
	}
}

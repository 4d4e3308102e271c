// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import (
	"encoding/binary"
	"testing"
)

// buildResourceSection lays out a one-level resource directory with a
// single numeric-ID entry pointing straight at a leaf data entry (no
// intermediate name/language levels), all relative to the section RVA.
func buildResourceSection(sectionRVA uint32) (data []byte, dirSize uint32) {
	const (
		dirHdrSize   = 16
		entryOff     = dirHdrSize
		dataEntryOff = entryOff + 8
		payloadOff   = dataEntryOff + 16
	)
	payload := []byte("icon bytes")
	buf := make([]byte, payloadOff+len(payload))

	binary.LittleEndian.PutUint16(buf[12:14], 0) // NumberOfNamedEntries
	binary.LittleEndian.PutUint16(buf[14:16], 1) // NumberOfIDEntries

	binary.LittleEndian.PutUint32(buf[entryOff:], 3)                // Name = numeric ID 3 (RT_ICON)
	binary.LittleEndian.PutUint32(buf[entryOff+4:], dataEntryOff) // OffsetToData, high bit clear => leaf

	binary.LittleEndian.PutUint32(buf[dataEntryOff:], sectionRVA+uint32(payloadOff)) // OffsetToData (RVA)
	binary.LittleEndian.PutUint32(buf[dataEntryOff+4:], uint32(len(payload)))        // Size

	copy(buf[payloadOff:], payload)

	return buf, uint32(payloadOff + len(payload))
}

func TestGetResources(t *testing.T) {
	b := newBuilder()
	rva := b.addSection(".rsrc", nil, ImageScnCntInitializedData|ImageScnMemRead)
	data, dirSize := buildResourceSection(rva)
	b.sections[0].data = data
	b.setDataDirectory(DirectoryEntryResource, rva, dirSize)
	image := b.build()

	v, err := NewFileView(image)
	if err != nil {
		t.Fatalf("NewFileView failed: %v", err)
	}

	dir, err := GetResources(v)
	if err != nil {
		t.Fatalf("GetResources failed: %v", err)
	}
	if len(dir.Entries) != 1 {
		t.Fatalf("len(Entries) = %d, want 1", len(dir.Entries))
	}
	e := dir.Entries[0]
	if e.IsNamed || e.IsDirectory {
		t.Fatalf("unexpected entry shape: %+v", e)
	}
	if e.ID != 3 {
		t.Errorf("ID = %d, want 3", e.ID)
	}

	hdr, payload, err := GetResourceData(v, e.DataEntryRVA)
	if err != nil {
		t.Fatalf("GetResourceData failed: %v", err)
	}
	if hdr.Size != uint32(len("icon bytes")) {
		t.Errorf("Size = %d, want %d", hdr.Size, len("icon bytes"))
	}
	if string(payload) != "icon bytes" {
		t.Errorf("payload = %q, want %q", payload, "icon bytes")
	}
}

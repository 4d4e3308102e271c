// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import "encoding/binary"

// builder assembles a minimal, valid PE32+ image byte-for-byte, the way
// a hand-rolled linker would. The teacher's own tests drive real
// binaries under test/ (see dosheader_test.go); those fixtures were
// never retrieved into this pack, so these tests synthesize the
// smallest image that satisfies ValidateHeaders instead, the same
// "construct the bytes, don't trust a fixture" approach original_source/
// uses for pelite's own unit tests.
type builder struct {
	fileAlign uint32
	secAlign  uint32
	imageBase uint64
	sections  []builtSection
	dataDirs  [16]DataDirectory
}

type builtSection struct {
	name  string
	rva   uint32
	data  []byte
	chars uint32
}

func newBuilder() *builder {
	return &builder{
		fileAlign: 0x200,
		secAlign:  0x1000,
		imageBase: 0x140000000,
	}
}

// addSection appends a section, auto-placing its RVA on the next
// section-aligned boundary after the previous one.
func (b *builder) addSection(name string, data []byte, chars uint32) uint32 {
	rva := b.secAlign
	if n := len(b.sections); n > 0 {
		prev := b.sections[n-1]
		end := prev.rva + alignUp32(uint32(len(prev.data)), b.secAlign)
		rva = end
	}
	b.sections = append(b.sections, builtSection{name: name, rva: rva, data: data, chars: chars})
	return rva
}

func (b *builder) setDataDirectory(e DirectoryEntry, rva, size uint32) {
	b.dataDirs[e] = DataDirectory{VirtualAddress: rva, Size: size}
}

func alignUp32(v, align uint32) uint32 {
	if align == 0 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// build emits the full on-disk image: DOS stub, NT headers (PE32+),
// section table, then each section's raw data at its file-aligned
// offset.
func (b *builder) build() []byte {
	const dosStubSize = 0x80
	lfanew := uint32(dosStubSize)

	numSections := uint16(len(b.sections))
	optHdrSize := uint16(112 + 16*8) // OptionalHeader64 fixed part + 16 data dirs
	sectionTableOff := lfanew + 4 + 20 + uint32(optHdrSize)
	headersEnd := sectionTableOff + uint32(numSections)*sizeOfSectionHeader
	sizeOfHeaders := alignUp32(headersEnd, b.fileAlign)

	// lay out file offsets for each section, sequentially, file-aligned.
	fileOffsets := make([]uint32, len(b.sections))
	cursor := sizeOfHeaders
	for i, s := range b.sections {
		fileOffsets[i] = cursor
		cursor += alignUp32(uint32(len(s.data)), b.fileAlign)
	}

	sizeOfImage := uint32(b.secAlign)
	for _, s := range b.sections {
		end := s.rva + alignUp32(uint32(len(s.data)), b.secAlign)
		if end > sizeOfImage {
			sizeOfImage = end
		}
	}
	sizeOfImage = alignUp32(sizeOfImage, b.secAlign)

	buf := make([]byte, cursor)

	// DOS header.
	binary.LittleEndian.PutUint16(buf[0:2], ImageDOSSignature)
	binary.LittleEndian.PutUint32(buf[0x3c:0x40], lfanew)

	// NT signature.
	binary.LittleEndian.PutUint32(buf[lfanew:lfanew+4], ImageNTSignature)

	// FileHeader.
	fh := lfanew + 4
	binary.LittleEndian.PutUint16(buf[fh:fh+2], ImageFileMachineAMD64)
	binary.LittleEndian.PutUint16(buf[fh+2:fh+4], numSections)
	binary.LittleEndian.PutUint16(buf[fh+16:fh+18], optHdrSize)
	binary.LittleEndian.PutUint16(buf[fh+18:fh+20], ImageFileExecutableImage|ImageFileLargeAddressAware)

	// OptionalHeader64.
	oh := fh + 20
	binary.LittleEndian.PutUint16(buf[oh:oh+2], ImageNtOptionalHeader64Magic)
	binary.LittleEndian.PutUint32(buf[oh+16:oh+20], 0x1000) // AddressOfEntryPoint
	binary.LittleEndian.PutUint64(buf[oh+24:oh+32], b.imageBase)
	binary.LittleEndian.PutUint32(buf[oh+32:oh+36], b.secAlign)
	binary.LittleEndian.PutUint32(buf[oh+36:oh+40], b.fileAlign)
	binary.LittleEndian.PutUint32(buf[oh+56:oh+60], sizeOfImage)
	binary.LittleEndian.PutUint32(buf[oh+60:oh+64], sizeOfHeaders)
	binary.LittleEndian.PutUint32(buf[oh+108:oh+112], 16) // NumberOfRvaAndSizes

	ddOff := oh + 112
	for i, d := range b.dataDirs {
		binary.LittleEndian.PutUint32(buf[ddOff+i*8:ddOff+i*8+4], d.VirtualAddress)
		binary.LittleEndian.PutUint32(buf[ddOff+i*8+4:ddOff+i*8+8], d.Size)
	}

	// Section table + raw data.
	st := sectionTableOff
	for i, s := range b.sections {
		off := st + uint32(i)*sizeOfSectionHeader
		copy(buf[off:off+8], s.name)
		binary.LittleEndian.PutUint32(buf[off+8:off+12], uint32(len(s.data)))
		binary.LittleEndian.PutUint32(buf[off+12:off+16], s.rva)
		binary.LittleEndian.PutUint32(buf[off+16:off+20], alignUp32(uint32(len(s.data)), b.fileAlign))
		binary.LittleEndian.PutUint32(buf[off+20:off+24], fileOffsets[i])
		binary.LittleEndian.PutUint32(buf[off+36:off+40], s.chars)

		copy(buf[fileOffsets[i]:], s.data)
	}

	return buf
}

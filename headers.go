// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

// Every record type in this file is reinterpreted directly from image
// bytes via ReadPod/ReadPodSlice (see pod.go); field order, widths and
// names mirror the Microsoft PE/COFF specification byte-for-byte. This
// only gives correct results on little-endian hosts, which is the
// universal case for the architectures Go targets that also run
// Windows PE loaders (x86, amd64, arm64) — the same assumption the
// teacher and dblohm7-wingoes/pe both make implicitly by reinterpreting
// struct bytes in place rather than decoding field-by-field.

// DOSHeader is the legacy MS-DOS executable header (IMAGE_DOS_HEADER)
// every PE image still carries for backwards compatibility. Only Magic
// and AddressOfNewEXEHeader (e_lfanew) are load-bearing for PE parsing;
// the rest is the DOS stub's bookkeeping.
type DOSHeader struct {
	podTag
	Magic                    uint16
	BytesOnLastPageOfFile    uint16
	PagesInFile              uint16
	Relocations              uint16
	SizeOfHeader             uint16
	MinExtraParagraphsNeeded uint16
	MaxExtraParagraphsNeeded uint16
	InitialSS                uint16
	InitialSP                uint16
	Checksum                 uint16
	InitialIP                uint16
	InitialCS                uint16
	AddressOfRelocationTable uint16
	OverlayNumber            uint16
	ReservedWords1           [4]uint16
	OEMIdentifier            uint16
	OEMInformation           uint16
	ReservedWords2           [10]uint16
	AddressOfNewEXEHeader    uint32
}

// FileHeader is IMAGE_FILE_HEADER: the COFF header shared by PE32 and
// PE32+ images.
type FileHeader struct {
	podTag
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

// DataDirectory is one slot of the sixteen-entry optional header
// directory table (IMAGE_DATA_DIRECTORY).
type DataDirectory struct {
	podTag
	VirtualAddress uint32
	Size           uint32
}

// OptionalHeader32 is IMAGE_OPTIONAL_HEADER for PE32 images (32-bit
// ImageBase/VA width). Kept as a distinct, non-unified type from
// OptionalHeader64 per spec.md §9: the layouts genuinely differ, not
// just in field widths but in which fields exist at all (BaseOfData).
type OptionalHeader32 struct {
	podTag
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	BaseOfData                  uint32
	ImageBase                   uint32
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint32
	SizeOfStackCommit           uint32
	SizeOfHeapReserve           uint32
	SizeOfHeapCommit            uint32
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
	DataDirectory               [16]DataDirectory
}

// OptionalHeader64 is IMAGE_OPTIONAL_HEADER64 for PE32+ images (64-bit
// ImageBase/VA width; no BaseOfData field).
type OptionalHeader64 struct {
	podTag
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	ImageBase                   uint64
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint64
	SizeOfStackCommit           uint64
	SizeOfHeapReserve           uint64
	SizeOfHeapCommit            uint64
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
	DataDirectory               [16]DataDirectory
}

// SectionHeader is IMAGE_SECTION_HEADER, 40 bytes, bit-exact.
type SectionHeader struct {
	podTag
	Name                 [8]byte
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLineNumbers uint32
	NumberOfRelocations  uint16
	NumberOfLineNumbers  uint16
	Characteristics      uint32
}

// NameString returns the section name with trailing NULs stripped. It
// does not resolve the long-name-in-string-table form (object files
// only; executable images never use it, and this package only
// introspects executable images).
func (s *SectionHeader) NameString() string {
	return string(Strn(s.Name[:]))
}

// ContainsRVA reports whether rva lies in this section's virtual range.
func (s *SectionHeader) ContainsRVA(rva Rva) bool {
	start := uint64(s.VirtualAddress)
	end := start + uint64(s.VirtualSize)
	r := uint64(rva)
	return r >= start && r < end
}

// IsExecutable reports whether the section is code, by either the
// CNT_CODE content flag or the MEM_EXECUTE permission flag (spec.md
// §4.I: "characteristics include IMAGE_SCN_CNT_CODE or IMAGE_SCN_MEM_EXECUTE").
func (s *SectionHeader) IsExecutable() bool {
	return s.Characteristics&(ImageScnCntCode|ImageScnMemExecute) != 0
}

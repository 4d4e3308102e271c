// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import "fmt"

// Debug directory entry types (IMAGE_DEBUG_TYPE_*), carried over from
// the teacher's debug.go constant block.
const (
	ImageDebugTypeUnknown              = 0
	ImageDebugTypeCOFF                 = 1
	ImageDebugTypeCodeView             = 2
	ImageDebugTypeFPO                  = 3
	ImageDebugTypeMisc                 = 4
	ImageDebugTypeException            = 5
	ImageDebugTypeFixup                = 6
	ImageDebugTypeOMAPToSrc            = 7
	ImageDebugTypeOMAPFromSrc          = 8
	ImageDebugTypeBorland              = 9
	ImageDebugTypeReserved             = 10
	ImageDebugTypeCLSID                = 11
	ImageDebugTypeVCFeature            = 12
	ImageDebugTypePOGO                 = 13
	ImageDebugTypeILTCG                = 14
	ImageDebugTypeMPX                  = 15
	ImageDebugTypeRepro                = 16
	ImageDebugTypeExDllCharacteristics = 20
)

const (
	// CVSignatureRSDS is the CodeView signature 'SDSR' (PDB 7.0).
	CVSignatureRSDS = 0x53445352
	// CVSignatureNB10 is the CodeView signature 'NB10' (PDB 2.0).
	CVSignatureNB10 = 0x3031424e
)

const (
	POGOTypePGU  = 0x50475500
	POGOTypePGI  = 0x50474900
	POGOTypePGO  = 0x50474F00
	POGOTypeLTCG = 0x4c544347
)

// maxDebugEntries guards the directory-array walk against a forged
// Size claiming a huge entry count.
const maxDebugEntries = 256

// ImageDebugDirectory is IMAGE_DEBUG_DIRECTORY: one entry describing a
// single form of debug information and where to find it.
type ImageDebugDirectory struct {
	podTag
	Characteristics  uint32
	TimeDateStamp    uint32
	MajorVersion     uint16
	MinorVersion     uint16
	Type             uint32
	SizeOfData       uint32
	AddressOfRawData uint32
	PointerToRawData uint32
}

// GUID is a 128-bit PDB signature (the 16 raw bytes of a Windows GUID).
type GUID struct {
	podTag
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// String formats g the conventional "{XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX}" way.
func (g GUID) String() string {
	return fmt.Sprintf("{%08X-%04X-%04X-%04X-%X}", g.Data1, g.Data2, g.Data3, g.Data4[0:2], g.Data4[2:])
}

// CVInfoPDB70 is the CodeView data block of a PDB 7.0 file ('RSDS').
type CVInfoPDB70 struct {
	Signature   GUID
	Age         uint32
	PDBFileName string
}

// CVInfoPDB20 is the CodeView data block of a PDB 2.0 file ('NB10').
type CVInfoPDB20 struct {
	Offset      uint32
	Signature   uint32
	Age         uint32
	PDBFileName string
}

// PGOEntry is one _IMAGE_POGO_INFO entry.
type PGOEntry struct {
	RVA  uint32
	Size uint32
	Name string
}

// POGO is the Profile Guided Optimization debug entry: a sub-type
// signature and the per-symbol coverage entries that follow it.
type POGO struct {
	Signature uint32
	Entries   []PGOEntry
}

// DebugEntry pairs one directory header with whatever type-specific
// payload GetDebugDirectory managed to decode for it (one of
// *CVInfoPDB70, *CVInfoPDB20, *POGO, or nil if the type is unrecognized
// or its payload couldn't be parsed).
type DebugEntry struct {
	Header  ImageDebugDirectory
	Payload interface{}
}

// GetDebugDirectory parses the debug directory (DirectoryEntryDebug),
// grounded on the teacher's parseDebugDirectory CodeView/POGO decoding
// but reading through the Pe view. Raw-data fields are file offsets
// into the image, not RVAs, per the PE spec; FileView's Slice treats
// rva < SizeOfHeaders as identity-mapped and MappedView treats every
// rva as a direct offset, so PointerToRawData is read through Derva as
// if it were an rva — correct for MappedView, and correct for FileView
// only when the raw data lives in the header region or the caller
// reads through a view that performs the offset translation itself.
func GetDebugDirectory(p Pe) ([]DebugEntry, error) {
	dir := GetDataDirectory(p, DirectoryEntryDebug)
	if dir.VirtualAddress == BadRVA || dir.Size == 0 {
		return nil, newErr(KindNull)
	}

	entrySize := uint32(sizeOf[ImageDebugDirectory]())
	count := dir.Size / entrySize
	if count > maxDebugEntries {
		count = maxDebugEntries
	}

	var entries []DebugEntry
	for i := uint32(0); i < count; i++ {
		hdr, err := Derva[ImageDebugDirectory](p, Rva(dir.VirtualAddress)+Rva(i*entrySize))
		if err != nil {
			break
		}

		entry := DebugEntry{Header: *hdr}
		switch hdr.Type {
		case ImageDebugTypeCodeView:
			entry.Payload = parseCodeView(p, hdr)
		case ImageDebugTypePOGO:
			entry.Payload = parsePOGO(p, hdr)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func parseCodeView(p Pe, hdr *ImageDebugDirectory) interface{} {
	sig, err := DervaUint32(p, Rva(hdr.PointerToRawData))
	if err != nil {
		return nil
	}

	switch sig {
	case CVSignatureRSDS:
		guid, err := Derva[GUID](p, Rva(hdr.PointerToRawData+4))
		if err != nil {
			return nil
		}
		age, err := DervaUint32(p, Rva(hdr.PointerToRawData+4+16))
		if err != nil {
			return nil
		}
		name, _ := DervaString(p, Rva(hdr.PointerToRawData+4+16+4))
		return &CVInfoPDB70{Signature: *guid, Age: age, PDBFileName: name}

	case CVSignatureNB10:
		offset, err := DervaUint32(p, Rva(hdr.PointerToRawData+4))
		if err != nil {
			return nil
		}
		signature, err := DervaUint32(p, Rva(hdr.PointerToRawData+8))
		if err != nil {
			return nil
		}
		age, err := DervaUint32(p, Rva(hdr.PointerToRawData+12))
		if err != nil {
			return nil
		}
		name, _ := DervaString(p, Rva(hdr.PointerToRawData+16))
		return &CVInfoPDB20{Offset: offset, Signature: signature, Age: age, PDBFileName: name}
	}
	return nil
}

// maxPOGOEntries guards the entry walk against a forged SizeOfData.
const maxPOGOEntries = 4096

func parsePOGO(p Pe, hdr *ImageDebugDirectory) interface{} {
	sig, err := DervaUint32(p, Rva(hdr.PointerToRawData))
	if err != nil {
		return nil
	}

	pogo := &POGO{Signature: sig}
	offset := hdr.PointerToRawData + 4
	consumed := uint32(4)
	for len(pogo.Entries) < maxPOGOEntries && consumed < hdr.SizeOfData {
		rva, err := DervaUint32(p, Rva(offset))
		if err != nil {
			break
		}
		size, err := DervaUint32(p, Rva(offset+4))
		if err != nil {
			break
		}
		name, err := DervaString(p, Rva(offset+8))
		if err != nil {
			break
		}

		entry := PGOEntry{RVA: rva, Size: size, Name: name}
		pogo.Entries = append(pogo.Entries, entry)

		nameLen := uint32(len(name)) + 1 // NUL terminator
		advance := 8 + nameLen
		if pad := advance % 4; pad != 0 {
			advance += 4 - pad
		}
		offset += advance
		consumed += advance
	}
	return pogo
}

// debugTypeName names a debug directory entry type.
func debugTypeName(t uint32) string {
	names := map[uint32]string{
		ImageDebugTypeUnknown:              "Unknown",
		ImageDebugTypeCOFF:                 "COFF",
		ImageDebugTypeCodeView:             "CodeView",
		ImageDebugTypeFPO:                  "FPO",
		ImageDebugTypeMisc:                 "Misc",
		ImageDebugTypeException:            "Exception",
		ImageDebugTypeFixup:                "Fixup",
		ImageDebugTypeOMAPToSrc:            "OMAP To Src",
		ImageDebugTypeOMAPFromSrc:          "OMAP From Src",
		ImageDebugTypeBorland:              "Borland",
		ImageDebugTypeVCFeature:            "VC Feature",
		ImageDebugTypePOGO:                 "POGO",
		ImageDebugTypeILTCG:                "iLTCG",
		ImageDebugTypeMPX:                  "MPX",
		ImageDebugTypeRepro:                "REPRO",
		ImageDebugTypeExDllCharacteristics: "Ex.DLL Characteristics",
	}
	if v, ok := names[t]; ok {
		return v
	}
	return "?"
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

// Relocation entry types (the Type field packed into the high nibble
// of each IMAGE_BASE_RELOCATION entry), carried over from the
// teacher's reloc.go constant block.
const (
	RelBasedAbsolute  = 0
	RelBasedHigh      = 1
	RelBasedLow       = 2
	RelBasedHighLow   = 3
	RelBasedHighAdj   = 4
	RelBasedDir64     = 10
)

// maxRelocEntriesPerBlock guards against a forged SizeOfBlock that
// would otherwise make one block claim millions of phantom entries
// (the teacher's MaxDefaultRelocEntriesCount anomaly, ported as a hard
// cap rather than a logged anomaly since this package has no mutable
// per-file Anomalies slice to append to).
const maxRelocEntriesPerBlock = 0x1000

// ImageBaseRelocation is the header of one relocation block
// (IMAGE_BASE_RELOCATION): the page this block applies to, and the
// total byte size of the block including this header.
type ImageBaseRelocation struct {
	podTag
	VirtualAddress uint32
	SizeOfBlock    uint32
}

// Relocation is one resolved entry: the absolute RVA the loader must
// patch, and the relocation type controlling how.
type Relocation struct {
	RVA  Rva
	Type uint8
}

// RelocationBlock groups every Relocation belonging to one page. The
// block's SizeOfBlock is not kept; only the page RVA and the
// non-padding entries are.
type RelocationBlock struct {
	PageRVA     Rva
	Relocations []Relocation
}

// GetBaseRelocations walks the relocation directory
// (DirectoryEntryBaseReloc) into its per-page blocks. Absolute-type
// padding entries are dropped since they carry no fixup.
func GetBaseRelocations(p Pe) ([]RelocationBlock, error) {
	dir := GetDataDirectory(p, DirectoryEntryBaseReloc)
	if dir.VirtualAddress == BadRVA || dir.Size == 0 {
		return nil, newErr(KindNull)
	}

	sizeOfImage := p.Headers().SizeOfImage()
	hdrSize := uint32(sizeOf[ImageBaseRelocation]())
	rva := Rva(dir.VirtualAddress)
	end := Rva(dir.VirtualAddress + dir.Size)

	var blocks []RelocationBlock
	for rva < end {
		hdr, err := Derva[ImageBaseRelocation](p, rva)
		if err != nil {
			break
		}
		if hdr.VirtualAddress > sizeOfImage || hdr.SizeOfBlock > sizeOfImage {
			break
		}
		if hdr.SizeOfBlock < hdrSize {
			break
		}

		count := (hdr.SizeOfBlock - hdrSize) / 2
		if count > maxRelocEntriesPerBlock {
			count = maxRelocEntriesPerBlock
		}
		entries, err := DervaUint16Array(p, rva+Rva(hdrSize), int(count))
		if err != nil {
			break
		}

		block := RelocationBlock{PageRVA: Rva(hdr.VirtualAddress)}
		for _, e := range entries {
			typ := uint8(e >> 12)
			offset := e & 0x0fff
			if typ == RelBasedAbsolute {
				continue
			}
			block.Relocations = append(block.Relocations, Relocation{
				RVA:  Rva(hdr.VirtualAddress) + Rva(offset),
				Type: typ,
			})
		}
		blocks = append(blocks, block)

		if hdr.SizeOfBlock == 0 {
			break
		}
		rva += Rva(hdr.SizeOfBlock)
	}

	return blocks, nil
}

// RelocTypeName returns a human-readable name for a machine-independent
// relocation type. Machine-dependent types (MIPS/ARM/RISC-V, which
// reuse the same numeric codes for different meanings) are reported
// generically; disambiguating them needs the FileHeader.Machine field,
// which callers can branch on themselves.
func RelocTypeName(t uint8) string {
	switch t {
	case RelBasedAbsolute:
		return "Absolute"
	case RelBasedHigh:
		return "High"
	case RelBasedLow:
		return "Low"
	case RelBasedHighLow:
		return "HighLow"
	case RelBasedHighAdj:
		return "HighAdj"
	case RelBasedDir64:
		return "Dir64"
	default:
		return "?"
	}
}

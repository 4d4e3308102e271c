// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

// FileView is a Pe whose image is laid out exactly as the bytes sit on
// disk: sections are packed by file offset (PointerToRawData), not by
// virtual address, so resolving an rva requires a section-table walk.
// Grounded on pelite::pe64::file::PeFile's section_get/slice/read (the
// "file" layout half of the original crate) and on the teacher's own
// GetOffsetFromRva/getSectionByRva in helper.go.
type FileView struct {
	image   []byte
	headers *Headers
	// sections is cached at construction time; ValidateHeaders already
	// proved the section table is in-bounds, so this never fails.
	sections []SectionHeader
}

// NewFileView validates image's headers and wraps it as a FileView. The
// returned view borrows image; callers must not mutate it afterward.
func NewFileView(image []byte) (*FileView, error) {
	h, err := ValidateHeaders(image)
	if err != nil {
		return nil, err
	}
	secs, err := h.sectionHeaders(image)
	if err != nil {
		return nil, err
	}
	return &FileView{image: image, headers: h, sections: secs}, nil
}

// Image implements Pe.
func (v *FileView) Image() []byte { return v.image }

// Headers implements Pe.
func (v *FileView) Headers() *Headers { return v.headers }

// Slice implements Pe for the file layout: it first checks whether rva
// lies within the header region (before the first section, always
// identity-mapped file-offset == rva for a well-formed image), then
// walks the section table for the section containing rva, translating
// through PointerToRawData and honoring the zero-fill tail when
// VirtualSize exceeds SizeOfRawData.
func (v *FileView) Slice(rva Rva, minLen int, align uintptr) ([]byte, error) {
	if rva == BadRVA {
		return nil, newErrAddr(KindNull, uint64(rva))
	}
	off, avail, err := v.resolve(rva)
	if err != nil {
		return nil, err
	}
	if minLen > 0 && avail < minLen {
		return nil, newErrAddr(KindOOB, uint64(rva))
	}
	b := v.image[off:]
	if align > 1 && len(b) > 0 {
		if uintptr(off)%align != 0 {
			return nil, newErrAddr(KindMisalign, uint64(rva))
		}
	}
	return b[:avail], nil
}

// Read implements Pe by converting va to an rva and delegating to Slice.
func (v *FileView) Read(va Va, minLen int, align uintptr) ([]byte, error) {
	rva, err := VaToRva(v, va)
	if err != nil {
		return nil, err
	}
	return v.Slice(rva, minLen, align)
}

// resolve translates rva to a (fileOffset, availableBytes) pair.
// availableBytes is how many bytes can be read starting at fileOffset
// before running off either the raw data backing that region or the
// image blob itself, matching pelite's "bytes available in this
// section, zero-fill excluded" semantics.
func (v *FileView) resolve(rva Rva) (FileOffset, int, error) {
	headerEnd := v.headers.SizeOfHeaders()
	if uint32(rva) < headerEnd {
		off := FileOffset(rva)
		if uint64(off) >= uint64(len(v.image)) {
			return 0, 0, newErrAddr(KindOOB, uint64(rva))
		}
		return off, len(v.image) - int(off), nil
	}

	for i := range v.sections {
		s := &v.sections[i]
		if !s.ContainsRVA(rva) {
			continue
		}
		withinSection := uint64(rva) - uint64(s.VirtualAddress)
		if withinSection >= uint64(s.SizeOfRawData) {
			// Inside VirtualSize but beyond the raw data on disk: the
			// loader zero-fills this at runtime, a FileView cannot.
			return 0, 0, newErrAddr(KindZeroFill, uint64(rva))
		}
		off := FileOffset(uint64(s.PointerToRawData) + withinSection)
		if uint64(off) >= uint64(len(v.image)) {
			return 0, 0, newErrAddr(KindOOB, uint64(rva))
		}
		rawAvail := uint64(s.SizeOfRawData) - withinSection
		fileAvail := uint64(len(v.image)) - uint64(off)
		avail := rawAvail
		if fileAvail < avail {
			avail = fileAvail
		}
		return off, int(avail), nil
	}

	return 0, 0, newErrAddr(KindOOB, uint64(rva))
}

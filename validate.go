// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import "unsafe"

// Headers is the result of successfully validating a PE blob: the
// parsed, in-bounds header records plus the offsets needed to locate
// the section table. Constructing a Headers value is the only way any
// accessor on Pe can be reached — it is the proof that the fixed
// headers are in-bounds (spec.md §3 invariant).
type Headers struct {
	Is64          bool
	DOS           DOSHeader
	File          FileHeader
	OptHdr32      OptionalHeader32
	OptHdr64      OptionalHeader64
	SectionOffset uint32 // file offset of the first IMAGE_SECTION_HEADER
	NumSections   uint16
}

// ImageBase returns the optional header's ImageBase, widened to Va
// regardless of PE32/PE32+.
func (h *Headers) ImageBase() Va {
	if h.Is64 {
		return Va(h.OptHdr64.ImageBase)
	}
	return Va(h.OptHdr32.ImageBase)
}

// SizeOfImage returns the optional header's SizeOfImage.
func (h *Headers) SizeOfImage() uint32 {
	if h.Is64 {
		return h.OptHdr64.SizeOfImage
	}
	return h.OptHdr32.SizeOfImage
}

// SizeOfHeaders returns the optional header's SizeOfHeaders.
func (h *Headers) SizeOfHeaders() uint32 {
	if h.Is64 {
		return h.OptHdr64.SizeOfHeaders
	}
	return h.OptHdr32.SizeOfHeaders
}

// DataDirectory returns the data directory slot at idx, or a zeroed
// entry if idx is beyond NumberOfRvaAndSizes (which the validator has
// already capped at 16).
func (h *Headers) DataDirectory(idx DirectoryEntry) DataDirectory {
	var dirs *[16]DataDirectory
	var count uint32
	if h.Is64 {
		dirs = &h.OptHdr64.DataDirectory
		count = h.OptHdr64.NumberOfRvaAndSizes
	} else {
		dirs = &h.OptHdr32.DataDirectory
		count = h.OptHdr32.NumberOfRvaAndSizes
	}
	if idx < 0 || uint32(idx) >= count || int(idx) >= len(dirs) {
		return DataDirectory{}
	}
	return dirs[idx]
}

// ValidateHeaders implements spec.md §4.D: it sequentially validates
// the DOS header, NT signature, file header, optional header and
// section table bounds of image, failing fast with a tagged Kind on
// the first inconsistency. No view can be constructed without a
// successful call to this function.
func ValidateHeaders(image []byte) (*Headers, error) {
	if len(image) < TinyPESize {
		return nil, wrapErr(KindOOB, 0, ErrInvalidPESize)
	}

	dos, err := ReadPod[DOSHeader](image, 1)
	if err != nil {
		return nil, err
	}
	if dos.Magic != ImageDOSSignature {
		return nil, wrapErr(KindBadMagic, 0, ErrDOSMagicNotFound)
	}

	lfanew := uint64(dos.AddressOfNewEXEHeader)
	// signature (4 bytes) + FileHeader must fit before we can even read
	// the optional header's size field.
	ntHeaderMin := lfanew + 4 + uint64(unsafe.Sizeof(FileHeader{}))
	if lfanew == 0 || ntHeaderMin > uint64(len(image)) {
		return nil, wrapErr(KindOOB, lfanew, ErrInvalidElfanewValue)
	}

	sigBytes := image[lfanew : lfanew+4]
	sig := uint32(sigBytes[0]) | uint32(sigBytes[1])<<8 | uint32(sigBytes[2])<<16 | uint32(sigBytes[3])<<24
	if sig != ImageNTSignature {
		switch sig & 0xffff {
		case ImageOS2Signature:
			return nil, wrapErr(KindBadMagic, lfanew, ErrImageNtSignatureNotFound)
		case ImageOS2LESignature, ImageVXDSignature:
			return nil, wrapErr(KindBadMagic, lfanew, ErrImageNtSignatureNotFound)
		}
		return nil, wrapErr(KindBadMagic, lfanew, ErrImageNtSignatureNotFound)
	}

	fileHdrOff := lfanew + 4
	fileHdr, err := ReadPod[FileHeader](image[fileHdrOff:], 1)
	if err != nil {
		return nil, err
	}

	h := &Headers{File: *fileHdr, NumSections: fileHdr.NumberOfSections}

	// machineIs64 records what the Machine field implies about bit
	// width, to be cross-checked against the optional header's magic
	// once it's read below. -1 means Machine is a type this package
	// doesn't recognize, so the cross-check is skipped rather than
	// rejecting outright — new machine types are added faster than this
	// package can track them.
	machineIs64 := -1
	switch fileHdr.Machine {
	case ImageFileMachineAMD64, ImageFileMachineIA64, ImageFileMachineARM64:
		machineIs64 = 1
	case ImageFileMachineI386, ImageFileMachineARM, ImageFileMachineARMNT, ImageFileMachineUnknown:
		machineIs64 = 0
	}

	optHdrOff := fileHdrOff + uint64(unsafe.Sizeof(FileHeader{}))
	minOptSize := uint64(unsafe.Sizeof(uint16(0)))
	if uint64(fileHdr.SizeOfOptionalHeader) < minOptSize {
		return nil, wrapErr(KindInsanity, optHdrOff, ErrImageNtOptionalHeaderMagicNotFound)
	}
	if optHdrOff+uint64(fileHdr.SizeOfOptionalHeader) > uint64(len(image)) {
		return nil, wrapErr(KindOOB, optHdrOff, ErrSectionTableOOB)
	}

	magicBuf := image[optHdrOff:]
	if len(magicBuf) < 2 {
		return nil, wrapErr(KindOOB, optHdrOff, ErrImageNtOptionalHeaderMagicNotFound)
	}
	magic := uint16(magicBuf[0]) | uint16(magicBuf[1])<<8

	switch magic {
	case ImageNtOptionalHeader32Magic:
		h.Is64 = false
	case ImageNtOptionalHeader64Magic:
		h.Is64 = true
	default:
		return nil, wrapErr(KindBadMagic, optHdrOff, ErrImageNtOptionalHeaderMagicNotFound)
	}

	if machineIs64 != -1 && (machineIs64 == 1) != h.Is64 {
		return nil, wrapErr(KindInsanity, optHdrOff, ErrUnsupportedMachine)
	}

	if h.Is64 {
		oh, err := ReadPod[OptionalHeader64](image[optHdrOff:], 1)
		if err != nil {
			return nil, err
		}
		h.OptHdr64 = *oh
		if oh.NumberOfRvaAndSizes > 16 {
			return nil, wrapErr(KindInsanity, optHdrOff, ErrTooManyDataDirectories)
		}
		if oh.SizeOfImage < oh.SizeOfHeaders {
			return nil, wrapErr(KindInsanity, optHdrOff, ErrInsaneSizeOfImage)
		}
	} else {
		oh, err := ReadPod[OptionalHeader32](image[optHdrOff:], 1)
		if err != nil {
			return nil, err
		}
		h.OptHdr32 = *oh
		if oh.NumberOfRvaAndSizes > 16 {
			return nil, wrapErr(KindInsanity, optHdrOff, ErrTooManyDataDirectories)
		}
		if oh.SizeOfImage < oh.SizeOfHeaders {
			return nil, wrapErr(KindInsanity, optHdrOff, ErrInsaneSizeOfImage)
		}
	}

	h.DOS = *dos
	sectionOff := optHdrOff + uint64(fileHdr.SizeOfOptionalHeader)
	sectionTableSize := uint64(fileHdr.NumberOfSections) * sizeOfSectionHeader
	sectionTotal, overflow := mulOverflows(uintptr(fileHdr.NumberOfSections), sizeOfSectionHeader)
	if overflow || sectionOff+uint64(sectionTotal) > uint64(len(image)) {
		return nil, wrapErr(KindOOB, sectionOff, ErrSectionTableOOB)
	}
	_ = sectionTableSize
	h.SectionOffset = uint32(sectionOff)

	return h, nil
}

// sectionHeaders reinterprets the validated section table as a
// zero-copy slice.
func (h *Headers) sectionHeaders(image []byte) ([]SectionHeader, error) {
	if h.NumSections == 0 {
		return nil, nil
	}
	return ReadPodSlice[SectionHeader](image[h.SectionOffset:], int(h.NumSections), 1)
}

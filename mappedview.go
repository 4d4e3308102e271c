// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

// MappedView is a Pe over an image laid out the way the Windows loader
// maps it into memory: rva and file offset coincide (identity mapping),
// and the only bound is SizeOfImage, not any individual section's raw
// data size. This is the layout a live process snapshot, a crash dump,
// or anything already relocated by a loader arrives in. Grounded on
// pelite's "mapped" PeFile variant referenced throughout
// src/pe64/file.rs and the teacher's own in-memory scan mode.
type MappedView struct {
	image   []byte
	headers *Headers
}

// NewMappedView validates image's headers and wraps it as a MappedView.
func NewMappedView(image []byte) (*MappedView, error) {
	h, err := ValidateHeaders(image)
	if err != nil {
		return nil, err
	}
	return &MappedView{image: image, headers: h}, nil
}

// Image implements Pe.
func (v *MappedView) Image() []byte { return v.image }

// Headers implements Pe.
func (v *MappedView) Headers() *Headers { return v.headers }

// Slice implements Pe for the mapped layout: rva is the file offset
// directly, bounded by both SizeOfImage and the backing blob's actual
// length (a truncated dump is shorter than SizeOfImage promises).
func (v *MappedView) Slice(rva Rva, minLen int, align uintptr) ([]byte, error) {
	if rva == BadRVA {
		return nil, newErrAddr(KindNull, uint64(rva))
	}
	size := v.headers.SizeOfImage()
	if uint32(rva) >= size {
		return nil, newErrAddr(KindOOB, uint64(rva))
	}
	off := uint64(rva)
	if off >= uint64(len(v.image)) {
		return nil, newErrAddr(KindOOB, uint64(rva))
	}
	if align > 1 && off%uint64(align) != 0 {
		return nil, newErrAddr(KindMisalign, uint64(rva))
	}
	end := uint64(size)
	if uint64(len(v.image)) < end {
		end = uint64(len(v.image))
	}
	avail := int(end - off)
	if minLen > 0 && avail < minLen {
		return nil, newErrAddr(KindOOB, uint64(rva))
	}
	return v.image[off : off+uint64(avail)], nil
}

// Read implements Pe by converting va to an rva and delegating to Slice.
func (v *MappedView) Read(va Va, minLen int, align uintptr) ([]byte, error) {
	rva, err := VaToRva(v, va)
	if err != nil {
		return nil, err
	}
	return v.Slice(rva, minLen, align)
}

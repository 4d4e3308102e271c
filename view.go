// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// Pe is the central polymorphic contract (spec.md §4.E): the minimal
// capability a layout (file vs. mapped) must provide. Everything else
// in this package — typed reads, string accessors, directory
// accessors, the pattern scanner — is a free function built atop these
// two primitives, so FileView and MappedView need only ever implement
// Image/Headers/Slice/Read.
type Pe interface {
	// Image returns the underlying blob. Every slice handed out by
	// Slice/Read borrows from this and must not outlive it.
	Image() []byte

	// Headers returns the validated header set this view was
	// constructed from.
	Headers() *Headers

	// Slice resolves rva to a byte slice of at least minLen bytes whose
	// start satisfies align. minLen == 0 means "return whatever is
	// available from rva to the end of its containing region" (used by
	// the NUL-scanning string accessors).
	Slice(rva Rva, minLen int, align uintptr) ([]byte, error)

	// Read converts va to an rva (subtracting ImageBase, range-checking
	// against SizeOfImage) and delegates to Slice.
	Read(va Va, minLen int, align uintptr) ([]byte, error)
}

// Derva reinterprets the bytes at rva as a borrowed *T.
func Derva[T Pod](p Pe, rva Rva) (*T, error) {
	b, err := p.Slice(rva, sizeOf[T](), alignOf[T]())
	if err != nil {
		return nil, err
	}
	return ReadPod[T](b, alignOf[T]())
}

// DervaSlice reinterprets n contiguous records at rva as a borrowed []T.
func DervaSlice[T Pod](p Pe, rva Rva, n int) ([]T, error) {
	size := sizeOf[T]()
	total, overflow := mulOverflows(uintptr(n), uintptr(size))
	if overflow {
		return nil, newErr(KindOverflow)
	}
	b, err := p.Slice(rva, int(total), alignOf[T]())
	if err != nil {
		return nil, err
	}
	return ReadPodSlice[T](b, n, alignOf[T]())
}

// Deref follows a VA-typed pointer to a borrowed *T.
func Deref[T Pod](p Pe, ptr Ptr[T]) (*T, error) {
	if ptr.IsNull() {
		return nil, newErr(KindNull)
	}
	b, err := p.Read(Va(ptr.VA), sizeOf[T](), alignOf[T]())
	if err != nil {
		return nil, err
	}
	return ReadPod[T](b, alignOf[T]())
}

// DerefCopy follows a VA-typed pointer and returns a copy of *T.
func DerefCopy[T Pod](p Pe, ptr Ptr[T]) (T, error) {
	var zero T
	v, err := Deref[T](p, ptr)
	if err != nil {
		return zero, err
	}
	return *v, nil
}

// DervaStr scans forward from rva for a NUL-terminated byte string,
// failing with KindCStr if the containing region ends before a
// terminator is found.
func DervaStr(p Pe, rva Rva) ([]byte, error) {
	b, err := p.Slice(rva, 0, 1)
	if err != nil {
		return nil, err
	}
	s := Strn(b)
	if len(s) == len(b) {
		return nil, newErrAddr(KindCStr, uint64(rva))
	}
	return s, nil
}

// DerefStr follows a VA-typed pointer to a NUL-terminated byte string.
func DerefStr(p Pe, ptr Ptr[byte]) ([]byte, error) {
	if ptr.IsNull() {
		return nil, newErr(KindNull)
	}
	b, err := p.Read(Va(ptr.VA), 0, 1)
	if err != nil {
		return nil, err
	}
	s := Strn(b)
	if len(s) == len(b) {
		return nil, newErrAddr(KindCStr, ptr.VA)
	}
	return s, nil
}

// DervaString scans forward from rva for a NUL-terminated ASCII/UTF-8
// string and decodes it.
func DervaString(p Pe, rva Rva) (string, error) {
	b, err := DervaStr(p, rva)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DervaWideString scans forward from rva for a NUL-terminated UTF-16LE
// string and decodes it.
func DervaWideString(p Pe, rva Rva) (string, error) {
	b, err := p.Slice(rva, 0, 2)
	if err != nil {
		return "", err
	}
	s := WStrn(b)
	if len(s) == len(b) {
		return "", newErrAddr(KindCStr, uint64(rva))
	}
	return decodeUTF16LE(s)
}

// DerefWideString follows a VA-typed pointer to a NUL-terminated
// UTF-16LE string and decodes it.
func DerefWideString(p Pe, ptr Ptr[uint16]) (string, error) {
	if ptr.IsNull() {
		return "", newErr(KindNull)
	}
	b, err := p.Read(Va(ptr.VA), 0, 2)
	if err != nil {
		return "", err
	}
	s := WStrn(b)
	if len(s) == len(b) {
		return "", newErrAddr(KindCStr, ptr.VA)
	}
	return decodeUTF16LE(s)
}

// RvaToVa converts rva to an absolute VA by adding ImageBase, failing
// with KindOverflow/KindOOB rather than wrapping.
func RvaToVa(p Pe, rva Rva) (Va, error) {
	base := p.Headers().ImageBase()
	sum := uint64(base) + uint64(rva)
	if sum < uint64(base) {
		return 0, newErr(KindOverflow)
	}
	return Va(sum), nil
}

// VaToRva converts an absolute VA back to an rva, range-checking
// against SizeOfImage. It is the exact inverse of RvaToVa for every
// rva in [0, SizeOfImage).
func VaToRva(p Pe, va Va) (Rva, error) {
	if va == BadVA {
		return 0, newErr(KindNull)
	}
	base := p.Headers().ImageBase()
	if va < base {
		return 0, newErr(KindOOB)
	}
	delta := uint64(va) - uint64(base)
	if delta > uint64(p.Headers().SizeOfImage()) {
		return 0, newErr(KindOOB)
	}
	return Rva(delta), nil
}

// SectionHeaders returns the validated section table as a zero-copy
// slice ordered exactly as it appears on disk.
func SectionHeaders(p Pe) ([]SectionHeader, error) {
	return p.Headers().sectionHeaders(p.Image())
}

// SectionByRVA returns the section containing rva, or nil if rva lies
// outside every section (e.g. in the header region).
func SectionByRVA(p Pe, rva Rva) (*SectionHeader, error) {
	secs, err := SectionHeaders(p)
	if err != nil {
		return nil, err
	}
	for i := range secs {
		if secs[i].ContainsRVA(rva) {
			return &secs[i], nil
		}
	}
	return nil, nil
}

// GetDataDirectory returns the data directory slot idx.
func GetDataDirectory(p Pe, idx DirectoryEntry) DataDirectory {
	return p.Headers().DataDirectory(idx)
}

// Scanner returns a pattern-matching interpreter bound to p (spec.md
// §4.I).
func Scanner(p Pe) *ScannerT {
	return &ScannerT{pe: p}
}

// --- scalar reads, matching the teacher's ReadUint8/16/32/64 helpers ---
// These are not expressed through the generic Pod machinery because Go
// forbids attaching methods (and thus implementing Pod) to predeclared
// numeric types; they are trivial enough to read with encoding/binary
// directly, exactly as helper.go's ReadUint* family does.

// DervaUint8 reads a single byte at rva.
func DervaUint8(p Pe, rva Rva) (uint8, error) {
	b, err := p.Slice(rva, 1, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// DervaUint16 reads a little-endian uint16 at rva.
func DervaUint16(p Pe, rva Rva) (uint16, error) {
	b, err := p.Slice(rva, 2, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// DervaUint32 reads a little-endian uint32 at rva.
func DervaUint32(p Pe, rva Rva) (uint32, error) {
	b, err := p.Slice(rva, 4, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// DervaUint64 reads a little-endian uint64 at rva.
func DervaUint64(p Pe, rva Rva) (uint64, error) {
	b, err := p.Slice(rva, 8, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// DervaUint32Array reads n consecutive little-endian uint32s starting
// at rva as a plain []uint32 (used for the export/name-ordinal tables,
// which are raw arrays of scalars rather than a named record type, so
// the Pod-slice machinery doesn't apply).
func DervaUint32Array(p Pe, rva Rva, n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	total, overflow := mulOverflows(uintptr(n), 4)
	if overflow {
		return nil, newErr(KindOverflow)
	}
	b, err := p.Slice(rva, int(total), 4)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out, nil
}

// DervaUint16Array reads n consecutive little-endian uint16s starting
// at rva as a plain []uint16 (used for the export name-ordinal table).
func DervaUint16Array(p Pe, rva Rva, n int) ([]uint16, error) {
	if n == 0 {
		return nil, nil
	}
	total, overflow := mulOverflows(uintptr(n), 2)
	if overflow {
		return nil, newErr(KindOverflow)
	}
	b, err := p.Slice(rva, int(total), 2)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return out, nil
}

// DervaFloat32 reads a little-endian IEEE-754 single at rva.
func DervaFloat32(p Pe, rva Rva) (float32, error) {
	bits, err := DervaUint32(p, rva)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(bits), nil
}

// alignOf returns the alignment this package requires for T when
// reading it through Slice/Read, derived straight from Go's own struct
// layout via unsafe.Alignof so it always matches what ReadPod actually
// checks.
func alignOf[T any]() uintptr {
	var zero T
	return unsafe.Alignof(zero)
}

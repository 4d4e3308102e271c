// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Pod marks a record type as plain-old-data: every bit pattern of its
// size is a legal value of the type (no padding with undefined meaning,
// no interior pointers, no enum with illegal values). Only types built
// exclusively from integers, byte arrays, or other Pod records may
// implement it. ReadPod/ReadPodSlice rely on this to reinterpret raw
// bytes without copying.
//
// Attach Pod only to records whose every field is itself Pod. Never
// attach it to a record containing a Go pointer, slice, interface, or
// string field, or to an enum type with gaps in its valid range.
type Pod interface {
	pod()
}

// podTag is embedded by value in every POD record type; it costs no
// space (zero-sized) and exists purely so the compiler enforces that
// pod() is only ever promoted from a genuine POD record, not bolted
// onto an arbitrary type via a standalone method.
type podTag struct{}

func (podTag) pod() {}

// Rva is an unsigned 32-bit offset relative to the image base. BadRVA
// (0) is reserved as the null sentinel.
type Rva uint32

// Va is a virtual address: an absolute address once the image is
// loaded. BadVA (0) is reserved as the null sentinel. Used for both
// 32-bit and 64-bit images; 32-bit VAs are stored widened.
type Va uint64

// FileOffset is an unsigned offset into the raw image blob.
type FileOffset uint64

// ReadPod reinterprets a validated byte slice as a borrowed *T without
// copying. It fails if b is shorter than sizeof(T) or its address does
// not satisfy align.
func ReadPod[T Pod](b []byte, align uintptr) (*T, error) {
	var zero T
	size := unsafe.Sizeof(zero)
	if uintptr(len(b)) < size {
		return nil, newErr(KindOOB)
	}
	if align > 1 && uintptr(unsafe.Pointer(&b[0]))%align != 0 {
		return nil, newErr(KindMisalign)
	}
	return (*T)(unsafe.Pointer(&b[0])), nil
}

// ReadPodSlice reinterprets a validated byte slice as a borrowed []T of
// length n without copying. It fails on overflow of n*sizeof(T), on a
// short slice, or on misalignment.
func ReadPodSlice[T Pod](b []byte, n int, align uintptr) ([]T, error) {
	if n < 0 {
		return nil, newErr(KindOOB)
	}
	if n == 0 {
		return nil, nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	total, overflow := mulOverflows(uintptr(n), size)
	if overflow {
		return nil, newErr(KindOverflow)
	}
	if uintptr(len(b)) < total {
		return nil, newErr(KindOOB)
	}
	if align > 1 && uintptr(unsafe.Pointer(&b[0]))%align != 0 {
		return nil, newErr(KindMisalign)
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n), nil
}

// mulOverflows reports whether a*b overflows uintptr.
func mulOverflows(a, b uintptr) (uintptr, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	p := a * b
	return p, p/a != b
}

// alignUp rounds v up to the next multiple of pow2 (which must be a
// power of two), grounded on the same helper in dblohm7-wingoes/pe's
// zero-copy reader.
func alignUp[V constraints.Integer](v, pow2 V) V {
	if pow2 <= 0 {
		return v
	}
	return (v + pow2 - 1) &^ (pow2 - 1)
}

// sizeOf returns sizeof(T) as a plain int, used by accessors computing
// directory entry counts from a byte length.
func sizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

// Ptr is a relative pointer: a VA that carries a phantom target type.
// It is itself Pod (it's just a uint64 underneath) so it can appear as
// a field inside other POD records (e.g. a linked-list node's `next`
// field), but converting it to a concrete value requires passing
// through a Pe view via Deref/DerefCopy.
type Ptr[T any] struct {
	podTag
	VA uint64
}

// Va returns the pointer's address as a Va.
func (p Ptr[T]) Va() Va { return Va(p.VA) }

// IsNull reports whether the pointer is the reserved null sentinel.
func (p Ptr[T]) IsNull() bool { return p.VA == 0 }

// OffsetVA advances va by count elements of size sizeOf, wrapping on
// overflow exactly like unchecked pointer arithmetic. Restored from
// pelite::util::Offset (see SPEC_FULL.md's supplemented-features list);
// used to walk arrays of Ptr[T] or fixed-size records linked by VA.
func OffsetVA(va Va, count int64, sizeOf uintptr) Va {
	delta := count * int64(sizeOf)
	return Va(uint64(int64(va) + delta))
}

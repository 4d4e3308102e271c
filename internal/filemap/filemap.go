// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package filemap opens a file read-only and memory-maps it, handing
// back a plain []byte a FileView or MappedView can be built over. The
// core package never touches the filesystem itself.
package filemap

import (
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// File is a read-only memory-mapped file. Its Bytes() borrow the kernel
// mapping directly; Close unmaps and must be called exactly once.
type File struct {
	f  *os.File
	mm mmap.MMap
}

// Open maps path read-only. Grounded on the teacher's file.go (New from
// a path, mmap.Map with RDONLY), but returns the blob and a closer
// instead of a mutable *pe.File.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() == 0 {
		f.Close()
		return nil, os.ErrInvalid
	}
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, mm: mm}, nil
}

// Bytes returns the mapped image. The slice is only valid until Close.
func (m *File) Bytes() []byte { return m.mm }

// Close unmaps the file and closes the underlying descriptor.
func (m *File) Close() error {
	errUnmap := m.mm.Unmap()
	errClose := m.f.Close()
	if errUnmap != nil {
		return errUnmap
	}
	return errClose
}

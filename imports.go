// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const (
	imageOrdinalFlag32 = uint32(0x80000000)
	imageOrdinalFlag64 = uint64(0x8000000000000000)
	addressMask32      = uint32(0x7fffffff)
	addressMask64      = uint64(0x7fffffffffffffff)
	maxImportEntries   = 1 << 16
)

// ImageImportDescriptor describes one DLL's entry in the import
// directory table. The table is terminated by an all-zero entry.
type ImageImportDescriptor struct {
	podTag
	OriginalFirstThunk uint32 // RVA of the Import Lookup Table (INT)
	TimeDateStamp      uint32
	ForwarderChain     uint32
	Name               uint32 // RVA of the DLL's ASCII name
	FirstThunk         uint32 // RVA of the Import Address Table (IAT)
}

// ImportedFunction is one resolved entry of a DLL's import table.
type ImportedFunction struct {
	Name      string
	Hint      uint16
	ByOrdinal bool
	Ordinal   uint16
	ThunkRVA  Rva // address within the IAT this entry was read from
}

// ImportedModule groups every function imported from one DLL.
type ImportedModule struct {
	Name      string
	Functions []ImportedFunction
}

// GetImports walks the import directory of p, grounded on the
// teacher's imports.go (ImageImportDescriptor layout, ordinal-flag
// masking, ImpHash algorithm) but reading through the Pe view instead
// of mutating a shared File struct.
func GetImports(p Pe) ([]ImportedModule, error) {
	dir := GetDataDirectory(p, DirectoryEntryImport)
	if dir.VirtualAddress == BadRVA {
		return nil, newErr(KindNull)
	}

	var modules []ImportedModule
	rva := Rva(dir.VirtualAddress)
	for i := 0; i < maxImportEntries; i++ {
		desc, err := Derva[ImageImportDescriptor](p, rva)
		if err != nil {
			return modules, nil
		}
		if *desc == (ImageImportDescriptor{}) {
			break
		}
		rva += Rva(sizeOf[ImageImportDescriptor]())

		name, err := DervaString(p, Rva(desc.Name))
		if err != nil {
			continue
		}

		thunkRVA := Rva(desc.FirstThunk)
		if desc.OriginalFirstThunk != 0 {
			thunkRVA = Rva(desc.OriginalFirstThunk)
		}

		var funcs []ImportedFunction
		if p.Headers().Is64 {
			funcs, err = readThunks64(p, thunkRVA, Rva(desc.FirstThunk))
		} else {
			funcs, err = readThunks32(p, thunkRVA, Rva(desc.FirstThunk))
		}
		if err != nil {
			continue
		}

		modules = append(modules, ImportedModule{Name: name, Functions: funcs})
	}
	return modules, nil
}

func readThunks32(p Pe, iltRVA, iatRVA Rva) ([]ImportedFunction, error) {
	var funcs []ImportedFunction
	for i := 0; i < maxImportEntries; i++ {
		entryRVA := iltRVA + Rva(i*4)
		thunkRVA := iatRVA + Rva(i*4)
		v, err := DervaUint32(p, entryRVA)
		if err != nil {
			return funcs, nil
		}
		if v == 0 {
			break
		}
		fn := ImportedFunction{ThunkRVA: thunkRVA}
		if v&imageOrdinalFlag32 != 0 {
			fn.ByOrdinal = true
			fn.Ordinal = uint16(v & 0xffff)
			fn.Name = "#" + strconv.Itoa(int(fn.Ordinal))
		} else {
			hintNameRVA := Rva(v & addressMask32)
			hint, err := DervaUint16(p, hintNameRVA)
			if err == nil {
				fn.Hint = hint
			}
			name, err := DervaString(p, hintNameRVA+2)
			if err != nil {
				continue
			}
			fn.Name = name
		}
		funcs = append(funcs, fn)
	}
	return funcs, nil
}

func readThunks64(p Pe, iltRVA, iatRVA Rva) ([]ImportedFunction, error) {
	var funcs []ImportedFunction
	for i := 0; i < maxImportEntries; i++ {
		entryRVA := iltRVA + Rva(i*8)
		thunkRVA := iatRVA + Rva(i*8)
		v, err := DervaUint64(p, entryRVA)
		if err != nil {
			return funcs, nil
		}
		if v == 0 {
			break
		}
		fn := ImportedFunction{ThunkRVA: thunkRVA}
		if v&imageOrdinalFlag64 != 0 {
			fn.ByOrdinal = true
			fn.Ordinal = uint16(v & 0xffff)
			fn.Name = "#" + strconv.Itoa(int(fn.Ordinal))
		} else {
			hintNameRVA := Rva(v & addressMask64)
			hint, err := DervaUint16(p, hintNameRVA)
			if err == nil {
				fn.Hint = hint
			}
			name, err := DervaString(p, hintNameRVA+2)
			if err != nil {
				continue
			}
			fn.Name = name
		}
		funcs = append(funcs, fn)
	}
	return funcs, nil
}

// ImpHash computes the import hash the way the teacher's ImpHash does:
// lowercase "module.function" (extensions stripped from the module
// name) joined with commas and hashed with MD5. Ordinal-only imports
// contribute a synthetic "#N" name rather than a well-known symbol
// name resolved from the ordinal (the teacher's OrdLookup table was
// never retrieved into this tree), so the hash diverges from the
// teacher's for any module imported by ordinal.
func ImpHash(modules []ImportedModule) (string, error) {
	if len(modules) == 0 {
		return "", newErr(KindInvalid)
	}
	extensions := map[string]bool{"ocx": true, "sys": true, "dll": true}
	var parts []string
	for _, m := range modules {
		libName := m.Name
		if dot := strings.LastIndex(libName, "."); dot >= 0 && extensions[strings.ToLower(libName[dot+1:])] {
			libName = libName[:dot]
		}
		libName = strings.ToLower(libName)
		for _, fn := range m.Functions {
			name := fn.Name
			if name == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s.%s", libName, strings.ToLower(name)))
		}
	}
	sum := md5.Sum([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:]), nil
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

// ImageExportDirectory is IMAGE_EXPORT_DIRECTORY, the header of the
// export directory (DirectoryEntryExport).
type ImageExportDirectory struct {
	podTag
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

// ExportedFunction is one resolved entry of the export table: either a
// named or ordinal-only function, possibly forwarded to another DLL.
type ExportedFunction struct {
	Name      string
	Ordinal   uint16 // biased ordinal (Base already added)
	RVA       Rva
	Forwarder string // non-empty if this export forwards to another DLL
}

// Exports is the parsed export directory: the module's own export name
// and every resolved entry, in AddressOfFunctions order.
type Exports struct {
	DLLName   string
	Directory ImageExportDirectory
	Functions []ExportedFunction
}

// GetExports parses the export directory of p, grounded on
// pelite::pe64::exports and the teacher's import-parsing idiom in
// imports.go (maxLen-bounded table walks, RVA-overlap rejection).
func GetExports(p Pe) (*Exports, error) {
	dir := GetDataDirectory(p, DirectoryEntryExport)
	if dir.VirtualAddress == BadRVA || dir.Size == 0 {
		return nil, newErr(KindNull)
	}

	hdr, err := Derva[ImageExportDirectory](p, Rva(dir.VirtualAddress))
	if err != nil {
		return nil, err
	}

	dllName, err := DervaString(p, Rva(hdr.Name))
	if err != nil {
		return nil, err
	}

	funcs, err := DervaUint32Array(p, Rva(hdr.AddressOfFunctions), int(hdr.NumberOfFunctions))
	if err != nil {
		return nil, err
	}

	exports := &Exports{DLLName: dllName, Directory: *hdr}
	exports.Functions = make([]ExportedFunction, 0, hdr.NumberOfFunctions)

	// Build ordinal->name map from the two parallel name tables, then
	// walk AddressOfFunctions in order so unnamed (ordinal-only) and
	// forwarded exports are represented too.
	names := make(map[uint16]string)
	if hdr.NumberOfNames > 0 {
		nameRVAs, err := DervaUint32Array(p, Rva(hdr.AddressOfNames), int(hdr.NumberOfNames))
		if err != nil {
			return nil, err
		}
		ordinals, err := DervaUint16Array(p, Rva(hdr.AddressOfNameOrdinals), int(hdr.NumberOfNames))
		if err != nil {
			return nil, err
		}
		for i := 0; i < len(nameRVAs) && i < len(ordinals); i++ {
			name, err := DervaString(p, Rva(nameRVAs[i]))
			if err != nil {
				continue
			}
			names[ordinals[i]] = name
		}
	}

	dirStart := uint32(dir.VirtualAddress)
	dirEnd := dirStart + dir.Size
	for i, rva := range funcs {
		if rva == 0 {
			continue
		}
		ef := ExportedFunction{
			Ordinal: uint16(i) + uint16(hdr.Base),
			RVA:     Rva(rva),
		}
		if name, ok := names[uint16(i)]; ok {
			ef.Name = name
		}
		// An export RVA that itself points inside the export directory
		// is a forwarder string ("OTHERDLL.Func"), not code.
		if uint32(rva) >= dirStart && uint32(rva) < dirEnd {
			fwd, err := DervaString(p, Rva(rva))
			if err == nil {
				ef.Forwarder = fwd
			}
		}
		exports.Functions = append(exports.Functions, ef)
	}

	return exports, nil
}

// ByName looks up the exported function called name, or reports ok=false.
func (e *Exports) ByName(name string) (ExportedFunction, bool) {
	for _, f := range e.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return ExportedFunction{}, false
}

// ByOrdinal looks up the exported function with the given biased
// ordinal, or reports ok=false.
func (e *Exports) ByOrdinal(ordinal uint16) (ExportedFunction, bool) {
	for _, f := range e.Functions {
		if f.Ordinal == ordinal {
			return f, true
		}
	}
	return ExportedFunction{}, false
}

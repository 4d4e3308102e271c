// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

// maxResourceEntries guards a resource directory walk against a forged
// NumberOfNamedEntries/NumberOfIDEntries claiming an unreasonable count
// (the teacher's maxAllowedEntries anomaly guard, ported as a hard cap).
const maxResourceEntries = 0x1000

// ImageResourceDirectory is IMAGE_RESOURCE_DIRECTORY, the header of one
// level of the resource tree (type, name, or language, by depth).
type ImageResourceDirectory struct {
	podTag
	Characteristics      uint32
	TimeDateStamp        uint32
	MajorVersion         uint16
	MinorVersion         uint16
	NumberOfNamedEntries uint16
	NumberOfIDEntries    uint16
}

// ImageResourceDirectoryEntry is IMAGE_RESOURCE_DIRECTORY_ENTRY: either
// a named or numeric-ID key, pointing to a sibling directory or to a
// leaf data entry.
type ImageResourceDirectoryEntry struct {
	podTag
	Name         uint32
	OffsetToData uint32
}

// ImageResourceDataEntry is IMAGE_RESOURCE_DATA_ENTRY, the leaf record
// describing one unit of raw resource data.
type ImageResourceDataEntry struct {
	podTag
	OffsetToData uint32
	Size         uint32
	CodePage     uint32
	Reserved     uint32
}

// ResourceEntry is one resolved entry of the top-level resource
// directory: a resource type (numeric ID or name) and the RVA, within
// the resource section, of its own sub-directory.
type ResourceEntry struct {
	ID           uint32
	Name         string
	IsNamed      bool
	IsDirectory  bool
	SubdirRVA    Rva // valid when IsDirectory
	DataEntryRVA Rva // valid when !IsDirectory, points at an ImageResourceDataEntry
}

// ResourceDirectory is the root IMAGE_RESOURCE_DIRECTORY
// (DirectoryEntryResource) and its immediate children only. Deeper
// levels (name, then language) are read on demand by calling
// GetResourceDirectoryAt again with a child's SubdirRVA — this package
// exposes typed, bounds-checked entry points into the tree rather than
// a recursive whole-tree walker (icon/version/manifest extraction is
// left to callers who need it).
type ResourceDirectory struct {
	Header  ImageResourceDirectory
	Entries []ResourceEntry
}

// GetResources parses the root of the resource directory
// (DirectoryEntryResource). Use GetResourceDirectoryAt to descend into
// any entry reporting IsDirectory, and GetResourceData to read a leaf.
func GetResources(p Pe) (*ResourceDirectory, error) {
	dir := GetDataDirectory(p, DirectoryEntryResource)
	if dir.VirtualAddress == BadRVA || dir.Size == 0 {
		return nil, newErr(KindNull)
	}
	return GetResourceDirectoryAt(p, Rva(dir.VirtualAddress), Rva(dir.VirtualAddress))
}

// GetResourceDirectoryAt parses the resource directory level at rva.
// baseRVA is the start of the .rsrc section's top-level directory,
// needed because resource-name string offsets and data-entry offsets
// are always relative to it, not to rva.
func GetResourceDirectoryAt(p Pe, rva, baseRVA Rva) (*ResourceDirectory, error) {
	hdr, err := Derva[ImageResourceDirectory](p, rva)
	if err != nil {
		return nil, err
	}

	count := int(hdr.NumberOfNamedEntries) + int(hdr.NumberOfIDEntries)
	if count > maxResourceEntries {
		count = maxResourceEntries
	}

	entryRVA := rva + Rva(sizeOf[ImageResourceDirectory]())
	result := &ResourceDirectory{Header: *hdr}

	for i := 0; i < count; i++ {
		raw, err := Derva[ImageResourceDirectoryEntry](p, entryRVA)
		if err != nil {
			break
		}
		entryRVA += Rva(sizeOf[ImageResourceDirectoryEntry]())

		e := ResourceEntry{}
		if raw.Name&0x80000000 != 0 {
			e.IsNamed = true
			nameOffset := raw.Name & 0x7fffffff
			name, err := DervaWideString(p, baseRVA+Rva(nameOffset)+2)
			if err == nil {
				e.Name = name
			}
		} else {
			e.ID = raw.Name
		}

		if raw.OffsetToData&0x80000000 != 0 {
			e.IsDirectory = true
			e.SubdirRVA = baseRVA + Rva(raw.OffsetToData&0x7fffffff)
		} else {
			e.DataEntryRVA = baseRVA + Rva(raw.OffsetToData)
		}

		result.Entries = append(result.Entries, e)
	}

	return result, nil
}

// GetResourceData resolves a leaf ResourceEntry's DataEntryRVA to its
// IMAGE_RESOURCE_DATA_ENTRY header and the raw bytes it describes.
func GetResourceData(p Pe, dataEntryRVA Rva) (*ImageResourceDataEntry, []byte, error) {
	hdr, err := Derva[ImageResourceDataEntry](p, dataEntryRVA)
	if err != nil {
		return nil, nil, err
	}
	data, err := p.Slice(Rva(hdr.OffsetToData), int(hdr.Size), 1)
	if err != nil {
		return hdr, nil, err
	}
	return hdr, data[:hdr.Size], nil
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

// maxBoundImportDescriptors bounds the descriptor-array walk against a
// forged directory that never hits its all-zero terminator.
const maxBoundImportDescriptors = 1024

// ImageBoundImportDescriptor is IMAGE_BOUND_IMPORT_DESCRIPTOR: one
// entry of the bound-import table, naming a DLL this image was bound
// against at link time plus however many forwarder refs it carries.
type ImageBoundImportDescriptor struct {
	podTag
	TimeDateStamp               uint32
	OffsetModuleName            uint16
	NumberOfModuleForwarderRefs uint16
}

// ImageBoundForwardedRef is IMAGE_BOUND_FORWARDER_REF, one forwarded
// module reference following a bound-import descriptor.
type ImageBoundForwardedRef struct {
	podTag
	TimeDateStamp    uint32
	OffsetModuleName uint16
	Reserved         uint16
}

// BoundForwarderRef pairs one forwarded-ref header with the DLL name
// its OffsetModuleName resolves to.
type BoundForwarderRef struct {
	Header ImageBoundForwardedRef
	Name   string
}

// BoundImport is one resolved bound-import descriptor.
type BoundImport struct {
	Header        ImageBoundImportDescriptor
	Name          string
	ForwarderRefs []BoundForwarderRef
}

// GetBoundImports walks the bound-import directory
// (DirectoryEntryBoundImport), grounded on the teacher's
// parseBoundImportDirectory. Every OffsetModuleName in this table is
// relative to the start of the directory itself, not to the entry that
// names it, mirroring the teacher's "start" accumulator.
func GetBoundImports(p Pe) ([]BoundImport, error) {
	dir := GetDataDirectory(p, DirectoryEntryBoundImport)
	if dir.VirtualAddress == BadRVA || dir.Size == 0 {
		return nil, newErr(KindNull)
	}

	start := Rva(dir.VirtualAddress)
	rva := start
	var imports []BoundImport

	for i := 0; i < maxBoundImportDescriptors; i++ {
		desc, err := Derva[ImageBoundImportDescriptor](p, rva)
		if err != nil {
			return imports, nil
		}
		if *desc == (ImageBoundImportDescriptor{}) {
			break
		}
		rva += Rva(sizeOf[ImageBoundImportDescriptor]())

		var refs []BoundForwarderRef
		for j := uint16(0); j < desc.NumberOfModuleForwarderRefs; j++ {
			ref, err := Derva[ImageBoundForwardedRef](p, rva)
			if err != nil {
				break
			}
			rva += Rva(sizeOf[ImageBoundForwardedRef]())

			name, _ := DervaString(p, start+Rva(ref.OffsetModuleName))
			refs = append(refs, BoundForwarderRef{Header: *ref, Name: name})
		}

		name, _ := DervaString(p, start+Rva(desc.OffsetModuleName))
		imports = append(imports, BoundImport{Header: *desc, Name: name, ForwarderRefs: refs})
	}

	return imports, nil
}

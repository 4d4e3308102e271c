// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

// GFIDS table entry flags.
const (
	ImageGuardFlagFIDSuppressed    = 0x1
	ImageGuardFlagExportSuppressed = 0x2
)

// GuardFlags bits (IMAGE_LOAD_CONFIG_DIRECTORY.GuardFlags).
const (
	ImageGuardCfInstrumented                 = 0x00000100
	ImageGuardCfWInstrumented                = 0x00000200
	ImageGuardCfFunctionTablePresent         = 0x00000400
	ImageGuardSecurityCookieUnused           = 0x00000800
	ImageGuardProtectDelayLoadIAT            = 0x00001000
	ImageGuardDelayLoadIATInItsOwnSection    = 0x00002000
	ImageGuardCfExportSuppressionInfoPresent = 0x00004000
	ImageGuardCfEnableExportSuppression      = 0x00008000
	ImageGuardCfLongJumpTablePresent         = 0x00010000
)

const (
	ImageGuardCfFunctionTableSizeMask  = 0xF0000000
	ImageGuardCfFunctionTableSizeShift = 28
)

// ImageLoadConfigCodeIntegrity is the CI sub-structure embedded in both
// load-config directory versions.
type ImageLoadConfigCodeIntegrity struct {
	Flags         uint16
	Catalog       uint16
	CatalogOffset uint32
	Reserved      uint32
}

// ImageLoadConfigDirectory32 is IMAGE_LOAD_CONFIG_DIRECTORY32, truncated
// after GuardLongJumpTargetCount. The struct as shipped by the linker can
// be larger or smaller than sizeof(this); GetLoadConfig always reads
// sizeof(this) bytes at the directory RVA and does not consult Size, so
// the fields of a smaller directory past its Size are taken from
// whatever bytes follow it.
type ImageLoadConfigDirectory32 struct {
	podTag
	Size                           uint32
	TimeDateStamp                  uint32
	MajorVersion                   uint16
	MinorVersion                   uint16
	GlobalFlagsClear               uint32
	GlobalFlagsSet                 uint32
	CriticalSectionDefaultTimeout  uint32
	DeCommitFreeBlockThreshold     uint32
	DeCommitTotalFreeThreshold     uint32
	LockPrefixTable                uint32
	MaximumAllocationSize          uint32
	VirtualMemoryThreshold         uint32
	ProcessHeapFlags               uint32
	ProcessAffinityMask            uint32
	CSDVersion                     uint16
	DependentLoadFlags             uint16
	EditList                       uint32
	SecurityCookie                 uint32
	SEHandlerTable                 uint32
	SEHandlerCount                 uint32
	GuardCFCheckFunctionPointer    uint32
	GuardCFDispatchFunctionPointer uint32
	GuardCFFunctionTable           uint32
	GuardCFFunctionCount           uint32
	GuardFlags                     uint32
	CodeIntegrity                  ImageLoadConfigCodeIntegrity
	GuardAddressTakenIATEntryTable uint32
	GuardAddressTakenIATEntryCount uint32
	GuardLongJumpTargetTable       uint32
	GuardLongJumpTargetCount       uint32
}

// ImageLoadConfigDirectory64 is IMAGE_LOAD_CONFIG_DIRECTORY64, the
// equivalent x64 fields at their native width.
type ImageLoadConfigDirectory64 struct {
	podTag
	Size                           uint32
	TimeDateStamp                  uint32
	MajorVersion                   uint16
	MinorVersion                   uint16
	GlobalFlagsClear               uint32
	GlobalFlagsSet                 uint32
	CriticalSectionDefaultTimeout  uint32
	DeCommitFreeBlockThreshold     uint64
	DeCommitTotalFreeThreshold     uint64
	LockPrefixTable                uint64
	MaximumAllocationSize          uint64
	VirtualMemoryThreshold         uint64
	ProcessAffinityMask            uint64
	ProcessHeapFlags               uint32
	CSDVersion                     uint16
	DependentLoadFlags             uint16
	EditList                       uint64
	SecurityCookie                 uint64
	SEHandlerTable                 uint64
	SEHandlerCount                 uint64
	GuardCFCheckFunctionPointer    uint64
	GuardCFDispatchFunctionPointer uint64
	GuardCFFunctionTable           uint64
	GuardCFFunctionCount           uint64
	GuardFlags                     uint32
	CodeIntegrity                  ImageLoadConfigCodeIntegrity
	GuardAddressTakenIATEntryTable uint64
	GuardAddressTakenIATEntryCount uint64
	GuardLongJumpTargetTable       uint64
	GuardLongJumpTargetCount       uint64
}

// CFGFunction is one resolved entry of the Control Flow Guard function
// table (__guard_fids_table).
type CFGFunction struct {
	RVA   Rva
	Flags uint8 // only meaningful when GuardCFFunctionTable's stride > 4
}

// LoadConfig is the resolved load-config directory: the header's Size,
// GuardFlags and SecurityCookie (widened to 64 bits) plus every
// auxiliary table the GuardFlags/SEHandler fields point at.
type LoadConfig struct {
	Size           uint32
	GuardFlags     uint32
	SecurityCookie uint64
	SEHandlers     []Rva // x86 only
	CFGFunctions   []CFGFunction
	CFGIAT         []Rva
	CFGLongJump    []Rva
}

// GuardFlagNames returns the set bits of flags as their mnemonic names.
func GuardFlagNames(flags uint32) []string {
	names := []struct {
		bit  uint32
		name string
	}{
		{ImageGuardCfInstrumented, "Instrumented"},
		{ImageGuardCfWInstrumented, "WriteInstrumented"},
		{ImageGuardCfFunctionTablePresent, "TargetMetadata"},
		{ImageGuardSecurityCookieUnused, "SecurityCookieUnused"},
		{ImageGuardProtectDelayLoadIAT, "DelayLoadIAT"},
		{ImageGuardDelayLoadIATInItsOwnSection, "DelayLoadIATInItsOwnSection"},
		{ImageGuardCfExportSuppressionInfoPresent, "ExportSuppressionInfoPresent"},
		{ImageGuardCfEnableExportSuppression, "EnableExportSuppression"},
		{ImageGuardCfLongJumpTablePresent, "LongJumpTablePresent"},
	}
	var out []string
	for _, n := range names {
		if flags&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

// maxGuardTableEntries bounds every guard-table walk below against a
// forged *Count field.
const maxGuardTableEntries = 1 << 20

// GetLoadConfig parses the load-config directory (DirectoryEntryLoadConfig)
// and every guard table it references, grounded on the teacher's
// parseLoadConfigDirectory dispatch and its getSEHHandlers /
// getControlFlowGuardFunctions / getControlFlowGuardIAT /
// getLongJumpTargetTable readers.
func GetLoadConfig(p Pe) (*LoadConfig, error) {
	dir := GetDataDirectory(p, DirectoryEntryLoadConfig)
	if dir.VirtualAddress == BadRVA || dir.Size == 0 {
		return nil, newErr(KindNull)
	}

	lc := &LoadConfig{}
	var cfgTableVA, cfgCount, iatVA, iatCount, ljVA, ljCount, sehVA, sehCount uint64
	var stride uint64 = 4

	if p.Headers().Is64 {
		hdr, err := Derva[ImageLoadConfigDirectory64](p, Rva(dir.VirtualAddress))
		if err != nil {
			return nil, err
		}
		lc.Size = hdr.Size
		lc.GuardFlags = hdr.GuardFlags
		lc.SecurityCookie = hdr.SecurityCookie
		cfgTableVA, cfgCount = hdr.GuardCFFunctionTable, hdr.GuardCFFunctionCount
		iatVA, iatCount = hdr.GuardAddressTakenIATEntryTable, hdr.GuardAddressTakenIATEntryCount
		ljVA, ljCount = hdr.GuardLongJumpTargetTable, hdr.GuardLongJumpTargetCount
		if hdr.GuardFlags&ImageGuardCfFunctionTableSizeMask != 0 {
			stride += uint64(hdr.GuardFlags&ImageGuardCfFunctionTableSizeMask) >> ImageGuardCfFunctionTableSizeShift
		}
	} else {
		hdr, err := Derva[ImageLoadConfigDirectory32](p, Rva(dir.VirtualAddress))
		if err != nil {
			return nil, err
		}
		lc.Size = hdr.Size
		lc.GuardFlags = hdr.GuardFlags
		lc.SecurityCookie = uint64(hdr.SecurityCookie)
		sehVA, sehCount = uint64(hdr.SEHandlerTable), uint64(hdr.SEHandlerCount)
		cfgTableVA, cfgCount = uint64(hdr.GuardCFFunctionTable), uint64(hdr.GuardCFFunctionCount)
		iatVA, iatCount = uint64(hdr.GuardAddressTakenIATEntryTable), uint64(hdr.GuardAddressTakenIATEntryCount)
		ljVA, ljCount = uint64(hdr.GuardLongJumpTargetTable), uint64(hdr.GuardLongJumpTargetCount)
		if hdr.GuardFlags&ImageGuardCfFunctionTableSizeMask != 0 {
			stride += uint64(hdr.GuardFlags&ImageGuardCfFunctionTableSizeMask) >> ImageGuardCfFunctionTableSizeShift
		}
	}

	if sehCount > 0 {
		if rva, err := VaToRva(p, Va(sehVA)); err == nil {
			lc.SEHandlers = readRvaTable(p, rva, sehCount, 4)
		}
	}

	if cfgCount > 0 {
		if rva, err := VaToRva(p, Va(cfgTableVA)); err == nil {
			n := cfgCount
			if n > maxGuardTableEntries {
				n = maxGuardTableEntries
			}
			cur := rva
			for i := uint64(0); i < n; i++ {
				v, err := DervaUint32(p, cur)
				if err != nil {
					break
				}
				fn := CFGFunction{RVA: Rva(v)}
				if stride > 4 {
					if flag, err := DervaUint8(p, cur+4); err == nil {
						fn.Flags = flag
					}
				}
				lc.CFGFunctions = append(lc.CFGFunctions, fn)
				cur += Rva(stride)
			}
		}
	}

	if iatCount > 0 {
		if rva, err := VaToRva(p, Va(iatVA)); err == nil {
			lc.CFGIAT = readRvaTable(p, rva, iatCount, 4)
		}
	}

	if ljCount > 0 {
		if rva, err := VaToRva(p, Va(ljVA)); err == nil {
			lc.CFGLongJump = readRvaTable(p, rva, ljCount, 4)
		}
	}

	return lc, nil
}

// readRvaTable reads count 32-bit RVA values starting at rva, width
// bytes apart.
func readRvaTable(p Pe, rva Rva, count uint64, width uintptr) []Rva {
	if count > maxGuardTableEntries {
		count = maxGuardTableEntries
	}
	out := make([]Rva, 0, count)
	cur := rva
	for i := uint64(0); i < count; i++ {
		v, err := DervaUint32(p, cur)
		if err != nil {
			break
		}
		out = append(out, Rva(v))
		cur += Rva(width)
	}
	return out
}

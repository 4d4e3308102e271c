// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import "encoding/binary"

// ImageTLSDirectory32 is IMAGE_TLS_DIRECTORY32. Its address fields are
// VAs, not RVAs, so every read through it goes through Deref/Read
// rather than Derva.
type ImageTLSDirectory32 struct {
	podTag
	StartAddressOfRawData uint32
	EndAddressOfRawData   uint32
	AddressOfIndex        uint32
	AddressOfCallBacks    uint32
	SizeOfZeroFill        uint32
	Characteristics       uint32
}

// ImageTLSDirectory64 is IMAGE_TLS_DIRECTORY64.
type ImageTLSDirectory64 struct {
	podTag
	StartAddressOfRawData uint64
	EndAddressOfRawData   uint64
	AddressOfIndex        uint64
	AddressOfCallBacks    uint64
	SizeOfZeroFill        uint32
	Characteristics       uint32
}

// maxTLSCallbacks bounds the callback-array walk against a forged
// non-terminated array (mirrors the teacher's defensive loop-with-zero
// sentinel in tls.go, made an explicit cap since this package has no
// logging-on-anomaly channel at this layer).
const maxTLSCallbacks = 4096

// TLS is the resolved thread-local-storage directory: the raw header
// (already widened to the common 64-bit fields) plus every callback
// VA the loader would invoke before main, in array order.
type TLS struct {
	StartAddressOfRawData Va
	EndAddressOfRawData   Va
	AddressOfIndex        Va
	SizeOfZeroFill        uint32
	Characteristics       uint32
	Callbacks             []Va
}

// GetTLS parses the TLS directory (DirectoryEntryTLS), grounded on the
// teacher's tls.go 32/64 dispatch and null-terminated callback walk.
func GetTLS(p Pe) (*TLS, error) {
	dir := GetDataDirectory(p, DirectoryEntryTLS)
	if dir.VirtualAddress == BadRVA {
		return nil, newErr(KindNull)
	}

	var t TLS
	var callbacksVA Va

	if p.Headers().Is64 {
		hdr, err := Derva[ImageTLSDirectory64](p, Rva(dir.VirtualAddress))
		if err != nil {
			return nil, err
		}
		t = TLS{
			StartAddressOfRawData: Va(hdr.StartAddressOfRawData),
			EndAddressOfRawData:   Va(hdr.EndAddressOfRawData),
			AddressOfIndex:        Va(hdr.AddressOfIndex),
			SizeOfZeroFill:        hdr.SizeOfZeroFill,
			Characteristics:       hdr.Characteristics,
		}
		callbacksVA = Va(hdr.AddressOfCallBacks)
	} else {
		hdr, err := Derva[ImageTLSDirectory32](p, Rva(dir.VirtualAddress))
		if err != nil {
			return nil, err
		}
		t = TLS{
			StartAddressOfRawData: Va(hdr.StartAddressOfRawData),
			EndAddressOfRawData:   Va(hdr.EndAddressOfRawData),
			AddressOfIndex:        Va(hdr.AddressOfIndex),
			SizeOfZeroFill:        hdr.SizeOfZeroFill,
			Characteristics:       hdr.Characteristics,
		}
		callbacksVA = Va(hdr.AddressOfCallBacks)
	}

	if callbacksVA == BadVA {
		return &t, nil
	}

	width := uintptr(4)
	if p.Headers().Is64 {
		width = 8
	}
	for i := 0; i < maxTLSCallbacks; i++ {
		entryVA := Va(uint64(callbacksVA) + uint64(i)*uint64(width))
		b, err := p.Read(entryVA, int(width), 1)
		if err != nil {
			break
		}
		var v uint64
		if width == 8 {
			v = binary.LittleEndian.Uint64(b)
		} else {
			v = uint64(binary.LittleEndian.Uint32(b))
		}
		if v == 0 {
			break
		}
		t.Callbacks = append(t.Callbacks, Va(v))
	}

	return &t, nil
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/binlens/pescan"
)

var (
	wantDOSHeader bool
	wantNTHeader  bool
	wantSections  bool
	wantExport    bool
	wantImport    bool
	wantReloc     bool
	wantDebug     bool
	wantResource  bool
	wantSecurity  bool
	wantLoadCfg   bool
	wantBound     bool
	wantTLS       bool
	wantAll       bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Dump one or more directories of a PE image",
	Long:  "Dumps interesting structures of a Portable Executable file, one section at a time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDump(args[0])
	},
}

func init() {
	f := dumpCmd.Flags()
	f.BoolVar(&wantDOSHeader, "dosheader", false, "Dump DOS header")
	f.BoolVar(&wantNTHeader, "ntheader", false, "Dump NT/optional header and data directories")
	f.BoolVar(&wantSections, "sections", false, "Dump section headers")
	f.BoolVar(&wantExport, "export", false, "Dump export table")
	f.BoolVar(&wantImport, "import", false, "Dump import table")
	f.BoolVar(&wantReloc, "reloc", false, "Dump base relocations")
	f.BoolVar(&wantDebug, "debug", false, "Dump debug directory")
	f.BoolVar(&wantResource, "resource", false, "Dump the top-level resource directory")
	f.BoolVar(&wantSecurity, "security", false, "Dump the certificate table")
	f.BoolVar(&wantLoadCfg, "loadconfig", false, "Dump the load-config directory")
	f.BoolVar(&wantBound, "bound", false, "Dump bound imports")
	f.BoolVar(&wantTLS, "tls", false, "Dump the TLS directory")
	f.BoolVar(&wantAll, "all", false, "Dump everything")
}

func banner(title string) {
	fmt.Printf("\n\t------[ %s ]------\n\n", title)
}

func newTabwriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 1, 1, 3, ' ', tabwriter.AlignRight)
}

func humanizeTimestamp(ts uint32) string {
	return time.Unix(int64(ts), 0).UTC().String()
}

func hexDump(b []byte) {
	var a [16]byte
	n := (len(b) + 15) &^ 15
	for i := 0; i < n; i++ {
		if i%16 == 0 {
			fmt.Printf("%4d", i)
		}
		if i%8 == 0 {
			fmt.Print(" ")
		}
		if i < len(b) {
			fmt.Printf(" %02X", b[i])
		} else {
			fmt.Print("   ")
		}
		if i >= len(b) {
			a[i%16] = ' '
		} else if b[i] < 32 || b[i] > 126 {
			a[i%16] = '.'
		} else {
			a[i%16] = b[i]
		}
		if i%16 == 15 {
			fmt.Printf("  %s\n", string(a[:]))
		}
	}
}

func runDump(path string) error {
	pe, closer, err := openView(path)
	if err != nil {
		return err
	}
	defer closer()

	h := pe.Headers()

	if wantDOSHeader || wantAll {
		dumpDOSHeader(h)
	}
	if wantNTHeader || wantAll {
		dumpNTHeader(h)
	}
	if wantSections || wantAll {
		dumpSections(pe)
	}
	if wantExport || wantAll {
		dumpExport(pe)
	}
	if wantImport || wantAll {
		dumpImport(pe)
	}
	if wantReloc || wantAll {
		dumpReloc(pe)
	}
	if wantDebug || wantAll {
		dumpDebug(pe)
	}
	if wantResource || wantAll {
		dumpResource(pe)
	}
	if wantSecurity || wantAll {
		dumpSecurity(pe)
	}
	if wantLoadCfg || wantAll {
		dumpLoadConfig(pe)
	}
	if wantBound || wantAll {
		dumpBound(pe)
	}
	if wantTLS || wantAll {
		dumpTLS(pe)
	}

	return nil
}

func dumpDOSHeader(h *pescan.Headers) {
	d := h.DOS
	banner("DOS Header")
	w := newTabwriter()
	fmt.Fprintf(w, "Magic:\t 0x%x\n", d.Magic)
	fmt.Fprintf(w, "Bytes On Last Page Of File:\t 0x%x\n", d.BytesOnLastPageOfFile)
	fmt.Fprintf(w, "Pages In File:\t 0x%x\n", d.PagesInFile)
	fmt.Fprintf(w, "Relocations:\t 0x%x\n", d.Relocations)
	fmt.Fprintf(w, "Size Of Header:\t 0x%x\n", d.SizeOfHeader)
	fmt.Fprintf(w, "Checksum:\t 0x%x\n", d.Checksum)
	fmt.Fprintf(w, "Address Of New EXE Header:\t 0x%x\n", d.AddressOfNewEXEHeader)
	w.Flush()
}

func dumpNTHeader(h *pescan.Headers) {
	banner("File Header")
	w := newTabwriter()
	fmt.Fprintf(w, "Machine:\t 0x%x\n", h.File.Machine)
	fmt.Fprintf(w, "Number Of Sections:\t 0x%x\n", h.File.NumberOfSections)
	fmt.Fprintf(w, "TimeDateStamp:\t 0x%x (%s)\n", h.File.TimeDateStamp, humanizeTimestamp(h.File.TimeDateStamp))
	fmt.Fprintf(w, "Size Of Optional Header:\t 0x%x\n", h.File.SizeOfOptionalHeader)
	fmt.Fprintf(w, "Characteristics:\t 0x%x\n", h.File.Characteristics)
	w.Flush()

	banner("Optional Header")
	w = newTabwriter()
	if h.Is64 {
		oh := h.OptHdr64
		fmt.Fprintf(w, "Magic:\t 0x%x\n", oh.Magic)
		fmt.Fprintf(w, "Address Of Entry Point:\t 0x%x\n", oh.AddressOfEntryPoint)
		fmt.Fprintf(w, "Image Base:\t 0x%x\n", oh.ImageBase)
		fmt.Fprintf(w, "Section Alignment:\t 0x%x\n", oh.SectionAlignment)
		fmt.Fprintf(w, "File Alignment:\t 0x%x\n", oh.FileAlignment)
		fmt.Fprintf(w, "Size Of Image:\t 0x%x\n", oh.SizeOfImage)
		fmt.Fprintf(w, "Size Of Headers:\t 0x%x\n", oh.SizeOfHeaders)
		fmt.Fprintf(w, "Subsystem:\t 0x%x\n", oh.Subsystem)
		fmt.Fprintf(w, "Dll Characteristics:\t 0x%x\n", oh.DllCharacteristics)
		fmt.Fprintf(w, "Number Of RVA And Sizes:\t 0x%x\n", oh.NumberOfRvaAndSizes)
	} else {
		oh := h.OptHdr32
		fmt.Fprintf(w, "Magic:\t 0x%x\n", oh.Magic)
		fmt.Fprintf(w, "Address Of Entry Point:\t 0x%x\n", oh.AddressOfEntryPoint)
		fmt.Fprintf(w, "Image Base:\t 0x%x\n", oh.ImageBase)
		fmt.Fprintf(w, "Section Alignment:\t 0x%x\n", oh.SectionAlignment)
		fmt.Fprintf(w, "File Alignment:\t 0x%x\n", oh.FileAlignment)
		fmt.Fprintf(w, "Size Of Image:\t 0x%x\n", oh.SizeOfImage)
		fmt.Fprintf(w, "Size Of Headers:\t 0x%x\n", oh.SizeOfHeaders)
		fmt.Fprintf(w, "Subsystem:\t 0x%x\n", oh.Subsystem)
		fmt.Fprintf(w, "Dll Characteristics:\t 0x%x\n", oh.DllCharacteristics)
		fmt.Fprintf(w, "Number Of RVA And Sizes:\t 0x%x\n", oh.NumberOfRvaAndSizes)
	}
	w.Flush()

	banner("Data Directories")
	w = newTabwriter()
	fmt.Fprintln(w, "Directory\tRVA\tSize\t")
	for e := pescan.DirectoryEntry(0); e < pescan.NumberOfDirectoryEntries; e++ {
		dd := h.DataDirectory(e)
		fmt.Fprintf(w, "%s\t0x%08x\t0x%08x\t\n", e, dd.VirtualAddress, dd.Size)
	}
	w.Flush()
}

func dumpSections(p pescan.Pe) {
	secs, err := pescan.SectionHeaders(p)
	if err != nil {
		log.Warnf("reading section headers: %v", err)
		return
	}
	banner("Sections")
	w := newTabwriter()
	fmt.Fprintln(w, "Name\tVirtualSize\tVirtualAddress\tSizeOfRawData\tPointerToRawData\tCharacteristics\t")
	for _, s := range secs {
		fmt.Fprintf(w, "%s\t0x%x\t0x%x\t0x%x\t0x%x\t0x%x\t\n",
			s.NameString(), s.VirtualSize, s.VirtualAddress, s.SizeOfRawData,
			s.PointerToRawData, s.Characteristics)
	}
	w.Flush()
}

func dumpExport(p pescan.Pe) {
	exp, err := pescan.GetExports(p)
	if err != nil {
		log.Warnf("no export directory: %v", err)
		return
	}
	banner(fmt.Sprintf("Exports (%s)", exp.DLLName))
	w := newTabwriter()
	fmt.Fprintln(w, "Ordinal\tRVA\tName\tForwarder\t")
	for _, f := range exp.Functions {
		fmt.Fprintf(w, "%d\t0x%x\t%s\t%s\t\n", f.Ordinal, f.RVA, f.Name, f.Forwarder)
	}
	w.Flush()
}

func dumpImport(p pescan.Pe) {
	mods, err := pescan.GetImports(p)
	if err != nil {
		log.Warnf("no import directory: %v", err)
		return
	}
	banner("Imports")
	for _, m := range mods {
		fmt.Printf("\n%s\n", m.Name)
		w := newTabwriter()
		fmt.Fprintln(w, "Thunk RVA\tHint\tOrdinal\tName\t")
		for _, f := range m.Functions {
			name := f.Name
			if f.ByOrdinal {
				name = fmt.Sprintf("#%d", f.Ordinal)
			}
			fmt.Fprintf(w, "0x%x\t0x%x\t%v\t%s\t\n", f.ThunkRVA, f.Hint, f.ByOrdinal, name)
		}
		w.Flush()
	}
	if hash, err := pescan.ImpHash(mods); err == nil {
		fmt.Printf("\nImpHash: %s\n", hash)
	}
}

func dumpReloc(p pescan.Pe) {
	blocks, err := pescan.GetBaseRelocations(p)
	if err != nil {
		log.Warnf("no relocation directory: %v", err)
		return
	}
	banner("Base Relocations")
	for _, b := range blocks {
		fmt.Printf("\nPage RVA 0x%x (%d entries)\n", b.PageRVA, len(b.Relocations))
		w := newTabwriter()
		fmt.Fprintln(w, "RVA\tType\t")
		for _, r := range b.Relocations {
			fmt.Fprintf(w, "0x%x\t%s\t\n", r.RVA, pescan.RelocTypeName(r.Type))
		}
		w.Flush()
	}
}

func dumpDebug(p pescan.Pe) {
	entries, err := pescan.GetDebugDirectory(p)
	if err != nil {
		log.Warnf("no debug directory: %v", err)
		return
	}
	banner("Debug Directory")
	w := newTabwriter()
	fmt.Fprintln(w, "Type\tTimeDateStamp\tSizeOfData\tPointerToRawData\t")
	for _, e := range entries {
		fmt.Fprintf(w, "0x%x\t0x%x\t0x%x\t0x%x\t\n",
			e.Header.Type, e.Header.TimeDateStamp, e.Header.SizeOfData, e.Header.PointerToRawData)
		switch payload := e.Payload.(type) {
		case *pescan.CVInfoPDB70:
			fmt.Printf("  CodeView (PDB 7.0): %s age=%d %s\n", payload.Signature, payload.Age, payload.PDBFileName)
		case *pescan.CVInfoPDB20:
			fmt.Printf("  CodeView (PDB 2.0): age=%d %s\n", payload.Age, payload.PDBFileName)
		case *pescan.POGO:
			fmt.Printf("  POGO: %d entries\n", len(payload.Entries))
		}
	}
	w.Flush()
}

func dumpResource(p pescan.Pe) {
	root, err := pescan.GetResources(p)
	if err != nil {
		log.Warnf("no resource directory: %v", err)
		return
	}
	banner("Resources (top level)")
	w := newTabwriter()
	fmt.Fprintln(w, "ID/Name\tIsDirectory\tRVA\t")
	for _, e := range root.Entries {
		id := fmt.Sprintf("%d", e.ID)
		if e.IsNamed {
			id = e.Name
		}
		target := e.SubdirRVA
		if !e.IsDirectory {
			target = e.DataEntryRVA
		}
		fmt.Fprintf(w, "%s\t%v\t0x%x\t\n", id, e.IsDirectory, target)
	}
	w.Flush()

	for _, e := range root.Entries {
		if e.IsDirectory {
			continue
		}
		data, raw, err := pescan.GetResourceData(p, e.DataEntryRVA)
		if err != nil {
			continue
		}
		fmt.Printf("\n  ---resource data, %d bytes, codepage %d---\n", data.Size, data.CodePage)
		if len(raw) > 256 {
			raw = raw[:256]
		}
		hexDump(raw)
	}
}

func dumpSecurity(p pescan.Pe) {
	certs, err := pescan.GetCertificates(p, x509.NewCertPool())
	if err != nil {
		log.Warnf("no certificate table: %v", err)
		return
	}
	banner("Security Directory")
	for i, c := range certs {
		fmt.Printf("\nCertificate #%d: signed=%v valid=%v\n", i, c.Signed, c.Valid)
		w := newTabwriter()
		fmt.Fprintf(w, "Issuer:\t %s\n", c.Info.Issuer)
		fmt.Fprintf(w, "Subject:\t %s\n", c.Info.Subject)
		fmt.Fprintf(w, "Serial Number:\t %s\n", c.Info.SerialNumber)
		fmt.Fprintf(w, "Not Before:\t %s\n", c.Info.NotBefore)
		fmt.Fprintf(w, "Not After:\t %s\n", c.Info.NotAfter)
		w.Flush()
	}
	if hash, err := pescan.Authentihash(p); err == nil {
		fmt.Printf("\nAuthentihash (SHA-256): %x\n", hash)
	}
}

func dumpLoadConfig(p pescan.Pe) {
	lc, err := pescan.GetLoadConfig(p)
	if err != nil {
		log.Warnf("no load-config directory: %v", err)
		return
	}
	banner("Load Config Directory")
	w := newTabwriter()
	fmt.Fprintf(w, "Size:\t 0x%x\n", lc.Size)
	fmt.Fprintf(w, "GuardFlags:\t 0x%x (%s)\n", lc.GuardFlags, strings.Join(pescan.GuardFlagNames(lc.GuardFlags), " | "))
	fmt.Fprintf(w, "SecurityCookie:\t 0x%x\n", lc.SecurityCookie)
	fmt.Fprintf(w, "SEHandlers:\t %d\n", len(lc.SEHandlers))
	fmt.Fprintf(w, "CFGFunctions:\t %d\n", len(lc.CFGFunctions))
	fmt.Fprintf(w, "CFGIAT:\t %d\n", len(lc.CFGIAT))
	fmt.Fprintf(w, "CFGLongJump:\t %d\n", len(lc.CFGLongJump))
	w.Flush()
}

func dumpBound(p pescan.Pe) {
	imports, err := pescan.GetBoundImports(p)
	if err != nil {
		log.Warnf("no bound-import directory: %v", err)
		return
	}
	banner("Bound Imports")
	w := newTabwriter()
	fmt.Fprintln(w, "Name\tTimeDateStamp\tForwarderRefs\t")
	for _, bi := range imports {
		fmt.Fprintf(w, "%s\t0x%x\t%d\t\n", bi.Name, bi.Header.TimeDateStamp, len(bi.ForwarderRefs))
	}
	w.Flush()
}

func dumpTLS(p pescan.Pe) {
	tls, err := pescan.GetTLS(p)
	if err != nil {
		log.Warnf("no TLS directory: %v", err)
		return
	}
	banner("TLS Directory")
	w := newTabwriter()
	fmt.Fprintf(w, "StartAddressOfRawData:\t 0x%x\n", tls.StartAddressOfRawData)
	fmt.Fprintf(w, "EndAddressOfRawData:\t 0x%x\n", tls.EndAddressOfRawData)
	fmt.Fprintf(w, "AddressOfIndex:\t 0x%x\n", tls.AddressOfIndex)
	fmt.Fprintf(w, "SizeOfZeroFill:\t 0x%x\n", tls.SizeOfZeroFill)
	fmt.Fprintf(w, "Characteristics:\t 0x%x\n", tls.Characteristics)
	fmt.Fprintf(w, "Callbacks:\t %d\n", len(tls.Callbacks))
	w.Flush()
	for _, cb := range tls.Callbacks {
		fmt.Printf("  0x%x\n", cb)
	}
}

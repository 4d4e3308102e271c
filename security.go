// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"
	"encoding/hex"
	"reflect"
	"sort"

	"go.mozilla.org/pkcs7"
)

// WIN_CERTIFICATE Revision values.
const (
	WinCertRevision1_0 = 0x0100
	WinCertRevision2_0 = 0x0200
)

// WIN_CERTIFICATE CertificateType values.
const (
	WinCertTypeX509           = 0x0001
	WinCertTypePKCSSignedData = 0x0002
	WinCertTypeReserved1      = 0x0003
	WinCertTypeTSStackSigned  = 0x0004
)

// maxCertificateEntries bounds the dual/multi-signing walk against a
// forged attribute-certificate table that never converges.
const maxCertificateEntries = 16

// WinCertificate is WIN_CERTIFICATE: the header preceding each
// attribute certificate entry in the security directory. Unlike every
// other directory, the Certificate Table's VirtualAddress is a raw
// file offset, not an RVA — it is never loaded into memory as part of
// the image.
type WinCertificate struct {
	podTag
	Length          uint32
	Revision        uint16
	CertificateType uint16
}

// CertInfo is a flattened view of the fields of an X.509 certificate
// callers most often want, lifted out of the pkcs7 signer chain.
type CertInfo struct {
	Issuer             string
	Subject            string
	NotBefore          string
	NotAfter           string
	SerialNumber       string
	SignatureAlgorithm x509.SignatureAlgorithm
	PublicKeyAlgorithm x509.PublicKeyAlgorithm
}

// Certificate is one parsed attribute-certificate entry of the
// security directory.
type Certificate struct {
	Header  WinCertificate
	Raw     []byte
	Info    CertInfo
	Signed  bool
	Valid   bool
	Content *pkcs7.PKCS7
}

// GetCertificates parses the security directory (DirectoryEntrySecurity)
// into its attribute certificate entries, a PE file can be dual-signed
// so the directory is itself a small table. verifyChain, if non-nil, is
// used to validate each entry's signer chain; pass nil to skip chain
// verification and only parse.
func GetCertificates(p Pe, verifyChain *x509.CertPool) ([]Certificate, error) {
	dir := GetDataDirectory(p, DirectoryEntrySecurity)
	if dir.VirtualAddress == BadRVA || dir.Size == 0 {
		return nil, newErr(KindNull)
	}

	image := p.Image()
	offset := uint64(dir.VirtualAddress)
	end := offset + uint64(dir.Size)
	if end > uint64(len(image)) {
		return nil, newErr(KindOOB)
	}

	hdrSize := uint64(sizeOf[WinCertificate]())
	var certs []Certificate
	for i := 0; i < maxCertificateEntries && offset < end; i++ {
		if offset+hdrSize > uint64(len(image)) {
			break
		}
		var hdr WinCertificate
		hdr.Length = binary.LittleEndian.Uint32(image[offset:])
		hdr.Revision = binary.LittleEndian.Uint16(image[offset+4:])
		hdr.CertificateType = binary.LittleEndian.Uint16(image[offset+6:])

		if hdr.Length < uint32(hdrSize) || offset+uint64(hdr.Length) > uint64(len(image)) {
			return certs, newErr(KindOOB)
		}

		raw := image[offset+hdrSize : offset+uint64(hdr.Length)]
		cert := Certificate{Header: hdr, Raw: raw}

		pkcs, err := pkcs7.Parse(raw)
		if err == nil {
			cert.Signed = true
			fillCertInfo(&cert, pkcs)
			if verifyChain != nil && pkcs.VerifyWithChain(verifyChain) == nil {
				cert.Valid = true
			}
		}
		certs = append(certs, cert)

		next := offset + uint64(hdr.Length)
		offset = alignUp(next, 8) // next entry is 8-byte aligned
	}

	return certs, nil
}

func fillCertInfo(cert *Certificate, pkcs *pkcs7.PKCS7) {
	cert.Content = pkcs
	if len(pkcs.Signers) == 0 {
		return
	}
	serial := pkcs.Signers[0].IssuerAndSerialNumber.SerialNumber
	for _, x := range pkcs.Certificates {
		if !reflect.DeepEqual(x.SerialNumber, serial) {
			continue
		}
		info := CertInfo{
			SerialNumber:       hex.EncodeToString(x.SerialNumber.Bytes()),
			SignatureAlgorithm: x.SignatureAlgorithm,
			PublicKeyAlgorithm: x.PublicKeyAlgorithm,
			NotBefore:          x.NotBefore.Format("2006-01-02T15:04:05Z07:00"),
			NotAfter:           x.NotAfter.Format("2006-01-02T15:04:05Z07:00"),
		}
		if len(x.Issuer.Country) > 0 {
			info.Issuer = x.Issuer.Country[0]
		}
		if x.Issuer.CommonName != "" {
			if info.Issuer != "" {
				info.Issuer += ", "
			}
			info.Issuer += x.Issuer.CommonName
		}
		if len(x.Subject.Country) > 0 {
			info.Subject = x.Subject.Country[0]
		}
		if x.Subject.CommonName != "" {
			if info.Subject != "" {
				info.Subject += ", "
			}
			info.Subject += x.Subject.CommonName
		}
		cert.Info = info
		break
	}
}

// relRange is a byte range to exclude/include while computing a digest
// over the image, used by excludedRanges below.
type relRange struct {
	Start, Length uint32
}

type byStart []relRange

func (s byStart) Len() int           { return len(s) }
func (s byStart) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s byStart) Less(i, j int) bool { return s[i].Start < s[j].Start }

// Authentihash computes the SHA-256 Authenticode digest of the image:
// the whole file with the checksum field, the Certificate Table data
// directory entry, and the Certificate Table itself excluded, per the
// Authenticode spec. It only makes sense over a FileView (the
// Authenticode digest is defined over the on-disk layout).
func Authentihash(p Pe) ([]byte, error) {
	sums, err := AuthentihashMulti(p, crypto.SHA256.New())
	if err != nil {
		return nil, err
	}
	return sums[0], nil
}

// AuthentihashMulti computes the Authenticode digest using each of the
// given hash.Hash instances in one pass over the image.
func AuthentihashMulti(p Pe, hashers ...hashWriter) ([][]byte, error) {
	excluded, fileSize, err := excludedRanges(p)
	if err != nil {
		return nil, err
	}

	image := p.Image()
	start := uint32(0)
	for _, r := range excluded {
		if r.Start > start {
			for _, h := range hashers {
				h.Write(image[start:r.Start])
			}
		}
		start = r.Start + r.Length
	}
	if uint64(start) < fileSize {
		for _, h := range hashers {
			h.Write(image[start:fileSize])
		}
	}

	sums := make([][]byte, len(hashers))
	for i, h := range hashers {
		sums[i] = h.Sum(nil)
	}
	return sums, nil
}

// hashWriter is the subset of hash.Hash AuthentihashMulti needs,
// avoiding an import of "hash" for just this.
type hashWriter interface {
	Write(p []byte) (int, error)
	Sum(b []byte) []byte
}

// excludedRanges computes the checksum field, the certificate-table
// data-directory slot, and the certificate table's own byte ranges, in
// file-offset order, mirroring the teacher's parseLocations.
func excludedRanges(p Pe) ([]relRange, uint64, error) {
	h := p.Headers()
	fileSize := uint64(len(p.Image()))

	var optOff, checksumOffset, certDirOffset, address, size uint32
	optOff = uint32(h.DOS.AddressOfNewEXEHeader) + 4 + uint32(sizeOf[FileHeader]())
	if h.Is64 {
		checksumOffset = optOff + 64
		certDirOffset = optOff + 144
		dir := h.DataDirectory(DirectoryEntrySecurity)
		address, size = dir.VirtualAddress, dir.Size
	} else {
		checksumOffset = optOff + 64
		certDirOffset = optOff + 128
		dir := h.DataDirectory(DirectoryEntrySecurity)
		address, size = dir.VirtualAddress, dir.Size
	}

	ranges := []relRange{{Start: checksumOffset, Length: 4}, {Start: certDirOffset, Length: 8}}
	if size > 0 && uint64(address)+uint64(size) <= fileSize {
		ranges = append(ranges, relRange{Start: address, Length: size})
	}
	sort.Sort(byStart(ranges))
	return ranges, fileSize, nil
}

// SpcIndirectDataContent is the ASN.1 payload of an Authenticode
// signature's SpcIndirectDataContent, carrying the digest the signer
// actually signed over.
type SpcIndirectDataContent struct {
	Data          spcAttributeTypeAndOptionalValue
	MessageDigest digestInfo
}

type spcAttributeTypeAndOptionalValue struct {
	Type  asn1.ObjectIdentifier
	Value asn1.RawValue `asn1:"optional"`
}

type digestInfo struct {
	DigestAlgorithm pkix.AlgorithmIdentifier
	Digest          []byte
}

// AuthenticodeContent is the decoded signed-digest and its algorithm,
// ready to compare against an independently computed Authentihash.
type AuthenticodeContent struct {
	HashFunction crypto.Hash
	HashResult   []byte
}

// ParseAuthenticodeContent decodes the ASN.1 SpcIndirectDataContent
// carried as a Certificate's pkcs7.PKCS7.Content.
func ParseAuthenticodeContent(content []byte) (AuthenticodeContent, error) {
	var sidc SpcIndirectDataContent
	rest, err := asn1.Unmarshal(content, &sidc.Data)
	if err != nil {
		return AuthenticodeContent{}, err
	}
	if _, err := asn1.Unmarshal(rest, &sidc.MessageDigest); err != nil {
		return AuthenticodeContent{}, err
	}
	hashFn, err := hashAlgorithmFromOID(sidc.MessageDigest.DigestAlgorithm)
	if err != nil {
		return AuthenticodeContent{}, err
	}
	return AuthenticodeContent{HashFunction: hashFn, HashResult: sidc.MessageDigest.Digest}, nil
}

func hashAlgorithmFromOID(id pkix.AlgorithmIdentifier) (crypto.Hash, error) {
	oid := id.Algorithm
	switch {
	case oid.Equal(pkcs7.OIDDigestAlgorithmSHA1):
		return crypto.SHA1, nil
	case oid.Equal(pkcs7.OIDDigestAlgorithmSHA256):
		return crypto.SHA256, nil
	case oid.Equal(pkcs7.OIDDigestAlgorithmSHA384):
		return crypto.SHA384, nil
	case oid.Equal(pkcs7.OIDDigestAlgorithmSHA512):
		return crypto.SHA512, nil
	}
	return crypto.Hash(0), pkcs7.ErrUnsupportedAlgorithm
}

// VerifySignature reports whether cert's signed digest matches an
// independently computed Authentihash of p.
func VerifySignature(p Pe, cert *Certificate) (bool, error) {
	if cert.Content == nil {
		return false, newErr(KindInvalid)
	}
	authenticode, err := ParseAuthenticodeContent(cert.Content.Content)
	if err != nil {
		return false, err
	}
	sums, err := AuthentihashMulti(p, authenticode.HashFunction.New())
	if err != nil {
		return false, err
	}
	return bytes.Equal(sums[0], authenticode.HashResult), nil
}

// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pescan

import (
	"bytes"

	"golang.org/x/text/encoding/unicode"
)

// Strn splits buf at its first NUL byte, analogous to the strn* family
// of C string functions (pelite::util::strn). If buf contains no NUL,
// the whole slice is returned. It never allocates.
func Strn(buf []byte) []byte {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return buf[:i]
	}
	return buf
}

// WStrn splits a UTF-16 buffer (as a byte slice, two bytes per code
// unit) at its first NUL code unit, analogous to the wcsn* family of C
// string functions (pelite::util::wstrn).
func WStrn(buf []byte) []byte {
	for i := 0; i+1 < len(buf); i += 2 {
		if buf[i] == 0 && buf[i+1] == 0 {
			return buf[:i]
		}
	}
	return buf
}

// decodeUTF16LE decodes a UTF-16LE byte slice (already split at its
// terminator by WStrn) into a Go string.
func decodeUTF16LE(b []byte) (string, error) {
	if len(b) == 0 {
		return "", nil
	}
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	s, err := decoder.Bytes(b)
	if err != nil {
		return "", wrapErr(KindCStr, 0, err)
	}
	return string(s), nil
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package textenc holds the byte/string codecs shared by the binary format
// drivers: UTF-16LE for modern streams and the legacy single-byte or
// double-byte codepages (Windows-1252, EUC-KR) older documents carry.
// All decoders are lossy; malformed input never fails, it degrades.
package textenc

import (
	"encoding/binary"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
)

// DecodeUTF16LE decodes b as UTF-16 little-endian, dropping a trailing odd
// byte and replacing invalid surrogates.
func DecodeUTF16LE(b []byte) string {
	n := len(b) / 2
	if n == 0 {
		return ""
	}
	units := make([]uint16, n)
	for i := 0; i < n; i++ {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units))
}

// EncodeUTF16LE encodes s as UTF-16 little-endian.
func EncodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

// DecodeWindows1252 decodes b with the Windows-1252 codepage used by
// "compressed" (1-byte) Word piece runs.
func DecodeWindows1252(b []byte) string {
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		// charmap decoding is total; kept for interface symmetry
		return string(b)
	}
	return string(out)
}

// DecodeEUCKR decodes b with the EUC-KR (cp949) codepage, the regional
// fallback for legacy spreadsheet strings. Undecodable bytes map to the
// replacement character.
func DecodeEUCKR(b []byte) string {
	out, err := korean.EUCKR.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(out)
}

// EncodeEUCKR encodes s with the EUC-KR (cp949) codepage. Characters the
// codepage cannot represent make the encoding fail; callers treat a nil
// return as "no pattern in this encoding".
func EncodeEUCKR(s string) []byte {
	out, err := korean.EUCKR.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil
	}
	return out
}

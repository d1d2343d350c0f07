// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package hwp

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"eclipso/internal/cfb"
	"eclipso/internal/spanmap"
	"eclipso/internal/textenc"
	"eclipso/internal/zlibseg"
)

// jpegMagic marks BinData pictures the driver probes for metadata.
var jpegMagic = []byte{0xFF, 0xD8, 0xFF}

// ExtractBinDataText pulls whatever text an embedded object blob exposes:
// streams of a nested compound file, plus any deflate blocks found at byte
// offsets inside the blob.
func ExtractBinDataText(raw []byte, stride, limit int) []string {
	var out []string

	if cfb.IsCompoundFile(raw) {
		if sub, err := cfb.Open(raw); err == nil {
			for _, e := range sub.Streams() {
				data, err := sub.ReadEntry(&e)
				if err != nil {
					continue
				}
				if txt := decodeAny(data); txt != "" {
					out = append(out, txt)
				}
			}
		}
	}

	for _, cand := range zlibseg.Scan(raw, stride, limit) {
		dec, _, ok := zlibseg.TryDecompress(raw, cand.Offset, cand.Kind)
		if !ok {
			continue
		}
		if txt := decodeAny(dec); txt != "" {
			out = append(out, txt)
		}
	}
	return out
}

// decodeAny decodes data with the first encoding that yields mostly
// printable text: UTF-8, UTF-16LE, then EUC-KR. UTF-8 goes first; pairing
// single-byte text into UTF-16 code units produces CJK runes that still
// count as printable. Embedded NUL bytes mark the data as UTF-16 even
// though they are valid UTF-8.
func decodeAny(data []byte) string {
	if utf8.Valid(data) && bytes.IndexByte(data, 0) < 0 {
		if txt := string(data); printable(txt) {
			return txt
		}
	}
	if txt := textenc.DecodeUTF16LE(data); printable(txt) {
		return txt
	}
	if txt := textenc.DecodeEUCKR(data); printable(txt) {
		return txt
	}
	return ""
}

// printable reports whether at least half of s is ordinary text.
func printable(s string) bool {
	if s == "" {
		return false
	}
	good, total := 0, 0
	for _, r := range s {
		total++
		if r == '\n' || r == '\r' || r == '\t' || (r >= 0x20 && r != 0xFFFD) {
			good++
		}
	}
	return good*2 >= total
}

// ReplaceInBinData substitutes every occurrence of target in raw across the
// encodings object blobs use. UTF-16LE hits get the dash-preserving mask;
// single/multi-byte hits are starred outright since their byte lengths must
// match the pattern exactly. Returns the rewritten blob and the hit count.
func ReplaceInBinData(raw []byte, target string) ([]byte, int) {
	if target == "" {
		return raw, 0
	}
	total := 0
	out := raw

	type enc struct {
		pat []byte
		rep []byte
	}
	utf16Pat := textenc.EncodeUTF16LE(target)
	encs := []enc{
		{pat: utf16Pat, rep: spanmap.EncodeMask(spanmap.Mask(target), 2)},
		{pat: []byte(target), rep: bytes.Repeat([]byte{'*'}, len(target))},
	}
	if krPat := textenc.EncodeEUCKR(target); krPat != nil && !bytes.Equal(krPat, []byte(target)) {
		encs = append(encs, enc{pat: krPat, rep: bytes.Repeat([]byte{'*'}, len(krPat))})
	}

	for _, e := range encs {
		if len(e.pat) == 0 || len(e.pat) != len(e.rep) {
			continue
		}
		n := bytes.Count(out, e.pat)
		if n == 0 {
			continue
		}
		out = bytes.ReplaceAll(out, e.pat, e.rep)
		total += n
	}
	return out, total
}

// RedactBinData rewrites an object blob: plain-text substitution first,
// then each locatable deflate block is inflated, substituted, recompressed
// and patched back, only when the result still fits the block's extent.
func RedactBinData(raw []byte, targets []string, stride, limit int) ([]byte, int) {
	if len(targets) == 0 {
		return raw, 0
	}
	total := 0
	out := raw
	for _, t := range targets {
		var n int
		out, n = ReplaceInBinData(out, t)
		total += n
	}

	for _, cand := range zlibseg.Scan(out, stride, limit) {
		dec, consumed, ok := zlibseg.TryDecompress(out, cand.Offset, cand.Kind)
		if !ok {
			continue
		}
		hits := 0
		newDec := dec
		for _, t := range targets {
			var n int
			newDec, n = ReplaceInBinData(newDec, t)
			hits += n
		}
		if hits == 0 {
			continue
		}
		newComp, err := zlibseg.Recompress(cand.Kind, newDec)
		if err != nil {
			continue
		}
		patched := zlibseg.PatchSegment(out, cand.Offset, consumed, newComp)
		if patched == nil {
			continue
		}
		out = patched
		total += hits
	}
	return out, total
}

// BinDataIDFromName extracts the numeric BinData id out of a stream name
// like "BIN0003.OLE". Zero means no id.
func BinDataIDFromName(name string) uint32 {
	var digits strings.Builder
	for _, r := range name {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	var id uint32
	for _, r := range digits.String() {
		id = id*10 + uint32(r-'0')
	}
	return id
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package spanmap converts logical character spans into physical byte-range
// edit targets, and produces the length-preserving masks written into them.
//
// A segment is one contiguous run of logical text with a known byte offset
// and encoding width (1 byte for legacy codepages, 2 for UTF-16LE). A match
// may cross several segments; it is split into one target per segment it
// overlaps, so the physical writes stay inside each segment's extent.
package spanmap

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

// Segment is one contiguous run of logical text at a fixed physical location.
type Segment struct {
	// LogicalStart and LogicalEnd bound the segment in logical units (half-open)
	LogicalStart int
	LogicalEnd   int

	// ByteOffset is the segment's physical offset in its owning stream
	ByteOffset int64

	// Width is the bytes per logical unit: 1 or 2
	Width int
}

// Span is a half-open logical match range.
type Span struct {
	Start int
	End   int
}

// Target is one physical edit derived from a span overlapping a segment.
type Target struct {
	// ByteStart is the absolute byte offset of the edit in the owning stream
	ByteStart int64

	// ByteLen is the number of bytes to overwrite
	ByteLen int

	// Width is the encoding width of the underlying segment
	Width int

	// LogicalStart and LogicalEnd bound the covered logical sub-range
	LogicalStart int
	LogicalEnd   int
}

// MapSpans translates logical spans into physical targets. Each span yields
// one target per overlapping segment; spans that touch no segment produce
// nothing. Overlapping input spans are allowed and simply produce
// overlapping targets.
func MapSpans(segments []Segment, spans []Span) []Target {
	var targets []Target
	for _, sp := range spans {
		if sp.End <= sp.Start {
			continue
		}
		for _, seg := range segments {
			if sp.Start >= seg.LogicalEnd || sp.End <= seg.LogicalStart {
				continue
			}
			lo := sp.Start
			if lo < seg.LogicalStart {
				lo = seg.LogicalStart
			}
			hi := sp.End
			if hi > seg.LogicalEnd {
				hi = seg.LogicalEnd
			}
			if lo >= hi {
				continue
			}
			width := seg.Width
			if width != 1 {
				width = 2
			}
			targets = append(targets, Target{
				ByteStart:    seg.ByteOffset + int64(lo-seg.LogicalStart)*int64(width),
				ByteLen:      (hi - lo) * width,
				Width:        width,
				LogicalStart: lo,
				LogicalEnd:   hi,
			})
		}
	}
	return targets
}

// MaskGlyph is the default replacement character.
const MaskGlyph = '*'

// Mask builds the same-length mask for text: every character becomes the
// mask glyph except '-', which is kept so dash-separated numbers stay
// visually parseable.
func Mask(text string) string {
	return MaskWith(text, MaskGlyph)
}

// MaskWith is Mask with a caller-chosen glyph.
func MaskWith(text string, glyph rune) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '-' {
			b.WriteRune('-')
		} else {
			b.WriteRune(glyph)
		}
	}
	return b.String()
}

// EncodeMask encodes a mask string at the given segment width. Width 2 emits
// UTF-16LE; width 1 emits one byte per character, substituting the glyph for
// anything outside the single-byte range.
func EncodeMask(mask string, width int) []byte {
	if width == 1 {
		out := make([]byte, 0, len(mask))
		for _, r := range mask {
			if r < 0x100 {
				out = append(out, byte(r))
			} else {
				out = append(out, MaskGlyph)
			}
		}
		return out
	}
	units := utf16.Encode([]rune(mask))
	out := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[i*2:], u)
	}
	return out
}

// MaskBytes writes a mask for the target's logical sub-range of text into
// buf at the target's byte range. text is the full logical text the spans
// were computed against. Writes are clipped to buf; the mask is truncated or
// glyph-padded to exactly the target's byte length.
func MaskBytes(buf []byte, t Target, text []rune) {
	if t.ByteStart < 0 || int(t.ByteStart) >= len(buf) || t.ByteLen <= 0 {
		return
	}
	lo, hi := t.LogicalStart, t.LogicalEnd
	if lo < 0 {
		lo = 0
	}
	if hi > len(text) {
		hi = len(text)
	}
	var mask string
	if lo < hi {
		mask = Mask(string(text[lo:hi]))
	}
	enc := EncodeMask(mask, t.Width)

	want := t.ByteLen
	if int(t.ByteStart)+want > len(buf) {
		want = len(buf) - int(t.ByteStart)
	}
	for len(enc) < want {
		if t.Width == 2 {
			enc = append(enc, MaskGlyph, 0x00)
		} else {
			enc = append(enc, MaskGlyph)
		}
	}
	copy(buf[t.ByteStart:int(t.ByteStart)+want], enc[:want])
}

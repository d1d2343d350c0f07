// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package normalize prepares extracted document text for span detection and
// maps detected spans back to offsets in the raw extracted text.
//
// All offsets are rune offsets. The index map is not total: positions
// created by compatibility expansion or whitespace collapsing point at the
// raw rune that produced them, and callers fall back to a same-length span
// when a position is missing.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"eclipso/internal/spanmap"
)

// isZeroWidth reports the zero-width characters stripped before matching.
func isZeroWidth(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\ufeff':
		return true
	}
	return false
}

// Normalize returns the normalized form of raw.
func Normalize(raw string) string {
	s, _ := NormalizeWithIndex(raw)
	return s
}

// NormalizeWithIndex normalizes raw and returns, for each rune offset of the
// normalized text, the rune offset in raw it came from.
//
// Normalization: NFKC per rune, zero-width characters dropped, CR and CRLF
// folded to LF, runs of spaces and tabs collapsed to a single space.
func NormalizeWithIndex(raw string) (string, map[int]int) {
	in := []rune(raw)
	var out []rune
	index := make(map[int]int, len(in))

	pendingSpace := -1 // raw index of the first space in a pending run
	for i := 0; i < len(in); i++ {
		r := in[i]
		if isZeroWidth(r) {
			continue
		}
		if r == '\r' {
			if i+1 < len(in) && in[i+1] == '\n' {
				continue // the LF itself is emitted next iteration
			}
			r = '\n'
		}
		if r == ' ' || r == '\t' {
			if pendingSpace < 0 {
				pendingSpace = i
			}
			continue
		}
		if pendingSpace >= 0 {
			index[len(out)] = pendingSpace
			out = append(out, ' ')
			pendingSpace = -1
		}
		if r == '\n' {
			index[len(out)] = i
			out = append(out, '\n')
			continue
		}
		for _, nr := range norm.NFKC.String(string(r)) {
			index[len(out)] = i
			out = append(out, nr)
		}
	}
	return string(out), index
}

// MapSpanToRaw translates a normalized-text span to a raw-text span through
// the index map. Missing positions fall back to a same-length span anchored
// at the nearest mapped start.
func MapSpanToRaw(span spanmap.Span, index map[int]int) (spanmap.Span, bool) {
	start, okStart := index[span.Start]
	if !okStart {
		return spanmap.Span{}, false
	}
	end, okEnd := index[span.End-1]
	if !okEnd || end+1 <= start {
		return spanmap.Span{Start: start, End: start + (span.End - span.Start)}, true
	}
	return spanmap.Span{Start: start, End: end + 1}, true
}

// SplitParagraphSpans splits any span whose text crosses a paragraph
// boundary (two or more consecutive newlines) into one sub-span per
// paragraph fragment, dropping whitespace-only fragments. text is the text
// the spans index into.
func SplitParagraphSpans(text string, spans []spanmap.Span) []spanmap.Span {
	runes := []rune(text)
	var out []spanmap.Span
	for _, sp := range spans {
		if sp.Start < 0 || sp.End > len(runes) || sp.End <= sp.Start {
			continue
		}
		snippet := runes[sp.Start:sp.End]
		if !crossesParagraph(snippet) {
			out = append(out, sp)
			continue
		}
		cur := sp.Start
		i := 0
		for i < len(snippet) {
			// consume a fragment up to the next paragraph boundary
			j := i
			for j < len(snippet) && !isBoundaryAt(snippet, j) {
				j++
			}
			frag := snippet[i:j]
			if strings.TrimSpace(string(frag)) != "" {
				out = append(out, spanmap.Span{Start: cur + i, End: cur + j})
			}
			// skip the run of newlines forming the boundary
			i = j
			for i < len(snippet) && (snippet[i] == '\n' || snippet[i] == '\r') {
				i++
			}
		}
	}
	return out
}

func crossesParagraph(snippet []rune) bool {
	for i := 0; i+1 < len(snippet); i++ {
		if (snippet[i] == '\n' || snippet[i] == '\r') &&
			(snippet[i+1] == '\n' || snippet[i+1] == '\r') {
			return true
		}
	}
	return false
}

func isBoundaryAt(snippet []rune, i int) bool {
	if snippet[i] != '\n' && snippet[i] != '\r' {
		return false
	}
	return i+1 < len(snippet) && (snippet[i+1] == '\n' || snippet[i+1] == '\r')
}

// CollectValues returns the deduplicated literal texts covered by spans,
// longest first, skipping blank fragments. Binary drivers that redact by
// literal byte substitution use these as their target strings.
func CollectValues(text string, spans []spanmap.Span) []string {
	runes := []rune(text)
	seen := make(map[string]bool)
	var values []string
	for _, sp := range spans {
		if sp.Start < 0 || sp.End > len(runes) || sp.End <= sp.Start {
			continue
		}
		v := strings.TrimSpace(string(runes[sp.Start:sp.End]))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	// longest first so nested values never pre-empt their container
	for i := 1; i < len(values); i++ {
		for j := i; j > 0 && longerOrEarlier(values[j], values[j-1]); j-- {
			values[j], values[j-1] = values[j-1], values[j]
		}
	}
	return values
}

func longerOrEarlier(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a < b
}

// IsBlank reports whether s holds nothing but whitespace.
func IsBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package detector finds sensitive-data spans in normalized document text.
// Offsets are rune offsets, half-open, and overlapping spans are allowed;
// drivers are expected to tolerate overlaps.
package detector

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"eclipso/internal/spanmap"
)

// Span is one detected sensitive value in the text it was searched in.
type Span struct {
	// Start and End are half-open rune offsets
	Start int
	End   int

	// Value is the matched text
	Value string

	// Rule is the id of the rule that produced the match
	Rule string

	// Confidence is the rule's confidence in this match
	Confidence float64
}

// Detector finds sensitive spans in normalized text. Implementations must
// be safe for sequential reuse across documents.
type Detector interface {
	FindSpans(normalized string) []Span
}

// Rule pairs a compiled pattern with an optional post-match validator.
type Rule struct {
	// Name identifies the rule in findings
	Name string

	// Pattern matches candidate values
	Pattern *regexp.Regexp

	// Validate, when set, filters candidates (checksum, range checks)
	Validate func(string) bool

	// Confidence reported for validated matches
	Confidence float64
}

// RegexDetector applies an ordered rule set to text.
type RegexDetector struct {
	rules []Rule
	glyph rune
}

// NewRegexDetector creates a detector with the given rules.
func NewRegexDetector(rules []Rule) *RegexDetector {
	return &RegexDetector{rules: rules, glyph: spanmap.MaskGlyph}
}

// SetMaskGlyph replaces the rune RedactText writes over matched text. The
// zero rune is ignored.
func (d *RegexDetector) SetMaskGlyph(r rune) {
	if r != 0 {
		d.glyph = r
	}
}

// NewDefault creates a detector with the built-in PII rule set.
func NewDefault() *RegexDetector {
	return NewRegexDetector(DefaultRules())
}

// DefaultRules returns the built-in rule set: payment card numbers (Luhn
// checked), resident registration numbers, emails, phone numbers and
// passport numbers.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "CREDIT_CARD",
			Pattern:    regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`),
			Validate:   luhnValid,
			Confidence: 0.9,
		},
		{
			Name:       "RRN",
			Pattern:    regexp.MustCompile(`\b\d{6}-[1-4]\d{6}\b`),
			Confidence: 0.95,
		},
		{
			Name:       "EMAIL",
			Pattern:    regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
			Confidence: 0.9,
		},
		{
			Name:       "PHONE",
			Pattern:    regexp.MustCompile(`\b01[016789]-\d{3,4}-\d{4}\b|\b0\d{1,2}-\d{3,4}-\d{4}\b|\+\d{1,3}-\d{1,4}-\d{3,4}-\d{4}\b`),
			Confidence: 0.85,
		},
		{
			Name:       "PASSPORT",
			Pattern:    regexp.MustCompile(`\b[A-Z]{1,2}\d{8}\b`),
			Confidence: 0.6,
		},
	}
}

// SelectRules filters the built-in rule set by a comma-separated list of
// rule ids. "all" or an empty selection keeps every rule; unknown ids are
// ignored.
func SelectRules(checks string) []Rule {
	all := DefaultRules()
	checks = strings.TrimSpace(checks)
	if checks == "" || strings.EqualFold(checks, "all") {
		return all
	}
	wanted := map[string]bool{}
	for _, id := range strings.Split(checks, ",") {
		wanted[strings.ToUpper(strings.TrimSpace(id))] = true
	}
	var out []Rule
	for _, r := range all {
		if wanted[r.Name] {
			out = append(out, r)
		}
	}
	return out
}

// FindSpans runs every rule over the text and returns all matches as rune
// spans. Matches failing a rule's validator are dropped.
func (d *RegexDetector) FindSpans(text string) []Span {
	byteToRune := buildByteToRune(text)

	var spans []Span
	for _, rule := range d.rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(text, -1) {
			value := text[loc[0]:loc[1]]
			if rule.Validate != nil && !rule.Validate(value) {
				continue
			}
			spans = append(spans, Span{
				Start:      byteToRune[loc[0]],
				End:        byteToRune[loc[1]],
				Value:      value,
				Rule:       rule.Name,
				Confidence: rule.Confidence,
			})
		}
	}
	return spans
}

// RedactText masks every detected span in text in place, for record payloads
// that are rewritten as whole strings rather than byte ranges.
func (d *RegexDetector) RedactText(text string) string {
	spans := d.FindSpans(text)
	if len(spans) == 0 {
		return text
	}
	runes := []rune(text)
	for _, sp := range spans {
		if sp.Start < 0 || sp.End > len(runes) {
			continue
		}
		mask := []rune(spanmap.MaskWith(string(runes[sp.Start:sp.End]), d.glyph))
		copy(runes[sp.Start:sp.End], mask)
	}
	return string(runes)
}

// buildByteToRune maps every byte offset of text, inclusive of len(text),
// to the rune offset it falls in.
func buildByteToRune(text string) []int {
	m := make([]int, len(text)+1)
	runeIdx := 0
	for i := 0; i < len(text); {
		_, size := utf8.DecodeRuneInString(text[i:])
		for j := 0; j < size; j++ {
			m[i+j] = runeIdx
		}
		i += size
		runeIdx++
	}
	m[len(text)] = runeIdx
	return m
}

// luhnValid applies the Luhn checksum to the digits of s; separators are
// ignored. Candidates outside card-number digit counts fail.
func luhnValid(s string) bool {
	var digits []int
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	alternate := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if alternate {
			d *= 2
			if d > 9 {
				d = d/10 + d%10
			}
		}
		sum += d
		alternate = !alternate
	}
	return sum%10 == 0
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pdf redacts PDF documents in place. Text extraction uses the
// page content streams; redaction substitutes equal-length masks both in
// the raw file bytes and inside FlateDecode stream payloads, so the
// output keeps the original byte length.
package pdf

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"unicode/utf16"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"eclipso/internal/config"
	"eclipso/internal/detector"
	"eclipso/internal/normalize"
	"eclipso/internal/observability"
	"eclipso/internal/security"
	"eclipso/internal/spanmap"
	"eclipso/internal/zlibseg"
)

var (
	pdfMagic  = []byte("%PDF-")
	errNotPDF = errors.New("not a PDF document")
)

// Driver handles PDF documents.
type Driver struct {
	detector  *detector.RegexDetector
	config    *config.Config
	observer  *observability.StandardObserver
	pdfConfig *model.Configuration
}

// NewDriver creates a PDF driver. A nil config falls back to the
// defaults.
func NewDriver(det *detector.RegexDetector, cfg *config.Config, obs *observability.StandardObserver) *Driver {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Driver{
		detector:  det,
		config:    cfg,
		observer:  obs,
		pdfConfig: model.NewDefaultConfiguration(),
	}
}

// CanHandle reports whether the data carries a PDF header. The header
// may be preceded by a short preamble.
func (d *Driver) CanHandle(data []byte) bool {
	if bytes.HasPrefix(data, pdfMagic) {
		return true
	}
	limit := len(data)
	if limit > 1024 {
		limit = 1024
	}
	return bytes.Contains(data[:limit], pdfMagic)
}

// ExtractText returns the visible text of every page. Plain extraction
// keeps each shown string contiguous; coordinate-based spacing would
// risk splitting values across inferred gaps. Malformed pages are
// skipped.
func (d *Driver) ExtractText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("malformed page content")
		}
	}()

	r, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		page, err := p.GetPlainText(nil)
		if err != nil {
			page = concatFragments(p.Content().Text)
		}
		if page != "" {
			sb.WriteString(page)
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}

func concatFragments(texts []pdflib.Text) string {
	var sb strings.Builder
	for _, t := range texts {
		sb.WriteString(t.S)
	}
	return sb.String()
}

// Redact masks detector hits in the document. On any failure the
// original bytes come back with a zero count.
func (d *Driver) Redact(data []byte) ([]byte, int) {
	out, count, err := d.redact(data)
	if err != nil {
		d.observer.LogEvent("pdf_driver", "redact", false, map[string]interface{}{
			"error": err.Error(),
		})
		return data, 0
	}
	d.observer.LogEvent("pdf_driver", "redact", true, map[string]interface{}{
		"match_count": count,
	})
	return out, count
}

func (d *Driver) redact(data []byte) ([]byte, int, error) {
	if !d.CanHandle(data) {
		return nil, 0, errNotPDF
	}
	if err := d.validate(data); err != nil {
		return nil, 0, err
	}
	text, err := d.ExtractText(data)
	if err != nil {
		return nil, 0, err
	}
	targets := d.collectTargets(text)
	if len(targets) == 0 {
		return data, 0, nil
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	glyph := d.config.MaskRune()
	count := 0
	for _, t := range targets {
		count += replaceLiteral(buf, t, glyph)
	}
	count += d.redactCompressed(buf, targets)
	return buf, count, nil
}

// validate runs the structural check over a temp copy. A file that does
// not validate is left untouched rather than risk corrupting it.
func (d *Driver) validate(data []byte) error {
	f, err := os.CreateTemp("", "redact-*.pdf")
	if err != nil {
		return err
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return api.ValidateFile(path, d.pdfConfig)
}

// collectTargets extracts the literal strings to substitute, longest
// first so nested values never pre-empt their container.
func (d *Driver) collectTargets(fullText string) []string {
	norm := normalize.Normalize(fullText)
	found := d.detector.FindSpans(norm)
	spans := make([]spanmap.Span, 0, len(found))
	for _, f := range found {
		spans = append(spans, spanmap.Span{Start: f.Start, End: f.End})
	}
	return normalize.CollectValues(norm, spans)
}

// redactCompressed substitutes targets inside FlateDecode stream
// payloads. A rewritten payload that no longer fits its original extent
// is dropped and the segment keeps its original bytes.
func (d *Driver) redactCompressed(buf []byte, targets []string) int {
	glyph := d.config.MaskRune()
	total := 0
	for _, cand := range zlibseg.Scan(buf, d.config.Engine.DeflateScanStride, d.config.Engine.DeflateScanLimit) {
		decoded, consumed, ok := zlibseg.TryDecompress(buf, cand.Offset, cand.Kind)
		if !ok {
			continue
		}
		hits := 0
		for _, t := range targets {
			hits += replaceLiteral(decoded, t, glyph)
		}
		if hits == 0 {
			security.Wipe(decoded)
			continue
		}
		comp, err := zlibseg.Recompress(cand.Kind, decoded)
		if err != nil {
			continue
		}
		patched := zlibseg.PatchSegment(buf, cand.Offset, consumed, comp)
		if patched == nil {
			continue
		}
		copy(buf, patched)
		total += hits
	}
	return total
}

// replaceLiteral masks every occurrence of target in buf, in both
// single-byte and UTF-16 big-endian encodings, preserving byte length.
func replaceLiteral(buf []byte, target string, glyph rune) int {
	mask := spanmap.MaskWith(target, glyph)
	n := overwriteAll(buf, []byte(target), []byte(mask))
	if pat := encodeUTF16BE(target); pat != nil {
		n += overwriteAll(buf, pat, encodeUTF16BE(mask))
	}
	return n
}

// overwriteAll copies rep over every occurrence of pat. pat and rep
// must be the same length.
func overwriteAll(buf, pat, rep []byte) int {
	if len(pat) == 0 || len(pat) != len(rep) {
		return 0
	}
	n, off := 0, 0
	for {
		i := bytes.Index(buf[off:], pat)
		if i < 0 {
			return n
		}
		copy(buf[off+i:], rep)
		off += i + len(pat)
		n++
	}
}

func encodeUTF16BE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units)*2)
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}
	return out
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package msppt

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"eclipso/internal/cfb"
	"eclipso/internal/config"
	"eclipso/internal/detector"
	"eclipso/internal/normalize"
	"eclipso/internal/observability"
	"eclipso/internal/spanmap"
	"eclipso/internal/textenc"
	"eclipso/internal/zlibseg"
)

const documentStream = "PowerPoint Document"

// Driver redacts .ppt files in place; output length always equals input
// length.
type Driver struct {
	detector *detector.RegexDetector
	config   *config.Config
	observer *observability.StandardObserver
}

// NewDriver creates a PPT driver.
func NewDriver(det *detector.RegexDetector, cfg *config.Config, obs *observability.StandardObserver) *Driver {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Driver{detector: det, config: cfg, observer: obs}
}

// CanHandle reports whether data is a PowerPoint binary: a compound file
// with a PowerPoint Document stream.
func (d *Driver) CanHandle(data []byte) bool {
	if !cfb.IsCompoundFile(data) {
		return false
	}
	c, err := cfb.OpenLimit(data, d.config.Engine.MaxChainSteps)
	if err != nil {
		return false
	}
	_, ok := c.FindStream(documentStream)
	return ok
}

// Slide-master placeholder noise the extractor drops so placeholder text
// never becomes a redaction target.
var (
	masterLevelLine = regexp.MustCompile(`^(?:[•·*\-–—◦●○◆◇▪▫▶▷■□]+\s*)?(?:첫|두|둘|세|셋|네|넷|다섯|여섯|일곱|여덟|아홉|열|[0-9]+)\s*(?:번째)?\s*수준\s*$`)
	bulletOnlyLine  = regexp.MustCompile(`^[*\x{2022}•·\-–—○●◦■□]+$`)
)

func isNoiseLine(line string) bool {
	if line == "" {
		return true
	}
	if strings.Contains(line, "마스터") && strings.Contains(line, "스타일") {
		return true
	}
	if strings.Contains(line, "편집하려면 클릭") {
		return true
	}
	return masterLevelLine.MatchString(line) || bulletOnlyLine.MatchString(line)
}

// cleanup normalizes per line and drops placeholder noise.
func cleanup(text string) string {
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(normalize.Normalize(raw))
		if isNoiseLine(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// ExtractText returns the presentation's slide text plus whatever embedded
// objects expose.
func (d *Driver) ExtractText(data []byte) (string, error) {
	c, err := cfb.OpenLimit(data, d.config.Engine.MaxChainSteps)
	if err != nil {
		return "", err
	}
	doc, err := c.ReadStream(documentStream)
	if err != nil {
		return "", err
	}

	parts := []string{d.extractSlideText(doc)}
	parts = append(parts, d.extractEmbeddedStreams(c)...)
	parts = append(parts, d.extractChartBlobs(doc)...)
	return cleanup(strings.Join(parts, "\n")), nil
}

// extractSlideText decodes every text atom of the document stream.
func (d *Driver) extractSlideText(doc []byte) string {
	var chunks []string
	WalkLeafRecords(doc, func(r LeafRecord) bool {
		if r.Len <= 0 {
			return true
		}
		payload := doc[r.DataOff : r.DataOff+r.Len]
		switch r.Type {
		case TypeTextCharsAtom:
			chunks = append(chunks, textenc.DecodeUTF16LE(payload))
		case TypeTextBytesAtom:
			chunks = append(chunks, decodeSingleByte(payload))
		}
		return true
	})
	return cleanup(strings.Join(chunks, "\n"))
}

// extractEmbeddedStreams pulls text out of every non-document stream,
// inflating a leading zlib wrapper when one is present.
func (d *Driver) extractEmbeddedStreams(c *cfb.Container) []string {
	var out []string
	for _, e := range c.Streams() {
		if len(e.Path) == 1 && e.Name == documentStream {
			continue
		}
		blob, err := c.ReadEntry(&e)
		if err != nil {
			continue
		}
		if isZlibHead(blob) {
			if dec, _, ok := zlibseg.TryDecompress(blob, 0, zlibseg.KindZlib); ok {
				blob = dec
			}
		}
		if txt := extractNestedText(blob); txt != "" {
			out = append(out, txt)
		}
	}
	return out
}

// extractChartBlobs scans the document stream's leaf records for
// zlib-compressed embedded-object payloads and pulls their text.
func (d *Driver) extractChartBlobs(doc []byte) []string {
	var out []string
	WalkLeafRecords(doc, func(r LeafRecord) bool {
		if r.Len <= 32 {
			return true
		}
		payload := doc[r.DataOff : r.DataOff+r.Len]
		if !isZlibHead(payload) {
			return true
		}
		if dec, _, ok := zlibseg.TryDecompress(doc, r.DataOff, zlibseg.KindZlib); ok {
			if txt := extractNestedText(dec); txt != "" {
				out = append(out, txt)
			}
		}
		return true
	})
	return out
}

// extractNestedText decodes the streams of a nested compound file, or the
// blob itself when it is not one.
func extractNestedText(blob []byte) string {
	if !cfb.IsCompoundFile(blob) {
		if txt := decodeAny(blob); txt != "" {
			return cleanup(txt)
		}
		return ""
	}
	sub, err := cfb.Open(blob)
	if err != nil {
		return ""
	}
	var out []string
	for _, e := range sub.Streams() {
		data, err := sub.ReadEntry(&e)
		if err != nil {
			continue
		}
		if txt := decodeAny(data); txt != "" {
			out = append(out, cleanup(txt))
		}
	}
	return strings.Join(out, "\n")
}

// Redact masks sensitive values in slide text, embedded object streams and
// compressed chart blobs. On any failure the original bytes come back
// untouched.
func (d *Driver) Redact(data []byte) ([]byte, int) {
	out, count, err := d.redact(data)
	if err != nil {
		d.observer.LogEvent("ppt", "redact", false, map[string]interface{}{"error": err.Error()})
		return data, 0
	}
	d.observer.LogEvent("ppt", "redact", true, map[string]interface{}{"match_count": count})
	return out, count
}

func (d *Driver) redact(data []byte) ([]byte, int, error) {
	fullText, err := d.ExtractText(data)
	if err != nil {
		return nil, 0, err
	}
	targets := d.collectTargets(fullText)

	buf := make([]byte, len(data))
	copy(buf, data)
	c, err := cfb.OpenLimit(buf, d.config.Engine.MaxChainSteps)
	if err != nil {
		return nil, 0, err
	}

	count := 0
	for _, e := range c.Streams() {
		raw, err := c.ReadEntry(&e)
		if err != nil {
			continue
		}
		var patched []byte
		var hits int
		if len(e.Path) == 1 && e.Name == documentStream {
			patched, hits = d.redactDocument(raw, targets)
		} else {
			patched, hits = replaceAllEncodings(raw, targets)
		}
		if hits == 0 || len(patched) != len(raw) {
			continue
		}
		if err := c.OverwriteEntry(&e, patched); err != nil {
			d.observer.LogEvent("ppt", "stream_writeback", false,
				map[string]interface{}{"stream": e.Name, "error": err.Error()})
			continue
		}
		count += hits
	}
	return c.Bytes(), count, nil
}

func (d *Driver) collectTargets(fullText string) []string {
	norm := normalize.Normalize(fullText)
	found := d.detector.FindSpans(norm)
	spans := make([]spanmap.Span, 0, len(found))
	for _, f := range found {
		spans = append(spans, spanmap.Span{Start: f.Start, End: f.End})
	}
	return normalize.CollectValues(norm, spans)
}

// redactDocument rewrites the document stream: masks inside text atoms at
// their exact extents, then patches compressed chart blobs that still fit.
func (d *Driver) redactDocument(doc []byte, targets []string) ([]byte, int) {
	if len(targets) == 0 {
		return doc, 0
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	hits := 0

	WalkLeafRecords(out, func(r LeafRecord) bool {
		if r.Len <= 0 {
			return true
		}
		payload := out[r.DataOff : r.DataOff+r.Len]
		switch r.Type {
		case TypeTextCharsAtom:
			for _, t := range targets {
				hits += replaceUTF16InPlace(payload, t)
			}
		case TypeTextBytesAtom:
			for _, t := range targets {
				hits += replaceSingleByteInPlace(payload, t)
			}
		default:
			if r.Len > 32 && isZlibHead(payload) {
				hits += d.patchCompressedBlob(out, r, targets)
			}
		}
		return true
	})
	return out, hits
}

// patchCompressedBlob inflates an embedded-object record, substitutes, and
// recompresses into the record's original extent when the result fits.
func (d *Driver) patchCompressedBlob(out []byte, r LeafRecord, targets []string) int {
	dec, consumed, ok := zlibseg.TryDecompress(out, r.DataOff, zlibseg.KindZlib)
	if !ok || consumed > r.Len {
		return 0
	}
	newDec, hits := replaceAllEncodings(dec, targets)
	if hits == 0 {
		return 0
	}
	newComp, err := zlibseg.Recompress(zlibseg.KindZlib, newDec)
	if err != nil {
		return 0
	}
	patched := zlibseg.PatchSegment(out, r.DataOff, consumed, newComp)
	if patched == nil {
		return 0
	}
	copy(out, patched)
	return hits
}

// replaceAllEncodings substitutes each target in every encoding object
// streams use, keeping byte lengths intact.
func replaceAllEncodings(raw []byte, targets []string) ([]byte, int) {
	out := raw
	total := 0
	for _, t := range targets {
		if t == "" {
			continue
		}
		pats := [][]byte{textenc.EncodeUTF16LE(t), []byte(t)}
		reps := [][]byte{
			spanmap.EncodeMask(spanmap.Mask(t), 2),
			spanmap.EncodeMask(spanmap.Mask(t), 1),
		}
		if kr := textenc.EncodeEUCKR(t); kr != nil && !bytes.Equal(kr, []byte(t)) {
			pats = append(pats, kr)
			reps = append(reps, bytes.Repeat([]byte{'*'}, len(kr)))
		}
		for i, pat := range pats {
			if len(pat) == 0 || len(pat) != len(reps[i]) {
				continue
			}
			n := bytes.Count(out, pat)
			if n == 0 {
				continue
			}
			out = bytes.ReplaceAll(out, pat, reps[i])
			total += n
		}
	}
	return out, total
}

// replaceUTF16InPlace masks UTF-16LE occurrences of target inside payload.
func replaceUTF16InPlace(payload []byte, target string) int {
	pat := textenc.EncodeUTF16LE(target)
	rep := spanmap.EncodeMask(spanmap.Mask(target), 2)
	return replaceInPlace(payload, pat, rep)
}

// replaceSingleByteInPlace masks single-byte occurrences of target inside
// payload.
func replaceSingleByteInPlace(payload []byte, target string) int {
	pat := []byte(target)
	rep := spanmap.EncodeMask(spanmap.Mask(target), 1)
	return replaceInPlace(payload, pat, rep)
}

func replaceInPlace(payload, pat, rep []byte) int {
	if len(pat) == 0 || len(pat) != len(rep) {
		return 0
	}
	n := 0
	for off := 0; ; {
		i := bytes.Index(payload[off:], pat)
		if i < 0 {
			break
		}
		copy(payload[off+i:], rep)
		off += i + len(rep)
		n++
	}
	return n
}

// decodeSingleByte decodes a TextBytesAtom payload: the regional codepage
// first, then the western one.
func decodeSingleByte(b []byte) string {
	if txt := textenc.DecodeEUCKR(b); txt != "" {
		return txt
	}
	return textenc.DecodeWindows1252(b)
}

func isZlibHead(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x78 && (b[1] == 0x01 || b[1] == 0x9C || b[1] == 0xDA)
}

// decodeAny decodes data with the first encoding yielding mostly printable
// text: UTF-8, UTF-16LE, then EUC-KR. Embedded NUL bytes mark the data as
// UTF-16 even though they are valid UTF-8.
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

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package msdoc

import (
	"fmt"

	"eclipso/internal/biff"
	"eclipso/internal/cfb"
	"eclipso/internal/config"
	"eclipso/internal/detector"
	"eclipso/internal/normalize"
	"eclipso/internal/observability"
	"eclipso/internal/spanmap"
)

// Driver redacts .doc files in place: the output is always byte-for-byte
// the same length as the input.
type Driver struct {
	detector *detector.RegexDetector
	config   *config.Config
	observer *observability.StandardObserver
}

// NewDriver creates a DOC driver.
func NewDriver(det *detector.RegexDetector, cfg *config.Config, obs *observability.StandardObserver) *Driver {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Driver{detector: det, config: cfg, observer: obs}
}

// CanHandle reports whether data looks like a Word binary document: a
// compound file with a WordDocument stream.
func (d *Driver) CanHandle(data []byte) bool {
	if !cfb.IsCompoundFile(data) {
		return false
	}
	c, err := cfb.OpenLimit(data, d.config.Engine.MaxChainSteps)
	if err != nil {
		return false
	}
	_, ok := c.FindStream("WordDocument")
	return ok
}

// ExtractText returns the document's logical text, decoded piece by piece.
func (d *Driver) ExtractText(data []byte) (string, error) {
	c, err := cfb.OpenLimit(data, d.config.Engine.MaxChainSteps)
	if err != nil {
		return "", err
	}
	wordData, pieces, err := d.loadPieces(c)
	if err != nil {
		return "", err
	}
	_, text := BuildSegments(wordData, pieces, d.config.Engine.DriftTolerance)
	return text, nil
}

// Redact masks sensitive text in the document body and in any embedded
// Excel workbooks under ObjectPool. On any failure the original bytes come
// back untouched.
func (d *Driver) Redact(data []byte) ([]byte, int) {
	out, count, err := d.redact(data)
	if err != nil {
		d.observer.LogEvent("doc", "redact", false, map[string]interface{}{"error": err.Error()})
		return data, 0
	}
	d.observer.LogEvent("doc", "redact", true, map[string]interface{}{"match_count": count})
	return out, count
}

func (d *Driver) redact(data []byte) ([]byte, int, error) {
	buf := make([]byte, len(data))
	copy(buf, data)

	c, err := cfb.OpenLimit(buf, d.config.Engine.MaxChainSteps)
	if err != nil {
		return nil, 0, err
	}
	wordData, pieces, err := d.loadPieces(c)
	if err != nil {
		return nil, 0, err
	}

	segments, rawText := BuildSegments(wordData, pieces, d.config.Engine.DriftTolerance)

	normText, index := normalize.NormalizeWithIndex(rawText)
	found := d.detector.FindSpans(normText)
	spans := make([]spanmap.Span, 0, len(found))
	for _, f := range found {
		spans = append(spans, spanmap.Span{Start: f.Start, End: f.End})
	}
	spans = normalize.SplitParagraphSpans(normText, spans)

	count := 0
	if len(spans) > 0 {
		// Patch a private copy of the stream, then write it back through
		// the sector chain so the container layout survives.
		patched := make([]byte, len(wordData))
		copy(patched, wordData)
		text := []rune(rawText)

		for _, span := range spans {
			raw, ok := normalize.MapSpanToRaw(span, index)
			if !ok {
				continue
			}
			for _, t := range spanmap.MapSpans(segments, []spanmap.Span{raw}) {
				spanmap.MaskBytes(patched, t, text)
			}
			count++
		}
		if err := c.OverwriteStream(patched, "WordDocument"); err != nil {
			return nil, 0, err
		}
	}

	count += d.redactWorkbooks(c)
	return c.Bytes(), count, nil
}

// loadPieces reads the WordDocument stream and its piece table.
func (d *Driver) loadPieces(c *cfb.Container) ([]byte, []Piece, error) {
	wordData, err := c.ReadStream("WordDocument")
	if err != nil {
		return nil, nil, err
	}

	name := TableStreamName(wordData)
	tableData, err := c.ReadStream(name)
	if err != nil {
		// fWhichTblStm can point at a stream the writer never emitted
		alt := "0Table"
		if name == "0Table" {
			alt = "1Table"
		}
		tableData, err = c.ReadStream(alt)
		if err != nil {
			return nil, nil, fmt.Errorf("no table stream: %w", err)
		}
	}

	clx := LocateClx(wordData, tableData)
	if clx == nil {
		return nil, nil, fmt.Errorf("clx out of bounds or empty")
	}
	blob := ExtractPieceTable(clx)
	if blob == nil {
		return nil, nil, fmt.Errorf("no piece table in clx")
	}
	pieces := ParsePieces(blob)
	if pieces == nil {
		return nil, nil, fmt.Errorf("malformed piece table")
	}
	return wordData, pieces, nil
}

// redactWorkbooks rewrites Excel streams embedded under ObjectPool. BIFF
// record rewriting preserves length, so the streams go back verbatim-sized.
func (d *Driver) redactWorkbooks(c *cfb.Container) int {
	count := 0
	for _, entry := range c.Streams() {
		if len(entry.Path) < 2 || entry.Path[0] != "ObjectPool" {
			continue
		}
		leaf := entry.Path[len(entry.Path)-1]
		if leaf != "Workbook" && leaf != "\x01Workbook" && leaf != "Book" {
			continue
		}
		dataBytes, err := c.ReadEntry(&entry)
		if err != nil {
			continue
		}
		patched, n := biff.RedactStream(dataBytes, d.detector.RedactText)
		if n == 0 {
			continue
		}
		if err := c.OverwriteEntry(&entry, patched); err != nil {
			d.observer.LogEvent("doc", "workbook_writeback", false,
				map[string]interface{}{"stream": leaf, "error": err.Error()})
			continue
		}
		count += n
	}
	return count
}

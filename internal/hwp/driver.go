// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package hwp

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"eclipso/internal/cfb"
	"eclipso/internal/config"
	"eclipso/internal/detector"
	"eclipso/internal/normalize"
	"eclipso/internal/observability"
	"eclipso/internal/spanmap"
	"eclipso/internal/textenc"
)

// Driver redacts .hwp files in place; output length always equals input
// length.
type Driver struct {
	detector *detector.RegexDetector
	config   *config.Config
	observer *observability.StandardObserver
}

// NewDriver creates an HWP driver.
func NewDriver(det *detector.RegexDetector, cfg *config.Config, obs *observability.StandardObserver) *Driver {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Driver{detector: det, config: cfg, observer: obs}
}

// CanHandle reports whether data is an HWP container: a compound file with
// a FileHeader stream or a BodyText storage.
func (d *Driver) CanHandle(data []byte) bool {
	if !cfb.IsCompoundFile(data) {
		return false
	}
	c, err := cfb.OpenLimit(data, d.config.Engine.MaxChainSteps)
	if err != nil {
		return false
	}
	if _, ok := c.FindStream("FileHeader"); ok {
		return true
	}
	for _, e := range c.Streams() {
		if len(e.Path) >= 2 && e.Path[0] == "BodyText" {
			return true
		}
	}
	return false
}

// isSection reports whether the entry is a BodyText/Section* stream.
func isSection(e *cfb.DirectoryEntry) bool {
	return len(e.Path) >= 2 && e.Path[0] == "BodyText" && strings.HasPrefix(e.Path[1], "Section")
}

// isBinDataOle reports whether the entry is a BinData/*.OLE object blob.
func isBinDataOle(e *cfb.DirectoryEntry) bool {
	return len(e.Path) >= 2 && e.Path[0] == "BinData" && strings.HasSuffix(e.Path[1], ".OLE")
}

// ExtractText returns the document's body text plus whatever the embedded
// object blobs expose, one fragment per line.
func (d *Driver) ExtractText(data []byte) (string, error) {
	c, err := cfb.OpenLimit(data, d.config.Engine.MaxChainSteps)
	if err != nil {
		return "", err
	}
	var texts []string
	stride, limit := d.config.Engine.DeflateScanStride, d.config.Engine.DeflateScanLimit
	for _, e := range c.Streams() {
		switch {
		case isSection(&e):
			raw, err := c.ReadEntry(&e)
			if err != nil {
				continue
			}
			dec, _ := DecompressSection(raw)
			WalkRecords(dec, func(r Record) bool {
				if r.Tag == TagParaText && len(r.Payload) > 0 {
					texts = append(texts, textenc.DecodeUTF16LE(r.Payload))
				}
				return true
			})
		case isBinDataOle(&e):
			raw, err := c.ReadEntry(&e)
			if err != nil {
				continue
			}
			texts = append(texts, ExtractBinDataText(raw, stride, limit)...)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// Redact masks sensitive values across the body sections, referenced
// BinData objects and the preview streams. On any failure the original
// bytes come back untouched.
func (d *Driver) Redact(data []byte) ([]byte, int) {
	out, count, err := d.redact(data)
	if err != nil {
		d.observer.LogEvent("hwp", "redact", false, map[string]interface{}{"error": err.Error()})
		return data, 0
	}
	d.observer.LogEvent("hwp", "redact", true, map[string]interface{}{"match_count": count})
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
	oleIDs := d.discoverOleIDs(c)

	for _, e := range c.Streams() {
		switch {
		case isSection(&e):
			count += d.redactSection(c, &e, targets)
		case isBinDataOle(&e):
			count += d.redactBinData(c, &e, targets, oleIDs)
		case len(e.Path) == 1 && isPrvText(e.Name):
			count += d.redactPrvText(c, &e, targets)
		case len(e.Path) == 1 && isPrvImage(e.Name):
			d.wipePrvImage(c, &e)
		}
	}
	return c.Bytes(), count, nil
}

// collectTargets extracts the literal strings to substitute, longest first
// so nested values never pre-empt their container.
func (d *Driver) collectTargets(fullText string) []string {
	norm := normalize.Normalize(fullText)
	found := d.detector.FindSpans(norm)
	spans := make([]spanmap.Span, 0, len(found))
	for _, f := range found {
		spans = append(spans, spanmap.Span{Start: f.Start, End: f.End})
	}
	return normalize.CollectValues(norm, spans)
}

// discoverOleIDs collects the BinData ids referenced by $ole controls in
// any body section. An empty set means "no filtering": some writers omit
// the control records and the blobs must still be scrubbed.
func (d *Driver) discoverOleIDs(c *cfb.Container) map[uint32]bool {
	ids := map[uint32]bool{}
	for _, e := range c.Streams() {
		if !isSection(&e) {
			continue
		}
		raw, err := c.ReadEntry(&e)
		if err != nil {
			continue
		}
		dec, _ := DecompressSection(raw)
		for _, id := range DiscoverOleBinDataIDs(dec) {
			ids[id] = true
		}
	}
	return ids
}

// redactSection rewrites a body section: inflate, substitute inside each
// paragraph-text record, recompress in the same mode and write back at the
// stream's exact original size.
func (d *Driver) redactSection(c *cfb.Container, e *cfb.DirectoryEntry, targets []string) int {
	if len(targets) == 0 {
		return 0
	}
	raw, err := c.ReadEntry(e)
	if err != nil {
		return 0
	}
	dec, mode := DecompressSection(raw)
	buf := make([]byte, len(dec))
	copy(buf, dec)

	hits := 0
	WalkRecords(buf, func(r Record) bool {
		if r.Tag != TagParaText || len(r.Payload) == 0 {
			return true
		}
		for _, t := range targets {
			replaced, n := ReplaceUTF16KeepLen(r.Payload, t)
			if n > 0 {
				copy(r.Payload, replaced)
				hits += n
			}
		}
		return true
	})
	if hits == 0 {
		return 0
	}

	comp, err := RecompressSection(buf, mode)
	if err != nil {
		return 0
	}
	if err := c.OverwriteEntry(e, FitToSize(comp, len(raw))); err != nil {
		d.observer.LogEvent("hwp", "section_writeback", false,
			map[string]interface{}{"stream": e.Name, "error": err.Error()})
		return 0
	}
	return hits
}

// redactBinData scrubs one BinData object blob, honoring the $ole id
// filter when the sections declared one.
func (d *Driver) redactBinData(c *cfb.Container, e *cfb.DirectoryEntry, targets []string, oleIDs map[uint32]bool) int {
	raw, err := c.ReadEntry(e)
	if err != nil {
		return 0
	}
	d.probeImageMetadata(e.Name, raw)

	if len(oleIDs) > 0 {
		if id := BinDataIDFromName(e.Path[1]); id == 0 || !oleIDs[id] {
			return 0
		}
	}
	stride, limit := d.config.Engine.DeflateScanStride, d.config.Engine.DeflateScanLimit
	rep, hits := RedactBinData(raw, targets, stride, limit)
	if hits == 0 || len(rep) != len(raw) || bytes.Equal(rep, raw) {
		return 0
	}
	if err := c.OverwriteEntry(e, rep); err != nil {
		return 0
	}
	return hits
}

func isPrvText(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "prv") && strings.Contains(lower, "text")
}

func isPrvImage(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "prv") && strings.Contains(lower, "image")
}

// redactPrvText masks targets in the preview text stream, which is plain
// uncompressed UTF-16LE.
func (d *Driver) redactPrvText(c *cfb.Container, e *cfb.DirectoryEntry, targets []string) int {
	raw, err := c.ReadEntry(e)
	if err != nil {
		return 0
	}
	out := raw
	hits := 0
	for _, t := range targets {
		var n int
		out, n = ReplaceUTF16KeepLen(out, t)
		hits += n
	}
	if hits == 0 {
		return 0
	}
	if err := c.OverwriteEntry(e, FitToSize(out, len(raw))); err != nil {
		return 0
	}
	return hits
}

// wipePrvImage zeroes the preview image; it renders the pre-redaction
// document and cannot be selectively masked.
func (d *Driver) wipePrvImage(c *cfb.Container, e *cfb.DirectoryEntry) {
	if !d.config.Engine.WipePreviewImages {
		return
	}
	raw, err := c.ReadEntry(e)
	if err != nil {
		return
	}
	if err := c.OverwriteEntry(e, make([]byte, len(raw))); err != nil {
		d.observer.LogEvent("hwp", "prvimage_wipe", false,
			map[string]interface{}{"stream": e.Name, "error": err.Error()})
	}
}

// probeImageMetadata reports location/serial EXIF tags found on embedded
// JPEG pictures. The preview wipe covers rendered text; EXIF is the other
// channel documents leak through, so it is at least surfaced.
func (d *Driver) probeImageMetadata(name string, raw []byte) {
	if !bytes.HasPrefix(raw, jpegMagic) {
		return
	}
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return
	}
	meta := map[string]interface{}{"stream": name}
	if lat, lon, err := x.LatLong(); err == nil {
		meta["gps"] = fmt.Sprintf("%f,%f", lat, lon)
	}
	w := &serialWalker{}
	x.Walk(w)
	for k, v := range w.found {
		meta[k] = v
	}
	if len(meta) > 1 {
		d.observer.LogEvent("hwp", "image_metadata", true, meta)
	}
}

// serialWalker picks up serial-number tags regardless of which EXIF block
// the camera wrote them into.
type serialWalker struct {
	found map[string]string
}

func (w *serialWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if strings.Contains(string(name), "Serial") {
		if w.found == nil {
			w.found = map[string]string{}
		}
		w.found[string(name)] = tag.String()
	}
	return nil
}

// ReplaceUTF16KeepLen substitutes every UTF-16LE occurrence of target in
// buf with its dash-preserving mask. Pattern and mask encode to the same
// byte length, so buf's length never changes.
func ReplaceUTF16KeepLen(buf []byte, target string) ([]byte, int) {
	if target == "" {
		return buf, 0
	}
	pat := textenc.EncodeUTF16LE(target)
	rep := spanmap.EncodeMask(spanmap.Mask(target), 2)
	if len(pat) == 0 || len(pat) != len(rep) {
		return buf, 0
	}
	n := bytes.Count(buf, pat)
	if n == 0 {
		return buf, 0
	}
	return bytes.ReplaceAll(buf, pat, rep), n
}

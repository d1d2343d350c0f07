// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package office redacts the ZIP-XML document families: OOXML (docx,
// xlsx, pptx) and HWPX. Text lives in XML text nodes inside the
// archive; redaction rewrites the matched parts and repacks the
// archive, so the output size is not preserved.
package office

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"

	"eclipso/internal/config"
	"eclipso/internal/detector"
	"eclipso/internal/observability"
)

// DocumentType identifies the ZIP-XML family a file belongs to.
type DocumentType int

const (
	TypeUnknown DocumentType = iota
	TypeDOCX
	TypeXLSX
	TypePPTX
	TypeHWPX
)

// String returns the conventional file extension for the type.
func (t DocumentType) String() string {
	switch t {
	case TypeDOCX:
		return "docx"
	case TypeXLSX:
		return "xlsx"
	case TypePPTX:
		return "pptx"
	case TypeHWPX:
		return "hwpx"
	default:
		return "unknown"
	}
}

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

var errNotOffice = errors.New("not a recognized document archive")

// Text node patterns per format. The inner group is the node text.
var (
	wordTextNode  = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>`)
	sheetTextNode = regexp.MustCompile(`(?s)<t(?:\s[^>]*)?>(.*?)</t>`)
	sheetValNode  = regexp.MustCompile(`(?s)<v(?:\s[^>]*)?>(.*?)</v>`)
	drawTextNode  = regexp.MustCompile(`(?s)<a:t(?:\s[^>]*)?>(.*?)</a:t>`)
	chartValNode  = regexp.MustCompile(`(?s)<c:v(?:\s[^>]*)?>(.*?)</c:v>`)
	hwpxTextNode  = regexp.MustCompile(`>([^<>]+)<`)
)

// Driver handles the ZIP-XML document formats.
type Driver struct {
	detector *detector.RegexDetector
	config   *config.Config
	observer *observability.StandardObserver
}

// NewDriver creates a ZIP-XML driver. A nil config falls back to the
// defaults.
func NewDriver(det *detector.RegexDetector, cfg *config.Config, obs *observability.StandardObserver) *Driver {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Driver{detector: det, config: cfg, observer: obs}
}

// CanHandle reports whether the data is a ZIP archive of a known
// document family. Plain ZIP archives are not claimed.
func (d *Driver) CanHandle(data []byte) bool {
	return d.DetectType(data) != TypeUnknown
}

// DetectType classifies a ZIP archive by its marker parts. HWPX is
// identified by its mimetype entry or Contents tree, OOXML by the
// content types manifest.
func (d *Driver) DetectType(data []byte) DocumentType {
	if !bytes.HasPrefix(data, zipMagic) {
		return TypeUnknown
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return TypeUnknown
	}

	var contentTypes string
	hasContents := false
	for _, f := range zr.File {
		switch {
		case f.Name == "mimetype":
			if b, err := readZipPart(f); err == nil && bytes.Contains(b, []byte("hwp")) {
				return TypeHWPX
			}
		case f.Name == "[Content_Types].xml":
			if b, err := readZipPart(f); err == nil {
				contentTypes = string(b)
			}
		case strings.HasPrefix(f.Name, "Contents/"):
			hasContents = true
		}
	}
	switch {
	case strings.Contains(contentTypes, "wordprocessingml"):
		return TypeDOCX
	case strings.Contains(contentTypes, "spreadsheetml"):
		return TypeXLSX
	case strings.Contains(contentTypes, "presentationml"):
		return TypePPTX
	case hasContents:
		return TypeHWPX
	}
	return TypeUnknown
}

// ExtractText returns the concatenated text node contents of every
// targeted part, one node per line.
func (d *Driver) ExtractText(data []byte) string {
	docType := d.DetectType(data)
	if docType == TypeUnknown {
		return ""
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}

	var lines []string
	for _, f := range zr.File {
		res := classifyPart(docType, f.Name)
		if len(res) == 0 {
			continue
		}
		content, err := readZipPart(f)
		if err != nil {
			continue
		}
		for _, re := range res {
			for _, m := range re.FindAllSubmatch(content, -1) {
				text := strings.TrimSpace(string(m[1]))
				if text != "" {
					lines = append(lines, text)
				}
			}
		}
	}
	return strings.Join(lines, "\n")
}

// Redact rewrites the text-bearing XML parts and repacks the archive.
// On any failure the original bytes come back with a zero count.
func (d *Driver) Redact(data []byte) ([]byte, int) {
	out, count, err := d.redact(data, 0)
	if err != nil {
		d.observer.LogEvent("office_driver", "redact", false, map[string]interface{}{
			"error": err.Error(),
		})
		return data, 0
	}
	d.observer.LogEvent("office_driver", "redact", true, map[string]interface{}{
		"match_count": count,
	})
	return out, count
}

func (d *Driver) redact(data []byte, depth int) ([]byte, int, error) {
	docType := d.DetectType(data)
	if docType == TypeUnknown {
		return data, 0, errNotOffice
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	total := 0
	for _, f := range zr.File {
		content, err := readZipPart(f)
		if err != nil {
			zw.Close()
			return nil, 0, err
		}

		rewritten, n := d.redactPart(docType, f.Name, content, depth)
		total += n

		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: f.Method})
		if err != nil {
			zw.Close()
			return nil, 0, err
		}
		if _, err := w.Write(rewritten); err != nil {
			zw.Close()
			return nil, 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), total, nil
}

// redactPart rewrites a single archive entry. Entries that carry no
// text for the given document type pass through unchanged.
func (d *Driver) redactPart(docType DocumentType, name string, content []byte, depth int) ([]byte, int) {
	if isEmbeddedArchive(name, content) && depth < d.config.Engine.MaxNestingDepth {
		out, n, err := d.redact(content, depth+1)
		if err != nil {
			return content, 0
		}
		return out, n
	}
	if docType == TypeHWPX {
		if name == "Preview/PrvText.txt" {
			masked := d.detector.RedactText(string(content))
			if masked != string(content) {
				return []byte(masked), 1
			}
			return content, 0
		}
		if strings.HasPrefix(name, "Preview/PrvImage") && d.config.Engine.WipePreviewImages {
			return nil, 0
		}
	}

	res := classifyPart(docType, name)
	if len(res) == 0 {
		return content, 0
	}
	total := 0
	for _, re := range res {
		var n int
		content, n = d.redactTextNodes(content, re)
		total += n
	}
	return content, total
}

// redactTextNodes masks detector hits inside each text node matched by
// re. Only the inner group is rewritten, so the XML stays well formed.
func (d *Driver) redactTextNodes(content []byte, re *regexp.Regexp) ([]byte, int) {
	count := 0
	out := re.ReplaceAllFunc(content, func(m []byte) []byte {
		idx := re.FindSubmatchIndex(m)
		if idx == nil || idx[2] < 0 {
			return m
		}
		inner := string(m[idx[2]:idx[3]])
		masked := d.detector.RedactText(inner)
		if masked == inner {
			return m
		}
		count++
		var b bytes.Buffer
		b.Write(m[:idx[2]])
		b.WriteString(masked)
		b.Write(m[idx[3]:])
		return b.Bytes()
	})
	return out, count
}

// classifyPart returns the text node patterns applicable to an archive
// entry, or nil when the entry carries no redactable text.
func classifyPart(docType DocumentType, name string) []*regexp.Regexp {
	if !strings.HasSuffix(name, ".xml") {
		return nil
	}
	switch docType {
	case TypeDOCX:
		if strings.HasPrefix(name, "word/") && !strings.HasPrefix(name, "word/theme/") {
			return []*regexp.Regexp{wordTextNode}
		}
	case TypeXLSX:
		if strings.HasPrefix(name, "xl/worksheets/") {
			return []*regexp.Regexp{sheetTextNode, sheetValNode}
		}
		if name == "xl/sharedStrings.xml" {
			return []*regexp.Regexp{sheetTextNode}
		}
	case TypePPTX:
		for _, prefix := range []string{"ppt/slides/", "ppt/slideLayouts/", "ppt/slideMasters/", "ppt/notesSlides/"} {
			if strings.HasPrefix(name, prefix) {
				return []*regexp.Regexp{drawTextNode}
			}
		}
		if strings.HasPrefix(name, "ppt/charts/") {
			return []*regexp.Regexp{drawTextNode, chartValNode}
		}
	case TypeHWPX:
		if strings.HasPrefix(name, "Contents/") {
			return []*regexp.Regexp{hwpxTextNode}
		}
	}
	return nil
}

// isEmbeddedArchive reports whether an entry is a nested document
// archive, such as an xlsx embedded in a docx chart.
func isEmbeddedArchive(name string, content []byte) bool {
	if !bytes.HasPrefix(content, zipMagic) {
		return false
	}
	return strings.Contains(name, "/embeddings/") || strings.HasPrefix(name, "BinData/")
}

func readZipPart(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

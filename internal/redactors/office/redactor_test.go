// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package office

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eclipso/internal/detector"
)

type entry struct {
	name string
	data string
}

func buildZip(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func readPart(t *testing.T, data []byte, name string) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		return b
	}
	t.Fatalf("part %q not found", name)
	return nil
}

func newTestDriver() *Driver {
	return NewDriver(detector.NewDefault(), nil, nil)
}

const docxContentTypes = `<?xml version="1.0"?><Types><Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`
const xlsxContentTypes = `<?xml version="1.0"?><Types><Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/></Types>`
const pptxContentTypes = `<?xml version="1.0"?><Types><Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/></Types>`

func TestDetectType(t *testing.T) {
	d := newTestDriver()

	docx := buildZip(t, entry{"[Content_Types].xml", docxContentTypes})
	assert.Equal(t, TypeDOCX, d.DetectType(docx))

	xlsx := buildZip(t, entry{"[Content_Types].xml", xlsxContentTypes})
	assert.Equal(t, TypeXLSX, d.DetectType(xlsx))

	pptx := buildZip(t, entry{"[Content_Types].xml", pptxContentTypes})
	assert.Equal(t, TypePPTX, d.DetectType(pptx))

	hwpx := buildZip(t,
		entry{"mimetype", "application/hwp+zip"},
		entry{"Contents/section0.xml", "<hs:sec/>"},
	)
	assert.Equal(t, TypeHWPX, d.DetectType(hwpx))

	plain := buildZip(t, entry{"readme.txt", "hello"})
	assert.Equal(t, TypeUnknown, d.DetectType(plain))
	assert.False(t, d.CanHandle(plain))

	assert.Equal(t, TypeUnknown, d.DetectType([]byte("not a zip at all")))
}

func TestRedactDocx(t *testing.T) {
	d := newTestDriver()
	doc := buildZip(t,
		entry{"[Content_Types].xml", docxContentTypes},
		entry{"word/document.xml",
			`<w:document><w:body><w:p><w:r><w:t>Call 010-1234-5678 now</w:t></w:r>` +
				`<w:r><w:t xml:space="preserve">mail a@b.com</w:t></w:r></w:p></w:body></w:document>`},
		entry{"word/theme/theme1.xml", `<a:theme><a:t>010-1234-5678</a:t></a:theme>`},
	)

	out, count := d.Redact(doc)
	assert.Equal(t, 2, count)

	body := string(readPart(t, out, "word/document.xml"))
	assert.Contains(t, body, "Call ***-****-**** now")
	assert.Contains(t, body, "mail *******")
	assert.NotContains(t, body, "010-1234-5678")

	// theme parts are presentation chrome, not document text
	theme := string(readPart(t, out, "word/theme/theme1.xml"))
	assert.Contains(t, theme, "010-1234-5678")
}

func TestRedactXlsxSharedStrings(t *testing.T) {
	d := newTestDriver()
	doc := buildZip(t,
		entry{"[Content_Types].xml", xlsxContentTypes},
		entry{"xl/sharedStrings.xml", `<sst><si><t>phone 010-9999-8888</t></si></sst>`},
		entry{"xl/worksheets/sheet1.xml", `<worksheet><is><t>rrn 900101-1234567</t></is></worksheet>`},
	)

	out, count := d.Redact(doc)
	assert.Equal(t, 2, count)
	assert.Contains(t, string(readPart(t, out, "xl/sharedStrings.xml")), "phone ***-****-****")
	assert.Contains(t, string(readPart(t, out, "xl/worksheets/sheet1.xml")), "rrn ******-*******")
}

func TestRedactPptxSlidesAndCharts(t *testing.T) {
	d := newTestDriver()
	doc := buildZip(t,
		entry{"[Content_Types].xml", pptxContentTypes},
		entry{"ppt/slides/slide1.xml", `<p:sld><a:t>Tel 010-1234-5678</a:t></p:sld>`},
		entry{"ppt/charts/chart1.xml", `<c:chart><c:v>010-7777-8888</c:v></c:chart>`},
	)

	out, count := d.Redact(doc)
	assert.Equal(t, 2, count)
	assert.Contains(t, string(readPart(t, out, "ppt/slides/slide1.xml")), "Tel ***-****-****")
	assert.Contains(t, string(readPart(t, out, "ppt/charts/chart1.xml")), "***-****-****")
}

func TestRedactHwpx(t *testing.T) {
	d := newTestDriver()
	doc := buildZip(t,
		entry{"mimetype", "application/hwp+zip"},
		entry{"Contents/section0.xml", `<hs:sec><hp:p><hp:t>rrn 900101-1234567 here</hp:t></hp:p></hs:sec>`},
		entry{"Preview/PrvText.txt", "preview 900101-1234567"},
		entry{"Preview/PrvImage.png", "fakepngbytes"},
	)

	out, count := d.Redact(doc)
	assert.Equal(t, 2, count)
	assert.Contains(t, string(readPart(t, out, "Contents/section0.xml")), "rrn ******-******* here")
	assert.Equal(t, "preview ******-*******", string(readPart(t, out, "Preview/PrvText.txt")))
	assert.Empty(t, readPart(t, out, "Preview/PrvImage.png"))
}

func TestRedactEmbeddedWorkbook(t *testing.T) {
	d := newTestDriver()
	embedded := buildZip(t,
		entry{"[Content_Types].xml", xlsxContentTypes},
		entry{"xl/sharedStrings.xml", `<sst><si><t>inner 010-2222-3333</t></si></sst>`},
	)
	doc := buildZip(t,
		entry{"[Content_Types].xml", docxContentTypes},
		entry{"word/document.xml", `<w:document><w:t>outer a@b.com</w:t></w:document>`},
		entry{"word/embeddings/oleObject1.xlsx", string(embedded)},
	)

	out, count := d.Redact(doc)
	assert.Equal(t, 2, count)

	inner := readPart(t, out, "word/embeddings/oleObject1.xlsx")
	assert.Contains(t, string(readPart(t, inner, "xl/sharedStrings.xml")), "inner ***-****-****")
}

func TestExtractText(t *testing.T) {
	d := newTestDriver()
	doc := buildZip(t,
		entry{"[Content_Types].xml", docxContentTypes},
		entry{"word/document.xml", `<w:document><w:t>first line</w:t><w:t>second line</w:t></w:document>`},
	)
	assert.Equal(t, "first line\nsecond line", d.ExtractText(doc))
}

func TestRedactUnknownFormatPassesThrough(t *testing.T) {
	d := newTestDriver()
	garbage := []byte("definitely not an archive")
	out, count := d.Redact(garbage)
	assert.Equal(t, 0, count)
	assert.Equal(t, garbage, out)

	plain := buildZip(t, entry{"data.bin", "010-1234-5678"})
	out, count = d.Redact(plain)
	assert.Equal(t, 0, count)
	assert.Equal(t, plain, out)
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pdf

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eclipso/internal/config"
	"eclipso/internal/detector"
)

func newTestDriver() *Driver {
	return NewDriver(detector.NewDefault(), nil, nil)
}

// buildPDF assembles a one-page document around the given content
// stream, computing the cross-reference offsets as it writes.
func buildPDF(t *testing.T, contents []byte, streamDict string) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := make([]int, 6)
	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	writeObj(3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
		"/Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>")
	writeObj(4, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	offsets[5] = buf.Len()
	fmt.Fprintf(&buf, "5 0 obj\n<< /Length %d %s>>\nstream\n", len(contents), streamDict)
	buf.Write(contents)
	buf.WriteString("\nendstream\nendobj\n")

	xrefOff := buf.Len()
	buf.WriteString("xref\n0 6\n0000000000 65535 f \n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size 6 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes()
}

func contentStream(text string) []byte {
	return []byte("BT /F1 12 Tf 72 720 Td (" + text + ") Tj ET")
}

func TestCanHandle(t *testing.T) {
	d := newTestDriver()
	assert.True(t, d.CanHandle([]byte("%PDF-1.4\nrest")))
	assert.True(t, d.CanHandle(append([]byte("junk preamble\n"), []byte("%PDF-1.7")...)))
	assert.False(t, d.CanHandle([]byte("plain text file")))
}

func TestExtractText(t *testing.T) {
	d := newTestDriver()
	doc := buildPDF(t, contentStream("Call 010-1234-5678 today"), "")

	text, err := d.ExtractText(doc)
	require.NoError(t, err)
	assert.Contains(t, text, "Call 010-1234-5678 today")
}

func TestRedactPlainStream(t *testing.T) {
	d := newTestDriver()
	doc := buildPDF(t, contentStream("Call 010-1234-5678, mail a@b.com"), "")

	out, count := d.Redact(doc)
	assert.Len(t, out, len(doc))
	assert.Equal(t, 2, count)
	assert.Contains(t, string(out), "Call ***-****-****, mail *******")
	assert.NotContains(t, string(out), "010-1234-5678")
	assert.NotContains(t, string(out), "a@b.com")
}

func TestRedactPlainStreamCustomGlyph(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Defaults.MaskGlyph = "#"
	d := NewDriver(detector.NewDefault(), cfg, nil)
	doc := buildPDF(t, contentStream("Call 010-1234-5678 today"), "")

	out, count := d.Redact(doc)
	assert.Len(t, out, len(doc))
	assert.Equal(t, 1, count)
	assert.Contains(t, string(out), "Call ###-####-#### today")
}

func TestRedactFlateStream(t *testing.T) {
	d := newTestDriver()

	// Repetition keeps the masked recompression within the original
	// compressed extent.
	plain := string(contentStream("num 010-5555-4444 x")) + strings.Repeat(" q Q", 64)
	var comp bytes.Buffer
	zw := zlib.NewWriter(&comp)
	_, err := zw.Write([]byte(plain))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	doc := buildPDF(t, comp.Bytes(), "/Filter /FlateDecode ")

	out, count := d.Redact(doc)
	assert.Len(t, out, len(doc))
	assert.GreaterOrEqual(t, count, 1)
	assert.NotContains(t, string(out), "010-5555-4444")

	// the patched stream must still inflate, to the masked text
	off := bytes.Index(out, []byte("stream\n")) + len("stream\n")
	zr, err := zlib.NewReader(bytes.NewReader(out[off:]))
	require.NoError(t, err)
	inflated := new(bytes.Buffer)
	_, err = inflated.ReadFrom(zr)
	require.NoError(t, err)
	assert.Contains(t, inflated.String(), "num ***-****-**** x")
}

func TestRedactRejectsGarbage(t *testing.T) {
	d := newTestDriver()
	garbage := []byte("not a pdf, but mentions 010-1234-5678")
	out, count := d.Redact(garbage)
	assert.Equal(t, 0, count)
	assert.Equal(t, garbage, out)

	broken := []byte("%PDF-1.4\nthis has a header and nothing else 010-1234-5678")
	out, count = d.Redact(broken)
	assert.Equal(t, 0, count)
	assert.Equal(t, broken, out)
}

func TestRedactNoFindingsReturnsOriginal(t *testing.T) {
	d := newTestDriver()
	doc := buildPDF(t, contentStream("nothing sensitive here"), "")
	out, count := d.Redact(doc)
	assert.Equal(t, 0, count)
	assert.Equal(t, doc, out)
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package msppt

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eclipso/internal/cfb"
	"eclipso/internal/cfb/cfbtest"
	"eclipso/internal/detector"
	"eclipso/internal/textenc"
)

// atom builds a leaf record.
func atom(verInst, rtype uint16, payload []byte) []byte {
	out := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint16(out[0:], verInst)
	binary.LittleEndian.PutUint16(out[2:], rtype)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(payload)))
	copy(out[headerSize:], payload)
	return out
}

// container wraps children in a container record (recVer 0xF).
func container(rtype uint16, children ...[]byte) []byte {
	body := bytes.Join(children, nil)
	return atom(0x000F, rtype, body)
}

func TestWalkLeafRecordsRecursesContainers(t *testing.T) {
	inner := atom(0, TypeTextCharsAtom, textenc.EncodeUTF16LE("hi"))
	doc := bytes.Join([][]byte{
		atom(0, 0x0FD9, []byte{1, 2, 3}),
		container(0x03EE, inner, atom(0, TypeTextBytesAtom, []byte("lo"))),
	}, nil)

	var got []LeafRecord
	WalkLeafRecords(doc, func(r LeafRecord) bool {
		got = append(got, r)
		return true
	})
	require.Len(t, got, 3)
	assert.Equal(t, uint16(0x0FD9), got[0].Type)

	// Absolute offsets: the text atom's payload must read back directly.
	assert.Equal(t, uint16(TypeTextCharsAtom), got[1].Type)
	payload := doc[got[1].DataOff : got[1].DataOff+got[1].Len]
	assert.Equal(t, "hi", textenc.DecodeUTF16LE(payload))

	assert.Equal(t, uint16(TypeTextBytesAtom), got[2].Type)
}

func TestWalkLeafRecordsStopsOnOverrun(t *testing.T) {
	bad := atom(0, TypeTextCharsAtom, []byte("xx"))
	binary.LittleEndian.PutUint32(bad[4:], 0xFFFF) // declared length overruns

	var got []LeafRecord
	WalkLeafRecords(bad, func(r LeafRecord) bool {
		got = append(got, r)
		return true
	})
	assert.Empty(t, got)
}

func TestCleanupDropsPlaceholderNoise(t *testing.T) {
	text := "실제 내용 010-1234-5678\n" +
		"마스터 제목 스타일 편집\n" +
		"두 번째 수준\n" +
		"•••\n" +
		"kept line"
	got := cleanup(text)
	assert.Contains(t, got, "실제 내용 010-1234-5678")
	assert.Contains(t, got, "kept line")
	assert.NotContains(t, got, "수준")
	assert.NotContains(t, got, "마스터")
	assert.NotContains(t, got, "•")
}

// buildPptImage assembles a compound file shaped like a presentation: a
// document stream with both text atom flavors plus a zlib-compressed chart
// blob, and a separate plain-text stream.
func buildPptImage(t *testing.T) []byte {
	t.Helper()

	var inner bytes.Buffer
	zw := zlib.NewWriter(&inner)
	_, err := zw.Write([]byte("chart series 010-7777-8888 with some padding text"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	doc := container(0x03EE,
		atom(0, TypeTextCharsAtom, textenc.EncodeUTF16LE("Tel 010-1234-5678")),
		atom(0, TypeTextBytesAtom, []byte("mail a@b.com")),
		atom(0, 0x1011, append(inner.Bytes(), make([]byte, 24)...)),
	)

	return cfbtest.Build(
		cfbtest.Stream{Path: []string{"PowerPoint Document"}, Data: doc},
		cfbtest.Stream{Path: []string{"Current User"}, Data: []byte("user 010-2222-3333 here")},
	)
}

func newTestDriver() *Driver {
	return NewDriver(detector.NewDefault(), nil, nil)
}

func TestDriverExtractText(t *testing.T) {
	img := buildPptImage(t)
	d := newTestDriver()

	require.True(t, d.CanHandle(img))

	text, err := d.ExtractText(img)
	require.NoError(t, err)
	assert.Contains(t, text, "Tel 010-1234-5678")
	assert.Contains(t, text, "mail a@b.com")
	assert.Contains(t, text, "010-7777-8888", "compressed chart blob text")
	assert.Contains(t, text, "010-2222-3333", "plain embedded stream text")
}

func TestDriverRedactEndToEnd(t *testing.T) {
	img := buildPptImage(t)
	d := newTestDriver()

	out, count := d.Redact(img)
	require.Equal(t, len(img), len(out), "PPT redaction must preserve file size")
	assert.Equal(t, 4, count, "both text atoms, chart blob, plain stream")

	c, err := cfb.Open(out)
	require.NoError(t, err)

	doc, err := c.ReadStream("PowerPoint Document")
	require.NoError(t, err)
	var chars, bytesTxt string
	WalkLeafRecords(doc, func(r LeafRecord) bool {
		payload := doc[r.DataOff : r.DataOff+r.Len]
		switch r.Type {
		case TypeTextCharsAtom:
			chars = textenc.DecodeUTF16LE(payload)
		case TypeTextBytesAtom:
			bytesTxt = string(payload)
		}
		return true
	})
	assert.Equal(t, "Tel ***-****-****", chars)
	assert.Equal(t, "mail *******", bytesTxt)

	cu, err := c.ReadStream("Current User")
	require.NoError(t, err)
	assert.Equal(t, "user ***-****-**** here", string(cu))

	// The chart blob no longer inflates to the phone number.
	text, err := d.ExtractText(out)
	require.NoError(t, err)
	assert.NotContains(t, text, "010-7777-8888")
}

func TestDriverPassthroughOnGarbage(t *testing.T) {
	d := newTestDriver()

	garbage := []byte("definitely not a presentation")
	out, count := d.Redact(garbage)
	assert.Equal(t, 0, count)
	assert.True(t, bytes.Equal(out, garbage))

	// A compound file without the document stream also passes through.
	img := cfbtest.Build(cfbtest.Stream{Path: []string{"Other"}, Data: []byte("data")})
	out, count = d.Redact(img)
	assert.Equal(t, 0, count)
	assert.True(t, bytes.Equal(out, img))
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package hwp

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eclipso/internal/cfb"
	"eclipso/internal/cfb/cfbtest"
	"eclipso/internal/detector"
	"eclipso/internal/textenc"
)

// rec builds a record with an inline size field.
func rec(tag, level int, payload []byte) []byte {
	hdr := uint32(tag) | uint32(level)<<10 | uint32(len(payload))<<20
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(out, hdr)
	copy(out[4:], payload)
	return out
}

// recWide builds a record using the 0xFFF size escape.
func recWide(tag, level int, payload []byte) []byte {
	hdr := uint32(tag) | uint32(level)<<10 | uint32(0xFFF)<<20
	out := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint32(out, hdr)
	binary.LittleEndian.PutUint32(out[4:], uint32(len(payload)))
	copy(out[8:], payload)
	return out
}

func le32(v uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, v)
	return out
}

func TestWalkRecords(t *testing.T) {
	data := append(rec(TagParaText, 0, []byte("abcd")), recWide(TagPicture, 2, bytes.Repeat([]byte{9}, 0x1000))...)

	var got []Record
	WalkRecords(data, func(r Record) bool {
		got = append(got, r)
		return true
	})
	require.Len(t, got, 2)
	assert.Equal(t, TagParaText, got[0].Tag)
	assert.Equal(t, []byte("abcd"), got[0].Payload)
	assert.Equal(t, TagPicture, got[1].Tag)
	assert.Equal(t, 2, got[1].Level)
	assert.Len(t, got[1].Payload, 0x1000, "escaped size must be honored")
}

func TestWalkRecordsTruncatedFinal(t *testing.T) {
	// Header declares 100 payload bytes, only 6 remain: the walker must
	// deliver one final record with the remainder and stop cleanly.
	full := rec(TagParaText, 0, make([]byte, 100))
	data := full[:10]

	var got []Record
	WalkRecords(data, func(r Record) bool {
		got = append(got, r)
		return true
	})
	require.Len(t, got, 1)
	assert.Len(t, got[0].Payload, 6)
	assert.Equal(t, len(data), got[0].End)
}

func TestDiscoverOleBinDataIDs(t *testing.T) {
	section := bytes.Join([][]byte{
		rec(TagCtrlHeader, 1, le32(CtrlIDOle)),
		rec(TagCtrlData, 1, le32(7)),
		rec(TagCtrlHeader, 1, le32(0x11223344)), // not $ole
		rec(TagCtrlData, 1, le32(8)),
		rec(TagCtrlHeader, 2, le32(CtrlIDOle)),
		rec(TagParaText, 1, []byte("xx")), // shallower level closes the control
		rec(TagCtrlData, 2, le32(9)),
	}, nil)

	ids := DiscoverOleBinDataIDs(section)
	assert.Equal(t, []uint32{7}, ids)
}

func TestSectionCompressionRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte("hwp section payload "), 20)

	for _, mode := range []CompressionMode{ModeRawDeflate, ModeZlib} {
		comp, err := RecompressSection(body, mode)
		require.NoError(t, err)

		dec, gotMode := DecompressSection(comp)
		assert.Equal(t, mode, gotMode)
		assert.Equal(t, body, dec)
	}

	// Plain data passes through as ModeNone.
	plain := []byte{0x00, 0x01, 0x02, 0x03}
	dec, mode := DecompressSection(plain)
	assert.Equal(t, ModeNone, mode)
	assert.Equal(t, plain, dec)
}

func TestFitToSize(t *testing.T) {
	assert.Equal(t, []byte{1, 2, 0, 0}, FitToSize([]byte{1, 2}, 4))
	assert.Equal(t, []byte{1, 2}, FitToSize([]byte{1, 2, 3}, 2))
	assert.Equal(t, []byte{1, 2}, FitToSize([]byte{1, 2}, 2))
}

func TestReplaceUTF16KeepLen(t *testing.T) {
	buf := textenc.EncodeUTF16LE("call 010-1234-5678 now")
	out, n := ReplaceUTF16KeepLen(buf, "010-1234-5678")
	assert.Equal(t, 1, n)
	assert.Equal(t, len(buf), len(out))
	assert.Equal(t, "call ***-****-**** now", textenc.DecodeUTF16LE(out))

	out, n = ReplaceUTF16KeepLen(buf, "absent")
	assert.Equal(t, 0, n)
	assert.Equal(t, buf, out)
}

func TestReplaceInBinData(t *testing.T) {
	blob := append([]byte("plain 010-1234-5678 and utf16 "), textenc.EncodeUTF16LE("010-1234-5678")...)
	out, n := ReplaceInBinData(blob, "010-1234-5678")
	assert.Equal(t, 2, n)
	assert.Equal(t, len(blob), len(out))
	assert.Contains(t, string(out[:30]), "*************", "single-byte hit fully starred")
	assert.Contains(t, textenc.DecodeUTF16LE(out[30:]), "***-****-****", "utf16 hit keeps dashes")
}

func TestDecodeAnyPrefersUTF8(t *testing.T) {
	plain := []byte("num 010-5555-4444 x")
	assert.Equal(t, string(plain), decodeAny(plain), "single-byte text decodes as-is")

	u16 := textenc.EncodeUTF16LE("Call 010-1234-5678")
	assert.Equal(t, "Call 010-1234-5678", decodeAny(u16), "interleaved NULs route to UTF-16")
}

func TestExtractBinDataTextCompressedASCII(t *testing.T) {
	var inner bytes.Buffer
	zw := zlib.NewWriter(&inner)
	_, err := zw.Write([]byte("ssn 900101-1234567 end"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	blob := append([]byte("HEAD"), inner.Bytes()...)

	texts := ExtractBinDataText(blob, 64, 64)
	found := false
	for _, txt := range texts {
		if strings.Contains(txt, "900101-1234567") {
			found = true
		}
	}
	assert.True(t, found, "compressed single-byte text surfaces")
}

// buildHwpImage assembles a compound file shaped like an HWP document:
// FileHeader, one deflated body section, a referenced BinData object with
// a zlib-compressed block, and preview streams.
func buildHwpImage(t *testing.T) []byte {
	t.Helper()

	section := bytes.Join([][]byte{
		rec(TagParaText, 0, textenc.EncodeUTF16LE("Call 010-1234-5678 today")),
		rec(TagCtrlHeader, 1, le32(CtrlIDOle)),
		rec(TagCtrlData, 1, le32(1)),
	}, nil)

	var comp bytes.Buffer
	fw, err := flate.NewWriter(&comp, flate.BestCompression)
	require.NoError(t, err)
	_, err = fw.Write(section)
	require.NoError(t, err)
	require.NoError(t, fw.Close())
	sectionStream := append(comp.Bytes(), make([]byte, 64)...) // recompression headroom

	var inner bytes.Buffer
	zw := zlib.NewWriter(&inner)
	_, err = zw.Write([]byte("num 010-5555-4444 x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	binData := append([]byte("JUNKJUNK"), inner.Bytes()...)
	binData = append(binData, make([]byte, 32)...)

	fileHeader := make([]byte, 256)
	copy(fileHeader, "HWP Document File")

	return cfbtest.Build(
		cfbtest.Stream{Path: []string{"FileHeader"}, Data: fileHeader},
		cfbtest.Stream{Path: []string{"BodyText", "Section0"}, Data: sectionStream},
		cfbtest.Stream{Path: []string{"BinData", "BIN0001.OLE"}, Data: binData},
		cfbtest.Stream{Path: []string{"PrvText"}, Data: textenc.EncodeUTF16LE("Call 010-1234-5678 today")},
		cfbtest.Stream{Path: []string{"PrvImage"}, Data: bytes.Repeat([]byte{0xAB}, 100)},
	)
}

func newTestDriver() *Driver {
	return NewDriver(detector.NewDefault(), nil, nil)
}

func TestDriverExtractText(t *testing.T) {
	img := buildHwpImage(t)
	d := newTestDriver()

	require.True(t, d.CanHandle(img))

	text, err := d.ExtractText(img)
	require.NoError(t, err)
	assert.Contains(t, text, "Call 010-1234-5678 today")
	assert.Contains(t, text, "010-5555-4444", "BinData compressed block text")
}

func TestDriverRedactEndToEnd(t *testing.T) {
	img := buildHwpImage(t)
	d := newTestDriver()

	out, count := d.Redact(img)
	require.Equal(t, len(img), len(out), "HWP redaction must preserve file size")
	assert.Equal(t, 3, count, "section + preview + object blob")

	c, err := cfb.Open(out)
	require.NoError(t, err)

	// Body section: inflate and check the paragraph text.
	raw, err := c.ReadStream("BodyText", "Section0")
	require.NoError(t, err)
	dec, mode := DecompressSection(raw)
	assert.Equal(t, ModeRawDeflate, mode)
	var para string
	WalkRecords(dec, func(r Record) bool {
		if r.Tag == TagParaText {
			para = textenc.DecodeUTF16LE(r.Payload)
		}
		return true
	})
	assert.Equal(t, "Call ***-****-**** today", para)

	// Preview text masked, preview image zeroed.
	prv, err := c.ReadStream("PrvText")
	require.NoError(t, err)
	assert.Equal(t, "Call ***-****-**** today", textenc.DecodeUTF16LE(prv))

	img2, err := c.ReadStream("PrvImage")
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 100), img2)

	// Object blob no longer inflates to the phone number.
	bin, err := c.ReadStream("BinData", "BIN0001.OLE")
	require.NoError(t, err)
	found := false
	for _, s := range ExtractBinDataText(bin, 64, 64) {
		if bytes.Contains([]byte(s), []byte("010-5555-4444")) {
			found = true
		}
	}
	assert.False(t, found, "compressed blob must be scrubbed")
}

func TestDriverRedactIsIdempotent(t *testing.T) {
	img := buildHwpImage(t)
	d := newTestDriver()

	once, _ := d.Redact(img)
	twice, count := d.Redact(once)
	assert.Equal(t, 0, count)
	assert.True(t, bytes.Equal(once, twice), "second pass must be a byte-identical no-op")
}

func TestDriverPassthroughOnGarbage(t *testing.T) {
	d := newTestDriver()
	garbage := []byte("not an hwp file")
	out, count := d.Redact(garbage)
	assert.Equal(t, 0, count)
	assert.True(t, bytes.Equal(out, garbage))
}

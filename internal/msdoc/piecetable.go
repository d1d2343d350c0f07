// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package msdoc redacts legacy Word binary documents (.doc). The document's
// text lives in the WordDocument stream, addressed through a piece table
// (PlcPcd) stored in the table stream: each piece maps a logical character
// range to a physical byte run with its own encoding width. Redaction
// rewrites those byte runs in place, so stream and file sizes never change.
package msdoc

import (
	"encoding/binary"

	"eclipso/internal/spanmap"
	"eclipso/internal/textenc"
)

// FIB field offsets (MS-DOC).
const (
	fibFlagsOffset = 0x000A
	fibWhichTblStm = 0x0200
	fibFcClxOffset = 0x01A2
	fibLcbClxOffset = 0x01A6
)

// Piece is one contiguous run of document text.
type Piece struct {
	// Index is the piece's position in the table
	Index int

	// FC is the byte offset of the run in the WordDocument stream
	FC int64

	// ByteCount is the run's physical length
	ByteCount int

	// Compressed selects the 1-byte legacy codepage over UTF-16LE
	Compressed bool

	// CPStart and CPEnd bound the logical character range (half-open)
	CPStart int
	CPEnd   int
}

// Width returns the piece's bytes per character.
func (p Piece) Width() int {
	if p.Compressed {
		return 1
	}
	return 2
}

// TableStreamName returns the table stream the FIB points at: "1Table" when
// the fWhichTblStm flag is set, else "0Table".
func TableStreamName(wordData []byte) string {
	if len(wordData) < fibFlagsOffset+2 {
		return "0Table"
	}
	flags := binary.LittleEndian.Uint16(wordData[fibFlagsOffset:])
	if flags&fibWhichTblStm != 0 {
		return "1Table"
	}
	return "0Table"
}

// LocateClx slices the CLX structure out of the table stream using the FIB
// offset/length pair. Returns nil when the fields are out of bounds.
func LocateClx(wordData, tableData []byte) []byte {
	if len(wordData) < fibLcbClxOffset+4 {
		return nil
	}
	fcClx := int64(binary.LittleEndian.Uint32(wordData[fibFcClxOffset:]))
	lcbClx := int64(binary.LittleEndian.Uint32(wordData[fibLcbClxOffset:]))
	if lcbClx == 0 || fcClx+lcbClx > int64(len(tableData)) {
		return nil
	}
	return tableData[fcClx : fcClx+lcbClx]
}

// ExtractPieceTable walks the CLX's tagged prefix and returns the raw PlcPcd
// bytes. A property sub-block (tag 0x01) is skipped; tag 0x02 carries the
// piece table. Any other leading tag means no extractable text.
func ExtractPieceTable(clx []byte) []byte {
	i := 0
	for i < len(clx) {
		tag := clx[i]
		i++
		switch tag {
		case 0x01:
			if i+2 > len(clx) {
				return nil
			}
			cb := int(binary.LittleEndian.Uint16(clx[i:]))
			i += 2 + cb
		case 0x02:
			if i+4 > len(clx) {
				return nil
			}
			lcb := int(binary.LittleEndian.Uint32(clx[i:]))
			i += 4
			if i+lcb > len(clx) {
				return nil
			}
			return clx[i : i+lcb]
		default:
			return nil
		}
	}
	return nil
}

// ParsePieces decodes a PlcPcd blob: n+1 cumulative character positions
// followed by n 8-byte descriptors. Bit 30 of the descriptor's fc word is
// the compression flag; the low 30 bits are the byte offset.
func ParsePieces(blob []byte) []Piece {
	size := len(blob)
	if size < 4 || (size-4)%12 != 0 {
		return nil
	}
	n := (size - 4) / 12

	cps := make([]int, n+1)
	for i := 0; i <= n; i++ {
		cps[i] = int(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	pcdOff := 4 * (n + 1)

	pieces := make([]Piece, 0, n)
	for k := 0; k < n; k++ {
		pcd := blob[pcdOff+8*k : pcdOff+8*(k+1)]
		fcRaw := binary.LittleEndian.Uint32(pcd[2:6])
		fc := int64(fcRaw & 0x3FFFFFFF)
		compressed := fcRaw&0x40000000 != 0

		charCount := cps[k+1] - cps[k]
		byteCount := charCount
		if !compressed {
			byteCount = charCount * 2
		}
		pieces = append(pieces, Piece{
			Index:      k,
			FC:         fc,
			ByteCount:  byteCount,
			Compressed: compressed,
			CPStart:    cps[k],
			CPEnd:      cps[k+1],
		})
	}
	return pieces
}

// DecodePiece decodes the piece's byte run from the WordDocument stream.
// Runs past the end of the stream decode to "".
func DecodePiece(wordData []byte, p Piece) string {
	start, end := p.FC, p.FC+int64(p.ByteCount)
	if start < 0 || end > int64(len(wordData)) {
		return ""
	}
	chunk := wordData[start:end]
	if p.Compressed {
		return textenc.DecodeWindows1252(chunk)
	}
	return textenc.DecodeUTF16LE(chunk)
}

// BuildSegments decodes all pieces and lays them out over a single logical
// text (the concatenation of the decoded runs). The decoded character count
// of a piece can drift slightly from its logical range; drift within
// driftTolerance is carried into the next piece's logical start, larger
// mismatches are ignored. Returns the segments and the logical text.
func BuildSegments(wordData []byte, pieces []Piece, driftTolerance int) ([]spanmap.Segment, string) {
	var segments []spanmap.Segment
	var text []rune

	cur := 0
	for _, p := range pieces {
		decoded := []rune(DecodePiece(wordData, p))
		cpLen := p.CPEnd - p.CPStart
		diff := cpLen - len(decoded)

		segments = append(segments, spanmap.Segment{
			LogicalStart: cur,
			LogicalEnd:   cur + cpLen,
			ByteOffset:   p.FC,
			Width:        p.Width(),
		})
		text = append(text, decoded...)

		if diff != 0 && abs(diff) <= driftTolerance {
			cur += cpLen - diff // advance by the decoded length
		} else {
			cur += cpLen
		}
	}
	return segments, string(text)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package hwp redacts Hangul word processor (.hwp) documents. Body text
// lives in whole-stream-deflated BodyText/Section streams as a flat record
// sequence; embedded charts and objects hang off BinData streams referenced
// by $ole control records. All rewrites preserve stream and file sizes.
package hwp

import "encoding/binary"

// Record tags handled by the driver.
const (
	TagParaText   = 67
	TagPicture    = 0x04F
	TagCtrlHeader = 0x0010
	TagCtrlData   = 0x0011
)

// CtrlIDOle is the '$ole' control id as stored in a CTRL_HEADER payload.
const CtrlIDOle = uint32('$') | uint32('o')<<8 | uint32('l')<<16 | uint32('e')<<24

// Record is one record of a decompressed section stream.
type Record struct {
	Tag   int
	Level int

	// Payload aliases the walked buffer; in-place edits write through.
	Payload []byte

	// Start and End are the record's byte extent, header included.
	Start int
	End   int
}

// WalkRecords iterates the record sequence of data, calling fn for each
// record until fn returns false or the data runs out. The 32-bit header
// packs tag (10 bits), level (10 bits) and size (12 bits); size 0xFFF
// escapes to a trailing 32-bit size word. A final record whose declared
// size overruns the buffer is delivered with the remaining bytes as its
// payload, then the walk stops.
func WalkRecords(data []byte, fn func(Record) bool) {
	off, n := 0, len(data)
	for off+4 <= n {
		hdr := binary.LittleEndian.Uint32(data[off:])
		tag := int(hdr & 0x3FF)
		level := int(hdr >> 10 & 0x3FF)
		size := int(hdr >> 20 & 0xFFF)

		start := off
		off += 4
		if size == 0xFFF {
			if off+4 > n {
				return
			}
			size = int(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}

		if off+size > n {
			fn(Record{Tag: tag, Level: level, Payload: data[off:n], Start: start, End: n})
			return
		}
		end := off + size
		if !fn(Record{Tag: tag, Level: level, Payload: data[off:end], Start: start, End: end}) {
			return
		}
		off = end
	}
}

// DiscoverOleBinDataIDs scans a decompressed section for $ole control
// records and returns the BinData ids their CTRL_DATA records reference.
// The CTRL_DATA must sit at the CTRL_HEADER's own level; a record at a
// shallower level closes the pending control.
func DiscoverOleBinDataIDs(section []byte) []uint32 {
	var ids []uint32
	pending := -1
	WalkRecords(section, func(r Record) bool {
		switch {
		case r.Tag == TagCtrlHeader:
			pending = -1
			if len(r.Payload) >= 4 && binary.LittleEndian.Uint32(r.Payload) == CtrlIDOle {
				pending = r.Level
			}
		case pending >= 0 && r.Tag == TagCtrlData && r.Level == pending:
			if len(r.Payload) >= 4 {
				ids = append(ids, binary.LittleEndian.Uint32(r.Payload))
			}
			pending = -1
		case pending >= 0 && r.Level < pending:
			pending = -1
		}
		return true
	})
	return ids
}

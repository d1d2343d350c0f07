// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package msppt redacts legacy PowerPoint binary presentations (.ppt).
// Slide text lives in text atoms inside the "PowerPoint Document" stream's
// record tree; embedded charts ride along as zlib-compressed OLE blobs.
// All rewrites happen at the atoms' original byte extents.
package msppt

import "encoding/binary"

// Text-bearing record types.
const (
	TypeTextCharsAtom = 0x0FA0 // UTF-16LE
	TypeTextBytesAtom = 0x0FA8 // single-byte
)

const headerSize = 8

// LeafRecord is one non-container record, addressed by its absolute data
// offset in the walked stream.
type LeafRecord struct {
	RecVer  int
	Type    uint16
	Len     int
	DataOff int
}

// WalkLeafRecords descends the record tree of buf and calls fn for every
// leaf record until fn returns false. A record whose recVer nibble is 0xF
// is a container; its payload is walked recursively. Records whose declared
// length overruns the buffer terminate the walk at that level.
func WalkLeafRecords(buf []byte, fn func(LeafRecord) bool) {
	walk(buf, 0, fn)
}

func walk(buf []byte, base int, fn func(LeafRecord) bool) bool {
	i, n := 0, len(buf)
	for i+headerSize <= n {
		verInst := binary.LittleEndian.Uint16(buf[i:])
		rtype := binary.LittleEndian.Uint16(buf[i+2:])
		rlen := int(binary.LittleEndian.Uint32(buf[i+4:]))

		dataStart := i + headerSize
		dataEnd := dataStart + rlen
		if rlen < 0 || dataEnd > n {
			return true
		}

		if verInst&0x000F == 0x000F {
			if !walk(buf[dataStart:dataEnd], base+dataStart, fn) {
				return false
			}
		} else {
			if !fn(LeafRecord{RecVer: int(verInst & 0x000F), Type: rtype, Len: rlen, DataOff: base + dataStart}) {
				return false
			}
		}
		i = dataEnd
	}
	return true
}

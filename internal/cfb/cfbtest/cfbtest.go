// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package cfbtest assembles minimal compound-file images for driver tests.
// The builder emits a v3 layout with one FAT sector and one mini FAT
// sector: streams under the 4096-byte cutoff go into the root mini stream,
// larger ones into big sectors, the same split real writers produce.
package cfbtest

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

// Stream is one stream to place in the image. Path components before the
// last become storages (depth two at most).
type Stream struct {
	Path []string
	Data []byte
}

const (
	sectorSize     = 512
	miniSectorSize = 64
	miniCutoff     = 4096

	secFree       = 0xFFFFFFFF
	secEndOfChain = 0xFFFFFFFE
	secFAT        = 0xFFFFFFFD

	typeStorage     = 1
	typeStream      = 2
	typeRootStorage = 5
)

type entry struct {
	name  string
	typ   byte
	left  uint32
	right uint32
	child uint32
	start uint32
	size  uint64
}

// Build assembles a compound file containing the given streams. It panics
// on layouts the builder cannot express; tests construct fixtures, so a
// panic is a test bug.
func Build(streams ...Stream) []byte {
	entries := []entry{{name: "Root Entry", typ: typeRootStorage, left: secFree, right: secFree, child: secFree, start: secEndOfChain}}

	// Storages for unique first path components of depth-2 streams.
	storageID := map[string]uint32{}
	var storageNames []string
	for _, s := range streams {
		switch len(s.Path) {
		case 1:
		case 2:
			if _, ok := storageID[s.Path[0]]; !ok {
				storageID[s.Path[0]] = uint32(len(entries))
				storageNames = append(storageNames, s.Path[0])
				entries = append(entries, entry{name: s.Path[0], typ: typeStorage, left: secFree, right: secFree, child: secFree, start: secEndOfChain})
			}
		default:
			panic(fmt.Sprintf("cfbtest: unsupported path depth %d", len(s.Path)))
		}
	}
	streamID := make([]uint32, len(streams))
	for i, s := range streams {
		streamID[i] = uint32(len(entries))
		entries = append(entries, entry{name: s.Path[len(s.Path)-1], typ: typeStream, left: secFree, right: secFree, child: secFree, start: secEndOfChain, size: uint64(len(s.Data))})
	}

	// Sibling chains: root's children are the storages plus the top-level
	// streams; each storage's children are its own streams.
	link := func(parent uint32, kids []uint32) {
		if len(kids) == 0 {
			return
		}
		entries[parent].child = kids[0]
		for i := 0; i+1 < len(kids); i++ {
			entries[kids[i]].right = kids[i+1]
		}
	}
	var topKids []uint32
	for _, name := range storageNames {
		topKids = append(topKids, storageID[name])
	}
	perStorage := map[string][]uint32{}
	for i, s := range streams {
		if len(s.Path) == 1 {
			topKids = append(topKids, streamID[i])
		} else {
			perStorage[s.Path[0]] = append(perStorage[s.Path[0]], streamID[i])
		}
	}
	link(0, topKids)
	for name, kids := range perStorage {
		link(storageID[name], kids)
	}

	// Mini stream allocation for streams under the cutoff.
	miniFAT := make([]uint32, 128)
	for i := range miniFAT {
		miniFAT[i] = secFree
	}
	nextMini := uint32(0)
	isMini := make([]bool, len(streams))
	for i, s := range streams {
		if len(s.Data) == 0 || len(s.Data) >= miniCutoff {
			continue
		}
		isMini[i] = true
		n := uint32((len(s.Data) + miniSectorSize - 1) / miniSectorSize)
		entries[streamID[i]].start = nextMini
		for j := uint32(0); j < n; j++ {
			if j+1 < n {
				miniFAT[nextMini+j] = nextMini + j + 1
			} else {
				miniFAT[nextMini+j] = secEndOfChain
			}
		}
		nextMini += n
	}
	if nextMini > 128 {
		panic("cfbtest: fixture exceeds one mini FAT sector")
	}
	miniBytes := int(nextMini) * miniSectorSize
	miniBigSectors := uint32((miniBytes + sectorSize - 1) / sectorSize)

	// Sector layout: FAT 0, mini FAT 1, directory, mini stream, big data.
	dirSectors := uint32((len(entries) + 3) / 4)
	dirStart := uint32(2)
	miniStart := dirStart + dirSectors
	next := miniStart + miniBigSectors
	type run struct{ start, count uint32 }
	runs := make([]run, len(streams))
	for i, s := range streams {
		if isMini[i] || len(s.Data) == 0 {
			continue
		}
		n := uint32((len(s.Data) + sectorSize - 1) / sectorSize)
		runs[i] = run{start: next, count: n}
		entries[streamID[i]].start = next
		next += n
	}
	total := next
	if total > 128 {
		panic("cfbtest: fixture exceeds one FAT sector")
	}
	if miniBigSectors > 0 {
		entries[0].start = miniStart
		entries[0].size = uint64(miniBytes)
	}

	img := make([]byte, int(total+1)*sectorSize)

	// Header.
	binary.LittleEndian.PutUint64(img[0:], 0xE11AB1A1E011CFD0)
	binary.LittleEndian.PutUint16(img[24:], 0x003E)
	binary.LittleEndian.PutUint16(img[26:], 3)
	binary.LittleEndian.PutUint16(img[28:], 0xFFFE)
	binary.LittleEndian.PutUint16(img[30:], 9)
	binary.LittleEndian.PutUint16(img[32:], 6)
	binary.LittleEndian.PutUint32(img[44:], 1)
	binary.LittleEndian.PutUint32(img[48:], dirStart)
	binary.LittleEndian.PutUint32(img[56:], miniCutoff)
	binary.LittleEndian.PutUint32(img[60:], 1)
	binary.LittleEndian.PutUint32(img[64:], 1)
	binary.LittleEndian.PutUint32(img[68:], secEndOfChain)
	binary.LittleEndian.PutUint32(img[76:], 0)
	for i := 1; i < 109; i++ {
		binary.LittleEndian.PutUint32(img[76+i*4:], secFree)
	}

	sector := func(n uint32) []byte {
		off := int(n+1) * sectorSize
		return img[off : off+sectorSize]
	}

	// FAT.
	fat := sector(0)
	for i := 0; i < 128; i++ {
		binary.LittleEndian.PutUint32(fat[i*4:], secFree)
	}
	chain := func(start, count uint32) {
		for i := uint32(0); i < count; i++ {
			if i+1 < count {
				binary.LittleEndian.PutUint32(fat[(start+i)*4:], start+i+1)
			} else {
				binary.LittleEndian.PutUint32(fat[(start+i)*4:], secEndOfChain)
			}
		}
	}
	binary.LittleEndian.PutUint32(fat[0:], secFAT)
	binary.LittleEndian.PutUint32(fat[4:], secEndOfChain) // mini FAT
	chain(dirStart, dirSectors)
	if miniBigSectors > 0 {
		chain(miniStart, miniBigSectors)
	}
	for i := range streams {
		if runs[i].count > 0 {
			chain(runs[i].start, runs[i].count)
		}
	}

	// Mini FAT.
	mfat := sector(1)
	for i, v := range miniFAT {
		binary.LittleEndian.PutUint32(mfat[i*4:], v)
	}

	// Directory entries.
	for i, e := range entries {
		b := img[int(dirStart+1)*sectorSize+i*128:]
		u := utf16.Encode([]rune(e.name))
		for j, cu := range u {
			binary.LittleEndian.PutUint16(b[j*2:], cu)
		}
		binary.LittleEndian.PutUint16(b[64:], uint16(len(u)*2+2))
		b[66] = e.typ
		binary.LittleEndian.PutUint32(b[68:], e.left)
		binary.LittleEndian.PutUint32(b[72:], e.right)
		binary.LittleEndian.PutUint32(b[76:], e.child)
		binary.LittleEndian.PutUint32(b[116:], e.start)
		binary.LittleEndian.PutUint64(b[120:], e.size)
	}

	// Payloads.
	miniBase := int(miniStart+1) * sectorSize
	for i, s := range streams {
		if len(s.Data) == 0 {
			continue
		}
		if isMini[i] {
			copy(img[miniBase+int(entries[streamID[i]].start)*miniSectorSize:], s.Data)
		} else {
			copy(img[int(runs[i].start+1)*sectorSize:], s.Data)
		}
	}
	return img
}

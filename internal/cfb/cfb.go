// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package cfb reads and patches Compound File Binary (OLE2) containers.
//
// The writer is deliberately narrow: it can only overwrite the contents of
// an existing stream inside the container image it was opened with. The
// directory, FAT and sector layout are never modified, so the total image
// length is guaranteed to stay constant.
package cfb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

var (
	// ErrNotCompoundFile indicates the input is not a CFB container
	ErrNotCompoundFile = errors.New("cfb: not a compound file")

	// ErrStreamNotFound indicates the requested stream path does not exist
	ErrStreamNotFound = errors.New("cfb: stream not found")

	// ErrLengthMismatch indicates replacement bytes differ in length from the stream
	ErrLengthMismatch = errors.New("cfb: replacement length does not match stream size")

	// ErrCorruptChain indicates a FAT or mini FAT chain is cyclic or truncated
	ErrCorruptChain = errors.New("cfb: corrupt sector chain")
)

// Sector sentinels from MS-CFB.
const (
	secFree       uint32 = 0xFFFFFFFF // FREESECT
	secEndOfChain uint32 = 0xFFFFFFFE // ENDOFCHAIN
	secFAT        uint32 = 0xFFFFFFFD // FATSECT
	secDIFAT      uint32 = 0xFFFFFFFC // DIFSECT
	secMaxRegular uint32 = 0xFFFFFFFA // MAXREGSECT
)

const (
	signature = uint64(0xE11AB1A1E011CFD0)

	miniSectorSize = 64

	// DefaultMiniCutoff is the stream size below which the mini FAT is used.
	DefaultMiniCutoff = 4096

	// MaxChainSteps is the default cap on FAT chain traversal, guarding
	// against cyclic chains.
	MaxChainSteps = 65536

	// MaxChainBytes caps the number of bytes copied along one chain.
	MaxChainBytes = 64 << 20

	dirEntrySize = 128
)

// Directory entry object types.
const (
	typeUnknown     byte = 0x00
	typeStorage     byte = 0x01
	typeStream      byte = 0x02
	typeRootStorage byte = 0x05
)

// DirectoryEntry identifies one named stream inside a container.
type DirectoryEntry struct {
	// Path holds the storage path components, e.g. ["BodyText", "Section0"]
	Path []string

	// Name is the final path component
	Name string

	// StartSector is the first sector of the stream's chain
	StartSector uint32

	// Size is the stream size in bytes
	Size uint64

	// id is the index into the raw directory array
	id int

	objectType byte
}

// InMiniStream reports whether the stream lives in the mini (small object)
// allocation region given the container's cutoff.
func (e *DirectoryEntry) InMiniStream(cutoff uint32) bool {
	return e.objectType == typeStream && e.Size < uint64(cutoff)
}

// Container is a parsed compound file backed by a single mutable image.
// The image is owned by the container for its lifetime; OverwriteEntry
// mutates it in place.
type Container struct {
	image []byte

	sectorSize int
	miniCutoff uint32
	maxSteps   int

	fat     []uint32
	miniFat []uint32

	// miniStreamOffsets maps each big sector of the root mini stream to its
	// absolute offset in the image
	miniStreamOffsets []int64

	entries []DirectoryEntry
}

type rawDirent struct {
	name        string
	objectType  byte
	left        uint32
	right       uint32
	child       uint32
	startSector uint32
	size        uint64
}

// Open parses a compound file image. The container takes ownership of data:
// later stream overwrites mutate it directly.
func Open(data []byte) (*Container, error) {
	return OpenLimit(data, MaxChainSteps)
}

// OpenLimit is Open with a caller-chosen cap on sector chain traversal.
// Zero or negative falls back to MaxChainSteps.
func OpenLimit(data []byte, maxChainSteps int) (*Container, error) {
	if maxChainSteps <= 0 {
		maxChainSteps = MaxChainSteps
	}
	if len(data) < 512 {
		return nil, ErrNotCompoundFile
	}
	if binary.LittleEndian.Uint64(data[0:8]) != signature {
		return nil, ErrNotCompoundFile
	}

	major := binary.LittleEndian.Uint16(data[26:28])
	shift := binary.LittleEndian.Uint16(data[30:32])
	if (major != 3 && major != 4) || (shift != 9 && shift != 12) {
		return nil, ErrNotCompoundFile
	}

	c := &Container{
		image:      data,
		sectorSize: 1 << shift,
		miniCutoff: binary.LittleEndian.Uint32(data[56:60]),
		maxSteps:   maxChainSteps,
	}
	if c.miniCutoff == 0 {
		c.miniCutoff = DefaultMiniCutoff
	}

	if err := c.loadFAT(); err != nil {
		return nil, err
	}
	if err := c.loadMiniFAT(); err != nil {
		return nil, err
	}
	if err := c.loadDirectory(major); err != nil {
		return nil, err
	}
	return c, nil
}

// Bytes returns the backing container image.
func (c *Container) Bytes() []byte { return c.image }

// MiniCutoff returns the mini stream size cutoff in effect.
func (c *Container) MiniCutoff() uint32 { return c.miniCutoff }

// sectorOffset translates a sector index to an absolute image offset.
// Sector 0 begins right after the 512-byte header, hence the +1.
func (c *Container) sectorOffset(sector uint32) int64 {
	return int64(sector+1) * int64(c.sectorSize)
}

func (c *Container) loadFAT() error {
	numEntries := c.sectorSize / 4

	// The first 109 DIFAT slots live in the header.
	var fatSectors []uint32
	for i := 0; i < 109; i++ {
		sid := binary.LittleEndian.Uint32(c.image[76+i*4 : 80+i*4])
		if sid == secFree || sid == secEndOfChain {
			break
		}
		fatSectors = append(fatSectors, sid)
	}

	// Additional DIFAT sectors chain via their last entry.
	difat := binary.LittleEndian.Uint32(c.image[68:72])
	numDifat := binary.LittleEndian.Uint32(c.image[72:76])
	for steps := uint32(0); difat != secEndOfChain && difat != secFree && steps < numDifat; steps++ {
		off := c.sectorOffset(difat)
		if off+int64(c.sectorSize) > int64(len(c.image)) {
			return ErrCorruptChain
		}
		sector := c.image[off : off+int64(c.sectorSize)]
		for j := 0; j < numEntries-1; j++ {
			sid := binary.LittleEndian.Uint32(sector[j*4 : j*4+4])
			if sid != secFree {
				fatSectors = append(fatSectors, sid)
			}
		}
		difat = binary.LittleEndian.Uint32(sector[len(sector)-4:])
	}

	c.fat = make([]uint32, 0, len(fatSectors)*numEntries)
	for _, sid := range fatSectors {
		off := c.sectorOffset(sid)
		if off+int64(c.sectorSize) > int64(len(c.image)) {
			return ErrCorruptChain
		}
		for j := 0; j < numEntries; j++ {
			c.fat = append(c.fat, binary.LittleEndian.Uint32(c.image[off+int64(j*4):off+int64(j*4)+4]))
		}
	}
	return nil
}

func (c *Container) loadMiniFAT() error {
	numEntries := c.sectorSize / 4
	sid := binary.LittleEndian.Uint32(c.image[60:64])

	for steps := 0; sid != secEndOfChain && sid != secFree; steps++ {
		if steps > c.maxSteps {
			return ErrCorruptChain
		}
		off := c.sectorOffset(sid)
		if off+int64(c.sectorSize) > int64(len(c.image)) {
			return ErrCorruptChain
		}
		for j := 0; j < numEntries; j++ {
			c.miniFat = append(c.miniFat, binary.LittleEndian.Uint32(c.image[off+int64(j*4):off+int64(j*4)+4]))
		}
		if int(sid) >= len(c.fat) {
			return ErrCorruptChain
		}
		sid = c.fat[sid]
	}
	return nil
}

func (c *Container) loadDirectory(major uint16) error {
	sid := binary.LittleEndian.Uint32(c.image[48:52])

	var raw []rawDirent
	for steps := 0; sid != secEndOfChain && sid != secFree; steps++ {
		if steps > c.maxSteps {
			return ErrCorruptChain
		}
		off := c.sectorOffset(sid)
		if off+int64(c.sectorSize) > int64(len(c.image)) {
			return ErrCorruptChain
		}
		for j := 0; j+dirEntrySize <= c.sectorSize; j += dirEntrySize {
			raw = append(raw, parseDirent(c.image[off+int64(j):off+int64(j)+dirEntrySize], major))
		}
		if int(sid) >= len(c.fat) {
			return ErrCorruptChain
		}
		sid = c.fat[sid]
	}
	if len(raw) == 0 || raw[0].objectType != typeRootStorage {
		return ErrNotCompoundFile
	}

	// The root entry's chain holds the mini stream.
	c.collectMiniStreamOffsets(raw[0].startSector)

	// Walk the red-black sibling/child tree from the root to assemble paths.
	visited := make(map[uint32]bool)
	c.walkDirTree(raw, raw[0].child, nil, visited)
	return nil
}

func parseDirent(b []byte, major uint16) rawDirent {
	var d rawDirent
	nameLen := int(binary.LittleEndian.Uint16(b[64:66]))
	if nameLen >= 2 && nameLen <= 64 {
		u16 := make([]uint16, (nameLen-2)/2)
		for i := range u16 {
			u16[i] = binary.LittleEndian.Uint16(b[i*2 : i*2+2])
		}
		d.name = string(utf16.Decode(u16))
	}
	d.objectType = b[66]
	d.left = binary.LittleEndian.Uint32(b[68:72])
	d.right = binary.LittleEndian.Uint32(b[72:76])
	d.child = binary.LittleEndian.Uint32(b[76:80])
	d.startSector = binary.LittleEndian.Uint32(b[116:120])
	d.size = binary.LittleEndian.Uint64(b[120:128])
	if major == 3 {
		d.size &= 0xFFFFFFFF
	}
	return d
}

func (c *Container) collectMiniStreamOffsets(start uint32) {
	sid := start
	for steps := 0; sid != secEndOfChain && sid != secFree && int(sid) < len(c.fat); steps++ {
		if steps > c.maxSteps {
			return
		}
		c.miniStreamOffsets = append(c.miniStreamOffsets, c.sectorOffset(sid))
		sid = c.fat[sid]
	}
}

func (c *Container) walkDirTree(raw []rawDirent, id uint32, path []string, visited map[uint32]bool) {
	if id == secFree || int(id) >= len(raw) || visited[id] {
		return
	}
	visited[id] = true
	d := raw[id]

	c.walkDirTree(raw, d.left, path, visited)
	c.walkDirTree(raw, d.right, path, visited)

	switch d.objectType {
	case typeStorage:
		c.walkDirTree(raw, d.child, append(append([]string(nil), path...), d.name), visited)
	case typeStream:
		full := append(append([]string(nil), path...), d.name)
		c.entries = append(c.entries, DirectoryEntry{
			Path:        full,
			Name:        d.name,
			StartSector: d.startSector,
			Size:        d.size,
			id:          int(id),
			objectType:  d.objectType,
		})
	}
}

// Streams returns all stream entries in the container, with full paths.
func (c *Container) Streams() []DirectoryEntry {
	out := make([]DirectoryEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// FindStream locates a stream by its exact path components.
func (c *Container) FindStream(path ...string) (*DirectoryEntry, bool) {
	for i := range c.entries {
		if pathEqual(c.entries[i].Path, path) {
			return &c.entries[i], true
		}
	}
	return nil, false
}

func pathEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ReadStream reads the full contents of the stream at path.
func (c *Container) ReadStream(path ...string) ([]byte, error) {
	e, ok := c.FindStream(path...)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrStreamNotFound, path)
	}
	return c.ReadEntry(e)
}

// ReadEntry reads the full contents of a stream entry.
func (c *Container) ReadEntry(e *DirectoryEntry) ([]byte, error) {
	out := make([]byte, e.Size)
	var n int
	var err error
	if e.InMiniStream(c.miniCutoff) {
		n, err = c.copyMiniChain(e.StartSector, out, nil)
	} else {
		n, err = c.copyChain(e.StartSector, out, nil)
	}
	if err != nil {
		return nil, err
	}
	if uint64(n) < e.Size {
		return nil, ErrCorruptChain
	}
	return out, nil
}

// OverwriteEntry replaces the contents of a stream in place. newBytes must
// have exactly the entry's size; the sector chain is never extended or
// shrunk, so the container image keeps its length.
func (c *Container) OverwriteEntry(e *DirectoryEntry, newBytes []byte) error {
	if uint64(len(newBytes)) != e.Size {
		return fmt.Errorf("%w: have %d, want %d", ErrLengthMismatch, len(newBytes), e.Size)
	}
	var err error
	if e.InMiniStream(c.miniCutoff) {
		_, err = c.copyMiniChain(e.StartSector, nil, newBytes)
	} else {
		_, err = c.copyChain(e.StartSector, nil, newBytes)
	}
	return err
}

// OverwriteStream replaces the contents of the stream at path in place.
func (c *Container) OverwriteStream(newBytes []byte, path ...string) error {
	e, ok := c.FindStream(path...)
	if !ok {
		return fmt.Errorf("%w: %v", ErrStreamNotFound, path)
	}
	return c.OverwriteEntry(e, newBytes)
}

// copyChain walks a big FAT chain. Exactly one of dst (read) or src (write)
// is non-nil; the other direction copies between the chain's sectors and the
// provided buffer. Returns the number of bytes transferred.
func (c *Container) copyChain(start uint32, dst, src []byte) (int, error) {
	want := len(dst) + len(src)
	sid := start
	pos := 0
	for steps := 0; sid != secEndOfChain && sid != secFree && pos < want; steps++ {
		if steps > c.maxSteps || pos > MaxChainBytes {
			return pos, ErrCorruptChain
		}
		if int(sid) >= len(c.fat) {
			return pos, ErrCorruptChain
		}
		off := c.sectorOffset(sid)
		if off+int64(c.sectorSize) > int64(len(c.image)) {
			return pos, ErrCorruptChain
		}
		n := c.sectorSize
		if want-pos < n {
			n = want - pos
		}
		if dst != nil {
			copy(dst[pos:pos+n], c.image[off:off+int64(n)])
		} else {
			copy(c.image[off:off+int64(n)], src[pos:pos+n])
		}
		pos += n
		sid = c.fat[sid]
	}
	return pos, nil
}

// copyMiniChain walks a mini FAT chain, translating mini sector indices
// through the root entry's mini stream sectors.
func (c *Container) copyMiniChain(start uint32, dst, src []byte) (int, error) {
	want := len(dst) + len(src)
	sid := start
	pos := 0
	for steps := 0; sid != secEndOfChain && sid != secFree && pos < want; steps++ {
		if steps > c.maxSteps || pos > MaxChainBytes {
			return pos, ErrCorruptChain
		}
		if int(sid) >= len(c.miniFat) {
			return pos, ErrCorruptChain
		}
		miniOff := int64(sid) * miniSectorSize
		bigIndex := miniOff / int64(c.sectorSize)
		within := miniOff % int64(c.sectorSize)
		if bigIndex >= int64(len(c.miniStreamOffsets)) {
			return pos, ErrCorruptChain
		}
		off := c.miniStreamOffsets[bigIndex] + within
		if off+miniSectorSize > int64(len(c.image)) {
			return pos, ErrCorruptChain
		}
		n := miniSectorSize
		if want-pos < n {
			n = want - pos
		}
		if dst != nil {
			copy(dst[pos:pos+n], c.image[off:off+int64(n)])
		} else {
			copy(c.image[off:off+int64(n)], src[pos:pos+n])
		}
		pos += n
		sid = c.miniFat[sid]
	}
	return pos, nil
}

// IsCompoundFile reports whether data starts with the CFB signature.
func IsCompoundFile(data []byte) bool {
	return len(data) >= 8 && binary.LittleEndian.Uint64(data[0:8]) == signature
}

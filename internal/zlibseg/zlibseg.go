// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package zlibseg locates, rewrites and re-injects compressed segments
// embedded at arbitrary offsets inside binary blobs.
//
// zlib and gzip segments are found by their headers. Raw deflate has no
// self-identifying header, so candidate offsets are additionally guessed at
// a fixed stride; every candidate is validated only by whether it actually
// decompresses. Patching never grows a segment: a recompressed payload that
// exceeds the original compressed extent is rejected and the caller keeps
// the original bytes.
package zlibseg

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
)

// Kind identifies the compression framing of a candidate segment.
type Kind int

const (
	// KindZlib is a zlib-headered deflate segment (0x78 + flag byte)
	KindZlib Kind = iota
	// KindGzip is a gzip-headered segment (0x1F 0x8B)
	KindGzip
	// KindRawDeflate is a bare deflate segment with no framing
	KindRawDeflate
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindZlib:
		return "zlib"
	case KindGzip:
		return "gzip"
	case KindRawDeflate:
		return "rawdef"
	default:
		return "unknown"
	}
}

// Candidate is a possible compressed segment location.
type Candidate struct {
	Kind   Kind
	Offset int
}

const (
	// DefaultStride is the interval for raw-deflate offset guesses.
	DefaultStride = 64

	// DefaultLimit caps the number of candidates returned by a scan.
	DefaultLimit = 64
)

var gzipMagic = []byte{0x1F, 0x8B}

// isZlibHeader reports whether b starts with a plausible zlib header.
func isZlibHeader(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x78 && (b[1] == 0x01 || b[1] == 0x9C || b[1] == 0xDA)
}

// Scan finds compressed-segment candidates in data. Headered kinds are
// detected at every offset; raw-deflate guesses are emitted at stride
// intervals. At most limit candidates are returned; stride and limit fall
// back to package defaults when non-positive.
func Scan(data []byte, stride, limit int) []Candidate {
	if stride <= 0 {
		stride = DefaultStride
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	var cand []Candidate
	for i := 0; i+1 < len(data); i++ {
		if isZlibHeader(data[i:]) {
			cand = append(cand, Candidate{KindZlib, i})
		}
		if data[i] == gzipMagic[0] && data[i+1] == gzipMagic[1] {
			cand = append(cand, Candidate{KindGzip, i})
		}
	}
	for i := 0; i < len(data); i += stride {
		cand = append(cand, Candidate{KindRawDeflate, i})
	}

	seen := make(map[Candidate]bool, len(cand))
	out := make([]Candidate, 0, limit)
	for _, c := range cand {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// TryDecompress attempts to decompress the candidate at off and reports how
// many source bytes the decompressor consumed. A malformed stream yields
// ok=false and the candidate should be skipped.
func TryDecompress(data []byte, off int, kind Kind) (decoded []byte, consumed int, ok bool) {
	if off < 0 || off >= len(data) {
		return nil, 0, false
	}
	br := bytes.NewReader(data[off:])
	total := br.Len()

	var r io.ReadCloser
	var err error
	switch kind {
	case KindZlib:
		r, err = zlib.NewReader(br)
	case KindGzip:
		var gr *gzip.Reader
		gr, err = gzip.NewReader(br)
		if gr != nil {
			gr.Multistream(false)
			r = gr
		}
	default:
		r = flate.NewReader(br)
	}
	if err != nil {
		return nil, 0, false
	}
	defer r.Close()

	decoded, err = io.ReadAll(r)
	if err != nil || len(decoded) == 0 {
		return nil, 0, false
	}
	consumed = total - br.Len()
	if consumed <= 0 {
		return nil, 0, false
	}
	return decoded, consumed, true
}

// Recompress compresses decoded with the framing of kind.
func Recompress(kind Kind, decoded []byte) ([]byte, error) {
	var buf bytes.Buffer
	switch kind {
	case KindZlib:
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(decoded); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	case KindGzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(decoded); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	default:
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(decoded); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// PatchSegment substitutes newComp for the consumed-byte extent at off.
// Returns nil when newComp does not fit; a shorter payload is zero-padded to
// exactly the original extent so the result keeps the original length.
func PatchSegment(original []byte, off, consumed int, newComp []byte) []byte {
	if off < 0 || consumed <= 0 || off+consumed > len(original) {
		return nil
	}
	if len(newComp) > consumed {
		return nil
	}
	out := make([]byte, len(original))
	copy(out, original)
	copy(out[off:], newComp)
	for i := off + len(newComp); i < off+consumed; i++ {
		out[i] = 0
	}
	return out
}

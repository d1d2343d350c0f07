// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package hwp

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"io"
)

// CompressionMode records how a section stream was compressed so the
// rewrite can mirror it.
type CompressionMode int

const (
	ModeNone CompressionMode = iota
	ModeRawDeflate
	ModeZlib
)

// DecompressSection inflates a whole section stream, trying raw deflate
// first and a zlib wrapper second. Streams that inflate with neither come
// back verbatim as ModeNone.
func DecompressSection(raw []byte) ([]byte, CompressionMode) {
	if dec, err := io.ReadAll(flate.NewReader(bytes.NewReader(raw))); err == nil && len(dec) > 0 {
		return dec, ModeRawDeflate
	}
	if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
		if dec, err := io.ReadAll(zr); err == nil && len(dec) > 0 {
			zr.Close()
			return dec, ModeZlib
		}
		zr.Close()
	}
	return raw, ModeNone
}

// RecompressSection deflates buf with the given mode at maximum
// compression, matching the writers these files come from.
func RecompressSection(buf []byte, mode CompressionMode) ([]byte, error) {
	switch mode {
	case ModeNone:
		return buf, nil
	case ModeRawDeflate:
		var b bytes.Buffer
		w, err := flate.NewWriter(&b, flate.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(buf); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	default:
		var b bytes.Buffer
		w, err := zlib.NewWriterLevel(&b, zlib.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(buf); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	}
}

// FitToSize pads buf with zero bytes or truncates it to exactly size, the
// stream's original length. Redacted text masks compress at least as well
// as what they replace, so truncation is the rare case.
func FitToSize(buf []byte, size int) []byte {
	if len(buf) == size {
		return buf
	}
	if len(buf) > size {
		return buf[:size]
	}
	out := make([]byte, size)
	copy(out, buf)
	return out
}

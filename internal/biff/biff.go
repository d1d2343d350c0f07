// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package biff rewrites string-bearing records inside BIFF8 workbook
// streams (the legacy Excel binary format) without moving a single record
// boundary. Only the payloads of the string record types change; every
// declared length field and every other record passes through untouched.
package biff

import (
	"encoding/binary"
	"strings"

	"eclipso/internal/textenc"
)

// String-bearing BIFF8 opcodes.
const (
	OpcodeSST      = 0x00FC // shared string table
	OpcodeLabelSST = 0x00FD // cell referencing the SST
	OpcodeLabel    = 0x0204 // inline string cell
)

// RedactFunc rewrites decoded record text. The returned string is re-encoded
// into the record's original payload extent.
type RedactFunc func(string) string

// isStringRecord reports whether the opcode carries redactable text.
func isStringRecord(opcode uint16) bool {
	switch opcode {
	case OpcodeSST, OpcodeLabelSST, OpcodeLabel:
		return true
	}
	return false
}

// RedactStream walks the flat (opcode, length, payload) record sequence and
// rewrites the payload of every string record through redact. Re-encoded
// text is truncated at the record's declared length and zero-padded when
// shorter, so the stream's byte layout is identical on return. The second
// return is the number of records that changed.
func RedactStream(data []byte, redact RedactFunc) ([]byte, int) {
	if redact == nil {
		return data, 0
	}
	out := make([]byte, len(data))
	copy(out, data)

	changed := 0
	off := 0
	for off+4 <= len(out) {
		opcode := binary.LittleEndian.Uint16(out[off:])
		length := int(binary.LittleEndian.Uint16(out[off+2:]))
		off += 4

		end := off + length
		if end > len(out) {
			end = len(out)
		}

		if isStringRecord(opcode) && end > off {
			payload := out[off:end]
			text := decodeRecordText(payload)
			if text != "" {
				red := redact(text)
				if red != text {
					enc := textenc.EncodeUTF16LE(red)
					if len(enc) > len(payload) {
						enc = enc[:len(payload)]
					}
					copy(payload, enc)
					for i := len(enc); i < len(payload); i++ {
						payload[i] = 0
					}
					changed++
				}
			}
		}

		off = end
	}
	return out, changed
}

// ExtractText decodes the text of every string record, for span detection
// over embedded workbooks.
func ExtractText(data []byte) string {
	var b strings.Builder
	off := 0
	for off+4 <= len(data) {
		opcode := binary.LittleEndian.Uint16(data[off:])
		length := int(binary.LittleEndian.Uint16(data[off+2:]))
		off += 4
		end := off + length
		if end > len(data) {
			end = len(data)
		}
		if isStringRecord(opcode) && end > off {
			if text := decodeRecordText(data[off:end]); text != "" {
				b.WriteString(text)
				b.WriteByte('\n')
			}
		}
		off = end
	}
	return b.String()
}

// decodeRecordText decodes a string record payload as UTF-16LE, falling
// back to the regional EUC-KR codepage when UTF-16 yields nothing printable.
func decodeRecordText(payload []byte) string {
	text := textenc.DecodeUTF16LE(payload)
	if strings.TrimFunc(text, func(r rune) bool { return r < 0x20 || r == 0xFFFD }) == "" {
		text = textenc.DecodeEUCKR(payload)
	}
	return text
}

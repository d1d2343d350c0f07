// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package biff

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"eclipso/internal/textenc"
)

func record(opcode uint16, payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint16(out[0:], opcode)
	binary.LittleEndian.PutUint16(out[2:], uint16(len(payload)))
	copy(out[4:], payload)
	return out
}

func maskAll(s string) string {
	return strings.Repeat("*", len([]rune(s)))
}

func TestRedactStreamPreservesLayout(t *testing.T) {
	label := record(OpcodeLabel, textenc.EncodeUTF16LE("secret9876"))
	other := record(0x0042, []byte{1, 2, 3, 4})
	stream := append(append([]byte{}, label...), other...)

	got, n := RedactStream(stream, maskAll)

	if n != 1 {
		t.Fatalf("expected 1 changed record, got %d", n)
	}
	if len(got) != len(stream) {
		t.Fatalf("stream length changed: %d -> %d", len(stream), len(got))
	}
	// Non-string record must be byte-identical.
	if !bytes.Equal(got[len(label):], other) {
		t.Error("unknown opcode record was modified")
	}
	// Length field untouched.
	if binary.LittleEndian.Uint16(got[2:]) != uint16(len(label)-4) {
		t.Error("declared length field was modified")
	}
	if text := textenc.DecodeUTF16LE(got[4:len(label)]); text != "**********" {
		t.Errorf("unexpected redacted text %q", text)
	}
}

func TestRedactStreamTruncatesToDeclaredLength(t *testing.T) {
	// Declared length 20 bytes = 10 UTF-16 chars; the redactor emits 13.
	stream := record(OpcodeLabel, textenc.EncodeUTF16LE("0123456789"))
	got, _ := RedactStream(stream, func(string) string { return "AAAAAAAAAAAAA" })

	if len(got) != len(stream) {
		t.Fatalf("length changed: %d -> %d", len(stream), len(got))
	}
	if text := textenc.DecodeUTF16LE(got[4:]); text != "AAAAAAAAAA" {
		t.Errorf("expected truncation to 10 chars, got %q", text)
	}
}

func TestRedactStreamZeroPadsShortReplacement(t *testing.T) {
	stream := record(OpcodeLabel, textenc.EncodeUTF16LE("0123456789"))
	got, _ := RedactStream(stream, func(string) string { return "short" })

	payload := got[4:]
	if len(payload) != 20 {
		t.Fatalf("payload length changed: %d", len(payload))
	}
	enc := textenc.EncodeUTF16LE("short")
	if !bytes.Equal(payload[:len(enc)], enc) {
		t.Error("replacement text not written")
	}
	for i := len(enc); i < len(payload); i++ {
		if payload[i] != 0 {
			t.Fatalf("expected zero pad at %d, got 0x%02X", i, payload[i])
		}
	}
}

func TestRedactStreamUnknownOpcodesPassThrough(t *testing.T) {
	stream := append(record(0x0809, []byte{0, 6, 0, 0}), record(0x000A, nil)...)
	got, n := RedactStream(stream, maskAll)
	if n != 0 {
		t.Errorf("expected no changed records, got %d", n)
	}
	if !bytes.Equal(got, stream) {
		t.Error("stream without string records should be unchanged")
	}
}

func TestExtractText(t *testing.T) {
	stream := append(
		record(OpcodeLabel, textenc.EncodeUTF16LE("hello")),
		record(OpcodeSST, textenc.EncodeUTF16LE("world"))...)

	text := ExtractText(stream)
	if !strings.Contains(text, "hello") || !strings.Contains(text, "world") {
		t.Errorf("missing record text in %q", text)
	}
}

func TestRedactStreamTruncatedRecord(t *testing.T) {
	// Header declares more payload than remains; must not panic.
	stream := record(OpcodeLabel, textenc.EncodeUTF16LE("abcdef"))[:8]
	got, _ := RedactStream(stream, maskAll)
	if len(got) != len(stream) {
		t.Errorf("length changed on truncated stream")
	}
}

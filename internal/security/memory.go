// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package security scrubs buffers that held unredacted document text.
//
// Go's garbage collector may move or copy memory at any time, so zeroing
// a slice reduces the window of exposure but cannot guarantee no copies
// remain on the heap. Do not rely on this for cryptographic-strength
// memory protection.
package security

// Wipe overwrites a scratch buffer with zeros. Use it on decoded text
// and decompressed payloads once their redacted form has been written
// back.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// SecureValue holds a detected sensitive value with best-effort
// scrubbing on Clear.
type SecureValue struct {
	data []byte
}

// NewSecureValue copies s into a mutable byte slice.
func NewSecureValue(s string) *SecureValue {
	data := make([]byte, len(s))
	copy(data, s)
	return &SecureValue{data: data}
}

// String returns the value. Each call creates an immutable copy that
// Clear cannot reach, so use sparingly.
func (sv *SecureValue) String() string {
	return string(sv.data)
}

// Clear zeroes the internal slice and releases it.
func (sv *SecureValue) Clear() {
	Wipe(sv.data)
	sv.data = nil
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package redactors dispatches document images to the right format driver
// and carries the shared redaction contract: drivers consume and produce
// whole byte images, and on any content failure they hand the original
// bytes back unchanged rather than erroring out.
package redactors

import "time"

// Redactor is one format driver as seen by the manager.
type Redactor interface {
	// GetName returns the driver's name
	GetName() string

	// GetSupportedTypes returns the file extensions the driver handles
	GetSupportedTypes() []string

	// CanRedact sniffs a document image for the driver's format
	CanRedact(data []byte) bool

	// Redact rewrites a document image. It never fails: content problems
	// yield the input bytes and a result with Success=false.
	Redact(data []byte) ([]byte, *RedactionResult)
}

// RedactionResult describes one redaction pass over one document.
type RedactionResult struct {
	// Success indicates the document was parsed and processed
	Success bool

	// Format is the driver name that handled the document
	Format string

	// MatchCount is the number of sensitive values masked
	MatchCount int

	// SizePreserved indicates the output is byte-length-identical to the
	// input; true for the compound-file and PDF drivers, false for the
	// repackaged ZIP formats
	SizePreserved bool

	// ProcessingTime is the time taken for this document
	ProcessingTime time.Duration

	// Error holds the reason when Success is false
	Error error
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package redactors

import (
	"fmt"
	"time"
)

// RedactionErrorType defines the type of redaction error
type RedactionErrorType int

const (
	// ErrorStructuralParse indicates the document's structure could not be
	// parsed (bad container header, broken record sequence, corrupt chain)
	ErrorStructuralParse RedactionErrorType = iota

	// ErrorLengthConstraint indicates a rewrite would have changed a byte
	// length that must be preserved
	ErrorLengthConstraint

	// ErrorDecode indicates a text payload could not be decoded
	ErrorDecode

	// ErrorUnsupportedContent indicates no driver recognizes the document
	ErrorUnsupportedContent

	// ErrorFileSystem indicates a file system operation failure
	ErrorFileSystem
)

// String returns the string representation of the error type
func (ret RedactionErrorType) String() string {
	switch ret {
	case ErrorStructuralParse:
		return "structural_parse"
	case ErrorLengthConstraint:
		return "length_constraint"
	case ErrorDecode:
		return "decode"
	case ErrorUnsupportedContent:
		return "unsupported_content"
	case ErrorFileSystem:
		return "file_system"
	default:
		return "unknown"
	}
}

// RedactionError represents an error that occurred during redaction. Every
// type except ErrorFileSystem is recoverable: drivers degrade to a no-op
// passthrough and the pipeline continues.
type RedactionError struct {
	// Type is the type of error
	Type RedactionErrorType

	// Message is the error message
	Message string

	// FilePath is the path to the file being processed when the error occurred
	FilePath string

	// Component is the component that generated the error
	Component string

	// Recoverable indicates whether the error is recoverable
	Recoverable bool

	// Timestamp is when the error occurred
	Timestamp time.Time

	// Cause is the underlying error that caused this error
	Cause error
}

// Error implements the error interface
func (re *RedactionError) Error() string {
	if re.FilePath != "" {
		return fmt.Sprintf("[%s] %s (file: %s, component: %s): %s",
			re.Type.String(), re.Message, re.FilePath, re.Component, re.getCauseMessage())
	}
	return fmt.Sprintf("[%s] %s (component: %s): %s",
		re.Type.String(), re.Message, re.Component, re.getCauseMessage())
}

// getCauseMessage returns the cause error message if available
func (re *RedactionError) getCauseMessage() string {
	if re.Cause != nil {
		return re.Cause.Error()
	}
	return ""
}

// Unwrap returns the underlying error for error unwrapping
func (re *RedactionError) Unwrap() error {
	return re.Cause
}

// NewRedactionError creates a new RedactionError
func NewRedactionError(errorType RedactionErrorType, message, filePath, component string, cause error) *RedactionError {
	return &RedactionError{
		Type:        errorType,
		Message:     message,
		FilePath:    filePath,
		Component:   component,
		Recoverable: errorType != ErrorFileSystem,
		Timestamp:   time.Now(),
		Cause:       cause,
	}
}

// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package redactors

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"eclipso/internal/config"
	"eclipso/internal/detector"
	"eclipso/internal/hwp"
	"eclipso/internal/msdoc"
	"eclipso/internal/msppt"
	"eclipso/internal/observability"
	"eclipso/internal/redactors/office"
	"eclipso/internal/redactors/pdf"
	"eclipso/internal/security"
)

// formatDriver is the shape the binary format drivers share.
type formatDriver interface {
	CanHandle(data []byte) bool
	Redact(data []byte) ([]byte, int)
}

// driverRedactor adapts a format driver to the Redactor interface.
type driverRedactor struct {
	name          string
	types         []string
	sizePreserved bool
	driver        formatDriver
}

func (dr *driverRedactor) GetName() string { return dr.name }

func (dr *driverRedactor) GetSupportedTypes() []string { return dr.types }

func (dr *driverRedactor) CanRedact(data []byte) bool { return dr.driver.CanHandle(data) }

func (dr *driverRedactor) Redact(data []byte) ([]byte, *RedactionResult) {
	start := time.Now()
	out, count := dr.driver.Redact(data)
	return out, &RedactionResult{
		Success:        true,
		Format:         dr.name,
		MatchCount:     count,
		SizePreserved:  dr.sizePreserved,
		ProcessingTime: time.Since(start),
	}
}

// RedactionManager routes document images to the driver that recognizes
// them and tracks aggregate statistics.
type RedactionManager struct {
	redactors []Redactor
	observer  *observability.StandardObserver

	mu    sync.Mutex
	stats RedactionStats
}

// RedactionStats tracks totals across a manager's lifetime.
type RedactionStats struct {
	Documents  int
	Redactions int
	Skipped    int
}

// NewRedactionManager creates a manager with the given drivers registered
// in dispatch order.
func NewRedactionManager(obs *observability.StandardObserver, drivers ...Redactor) *RedactionManager {
	return &RedactionManager{redactors: drivers, observer: obs}
}

// RegisterRedactor appends a driver to the dispatch list.
func (rm *RedactionManager) RegisterRedactor(r Redactor) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.redactors = append(rm.redactors, r)
}

// NewDefaultBinaryDrivers returns the compound-file drivers wrapped for
// registration: Word, HWP and PowerPoint, in that dispatch order.
func NewDefaultBinaryDrivers(det *detector.RegexDetector, cfg *config.Config, obs *observability.StandardObserver) []Redactor {
	return []Redactor{
		&driverRedactor{name: "doc", types: []string{"doc"}, sizePreserved: true,
			driver: msdoc.NewDriver(det, cfg, obs)},
		&driverRedactor{name: "hwp", types: []string{"hwp"}, sizePreserved: true,
			driver: hwp.NewDriver(det, cfg, obs)},
		&driverRedactor{name: "ppt", types: []string{"ppt"}, sizePreserved: true,
			driver: msppt.NewDriver(det, cfg, obs)},
	}
}

// NewDefaultDrivers returns every format driver wrapped for
// registration. Compound-file formats come first because their CFB
// signature is cheap to reject; the ZIP families and PDF follow.
func NewDefaultDrivers(det *detector.RegexDetector, cfg *config.Config, obs *observability.StandardObserver) []Redactor {
	drivers := NewDefaultBinaryDrivers(det, cfg, obs)
	drivers = append(drivers,
		&driverRedactor{name: "office", types: []string{"docx", "xlsx", "pptx", "hwpx"}, sizePreserved: false,
			driver: office.NewDriver(det, cfg, obs)},
		&driverRedactor{name: "pdf", types: []string{"pdf"}, sizePreserved: true,
			driver: pdf.NewDriver(det, cfg, obs)},
	)
	return drivers
}

// RedactBytes redacts a document image with the first driver that
// recognizes it. Unrecognized formats pass through untouched with a
// Success=false result; bytes in always means bytes out.
func (rm *RedactionManager) RedactBytes(data []byte, name string) ([]byte, *RedactionResult) {
	start := time.Now()
	for _, r := range rm.redactors {
		if !r.CanRedact(data) {
			continue
		}
		out, result := r.Redact(data)
		rm.record(result)
		rm.observer.LogEvent("redaction_manager", "redact", result.Success, map[string]interface{}{
			"file":        name,
			"format":      result.Format,
			"match_count": result.MatchCount,
		})
		return out, result
	}

	result := &RedactionResult{
		Success:        false,
		Format:         "unknown",
		SizePreserved:  true,
		ProcessingTime: time.Since(start),
		Error: NewRedactionError(ErrorUnsupportedContent,
			"no driver recognizes this format", name, "redaction_manager", nil),
	}
	rm.record(result)
	return data, result
}

// RedactFile reads inputPath, redacts it and writes the result to
// outputPath. The output file is written even when no driver matched, so
// the output directory always mirrors the input set.
func (rm *RedactionManager) RedactFile(inputPath, outputPath string) (*RedactionResult, error) {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, NewRedactionError(ErrorFileSystem, "reading input", inputPath, "redaction_manager", err)
	}

	out, result := rm.RedactBytes(data, filepath.Base(inputPath))
	if len(data) > 0 && len(out) > 0 && &out[0] != &data[0] {
		security.Wipe(data)
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return result, NewRedactionError(ErrorFileSystem, "creating output dir", outputPath, "redaction_manager", err)
		}
	}
	if err := os.WriteFile(outputPath, out, 0o644); err != nil {
		return result, NewRedactionError(ErrorFileSystem, "writing output", outputPath, "redaction_manager", err)
	}
	return result, nil
}

// Stats returns a snapshot of the manager's counters.
func (rm *RedactionManager) Stats() RedactionStats {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.stats
}

func (rm *RedactionManager) record(result *RedactionResult) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.stats.Documents++
	rm.stats.Redactions += result.MatchCount
	if !result.Success {
		rm.stats.Skipped++
	}
}

// SupportedTypes lists the file extensions of all registered drivers.
func (rm *RedactionManager) SupportedTypes() []string {
	var out []string
	for _, r := range rm.redactors {
		out = append(out, r.GetSupportedTypes()...)
	}
	return out
}

// DescribeDrivers returns a one-line summary per registered driver.
func (rm *RedactionManager) DescribeDrivers() []string {
	var out []string
	for _, r := range rm.redactors {
		out = append(out, fmt.Sprintf("%s (%s)", r.GetName(), strings.Join(r.GetSupportedTypes(), ", ")))
	}
	return out
}

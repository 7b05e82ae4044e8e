package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EntryStatus classifies one tracked file during validation.
type EntryStatus string

const (
	StatusMatch    EntryStatus = "MATCH"
	StatusMissing  EntryStatus = "MISSING"
	StatusMismatch EntryStatus = "MISMATCH"
)

// ValidationEntry is the per-file validation outcome. Expected fields come
// from the manifest, Actual fields from the recomputed digest; Actual fields
// are empty for MISSING entries.
type ValidationEntry struct {
	Path           string      `json:"path"`
	Status         EntryStatus `json:"status"`
	ExpectedSHA256 string      `json:"expected_sha256"`
	ActualSHA256   string      `json:"actual_sha256,omitempty"`
	ExpectedSize   int64       `json:"expected_size"`
	ActualSize     int64       `json:"actual_size,omitempty"`
}

// ValidationReport aggregates per-file outcomes. A failed report is data, not
// an error: datasets that fail integrity checking are an expected first-class
// outcome, and the orchestrator records them permanently.
type ValidationReport struct {
	ManifestPath string            `json:"manifest_path,omitempty"`
	Entries      []ValidationEntry `json:"entries"`
	Pass         bool              `json:"pass"`
}

// Counts returns the number of MATCH, MISSING, and MISMATCH entries.
func (r *ValidationReport) Counts() (match, missing, mismatch int) {
	for _, e := range r.Entries {
		switch e.Status {
		case StatusMatch:
			match++
		case StatusMissing:
			missing++
		case StatusMismatch:
			mismatch++
		}
	}
	return
}

// Format renders the human-readable validation report shared by the CLI and
// the orchestrator's report text.
func (r *ValidationReport) Format() string {
	var b strings.Builder
	for _, e := range r.Entries {
		switch e.Status {
		case StatusMatch:
			fmt.Fprintf(&b, "MATCH     %s\n", e.Path)
		case StatusMissing:
			fmt.Fprintf(&b, "MISSING   %s\n", e.Path)
		case StatusMismatch:
			fmt.Fprintf(&b, "MISMATCH  %s expected=%s actual=%s\n", e.Path, e.ExpectedSHA256, e.ActualSHA256)
		}
	}
	match, missing, mismatch := r.Counts()
	verdict := "PASS"
	if !r.Pass {
		verdict = "FAIL"
	}
	fmt.Fprintf(&b, "%s: %d match, %d missing, %d mismatch\n", verdict, match, missing, mismatch)
	return b.String()
}

// Validate recomputes every tracked digest against root and reports per-file
// MATCH / MISSING / MISMATCH. It is read-only and never fails for integrity
// mismatches; the only errors are a structurally malformed manifest
// (ConfigError) or a present-but-unreadable file (IOError).
func Validate(m *Manifest, root string) (*ValidationReport, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	report := &ValidationReport{Pass: true}
	for _, fd := range m.Files {
		p := filepath.Join(root, filepath.FromSlash(fd.Path))
		entry := ValidationEntry{
			Path:           fd.Path,
			ExpectedSHA256: fd.SHA256,
			ExpectedSize:   fd.Size,
		}
		if _, err := os.Stat(p); err != nil {
			entry.Status = StatusMissing
			report.Pass = false
			report.Entries = append(report.Entries, entry)
			continue
		}
		sum, size, err := DigestFile(p)
		if err != nil {
			return nil, err
		}
		entry.ActualSHA256 = sum
		entry.ActualSize = size
		if sum == fd.SHA256 && size == fd.Size {
			entry.Status = StatusMatch
		} else {
			entry.Status = StatusMismatch
			report.Pass = false
		}
		report.Entries = append(report.Entries, entry)
	}
	return report, nil
}

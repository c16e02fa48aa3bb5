// Package result aggregates per-test outcomes, owns the on-disk artifact
// layout, and decides pass/fail precedence when both hash and image checks
// are configured for the same test.
package result

import (
	"path/filepath"
	"strings"

	"figcheck/internal/baseline"
	"figcheck/internal/hashlib"
)

// Status is the final verdict for one test.
type Status string

const (
	// StatusPass means every configured check succeeded (or generation made
	// comparison unnecessary).
	StatusPass Status = "PASS"
	// StatusFail means a configured hash or image check ran and mismatched.
	StatusFail Status = "FAIL"
	// StatusError means a required input was missing: no baseline found, no
	// hash entry, no check configured at all, or rendering failed.
	StatusError Status = "ERROR"
)

// Comparison is the structured record for one test. The *bool fields are
// nil when the corresponding check did not run, so the JSON form
// distinguishes "not checked" from "checked and failed".
type Comparison struct {
	TestID        string `json:"testId"`
	Status        Status `json:"status"`
	HashChecked   bool   `json:"hashChecked"`
	HashMatched   *bool  `json:"hashMatched"`
	ImageChecked  bool   `json:"imageChecked"`
	ImageMatched  *bool  `json:"imageMatched"`
	BaselineFound bool   `json:"baselineFound"`
	Message       string `json:"message,omitempty"`
}

// Failed reports whether this record should make the run exit non-zero.
func (c Comparison) Failed() bool {
	return c.Status != StatusPass
}

// Summary is the ordered collection of records for one run, created empty
// at run start, appended to per test, and handed read-only to the reporter
// at run end.
type Summary struct {
	ResultsDir string       `json:"resultsDir"`
	Results    []Comparison `json:"results"`
	// HashLibraryGenerated marks a run that wrote a fresh hash library.
	// Such a run must still report failure: the library was just created,
	// nothing was verified against it.
	HashLibraryGenerated string `json:"hashLibraryGenerated,omitempty"`
}

// NewSummary returns an empty summary rooted at resultsDir.
func NewSummary(resultsDir string) *Summary {
	return &Summary{ResultsDir: resultsDir}
}

// Add appends a record in execution order.
func (s *Summary) Add(c Comparison) {
	s.Results = append(s.Results, c)
}

// Failed returns the records that should fail the run.
func (s *Summary) Failed() []Comparison {
	var failed []Comparison
	for _, c := range s.Results {
		if c.Failed() {
			failed = append(failed, c)
		}
	}
	return failed
}

// ExitNonZero reports whether the run as a whole failed: any failing record,
// or a hash-library generation run (which by design never verifies anything).
func (s *Summary) ExitNonZero() bool {
	if s.HashLibraryGenerated != "" {
		return true
	}
	return len(s.Failed()) > 0
}

// TestDir returns the per-test artifact directory for testID under the
// results root. Path separators in the identifier are replaced with dots so
// every test owns a uniquely-named flat subdirectory.
func (s *Summary) TestDir(testID string) string {
	return filepath.Join(s.ResultsDir, SanitizeID(testID))
}

// SanitizeID converts a test identifier to its artifact directory name.
func SanitizeID(testID string) string {
	id := strings.ReplaceAll(testID, "/", ".")
	return strings.ReplaceAll(id, string(filepath.Separator), ".")
}

// TestOptions is the immutable per-test options bag, resolved once before
// the comparison begins. No ambient configuration is consulted afterwards.
type TestOptions struct {
	TestID        string
	RenderedImage string           // path of the rendered result image
	Filename      string           // baseline filename
	Baseline      baseline.Spec
	Tolerance     float64
	HashLibrary   *hashlib.Library // nil when hash checking is not configured
}

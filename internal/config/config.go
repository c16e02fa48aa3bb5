// Package config loads and validates the suite manifest: the YAML document
// naming each visual test case and its comparison options. Options are
// resolved once per test into an immutable bag before any comparison runs;
// nothing consults the manifest afterwards.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// manifestFile mirrors the YAML structure.
type manifestFile struct {
	Defaults defaultsEntry `yaml:"defaults"`
	Tests    []testEntry   `yaml:"tests"`
}

type defaultsEntry struct {
	BaselineDir string   `yaml:"baseline_dir,omitempty"`
	Tolerance   *float64 `yaml:"tolerance,omitempty"`
	HashLibrary string   `yaml:"hash_library,omitempty"`
}

type testEntry struct {
	ID          string   `yaml:"id"`
	Render      []string `yaml:"render,omitempty"`
	Image       string   `yaml:"image"`
	Filename    string   `yaml:"filename,omitempty"`
	BaselineDir string   `yaml:"baseline_dir,omitempty"`
	Tolerance   *float64 `yaml:"tolerance,omitempty"`
}

// Manifest is a validated suite manifest.
type Manifest struct {
	Defaults Defaults
	Tests    []TestCase
}

// Defaults apply to every test that does not override them.
type Defaults struct {
	BaselineDir string
	Tolerance   *float64
	HashLibrary string
}

// TestCase is one visual test as declared in the manifest.
type TestCase struct {
	ID          string
	Render      []string // render command; empty means Image is pre-rendered
	Image       string   // path the rendered image is written to / found at
	Filename    string   // baseline filename, defaults to <leaf>.png
	BaselineDir string   // per-test baseline source override
	Tolerance   *float64
}

// ParseManifest parses and validates YAML manifest content. Unknown keys
// are rejected so a typo cannot silently disable a check.
func ParseManifest(content []byte) (Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var mf manifestFile
	if err := dec.Decode(&mf); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest YAML: %w", err)
	}

	if len(mf.Tests) == 0 {
		return Manifest{}, fmt.Errorf("manifest declares no tests")
	}
	if mf.Defaults.Tolerance != nil && *mf.Defaults.Tolerance < 0 {
		return Manifest{}, fmt.Errorf("defaults.tolerance must be non-negative, got %g", *mf.Defaults.Tolerance)
	}

	m := Manifest{
		Defaults: Defaults{
			BaselineDir: mf.Defaults.BaselineDir,
			Tolerance:   mf.Defaults.Tolerance,
			HashLibrary: mf.Defaults.HashLibrary,
		},
	}

	seen := make(map[string]bool)
	for i, te := range mf.Tests {
		if te.ID == "" {
			return Manifest{}, fmt.Errorf("test %d: missing id", i)
		}
		if seen[te.ID] {
			return Manifest{}, fmt.Errorf("duplicate test id '%s'", te.ID)
		}
		seen[te.ID] = true

		if te.Image == "" {
			return Manifest{}, fmt.Errorf("test '%s': missing image path", te.ID)
		}
		if te.Tolerance != nil && *te.Tolerance < 0 {
			return Manifest{}, fmt.Errorf("test '%s': tolerance must be non-negative, got %g", te.ID, *te.Tolerance)
		}

		filename := te.Filename
		if filename == "" {
			filename = defaultFilename(te.ID)
		}

		m.Tests = append(m.Tests, TestCase{
			ID:          te.ID,
			Render:      te.Render,
			Image:       te.Image,
			Filename:    filename,
			BaselineDir: te.BaselineDir,
			Tolerance:   te.Tolerance,
		})
	}

	return m, nil
}

// LoadManifest reads and parses the manifest at path. Callers distinguish a
// missing file (os.IsNotExist) from a malformed one.
func LoadManifest(path string) (Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	return ParseManifest(content)
}

// defaultFilename derives the baseline filename from the identifier leaf:
// "test.test_succeeds" -> "test_succeeds.png".
func defaultFilename(testID string) string {
	leaf := testID
	if idx := strings.LastIndex(testID, "."); idx >= 0 {
		leaf = testID[idx+1:]
	}
	return leaf + ".png"
}

// Overrides carry run-wide settings from flags and environment. Non-zero
// fields take precedence over per-test and default manifest values.
type Overrides struct {
	BaselinePath string
	Tolerance    *float64
	HashLibrary  string
}

// Options is the fully resolved, immutable per-test option set.
type Options struct {
	ID           string
	Render       []string
	Image        string
	Filename     string
	BaselineSpec string // comma-separated ordered sources; empty disables image check
	Tolerance    float64
	HashLibrary  string // path; empty disables hash check
}

// Resolve merges defaults, per-test values, and run overrides (in
// increasing precedence) into the option set used for one test.
func (m Manifest) Resolve(tc TestCase, ov Overrides, defaultTolerance float64) Options {
	opts := Options{
		ID:       tc.ID,
		Render:   tc.Render,
		Image:    tc.Image,
		Filename: tc.Filename,
	}

	opts.BaselineSpec = m.Defaults.BaselineDir
	if tc.BaselineDir != "" {
		opts.BaselineSpec = tc.BaselineDir
	}
	if ov.BaselinePath != "" {
		opts.BaselineSpec = ov.BaselinePath
	}

	opts.Tolerance = defaultTolerance
	if m.Defaults.Tolerance != nil {
		opts.Tolerance = *m.Defaults.Tolerance
	}
	if tc.Tolerance != nil {
		opts.Tolerance = *tc.Tolerance
	}
	if ov.Tolerance != nil {
		opts.Tolerance = *ov.Tolerance
	}

	opts.HashLibrary = m.Defaults.HashLibrary
	if ov.HashLibrary != "" {
		opts.HashLibrary = ov.HashLibrary
	}

	return opts
}

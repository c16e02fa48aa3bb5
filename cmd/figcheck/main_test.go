package main

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"figcheck/internal/imghash"
	"figcheck/internal/imgio"
)

// writeFixtureImage writes a small plot-like PNG; seed perturbs one pixel.
func writeFixtureImage(t *testing.T, path string, seed uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	for _, p := range []image.Point{{4, 20}, {16, 12}, {28, 4}} {
		img.SetRGBA(p.X, p.Y, color.RGBA{B: 200, A: 255})
	}
	img.SetRGBA(1, 1, color.RGBA{R: seed, G: seed, B: seed, A: 255})

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := imgio.EncodePNG(path, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// captureStderr runs fn with stderr redirected and returns what it wrote.
func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	oldStderr := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stderr = w

	fn()

	w.Close()
	os.Stderr = oldStderr

	var buf bytes.Buffer
	io.Copy(&buf, r)
	r.Close()
	return buf.String()
}

const passingManifest = `
defaults:
  baseline_dir: baseline
tests:
  - id: test.test_succeeds
    image: rendered/succeeds.png
`

func TestRun_ImageComparisonPasses(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "figcheck.yaml"), passingManifest)
	writeFixtureImage(t, filepath.Join(tmpDir, "baseline", "test_succeeds.png"), 0)
	writeFixtureImage(t, filepath.Join(tmpDir, "rendered", "succeeds.png"), 0)

	code := run([]string{"run", "figcheck.yaml"}, nil, tmpDir)
	if code != exitOK {
		t.Errorf("exit code = %d", code)
	}
}

func TestRun_ImageComparisonFails(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "figcheck.yaml"), passingManifest)
	writeFixtureImage(t, filepath.Join(tmpDir, "baseline", "test_succeeds.png"), 0)
	writeFixtureImage(t, filepath.Join(tmpDir, "rendered", "succeeds.png"), 250)

	var code int
	stderr := captureStderr(t, func() {
		code = run([]string{"run", "--tolerance", "0", "figcheck.yaml"}, nil, tmpDir)
	})
	if code != exitFailed {
		t.Errorf("exit code = %d", code)
	}
	if !strings.Contains(stderr, "Image files did not match") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRun_MissingBaselineReportsDistinctly(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "figcheck.yaml"), passingManifest)
	writeFixtureImage(t, filepath.Join(tmpDir, "rendered", "succeeds.png"), 0)

	var code int
	stderr := captureStderr(t, func() {
		code = run([]string{"run", "figcheck.yaml"}, nil, tmpDir)
	})
	if code != exitFailed {
		t.Errorf("exit code = %d", code)
	}
	if !strings.Contains(stderr, "Unable to find baseline image") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRun_ManifestMissing(t *testing.T) {
	code := run([]string{"run", "figcheck.yaml"}, nil, t.TempDir())
	if code != exitManifestMissing {
		t.Errorf("exit code = %d", code)
	}
}

func TestRun_BadManifest(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "figcheck.yaml"), "{not yaml")
	code := run([]string{"run", "figcheck.yaml"}, nil, tmpDir)
	if code != exitConfigError {
		t.Errorf("exit code = %d", code)
	}
}

func TestRun_BadFlags(t *testing.T) {
	code := run([]string{"run", "--bogus", "figcheck.yaml"}, nil, t.TempDir())
	if code != exitConfigError {
		t.Errorf("exit code = %d", code)
	}
}

// Generate baselines, then verify against them: the round trip must pass.
func TestRun_GenerateThenVerifyRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	manifest := `
tests:
  - id: test.test_gen
    image: rendered/gen.png
`
	writeFile(t, filepath.Join(tmpDir, "figcheck.yaml"), manifest)
	writeFixtureImage(t, filepath.Join(tmpDir, "rendered", "gen.png"), 0)

	code := run([]string{"run", "--generate-path", "spam/egg", "figcheck.yaml"}, nil, tmpDir)
	if code != exitOK {
		t.Fatalf("generate exit code = %d", code)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "spam", "egg", "test_gen.png")); err != nil {
		t.Fatalf("generated baseline missing: %v", err)
	}

	code = run([]string{"run", "--baseline-path", "spam/egg", "figcheck.yaml"}, nil, tmpDir)
	if code != exitOK {
		t.Errorf("verify exit code = %d", code)
	}
}

// A hash-library generation run writes the library but still exits
// non-zero: nothing was verified. Verifying against the generated library
// afterwards passes.
func TestRun_GenerateHashLibraryRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	manifest := `
tests:
  - id: test.test_gen
    image: rendered/gen.png
`
	writeFile(t, filepath.Join(tmpDir, "figcheck.yaml"), manifest)
	writeFixtureImage(t, filepath.Join(tmpDir, "rendered", "gen.png"), 0)

	code := run([]string{"run", "--generate-hash-library", "hashes.json", "figcheck.yaml"}, nil, tmpDir)
	if code != exitFailed {
		t.Fatalf("generation run must exit non-zero, got %d", code)
	}

	libPath := filepath.Join(tmpDir, "hashes.json")
	data, err := os.ReadFile(libPath)
	if err != nil {
		t.Fatalf("library not written: %v", err)
	}
	if !strings.Contains(string(data), "test.test_gen") {
		t.Errorf("library content = %s", data)
	}

	code = run([]string{"run", "--hash-library", "hashes.json", "figcheck.yaml"}, nil, tmpDir)
	if code != exitOK {
		t.Errorf("verify exit code = %d", code)
	}
}

func TestRun_HashMismatchMessageAndSummaryPath(t *testing.T) {
	tmpDir := t.TempDir()
	manifest := `
tests:
  - id: test.test_hash_fails
    image: rendered/fails.png
`
	writeFile(t, filepath.Join(tmpDir, "figcheck.yaml"), manifest)
	writeFixtureImage(t, filepath.Join(tmpDir, "rendered", "fails.png"), 0)
	writeFile(t, filepath.Join(tmpDir, "hashes.json"), `{"test.test_hash_fails": "FAIL"}`)

	var code int
	stderr := captureStderr(t, func() {
		code = run([]string{
			"run", "--hash-library", "hashes.json",
			"--generate-summary", "html",
			"figcheck.yaml",
		}, nil, tmpDir)
	})
	if code != exitFailed {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr, "doesn't match hash FAIL in library") {
		t.Errorf("stderr = %q", stderr)
	}
	// No baseline dir configured, so no baseline lookup is attempted.
	if strings.Contains(stderr, "Unable to find baseline image") {
		t.Errorf("stderr should not mention baselines: %q", stderr)
	}

	marker := "A summary of the failed tests can be found at: "
	idx := strings.Index(stderr, marker)
	if idx < 0 {
		t.Fatalf("summary path not printed: %q", stderr)
	}
	path := strings.TrimSpace(strings.SplitN(stderr[idx+len(marker):], "\n", 2)[0])
	if _, err := os.Stat(path); err != nil {
		t.Errorf("printed summary path does not exist: %v", err)
	}
}

func TestRun_MissingHashLibrary(t *testing.T) {
	tmpDir := t.TempDir()
	manifest := `
tests:
  - id: test.test_hash_missing
    image: rendered/m.png
`
	writeFile(t, filepath.Join(tmpDir, "figcheck.yaml"), manifest)
	writeFixtureImage(t, filepath.Join(tmpDir, "rendered", "m.png"), 0)

	var code int
	stderr := captureStderr(t, func() {
		code = run([]string{"run", "--hash-library", "not/a/path.json", "figcheck.yaml"}, nil, tmpDir)
	})
	if code != exitFailed {
		t.Errorf("exit code = %d", code)
	}
	if !strings.Contains(stderr, "Can't find hash library at path") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRun_CorruptHashLibrary(t *testing.T) {
	tmpDir := t.TempDir()
	manifest := `
tests:
  - id: test.test_corrupt
    image: rendered/c.png
`
	writeFile(t, filepath.Join(tmpDir, "figcheck.yaml"), manifest)
	writeFixtureImage(t, filepath.Join(tmpDir, "rendered", "c.png"), 0)
	writeFile(t, filepath.Join(tmpDir, "hashes.json"), "{corrupt")

	var code int
	captureStderr(t, func() {
		code = run([]string{"run", "--hash-library", "hashes.json", "figcheck.yaml"}, nil, tmpDir)
	})
	if code != exitCorruptLibrary {
		t.Errorf("exit code = %d", code)
	}
}

// Hash entry missing from the library is a per-test failure with a
// discriminated message, not a run abort.
func TestRun_HashEntryMissing(t *testing.T) {
	tmpDir := t.TempDir()
	manifest := `
tests:
  - id: test.test_hash_missing
    image: rendered/m.png
`
	writeFile(t, filepath.Join(tmpDir, "figcheck.yaml"), manifest)
	writeFixtureImage(t, filepath.Join(tmpDir, "rendered", "m.png"), 0)
	writeFile(t, filepath.Join(tmpDir, "hashes.json"), `{"test.other": "abc"}`)

	var code int
	stderr := captureStderr(t, func() {
		code = run([]string{"run", "--hash-library", "hashes.json", "figcheck.yaml"}, nil, tmpDir)
	})
	if code != exitFailed {
		t.Errorf("exit code = %d", code)
	}
	if !strings.Contains(stderr, "Hash for test 'test.test_hash_missing' not found in") {
		t.Errorf("stderr = %q", stderr)
	}
}

// Render-only mode is a pass-through: a test whose comparison would fail
// still passes because no comparison runs.
func TestRun_RenderOnlyPassThrough(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "figcheck.yaml"), passingManifest)
	writeFixtureImage(t, filepath.Join(tmpDir, "baseline", "test_succeeds.png"), 0)
	writeFixtureImage(t, filepath.Join(tmpDir, "rendered", "succeeds.png"), 250)

	code := run([]string{"run", "--render-only", "--tolerance", "0", "figcheck.yaml"}, nil, tmpDir)
	if code != exitOK {
		t.Errorf("render-only run must pass, exit code = %d", code)
	}
}

// The results-always scenario: modified (hash ok, image differs), new
// (hash ok, no baseline), unmodified (hash ok, image ok). All pass; the
// report references every image slot; artifacts follow the fixed matrix.
func TestRun_ResultsAlwaysMatrix(t *testing.T) {
	tmpDir := t.TempDir()
	manifest := `
tests:
  - id: test.test_modified
    image: rendered/fig.png
  - id: test.test_new
    image: rendered/fig.png
  - id: test.test_unmodified
    image: rendered/fig.png
`
	writeFile(t, filepath.Join(tmpDir, "figcheck.yaml"), manifest)
	writeFixtureImage(t, filepath.Join(tmpDir, "rendered", "fig.png"), 0)
	writeFixtureImage(t, filepath.Join(tmpDir, "baseline", "test_modified.png"), 250)
	writeFixtureImage(t, filepath.Join(tmpDir, "baseline", "test_unmodified.png"), 0)

	hash, err := imghash.ComputeFile(filepath.Join(tmpDir, "rendered", "fig.png"))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	writeFile(t, filepath.Join(tmpDir, "hashes.json"),
		`{"test.test_modified": "`+hash+`", "test.test_new": "`+hash+`", "test.test_unmodified": "`+hash+`"}`)

	resultsDir := filepath.Join(tmpDir, "results")
	var code int
	captureStderr(t, func() {
		code = run([]string{
			"run", "--results-always",
			"--hash-library", "hashes.json",
			"--baseline-path", "baseline",
			"--tolerance", "0",
			"--generate-summary", "html",
			"--results-path", "results",
			"figcheck.yaml",
		}, nil, tmpDir)
	})
	if code != exitOK {
		t.Fatalf("hashes match, run should pass; exit code = %d", code)
	}

	html, err := os.ReadFile(filepath.Join(resultsDir, "fig_comparison.html"))
	if err != nil {
		t.Fatalf("report missing: %v", err)
	}

	matrix := map[string][]string{
		"test.test_modified":   {"result.png", "baseline.png", "result-failed-diff.png"},
		"test.test_new":        {"result.png"},
		"test.test_unmodified": {"result.png", "baseline.png"},
	}
	all := []string{"result.png", "baseline.png", "result-failed-diff.png"}

	for testID, expected := range matrix {
		if !strings.Contains(string(html), testID+" (passed)") {
			t.Errorf("report missing heading for %s", testID)
		}
		present := make(map[string]bool)
		for _, name := range expected {
			present[name] = true
		}
		for _, name := range all {
			// The report references every slot regardless of existence.
			if !strings.Contains(string(html), testID+"/"+name) {
				t.Errorf("report missing reference %s/%s", testID, name)
			}
			_, err := os.Stat(filepath.Join(resultsDir, testID, name))
			if present[name] && err != nil {
				t.Errorf("%s: expected artifact %s: %v", testID, name, err)
			}
			if !present[name] && err == nil {
				t.Errorf("%s: unexpected artifact %s", testID, name)
			}
		}
	}
}

func TestRun_JSONOutputOnStdout(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "figcheck.yaml"), passingManifest)
	writeFixtureImage(t, filepath.Join(tmpDir, "baseline", "test_succeeds.png"), 0)
	writeFixtureImage(t, filepath.Join(tmpDir, "rendered", "succeeds.png"), 0)

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	code := run([]string{"run", "--json", "figcheck.yaml"}, nil, tmpDir)

	w.Close()
	os.Stdout = oldStdout
	var buf bytes.Buffer
	io.Copy(&buf, r)
	r.Close()

	if code != exitOK {
		t.Fatalf("exit code = %d", code)
	}
	out := buf.String()
	if !strings.Contains(out, `"testId": "test.test_succeeds"`) ||
		!strings.Contains(out, `"status": "PASS"`) {
		t.Errorf("stdout = %q", out)
	}
}

// Environment variables supply defaults that flags override.
func TestRun_EnvironmentFallback(t *testing.T) {
	tmpDir := t.TempDir()
	manifest := `
tests:
  - id: test.test_env
    image: rendered/env.png
`
	writeFile(t, filepath.Join(tmpDir, "figcheck.yaml"), manifest)
	writeFixtureImage(t, filepath.Join(tmpDir, "rendered", "env.png"), 0)
	writeFixtureImage(t, filepath.Join(tmpDir, "envbase", "test_env.png"), 0)

	environ := []string{"FIGCHECK_BASELINE_PATH=envbase"}
	code := run([]string{"run", "figcheck.yaml"}, environ, tmpDir)
	if code != exitOK {
		t.Errorf("exit code = %d", code)
	}
}

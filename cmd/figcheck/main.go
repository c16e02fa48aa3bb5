package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"figcheck/internal/baseline"
	"figcheck/internal/cli"
	"figcheck/internal/compare"
	"figcheck/internal/config"
	"figcheck/internal/hashlib"
	"figcheck/internal/render"
	"figcheck/internal/report"
	"figcheck/internal/result"
)

// Exit codes: 0 all tests passed, 1 any test failed or errored (including a
// hash-library generation run, which never verifies anything), 2 bad flags
// or manifest, 3 manifest not found, 4 corrupt hash library.
const (
	exitOK              = 0
	exitFailed          = 1
	exitConfigError     = 2
	exitManifestMissing = 3
	exitCorruptLibrary  = 4
)

func main() {
	exitCode := run(os.Args[1:], os.Environ(), ".")
	os.Exit(exitCode)
}

// run orchestrates a full comparison run.
// It returns an exit code (0 for success, non-zero for failure).
// This function is separated from main() to enable testing.
func run(args []string, environ []string, workdir string) int {
	cmd, err := cli.ParseArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitConfigError
	}

	// Flag > environment > default, per setting.
	baselineOverride := resolveSetting(cmd.BaselinePath, environ, "FIGCHECK_BASELINE_PATH")
	hashOverride := resolveSetting(cmd.HashLibrary, environ, "FIGCHECK_HASH_LIBRARY")
	resultsPath := resolveSetting(cmd.ResultsPath, environ, "FIGCHECK_RESULTS_PATH")

	manifestPath := joinWorkdir(workdir, cmd.Manifest)
	manifest, err := config.LoadManifest(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "manifest not found: %s\n", manifestPath)
			return exitManifestMissing
		}
		fmt.Fprintf(os.Stderr, "failed to parse manifest: %v\n", err)
		return exitConfigError
	}

	var formats []report.Format
	if cmd.GenerateSummary != "" {
		formats, err = report.ParseFormats(cmd.GenerateSummary)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return exitConfigError
		}
	}

	if resultsPath == "" {
		resultsPath, err = os.MkdirTemp("", "figcheck-results-*")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot create results directory: %v\n", err)
			return exitFailed
		}
	} else {
		resultsPath = joinWorkdir(workdir, resultsPath)
		if err := os.MkdirAll(resultsPath, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot create results directory: %v\n", err)
			return exitFailed
		}
	}

	summary := result.NewSummary(resultsPath)

	recorder := &result.Recorder{
		Summary:       summary,
		Resolver:      baseline.NewResolver(),
		ResultsAlways: cmd.ResultsAlways,
	}
	if cmd.GeneratePath != "" {
		recorder.GenerateDir = joinWorkdir(workdir, cmd.GeneratePath)
	}
	if cmd.GenerateHashLibrary != "" {
		genPath := joinWorkdir(workdir, cmd.GenerateHashLibrary)
		recorder.GeneratedHashes = hashlib.New(genPath)
		summary.HashLibraryGenerated = genPath
	}

	// Each distinct hash library is loaded once for the whole run.
	libraries := make(map[string]*hashlib.Library)
	loadLibrary := func(path string) (*hashlib.Library, int) {
		if lib, ok := libraries[path]; ok {
			return lib, exitOK
		}
		lib, err := hashlib.Load(path)
		if err != nil {
			var corrupt *hashlib.CorruptError
			if errors.As(err, &corrupt) {
				fmt.Fprintln(os.Stderr, "Error:", corrupt)
				return nil, exitCorruptLibrary
			}
			fmt.Fprintf(os.Stderr, "Can't find hash library at path %s\n", path)
			return nil, exitFailed
		}
		libraries[path] = lib
		return lib, exitOK
	}

	renderer := render.New(workdir, environ)
	overrides := config.Overrides{
		BaselinePath: baselineOverride,
		Tolerance:    cmd.Tolerance,
		HashLibrary:  hashOverride,
	}
	ctx := context.Background()

	for _, tc := range manifest.Tests {
		opts := manifest.Resolve(tc, overrides, compare.DefaultTolerance())
		imagePath := joinWorkdir(workdir, opts.Image)

		if err := renderer.Render(ctx, opts.Render, imagePath); err != nil {
			summary.Add(result.Comparison{
				TestID:  opts.ID,
				Status:  result.StatusError,
				Message: err.Error(),
			})
			continue
		}

		if cmd.RenderOnly {
			summary.Add(result.Comparison{TestID: opts.ID, Status: result.StatusPass})
			continue
		}

		testOpts := result.TestOptions{
			TestID:        opts.ID,
			RenderedImage: imagePath,
			Filename:      opts.Filename,
			Tolerance:     opts.Tolerance,
		}
		if opts.BaselineSpec != "" {
			testOpts.Baseline = parseBaselineSpec(workdir, opts.BaselineSpec)
		}
		if opts.HashLibrary != "" && cmd.GeneratePath == "" {
			lib, code := loadLibrary(joinWorkdir(workdir, opts.HashLibrary))
			if code != exitOK {
				return code
			}
			testOpts.HashLibrary = lib
		}

		recorder.Record(ctx, testOpts)
	}

	if recorder.GeneratedHashes != nil {
		if code := writeGeneratedLibrary(recorder.GeneratedHashes); code != exitOK {
			return code
		}
		fmt.Fprintf(os.Stderr, "Hash library written to: %s\n", summary.HashLibraryGenerated)
	}

	for _, c := range summary.Failed() {
		fmt.Fprintf(os.Stderr, "%s %s\n%s\n", c.Status, c.TestID, indent(c.Message))
	}

	if len(formats) > 0 {
		paths, err := report.WriteAll(summary, formats)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot write summary: %v\n", err)
			return exitFailed
		}
		if summary.ExitNonZero() && len(paths) > 0 {
			fmt.Fprintf(os.Stderr, "A summary of the failed tests can be found at: %s\n", paths[0])
		}
	}

	if cmd.JSONOutput {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot serialize summary: %v\n", err)
			return exitFailed
		}
		fmt.Println(string(data))
	}

	if summary.ExitNonZero() {
		return exitFailed
	}
	return exitOK
}

// writeGeneratedLibrary merges the freshly collected hashes over any
// existing library at the destination and writes the result atomically, so
// generate-on-failure runs update rather than clobber prior entries.
func writeGeneratedLibrary(generated *hashlib.Library) int {
	merged := generated
	if existing, err := hashlib.Load(generated.Path); err == nil {
		existing.Merge(generated)
		merged = existing
	}
	if err := merged.WriteAtomic(generated.Path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot write hash library: %s: %v\n", generated.Path, err)
		return exitFailed
	}
	return exitOK
}

// parseBaselineSpec parses the comma-separated source list, anchoring local
// directories at the workdir.
func parseBaselineSpec(workdir, spec string) baseline.Spec {
	sources := baseline.ParseSpec(spec)
	for i, src := range sources {
		if !src.Remote {
			sources[i].Location = joinWorkdir(workdir, src.Location)
		}
	}
	return sources
}

// resolveSetting returns the flag value, falling back to the named
// environment variable.
func resolveSetting(flagValue string, environ []string, envName string) string {
	if flagValue != "" {
		return flagValue
	}
	prefix := envName + "="
	for _, env := range environ {
		if strings.HasPrefix(env, prefix) {
			return strings.TrimPrefix(env, prefix)
		}
	}
	return ""
}

// joinWorkdir anchors relative paths at the working directory.
func joinWorkdir(workdir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workdir, path)
}

// indent prefixes every message line for readable stderr output.
func indent(msg string) string {
	if msg == "" {
		return "  (no details)"
	}
	return "  " + strings.ReplaceAll(msg, "\n", "\n  ")
}

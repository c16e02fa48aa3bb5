package result

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"figcheck/internal/baseline"
	"figcheck/internal/compare"
	"figcheck/internal/hashlib"
	"figcheck/internal/imghash"
	"figcheck/internal/imgio"
)

// Recorder runs the configured checks for each test and persists artifacts
// under the summary's results root. Per-test state machine:
//
//	NOT_RUN -> HASH_CHECKED -> {IMAGE_CHECKED | SKIPPED_IMAGE} -> FINALIZED
//
// When both a hash library and a baseline path are configured (hybrid mode)
// the hash check is authoritative: the image comparison only enriches the
// failure message, it never flips the verdict.
type Recorder struct {
	Summary  *Summary
	Resolver *baseline.Resolver

	// GenerateDir, when set, receives rendered images as new baselines and
	// disables comparison for the run (silent local pass).
	GenerateDir string
	// GeneratedHashes, when non-nil, collects the computed hash of every
	// test regardless of verdict, so a corrected library can be produced
	// from a failing run.
	GeneratedHashes *hashlib.Library
	// ResultsAlways persists result/baseline artifacts for passing tests
	// too, and runs the diagnostic image comparison even when the hash
	// check passes.
	ResultsAlways bool
}

// Record executes the checks for one test, writes its artifacts, appends
// the record to the summary, and returns it.
func (r *Recorder) Record(ctx context.Context, opts TestOptions) Comparison {
	c := r.record(ctx, opts)
	r.Summary.Add(c)
	return c
}

func (r *Recorder) record(ctx context.Context, opts TestOptions) Comparison {
	c := Comparison{TestID: opts.TestID}

	// Hash generation collects every test's hash, pass or fail.
	if r.GeneratedHashes != nil {
		hash, err := imghash.ComputeFile(opts.RenderedImage)
		if err != nil {
			c.Status = StatusError
			c.Message = fmt.Sprintf("cannot hash rendered image: %v", err)
			return c
		}
		r.GeneratedHashes.Set(opts.TestID, hash)
	}

	// Image baseline generation replaces comparison entirely.
	if r.GenerateDir != "" {
		if err := r.generateBaseline(opts); err != nil {
			c.Status = StatusError
			c.Message = err.Error()
			return c
		}
		c.Status = StatusPass
		c.Message = "Skipped comparison, since generating baseline image."
		return c
	}

	hashConfigured := opts.HashLibrary != nil
	imageConfigured := len(opts.Baseline) > 0

	if !hashConfigured && !imageConfigured {
		if r.GeneratedHashes != nil {
			c.Status = StatusPass
			c.Message = "Skipped comparison, since generating hash library."
			return c
		}
		c.Status = StatusError
		c.Message = fmt.Sprintf("no baseline configured for test '%s': provide a baseline path, a hash library, or a generation mode", opts.TestID)
		return c
	}

	testDir := r.Summary.TestDir(opts.TestID)
	if err := os.MkdirAll(testDir, 0755); err != nil {
		c.Status = StatusError
		c.Message = err.Error()
		return c
	}
	if err := imgio.CopyFile(opts.RenderedImage, filepath.Join(testDir, "result.png")); err != nil {
		c.Status = StatusError
		c.Message = fmt.Sprintf("cannot persist result image: %v", err)
		r.finalizeArtifacts(testDir, &c)
		return c
	}
	resultPath := filepath.Join(testDir, "result.png")

	if hashConfigured {
		r.checkHash(ctx, opts, testDir, resultPath, &c)
	} else {
		r.checkImage(ctx, opts, testDir, resultPath, &c, true)
	}

	r.finalizeArtifacts(testDir, &c)
	return c
}

// checkHash runs the primary hash check and, in hybrid mode, the
// diagnostic image comparison.
func (r *Recorder) checkHash(ctx context.Context, opts TestOptions, testDir, resultPath string, c *Comparison) {
	c.HashChecked = true

	expected, ok := opts.HashLibrary.Lookup(opts.TestID)
	if !ok {
		c.Status = StatusError
		c.Message = fmt.Sprintf("Hash for test '%s' not found in %s", opts.TestID, opts.HashLibrary.Path)
		return
	}

	actual, err := imghash.ComputeFile(resultPath)
	if err != nil {
		c.Status = StatusError
		c.Message = fmt.Sprintf("cannot hash rendered image: %v", err)
		return
	}

	matched := actual == expected
	c.HashMatched = &matched

	if matched {
		c.Status = StatusPass
		// With results-always the image comparison still runs so the report
		// has baseline and diff artifacts, but its outcome is informational.
		if r.ResultsAlways && len(opts.Baseline) > 0 {
			diag := Comparison{TestID: opts.TestID}
			r.checkImage(ctx, opts, testDir, resultPath, &diag, false)
			c.ImageChecked = diag.ImageChecked
			c.ImageMatched = diag.ImageMatched
			c.BaselineFound = diag.BaselineFound
		}
		return
	}

	c.Status = StatusFail
	c.Message = fmt.Sprintf("Hash %s doesn't match hash %s in library %s for test '%s'.",
		actual, expected, opts.HashLibrary.Path, opts.TestID)

	// Hybrid mode: a baseline path was explicitly supplied, so run the image
	// comparison purely to enrich the failure message. The hash mismatch
	// stays authoritative either way.
	if len(opts.Baseline) > 0 {
		diag := Comparison{TestID: opts.TestID}
		r.checkImage(ctx, opts, testDir, resultPath, &diag, false)
		c.ImageChecked = diag.ImageChecked
		c.ImageMatched = diag.ImageMatched
		c.BaselineFound = diag.BaselineFound

		switch {
		case !diag.BaselineFound:
			c.Message += "\nUnable to find baseline image for comparison."
		case diag.ImageMatched != nil && *diag.ImageMatched:
			c.Message += "\nHowever, the comparison to the baseline image succeeded."
		default:
			c.Message += "\n" + diag.Message
		}
	}
}

// checkImage resolves the baseline and compares against it. When primary is
// true the outcome decides the verdict; otherwise the caller only reads the
// check fields and message.
func (r *Recorder) checkImage(ctx context.Context, opts TestOptions, testDir, resultPath string, c *Comparison, primary bool) {
	baselinePath, err := r.Resolver.Resolve(ctx, opts.Baseline, opts.Filename, testDir)
	if err != nil {
		if !errors.Is(err, baseline.ErrBaselineNotFound) && primary {
			c.Status = StatusError
			c.Message = err.Error()
			return
		}
		if primary {
			c.Status = StatusError
			c.Message = fmt.Sprintf(
				"Unable to find baseline image for test '%s'.\n(This is expected for new tests.)\nGenerated image: %s",
				opts.TestID, resultPath)
		}
		return
	}
	c.BaselineFound = true

	res, err := compare.Compare(resultPath, baselinePath, opts.Tolerance)
	if err != nil {
		if primary {
			c.Status = StatusError
			c.Message = err.Error()
		}
		return
	}

	c.ImageChecked = true
	matched := res.Matched
	c.ImageMatched = &matched

	if !matched {
		// The diff image is always materialized on mismatch so the report
		// can reference it; whether it survives is decided in finalize.
		if res.Diff != nil {
			if err := imgio.EncodePNG(filepath.Join(testDir, "result-failed-diff.png"), res.Diff); err != nil && primary {
				c.Status = StatusError
				c.Message = err.Error()
				return
			}
		}
		if primary {
			c.Status = StatusFail
		}
		c.Message = res.Message
		return
	}

	if primary {
		c.Status = StatusPass
	}
}

// finalizeArtifacts removes the per-test directory for passing tests unless
// results-always persistence was requested. Failing and erroring tests keep
// their artifacts for the report.
func (r *Recorder) finalizeArtifacts(testDir string, c *Comparison) {
	if c.Status == StatusPass && !r.ResultsAlways {
		os.RemoveAll(testDir)
	}
}

// generateBaseline copies the rendered image into the generation directory
// under the baseline filename.
func (r *Recorder) generateBaseline(opts TestOptions) error {
	if err := os.MkdirAll(r.GenerateDir, 0755); err != nil {
		return err
	}
	dst := filepath.Join(r.GenerateDir, opts.Filename)
	if err := imgio.CopyFile(opts.RenderedImage, dst); err != nil {
		return fmt.Errorf("cannot generate baseline image %s: %w", dst, err)
	}
	return nil
}

// Package compare pixel-compares a rendered result against a baseline
// image under a numeric tolerance. The metric is the root mean square of
// per-channel absolute differences on a 0-255 scale: rms <= tolerance is a
// match. Same images and tolerance always yield the same verdict.
package compare

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"

	"figcheck/internal/imgio"
)

// DefaultTolerance is the conservative default RMS threshold. Windows font
// rendering differs enough from other platforms that a higher default is
// needed there.
func DefaultTolerance() float64 {
	if runtime.GOOS == "windows" {
		return 10
	}
	return 2
}

// Result is the outcome of one image comparison.
type Result struct {
	Matched bool
	RMS     float64
	// Diff is the per-channel absolute difference image. Populated on a
	// pixel mismatch, nil on match and on size mismatch; persisting it is
	// the caller's decision.
	Diff    *image.RGBA
	Message string
}

// Compare decodes both images and compares them. A pixel-dimension mismatch
// fails immediately with a descriptive message and no pixel loop. Returns
// an error only for unreadable or undecodable files.
func Compare(resultPath, baselinePath string, tolerance float64) (Result, error) {
	actual, err := imgio.Decode(resultPath)
	if err != nil {
		return Result{}, err
	}
	expected, err := imgio.Decode(baselinePath)
	if err != nil {
		return Result{}, err
	}

	ab, eb := actual.Bounds(), expected.Bounds()
	if ab.Dx() != eb.Dx() || ab.Dy() != eb.Dy() {
		return Result{
			Matched: false,
			Message: fmt.Sprintf(
				"Error: Image dimensions did not match.\n  Expected shape: %dx%d\n    %s\n  Actual shape: %dx%d\n    %s",
				eb.Dx(), eb.Dy(), baselinePath, ab.Dx(), ab.Dy(), resultPath),
		}, nil
	}

	rms, diff := diffRMS(expected, actual)
	if rms <= tolerance {
		return Result{Matched: true, RMS: rms}, nil
	}

	return Result{
		Matched: false,
		RMS:     rms,
		Diff:    diff,
		Message: fmt.Sprintf(
			"Error: Image files did not match.\n  RMS Value: %g\n  Expected:  \n    %s\n  Actual:    \n    %s\n  Tolerance: %g",
			rms, baselinePath, resultPath, tolerance),
	}, nil
}

// diffRMS computes the RMS deviation over all RGBA channels and builds the
// absolute-difference image, with alpha forced opaque so the diff is
// viewable.
func diffRMS(expected, actual *image.RGBA) (float64, *image.RGBA) {
	b := actual.Bounds()
	diff := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	var sumSq float64
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			e := expected.RGBAAt(expected.Bounds().Min.X+x, expected.Bounds().Min.Y+y)
			a := actual.RGBAAt(b.Min.X+x, b.Min.Y+y)

			dr := absDiff(e.R, a.R)
			dg := absDiff(e.G, a.G)
			db := absDiff(e.B, a.B)
			da := absDiff(e.A, a.A)

			sumSq += float64(dr)*float64(dr) + float64(dg)*float64(dg) +
				float64(db)*float64(db) + float64(da)*float64(da)

			diff.SetRGBA(x, y, color.RGBA{R: dr, G: dg, B: db, A: 255})
		}
	}

	n := float64(b.Dx()) * float64(b.Dy()) * 4
	return math.Sqrt(sumSq / n), diff
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// Package imgio reads and writes the raster images the comparison engine
// works with. Results and baselines are PNG; baselines produced by other
// rendering backends may also arrive as BMP or TIFF, so those decoders are
// registered too.
package imgio

import (
	"fmt"
	"image"
	"image/png"
	"os"

	// Extra decode support for non-PNG baselines.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// Decode reads the image at path and converts it to RGBA so callers can
// compare pixels without caring about the source color model.
func Decode(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("cannot decode image %s: %w", path, err)
	}

	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}

	b := img.Bounds()
	rgba := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	return rgba, nil
}

// EncodePNG writes img to path as PNG. The file is only created once the
// image is fully materialized in memory, so an interrupted run never leaves
// a truncated result under the final name for long: encoding failures remove
// the partial file.
func EncodePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("cannot encode %s: %w", path, err)
	}
	return f.Close()
}

// CopyFile copies the file at src to dst, replacing dst if present.
// Used to place a resolved baseline next to the test result.
func CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

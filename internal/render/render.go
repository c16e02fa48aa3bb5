// Package render runs the external command that produces a test's image.
// Rendering is an opaque collaborator: figcheck only cares that after the
// command exits successfully the declared image file exists.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// DefaultTimeout bounds a single render command.
const DefaultTimeout = 2 * time.Minute

// ErrNoOutput is returned when the render command exits zero but the
// declared image file is missing afterwards.
var ErrNoOutput = errors.New("render command produced no image")

// Renderer executes render commands with a per-command timeout.
type Renderer struct {
	Timeout time.Duration
	Environ []string
	Dir     string // working directory for render commands
}

// New returns a renderer with the default timeout, inheriting environ.
func New(dir string, environ []string) *Renderer {
	return &Renderer{Timeout: DefaultTimeout, Environ: environ, Dir: dir}
}

// Render runs argv and verifies that imagePath exists afterwards. Command
// output goes to stderr so render diagnostics stay out of stdout.
func (r *Renderer) Render(ctx context.Context, argv []string, imagePath string) error {
	if len(argv) == 0 {
		// Pre-rendered test case: the image must already be on disk.
		if _, err := os.Stat(imagePath); err != nil {
			return fmt.Errorf("%w: %s", ErrNoOutput, imagePath)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = r.Environ
	cmd.Dir = r.Dir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("render command timed out after %s: %v", r.Timeout, argv)
		}
		return fmt.Errorf("render command failed: %v: %w", argv, err)
	}

	if _, err := os.Stat(imagePath); err != nil {
		return fmt.Errorf("%w: %s", ErrNoOutput, imagePath)
	}
	return nil
}

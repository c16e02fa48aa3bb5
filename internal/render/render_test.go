package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestRender_PreRenderedImage(t *testing.T) {
	tmpDir := t.TempDir()
	imagePath := filepath.Join(tmpDir, "out.png")
	if err := os.WriteFile(imagePath, []byte("png"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := New(tmpDir, os.Environ())
	if err := r.Render(context.Background(), nil, imagePath); err != nil {
		t.Errorf("pre-rendered image should pass: %v", err)
	}
}

func TestRender_PreRenderedMissing(t *testing.T) {
	tmpDir := t.TempDir()
	r := New(tmpDir, os.Environ())
	err := r.Render(context.Background(), nil, filepath.Join(tmpDir, "absent.png"))
	if !errors.Is(err, ErrNoOutput) {
		t.Errorf("expected ErrNoOutput, got %v", err)
	}
}

func TestRender_CommandProducesImage(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	tmpDir := t.TempDir()
	imagePath := filepath.Join(tmpDir, "out.png")

	r := New(tmpDir, os.Environ())
	argv := []string{"sh", "-c", "printf png > " + imagePath}
	if err := r.Render(context.Background(), argv, imagePath); err != nil {
		t.Fatalf("render: %v", err)
	}
	if _, err := os.Stat(imagePath); err != nil {
		t.Errorf("image not produced: %v", err)
	}
}

func TestRender_CommandFails(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	tmpDir := t.TempDir()
	r := New(tmpDir, os.Environ())
	err := r.Render(context.Background(), []string{"sh", "-c", "exit 3"}, filepath.Join(tmpDir, "out.png"))
	if err == nil {
		t.Fatal("expected error for failing render command")
	}
}

func TestRender_CommandExitsZeroButNoImage(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	tmpDir := t.TempDir()
	r := New(tmpDir, os.Environ())
	err := r.Render(context.Background(), []string{"true"}, filepath.Join(tmpDir, "out.png"))
	if !errors.Is(err, ErrNoOutput) {
		t.Errorf("expected ErrNoOutput, got %v", err)
	}
}

func TestRender_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sleep")
	}
	tmpDir := t.TempDir()
	r := New(tmpDir, os.Environ())
	r.Timeout = 100 * time.Millisecond

	start := time.Now()
	err := r.Render(context.Background(), []string{"sleep", "10"}, filepath.Join(tmpDir, "out.png"))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("render did not honor the timeout")
	}
}

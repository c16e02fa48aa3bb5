// Package imghash computes content hashes for rendered images.
// The hash is a cheap proxy for full pixel comparison: identical image bytes
// always produce the same hash, so a library of known-good hashes can verify
// a rendered figure without shipping baseline images.
package imghash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Compute returns the hex-encoded SHA-256 hash of everything read from r.
func Compute(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeFile returns the hash of the file at path.
func ComputeFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot hash image: %w", err)
	}
	defer f.Close()
	return Compute(f)
}

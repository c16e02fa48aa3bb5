// Package baseline locates the trusted reference image for a test. A
// baseline specification is an ordered list of sources - local directories
// and remote base URLs - tried in declared order until one yields the file.
// A bad mirror is skipped, not fatal: only exhausting every source is an
// error, so a suite can point at redundant or partially-available mirrors.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrBaselineNotFound is returned when no source yields the baseline image.
var ErrBaselineNotFound = errors.New("unable to find baseline image")

// DefaultFetchTimeout bounds each remote fetch attempt. One attempt per
// candidate, no retries - a slow mirror must not block the run indefinitely.
const DefaultFetchTimeout = 10 * time.Second

// Source is one candidate location for baseline images.
type Source struct {
	Location string
	Remote   bool
}

// Spec is an ordered list of candidate sources.
type Spec []Source

// ParseSpec splits a comma-separated baseline specification into ordered
// sources. Entries starting with http:// or https:// are remote mirrors,
// everything else is a local directory. Empty entries are dropped.
func ParseSpec(spec string) Spec {
	var sources Spec
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		remote := strings.HasPrefix(entry, "http://") || strings.HasPrefix(entry, "https://")
		sources = append(sources, Source{Location: entry, Remote: remote})
	}
	return sources
}

// Resolver fetches baseline images. The zero value is not usable; use
// NewResolver.
type Resolver struct {
	client *http.Client
}

// NewResolver returns a resolver whose remote fetches time out after
// DefaultFetchTimeout each.
func NewResolver() *Resolver {
	return NewResolverWithTimeout(DefaultFetchTimeout)
}

// NewResolverWithTimeout returns a resolver with a custom per-attempt timeout.
func NewResolverWithTimeout(timeout time.Duration) *Resolver {
	return &Resolver{client: &http.Client{Timeout: timeout}}
}

// Resolve tries each source in order and materializes the first baseline
// found as destDir/baseline.png, returning its path. Local sources are
// checked with a stat; remote sources with a single GET. Any per-candidate
// failure (missing file, network error, non-200 status) advances to the
// next candidate. Exhaustion returns ErrBaselineNotFound.
func (r *Resolver) Resolve(ctx context.Context, spec Spec, filename, destDir string) (string, error) {
	if len(spec) == 0 {
		return "", ErrBaselineNotFound
	}

	dest := filepath.Join(destDir, "baseline.png")

	for _, src := range spec {
		if src.Remote {
			if err := r.fetchRemote(ctx, src.Location, filename, dest); err != nil {
				continue
			}
			return dest, nil
		}

		candidate := filepath.Join(src.Location, filename)
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := copyFile(candidate, dest); err != nil {
			continue
		}
		return dest, nil
	}

	return "", fmt.Errorf("%w: %s", ErrBaselineNotFound, filename)
}

// fetchRemote downloads base+filename to dest. The body is read fully into
// memory before anything is written under the final name, so an interrupted
// transfer never leaves a truncated baseline behind.
func (r *Resolver) fetchRemote(ctx context.Context, base, filename, dest string) error {
	url := base
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	url += filename

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0644)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

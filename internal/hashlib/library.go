// Package hashlib persists the mapping from test identifier to expected
// image hash. The library is a single JSON document, loaded whole at run
// start and replaced whole on write so an interrupted run can never leave a
// half-written library behind.
package hashlib

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrLibraryNotFound is returned when the library file does not exist.
var ErrLibraryNotFound = errors.New("hash library not found")

// CorruptError indicates the library file exists but cannot be parsed.
// All lookups against a corrupt library would be meaningless, so callers
// treat this as fatal for the run.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt hash library %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Library is a loaded hash library. Path records where it was loaded from
// so failure messages can name the file.
type Library struct {
	Path    string
	entries map[string]string
}

// New returns an empty library, used when collecting hashes for generation.
func New(path string) *Library {
	return &Library{Path: path, entries: make(map[string]string)}
}

// Load reads the library at path. A missing file yields ErrLibraryNotFound;
// malformed content yields a CorruptError.
func Load(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLibraryNotFound, path)
		}
		return nil, err
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	if entries == nil {
		entries = make(map[string]string)
	}

	return &Library{Path: path, entries: entries}, nil
}

// Lookup returns the stored hash for testID. The second return value
// distinguishes "library present but test absent" from "library absent",
// which callers report differently.
func (l *Library) Lookup(testID string) (string, bool) {
	hash, ok := l.entries[testID]
	return hash, ok
}

// Set records a hash for testID, overriding any previous entry.
func (l *Library) Set(testID, hash string) {
	l.entries[testID] = hash
}

// Len returns the number of entries.
func (l *Library) Len() int { return len(l.entries) }

// TestIDs returns the identifiers in the library in sorted order.
func (l *Library) TestIDs() []string {
	ids := make([]string, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Merge overlays other onto l: entries in other override entries in l by
// test identifier. Used for incremental generate-on-failure workflows where
// an existing library is updated with freshly computed hashes.
func (l *Library) Merge(other *Library) {
	for id, hash := range other.entries {
		l.entries[id] = hash
	}
}

// WriteAtomic writes the library to path as pretty-printed JSON with sorted
// keys (human-diffable). The document is written to a temporary file in the
// destination directory and renamed into place, so readers never observe a
// partial library.
func (l *Library) WriteAtomic(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	// encoding/json sorts map keys, which keeps the file diffable.
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".hashlib-*.json")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

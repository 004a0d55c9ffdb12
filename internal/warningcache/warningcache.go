// Package warningcache implements the per-source warning replay cache from
// spec section 4.8: the last compile's warning chunks, persisted as JSON,
// replayed through the Diagnostic Deduplicator when a compile is skipped.
package warningcache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// Cache is the JSON shape from spec section 6: { "warnings": [chunk, ...] }.
type Cache struct {
	Warnings []string `json:"warnings"`
}

// Load reads the warning cache at path. A missing cache is reported as an
// os.IsNotExist error and a corrupt one as a parse error; callers should
// silently ignore either per spec section 4.8.
func Load(path string) (*Cache, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Cache
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, xerrors.Errorf("warningcache: corrupt cache %s: %w", path, err)
	}
	return &c, nil
}

// Write persists the warning chunks collected during one compile,
// atomically, following the same renameio.TempFile pattern as depstore.
func Write(path string, warnings []string) error {
	c := Cache{Warnings: warnings}
	b, err := json.MarshalIndent(&c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return xerrors.Errorf("warningcache: %w", err)
	}
	f, err := renameio.TempFile("", path)
	if err != nil {
		return xerrors.Errorf("warningcache: %w", err)
	}
	defer f.Cleanup()
	if _, err := f.Write(b); err != nil {
		return xerrors.Errorf("warningcache: %w", err)
	}
	return f.CloseAtomicallyReplace()
}

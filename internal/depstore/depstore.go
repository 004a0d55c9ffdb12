// Package depstore implements the Dependency Descriptor Store described in
// spec section 4.3: per-source JSON sidecars, emitted by the compiler as a
// side effect of a successful compile, that list the headers a translation
// unit actually included.
//
// The JSON read pattern follows the shape of the teacher's pb.ReadBuildFile /
// pb.ReadMetaFile (read the whole file, single Unmarshal call), generalized
// from textproto to JSON per spec section 6's wire format, and
// writes go through renameio so a crash mid-write can't leave a corrupt
// sidecar that a later build would fail to parse.
package depstore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"golang.org/x/xerrors"

	"github.com/abs-build/abs/internal/edittime"
	"github.com/abs-build/abs/internal/uptodate"
)

// descriptorFile is the on-disk JSON shape from spec section 6: a two-level
// object produced by the compiler's /sourceDependencies flag.
type descriptorFile struct {
	Data struct {
		Includes []string `json:"Includes"`
		PCH      *string  `json:"PCH"`
	} `json:"Data"`
}

// Descriptor is a per-source dependency record: the headers it included,
// and the PCH it was compiled against, if any.
type Descriptor struct {
	Includes []string
	PCH      string // empty if none
}

// Load parses the descriptor sidecar at path. A missing file is reported
// via os.IsNotExist on the returned error so callers can distinguish "must
// rebuild, no error" from a genuinely corrupt sidecar (spec section 7:
// DiscoverSrcDepsError is fatal for that source, missing is not an error).
func Load(path string) (*Descriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var df descriptorFile
	if err := json.Unmarshal(b, &df); err != nil {
		return nil, xerrors.Errorf("depstore: corrupt descriptor %s: %w", path, err)
	}
	d := &Descriptor{Includes: df.Data.Includes}
	if df.Data.PCH != nil {
		d.PCH = *df.Data.PCH
	}
	return d, nil
}

// Write persists a descriptor atomically, following the teacher's
// renameio.TempFile pattern (internal/build/build.go) rather than an
// in-place write, so a reader never observes a half-written sidecar.
func Write(path string, d *Descriptor) error {
	var df descriptorFile
	df.Data.Includes = d.Includes
	if d.PCH != "" {
		pch := d.PCH
		df.Data.PCH = &pch
	}
	b, err := json.MarshalIndent(&df, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return xerrors.Errorf("depstore: %w", err)
	}
	f, err := renameio.TempFile("", path)
	if err != nil {
		return xerrors.Errorf("depstore: %w", err)
	}
	defer f.Cleanup()
	if _, err := f.Write(b); err != nil {
		return xerrors.Errorf("depstore: %w", err)
	}
	return f.CloseAtomicallyReplace()
}

// EffectiveDependencies returns {src} unioned with the descriptor's
// includes and PCH, per spec section 4.3's second bullet.
func (d *Descriptor) EffectiveDependencies(src string) []string {
	deps := make([]string, 0, len(d.Includes)+2)
	deps = append(deps, src)
	deps = append(deps, d.Includes...)
	if d.PCH != "" {
		deps = append(deps, d.PCH)
	}
	return deps
}

// Check loads the descriptor at descriptorPath and reports whether it can
// be trusted for src, per spec section 4.3's first bullet: a missing
// sidecar and a sidecar older than src both report ok=false with a nil
// error ("unconditionally requires rebuild"); a sidecar that cannot be
// parsed is returned as an error.
//
// On success (ok=true), the returned Descriptor's EffectiveDependencies
// should be used for the object file's own up-to-date check.
func Check(oracle *edittime.Oracle, src, descriptorPath string) (desc *Descriptor, ok bool, err error) {
	desc, err = Load(descriptorPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	stale, err := uptodate.ShouldRebuild(oracle, []string{src}, []string{descriptorPath})
	if err != nil {
		return nil, false, err
	}
	if stale {
		return nil, false, nil
	}
	return desc, true, nil
}

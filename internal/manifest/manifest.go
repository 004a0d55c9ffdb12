// Package manifest loads and validates the JSON project manifest described
// in spec section 6 (project.json at a project's root).
package manifest

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/abs-build/abs/internal/platform"
	"golang.org/x/xerrors"
)

// OutputType is the kind of artifact a project produces.
type OutputType string

const (
	GuiApp         OutputType = "gui_app"
	ConsoleApp     OutputType = "console_app"
	DynamicLibrary OutputType = "dynamic_library"
	StaticLibrary  OutputType = "static_library"
)

func (o OutputType) valid() bool {
	switch o {
	case GuiApp, ConsoleApp, DynamicLibrary, StaticLibrary:
		return true
	}
	return false
}

// IsLibrary reports whether the output type is one of the library kinds,
// for which `run`/`debug` are rejected per spec section 4.5.
func (o OutputType) IsLibrary() bool {
	return o == DynamicLibrary || o == StaticLibrary
}

// CxxStandard is a C++ language standard, ordered by numeric value so
// dependency compatibility can be checked with <=.
type CxxStandard string

const (
	Cxx11 CxxStandard = "c++11"
	Cxx14 CxxStandard = "c++14"
	Cxx17 CxxStandard = "c++17"
	Cxx20 CxxStandard = "c++20"
)

var standardRank = map[CxxStandard]int{
	Cxx11: 11,
	Cxx14: 14,
	Cxx17: 17,
	Cxx20: 20,
}

func (s CxxStandard) valid() bool {
	_, ok := standardRank[s]
	return ok
}

// LessOrEqual reports whether s is no newer a standard than other, i.e.
// s's numeric value is <= other's.
func (s CxxStandard) LessOrEqual(other CxxStandard) bool {
	return standardRank[s] <= standardRank[other]
}

// CxxOptions are the per-project C++ compilation settings.
type CxxOptions struct {
	RTTI       bool        `json:"rtti"`
	AsyncAwait bool        `json:"async_await"`
	Standard   CxxStandard `json:"standard"`
}

// IsCompatibleWith implements the dependency compatibility rule from spec
// section 4.5: rtti and async_await must match exactly; the dependency's
// (receiver's) standard may be <= the root's (other's).
func (c CxxOptions) IsCompatibleWith(other CxxOptions) bool {
	return c.RTTI == other.RTTI &&
		c.AsyncAwait == other.AsyncAwait &&
		c.Standard.LessOrEqual(other.Standard)
}

// Manifest is the parsed, but not yet graph-validated, contents of a
// project.json file.
type Manifest struct {
	Name             string              `json:"name"`
	OutputType       OutputType          `json:"output_type"`
	CxxOptions       CxxOptions          `json:"cxx_options"`
	LinkLibraries    []string            `json:"link_libraries"`
	SupportedTargets []platform.Platform `json:"supported_targets"`
	Dependencies     []string            `json:"dependencies"`
}

// Load reads and validates a single manifest file in isolation (without
// knowledge of its dependencies' manifests — that validation is the Project
// Graph Resolver's job, see internal/graph).
func Load(path string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("manifest: reading %s: %w", path, err)
	}
	var raw struct {
		Name             string     `json:"name"`
		OutputType       OutputType `json:"output_type"`
		CxxOptions       CxxOptions `json:"cxx_options"`
		LinkLibraries    []string   `json:"link_libraries"`
		SupportedTargets []string   `json:"supported_targets"`
		Dependencies     []string   `json:"dependencies"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, xerrors.Errorf("manifest: parsing %s: %w", path, err)
	}
	m := &Manifest{
		Name:          raw.Name,
		OutputType:    raw.OutputType,
		CxxOptions:    raw.CxxOptions,
		LinkLibraries: raw.LinkLibraries,
		Dependencies:  raw.Dependencies,
	}
	for _, t := range raw.SupportedTargets {
		p, err := platform.Parse(t)
		if err != nil {
			return nil, xerrors.Errorf("manifest: %s: %w", path, err)
		}
		m.SupportedTargets = append(m.SupportedTargets, p)
	}
	if err := m.validate(); err != nil {
		return nil, xerrors.Errorf("manifest: %s: %w", path, err)
	}
	return m, nil
}

func (m *Manifest) validate() error {
	if m.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if !m.OutputType.valid() {
		return fmt.Errorf("unknown output_type %q", m.OutputType)
	}
	if !m.CxxOptions.Standard.valid() {
		return fmt.Errorf("unknown cxx_options.standard %q", m.CxxOptions.Standard)
	}
	if len(m.SupportedTargets) == 0 {
		return fmt.Errorf("supported_targets must not be empty")
	}
	seen := make(map[platform.Platform]bool, len(m.SupportedTargets))
	for _, t := range m.SupportedTargets {
		if seen[t] {
			return fmt.Errorf("duplicate entry %q in supported_targets", t)
		}
		seen[t] = true
	}
	seenDeps := make(map[string]bool, len(m.Dependencies))
	for _, d := range m.Dependencies {
		if seenDeps[d] {
			return fmt.Errorf("duplicate entry %q in dependencies", d)
		}
		seenDeps[d] = true
	}
	return nil
}

// Package config reads the optional user-level configuration file
// described in the project's ambient stack: parallelism, a NuGet feed
// setting, and MSVC/SDK root overrides, loaded from
// $ABS_HOME/config.yaml (or ~/.abs/config.yaml) via gopkg.in/yaml.v3.
//
// The $ABS_HOME root-lookup itself is grounded in the teacher's
// internal/env.DistriRoot (env var with a $HOME-relative default),
// generalized from a single exported var to a function so tests can
// override it without mutating process environment.
package config

import (
	"os"
	"path/filepath"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/abs-build/abs/internal/toolchain"
)

// Config is the optional user-level override file. Every field is
// optional; the zero value means "use the built-in default".
type Config struct {
	// Parallelism caps how many CxxCompileTasks run concurrently. Zero
	// means the orchestrator picks GOMAXPROCS.
	Parallelism int `yaml:"parallelism"`

	// NuGetFeed is read from config.yaml's nuget_feed key. The WinRT
	// pipeline's reference-package fetch does not consult it: nuget.exe
	// installs from its own default package sources.
	NuGetFeed string `yaml:"nuget_feed"`

	// ProgramFilesX86Root and WindowsKitsRoot override the Toolchain
	// Locator's probed roots, per spec section 9's "hard-coded paths"
	// note.
	ProgramFilesX86Root string `yaml:"program_files_x86_root"`
	WindowsKitsRoot     string `yaml:"windows_kits_root"`
}

// ToolchainOptions projects the toolchain-relevant fields of c into
// toolchain.Options.
func (c Config) ToolchainOptions() toolchain.Options {
	return toolchain.Options{
		ProgramFilesX86Root: c.ProgramFilesX86Root,
		WindowsKitsRoot:     c.WindowsKitsRoot,
	}
}

// Home returns $ABS_HOME if set, else $HOME/.abs.
func Home() string {
	if home := os.Getenv("ABS_HOME"); home != "" {
		return home
	}
	return os.ExpandEnv(filepath.Join("$HOME", ".abs"))
}

// Load reads config.yaml from Home(). A missing file returns the zero
// Config, not an error: the tool is fully usable with no config file.
func Load() (Config, error) {
	return LoadFrom(filepath.Join(Home(), "config.yaml"))
}

// LoadFrom reads a config file at an explicit path, exported separately
// from Load so tests don't have to manipulate $ABS_HOME/$HOME.
func LoadFrom(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, xerrors.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, xerrors.Errorf("config: parsing %s: %w", path, err)
	}
	return c, nil
}

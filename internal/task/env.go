// Package task implements the Task Model from spec section 4.6: a small
// tagged set of build steps, each exposing the same two-operation
// contract (previous_valid_run / run_guaranteed), composed by Run into
// the "reuse if possible, else do the work" policy the whole build is
// built from.
//
// BuildEnvironment is the per-(project, target, mode) context every task
// is handed; it owns the three pieces of shared mutable state spec
// section 5 and section 9's "Global diagnostic set" / "Edit-time cache"
// design notes call for: the Edit-time Oracle, the Diagnostic
// Deduplicator, and the Progress Reporter, all guarded internally by
// their own package's mutex rather than task.go's.
package task

import (
	"path/filepath"
	"strings"

	"github.com/abs-build/abs/internal/dedup"
	"github.com/abs-build/abs/internal/edittime"
	"github.com/abs-build/abs/internal/manifest"
	"github.com/abs-build/abs/internal/platform"
	"github.com/abs-build/abs/internal/progress"
	"github.com/abs-build/abs/internal/toolchain"
)

// BuildEnvironment is the shared context for every task building one
// (project, target, mode) triple, per the artifact directory layout in
// spec section 6: abs/<mode>/<project>/<target>/…
type BuildEnvironment struct {
	Manifest     *manifest.Manifest
	ManifestPath string // canonical path to this project's project.json
	Mode         string // "debug" or "release"
	Target       platform.Platform
	Toolchain    *toolchain.Paths
	ProjectDir   string // directory containing project.json and src/

	ArtifactRoot         string
	ObjDir               string
	SrcDepsDir           string
	WarningCacheDir      string
	DependencyHeadersDir string

	// InheritedLibraries is the Project Graph Resolver's output: this
	// project's own link_libraries plus every static dependency's, in
	// resolution order.
	InheritedLibraries []string

	// IncludeSearchPaths are extra -I roots beyond the toolchain's own and
	// this project's src/ root: staged dependency_headers directories and,
	// when the project has IDL files, the WinRT projection directory.
	IncludeSearchPaths []string

	Oracle   *edittime.Oracle
	Dedup    *dedup.Set
	Progress *progress.Reporter

	// KillBeforeLink releases any file lock a previously launched instance
	// of this project's binary holds, so the linker can overwrite it. Set
	// by the orchestrator, which owns the procmanager collaborator;
	// LinkTask does not call it when linking a static library, which never
	// holds such a lock.
	KillBeforeLink func() error
}

// New constructs a BuildEnvironment rooted at projectDir, deriving the
// artifact directory layout spec section 6 specifies. manifestPath is the
// canonical project.json path this environment was resolved from; every
// task includes it among its dependencies (via ManifestDependency) since
// the manifest drives compiler/linker flags and is itself a build input
// per spec section 4.2 and section 8's invariant 2.
func New(m *manifest.Manifest, manifestPath, mode string, target platform.Platform, tc *toolchain.Paths, projectDir string) *BuildEnvironment {
	root := filepath.Join(projectDir, "abs", mode, m.Name, string(target))
	return &BuildEnvironment{
		Manifest:             m,
		ManifestPath:         manifestPath,
		Mode:                 mode,
		Target:               target,
		Toolchain:            tc,
		ProjectDir:           projectDir,
		ArtifactRoot:         root,
		ObjDir:               filepath.Join(root, "obj"),
		SrcDepsDir:           filepath.Join(root, "src_deps"),
		WarningCacheDir:      filepath.Join(root, "warning_cache"),
		DependencyHeadersDir: filepath.Join(root, "dependency_headers"),
		Oracle:               edittime.New(),
		Dedup:                dedup.New(),
	}
}

// ManifestDependency returns this project's own project.json path, to be
// included in every task's dependency set: editing cxx_options or any
// other manifest field must force a rebuild even when sources and headers
// are untouched (spec section 4.2, section 8 invariant 2, Scenario S2).
func (env *BuildEnvironment) ManifestDependency() string {
	return env.ManifestPath
}

// SrcRoot is the project's source tree root.
func (env *BuildEnvironment) SrcRoot() string {
	return filepath.Join(env.ProjectDir, "src")
}

// RelSrc returns src's path relative to the project's src/ root, used to
// mirror source subdirectories under obj/, src_deps/ and warning_cache/.
func (env *BuildEnvironment) RelSrc(src string) string {
	rel, err := filepath.Rel(env.SrcRoot(), src)
	if err != nil {
		return filepath.Base(src)
	}
	return rel
}

// IsPchSource reports whether src is the project's designated
// precompiled-header translation unit, src/pch.cpp.
func (env *BuildEnvironment) IsPchSource(src string) bool {
	return filepath.Clean(src) == filepath.Clean(filepath.Join(env.SrcRoot(), "pch.cpp"))
}

// ObjPath returns the object (or PCH) artifact path for src, mirroring
// its subdirectory under obj/.
func (env *BuildEnvironment) ObjPath(src string, pch bool) string {
	rel := env.RelSrc(src)
	ext := ".obj"
	if pch {
		ext = ".pch"
	}
	return filepath.Join(env.ObjDir, withoutSourceExt(rel)+ext)
}

// DescriptorPath returns the dependency descriptor sidecar path for src.
func (env *BuildEnvironment) DescriptorPath(src string) string {
	return filepath.Join(env.SrcDepsDir, withoutSourceExt(env.RelSrc(src))+".json")
}

// WarningCachePath returns the warning replay cache path for src.
func (env *BuildEnvironment) WarningCachePath(src string) string {
	return filepath.Join(env.WarningCacheDir, withoutSourceExt(env.RelSrc(src))+".warnings")
}

// BinaryPath returns the final linked artifact's path, named per this
// project's output_type.
func (env *BuildEnvironment) BinaryPath() string {
	return filepath.Join(env.ArtifactRoot, env.Manifest.Name+binaryExt(env.Manifest.OutputType))
}

// PdbPath returns the debug symbol file path alongside BinaryPath.
func (env *BuildEnvironment) PdbPath() string {
	return filepath.Join(env.ArtifactRoot, env.Manifest.Name+".pdb")
}

func binaryExt(t manifest.OutputType) string {
	switch t {
	case manifest.DynamicLibrary:
		return ".dll"
	case manifest.StaticLibrary:
		return ".lib"
	default:
		return ".exe"
	}
}

func withoutSourceExt(rel string) string {
	return strings.TrimSuffix(rel, filepath.Ext(rel))
}

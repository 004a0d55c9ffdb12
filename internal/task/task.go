package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/abs-build/abs/internal/abserr"
	"github.com/abs-build/abs/internal/compiler"
	"github.com/abs-build/abs/internal/depstore"
	"github.com/abs-build/abs/internal/manifest"
	"github.com/abs-build/abs/internal/uptodate"
	"github.com/abs-build/abs/internal/warningcache"
)

// Task is the two-operation contract from spec section 4.6, implemented by
// every concrete build step. Dispatch is by concrete type rather than a
// tagged enum (spec section 9's "Dynamic dispatch over tasks" note: either
// shape preserves the contract, and Go's interfaces give us the trait-object
// equivalent directly).
type Task interface {
	// PreviousValidRun is a pure query: it inspects caches and edit times
	// and reports an artifact path that can be reused without doing any
	// work, or ok=false if the task must run.
	PreviousValidRun(env *BuildEnvironment) (artifact string, ok bool, err error)

	// RunGuaranteed executes the task's work unconditionally.
	RunGuaranteed(ctx context.Context, env *BuildEnvironment) (artifact string, err error)
}

// Run composes the two operations into the policy every task follows:
// reuse if possible, otherwise do the work.
func Run(ctx context.Context, env *BuildEnvironment, t Task) (string, error) {
	if artifact, ok, err := t.PreviousValidRun(env); err != nil {
		return "", err
	} else if ok {
		return artifact, nil
	}
	return t.RunGuaranteed(ctx, env)
}

// PchOption selects what a CxxCompileTask does with the project's
// precompiled header.
type PchOption int

const (
	NoPch PchOption = iota
	GeneratePch
	UsePch
)

// IdentityTask is a no-op pass-through node: an already-resolved artifact
// (a staged dependency header, a prebuilt library) that the graph needs a
// Task handle for but which never does work and is always "up to date".
type IdentityTask struct {
	Path string
}

func (t IdentityTask) PreviousValidRun(env *BuildEnvironment) (string, bool, error) {
	return t.Path, true, nil
}

func (t IdentityTask) RunGuaranteed(ctx context.Context, env *BuildEnvironment) (string, error) {
	return t.Path, nil
}

// CxxCompileTask compiles one translation unit, optionally generating or
// consuming the project's precompiled header, per spec section 4.6.
type CxxCompileTask struct {
	Src       string
	PchOption PchOption
	// PchHeader is the header named by /Yc or /Yu; defaults to "pch.h".
	PchHeader string
	// PchObjPath is the generated .pch file's path, required when
	// PchOption == UsePch (ignored when == GeneratePch, which derives its
	// own .pch path from Src).
	PchObjPath string
}

func (t CxxCompileTask) pchHeader() string {
	if t.PchHeader != "" {
		return t.PchHeader
	}
	return "pch.h"
}

func (t CxxCompileTask) artifactPath(env *BuildEnvironment) string {
	return env.ObjPath(t.Src, t.PchOption == GeneratePch)
}

// PreviousValidRun implements spec section 4.6's CxxCompileTask query: the
// PCH-owning pch.cpp translation unit is never reused by anything other
// than the GeneratePch task itself; otherwise a missing descriptor forces
// a rebuild (not an error, per spec section 4.6), and a present descriptor
// is checked against the object/PCH artifact via the Up-to-date Predicate.
func (t CxxCompileTask) PreviousValidRun(env *BuildEnvironment) (string, bool, error) {
	artifact := t.artifactPath(env)

	if env.IsPchSource(t.Src) && t.PchOption != GeneratePch {
		return "", false, nil
	}

	desc, err := depstore.Load(env.DescriptorPath(t.Src))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, abserr.New(abserr.DiscoverSrcDepsError, t.Src, err)
	}

	deps := append(desc.EffectiveDependencies(t.Src), env.ManifestDependency())
	rebuild, err := uptodate.ShouldRebuild(env.Oracle, deps, []string{artifact})
	if err != nil {
		return "", false, err
	}
	if rebuild {
		return "", false, nil
	}
	return artifact, true, nil
}

// RunGuaranteed invokes the Compiler Driver, streams diagnostics through
// the shared Deduplicator and Progress Reporter, persists the warning
// cache on success, and returns the produced object or PCH path.
func (t CxxCompileTask) RunGuaranteed(ctx context.Context, env *BuildEnvironment) (string, error) {
	artifact := t.artifactPath(env)
	if err := os.MkdirAll(filepath.Dir(artifact), 0755); err != nil {
		return "", abserr.New(abserr.IoError, artifact, err)
	}
	if err := os.MkdirAll(filepath.Dir(env.DescriptorPath(t.Src)), 0755); err != nil {
		return "", abserr.New(abserr.IoError, t.Src, err)
	}

	flags := compiler.Flags{}.
		Concretes("/nologo", "/c", "/EHsc").
		CxxStandard(env.Manifest.CxxOptions.Standard).
		RTTI(env.Manifest.CxxOptions.RTTI).
		AsyncAwait(env.Manifest.CxxOptions.AsyncAwait).
		IncludePath(env.SrcRoot()).
		IncludePaths(env.IncludeSearchPaths).
		IncludePaths(env.Toolchain.IncludePaths).
		Concretes("/sourceDependencies", env.DescriptorPath(t.Src)).
		ObjPath(env.ObjPath(t.Src, false))

	switch t.PchOption {
	case GeneratePch:
		flags = flags.PchPath(artifact, t.pchHeader(), true)
	case UsePch:
		flags = flags.PchPath(t.PchObjPath, t.pchHeader(), false)
	}

	flags = flags.SrcPath(t.Src)

	var warnings []string
	runErr := compiler.Run(ctx, env.Toolchain.CompilerPath, flags.Realise(), env.Toolchain.BinPaths, func(o compiler.Output) {
		switch o.Kind {
		case compiler.Warning:
			warnings = append(warnings, o.Chunk)
			if env.Dedup.Insert(firstLine(o.Chunk)) {
				env.Progress.PrintAbove("%s", o.Chunk)
			}
		case compiler.Error:
			if env.Dedup.Insert(firstLine(o.Chunk)) {
				env.Progress.PrintAbove("%s", o.Chunk)
			}
		}
	})
	if runErr != nil {
		return "", abserr.New(abserr.CompilerError, t.Src, runErr)
	}

	if err := warningcache.Write(env.WarningCachePath(t.Src), warnings); err != nil {
		return "", abserr.New(abserr.IoError, t.Src, err)
	}

	env.Progress.Increment()
	return artifact, nil
}

// LinkTask produces the project's final binary from the object files its
// upstream CxxCompileTasks produced, the resolved link libraries, and an
// optional Windows manifest file, per spec section 4.6.
type LinkTask struct {
	Objects      []string
	Libraries    []string
	ManifestFile string // empty if none
}

func (t LinkTask) dependencies(env *BuildEnvironment) []string {
	deps := append([]string(nil), t.Objects...)
	deps = append(deps, t.Libraries...)
	if t.ManifestFile != "" {
		deps = append(deps, t.ManifestFile)
	}
	deps = append(deps, env.ManifestDependency())
	return deps
}

func (t LinkTask) artifacts(env *BuildEnvironment) []string {
	artifacts := []string{env.BinaryPath()}
	if env.Manifest.OutputType != manifest.StaticLibrary {
		artifacts = append(artifacts, env.PdbPath())
	}
	return artifacts
}

func (t LinkTask) PreviousValidRun(env *BuildEnvironment) (string, bool, error) {
	rebuild, err := uptodate.ShouldRebuild(env.Oracle, t.dependencies(env), t.artifacts(env))
	if err != nil {
		return "", false, err
	}
	if rebuild {
		return "", false, nil
	}
	return env.BinaryPath(), true, nil
}

// RunGuaranteed invokes link.exe (or lib.exe for a static library),
// releasing any file lock on a previously built exe/dll first via the
// BuildEnvironment's KillBeforeLink hook (spec section 4.9 step 6 / section
// 5's file-locking note).
func (t LinkTask) RunGuaranteed(ctx context.Context, env *BuildEnvironment) (string, error) {
	isStaticLib := env.Manifest.OutputType == manifest.StaticLibrary
	linkerPath := env.Toolchain.LinkerPath
	if isStaticLib {
		linkerPath = env.Toolchain.LibrarianPath
	}

	out := env.BinaryPath()
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", abserr.New(abserr.IoError, out, err)
	}

	if !isStaticLib && env.KillBeforeLink != nil {
		if err := env.KillBeforeLink(); err != nil {
			return "", abserr.New(abserr.LinkerError, env.Manifest.Name, err)
		}
	}

	args := []string{"/NOLOGO", "/OUT:" + out}
	if !isStaticLib {
		args = append(args, "/DEBUG", "/PDB:"+env.PdbPath())
		switch env.Manifest.OutputType {
		case manifest.DynamicLibrary:
			args = append(args, "/DLL")
		case manifest.GuiApp:
			args = append(args, "/SUBSYSTEM:WINDOWS")
		case manifest.ConsoleApp:
			args = append(args, "/SUBSYSTEM:CONSOLE")
		}
		if t.ManifestFile != "" {
			args = append(args, "/MANIFESTINPUT:"+t.ManifestFile, "/MANIFEST:EMBED")
		}
		for _, libDir := range env.Toolchain.LibPaths {
			args = append(args, "/LIBPATH:"+libDir)
		}
	}
	args = append(args, t.Objects...)
	args = append(args, t.Libraries...)

	runErr := compiler.Run(ctx, linkerPath, args, env.Toolchain.BinPaths, func(o compiler.Output) {
		if o.Kind == compiler.Warning || o.Kind == compiler.Error {
			if env.Dedup.Insert(firstLine(o.Chunk)) {
				env.Progress.PrintAbove("%s", o.Chunk)
			}
		}
	})
	if runErr != nil {
		return "", abserr.New(abserr.LinkerError, env.Manifest.Name, runErr)
	}

	env.Progress.Increment()
	return out, nil
}

// IdlCompileTask runs midl.exe over one IDL file, producing a single
// winmd, per spec section 4.6's optional WinRT pipeline.
type IdlCompileTask struct {
	IDL                   string
	ReferenceWinmds       []string
	FoundationContractDir string
}

func (t IdlCompileTask) artifactPath(env *BuildEnvironment) string {
	base := strings.TrimSuffix(filepath.Base(t.IDL), filepath.Ext(t.IDL))
	return filepath.Join(env.ArtifactRoot, "winmd", base+".winmd")
}

func (t IdlCompileTask) PreviousValidRun(env *BuildEnvironment) (string, bool, error) {
	deps := append([]string{t.IDL}, t.ReferenceWinmds...)
	if t.FoundationContractDir != "" {
		deps = append(deps, t.FoundationContractDir)
	}
	deps = append(deps, env.ManifestDependency())
	rebuild, err := uptodate.ShouldRebuild(env.Oracle, deps, []string{t.artifactPath(env)})
	if err != nil {
		return "", false, err
	}
	if rebuild {
		return "", false, nil
	}
	return t.artifactPath(env), true, nil
}

func (t IdlCompileTask) RunGuaranteed(ctx context.Context, env *BuildEnvironment) (string, error) {
	out := t.artifactPath(env)
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", abserr.New(abserr.IoError, out, err)
	}
	args := []string{"/winrt", "/winmd", out, "/metadata_dir", filepath.Dir(env.Toolchain.MdMergePath)}
	for _, ref := range t.ReferenceWinmds {
		args = append(args, "/reference", ref)
	}
	if t.FoundationContractDir != "" {
		args = append(args, "/reference", t.FoundationContractDir)
	}
	args = append(args, t.IDL)

	runErr := compiler.Run(ctx, env.Toolchain.MidlPath, args, env.Toolchain.BinPaths, func(o compiler.Output) {
		if o.Kind == compiler.Warning || o.Kind == compiler.Error {
			if env.Dedup.Insert(firstLine(o.Chunk)) {
				env.Progress.PrintAbove("%s", o.Chunk)
			}
		}
	})
	if runErr != nil {
		return "", abserr.New(abserr.CompilerError, t.IDL, runErr)
	}
	env.Progress.Increment()
	return out, nil
}

// MdMergeTask merges every per-IDL winmd plus references into one project
// winmd via mdmerge.exe.
type MdMergeTask struct {
	Winmds     []string
	OutputName string
}

func (t MdMergeTask) artifactPath(env *BuildEnvironment) string {
	return filepath.Join(env.ArtifactRoot, "winmd", t.OutputName+".winmd")
}

func (t MdMergeTask) PreviousValidRun(env *BuildEnvironment) (string, bool, error) {
	deps := append(append([]string(nil), t.Winmds...), env.ManifestDependency())
	rebuild, err := uptodate.ShouldRebuild(env.Oracle, deps, []string{t.artifactPath(env)})
	if err != nil {
		return "", false, err
	}
	if rebuild {
		return "", false, nil
	}
	return t.artifactPath(env), true, nil
}

func (t MdMergeTask) RunGuaranteed(ctx context.Context, env *BuildEnvironment) (string, error) {
	out := t.artifactPath(env)
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", abserr.New(abserr.IoError, out, err)
	}
	args := []string{"/o", filepath.Dir(out), "/metadata_dir", filepath.Dir(env.Toolchain.MdMergePath)}
	for _, w := range t.Winmds {
		args = append(args, "/i", filepath.Dir(w))
	}
	args = append(args, "/partial")

	runErr := compiler.Run(ctx, env.Toolchain.MdMergePath, args, env.Toolchain.BinPaths, func(o compiler.Output) {
		if o.Kind == compiler.Warning || o.Kind == compiler.Error {
			if env.Dedup.Insert(firstLine(o.Chunk)) {
				env.Progress.PrintAbove("%s", o.Chunk)
			}
		}
	})
	if runErr != nil {
		return "", abserr.New(abserr.CompilerError, t.OutputName, runErr)
	}
	env.Progress.Increment()
	return out, nil
}

// WinMdProjectTask projects a winmd to a tree of C++ headers via
// cppwinrt.exe. Because its artifact is a directory tree rather than a
// single file, up-to-dateness is tracked via a sentinel stamp file written
// on success, the same role a timestamped marker plays in incremental
// build systems that otherwise only understand single-file artifacts.
type WinMdProjectTask struct {
	Winmd  string
	OutDir string
}

func (t WinMdProjectTask) stampPath() string {
	return filepath.Join(t.OutDir, ".projected")
}

func (t WinMdProjectTask) PreviousValidRun(env *BuildEnvironment) (string, bool, error) {
	deps := []string{t.Winmd, env.ManifestDependency()}
	rebuild, err := uptodate.ShouldRebuild(env.Oracle, deps, []string{t.stampPath()})
	if err != nil {
		return "", false, err
	}
	if rebuild {
		return "", false, nil
	}
	return t.OutDir, true, nil
}

func (t WinMdProjectTask) RunGuaranteed(ctx context.Context, env *BuildEnvironment) (string, error) {
	if err := os.MkdirAll(t.OutDir, 0755); err != nil {
		return "", abserr.New(abserr.IoError, t.OutDir, err)
	}
	args := []string{"-in", t.Winmd, "-out", t.OutDir}

	runErr := compiler.Run(ctx, env.Toolchain.CppWinrtPath, args, env.Toolchain.BinPaths, func(o compiler.Output) {
		if o.Kind == compiler.Warning || o.Kind == compiler.Error {
			if env.Dedup.Insert(firstLine(o.Chunk)) {
				env.Progress.PrintAbove("%s", o.Chunk)
			}
		}
	})
	if runErr != nil {
		return "", abserr.New(abserr.CompilerError, t.Winmd, runErr)
	}
	if err := os.WriteFile(t.stampPath(), []byte(fmt.Sprintf("projected from %s\n", t.Winmd)), 0644); err != nil {
		return "", abserr.New(abserr.IoError, t.stampPath(), err)
	}
	env.Progress.Increment()
	return t.OutDir, nil
}

func firstLine(chunk string) string {
	if i := strings.IndexByte(chunk, '\n'); i >= 0 {
		return chunk[:i]
	}
	return chunk
}

var (
	_ Task = IdentityTask{}
	_ Task = CxxCompileTask{}
	_ Task = LinkTask{}
	_ Task = IdlCompileTask{}
	_ Task = MdMergeTask{}
	_ Task = WinMdProjectTask{}
)

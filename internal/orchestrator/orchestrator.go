// Package orchestrator implements the Build Orchestrator from spec
// section 4.9: for one (project, target, mode) triple it stages
// dependency headers, scans sources, generates the PCH if present,
// assembles and concurrently executes the rebuild list, replays cached
// warnings, links, and records the produced artifacts.
//
// The concurrent fan-out over independent CxxCompileTasks is grounded in
// the teacher's own use of golang.org/x/sync/errgroup for its
// package-build scheduler (internal/batch/batch.go), simplified from that
// file's cross-package worker-pool-with-channels shape to a flat
// errgroup.Group with SetLimit, since within one project's build there is
// only one dependency barrier (PCH before the rest) rather than an
// arbitrary package dependency graph.
package orchestrator

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/abs-build/abs/internal/abserr"
	"github.com/abs-build/abs/internal/config"
	"github.com/abs-build/abs/internal/graph"
	"github.com/abs-build/abs/internal/manifest"
	"github.com/abs-build/abs/internal/oninterrupt"
	"github.com/abs-build/abs/internal/platform"
	"github.com/abs-build/abs/internal/procmanager"
	"github.com/abs-build/abs/internal/progress"
	"github.com/abs-build/abs/internal/srcscan"
	"github.com/abs-build/abs/internal/task"
	"github.com/abs-build/abs/internal/toolchain"
	"github.com/abs-build/abs/internal/warningcache"
	"github.com/abs-build/abs/internal/winrt"
)

// winrtReferencePackages are the NuGet packages the optional WinRT
// pipeline needs, per the original ABS implementation's
// find_win_ui_paths (original_source's build.rs).
var winrtReferencePackages = []string{
	"Microsoft.Windows.CppWinRT",
	"Microsoft.ProjectReunion.Foundation",
}

// Result is what the front end reports to the user after one (project,
// target) build, per spec section 4.9 step 7.
type Result struct {
	Project      string
	Target       platform.Platform
	BinaryPath   string
	PdbPath      string // empty for a static_library
	PackageFiles []string
}

// Failures aggregates the independent compile/link failures from one
// build's barrier (spec section 4.9 step 5 / section 7's propagation
// policy: "all independent failures are visible in one run").
type Failures []error

func (f Failures) Error() string {
	msgs := make([]string, len(f))
	for i, e := range f {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d build steps failed:\n%s", len(f), strings.Join(msgs, "\n"))
}

// Options controls one Build invocation.
type Options struct {
	Mode   string // "debug" or "release"
	Target platform.Platform
	Config config.Config
	Out    *os.File // where diagnostics and the progress bar are drawn
}

// Build performs the full sequence from spec section 4.9 for one
// (project, target) pair rooted at rootManifestPath.
func Build(ctx context.Context, rootManifestPath string, opts Options) (*Result, error) {
	g, err := graph.Resolve(rootManifestPath)
	if err != nil {
		return nil, err // graph-resolution errors abort before any task runs
	}
	root := g.Ordered[len(g.Ordered)-1]
	if !supportsTarget(root.Manifest.SupportedTargets, opts.Target) {
		return nil, fmt.Errorf("%s does not support target %q", root.Manifest.Name, opts.Target)
	}

	tc, err := toolchain.Find(opts.Target, true, opts.Config.ToolchainOptions())
	if err != nil {
		return nil, err
	}

	env := task.New(root.Manifest, root.ManifestPath, opts.Mode, opts.Target, tc, root.Dir)
	env.InheritedLibraries = append([]string(nil), g.InheritedLibraries...)
	env.KillBeforeLink = func() error { return procmanager.KillBeforeLink(env.BinaryPath()) }

	if err := stageDependencyHeaders(env, g); err != nil {
		return nil, abserr.New(abserr.IoError, root.Manifest.Name, err)
	}

	srcRoot := env.SrcRoot()
	tree, err := srcscan.Scan(srcRoot, true)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, abserr.New(abserr.NoSrcDirectory, root.Manifest.Name, err)
		}
		return nil, abserr.New(abserr.CantReadSrcDirectory, root.Manifest.Name, err)
	}

	pchCpp := filepath.Join(srcRoot, "pch.cpp")
	hasPch := containsPath(tree.AllSources(), pchCpp)

	idls := tree.AllIDL()
	total := len(tree.AllSources()) + len(idls) + 1 // +1 for the link step
	env.Progress = progress.New(opts.Out, total)
	defer env.Progress.Stop()
	interruptToken := oninterrupt.Register(env.Progress.Stop)
	defer oninterrupt.Unregister(interruptToken)

	if len(idls) > 0 {
		if err := buildWinRTProjections(ctx, env, idls); err != nil {
			return nil, err
		}
	}

	var pchObjPath string
	if hasPch {
		pchArtifact, err := task.Run(ctx, env, task.CxxCompileTask{Src: pchCpp, PchOption: task.GeneratePch})
		if err != nil {
			return nil, err
		}
		pchObjPath = pchArtifact
	}

	type pending struct {
		src  string
		t    task.CxxCompileTask
	}
	var rebuild []pending
	var cachedWarm []string

	for _, src := range tree.AllSources() {
		if src == pchCpp {
			continue
		}
		ct := task.CxxCompileTask{Src: src}
		if hasPch {
			ct.PchOption = task.UsePch
			ct.PchObjPath = pchObjPath
		}
		artifact, ok, err := ct.PreviousValidRun(env)
		if err != nil {
			if ae, isAbserr := abserr.As(err); isAbserr && ae.Kind == abserr.DiscoverSrcDepsError {
				// A corrupted descriptor is resolved by rebuilding rather
				// than failing the whole project, per spec section 7's
				// documented alternative.
				rebuild = append(rebuild, pending{src: src, t: ct})
				continue
			}
			return nil, err
		}
		if ok {
			cachedWarm = append(cachedWarm, src)
			_ = artifact
			continue
		}
		rebuild = append(rebuild, pending{src: src, t: ct})
	}

	parallelism := opts.Config.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	results := make([]error, len(rebuild))
	var eg errgroup.Group
	eg.SetLimit(parallelism)
	for i, p := range rebuild {
		i, p := i, p
		eg.Go(func() error {
			_, err := p.t.RunGuaranteed(ctx, env)
			results[i] = err
			return nil // collect independently; never cancel siblings
		})
	}
	eg.Wait()

	var failed Failures
	for _, e := range results {
		if e != nil {
			failed = append(failed, e)
		}
	}

	replayCachedWarnings(env, cachedWarm)

	if len(failed) > 0 {
		env.Progress.PrintAbove("build failed: %d of %d sources failed to compile", len(failed), len(rebuild))
		return nil, failed
	}

	objects := make([]string, 0, len(tree.AllSources()))
	if hasPch {
		objects = append(objects, env.ObjPath(pchCpp, false))
	}
	for _, src := range tree.AllSources() {
		if src == pchCpp {
			continue
		}
		objects = append(objects, env.ObjPath(src, false))
	}

	linkTask := task.LinkTask{Objects: objects, Libraries: env.InheritedLibraries}
	binary, err := task.Run(ctx, env, linkTask)
	if err != nil {
		return nil, err
	}

	res := &Result{Project: root.Manifest.Name, Target: opts.Target, BinaryPath: binary}
	if root.Manifest.OutputType != manifest.StaticLibrary {
		res.PdbPath = env.PdbPath()
	}

	assetsDir := filepath.Join(env.ProjectDir, "assets")
	if fi, err := os.Stat(assetsDir); err == nil && fi.IsDir() {
		if root.Manifest.OutputType == manifest.StaticLibrary {
			env.Progress.PrintAbove("warning: %s has an assets/ directory but static libraries do not package assets; ignoring", root.Manifest.Name)
		} else {
			res.PackageFiles = append(res.PackageFiles, assetsDir)
		}
	}

	return res, nil
}

// BuildAll runs Build once per target in m.SupportedTargets, the
// `--target all` fan-out spec section 6's CLI describes.
func BuildAll(ctx context.Context, rootManifestPath string, m *manifest.Manifest, opts Options) ([]*Result, error) {
	var out []*Result
	for _, t := range m.SupportedTargets {
		o := opts
		o.Target = t
		res, err := Build(ctx, rootManifestPath, o)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// buildWinRTProjections runs the optional IDL pipeline from spec section
// 4.6: fetch the cppwinrt/WinUI reference packages, compile every IDL file
// to a winmd, merge them into one project winmd, and project that winmd
// to a tree of C++ headers that subsequent CxxCompileTasks can #include.
// Grounded in original_source's build.rs find_win_ui_paths, which performs
// the same fetch-compile-merge-project sequence before invoking cl.exe.
func buildWinRTProjections(ctx context.Context, env *task.BuildEnvironment, idls []string) error {
	cacheRoot := winrt.CacheRoot(config.Home())
	pkgDirs, err := winrt.FetchPackages(cacheRoot, winrtReferencePackages)
	if err != nil {
		return abserr.New(abserr.IoError, "winrt", err)
	}

	var refWinmds []string
	var foundationDir string
	for _, dir := range pkgDirs {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if strings.EqualFold(d.Name(), "references") || strings.Contains(strings.ToLower(path), "foundation") {
					if foundationDir == "" && strings.EqualFold(d.Name(), "references") {
						foundationDir = path
					}
				}
				return nil
			}
			if strings.EqualFold(filepath.Ext(path), ".winmd") {
				refWinmds = append(refWinmds, path)
			}
			return nil
		})
	}

	produced := make([]string, 0, len(idls))
	for _, idl := range idls {
		artifact, err := task.Run(ctx, env, task.IdlCompileTask{
			IDL:                   idl,
			ReferenceWinmds:       refWinmds,
			FoundationContractDir: foundationDir,
		})
		if err != nil {
			return err
		}
		produced = append(produced, artifact)
	}

	merged, err := task.Run(ctx, env, task.MdMergeTask{
		Winmds:     append(produced, refWinmds...),
		OutputName: env.Manifest.Name,
	})
	if err != nil {
		return err
	}

	projDir := filepath.Join(env.ArtifactRoot, "external_projections")
	if _, err := task.Run(ctx, env, task.WinMdProjectTask{Winmd: merged, OutDir: projDir}); err != nil {
		return err
	}
	env.IncludeSearchPaths = append(env.IncludeSearchPaths, projDir)
	return nil
}

// stageDependencyHeaders copies every declared dependency's public
// headers into env.DependencyHeadersDir/<dep>/…, deleting any stale
// previous copy first (spec section 4.9 step 1), and registers the
// staged directory as an include search root.
func stageDependencyHeaders(env *task.BuildEnvironment, g *graph.Graph) error {
	root := g.Ordered[len(g.Ordered)-1]
	for _, n := range g.Ordered {
		if n == root {
			continue
		}
		dest := filepath.Join(env.DependencyHeadersDir, n.Manifest.Name)
		if err := os.RemoveAll(dest); err != nil {
			return err
		}
		depSrcRoot := filepath.Join(n.Dir, "src")
		depTree, err := srcscan.Scan(depSrcRoot, true)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		for _, h := range depTree.AllHeaders() {
			rel, err := filepath.Rel(depSrcRoot, h)
			if err != nil {
				return err
			}
			target := filepath.Join(dest, rel)
			if err := copyFile(h, target); err != nil {
				return err
			}
		}
		env.IncludeSearchPaths = append(env.IncludeSearchPaths, dest)
	}
	return nil
}

func copyFile(src, dest string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return os.WriteFile(dest, b, 0644)
}

// replayCachedWarnings re-emits the warning chunks of every skipped
// source whose warning cache is present and readable, through the shared
// Deduplicator, per spec section 4.8 and invariant 5 in section 8.
func replayCachedWarnings(env *task.BuildEnvironment, cachedWarm []string) {
	for _, src := range cachedWarm {
		cache, err := warningcache.Load(env.WarningCachePath(src))
		if err != nil {
			continue // missing or unreadable cache is silently ignored
		}
		for _, chunk := range cache.Warnings {
			if env.Dedup.Insert(firstLine(chunk)) {
				env.Progress.PrintAbove("%s", chunk)
			}
		}
	}
}

func firstLine(chunk string) string {
	if i := strings.IndexByte(chunk, '\n'); i >= 0 {
		return chunk[:i]
	}
	return chunk
}

func supportsTarget(targets []platform.Platform, t platform.Platform) bool {
	for _, x := range targets {
		if x == t {
			return true
		}
	}
	return false
}

func containsPath(paths []string, target string) bool {
	target = filepath.Clean(target)
	for _, p := range paths {
		if filepath.Clean(p) == target {
			return true
		}
	}
	return false
}

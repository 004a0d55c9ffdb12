// Package toolchain locates the MSVC compiler/linker/librarian, the
// debugger, and the include/lib/bin search paths needed to build for a
// given platform target, by probing the standard Visual Studio and
// Windows SDK install directories and picking the newest version found.
//
// This is the external "Toolchain Locator" collaborator from spec section
// 2 — the core only consumes the Paths struct it produces. The directory
// layout and version-selection algorithm are carried over from the
// original ABS implementation's ToolchainPaths::find (original_source's
// toolchain_paths.rs), adapted to Go's os/filepath idioms and to the
// teacher's PackageVersion-style numeric version comparison
// (version.go/ParseVersion, generalized here to dotted version directory
// names instead of package revision suffixes).
package toolchain

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"github.com/abs-build/abs/internal/platform"
)

// Paths is everything the Compiler Driver, Build Orchestrator and WinRT
// pipeline need from an installed MSVC toolchain.
type Paths struct {
	CompilerPath  string   // cl.exe
	LinkerPath    string   // link.exe
	LibrarianPath string   // lib.exe
	MidlPath      string   // midl.exe, empty unless WinRT is enabled
	MdMergePath   string   // mdmerge.exe, empty unless WinRT is enabled
	CppWinrtPath  string   // cppwinrt.exe, empty unless WinRT is enabled
	DebuggerPath  string   // devenv.exe
	IncludePaths  []string
	LibPaths      []string
	BinPaths      []string // prepended to PATH for every spawned tool
}

// version is a dotted numeric version directory name, e.g. "14.38.33130" or
// "10.0.22621.0", ordered component-wise.
type version []uint64

func parseVersion(s string) (version, bool) {
	parts := strings.Split(s, ".")
	v := make(version, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, false
		}
		v = append(v, n)
	}
	return v, true
}

func (v version) less(other version) bool {
	for i := 0; i < len(v) && i < len(other); i++ {
		if v[i] != other[i] {
			return v[i] < other[i]
		}
	}
	return len(v) < len(other)
}

func (v version) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.FormatUint(n, 10)
	}
	return strings.Join(parts, ".")
}

// newestVersionDir returns the name of the subdirectory of parent whose
// name parses as a dotted version and sorts highest, e.g. picking
// "14.38.33130" among several MSVC toolset directories.
func newestVersionDir(parent string) (string, error) {
	entries, err := os.ReadDir(parent)
	if err != nil {
		return "", err
	}
	var best string
	var bestVersion version
	found := false
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v, ok := parseVersion(e.Name())
		if !ok {
			continue
		}
		if !found || bestVersion.less(v) {
			bestVersion = v
			best = e.Name()
			found = true
		}
	}
	if !found {
		return "", xerrors.Errorf("no version-named subdirectory found in %s", parent)
	}
	return best, nil
}

// newestEdition returns the name of the most recently modified subdirectory
// of vsYearDir, e.g. "Community", "Professional", "Enterprise", "Preview".
func newestEdition(vsYearDir string) (string, error) {
	entries, err := os.ReadDir(vsYearDir)
	if err != nil {
		return "", err
	}
	var best string
	var bestTime int64 = -1
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		mt := info.ModTime().UnixNano()
		if mt > bestTime {
			bestTime = mt
			best = e.Name()
		}
	}
	if best == "" {
		return "", xerrors.Errorf("no edition subdirectory found in %s", vsYearDir)
	}
	return best, nil
}

// Options lets the front end and the user-level config (Ambient Stack,
// SPEC_FULL.md) override the probed roots instead of the hard-coded
// Program Files paths, per spec section 9's "hard-coded paths" note.
type Options struct {
	ProgramFilesX86Root string // default: C:\Program Files (x86)
	WindowsKitsRoot     string // default: <ProgramFilesX86Root>\Windows Kits\10
}

func (o Options) programFilesX86() string {
	if o.ProgramFilesX86Root != "" {
		return o.ProgramFilesX86Root
	}
	return `C:\Program Files (x86)`
}

func (o Options) windowsKits10() string {
	if o.WindowsKitsRoot != "" {
		return o.WindowsKitsRoot
	}
	return filepath.Join(o.programFilesX86(), "Windows Kits", "10")
}

var hostArch = func() platform.Arch { return platform.Host().Architecture() }

func archDir(a platform.Arch) string {
	switch a {
	case platform.X86:
		return "x86"
	default:
		return "x64"
	}
}

// Find probes the newest installed Visual Studio and Windows SDK for
// target's architecture and returns the resulting Paths. winrt enables
// locating midl.exe/mdmerge.exe/cppwinrt.exe as well.
func Find(target platform.Platform, winrt bool, opts Options) (*Paths, error) {
	vsRoot := filepath.Join(opts.programFilesX86(), "Microsoft Visual Studio")
	years, err := os.ReadDir(vsRoot)
	if err != nil {
		return nil, xerrors.Errorf("toolchain: listing %s: %w", vsRoot, err)
	}
	var bestYear int
	for _, y := range years {
		if !y.IsDir() {
			continue
		}
		n, err := strconv.Atoi(y.Name())
		if err != nil {
			continue
		}
		if n > bestYear {
			bestYear = n
		}
	}
	if bestYear == 0 {
		return nil, xerrors.Errorf("toolchain: no Visual Studio year directory found under %s", vsRoot)
	}
	yearDir := filepath.Join(vsRoot, strconv.Itoa(bestYear))
	edition, err := newestEdition(yearDir)
	if err != nil {
		return nil, xerrors.Errorf("toolchain: %w", err)
	}
	editionDir := filepath.Join(yearDir, edition)

	msvcRoot := filepath.Join(editionDir, "VC", "Tools", "MSVC")
	msvcVersion, err := newestVersionDir(msvcRoot)
	if err != nil {
		return nil, xerrors.Errorf("toolchain: %w", err)
	}
	msvcDir := filepath.Join(msvcRoot, msvcVersion)

	targetDir := archDir(target.Architecture())
	hostDir := archDir(hostArch())

	binDir := filepath.Join(msvcDir, "bin", "Host"+hostDir, targetDir)

	includePaths := []string{
		filepath.Join(msvcDir, "ATLMFC", "include"),
		filepath.Join(msvcDir, "include"),
	}
	libPaths := []string{
		filepath.Join(msvcDir, "ATLMFC", "lib", targetDir),
		filepath.Join(msvcDir, "lib", targetDir),
	}

	kitsRoot := opts.windowsKits10()
	sdkIncludeVersion, err := newestVersionDir(filepath.Join(kitsRoot, "Include"))
	if err != nil {
		return nil, xerrors.Errorf("toolchain: %w", err)
	}
	sdkIncludeDir := filepath.Join(kitsRoot, "Include", sdkIncludeVersion)
	for _, sub := range []string{"ucrt", "shared", "um", "winrt"} {
		includePaths = append(includePaths, filepath.Join(sdkIncludeDir, sub))
	}

	sdkLibVersion, err := newestVersionDir(filepath.Join(kitsRoot, "Lib"))
	if err != nil {
		return nil, xerrors.Errorf("toolchain: %w", err)
	}
	sdkLibDir := filepath.Join(kitsRoot, "Lib", sdkLibVersion)
	for _, sub := range []string{"ucrt", "um"} {
		libPaths = append(libPaths, filepath.Join(sdkLibDir, sub, targetDir))
	}

	sdkBinVersion, err := newestVersionDir(filepath.Join(kitsRoot, "bin"))
	if err != nil {
		return nil, xerrors.Errorf("toolchain: %w", err)
	}
	sdkBinDir := filepath.Join(kitsRoot, "bin", sdkBinVersion, hostDir)

	binPaths := []string{binDir, sdkBinDir}

	paths := &Paths{
		CompilerPath:  filepath.Join(binDir, "cl.exe"),
		LinkerPath:    filepath.Join(binDir, "link.exe"),
		LibrarianPath: filepath.Join(binDir, "lib.exe"),
		DebuggerPath:  filepath.Join(editionDir, "Common7", "IDE", "devenv.exe"),
		IncludePaths:  includePaths,
		LibPaths:      libPaths,
		BinPaths:      binPaths,
	}
	if winrt {
		paths.MidlPath = filepath.Join(binDir, "midl.exe")
		paths.MdMergePath = filepath.Join(sdkBinDir, "x86", "mdmerge.exe")
		paths.CppWinrtPath = filepath.Join(binDir, "cppwinrt.exe")
	}

	sort.Strings(paths.IncludePaths)
	sort.Strings(paths.LibPaths)

	return paths, nil
}

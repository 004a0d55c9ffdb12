package toolchain

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abs-build/abs/internal/platform"
)

func mkdirAll(t *testing.T, parts ...string) string {
	t.Helper()
	path := filepath.Join(parts...)
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

// fakeInstall builds a minimal directory tree shaped like a real Visual
// Studio + Windows Kits install, with two candidate versions/years so
// Find's "pick the newest" logic has something to choose between.
func fakeInstall(t *testing.T) (programFilesX86, windowsKits string) {
	t.Helper()
	root := t.TempDir()
	programFilesX86 = filepath.Join(root, "Program Files (x86)")
	windowsKits = filepath.Join(programFilesX86, "Windows Kits", "10")

	vsRoot := filepath.Join(programFilesX86, "Microsoft Visual Studio")
	mkdirAll(t, vsRoot, "2019", "Community")
	older := mkdirAll(t, vsRoot, "2022", "Community")
	newer := mkdirAll(t, vsRoot, "2022", "Preview")
	// Preview must look newer than Community by mtime.
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(newer, future, future); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(older, future.Add(-time.Hour), future.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	msvcRoot := filepath.Join(vsRoot, "2022", "Preview", "VC", "Tools", "MSVC")
	mkdirAll(t, msvcRoot, "14.29.30133")
	mkdirAll(t, msvcRoot, "14.38.33130", "bin", "Hostx64", "x64")
	mkdirAll(t, msvcRoot, "14.38.33130", "bin", "Hostx64", "x86")
	mkdirAll(t, msvcRoot, "14.38.33130", "include")
	mkdirAll(t, msvcRoot, "14.38.33130", "ATLMFC", "include")
	mkdirAll(t, msvcRoot, "14.38.33130", "lib", "x64")
	mkdirAll(t, msvcRoot, "14.38.33130", "ATLMFC", "lib", "x64")

	mkdirAll(t, windowsKits, "Include", "10.0.19041.0")
	mkdirAll(t, windowsKits, "Include", "10.0.22621.0")
	mkdirAll(t, windowsKits, "Lib", "10.0.22621.0")
	mkdirAll(t, windowsKits, "bin", "10.0.19041.0", "x64")
	mkdirAll(t, windowsKits, "bin", "10.0.22621.0", "x64")
	mkdirAll(t, windowsKits, "bin", "10.0.22621.0", "x86")

	return programFilesX86, windowsKits
}

func withHostArch(t *testing.T, a platform.Arch) {
	t.Helper()
	orig := hostArch
	hostArch = func() platform.Arch { return a }
	t.Cleanup(func() { hostArch = orig })
}

func TestFindPicksNewestMsvcAndSdkVersions(t *testing.T) {
	withHostArch(t, platform.X64)
	pf86, kits := fakeInstall(t)
	paths, err := Find(platform.Win64, false, Options{ProgramFilesX86Root: pf86, WindowsKitsRoot: kits})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	wantCompiler := filepath.Join(pf86, "Microsoft Visual Studio", "2022", "Preview", "VC", "Tools", "MSVC", "14.38.33130", "bin", "Hostx64", "x64", "cl.exe")
	if paths.CompilerPath != wantCompiler {
		t.Errorf("CompilerPath = %q, want %q", paths.CompilerPath, wantCompiler)
	}

	for _, inc := range paths.IncludePaths {
		if filepath.Base(filepath.Dir(filepath.Dir(inc))) == "Include" && filepath.Base(filepath.Dir(inc)) != "10.0.22621.0" {
			t.Errorf("IncludePaths contains an SDK version dir other than the newest: %v", paths.IncludePaths)
		}
	}
	if paths.MidlPath != "" {
		t.Error("MidlPath set when winrt=false, want empty")
	}
}

func TestFindWinRTPaths(t *testing.T) {
	withHostArch(t, platform.X64)
	pf86, kits := fakeInstall(t)
	paths, err := Find(platform.Win64, true, Options{ProgramFilesX86Root: pf86, WindowsKitsRoot: kits})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if paths.MidlPath == "" || paths.MdMergePath == "" || paths.CppWinrtPath == "" {
		t.Errorf("winrt=true should populate Midl/MdMerge/CppWinrt paths, got %+v", paths)
	}
}

func TestFindMissingVSRoot(t *testing.T) {
	root := t.TempDir()
	_, err := Find(platform.Win64, false, Options{ProgramFilesX86Root: root, WindowsKitsRoot: filepath.Join(root, "kits")})
	if err == nil {
		t.Error("Find with no Visual Studio install = nil error, want an error")
	}
}

func TestParseVersionOrdering(t *testing.T) {
	a, ok := parseVersion("14.29.30133")
	if !ok {
		t.Fatal("parseVersion(14.29.30133) failed")
	}
	b, ok := parseVersion("14.38.33130")
	if !ok {
		t.Fatal("parseVersion(14.38.33130) failed")
	}
	if !a.less(b) {
		t.Errorf("%v.less(%v) = false, want true", a, b)
	}
	if _, ok := parseVersion("not-a-version"); ok {
		t.Error("parseVersion(not-a-version) = ok, want failure")
	}
}

package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/abs-build/abs/internal/abserr"
	"github.com/abs-build/abs/internal/manifest"
	"github.com/abs-build/abs/internal/platform"
)

func TestResolveTargetHostFallsBackToHostPlatform(t *testing.T) {
	m := &manifest.Manifest{Name: "app", SupportedTargets: []platform.Platform{platform.Host()}}
	got, err := resolveTarget("host", m)
	if err != nil {
		t.Fatalf("resolveTarget(host): %v", err)
	}
	if got != platform.Host() {
		t.Errorf("resolveTarget(host) = %q, want %q", got, platform.Host())
	}
}

func TestResolveTargetHostRejectsUnsupportedHost(t *testing.T) {
	m := &manifest.Manifest{Name: "app", SupportedTargets: []platform.Platform{}}
	if _, err := resolveTarget("host", m); err == nil {
		t.Error("resolveTarget(host) with no supported targets = nil error, want an error")
	}
}

func TestResolveTargetExplicitPlatform(t *testing.T) {
	m := &manifest.Manifest{Name: "app"}
	got, err := resolveTarget("win32", m)
	if err != nil {
		t.Fatalf("resolveTarget(win32): %v", err)
	}
	if got != platform.Win32 {
		t.Errorf("resolveTarget(win32) = %q, want %q", got, platform.Win32)
	}
}

func TestResolveTargetExplicitEmptyDefaultsToHost(t *testing.T) {
	m := &manifest.Manifest{Name: "app", SupportedTargets: []platform.Platform{platform.Host()}}
	got, err := resolveTarget("", m)
	if err != nil {
		t.Fatalf("resolveTarget(\"\"): %v", err)
	}
	if got != platform.Host() {
		t.Errorf("resolveTarget(\"\") = %q, want %q", got, platform.Host())
	}
}

func TestBinaryExt(t *testing.T) {
	for _, tt := range []struct {
		outputType manifest.OutputType
		want       string
	}{
		{manifest.ConsoleApp, ".exe"},
		{manifest.GuiApp, ".exe"},
		{manifest.DynamicLibrary, ".dll"},
		{manifest.StaticLibrary, ".lib"},
	} {
		if got := binaryExt(tt.outputType); got != tt.want {
			t.Errorf("binaryExt(%v) = %q, want %q", tt.outputType, got, tt.want)
		}
	}
}

func TestRunInitScaffoldsProject(t *testing.T) {
	dir := t.TempDir()
	if err := runInit(dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	manifestPath := filepath.Join(dir, "project.json")
	m, err := manifest.Load(manifestPath)
	if err != nil {
		t.Fatalf("loading scaffolded manifest: %v", err)
	}
	if m.OutputType != manifest.ConsoleApp {
		t.Errorf("scaffolded OutputType = %v, want %v", m.OutputType, manifest.ConsoleApp)
	}

	if _, err := os.Stat(filepath.Join(dir, "src", "main.cpp")); err != nil {
		t.Errorf("scaffolded src/main.cpp missing: %v", err)
	}
}

func TestRunInitRefusesToOverwriteExistingManifest(t *testing.T) {
	dir := t.TempDir()
	if err := runInit(dir); err != nil {
		t.Fatalf("first runInit: %v", err)
	}
	if err := runInit(dir); err == nil {
		t.Error("second runInit over an existing project.json = nil error, want an error")
	}
}

func TestAbsPathOrSelf(t *testing.T) {
	dir := t.TempDir()
	got := absPathOrSelf(dir)
	want, err := filepath.Abs(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("absPathOrSelf(%q) = %q, want %q", dir, got, want)
	}
}

func writeManifest(t *testing.T, dir, manifestJSON string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "project.json"), []byte(manifestJSON), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestRequireRunnableRejectsAllTarget(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"name":"app","cxx_options":{"standard":"c++17"},"output_type":"console_app","supported_targets":["win64"]}`)
	if _, _, err := requireRunnable(dir, "all"); err == nil {
		t.Error(`requireRunnable(target="all") = nil error, want an error (only build accepts "all")`)
	}
}

func TestRequireRunnableRejectsLibraryOutputType(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"name":"mathlib","cxx_options":{"standard":"c++17"},"output_type":"static_library","supported_targets":["win64"]}`)
	if _, _, err := requireRunnable(dir, "win64"); err == nil {
		t.Error("requireRunnable on a static_library project = nil error, want an error")
	}

	dir2 := t.TempDir()
	writeManifest(t, dir2, `{"name":"gfx","cxx_options":{"standard":"c++17"},"output_type":"dynamic_library","supported_targets":["win64"]}`)
	if _, _, err := requireRunnable(dir2, "win64"); err == nil {
		t.Error("requireRunnable on a dynamic_library project = nil error, want an error")
	}
}

func TestRequireRunnableAcceptsRunnableOutputTypes(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"name":"app","cxx_options":{"standard":"c++17"},"output_type":"console_app","supported_targets":["win64"]}`)
	m, tgt, err := requireRunnable(dir, "win64")
	if err != nil {
		t.Fatalf("requireRunnable: %v", err)
	}
	if m.Name != "app" {
		t.Errorf("requireRunnable manifest.Name = %q, want %q", m.Name, "app")
	}
	if tgt != platform.Win64 {
		t.Errorf("requireRunnable target = %q, want %q", tgt, platform.Win64)
	}
}

func TestReportDoesNotPanicOnPlainAndAbsErrors(t *testing.T) {
	report(errors.New("plain failure"), false)
	report(abserr.New(abserr.CompilerError, "main.cpp", errors.New("C2065")), false)
	report(errors.New("plain failure"), true)
}

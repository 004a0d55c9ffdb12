package graph

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeProject(t *testing.T, dir, manifestJSON string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "project.json")
	if err := os.WriteFile(path, []byte(manifestJSON), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolveSimpleDependency(t *testing.T) {
	root := t.TempDir()
	writeProject(t, filepath.Join(root, "lib"), `{
		"name": "mathlib",
		"cxx_options": {"standard": "c++17"},
		"output_type": "static_library",
		"link_libraries": ["mathlib_extra.lib"],
		"supported_targets": ["win64"]
	}`)
	appPath := writeProject(t, filepath.Join(root, "app"), `{
		"name": "app",
		"cxx_options": {"standard": "c++17"},
		"output_type": "console_app",
		"link_libraries": ["app_own.lib"],
		"supported_targets": ["win64"],
		"dependencies": ["../lib"]
	}`)

	g, err := Resolve(appPath)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(g.Ordered) != 2 {
		t.Fatalf("Ordered = %v, want 2 nodes", g.Ordered)
	}
	if g.Ordered[0].Manifest.Name != "mathlib" {
		t.Errorf("Ordered[0] = %q, want mathlib (dependency before dependent)", g.Ordered[0].Manifest.Name)
	}
	if g.Ordered[1].Manifest.Name != "app" {
		t.Errorf("Ordered[1] = %q, want app", g.Ordered[1].Manifest.Name)
	}

	wantLibs := map[string]bool{"app_own.lib": true, "mathlib_extra.lib": true}
	if len(g.InheritedLibraries) != len(wantLibs) {
		t.Fatalf("InheritedLibraries = %v, want %v", g.InheritedLibraries, wantLibs)
	}
	for _, l := range g.InheritedLibraries {
		if !wantLibs[l] {
			t.Errorf("InheritedLibraries contains unexpected %q", l)
		}
	}
}

func TestResolveRejectsNonStaticDependency(t *testing.T) {
	root := t.TempDir()
	writeProject(t, filepath.Join(root, "lib"), `{
		"name": "gui",
		"cxx_options": {"standard": "c++17"},
		"output_type": "gui_app",
		"supported_targets": ["win64"]
	}`)
	appPath := writeProject(t, filepath.Join(root, "app"), `{
		"name": "app",
		"cxx_options": {"standard": "c++17"},
		"output_type": "console_app",
		"supported_targets": ["win64"],
		"dependencies": ["../lib"]
	}`)

	if _, err := Resolve(appPath); err == nil {
		t.Error("Resolve with a non-static-library dependency = nil error, want an error")
	}
}

func TestResolveRejectsIncompatibleCxxOptions(t *testing.T) {
	root := t.TempDir()
	writeProject(t, filepath.Join(root, "lib"), `{
		"name": "lib",
		"cxx_options": {"standard": "c++20"},
		"output_type": "static_library",
		"supported_targets": ["win64"]
	}`)
	appPath := writeProject(t, filepath.Join(root, "app"), `{
		"name": "app",
		"cxx_options": {"standard": "c++17"},
		"output_type": "console_app",
		"supported_targets": ["win64"],
		"dependencies": ["../lib"]
	}`)

	if _, err := Resolve(appPath); err == nil {
		t.Error("Resolve with a newer-standard dependency = nil error, want an error")
	}
}

func TestResolveRejectsUnsupportedTarget(t *testing.T) {
	root := t.TempDir()
	writeProject(t, filepath.Join(root, "lib"), `{
		"name": "lib",
		"cxx_options": {"standard": "c++17"},
		"output_type": "static_library",
		"supported_targets": ["win32"]
	}`)
	appPath := writeProject(t, filepath.Join(root, "app"), `{
		"name": "app",
		"cxx_options": {"standard": "c++17"},
		"output_type": "console_app",
		"supported_targets": ["win64"],
		"dependencies": ["../lib"]
	}`)

	if _, err := Resolve(appPath); err == nil {
		t.Error("Resolve with a dependency missing the root's target = nil error, want an error")
	}
}

func TestResolveDetectsCycle(t *testing.T) {
	root := t.TempDir()
	writeProject(t, filepath.Join(root, "a"), `{
		"name": "a",
		"cxx_options": {"standard": "c++17"},
		"output_type": "static_library",
		"supported_targets": ["win64"],
		"dependencies": ["../b"]
	}`)
	bPath := writeProject(t, filepath.Join(root, "b"), `{
		"name": "b",
		"cxx_options": {"standard": "c++17"},
		"output_type": "static_library",
		"supported_targets": ["win64"],
		"dependencies": ["../a"]
	}`)

	_, err := Resolve(bPath)
	if err == nil {
		t.Fatal("Resolve of a cyclic graph = nil error, want a cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error = %v, want it to mention a cycle", err)
	}
}

func TestResolveDiamondDependencyVisitedOnce(t *testing.T) {
	root := t.TempDir()
	writeProject(t, filepath.Join(root, "base"), `{
		"name": "base",
		"cxx_options": {"standard": "c++17"},
		"output_type": "static_library",
		"supported_targets": ["win64"]
	}`)
	writeProject(t, filepath.Join(root, "left"), `{
		"name": "left",
		"cxx_options": {"standard": "c++17"},
		"output_type": "static_library",
		"supported_targets": ["win64"],
		"dependencies": ["../base"]
	}`)
	writeProject(t, filepath.Join(root, "right"), `{
		"name": "right",
		"cxx_options": {"standard": "c++17"},
		"output_type": "static_library",
		"supported_targets": ["win64"],
		"dependencies": ["../base"]
	}`)
	appPath := writeProject(t, filepath.Join(root, "app"), `{
		"name": "app",
		"cxx_options": {"standard": "c++17"},
		"output_type": "console_app",
		"supported_targets": ["win64"],
		"dependencies": ["../left", "../right"]
	}`)

	g, err := Resolve(appPath)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(g.Ordered) != 4 {
		t.Fatalf("Ordered = %v, want exactly 4 nodes (base visited once)", g.Ordered)
	}
	baseIdx, appIdx := -1, -1
	for i, n := range g.Ordered {
		switch n.Manifest.Name {
		case "base":
			baseIdx = i
		case "app":
			appIdx = i
		}
	}
	if baseIdx < 0 || appIdx < 0 || baseIdx > appIdx {
		t.Errorf("Ordered = %v, want base before app", names(g.Ordered))
	}
}

func names(ns []*Node) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.Manifest.Name
	}
	return out
}

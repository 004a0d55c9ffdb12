package depstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.cpp.json")
	want := &Descriptor{Includes: []string{"a.h", "b.h"}, PCH: "pch.h"}

	if err := Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingIsNotExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if !os.IsNotExist(err) {
		t.Errorf("Load(missing) error = %v, want os.IsNotExist", err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load(corrupt) = nil error, want an error")
	}
}

func TestEffectiveDependencies(t *testing.T) {
	d := &Descriptor{Includes: []string{"a.h", "b.h"}, PCH: "pch.h"}
	got := d.EffectiveDependencies("main.cpp")
	want := []string{"main.cpp", "a.h", "b.h", "pch.h"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("EffectiveDependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestEffectiveDependenciesNoPch(t *testing.T) {
	d := &Descriptor{Includes: []string{"a.h"}}
	got := d.EffectiveDependencies("main.cpp")
	want := []string{"main.cpp", "a.h"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("EffectiveDependencies mismatch (-want +got):\n%s", diff)
	}
}

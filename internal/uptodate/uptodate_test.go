package uptodate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abs-build/abs/internal/edittime"
)

func touch(t *testing.T, path string, when time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatal(err)
	}
}

func TestShouldRebuild(t *testing.T) {
	dir := t.TempDir()
	dep := filepath.Join(dir, "dep.h")
	art := filepath.Join(dir, "dep.obj")

	now := time.Now()
	older := now.Add(-time.Hour)
	newer := now.Add(time.Hour)

	t.Run("artifact newer than dependency: no rebuild", func(t *testing.T) {
		touch(t, dep, older)
		touch(t, art, now)
		o := edittime.New()
		rebuild, err := ShouldRebuild(o, []string{dep}, []string{art})
		if err != nil {
			t.Fatal(err)
		}
		if rebuild {
			t.Error("ShouldRebuild = true, want false")
		}
	})

	t.Run("dependency newer than artifact: rebuild", func(t *testing.T) {
		touch(t, dep, newer)
		touch(t, art, now)
		o := edittime.New()
		rebuild, err := ShouldRebuild(o, []string{dep}, []string{art})
		if err != nil {
			t.Fatal(err)
		}
		if !rebuild {
			t.Error("ShouldRebuild = false, want true")
		}
	})

	t.Run("missing artifact: rebuild", func(t *testing.T) {
		touch(t, dep, older)
		o := edittime.New()
		rebuild, err := ShouldRebuild(o, []string{dep}, []string{filepath.Join(dir, "missing.obj")})
		if err != nil {
			t.Fatal(err)
		}
		if !rebuild {
			t.Error("ShouldRebuild = false, want true for a missing artifact")
		}
	})

	t.Run("missing dependency: rebuild", func(t *testing.T) {
		touch(t, art, now)
		o := edittime.New()
		rebuild, err := ShouldRebuild(o, []string{filepath.Join(dir, "missing.h")}, []string{art})
		if err != nil {
			t.Fatal(err)
		}
		if !rebuild {
			t.Error("ShouldRebuild = false, want true for a missing dependency")
		}
	})

	t.Run("both sets empty: no rebuild", func(t *testing.T) {
		o := edittime.New()
		rebuild, err := ShouldRebuild(o, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if rebuild {
			t.Error("ShouldRebuild = true, want false when both sets are empty")
		}
	})

	t.Run("forgets artifacts on rebuild", func(t *testing.T) {
		touch(t, dep, newer)
		touch(t, art, now)
		o := edittime.New()
		// Prime the cache before the rebuild decision.
		if _, err := o.EditTime(art, time.Time{}); err != nil {
			t.Fatal(err)
		}
		if _, err := ShouldRebuild(o, []string{dep}, []string{art}); err != nil {
			t.Fatal(err)
		}
		// Mutate the artifact's mtime; if ShouldRebuild forgot it, the
		// oracle re-stats and observes the new time.
		relinked := newer.Add(time.Hour)
		touch(t, art, relinked)
		got, err := o.EditTime(art, time.Time{})
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(relinked) {
			t.Errorf("EditTime after rebuild = %v, want %v (forgotten and re-stat)", got, relinked)
		}
	})
}

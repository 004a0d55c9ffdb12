// Package winrt fetches the NuGet packages the optional WinRT pipeline
// needs (cppwinrt, the Windows App SDK's Foundation/WinUI metadata), by
// shelling out to nuget.exe the same way the original ABS implementation
// did (original_source's build.rs get_nuget_path/download_nuget_deps):
// download nuget.exe itself on first use, then `nuget.exe install` each
// package into a scratch directory, reusing an already-installed package
// instead of refetching it.
//
// Each fetch gets its own uuid-named scratch directory under the cache
// root so concurrent builds (e.g. two abs processes sharing one $ABS_HOME)
// never race on the same install directory.
package winrt

import (
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

const nugetDownloadURL = "https://dist.nuget.org/win-x86-commandline/latest/nuget.exe"

// CacheRoot is where nuget.exe and every fetched package are cached,
// shared across scratch directories so a package already installed by an
// earlier build is never refetched.
func CacheRoot(absHome string) string {
	return filepath.Join(absHome, "vs")
}

// EnsureNuget returns the path to a local nuget.exe under root, downloading
// it from dist.nuget.org on first use.
func EnsureNuget(root string) (string, error) {
	path := filepath.Join(root, "nuget.exe")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", xerrors.Errorf("winrt: %w", err)
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return "", xerrors.Errorf("winrt: %w", err)
	}
	resp, err := http.Get(nugetDownloadURL)
	if err != nil {
		return "", xerrors.Errorf("winrt: downloading nuget.exe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", xerrors.Errorf("winrt: downloading nuget.exe: unexpected status %s", resp.Status)
	}

	f, err := renameio.TempFile("", path)
	if err != nil {
		return "", xerrors.Errorf("winrt: %w", err)
	}
	defer f.Cleanup()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", xerrors.Errorf("winrt: %w", err)
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return "", xerrors.Errorf("winrt: %w", err)
	}
	return path, nil
}

// findInstalled returns the path of an already-installed package whose
// directory name starts with name, e.g. "Microsoft.Windows.CppWinRT.2.0.240111.5".
func findInstalled(name, packagesDir string) (string, bool) {
	entries, err := os.ReadDir(packagesDir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), name) {
			return filepath.Join(packagesDir, e.Name()), true
		}
	}
	return "", false
}

// FetchPackages ensures every named NuGet package is installed under
// cacheRoot, installing any that are missing via nuget.exe, and returns
// each package's installed directory in the same order as deps.
func FetchPackages(cacheRoot string, deps []string) ([]string, error) {
	nuget, err := EnsureNuget(cacheRoot)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cacheRoot, 0755); err != nil {
		return nil, xerrors.Errorf("winrt: %w", err)
	}

	paths := make([]string, 0, len(deps))
	for _, dep := range deps {
		if existing, ok := findInstalled(dep, cacheRoot); ok {
			paths = append(paths, existing)
			continue
		}

		// Install into a scratch directory first, then move the result
		// into cacheRoot: two concurrent builds (e.g. two abs processes
		// sharing one cache root) installing the same package
		// never observe each other's half-extracted files, since each
		// gets its own uuid-named install directory to extract into.
		scratch, err := ScratchDir(cacheRoot)
		if err != nil {
			return nil, err
		}
		cmd := exec.Command(nuget, "install", "-OutputDirectory", scratch, dep)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			os.RemoveAll(scratch)
			return nil, xerrors.Errorf("winrt: installing %s: %w", dep, err)
		}
		installed, ok := findInstalled(dep, scratch)
		if !ok {
			os.RemoveAll(scratch)
			return nil, xerrors.Errorf("winrt: %s reported success but no package directory was found", dep)
		}

		finalPath := filepath.Join(cacheRoot, filepath.Base(installed))
		if err := os.Rename(installed, finalPath); err != nil {
			return nil, xerrors.Errorf("winrt: %w", err)
		}
		os.RemoveAll(scratch)
		paths = append(paths, finalPath)
	}
	return paths, nil
}

// ScratchDir allocates a fresh, uniquely named working directory under
// root for one NuGet package install, so concurrent installs never share
// mutable state.
func ScratchDir(root string) (string, error) {
	dir := filepath.Join(root, "scratch", uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", xerrors.Errorf("winrt: %w", err)
	}
	return dir, nil
}

// Package srcscan implements the Source Tree Scanner from spec section
// 4.4: a recursive, depth-first walk of a project's src/ directory that
// classifies files by extension and mirrors the on-disk subdirectory
// structure, grounded in the teacher's own recursive tree-walking helper
// cpscan (internal/build/build.go).
package srcscan

import (
	"os"
	"path/filepath"
	"strings"
)

// Tree mirrors one directory of the src/ subtree.
type Tree struct {
	Root     string  // absolute path of this directory
	Sources  []string // .cpp/.cxx/.cc files, absolute paths
	Headers  []string // .h/.hpp/.hxx files, absolute paths
	IDL      []string // .idl files, absolute paths (only when WinRT is enabled)
	Children []*Tree
}

var sourceExts = map[string]bool{".cpp": true, ".cxx": true, ".cc": true}
var headerExts = map[string]bool{".h": true, ".hpp": true, ".hxx": true}

// Scan walks root depth-first, classifying files by lowercase extension.
// Unknown extensions are ignored. When winrt is false, .idl files are
// ignored too (they are only classified, not rejected, so a non-WinRT
// project with stray .idl files under src/ still builds). Any I/O error
// aborts the walk; partial results are discarded per spec section 4.4.
func Scan(root string, winrt bool) (*Tree, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	t := &Tree{Root: root}
	for _, e := range entries {
		full := filepath.Join(root, e.Name())
		if e.IsDir() {
			child, err := Scan(full, winrt)
			if err != nil {
				return nil, err
			}
			t.Children = append(t.Children, child)
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		switch {
		case sourceExts[ext]:
			t.Sources = append(t.Sources, full)
		case headerExts[ext]:
			t.Headers = append(t.Headers, full)
		case ext == ".idl" && winrt:
			t.IDL = append(t.IDL, full)
		}
	}
	return t, nil
}

// AllSources returns every source file in t and its descendants.
func (t *Tree) AllSources() []string { return t.collect(func(c *Tree) []string { return c.Sources }) }

// AllHeaders returns every header file in t and its descendants.
func (t *Tree) AllHeaders() []string { return t.collect(func(c *Tree) []string { return c.Headers }) }

// AllIDL returns every IDL file in t and its descendants.
func (t *Tree) AllIDL() []string { return t.collect(func(c *Tree) []string { return c.IDL }) }

func (t *Tree) collect(field func(*Tree) []string) []string {
	if t == nil {
		return nil
	}
	out := append([]string(nil), field(t)...)
	for _, c := range t.Children {
		out = append(out, c.collect(field)...)
	}
	return out
}

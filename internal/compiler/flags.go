// Package compiler implements the Compiler Driver from spec section 4.7:
// a typed flag builder, an MSVC process launcher with a PATH augmented by
// the toolchain's bin directories, and a line-oriented output parser that
// segments cl.exe's stdout into begun/warning/error chunks.
//
// The flag-builder shape (an ordered slice of tagged variants, realised
// into concrete tokens in one fixed-order pass) is grounded in the
// original ABS implementation's CompileFlags (original_source's
// build_manager.rs), generalized from its two variants (Concrete,
// CxxStandard) to the full variant set spec section 3 describes.
package compiler

import (
	"fmt"

	"github.com/abs-build/abs/internal/manifest"
)

// Flag is the CompileFlag sum type from spec section 3.
type Flag interface {
	realise() []string
}

type concreteFlag string

func (f concreteFlag) realise() []string { return []string{string(f)} }

type cxxStandardFlag manifest.CxxStandard

func (f cxxStandardFlag) realise() []string {
	switch manifest.CxxStandard(f) {
	case manifest.Cxx11, manifest.Cxx14:
		return []string{"/std:c++14"}
	case manifest.Cxx17:
		return []string{"/std:c++17"}
	case manifest.Cxx20:
		return []string{"/std:c++latest"}
	}
	return nil
}

type rttiFlag bool

func (f rttiFlag) realise() []string {
	if f {
		return []string{"/GR"}
	}
	return []string{"/GR-"}
}

type asyncAwaitFlag bool

func (f asyncAwaitFlag) realise() []string {
	if f {
		return []string{"/await"}
	}
	return nil
}

type srcPathFlag string

func (f srcPathFlag) realise() []string { return []string{string(f)} }

type objPathFlag string

func (f objPathFlag) realise() []string { return []string{"/Fo" + string(f)} }

type pchPathFlag struct {
	path     string
	header   string
	generate bool
}

func (f pchPathFlag) realise() []string {
	if f.generate {
		return []string{"/Fp" + f.path, "/Yc" + f.header}
	}
	return []string{"/Fp" + f.path, "/Yu" + f.header}
}

type defineFlag struct{ name, value string }

func (f defineFlag) realise() []string { return []string{fmt.Sprintf("/D%s=%s", f.name, f.value)} }

type includePathFlag string

func (f includePathFlag) realise() []string { return []string{"/I", string(f)} }

// Flags is an ordered CompileFlags builder. Its zero value is usable.
type Flags struct {
	flags []Flag
}

func (b Flags) push(f Flag) Flags {
	b.flags = append(append([]Flag(nil), b.flags...), f)
	return b
}

func (b Flags) Concrete(s string) Flags { return b.push(concreteFlag(s)) }

func (b Flags) Concretes(ss ...string) Flags {
	for _, s := range ss {
		b = b.push(concreteFlag(s))
	}
	return b
}

func (b Flags) CxxStandard(s manifest.CxxStandard) Flags { return b.push(cxxStandardFlag(s)) }
func (b Flags) RTTI(v bool) Flags                        { return b.push(rttiFlag(v)) }
func (b Flags) AsyncAwait(v bool) Flags                  { return b.push(asyncAwaitFlag(v)) }
func (b Flags) SrcPath(p string) Flags                   { return b.push(srcPathFlag(p)) }
func (b Flags) ObjPath(p string) Flags                   { return b.push(objPathFlag(p)) }

func (b Flags) PchPath(path, header string, generate bool) Flags {
	return b.push(pchPathFlag{path: path, header: header, generate: generate})
}

func (b Flags) Define(name, value string) Flags { return b.push(defineFlag{name, value}) }

func (b Flags) IncludePath(p string) Flags { return b.push(includePathFlag(p)) }

func (b Flags) IncludePaths(ps []string) Flags {
	for _, p := range ps {
		b = b.push(includePathFlag(p))
	}
	return b
}

// Realise expands every flag variant into concrete command-line tokens,
// using spec section 4.7's per-variant token table, in the order the flags
// were added to the builder.
func (b Flags) Realise() []string {
	var out []string
	for _, f := range b.flags {
		out = append(out, f.realise()...)
	}
	return out
}

// Package abserr defines the error kinds exposed by the core, per spec
// section 7: a small closed set the front end switches on to print one
// line describing the failure and choose an exit code, rather than a
// free-form error string.
package abserr

import "fmt"

// Kind is one of the error kinds spec section 7 names.
type Kind string

const (
	NoSrcDirectory       Kind = "NoSrcDirectory"
	CantReadSrcDirectory Kind = "CantReadSrcDirectory"
	DiscoverSrcDepsError Kind = "DiscoverSrcDepsError"
	CompilerError        Kind = "CompilerError"
	LinkerError          Kind = "LinkerError"
	IoError              Kind = "IoError"
)

// Error wraps an underlying cause with the Kind the front end reports.
type Error struct {
	Kind    Kind
	Subject string // the project, source file, or path the error concerns
	Err     error
}

func New(kind Kind, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: err}
}

func (e *Error) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Kind, e.Subject, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// As reports whether err is (or wraps) an *Error, returning it.
func As(err error) (*Error, bool) {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return nil, false
	}
	return e, true
}
